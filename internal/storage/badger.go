package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/mattjoyce/inbox/internal/message"
)

// Key layout:
//
//	msg/<message_id>   JSON record
//	seq/<%020d seq>    message_id, in insertion order
//	meta/seq           badger sequence lease
//	meta/received      latest received_at written
const (
	badgerMsgPrefix   = "msg/"
	badgerSeqPrefix   = "seq/"
	badgerSeqKey      = "meta/seq"
	badgerReceivedKey = "meta/received"

	badgerSeqBandwidth = 128
	badgerMaxRetries   = 16
)

type badgerRecord struct {
	Seq         int64  `json:"seq"`
	ID          string `json:"message_id"`
	From        string `json:"from"`
	To          string `json:"to"`
	Timestamp   string `json:"ts"`
	Text        string `json:"text"`
	ReceivedAt  string `json:"received_at"`
	PayloadHash string `json:"payload_hash"`
}

// BadgerStore is an embedded message.Store for single-node deployments.
// Badger holds an exclusive directory lock, so one process owns the data;
// inside that process writes are serialised and each one is an SSI
// transaction that reads the id key before setting it.
type BadgerStore struct {
	db  *badger.DB
	seq *badger.Sequence
	now func() time.Time

	mu           sync.Mutex
	lastReceived string
}

var _ message.Store = (*BadgerStore)(nil)

// OpenBadger opens the badger directory at dir. ":memory:" keeps everything
// in RAM.
func OpenBadger(dir string) (*BadgerStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("badger directory is empty")
	}

	opts := badger.DefaultOptions(dir).WithLoggingLevel(badger.WARNING)
	if dir == memoryPath {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLoggingLevel(badger.WARNING)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return NewBadgerStore(db)
}

// NewBadgerStore wraps an open badger database.
func NewBadgerStore(db *badger.DB) (*BadgerStore, error) {
	seq, err := db.GetSequence([]byte(badgerSeqKey), badgerSeqBandwidth)
	if err != nil {
		return nil, fmt.Errorf("badger sequence: %w", err)
	}

	s := &BadgerStore{
		db:  db,
		seq: seq,
		now: func() time.Time { return time.Now().UTC() },
	}
	err = db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(badgerReceivedKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		v, err := item.ValueCopy(nil)
		s.lastReceived = string(v)
		return err
	})
	if err != nil {
		_ = seq.Release()
		return nil, fmt.Errorf("load badger watermark: %w", err)
	}
	return s, nil
}

func (s *BadgerStore) InsertIfAbsent(ctx context.Context, m message.Message) (message.InsertOutcome, error) {
	if m.ID == "" {
		return 0, fmt.Errorf("message id is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	received := message.FormatTimestamp(s.now())
	if received < s.lastReceived {
		received = s.lastReceived
	}

	var outcome message.InsertOutcome
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		err := s.db.Update(func(txn *badger.Txn) error {
			key := []byte(badgerMsgPrefix + m.ID)
			_, err := txn.Get(key)
			switch {
			case err == nil:
				outcome = message.AlreadyExists
				return nil
			case !errors.Is(err, badger.ErrKeyNotFound):
				return err
			}

			next, err := s.seq.Next()
			if err != nil {
				return err
			}
			rec := badgerRecord{
				Seq:         int64(next) + 1,
				ID:          m.ID,
				From:        m.From,
				To:          m.To,
				Timestamp:   message.FormatTimestamp(m.Timestamp),
				Text:        m.Text,
				ReceivedAt:  received,
				PayloadHash: m.PayloadHash,
			}
			raw, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			if err := txn.Set(key, raw); err != nil {
				return err
			}
			if err := txn.Set(seqKey(rec.Seq), []byte(m.ID)); err != nil {
				return err
			}
			if err := txn.Set([]byte(badgerReceivedKey), []byte(received)); err != nil {
				return err
			}
			outcome = message.Inserted
			return nil
		})
		if errors.Is(err, badger.ErrConflict) && attempt < badgerMaxRetries {
			continue
		}
		if err != nil {
			return 0, unavailable("insert message", err)
		}
		break
	}

	if outcome == message.Inserted {
		s.lastReceived = received
	}
	return outcome, nil
}

func (s *BadgerStore) Get(ctx context.Context, id string) (message.Message, error) {
	var m message.Message
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		m, err = getRecord(txn, id)
		return err
	})
	if errors.Is(err, message.ErrNotFound) {
		return message.Message{}, message.ErrNotFound
	}
	if err != nil {
		return message.Message{}, unavailable("get message", err)
	}
	return m, nil
}

// Query walks the insertion index inside one read transaction, so Total and
// Items describe the same snapshot.
func (s *BadgerStore) Query(ctx context.Context, f message.Filter, p message.Page) (message.Result, error) {
	var matched []message.Message
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(badgerSeqPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			id, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			m, err := getRecord(txn, string(id))
			if err != nil {
				return err
			}
			if f.Match(m) {
				matched = append(matched, m)
			}
		}
		return nil
	})
	if err != nil {
		return message.Result{}, unavailable("query messages", err)
	}

	if p.Sort == message.SortTimestamp {
		sort.SliceStable(matched, func(i, j int) bool {
			a, b := matched[i], matched[j]
			if !a.Timestamp.Equal(b.Timestamp) {
				return a.Timestamp.Before(b.Timestamp)
			}
			return a.ID < b.ID
		})
	}

	res := message.Result{Total: len(matched), Items: []message.Message{}}
	if p.Limit > 0 && p.Offset < len(matched) {
		end := min(p.Offset+p.Limit, len(matched))
		res.Items = append(res.Items, matched[p.Offset:end]...)
	}
	return res, nil
}

func (s *BadgerStore) Aggregate(ctx context.Context) (message.Stats, error) {
	bySender := map[string]*message.SenderAggregate{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(badgerMsgPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			m, err := decodeRecord(it.Item())
			if err != nil {
				return err
			}
			g, ok := bySender[m.From]
			if !ok {
				bySender[m.From] = &message.SenderAggregate{From: m.From, Count: 1, First: m.Timestamp, Last: m.Timestamp}
				continue
			}
			g.Count++
			if m.Timestamp.Before(g.First) {
				g.First = m.Timestamp
			}
			if m.Timestamp.After(g.Last) {
				g.Last = m.Timestamp
			}
		}
		return nil
	})
	if err != nil {
		return message.Stats{}, unavailable("aggregate messages", err)
	}

	groups := make([]message.SenderAggregate, 0, len(bySender))
	for _, g := range bySender {
		groups = append(groups, *g)
	}
	return message.NewStats(groups), nil
}

func (s *BadgerStore) Ping(ctx context.Context) error {
	if s.db.IsClosed() {
		return unavailable("ping", errors.New("badger is closed"))
	}
	if err := s.db.View(func(*badger.Txn) error { return nil }); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (s *BadgerStore) Close() error {
	err := s.seq.Release()
	return errors.Join(err, s.db.Close())
}

func seqKey(seq int64) []byte {
	return []byte(fmt.Sprintf("%s%020d", badgerSeqPrefix, seq))
}

func getRecord(txn *badger.Txn, id string) (message.Message, error) {
	item, err := txn.Get([]byte(badgerMsgPrefix + id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return message.Message{}, message.ErrNotFound
	}
	if err != nil {
		return message.Message{}, err
	}
	return decodeRecord(item)
}

func decodeRecord(item *badger.Item) (message.Message, error) {
	var rec badgerRecord
	if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &rec) }); err != nil {
		return message.Message{}, fmt.Errorf("decode %s: %w", item.Key(), err)
	}
	ts, err := message.ParseTimestamp(rec.Timestamp)
	if err != nil {
		return message.Message{}, err
	}
	received, err := message.ParseTimestamp(rec.ReceivedAt)
	if err != nil {
		return message.Message{}, err
	}
	return message.Message{
		ID:          rec.ID,
		From:        rec.From,
		To:          rec.To,
		Timestamp:   ts,
		Text:        rec.Text,
		ReceivedAt:  received,
		Seq:         rec.Seq,
		PayloadHash: rec.PayloadHash,
	}, nil
}
