package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mattjoyce/inbox/internal/message"
)

// Dialect captures the few SQL differences between the supported engines.
type Dialect struct {
	Name string
	// SeqColumn is the column holding the insertion sequence.
	SeqColumn string
	// Greatest is the scalar two-argument maximum function.
	Greatest string
	// Lower folds text case for the q filter; it must match strings.ToLower.
	Lower string
	// Numbered placeholders ($1, $2, ...) instead of "?".
	Numbered bool
	// ReadTx are the options for multi-statement read snapshots.
	ReadTx *sql.TxOptions
}

var (
	// SQLite's deferred read transaction pins a WAL snapshot at the first read.
	SQLiteDialect = Dialect{
		Name:      "sqlite",
		SeqColumn: "rowid",
		Greatest:  "MAX",
		Lower:     sqliteLowerFunc,
	}
	PostgresDialect = Dialect{
		Name:      "postgres",
		SeqColumn: "seq",
		Greatest:  "GREATEST",
		Lower:     "LOWER",
		Numbered:  true,
		ReadTx:    &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true},
	}
)

// SQLStore is a message.Store over database/sql. Idempotency rests on the
// primary key of message_id and INSERT ... ON CONFLICT DO NOTHING.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// NewSQLStore wraps an already bootstrapped database.
func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{
		db:      db,
		dialect: dialect,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

var _ message.Store = (*SQLStore)(nil)

// InsertIfAbsent inserts m unless a row with the same id exists. received_at
// never drops below the latest stored value, so it is non-decreasing in
// insertion order.
func (s *SQLStore) InsertIfAbsent(ctx context.Context, m message.Message) (message.InsertOutcome, error) {
	if m.ID == "" {
		return 0, fmt.Errorf("message id is empty")
	}

	now := message.FormatTimestamp(s.now())
	// The WHERE clause keeps SQLite from parsing ON CONFLICT as a join constraint.
	query := s.bind(`
INSERT INTO messages(message_id, from_msisdn, to_msisdn, ts, text, received_at, payload_hash)
SELECT ?, ?, ?, ?, ?, ` + s.dialect.Greatest + `(?, COALESCE((SELECT MAX(received_at) FROM messages), '')), ?
WHERE true
ON CONFLICT(message_id) DO NOTHING;
`)
	res, err := s.db.ExecContext(ctx, query,
		m.ID, m.From, m.To, message.FormatTimestamp(m.Timestamp), m.Text, now, m.PayloadHash,
	)
	if err != nil {
		return 0, unavailable("insert message", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, unavailable("insert message rows affected", err)
	}
	if n == 0 {
		return message.AlreadyExists, nil
	}
	return message.Inserted, nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (message.Message, error) {
	row := s.db.QueryRowContext(ctx, s.bind(`SELECT `+s.columns()+` FROM messages WHERE message_id = ?;`), id)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return message.Message{}, message.ErrNotFound
	}
	if err != nil {
		return message.Message{}, unavailable("get message", err)
	}
	return m, nil
}

// Query counts and pages inside one read transaction so Total and Items come
// from the same snapshot.
func (s *SQLStore) Query(ctx context.Context, f message.Filter, p message.Page) (message.Result, error) {
	where, args := whereClause(f, s.dialect.Lower)

	tx, err := s.db.BeginTx(ctx, s.dialect.ReadTx)
	if err != nil {
		return message.Result{}, unavailable("begin query", err)
	}
	defer func() { _ = tx.Rollback() }()

	var res message.Result
	if err := tx.QueryRowContext(ctx, s.bind(`SELECT COUNT(*) FROM messages`+where+`;`), args...).Scan(&res.Total); err != nil {
		return message.Result{}, unavailable("count messages", err)
	}

	res.Items = make([]message.Message, 0, min(p.Limit, res.Total))
	if p.Limit > 0 && p.Offset < res.Total {
		order := " ORDER BY " + s.dialect.SeqColumn + " ASC"
		if p.Sort == message.SortTimestamp {
			order = " ORDER BY ts ASC, message_id ASC"
		}
		query := s.bind(`SELECT ` + s.columns() + ` FROM messages` + where + order + ` LIMIT ? OFFSET ?;`)
		rows, err := tx.QueryContext(ctx, query, append(args, p.Limit, p.Offset)...)
		if err != nil {
			return message.Result{}, unavailable("list messages", err)
		}
		defer rows.Close()
		for rows.Next() {
			m, err := scanMessage(rows)
			if err != nil {
				return message.Result{}, unavailable("scan message", err)
			}
			res.Items = append(res.Items, m)
		}
		if err := rows.Err(); err != nil {
			return message.Result{}, unavailable("list messages", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return message.Result{}, unavailable("commit query", err)
	}
	return res, nil
}

// Aggregate computes statistics with a single grouped statement.
func (s *SQLStore) Aggregate(ctx context.Context) (message.Stats, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT from_msisdn, COUNT(*), MIN(ts), MAX(ts)
FROM messages
GROUP BY from_msisdn;
`)
	if err != nil {
		return message.Stats{}, unavailable("aggregate messages", err)
	}
	defer rows.Close()

	var groups []message.SenderAggregate
	for rows.Next() {
		var (
			g           message.SenderAggregate
			first, last string
		)
		if err := rows.Scan(&g.From, &g.Count, &first, &last); err != nil {
			return message.Stats{}, unavailable("scan aggregate", err)
		}
		if g.First, err = message.ParseTimestamp(first); err != nil {
			return message.Stats{}, unavailable("aggregate messages", err)
		}
		if g.Last, err = message.ParseTimestamp(last); err != nil {
			return message.Stats{}, unavailable("aggregate messages", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return message.Stats{}, unavailable("aggregate messages", err)
	}
	return message.NewStats(groups), nil
}

// Ping checks the database answers and the messages table is readable.
func (s *SQLStore) Ping(ctx context.Context) error {
	var one int
	if err := s.db.QueryRowContext(ctx, `SELECT 1 FROM messages WHERE 1 = 0 UNION ALL SELECT 1;`).Scan(&one); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) columns() string {
	return s.dialect.SeqColumn + `, message_id, from_msisdn, to_msisdn, ts, text, received_at, payload_hash`
}

// bind rewrites "?" placeholders for dialects with numbered parameters.
func (s *SQLStore) bind(query string) string {
	if !s.dialect.Numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func whereClause(f message.Filter, lower string) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.From != "" {
		conds = append(conds, "from_msisdn = ?")
		args = append(args, f.From)
	}
	if f.Since != nil {
		conds = append(conds, "ts >= ?")
		args = append(args, message.FormatTimestamp(*f.Since))
	}
	if f.TextContains != "" {
		conds = append(conds, lower+`(text) LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(strings.ToLower(f.TextContains))+"%")
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (message.Message, error) {
	var (
		m              message.Message
		ts, receivedAt string
	)
	if err := row.Scan(&m.Seq, &m.ID, &m.From, &m.To, &ts, &m.Text, &receivedAt, &m.PayloadHash); err != nil {
		return message.Message{}, err
	}
	var err error
	if m.Timestamp, err = message.ParseTimestamp(ts); err != nil {
		return message.Message{}, err
	}
	if m.ReceivedAt, err = message.ParseTimestamp(receivedAt); err != nil {
		return message.Message{}, err
	}
	return m, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, message.ErrStoreUnavailable, err)
}
