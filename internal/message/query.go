package message

import (
	"context"
	"fmt"
)

const (
	DefaultLimit = 50
	MaxLimit     = 100
)

// QueryService serves filtered, paginated reads over a Store.
type QueryService struct {
	store        Store
	defaultLimit int
	maxLimit     int
}

// NewQueryService returns a QueryService. Non-positive limits fall back to
// DefaultLimit and MaxLimit.
func NewQueryService(store Store, defaultLimit, maxLimit int) *QueryService {
	if maxLimit <= 0 {
		maxLimit = MaxLimit
	}
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}
	if defaultLimit > maxLimit {
		defaultLimit = maxLimit
	}
	return &QueryService{store: store, defaultLimit: defaultLimit, maxLimit: maxLimit}
}

// DefaultLimit is the page size used when a caller does not choose one.
func (s *QueryService) DefaultLimit() int { return s.defaultLimit }

// List returns the window p of messages matching f. Result.Total is the size
// of the filtered set before p is applied. A zero limit only counts.
func (s *QueryService) List(ctx context.Context, f Filter, p Page) (Result, error) {
	if p.Limit < 0 || p.Limit > s.maxLimit {
		return Result{}, fmt.Errorf("%w: limit must be between 0 and %d", ErrInvalidQuery, s.maxLimit)
	}
	if p.Offset < 0 {
		return Result{}, fmt.Errorf("%w: offset must not be negative", ErrInvalidQuery)
	}
	switch p.Sort {
	case "":
		p.Sort = SortReceived
	case SortReceived, SortTimestamp:
	default:
		return Result{}, fmt.Errorf("%w: unknown sort %q", ErrInvalidQuery, p.Sort)
	}

	res, err := s.store.Query(ctx, f, p)
	if err != nil {
		return Result{}, fmt.Errorf("query messages: %w", err)
	}
	if res.Items == nil {
		res.Items = []Message{}
	}
	return res, nil
}

// Get returns a single message by id.
func (s *QueryService) Get(ctx context.Context, id string) (Message, error) {
	if id == "" {
		return Message{}, ErrNotFound
	}
	m, err := s.store.Get(ctx, id)
	if err != nil {
		return Message{}, fmt.Errorf("get message %q: %w", id, err)
	}
	return m, nil
}
