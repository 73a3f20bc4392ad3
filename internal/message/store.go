//go:generate go run github.com/golang/mock/mockgen -source=store.go -destination=mocks/mock_store.go -package=mocks
package message

import "context"

// Store is durable keyed storage of messages.
//
// InsertIfAbsent must be a single atomic operation backed by the storage
// engine's own uniqueness guarantee on the message id: under concurrent calls
// with the same id exactly one caller observes Inserted. Implementations must
// not emulate it with a lookup followed by a write.
type Store interface {
	InsertIfAbsent(ctx context.Context, m Message) (InsertOutcome, error)
	Get(ctx context.Context, id string) (Message, error)
	Query(ctx context.Context, f Filter, p Page) (Result, error)
	Aggregate(ctx context.Context) (Stats, error)
	Ping(ctx context.Context) error
	Close() error
}
