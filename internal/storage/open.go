package storage

import (
	"context"
	"fmt"

	"github.com/mattjoyce/inbox/internal/message"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverBadger   = "badger"
)

// Drivers lists the accepted store.driver values.
var Drivers = []string{DriverSQLite, DriverPostgres, DriverBadger}

// Open returns a ready message.Store for driver. For sqlite and badger dsn is
// a path (":memory:" is allowed); for postgres it is a connection string.
func Open(ctx context.Context, driver, dsn string) (message.Store, error) {
	switch driver {
	case DriverSQLite:
		db, err := OpenSQLite(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return NewSQLStore(db, SQLiteDialect), nil
	case DriverPostgres:
		db, err := OpenPostgres(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return NewSQLStore(db, PostgresDialect), nil
	case DriverBadger:
		return OpenBadger(dsn)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
