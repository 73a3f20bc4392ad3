package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// OpenPostgres connects to the Postgres database at dsn and ensures the
// messages table exists.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is empty")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := BootstrapPostgres(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// BootstrapPostgres creates tables/indexes if missing. Timestamp columns use
// the C collation so their fixed-width text sorts chronologically.
func BootstrapPostgres(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS messages (
  seq          BIGSERIAL NOT NULL UNIQUE,
  message_id   TEXT PRIMARY KEY,
  from_msisdn  TEXT NOT NULL,
  to_msisdn    TEXT NOT NULL,
  ts           TEXT COLLATE "C" NOT NULL,
  text         TEXT NOT NULL,
  received_at  TEXT COLLATE "C" NOT NULL,
  payload_hash TEXT NOT NULL DEFAULT ''
);`,
		`CREATE INDEX IF NOT EXISTS messages_from_msisdn_idx ON messages(from_msisdn);`,
		`CREATE INDEX IF NOT EXISTS messages_ts_message_id_idx ON messages(ts, message_id);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap postgres: %w", err)
		}
	}
	return nil
}
