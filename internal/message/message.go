// Package message defines the stored webhook message, the store contract every
// backend satisfies, and the read-side query and statistics services.
package message

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// StorageLayout is the fixed-width UTC layout used to persist timestamps.
// Every value has nine fractional digits so lexical order equals time order.
const StorageLayout = "2006-01-02T15:04:05.000000000Z"

var (
	ErrNotFound         = errors.New("message not found")
	ErrStoreUnavailable = errors.New("message store unavailable")
	ErrInvalidQuery     = errors.New("invalid query")
)

// Message is a single delivered webhook message. It is immutable once stored.
type Message struct {
	ID         string
	From       string
	To         string
	Timestamp  time.Time
	Text       string
	ReceivedAt time.Time

	// Seq is the store-assigned insertion sequence.
	Seq int64

	// PayloadHash is the BLAKE3 digest of the raw body that created the row.
	PayloadHash string
}

// FormatTimestamp renders t in StorageLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(StorageLayout)
}

// ParseTimestamp parses a value written by FormatTimestamp.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(StorageLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored timestamp %q: %w", s, err)
	}
	return t, nil
}

// InsertOutcome reports what an idempotent insert did.
type InsertOutcome int

const (
	Inserted InsertOutcome = iota + 1
	AlreadyExists
)

func (o InsertOutcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case AlreadyExists:
		return "already_exists"
	default:
		return "unknown"
	}
}

// SortOrder selects the ordering of query results.
type SortOrder string

const (
	// SortReceived orders by insertion sequence. It is the default.
	SortReceived SortOrder = "received"
	// SortTimestamp orders by source timestamp, then message id.
	SortTimestamp SortOrder = "ts"
)

// Filter constrains a query. Zero-valued fields match everything.
type Filter struct {
	From         string
	Since        *time.Time
	TextContains string
}

// Match reports whether m satisfies every constraint in f.
func (f Filter) Match(m Message) bool {
	if f.From != "" && m.From != f.From {
		return false
	}
	if f.Since != nil && m.Timestamp.Before(*f.Since) {
		return false
	}
	if f.TextContains != "" && !strings.Contains(strings.ToLower(m.Text), strings.ToLower(f.TextContains)) {
		return false
	}
	return true
}

// Page bounds the window returned by a query.
type Page struct {
	Limit  int
	Offset int
	Sort   SortOrder
}

// Result is a page of messages plus the size of the whole filtered set.
type Result struct {
	Items []Message
	Total int
}
