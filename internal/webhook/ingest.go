package webhook

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/zeebo/blake3"

	"github.com/mattjoyce/inbox/internal/message"
)

var (
	ErrInvalidSignature = errors.New("invalid signature")
	ErrMalformedPayload = errors.New("malformed payload")
)

// Result labels recorded for every delivery.
const (
	ResultCreated          = "created"
	ResultDuplicate        = "duplicate"
	ResultInvalidSignature = "invalid_signature"
	ResultValidationError  = "validation_error"
	ResultStoreError       = "store_error"
)

// Results lists every label a Recorder may observe.
var Results = []string{
	ResultCreated,
	ResultDuplicate,
	ResultInvalidSignature,
	ResultValidationError,
	ResultStoreError,
}

// Recorder counts delivery outcomes. A duplicate whose body differs from the
// stored original is observed as ResultDuplicate and also as a mismatch.
type Recorder interface {
	ObserveWebhook(result string)
	ObserveDuplicateMismatch()
}

// Outcome is the result of an accepted delivery.
type Outcome int

const (
	OutcomeCreated Outcome = iota + 1
	OutcomeDuplicate
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return ResultCreated
	case OutcomeDuplicate:
		return ResultDuplicate
	default:
		return "unknown"
	}
}

// Service authenticates, validates and stores webhook deliveries.
type Service struct {
	store    message.Store
	secret   []byte
	recorder Recorder
	logger   *slog.Logger
}

// NewService returns a Service. The secret is copied; later changes to the
// caller's slice have no effect. A nil recorder discards observations.
func NewService(store message.Store, secret []byte, recorder Recorder, logger *slog.Logger) *Service {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		secret:   append([]byte(nil), secret...),
		recorder: recorder,
		logger:   logger,
	}
}

// Ready reports whether a secret is configured.
func (s *Service) Ready() bool { return len(s.secret) > 0 }

// Ingest processes one raw delivery. Retried deliveries of a stored message
// succeed with OutcomeDuplicate and leave the stored row untouched.
func (s *Service) Ingest(ctx context.Context, body []byte, signature string) (Outcome, error) {
	if !Verify(body, signature, s.secret) {
		s.recorder.ObserveWebhook(ResultInvalidSignature)
		return 0, ErrInvalidSignature
	}

	m, err := ParsePayload(body)
	if err != nil {
		s.recorder.ObserveWebhook(ResultValidationError)
		return 0, err
	}
	m.PayloadHash = Fingerprint(body)

	inserted, err := s.store.InsertIfAbsent(ctx, m)
	if err != nil {
		s.recorder.ObserveWebhook(ResultStoreError)
		return 0, fmt.Errorf("store message %q: %w", m.ID, err)
	}
	if inserted == message.Inserted {
		s.recorder.ObserveWebhook(ResultCreated)
		return OutcomeCreated, nil
	}

	s.recorder.ObserveWebhook(ResultDuplicate)
	if s.payloadDiffers(ctx, m) {
		s.recorder.ObserveDuplicateMismatch()
	}
	return OutcomeDuplicate, nil
}

// payloadDiffers compares the redelivered body with the stored original.
// Lookup failures are logged but never fail the delivery.
func (s *Service) payloadDiffers(ctx context.Context, m message.Message) bool {
	stored, err := s.store.Get(ctx, m.ID)
	if err != nil {
		s.logger.Warn("duplicate lookup failed", "message_id", m.ID, "error", err)
		return false
	}
	if stored.PayloadHash != "" && stored.PayloadHash != m.PayloadHash {
		s.logger.Warn("duplicate message_id with different payload",
			"message_id", m.ID,
			"stored_hash", stored.PayloadHash,
			"delivered_hash", m.PayloadHash,
		)
		return true
	}
	return false
}

// Fingerprint returns the BLAKE3 hex digest of a raw body.
func Fingerprint(body []byte) string {
	sum := blake3.Sum256(body)
	return hex.EncodeToString(sum[:])
}

type nopRecorder struct{}

func (nopRecorder) ObserveWebhook(string)     {}
func (nopRecorder) ObserveDuplicateMismatch() {}
