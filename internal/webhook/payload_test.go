package webhook

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePayloadAcceptsValidBody(t *testing.T) {
	t.Parallel()

	m, err := ParsePayload([]byte(`{"message_id":"m1","from":"+919876543210","to":"+14155550100","ts":"2025-01-15T10:00:00Z","text":"Hello"}`))
	require.NoError(t, err)
	assert.Equal(t, "m1", m.ID)
	assert.Equal(t, "+919876543210", m.From)
	assert.Equal(t, "+14155550100", m.To)
	assert.Equal(t, "Hello", m.Text)
	assert.True(t, m.Timestamp.Equal(time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)))
	assert.Equal(t, time.UTC, m.Timestamp.Location())
}

func TestParsePayloadAllowsEmptyTextAndUnknownFields(t *testing.T) {
	t.Parallel()

	m, err := ParsePayload([]byte(`{"message_id":"m1","from":"+15550001","to":"+15550002","ts":"2025-01-15T10:00:00.123Z","text":"","extra":1}`))
	require.NoError(t, err)
	assert.Empty(t, m.Text)
	assert.Equal(t, 123*time.Millisecond, time.Duration(m.Timestamp.Nanosecond()))
}

func TestParsePayloadRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		body   string
		reason string
	}{
		{name: "not json", body: `nope`, reason: "not a JSON object"},
		{name: "array", body: `[]`, reason: "not a JSON object"},
		{name: "empty", body: ``, reason: "not a JSON object"},
		{name: "missing id", body: `{"from":"+15550001","to":"+15550002","ts":"2025-01-15T10:00:00Z","text":"x"}`, reason: "message_id is required"},
		{name: "empty id", body: `{"message_id":"","from":"+15550001","to":"+15550002","ts":"2025-01-15T10:00:00Z","text":"x"}`, reason: "message_id is required"},
		{name: "numeric id", body: `{"message_id":7,"from":"+15550001","to":"+15550002","ts":"2025-01-15T10:00:00Z","text":"x"}`, reason: "message_id has the wrong type"},
		{name: "missing text", body: `{"message_id":"m1","from":"+15550001","to":"+15550002","ts":"2025-01-15T10:00:00Z"}`, reason: "text is required"},
		{name: "null text", body: `{"message_id":"m1","from":"+15550001","to":"+15550002","ts":"2025-01-15T10:00:00Z","text":null}`, reason: "text is required"},
		{name: "sender without plus", body: `{"message_id":"m1","from":"15550001","to":"+15550002","ts":"2025-01-15T10:00:00Z","text":"x"}`, reason: "from must be an E.164 number"},
		{name: "recipient leading zero", body: `{"message_id":"m1","from":"+15550001","to":"+05550002","ts":"2025-01-15T10:00:00Z","text":"x"}`, reason: "to must be an E.164 number"},
		{name: "offset timestamp", body: `{"message_id":"m1","from":"+15550001","to":"+15550002","ts":"2025-01-15T10:00:00+00:00","text":"x"}`, reason: "ts must be an RFC 3339 UTC timestamp"},
		{name: "garbage timestamp", body: `{"message_id":"m1","from":"+15550001","to":"+15550002","ts":"yesterdayZ","text":"x"}`, reason: "ts must be an RFC 3339 UTC timestamp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParsePayload([]byte(tt.body))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedPayload))

			var perr *PayloadError
			require.ErrorAs(t, err, &perr)
			assert.Contains(t, perr.Reason, tt.reason)
		})
	}
}
