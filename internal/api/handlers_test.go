package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/inbox/internal/message"
	"github.com/mattjoyce/inbox/internal/message/mocks"
	"github.com/mattjoyce/inbox/internal/metrics"
	"github.com/mattjoyce/inbox/internal/storage"
	"github.com/mattjoyce/inbox/internal/webhook"
)

const testSecret = "test-secret"

type harness struct {
	handler http.Handler
	metrics *metrics.Registry
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHarnessWithStore(t *testing.T, store message.Store, secret string, cfg Config) *harness {
	t.Helper()

	reg := metrics.New(webhook.Results...)
	ingest := webhook.NewService(store, []byte(secret), reg, quietLogger())
	srv := New(cfg, ingest,
		message.NewQueryService(store, 0, 0),
		message.NewStatsService(store),
		store, reg, quietLogger())
	return &harness{handler: srv.Handler(), metrics: reg}
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	store, err := storage.Open(context.Background(), storage.DriverSQLite, filepath.Join(t.TempDir(), "inbox.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return newHarnessWithStore(t, store, testSecret, Config{})
}

func (h *harness) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func (h *harness) get(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	return h.do(t, httptest.NewRequest(http.MethodGet, target, nil))
}

func (h *harness) deliver(t *testing.T, body []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set(webhook.DefaultSignatureHeader, signature)
	}
	return h.do(t, req)
}

func signed(body []byte) string {
	return webhook.Sign(body, []byte(testSecret))
}

func payload(id, from, ts, text string) []byte {
	return []byte(fmt.Sprintf(`{"message_id":%q,"from":%q,"to":"+14155550100","ts":%q,"text":%q}`, id, from, ts, text))
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out), rec.Body.String())
	return out
}

func TestWebhookAcceptsSignedMessageAndDuplicates(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	body := payload("m1", "+919876543210", "2025-01-15T10:00:00Z", "Hello")
	rec := h.deliver(t, body, signed(body))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[StatusResponse](t, rec).Status)

	rec = h.deliver(t, body, signed(body))
	require.Equal(t, http.StatusOK, rec.Code)

	list := decode[ListResponse](t, h.get(t, "/messages"))
	assert.Equal(t, 1, list.Total)
	require.Len(t, list.Data, 1)
	assert.Equal(t, "m1", list.Data[0].MessageID)
	assert.Equal(t, "+919876543210", list.Data[0].From)
	assert.Equal(t, "2025-01-15T10:00:00Z", list.Data[0].TS)
	assert.NotEmpty(t, list.Data[0].ReceivedAt)
}

func TestWebhookRejections(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	good := payload("m1", "+15550001", "2025-01-15T10:00:00Z", "x")
	bad := payload("m2", "not-a-number", "2025-01-15T10:00:00Z", "x")

	tests := []struct {
		name       string
		body       []byte
		signature  string
		wantStatus int
		wantDetail string
	}{
		{name: "missing signature", body: good, signature: "", wantStatus: http.StatusUnauthorized, wantDetail: "invalid signature"},
		{name: "wrong signature", body: good, signature: webhook.Sign(good, []byte("nope")), wantStatus: http.StatusUnauthorized, wantDetail: "invalid signature"},
		{name: "invalid json", body: []byte(`{`), signature: signed([]byte(`{`)), wantStatus: http.StatusBadRequest, wantDetail: "malformed payload"},
		{name: "invalid sender", body: bad, signature: signed(bad), wantStatus: http.StatusBadRequest, wantDetail: "from must be an E.164 number"},
	}
	for _, tt := range tests {
		rec := h.deliver(t, tt.body, tt.signature)
		assert.Equal(t, tt.wantStatus, rec.Code, tt.name)
		assert.Contains(t, decode[ErrorResponse](t, rec).Detail, tt.wantDetail, tt.name)
	}

	assert.Zero(t, decode[ListResponse](t, h.get(t, "/messages")).Total)
}

func TestWebhookBodyLimit(t *testing.T) {
	t.Parallel()

	store, err := storage.Open(context.Background(), storage.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	h := newHarnessWithStore(t, store, testSecret, Config{MaxBodySize: 64})

	body := payload("m1", "+15550001", "2025-01-15T10:00:00Z", strings.Repeat("x", 100))
	rec := h.deliver(t, body, signed(body))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestWebhookCustomSignatureHeader(t *testing.T) {
	t.Parallel()

	store, err := storage.Open(context.Background(), storage.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	h := newHarnessWithStore(t, store, testSecret, Config{SignatureHeader: "X-Hub-Signature-256"})

	body := payload("m1", "+15550001", "2025-01-15T10:00:00Z", "x")
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", "sha256="+signed(body))
	assert.Equal(t, http.StatusOK, h.do(t, req).Code)
}

func TestWebhookStoreUnavailable(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	store.EXPECT().InsertIfAbsent(gomock.Any(), gomock.Any()).
		Return(message.InsertOutcome(0), fmt.Errorf("insert: %w", message.ErrStoreUnavailable))
	h := newHarnessWithStore(t, store, testSecret, Config{})

	body := payload("m1", "+15550001", "2025-01-15T10:00:00Z", "x")
	rec := h.deliver(t, body, signed(body))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func seed(t *testing.T, h *harness) {
	t.Helper()
	for _, p := range [][]byte{
		payload("m1", "+15550001", "2025-01-15T10:03:00Z", "Hello World"),
		payload("m2", "+15550002", "2025-01-15T10:01:00Z", "hello there"),
		payload("m3", "+15550001", "2025-01-15T10:02:00Z", "bye"),
		payload("m4", "+15550001", "2025-01-15T10:00:00Z", "HELLO again"),
		payload("m5", "+15550003", "2025-01-15T10:04:00Z", "later"),
	} {
		require.Equal(t, http.StatusOK, h.deliver(t, p, signed(p)).Code)
	}
}

func messageIDs(list ListResponse) []string {
	out := make([]string, 0, len(list.Data))
	for _, m := range list.Data {
		out = append(out, m.MessageID)
	}
	return out
}

func TestListMessages(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	seed(t, h)

	tests := []struct {
		target string
		ids    []string
		total  int
		limit  int
	}{
		{target: "/messages", ids: []string{"m1", "m2", "m3", "m4", "m5"}, total: 5, limit: 50},
		{target: "/messages?limit=2&offset=1", ids: []string{"m2", "m3"}, total: 5, limit: 2},
		{target: "/messages?limit=2&offset=4", ids: []string{"m5"}, total: 5, limit: 2},
		{target: "/messages?limit=0", ids: []string{}, total: 5, limit: 0},
		{target: "/messages?from=%2B15550001", ids: []string{"m1", "m3", "m4"}, total: 3, limit: 50},
		{target: "/messages?q=hello", ids: []string{"m1", "m2", "m4"}, total: 3, limit: 50},
		{target: "/messages?since=2025-01-15T10:02:00Z", ids: []string{"m1", "m3", "m5"}, total: 3, limit: 50},
		{target: "/messages?from=%2B15550001&q=hello&limit=1", ids: []string{"m1"}, total: 2, limit: 1},
		{target: "/messages?sort=ts", ids: []string{"m4", "m2", "m3", "m1", "m5"}, total: 5, limit: 50},
		{target: "/messages?offset=100", ids: []string{}, total: 5, limit: 50},
	}
	for _, tt := range tests {
		rec := h.get(t, tt.target)
		require.Equal(t, http.StatusOK, rec.Code, tt.target)
		list := decode[ListResponse](t, rec)
		assert.Equal(t, tt.ids, messageIDs(list), tt.target)
		assert.Equal(t, tt.total, list.Total, tt.target)
		assert.Equal(t, tt.limit, list.Limit, tt.target)
		assert.NotNil(t, list.Data, tt.target)
	}
}

func TestListMessagesRejectsBadParams(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	for _, target := range []string{
		"/messages?limit=abc",
		"/messages?limit=-1",
		"/messages?limit=101",
		"/messages?offset=-1",
		"/messages?offset=x",
		"/messages?since=yesterday",
		"/messages?sort=sideways",
	} {
		rec := h.get(t, target)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		assert.NotEmpty(t, decode[ErrorResponse](t, rec).Detail, target)
	}
}

func TestGetMessage(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	seed(t, h)

	rec := h.get(t, "/messages/m3")
	require.Equal(t, http.StatusOK, rec.Code)
	m := decode[MessageResponse](t, rec)
	assert.Equal(t, "bye", m.Text)
	assert.Equal(t, "+14155550100", m.To)

	rec = h.get(t, "/messages/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "message not found", decode[ErrorResponse](t, rec).Detail)
}

func TestStats(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	rec := h.get(t, "/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"total_messages":0,"senders_count":0,"messages_per_sender":[],"first_message_ts":null,"last_message_ts":null}`, rec.Body.String())

	seed(t, h)
	st := decode[StatsResponse](t, h.get(t, "/stats"))
	assert.Equal(t, 5, st.TotalMessages)
	assert.Equal(t, 3, st.SendersCount)
	assert.Equal(t, []SenderCountResponse{
		{From: "+15550001", Count: 3},
		{From: "+15550002", Count: 1},
		{From: "+15550003", Count: 1},
	}, st.MessagesPerSender)
	require.NotNil(t, st.FirstMessageTS)
	require.NotNil(t, st.LastMessageTS)
	assert.Equal(t, "2025-01-15T10:00:00Z", *st.FirstMessageTS)
	assert.Equal(t, "2025-01-15T10:04:00Z", *st.LastMessageTS)
}

func TestHealth(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	rec := h.get(t, "/health/live")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "live", decode[StatusResponse](t, rec).Status)

	rec = h.get(t, "/health/ready")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", decode[StatusResponse](t, rec).Status)
}

func TestReadyFailsWithoutSecretOrStore(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	down := mocks.NewMockStore(ctrl)
	down.EXPECT().Ping(gomock.Any()).Return(message.ErrStoreUnavailable)

	rec := newHarnessWithStore(t, down, testSecret, Config{}).get(t, "/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "not ready", decode[ErrorResponse](t, rec).Detail)

	up := mocks.NewMockStore(ctrl)
	rec = newHarnessWithStore(t, up, "", Config{}).get(t, "/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsCountRequestsByRoute(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	seed(t, h)
	h.get(t, "/messages/m1")
	h.get(t, "/messages/m2")
	h.deliver(t, []byte(`{}`), "bad")
	replay := payload("m1", "+15550001", "2025-01-15T10:03:00Z", "Hello World")
	altered := payload("m1", "+15550001", "2025-01-15T10:03:00Z", "edited")
	h.deliver(t, replay, signed(replay))
	h.deliver(t, altered, signed(altered))

	rec := h.get(t, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	out := rec.Body.String()
	assert.Contains(t, out, `http_requests_total{path="/webhook",status="200"} 7`)
	assert.Contains(t, out, `http_requests_total{path="/webhook",status="401"} 1`)
	assert.Contains(t, out, `http_requests_total{path="/messages/{message_id}",status="200"} 2`)
	assert.Contains(t, out, `webhook_requests_total{result="created"} 5`)
	assert.Contains(t, out, `webhook_requests_total{result="invalid_signature"} 1`)
	assert.Contains(t, out, `webhook_requests_total{result="duplicate"} 2`)
	assert.Contains(t, out, `webhook_duplicate_mismatch_total 1`)
}

func TestRequestIDIsEchoed(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set("X-Request-Id", "abc-123")
	assert.Equal(t, "abc-123", h.do(t, req).Header().Get("X-Request-Id"))

	assert.Len(t, h.get(t, "/health/live").Header().Get("X-Request-Id"), 36)
}

func TestUnknownRouteAndMethod(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	assert.Equal(t, http.StatusNotFound, h.get(t, "/nope").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, h.get(t, "/webhook").Code)
}

func TestOpenAPIDocument(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	rec := h.get(t, "/openapi.json")
	require.Equal(t, http.StatusOK, rec.Code)
	doc := decode[map[string]any](t, rec)
	assert.Equal(t, "3.1.0", doc["openapi"])

	paths, ok := doc["paths"].(map[string]any)
	require.True(t, ok)
	for _, p := range []string{"/webhook", "/messages", "/messages/{message_id}", "/stats", "/health/live", "/health/ready"} {
		assert.Contains(t, paths, p)
	}
}

func TestTimestampsEchoInCanonicalForm(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	for id, ts := range map[string]string{
		"zero-fraction": "2025-01-15T10:00:00.000Z",
		"half-second":   "2025-01-15T10:00:00.500Z",
		"whole":         "2025-01-15T10:00:01Z",
	} {
		p := payload(id, "+15550001", ts, "hi")
		require.Equal(t, http.StatusOK, h.deliver(t, p, signed(p)).Code)
	}

	for id, want := range map[string]string{
		"zero-fraction": "2025-01-15T10:00:00Z",
		"half-second":   "2025-01-15T10:00:00.5Z",
		"whole":         "2025-01-15T10:00:01Z",
	} {
		rec := h.get(t, "/messages/"+id)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, want, decode[MessageResponse](t, rec).TS, id)
	}

	var schemas struct {
		Components struct {
			Schemas map[string]struct {
				Properties map[string]struct {
					Description string `json:"description"`
				} `json:"properties"`
			} `json:"schemas"`
		} `json:"components"`
	}
	require.NoError(t, json.NewDecoder(h.get(t, "/openapi.json").Body).Decode(&schemas))
	desc := schemas.Components.Schemas["Message"].Properties["ts"].Description
	assert.Contains(t, desc, "10:00:00.000Z as 10:00:00Z")
	assert.Equal(t, desc, schemas.Components.Schemas["Stats"].Properties["first_message_ts"].Description)
}

func TestClient(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	seed(t, h)

	ts := httptest.NewServer(h.handler)
	t.Cleanup(ts.Close)

	c := NewClient(ts.URL+"/", 0)
	st, err := c.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, st.TotalMessages)

	ready, err := c.Ready(context.Background())
	require.NoError(t, err)
	assert.True(t, ready)

	page, err := c.Messages(context.Background(), 2, 3)
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 3, page.Offset)
	assert.Len(t, page.Data, 2)

	err = c.getJSON(context.Background(), "/messages/missing", &MessageResponse{})
	assert.ErrorContains(t, err, "404 message not found")
}
