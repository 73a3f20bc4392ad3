package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"

	"github.com/mattjoyce/inbox/internal/message"
	"github.com/mattjoyce/inbox/internal/webhook"
)

const readyTimeout = 2 * time.Second

// handleWebhook handles POST /webhook. New and duplicate deliveries both
// answer 200 so senders stop retrying.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, s.config.MaxBodySize+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if int64(len(body)) > s.config.MaxBodySize {
		writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	outcome, err := s.ingest.Ingest(r.Context(), body, r.Header.Get(s.config.SignatureHeader))
	var perr *webhook.PayloadError
	switch {
	case err == nil:
		s.logger.Debug("webhook accepted", "outcome", outcome.String())
		respondJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
	case errors.Is(err, webhook.ErrInvalidSignature):
		s.logger.Warn("webhook signature verification failed", "remote_addr", r.RemoteAddr)
		writeError(w, http.StatusUnauthorized, "invalid signature")
	case errors.As(err, &perr):
		writeError(w, http.StatusBadRequest, perr.Error())
	case errors.Is(err, webhook.ErrMalformedPayload):
		writeError(w, http.StatusBadRequest, "malformed payload")
	case errors.Is(err, message.ErrStoreUnavailable):
		s.logger.Error("failed to store webhook message", "error", err)
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
	default:
		s.logger.Error("webhook ingestion failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// handleListMessages handles GET /messages.
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, err := intParam(q.Get("limit"), s.messages.DefaultLimit())
	if err != nil {
		writeError(w, http.StatusBadRequest, "limit must be an integer")
		return
	}
	offset, err := intParam(q.Get("offset"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "offset must be an integer")
		return
	}

	f := message.Filter{From: q.Get("from"), TextContains: q.Get("q")}
	if raw := q.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be an RFC 3339 timestamp")
			return
		}
		f.Since = &since
	}

	page := message.Page{Limit: limit, Offset: offset, Sort: message.SortOrder(q.Get("sort"))}
	res, err := s.messages.List(r.Context(), f, page)
	if err != nil {
		s.writeReadError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, ListResponse{
		Data:   lo.Map(res.Items, func(m message.Message, _ int) MessageResponse { return toMessageResponse(m) }),
		Total:  res.Total,
		Limit:  limit,
		Offset: offset,
	})
}

// handleGetMessage handles GET /messages/{message_id}.
func (s *Server) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	m, err := s.messages.Get(r.Context(), chi.URLParam(r, "message_id"))
	if err != nil {
		s.writeReadError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toMessageResponse(m))
}

// handleStats handles GET /stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.stats.Snapshot(r.Context())
	if err != nil {
		s.writeReadError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toStatsResponse(st))
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, StatusResponse{Status: "live"})
}

// handleReady reports ready only when a secret is configured and the store
// answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	if !s.ingest.Ready() {
		writeError(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("readiness check failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	respondJSON(w, http.StatusOK, StatusResponse{Status: "ready"})
}

func (s *Server) writeReadError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, message.ErrInvalidQuery):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, message.ErrNotFound):
		writeError(w, http.StatusNotFound, "message not found")
	case errors.Is(err, message.ErrStoreUnavailable):
		s.logger.Error("store read failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
	default:
		s.logger.Error("read failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

// respondJSON writes a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, detail string) {
	respondJSON(w, statusCode, ErrorResponse{Detail: detail})
}
