package api

import (
	"time"

	"github.com/samber/lo"

	"github.com/mattjoyce/inbox/internal/message"
)

// MessageResponse is the wire form of a stored message.
type MessageResponse struct {
	MessageID  string `json:"message_id"`
	From       string `json:"from"`
	To         string `json:"to"`
	TS         string `json:"ts"`
	Text       string `json:"text"`
	ReceivedAt string `json:"received_at"`
}

// ListResponse is returned by GET /messages.
type ListResponse struct {
	Data   []MessageResponse `json:"data"`
	Total  int               `json:"total"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
}

// SenderCountResponse is one entry of StatsResponse.MessagesPerSender.
type SenderCountResponse struct {
	From  string `json:"from"`
	Count int    `json:"count"`
}

// StatsResponse is returned by GET /stats. The timestamps are null when no
// message has been stored.
type StatsResponse struct {
	TotalMessages     int                   `json:"total_messages"`
	SendersCount      int                   `json:"senders_count"`
	MessagesPerSender []SenderCountResponse `json:"messages_per_sender"`
	FirstMessageTS    *string               `json:"first_message_ts"`
	LastMessageTS     *string               `json:"last_message_ts"`
}

// StatusResponse carries a single status word.
type StatusResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is returned on errors.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// formatTime renders the canonical form described by timestampRendering.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func toMessageResponse(m message.Message) MessageResponse {
	return MessageResponse{
		MessageID:  m.ID,
		From:       m.From,
		To:         m.To,
		TS:         formatTime(m.Timestamp),
		Text:       m.Text,
		ReceivedAt: formatTime(m.ReceivedAt),
	}
}

func toStatsResponse(st message.Stats) StatsResponse {
	return StatsResponse{
		TotalMessages: st.Total,
		SendersCount:  st.Senders,
		MessagesPerSender: lo.Map(st.PerSender, func(sc message.SenderCount, _ int) SenderCountResponse {
			return SenderCountResponse{From: sc.From, Count: sc.Count}
		}),
		FirstMessageTS: formatTimePtr(st.First),
		LastMessageTS:  formatTimePtr(st.Last),
	}
}
