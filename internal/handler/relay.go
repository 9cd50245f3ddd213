package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
)

// MessagePoster posts a message with a caller-supplied token and returns
// Slack's response body. slackapi.Client implements it.
type MessagePoster interface {
	RelayPostMessage(ctx context.Context, token, channel, text string) (json.RawMessage, error)
}

// RelayHandler is the stateless send-message proxy. It needs no session:
// the caller brings its own Slack token, and nothing is recorded locally.
type RelayHandler struct {
	slack  MessagePoster
	logger *slog.Logger
}

func NewRelayHandler(slack MessagePoster, logger *slog.Logger) *RelayHandler {
	return &RelayHandler{slack: slack, logger: logger}
}

type sendMessageRequest struct {
	Token   string `json:"token"`
	Channel string `json:"channel"`
	Text    string `json:"text"`
}

// HandleSendMessage relays chat.postMessage.
//
// HTTP: POST /api/slack/send-message
// Body: {"token": "xoxp-...", "channel": "C123", "text": "hi"}
//
// On success the body is Slack's chat.postMessage response as received.
// Missing fields fail with 400 before Slack is contacted. A Slack rejection
// is a 400 carrying Slack's error code.
func (h *RelayHandler) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	raw, err := h.slack.RelayPostMessage(r.Context(), req.Token, req.Channel, req.Text)
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "relayed message", slog.String("channel", req.Channel))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(raw)
}
