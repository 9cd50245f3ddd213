package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"
	_ "time/tzdata" // schedule requests name arbitrary IANA zones

	"github.com/go-chi/chi/v5"

	"github.com/sakif/slackdash/internal/apperror"
	"github.com/sakif/slackdash/internal/model"
	"github.com/sakif/slackdash/internal/service"
)

// MessageLifecycle is what MessageHandler needs from service.MessageService.
type MessageLifecycle interface {
	Send(ctx context.Context, channel, text string) (*model.Message, error)
	Schedule(ctx context.Context, channel, text string, postAt time.Time) (*model.Message, error)
	SaveDraft(ctx context.Context, channel, text string) (*model.Message, error)
	Edit(ctx context.Context, id, text string) (*model.Message, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*model.Message, error)
	History(ctx context.Context, opts service.HistoryOptions) ([]model.Message, error)
	Stats(ctx context.Context) (*model.Stats, error)
	Channels(ctx context.Context) ([]model.Channel, error)
}

// MessageHandler serves the dashboard's message routes. Every route sits
// behind RequireAuth + RequireSession; the service resolves the session
// user itself.
type MessageHandler struct {
	messages MessageLifecycle
}

func NewMessageHandler(messages MessageLifecycle) *MessageHandler {
	return &MessageHandler{messages: messages}
}

type messageRequest struct {
	Channel string `json:"channel"`
	Text    string `json:"text"`
}

// scheduleRequest accepts either post_at (unix seconds) or the dashboard's
// separate date and time inputs plus an IANA timezone.
type scheduleRequest struct {
	Channel  string `json:"channel"`
	Text     string `json:"text"`
	PostAt   *int64 `json:"post_at,omitempty"`
	Date     string `json:"date,omitempty"`     // 2006-01-02
	Time     string `json:"time,omitempty"`     // 15:04
	Timezone string `json:"timezone,omitempty"` // e.g. Europe/Berlin, default UTC
}

func (req scheduleRequest) postAt() (time.Time, error) {
	if req.PostAt != nil {
		return time.Unix(*req.PostAt, 0).UTC(), nil
	}
	loc := time.UTC
	if req.Timezone != "" {
		l, err := time.LoadLocation(req.Timezone)
		if err != nil {
			return time.Time{}, apperror.ValidationFailed("timezone", "unknown timezone "+strconv.Quote(req.Timezone))
		}
		loc = l
	}
	return service.ParseScheduleTime(req.Date, req.Time, loc)
}

type editRequest struct {
	Text string `json:"text"`
}

// HandleSend posts a message now.
//
// HTTP: POST /api/messages
// Body: {"channel": "C123", "text": "hi"}
func (h *MessageHandler) HandleSend(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	msg, err := h.messages.Send(r.Context(), req.Channel, req.Text)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// HandleSchedule schedules a message on Slack.
//
// HTTP: POST /api/messages/schedule
func (h *MessageHandler) HandleSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	postAt, err := req.postAt()
	if err != nil {
		writeError(w, r, err)
		return
	}

	msg, err := h.messages.Schedule(r.Context(), req.Channel, req.Text, postAt)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// HandleSaveDraft stores a draft locally.
//
// HTTP: POST /api/messages/drafts
func (h *MessageHandler) HandleSaveDraft(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	msg, err := h.messages.SaveDraft(r.Context(), req.Channel, req.Text)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// HandleList returns the history, newest first.
//
// HTTP: GET /api/messages?status=sent&limit=20&offset=0
func (h *MessageHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := service.HistoryOptions{Status: model.Status(q.Get("status"))}

	var err error
	if opts.Limit, err = intParam(q.Get("limit"), "limit"); err != nil {
		writeError(w, r, err)
		return
	}
	if opts.Offset, err = intParam(q.Get("offset"), "offset"); err != nil {
		writeError(w, r, err)
		return
	}

	msgs, err := h.messages.History(r.Context(), opts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

// HandleGet returns one message.
//
// HTTP: GET /api/messages/{id}
func (h *MessageHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	msg, err := h.messages.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// HandleEdit changes a message's text.
//
// HTTP: PATCH /api/messages/{id}
// Body: {"text": "new text"}
func (h *MessageHandler) HandleEdit(w http.ResponseWriter, r *http.Request) {
	var req editRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	msg, err := h.messages.Edit(r.Context(), chi.URLParam(r, "id"), req.Text)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// HandleDelete deletes a message on Slack (if it got there) and locally.
//
// HTTP: DELETE /api/messages/{id}
func (h *MessageHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.messages.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleStats returns the dashboard counters.
//
// HTTP: GET /api/stats
func (h *MessageHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.messages.Stats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// HandleChannels lists the channels for the channel picker.
//
// HTTP: GET /api/channels
func (h *MessageHandler) HandleChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := h.messages.Channels(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, channels)
}

func intParam(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperror.ValidationFailed(name, name+" must be a non-negative integer")
	}
	return n, nil
}
