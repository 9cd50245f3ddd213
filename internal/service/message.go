package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sakif/slackdash/internal/apperror"
	"github.com/sakif/slackdash/internal/metrics"
	"github.com/sakif/slackdash/internal/model"
	"github.com/sakif/slackdash/internal/repository"
	"github.com/sakif/slackdash/internal/slackapi"
)

const (
	// MaxTextLength is Slack's limit for the text field; longer text is
	// truncated by Slack, so we refuse it instead.
	MaxTextLength = 40000

	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 500
)

// SlackGateway is the subset of slackapi.Client the lifecycle needs.
type SlackGateway interface {
	PostMessage(ctx context.Context, token, channel, text string) (*slackapi.PostResult, error)
	ScheduleMessage(ctx context.Context, token, channel, text string, postAt time.Time) (*slackapi.ScheduleResult, error)
	UpdateMessage(ctx context.Context, token, channel, ts, text string) error
	DeleteMessage(ctx context.Context, token, channel, ts string) error
	DeleteScheduledMessage(ctx context.Context, token, channel, scheduledID string) error
	ListChannels(ctx context.Context, token string) ([]model.Channel, error)
}

var _ SlackGateway = (*slackapi.Client)(nil)

// MessageService is the message lifecycle manager.
//
// Every operation acts for the active session user. Remote effects always
// come first: the local record changes only after Slack confirmed. A failed
// send or schedule is still recorded, as a "failed" entry carrying Slack's
// error.
type MessageService struct {
	sessions repository.SessionStore
	messages repository.MessageStore
	slack    SlackGateway
	logger   *slog.Logger
	now      func() time.Time
	inflight *inflight
}

// MessageOption configures a MessageService.
type MessageOption func(*MessageService)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) MessageOption {
	return func(s *MessageService) {
		s.now = now
	}
}

func NewMessageService(
	sessions repository.SessionStore,
	messages repository.MessageStore,
	slack SlackGateway,
	logger *slog.Logger,
	opts ...MessageOption,
) *MessageService {
	s := &MessageService{
		sessions: sessions,
		messages: messages,
		slack:    slack,
		logger:   logger,
		now:      time.Now,
		inflight: newInflight(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// =========================================================================
// SEND / SCHEDULE / DRAFT
// =========================================================================

// Send posts text to channel now and records it as sent.
func (s *MessageService) Send(ctx context.Context, channel, text string) (*model.Message, error) {
	channel, text, err := validateContent(channel, text)
	if err != nil {
		return nil, err
	}

	user, err := s.session(ctx)
	if err != nil {
		return nil, err
	}

	release, err := s.begin("send:"+user.ID, "send", user.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	res, err := s.slack.PostMessage(ctx, user.AccessToken, channel, text)
	if err != nil {
		s.recordFailure(ctx, user, channel, text, nil, "send", err)
		return nil, fmt.Errorf("service/message: sending: %w", err)
	}

	sentAt := s.now().UTC()
	msg := &model.Message{
		UserID:         user.ID,
		SlackMessageID: res.Timestamp,
		ChannelID:      resolvedChannel(res.Channel, channel),
		Text:           text,
		SentAt:         &sentAt,
		Status:         model.StatusSent,
	}
	if err := s.messages.Append(ctx, msg); err != nil {
		// Slack has the message; only our history is missing it.
		s.logger.ErrorContext(ctx, "message sent but not recorded",
			slog.String("channel", msg.ChannelID),
			slog.String("ts", res.Timestamp),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("service/message: recording sent message: %w", err)
	}

	metrics.MessageTransitions.WithLabelValues("send", string(model.StatusSent)).Inc()
	s.logger.InfoContext(ctx, "message sent",
		slog.String("id", msg.ID),
		slog.String("channel", msg.ChannelID),
	)
	return msg, nil
}

// Schedule asks Slack to post text at postAt. postAt must be strictly after
// now at one-second resolution; otherwise nothing is sent or stored.
func (s *MessageService) Schedule(ctx context.Context, channel, text string, postAt time.Time) (*model.Message, error) {
	channel, text, err := validateContent(channel, text)
	if err != nil {
		return nil, err
	}
	if err := s.validateFuture(postAt); err != nil {
		return nil, err
	}

	user, err := s.session(ctx)
	if err != nil {
		return nil, err
	}

	release, err := s.begin("schedule:"+user.ID, "schedule", user.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	res, err := s.slack.ScheduleMessage(ctx, user.AccessToken, channel, text, postAt)
	if err != nil {
		s.recordFailure(ctx, user, channel, text, &postAt, "schedule", err)
		return nil, fmt.Errorf("service/message: scheduling: %w", err)
	}

	scheduledAt := res.PostAt
	msg := &model.Message{
		UserID:         user.ID,
		SlackMessageID: res.ScheduledMessageID,
		ChannelID:      resolvedChannel(res.Channel, channel),
		Text:           text,
		ScheduledAt:    &scheduledAt,
		Status:         model.StatusScheduled,
	}
	if err := s.messages.Append(ctx, msg); err != nil {
		s.logger.ErrorContext(ctx, "message scheduled but not recorded",
			slog.String("channel", msg.ChannelID),
			slog.String("scheduledMessageID", res.ScheduledMessageID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("service/message: recording scheduled message: %w", err)
	}

	metrics.MessageTransitions.WithLabelValues("schedule", string(model.StatusScheduled)).Inc()
	s.logger.InfoContext(ctx, "message scheduled",
		slog.String("id", msg.ID),
		slog.String("channel", msg.ChannelID),
		slog.Time("postAt", scheduledAt),
	)
	return msg, nil
}

// SaveDraft records text locally without contacting Slack.
func (s *MessageService) SaveDraft(ctx context.Context, channel, text string) (*model.Message, error) {
	channel, text, err := validateContent(channel, text)
	if err != nil {
		return nil, err
	}

	user, err := s.session(ctx)
	if err != nil {
		return nil, err
	}

	msg := &model.Message{
		UserID:    user.ID,
		ChannelID: channel,
		Text:      text,
		Status:    model.StatusDraft,
	}
	if err := s.messages.Append(ctx, msg); err != nil {
		return nil, fmt.Errorf("service/message: saving draft: %w", err)
	}

	metrics.MessageTransitions.WithLabelValues("draft", string(model.StatusDraft)).Inc()
	return msg, nil
}

// =========================================================================
// EDIT / DELETE
// =========================================================================

// Edit replaces the text of a message.
//
//   - sent: chat.update first, local text only on success
//   - scheduled and still pending: Slack cannot edit a scheduled message,
//     so the old one is deleted and the new text scheduled for the same
//     time. If the delete worked but the new schedule did not, the record
//     becomes failed: the message no longer exists on Slack.
//   - scheduled but already due, or unknown to Slack: local only. Slack has
//     posted it and we never learn the ts, so there is nothing to update.
//   - draft, failed: local only
func (s *MessageService) Edit(ctx context.Context, id, text string) (*model.Message, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "message ID is required")
	}
	text, err := validateText(text)
	if err != nil {
		return nil, err
	}

	user, msg, release, err := s.claim(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	patch := model.MessagePatch{Text: &text}

	switch {
	case msg.Status == model.StatusSent && msg.SlackMessageID != "":
		if err := s.slack.UpdateMessage(ctx, user.AccessToken, msg.ChannelID, msg.SlackMessageID, text); err != nil {
			return nil, fmt.Errorf("service/message: editing %s: %w", id, err)
		}

	case msg.Status == model.StatusScheduled && msg.SlackMessageID != "" && !s.due(msg):
		var postAt time.Time
		if msg.ScheduledAt != nil {
			postAt = *msg.ScheduledAt
		}
		if err := s.validateFuture(postAt); err != nil {
			return nil, err
		}

		err := s.slack.DeleteScheduledMessage(ctx, user.AccessToken, msg.ChannelID, msg.SlackMessageID)
		if scheduledGone(err) {
			s.logger.InfoContext(ctx, "scheduled message already gone on slack, editing locally",
				slog.String("id", id),
			)
			break
		}
		if err != nil {
			return nil, fmt.Errorf("service/message: unscheduling %s: %w", id, err)
		}

		res, err := s.slack.ScheduleMessage(ctx, user.AccessToken, msg.ChannelID, text, postAt)
		if err != nil {
			s.markFailed(ctx, id, text, err)
			return nil, fmt.Errorf("service/message: rescheduling %s: %w", id, err)
		}
		patch.SlackMessageID = &res.ScheduledMessageID
	}

	updated, err := s.messages.Update(ctx, id, patch)
	if err != nil {
		return nil, fmt.Errorf("service/message: updating %s: %w", id, err)
	}

	metrics.MessageTransitions.WithLabelValues("edit", string(updated.Status)).Inc()
	s.logger.InfoContext(ctx, "message edited",
		slog.String("id", id),
		slog.String("status", string(updated.Status)),
	)
	return updated, nil
}

// Delete removes a message. Sent messages and still pending scheduled
// messages are deleted on Slack first; the local record is removed only if
// that succeeds. A scheduled message that is already due, or that Slack no
// longer knows, is removed locally.
func (s *MessageService) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return apperror.ValidationFailed("id", "message ID is required")
	}

	user, msg, release, err := s.claim(ctx, id)
	if err != nil {
		return err
	}
	defer release()

	switch {
	case msg.Status == model.StatusSent && msg.SlackMessageID != "":
		if err := s.slack.DeleteMessage(ctx, user.AccessToken, msg.ChannelID, msg.SlackMessageID); err != nil {
			return fmt.Errorf("service/message: deleting %s: %w", id, err)
		}
	case msg.Status == model.StatusScheduled && msg.SlackMessageID != "" && !s.due(msg):
		err := s.slack.DeleteScheduledMessage(ctx, user.AccessToken, msg.ChannelID, msg.SlackMessageID)
		if err != nil && !scheduledGone(err) {
			return fmt.Errorf("service/message: unscheduling %s: %w", id, err)
		}
	}

	if err := s.messages.Remove(ctx, id); err != nil {
		return fmt.Errorf("service/message: removing %s: %w", id, err)
	}

	metrics.MessageTransitions.WithLabelValues("delete", "removed").Inc()
	s.logger.InfoContext(ctx, "message deleted",
		slog.String("id", id),
		slog.String("previousStatus", string(msg.Status)),
	)
	return nil
}

// =========================================================================
// READS
// =========================================================================

// HistoryOptions filters and pages History.
type HistoryOptions struct {
	Status model.Status
	Limit  int
	Offset int
}

// History lists the session user's messages, newest first.
func (s *MessageService) History(ctx context.Context, opts HistoryOptions) ([]model.Message, error) {
	if opts.Status != "" && !opts.Status.Valid() {
		return nil, apperror.ValidationFailed("status", fmt.Sprintf("unknown status %q", opts.Status))
	}

	user, err := s.session(ctx)
	if err != nil {
		return nil, err
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	limit = min(limit, MaxHistoryLimit)

	msgs, err := s.messages.List(ctx, repository.ListOptions{
		UserID: user.ID,
		Status: opts.Status,
		Newest: true,
		Limit:  limit,
		Offset: max(opts.Offset, 0),
	})
	if err != nil {
		return nil, fmt.Errorf("service/message: listing: %w", err)
	}
	return msgs, nil
}

// Get returns one of the session user's messages.
func (s *MessageService) Get(ctx context.Context, id string) (*model.Message, error) {
	user, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	msg, err := s.messages.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if msg.UserID != user.ID {
		return nil, apperror.Forbidden("you do not own this message")
	}
	return msg, nil
}

// Stats returns the dashboard counters for the session user.
func (s *MessageService) Stats(ctx context.Context) (*model.Stats, error) {
	user, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	stats, err := s.messages.Stats(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/message: counting: %w", err)
	}
	return stats, nil
}

// Channels lists the channels the session token can post to.
func (s *MessageService) Channels(ctx context.Context) ([]model.Channel, error) {
	user, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	channels, err := s.slack.ListChannels(ctx, user.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("service/message: listing channels: %w", err)
	}
	return channels, nil
}

// ParseScheduleTime combines the dashboard's date ("2006-01-02") and time
// ("15:04") fields in loc. A nil loc means UTC.
func ParseScheduleTime(date, clock string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	date, clock = strings.TrimSpace(date), strings.TrimSpace(clock)
	if date == "" || clock == "" {
		return time.Time{}, apperror.ValidationFailed("post_at", "date and time are required")
	}
	t, err := time.ParseInLocation("2006-01-02 15:04", date+" "+clock, loc)
	if err != nil {
		return time.Time{}, apperror.ValidationFailed("post_at",
			fmt.Sprintf("invalid date/time %q %q, want YYYY-MM-DD and HH:MM", date, clock))
	}
	return t, nil
}

// =========================================================================
// HELPERS
// =========================================================================

func (s *MessageService) session(ctx context.Context) (*model.User, error) {
	user, err := s.sessions.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/message: loading session: %w", err)
	}
	if user == nil {
		return nil, apperror.Unauthorized("no active Slack session")
	}
	return user, nil
}

func (s *MessageService) begin(key, resource, id string) (func(), error) {
	release, ok := s.inflight.acquire(key)
	if !ok {
		return nil, &apperror.AppError{
			Err:     apperror.ErrConflict,
			Message: fmt.Sprintf("%s %s is already in progress", resource, id),
		}
	}
	return release, nil
}

// claim loads a message for the session user and holds its in-flight key.
// On success the caller must call release.
func (s *MessageService) claim(ctx context.Context, id string) (*model.User, *model.Message, func(), error) {
	user, err := s.session(ctx)
	if err != nil {
		return nil, nil, nil, err
	}

	release, err := s.begin("message:"+id, "message", id)
	if err != nil {
		return nil, nil, nil, err
	}

	msg, err := s.messages.Get(ctx, id)
	if err != nil {
		release()
		return nil, nil, nil, err
	}
	if msg.UserID != user.ID {
		release()
		return nil, nil, nil, apperror.Forbidden("you do not own this message")
	}
	return user, msg, release, nil
}

// due reports whether a scheduled record's post time has been reached, at
// which point Slack has posted it and no longer lists it as scheduled.
func (s *MessageService) due(msg *model.Message) bool {
	return msg.ScheduledAt != nil && msg.ScheduledAt.Unix() <= s.now().Unix()
}

// scheduledGone is Slack saying the scheduled message id is unknown: it
// was posted already or deleted outside the dashboard.
func scheduledGone(err error) bool {
	return apperror.CodeOf(err) == "invalid_scheduled_message_id"
}

func (s *MessageService) validateFuture(postAt time.Time) error {
	if postAt.IsZero() || postAt.Unix() <= s.now().Unix() {
		return apperror.InvalidScheduleTime(postAt)
	}
	return nil
}

// recordFailure appends a failed record for a send or schedule that Slack
// rejected or that never reached Slack. Storage errors are logged only: the
// caller is already returning the original failure.
func (s *MessageService) recordFailure(ctx context.Context, user *model.User, channel, text string, scheduledAt *time.Time, op string, cause error) {
	if !errors.Is(cause, apperror.ErrRemote) && !errors.Is(cause, apperror.ErrTransport) {
		return
	}

	msg := &model.Message{
		UserID:      user.ID,
		ChannelID:   channel,
		Text:        text,
		ScheduledAt: scheduledAt,
		Status:      model.StatusFailed,
		Error:       failureReason(cause),
	}
	if err := s.messages.Append(ctx, msg); err != nil {
		s.logger.ErrorContext(ctx, "failed to record failed message",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
		return
	}

	metrics.MessageTransitions.WithLabelValues(op, string(model.StatusFailed)).Inc()
	s.logger.WarnContext(ctx, "message failed",
		slog.String("op", op),
		slog.String("id", msg.ID),
		slog.String("reason", msg.Error),
	)
}

// markFailed turns a record whose remote message is gone into a failed one.
func (s *MessageService) markFailed(ctx context.Context, id, text string, cause error) {
	status := model.StatusFailed
	empty := ""
	reason := failureReason(cause)
	_, err := s.messages.Update(ctx, id, model.MessagePatch{
		Text:           &text,
		Status:         &status,
		SlackMessageID: &empty,
		Error:          &reason,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to mark message failed",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return
	}
	metrics.MessageTransitions.WithLabelValues("edit", string(model.StatusFailed)).Inc()
}

// failureReason is Slack's error code when there is one, else the generic
// message of the error.
func failureReason(err error) string {
	if code := apperror.CodeOf(err); code != "" {
		return code
	}
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "unknown error"
}

// resolvedChannel prefers the channel ID Slack echoed back: the caller may
// have passed a name, and chat.update/chat.delete need the ID.
func resolvedChannel(fromSlack, requested string) string {
	if fromSlack != "" {
		return fromSlack
	}
	return requested
}

func validateContent(channel, text string) (string, string, error) {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return "", "", apperror.ValidationFailed("channel", "channel is required")
	}
	text, err := validateText(text)
	if err != nil {
		return "", "", err
	}
	return channel, text, nil
}

func validateText(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", apperror.ValidationFailed("text", "text is required")
	}
	if utf8.RuneCountInString(text) > MaxTextLength {
		return "", apperror.ValidationFailed("text",
			fmt.Sprintf("text must be %d characters or less", MaxTextLength))
	}
	return text, nil
}
