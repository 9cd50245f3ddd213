// Package slackapi is the only place that talks to the Slack Web API.
//
// It wraps github.com/slack-go/slack and turns every answer into one of
// three outcomes the rest of the app understands:
//
//	success          → a small result struct
//	ok:false         → apperror.ErrRemote, carrying Slack's error string
//	anything else    → apperror.ErrTransport (network, status, decoding)
//
// Required arguments are checked before any request is made, so a missing
// token or empty text is an apperror.ErrValidation and costs no round trip.
// Calls are made once: no retries, and no timeout beyond the HTTP client's.
package slackapi

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"github.com/sakif/slackdash/internal/apperror"
	"github.com/sakif/slackdash/internal/model"
)

// Client performs user-token Web API calls. It holds no token itself: each
// call builds a short-lived *slack.Client for the token it is given, because
// the token belongs to the session, not to the process.
type Client struct {
	apiURL     string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option is a functional option for Client configuration.
type Option func(*Client)

// WithAPIURL points the client at another Web API root, e.g. a local mock.
func WithAPIURL(u string) Option {
	return func(c *Client) {
		if u != "" && !strings.HasSuffix(u, "/") {
			u += "/"
		}
		c.apiURL = u
	}
}

// WithHTTPClient replaces the HTTP client used for every call.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger for call failures.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// New creates a Client talking to slack.com.
func New(opts ...Option) *Client {
	c := &Client{
		apiURL:     slack.APIURL,
		httpClient: &http.Client{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.apiURL == "" {
		c.apiURL = slack.APIURL
	}
	return c
}

func (c *Client) api(token string) *slack.Client {
	return slack.New(token,
		slack.OptionAPIURL(c.apiURL),
		slack.OptionHTTPClient(c.httpClient),
	)
}

// PostResult is what chat.postMessage gives back.
type PostResult struct {
	Channel   string `json:"channel"`
	Timestamp string `json:"ts"` // Slack's message id within the channel
}

// ScheduleResult is what chat.scheduleMessage gives back.
type ScheduleResult struct {
	Channel            string    `json:"channel"`
	ScheduledMessageID string    `json:"scheduled_message_id"`
	PostAt             time.Time `json:"post_at"`
}

// PostMessage sends text to channel immediately.
func (c *Client) PostMessage(ctx context.Context, token, channel, text string) (*PostResult, error) {
	const method = "chat.postMessage"
	if err := requireFields(
		field{"token", token},
		field{"channel", channel},
		field{"text", text},
	); err != nil {
		return nil, err
	}

	ch, ts, err := c.api(token).PostMessageContext(ctx, channel, slack.MsgOptionText(text, false))
	if err := c.observe(ctx, method, err); err != nil {
		return nil, err
	}
	return &PostResult{Channel: ch, Timestamp: ts}, nil
}

// ScheduleMessage asks Slack to post text at postAt. Slack takes whole
// seconds; sub-second precision is dropped.
func (c *Client) ScheduleMessage(ctx context.Context, token, channel, text string, postAt time.Time) (*ScheduleResult, error) {
	const method = "chat.scheduleMessage"
	if err := requireFields(
		field{"token", token},
		field{"channel", channel},
		field{"text", text},
	); err != nil {
		return nil, err
	}
	if postAt.IsZero() {
		return nil, apperror.ValidationFailed("post_at", "post_at is required")
	}

	unix := postAt.Unix()
	ch, id, err := c.api(token).ScheduleMessageContext(ctx, channel,
		strconv.FormatInt(unix, 10),
		slack.MsgOptionText(text, false),
	)
	if err := c.observe(ctx, method, err); err != nil {
		return nil, err
	}
	return &ScheduleResult{
		Channel:            ch,
		ScheduledMessageID: id,
		PostAt:             time.Unix(unix, 0).UTC(),
	}, nil
}

// UpdateMessage replaces the text of a posted message.
func (c *Client) UpdateMessage(ctx context.Context, token, channel, ts, text string) error {
	const method = "chat.update"
	if err := requireFields(
		field{"token", token},
		field{"channel", channel},
		field{"ts", ts},
		field{"text", text},
	); err != nil {
		return err
	}

	_, _, _, err := c.api(token).UpdateMessageContext(ctx, channel, ts, slack.MsgOptionText(text, false))
	return c.observe(ctx, method, err)
}

// DeleteMessage removes a posted message.
func (c *Client) DeleteMessage(ctx context.Context, token, channel, ts string) error {
	const method = "chat.delete"
	if err := requireFields(
		field{"token", token},
		field{"channel", channel},
		field{"ts", ts},
	); err != nil {
		return err
	}

	_, _, err := c.api(token).DeleteMessageContext(ctx, channel, ts)
	return c.observe(ctx, method, err)
}

// DeleteScheduledMessage cancels a message that has not been posted yet.
func (c *Client) DeleteScheduledMessage(ctx context.Context, token, channel, scheduledID string) error {
	const method = "chat.deleteScheduledMessage"
	if err := requireFields(
		field{"token", token},
		field{"channel", channel},
		field{"scheduled_message_id", scheduledID},
	); err != nil {
		return err
	}

	_, err := c.api(token).DeleteScheduledMessageContext(ctx, &slack.DeleteScheduledMessageParameters{
		Channel:            channel,
		ScheduledMessageID: scheduledID,
	})
	return c.observe(ctx, method, err)
}

// ListChannels pages through conversations.list for the public,
// non-archived channels the token can see.
func (c *Client) ListChannels(ctx context.Context, token string) ([]model.Channel, error) {
	const method = "conversations.list"
	if err := requireFields(field{"token", token}); err != nil {
		return nil, err
	}

	api := c.api(token)
	channels := make([]model.Channel, 0)
	cursor := ""
	for {
		convs, next, err := api.GetConversationsContext(ctx, &slack.GetConversationsParameters{
			Types:           []string{"public_channel"},
			ExcludeArchived: true,
			Limit:           200,
			Cursor:          cursor,
		})
		if err := c.observe(ctx, method, err); err != nil {
			return nil, err
		}

		for _, conv := range convs {
			channels = append(channels, model.Channel{ID: conv.ID, Name: conv.Name})
		}

		if next == "" {
			break
		}
		cursor = next
	}
	return channels, nil
}

type field struct {
	name  string
	value string
}

func requireFields(fields ...field) error {
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return apperror.ValidationFailed(f.name, f.name+" is required")
		}
	}
	return nil
}
