// Package client is a small Go client for the slackdash HTTP API, used by
// slackctl. It speaks the same two relay endpoints the browser dashboard
// uses to log in and send messages.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/sakif/slackdash/internal/model"
)

// APIError is a non-2xx answer from the backend. Code is the "error" field:
// Slack's own error string for rejected calls, or one of the backend's kinds.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("slackdash: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("slackdash: %d %s", e.Status, e.Code)
}

// Client calls a slackdash backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Exchange trades an OAuth code for the Slack user and token.
//
// POST /api/slack/oauth
func (c *Client) Exchange(ctx context.Context, code string) (*model.User, error) {
	var resp struct {
		OK   bool        `json:"ok"`
		User *model.User `json:"user"`
	}
	if err := c.post(ctx, "/api/slack/oauth", map[string]string{"code": code}, &resp); err != nil {
		return nil, err
	}
	if resp.User == nil {
		return nil, goerr.New("slackdash: oauth response without user")
	}
	return resp.User, nil
}

// SendResult is the relay's answer.
type SendResult struct {
	OK      bool   `json:"ok"`
	Channel string `json:"channel"`
	TS      string `json:"ts"`
}

// Send posts text to channel with the given user token.
//
// POST /api/slack/send-message
func (c *Client) Send(ctx context.Context, token, channel, text string) (*SendResult, error) {
	var resp SendResult
	body := map[string]string{"token": token, "channel": channel, "text": text}
	if err := c.post(ctx, "/api/slack/send-message", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return goerr.Wrap(err, "encoding request", goerr.V("path", path))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return goerr.Wrap(err, "building request", goerr.V("path", path))
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return goerr.Wrap(err, "calling slackdash", goerr.V("path", path))
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return goerr.Wrap(err, "reading response", goerr.V("path", path))
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		apiErr := &APIError{Status: res.StatusCode, Code: http.StatusText(res.StatusCode)}
		var errBody struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &errBody) == nil && errBody.Error != "" {
			apiErr.Code = errBody.Error
			apiErr.Message = errBody.Message
		}
		return apiErr
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return goerr.Wrap(err, "decoding response", goerr.V("path", path), goerr.V("status", res.StatusCode))
	}
	return nil
}
