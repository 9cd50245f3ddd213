package slackapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/slack-go/slack"
)

// maxRelayBody caps how much of Slack's answer is read back.
const maxRelayBody = 1 << 20

// RelayPostMessage calls chat.postMessage and returns Slack's response body
// unchanged, so the relay endpoint can hand back fields (message, warning,
// response_metadata) that PostMessage does not model.
//
// Errors are classified like every other call: ok:false is a remote error
// with Slack's code, anything that is not a decodable 200 is a transport
// error.
func (c *Client) RelayPostMessage(ctx context.Context, token, channel, text string) (json.RawMessage, error) {
	const method = "chat.postMessage"
	if err := requireFields(
		field{"token", token},
		field{"channel", channel},
		field{"text", text},
	); err != nil {
		return nil, err
	}

	body, err := c.postForm(ctx, token, method, url.Values{
		"channel": {channel},
		"text":    {text},
	})
	if err := c.observe(ctx, method, err); err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Client) postForm(ctx context.Context, token, method string, form url.Values) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+method, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, goerr.Wrap(err, "building request", goerr.V("method", method))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+token)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusTooManyRequests {
		retry, _ := strconv.Atoi(res.Header.Get("Retry-After"))
		return nil, &slack.RateLimitedError{RetryAfter: time.Duration(retry) * time.Second}
	}
	if res.StatusCode != http.StatusOK {
		return nil, slack.StatusCodeError{Code: res.StatusCode, Status: res.Status}
	}

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxRelayBody))
	if err != nil {
		return nil, err
	}

	var status slack.SlackResponse
	if err := json.Unmarshal(raw, &status); err != nil {
		return nil, goerr.Wrap(err, "decoding response", goerr.V("method", method))
	}
	if !status.Ok {
		code := status.Error
		if code == "" {
			code = "unknown_error"
		}
		return nil, slack.SlackErrorResponse{Err: code, ResponseMetadata: status.ResponseMetadata}
	}
	return json.RawMessage(raw), nil
}
