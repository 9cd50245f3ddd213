// Package logging builds the process logger.
//
// Every handler gets masq as ReplaceAttr, so secrets are redacted no matter
// which package logs them:
//   - struct fields tagged `masq:"secret"` (model.User.AccessToken)
//   - any string containing a Slack token prefix (xoxp-, xoxb-, ...)
//   - attributes named like a secret (client_secret, access_token, ...)
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/m-mizutani/masq"
)

// Format values accepted by New.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// slackTokenPrefixes covers user, bot, app-level, refresh and config tokens.
var slackTokenPrefixes = []string{"xoxp-", "xoxb-", "xoxa-", "xoxe-", "xapp-"}

var secretFieldNames = []string{
	"access_token", "AccessToken",
	"client_secret", "clientSecret",
	"session_secret", "SessionSecret",
	"token", "Token",
}

// New returns a logger writing to w. level is one of debug, info, warn,
// error; format is text or json.
func New(level, format string, w io.Writer) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("logging: invalid level %q: %w", level, err)
	}

	opts := &slog.HandlerOptions{
		Level:       lvl,
		ReplaceAttr: Redactor(),
	}

	switch strings.ToLower(format) {
	case FormatText, "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case FormatJSON:
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("logging: invalid format %q, want text or json", format)
	}
}

// Redactor returns the masq ReplaceAttr used by New.
func Redactor() func(groups []string, a slog.Attr) slog.Attr {
	opts := []masq.Option{
		masq.WithTag("secret"),
	}
	for _, p := range slackTokenPrefixes {
		opts = append(opts, masq.WithContain(p))
	}
	for _, name := range secretFieldNames {
		opts = append(opts, masq.WithFieldName(name))
	}
	return masq.New(opts...)
}
