package handler_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sakif/slackdash/internal/model"
	"github.com/sakif/slackdash/internal/service"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSessions struct {
	loginRes   *service.LoginResult
	loginErr   error
	user       *model.User
	authErr    error
	logoutErr  error
	loggedOut  bool
	loginCodes []string
	authorized []string
}

func (f *fakeSessions) Login(ctx context.Context, code string) (*service.LoginResult, error) {
	f.loginCodes = append(f.loginCodes, code)
	return f.loginRes, f.loginErr
}

func (f *fakeSessions) Authorize(ctx context.Context, userID string) (*model.User, error) {
	f.authorized = append(f.authorized, userID)
	if f.authErr != nil {
		return nil, f.authErr
	}
	return f.user, nil
}

func (f *fakeSessions) Logout(ctx context.Context) error {
	f.loggedOut = true
	return f.logoutErr
}

type fakeAuthURL struct{}

func (fakeAuthURL) AuthURL(state string) string {
	return "https://slack.com/oauth/v2/authorize?state=" + state
}

type fakePoster struct {
	res  json.RawMessage
	err  error
	args []string
}

func (f *fakePoster) RelayPostMessage(ctx context.Context, token, channel, text string) (json.RawMessage, error) {
	f.args = []string{token, channel, text}
	return f.res, f.err
}

// fakeLifecycle returns msg (or err) from every call and records what it
// was asked.
type fakeLifecycle struct {
	msg      *model.Message
	msgs     []model.Message
	stats    *model.Stats
	channels []model.Channel
	err      error

	lastID     string
	lastText   string
	lastPostAt time.Time
	lastOpts   service.HistoryOptions
}

func (f *fakeLifecycle) Send(ctx context.Context, channel, text string) (*model.Message, error) {
	f.lastText = text
	return f.msg, f.err
}

func (f *fakeLifecycle) Schedule(ctx context.Context, channel, text string, postAt time.Time) (*model.Message, error) {
	f.lastText, f.lastPostAt = text, postAt
	return f.msg, f.err
}

func (f *fakeLifecycle) SaveDraft(ctx context.Context, channel, text string) (*model.Message, error) {
	f.lastText = text
	return f.msg, f.err
}

func (f *fakeLifecycle) Edit(ctx context.Context, id, text string) (*model.Message, error) {
	f.lastID, f.lastText = id, text
	return f.msg, f.err
}

func (f *fakeLifecycle) Delete(ctx context.Context, id string) error {
	f.lastID = id
	return f.err
}

func (f *fakeLifecycle) Get(ctx context.Context, id string) (*model.Message, error) {
	f.lastID = id
	return f.msg, f.err
}

func (f *fakeLifecycle) History(ctx context.Context, opts service.HistoryOptions) ([]model.Message, error) {
	f.lastOpts = opts
	return f.msgs, f.err
}

func (f *fakeLifecycle) Stats(ctx context.Context) (*model.Stats, error) {
	return f.stats, f.err
}

func (f *fakeLifecycle) Channels(ctx context.Context) ([]model.Channel, error) {
	return f.channels, f.err
}

func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return strings.NewReader(string(b))
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m), rec.Body.String())
	return m
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func stringsReader(s string) io.Reader {
	return strings.NewReader(s)
}
