package slackapi

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
)

// fakeSlack is an httptest stand-in for https://slack.com/api/.
//
// Responses are canned per Web API method and served in the order given. Every request is recorded so a
// test can assert what was sent, and, just as often, that nothing was sent.
type fakeSlack struct {
	mu        sync.Mutex
	calls     []slackCall
	responses map[string][]string
	statuses  map[string]int
}

type slackCall struct {
	method string
	form   url.Values
	auth   string
}

// token returns the bearer token of a call, from the header or the form
// depending on how the client library sent it.
func (c slackCall) token() string {
	if t, ok := strings.CutPrefix(c.auth, "Bearer "); ok {
		return t
	}
	return c.form.Get("token")
}

func (f *fakeSlack) respond(method, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[method] = append(f.responses[method], body)
}

func (f *fakeSlack) fail(method string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[method] = status
}

func (f *fakeSlack) callsTo(method string) []slackCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []slackCall
	for _, c := range f.calls {
		if c.method == method {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeSlack) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeSlack) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	method := strings.TrimPrefix(r.URL.Path, "/api/")
	_ = r.ParseForm()

	f.mu.Lock()
	f.calls = append(f.calls, slackCall{method: method, form: r.Form, auth: r.Header.Get("Authorization")})
	queue, ok := f.responses[method]
	var body string
	if ok {
		// canned bodies are served in order; the last one repeats
		body = queue[0]
		if len(queue) > 1 {
			f.responses[method] = queue[1:]
		}
	}
	status := f.statuses[method]
	f.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		io.WriteString(w, "upstream exploded")
		return
	}
	if !ok {
		body = `{"ok":false,"error":"unknown_method"}`
	}
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, body)
}

// rewriteTransport sends every request to the fake server whatever host the
// caller aimed at. oauth.v2.access is always built from slack.APIURL, so
// redirecting at the transport is the only way to intercept it.
type rewriteTransport struct {
	target *url.URL
}

func (rt rewriteTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.URL.Scheme = rt.target.Scheme
	r.URL.Host = rt.target.Host
	r.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(r)
}

// newTestClient starts a fake Slack and returns a Client wired to it.
func newTestClient(t *testing.T) (*Client, *fakeSlack) {
	t.Helper()
	fake := &fakeSlack{
		responses: make(map[string][]string),
		statuses:  make(map[string]int),
	}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	target, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parsing fake server url: %v", err)
	}

	client := New(
		WithHTTPClient(&http.Client{Transport: rewriteTransport{target: target}}),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	return client, fake
}
