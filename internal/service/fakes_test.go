package service

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/sakif/slackdash/internal/apperror"
	"github.com/sakif/slackdash/internal/model"
	"github.com/sakif/slackdash/internal/repository"
	"github.com/sakif/slackdash/internal/slackapi"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSessions is an in-memory repository.SessionStore. IDs are stable per
// (team, slack id) the same way the sqlite store keeps them.
type fakeSessions struct {
	mu      sync.Mutex
	current *model.User
	ids     map[string]string
	getErr  error
	setErr  error
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{ids: make(map[string]string)}
}

func (f *fakeSessions) Get(ctx context.Context) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.current == nil {
		return nil, nil
	}
	u := *f.current
	return &u, nil
}

func (f *fakeSessions) Set(ctx context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	key := user.TeamID + "/" + user.SlackID
	id, ok := f.ids[key]
	if !ok {
		id = "user-" + strconv.Itoa(len(f.ids)+1)
		f.ids[key] = id
	}
	user.ID = id
	u := *user
	f.current = &u
	return nil
}

func (f *fakeSessions) Clear(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = nil
	return nil
}

// login puts a user straight into the store and returns it.
func (f *fakeSessions) login(slackID string) *model.User {
	u := &model.User{
		SlackID:     slackID,
		TeamID:      "T1",
		Team:        "Acme",
		Name:        "Ada",
		AccessToken: "xoxp-" + slackID,
	}
	if err := f.Set(context.Background(), u); err != nil {
		panic(err)
	}
	return u
}

// fakeMessages is an in-memory repository.MessageStore kept in insertion order.
type fakeMessages struct {
	mu        sync.Mutex
	records   []model.Message
	nextID    int
	appendErr error
}

func newFakeMessages() *fakeMessages {
	return &fakeMessages{}
}

func (f *fakeMessages) Append(ctx context.Context, msg *model.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.nextID++
	msg.ID = "msg-" + strconv.Itoa(f.nextID)
	msg.Version = model.CurrentRecordVersion
	msg.CreatedAt = time.Now()
	msg.UpdatedAt = msg.CreatedAt
	f.records = append(f.records, *msg)
	return nil
}

func (f *fakeMessages) Get(ctx context.Context, id string) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.records {
		if m.ID == id {
			return &m, nil
		}
	}
	return nil, apperror.NotFound("message", id)
}

func (f *fakeMessages) Update(ctx context.Context, id string, patch model.MessagePatch) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.records {
		if f.records[i].ID == id {
			patch.Apply(&f.records[i])
			f.records[i].UpdatedAt = time.Now()
			m := f.records[i]
			return &m, nil
		}
	}
	return nil, apperror.NotFound("message", id)
}

func (f *fakeMessages) Remove(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = slices.DeleteFunc(f.records, func(m model.Message) bool { return m.ID == id })
	return nil
}

func (f *fakeMessages) List(ctx context.Context, opts repository.ListOptions) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Message
	for _, m := range f.records {
		if m.UserID != opts.UserID {
			continue
		}
		if opts.Status != "" && m.Status != opts.Status {
			continue
		}
		out = append(out, m)
	}
	if opts.Newest {
		slices.Reverse(out)
	}
	if opts.Offset > 0 {
		out = out[min(opts.Offset, len(out)):]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (f *fakeMessages) Stats(ctx context.Context, userID string) (*model.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var s model.Stats
	for _, m := range f.records {
		if m.UserID != userID {
			continue
		}
		s.Total++
		switch m.Status {
		case model.StatusSent:
			s.Sent++
		case model.StatusScheduled:
			s.Scheduled++
		case model.StatusDraft:
			s.Draft++
		case model.StatusFailed:
			s.Failed++
		}
	}
	return &s, nil
}

func (f *fakeMessages) all() []model.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.records)
}

// fakeGateway records every Slack call. Set an error field to make the
// matching method fail; set block to hold PostMessage until it is closed.
type fakeGateway struct {
	mu    sync.Mutex
	calls []string

	postErr, scheduleErr, updateErr, deleteErr, unscheduleErr, channelsErr error

	// started receives once PostMessage is entered, if non-nil.
	started chan struct{}
	block   chan struct{}

	nextScheduled int
	channels      []model.Channel
}

func (f *fakeGateway) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeGateway) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

func (f *fakeGateway) PostMessage(ctx context.Context, token, channel, text string) (*slackapi.PostResult, error) {
	f.record("post " + channel)
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	if f.postErr != nil {
		return nil, f.postErr
	}
	return &slackapi.PostResult{Channel: "C-" + channel, Timestamp: "1700000000.000100"}, nil
}

func (f *fakeGateway) ScheduleMessage(ctx context.Context, token, channel, text string, postAt time.Time) (*slackapi.ScheduleResult, error) {
	f.record("schedule " + channel)
	if f.scheduleErr != nil {
		return nil, f.scheduleErr
	}
	f.mu.Lock()
	f.nextScheduled++
	id := "Q" + strconv.Itoa(f.nextScheduled)
	f.mu.Unlock()
	return &slackapi.ScheduleResult{Channel: channel, ScheduledMessageID: id, PostAt: postAt.UTC()}, nil
}

func (f *fakeGateway) UpdateMessage(ctx context.Context, token, channel, ts, text string) error {
	f.record("update " + ts)
	return f.updateErr
}

func (f *fakeGateway) DeleteMessage(ctx context.Context, token, channel, ts string) error {
	f.record("delete " + ts)
	return f.deleteErr
}

func (f *fakeGateway) DeleteScheduledMessage(ctx context.Context, token, channel, scheduledID string) error {
	f.record("unschedule " + scheduledID)
	return f.unscheduleErr
}

func (f *fakeGateway) ListChannels(ctx context.Context, token string) ([]model.Channel, error) {
	f.record("channels")
	if f.channelsErr != nil {
		return nil, f.channelsErr
	}
	return f.channels, nil
}

// fakeExchanger stands in for slackapi.OAuth.
type fakeExchanger struct {
	user  *model.User
	err   error
	codes []string
}

func (f *fakeExchanger) Exchange(ctx context.Context, code string) (*model.User, error) {
	f.codes = append(f.codes, code)
	if f.err != nil {
		return nil, f.err
	}
	u := *f.user
	return &u, nil
}
