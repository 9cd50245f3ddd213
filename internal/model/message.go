package model

import "time"

// Status is the lifecycle state of a message record.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusScheduled Status = "scheduled"
	StatusSent      Status = "sent"
	StatusFailed    Status = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusScheduled, StatusSent, StatusFailed:
		return true
	}
	return false
}

// Remote reports whether a record in this status is backed by a Slack-side
// object (a posted message or a scheduled message).
func (s Status) Remote() bool {
	return s == StatusSent || s == StatusScheduled
}

// CurrentRecordVersion is stamped on every record written by this build.
// Bump it together with a new migration in repository/sqlite.
const CurrentRecordVersion = 2

// Message is one locally recorded message and its last known Slack state.
//
// INVARIANTS:
//   - sent and scheduled records carry a SlackMessageID (the "ts" for posted
//     messages, the scheduled_message_id for scheduled ones)
//   - draft and failed records never do
//   - a record never goes back from sent/scheduled to draft
//
// The local record and Slack are not kept transactionally consistent. If a
// message is deleted in the Slack client, this record still says "sent".
type Message struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	SlackMessageID string     `json:"slack_message_id,omitempty"`
	ChannelID      string     `json:"channel_id"`
	Text           string     `json:"text"`
	ScheduledAt    *time.Time `json:"scheduled_at,omitempty"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
	Status         Status     `json:"status"`
	Error          string     `json:"error,omitempty"` // why a failed record failed
	Version        int        `json:"version"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// MessagePatch is a partial update. Nil fields are left untouched.
type MessagePatch struct {
	Text           *string
	Status         *Status
	SlackMessageID *string
	ScheduledAt    *time.Time
	SentAt         *time.Time
	Error          *string
}

// Apply merges the non-nil fields of p into m.
func (p MessagePatch) Apply(m *Message) {
	if p.Text != nil {
		m.Text = *p.Text
	}
	if p.Status != nil {
		m.Status = *p.Status
	}
	if p.SlackMessageID != nil {
		m.SlackMessageID = *p.SlackMessageID
	}
	if p.ScheduledAt != nil {
		t := *p.ScheduledAt
		m.ScheduledAt = &t
	}
	if p.SentAt != nil {
		t := *p.SentAt
		m.SentAt = &t
	}
	if p.Error != nil {
		m.Error = *p.Error
	}
}

// Stats are the counters shown on the dashboard home page.
type Stats struct {
	Total     int `json:"total"`
	Sent      int `json:"sent"`
	Scheduled int `json:"scheduled"`
	Draft     int `json:"draft"`
	Failed    int `json:"failed"`
}

// Channel is the read-only projection of a Slack conversation used by the
// channel picker. It is fetched per session and never persisted.
type Channel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
