// Package model defines the data structures used throughout the application.
package model

import "time"

// User is the authenticated Slack identity that owns the current session.
//
// We keep our own internal string ID (xid) rather than using Slack's user ID
// as the primary key. Slack IDs are only unique inside one workspace, so the
// stable identity is the (TeamID, SlackID) pair. The repository upserts on that
// pair, which means logging in again with the same Slack account keeps the
// same ID and therefore the same message history.
//
// ACCESS TOKEN:
// AccessToken is the user-scoped OAuth token from oauth.v2.access (xoxp-...).
// It is a bearer credential: whoever holds it can post as the user. The masq
// tag makes the log redactor replace it, and the session store seals it at rest.
type User struct {
	ID          string    `json:"id"`
	SlackID     string    `json:"slack_id"`
	Name        string    `json:"name"`            // users.info real_name
	Email       string    `json:"email,omitempty"` // needs users:read.email, often empty
	TeamID      string    `json:"team_id"`
	Team        string    `json:"team"`
	AccessToken string    `json:"access_token,omitempty" masq:"secret"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Public returns a copy of the user with the access token removed.
// Use it for any response that does not need to hand the token back.
func (u User) Public() User {
	u.AccessToken = ""
	return u
}
