package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/slackdash/internal/apperror"
	"github.com/sakif/slackdash/internal/model"
	"github.com/sakif/slackdash/internal/repository"
)

var _ repository.SessionStore = (*SessionStore)(nil)

// SessionStore keeps exactly one session row (slot = 1) pointing at a user.
// Users themselves are never deleted, so message history survives logout.
type SessionStore struct {
	conn   *sql.DB
	sealer repository.TokenSealer
}

// Get returns the logged-in user with the decrypted access token, or
// (nil, nil) when there is no session.
func (s *SessionStore) Get(ctx context.Context) (*model.User, error) {
	var (
		u      model.User
		sealed string
	)
	err := s.conn.QueryRowContext(ctx,
		`SELECT u.id, u.slack_id, u.team_id, u.name, u.email, u.team,
		        u.created_at, u.updated_at, s.access_token
		 FROM session s
		 JOIN users u ON u.id = s.user_id
		 WHERE s.slot = 1`,
	).Scan(
		&u.ID,
		&u.SlackID,
		&u.TeamID,
		&u.Name,
		&u.Email,
		&u.Team,
		&u.CreatedAt,
		&u.UpdatedAt,
		&sealed,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: reading session: %w", err)
	}

	u.AccessToken, err = s.sealer.Open(sealed)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening session token: %w", err)
	}
	return &u, nil
}

// Set makes user the active session, replacing any previous one.
//
// The user row is upserted on (team_id, slack_id): the first login inserts
// with a fresh xid, later logins keep that id and refresh the profile.
// user.ID, CreatedAt and UpdatedAt are filled in on return.
func (s *SessionStore) Set(ctx context.Context, user *model.User) error {
	if user == nil {
		return apperror.ValidationFailed("user", "user is required")
	}
	if strings.TrimSpace(user.SlackID) == "" || strings.TrimSpace(user.TeamID) == "" {
		return apperror.ValidationFailed("user", "slack user id and team id are required")
	}
	if user.AccessToken == "" {
		return apperror.ValidationFailed("access_token", "access token is required")
	}

	sealed, err := s.sealer.Seal(user.AccessToken)
	if err != nil {
		return fmt.Errorf("sqlite: sealing session token: %w", err)
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: starting session tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	if err := upsertUser(ctx, tx, user); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO session (slot, user_id, access_token, created_at)
		 VALUES (1, ?, ?, ?)
		 ON CONFLICT(slot) DO UPDATE SET
		   user_id = excluded.user_id,
		   access_token = excluded.access_token,
		   created_at = excluded.created_at`,
		user.ID, sealed, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: writing session for user %s: %w", user.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing session: %w", err)
	}
	return nil
}

// Clear logs out. The sealed token is deleted with the row.
func (s *SessionStore) Clear(ctx context.Context) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM session`); err != nil {
		return fmt.Errorf("sqlite: clearing session: %w", err)
	}
	return nil
}

func upsertUser(ctx context.Context, tx *sql.Tx, user *model.User) error {
	var (
		existingID string
		createdAt  time.Time
	)
	err := tx.QueryRowContext(ctx,
		`SELECT id, created_at FROM users WHERE team_id = ? AND slack_id = ?`,
		user.TeamID, user.SlackID,
	).Scan(&existingID, &createdAt)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("sqlite: looking up user %s/%s: %w", user.TeamID, user.SlackID, err)
	}

	now := time.Now().UTC()
	user.UpdatedAt = now

	if existingID != "" {
		user.ID = existingID
		user.CreatedAt = createdAt
		_, err = tx.ExecContext(ctx,
			`UPDATE users SET name = ?, email = ?, team = ?, updated_at = ? WHERE id = ?`,
			user.Name, user.Email, user.Team, user.UpdatedAt, user.ID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
		}
		return nil
	}

	user.ID = xid.New().String()
	user.CreatedAt = now
	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (id, slack_id, team_id, name, email, team, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.SlackID, user.TeamID, user.Name, user.Email, user.Team,
		user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting user %s/%s: %w", user.TeamID, user.SlackID, err)
	}
	return nil
}
