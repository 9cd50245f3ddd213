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

var _ repository.MessageStore = (*MessageStore)(nil)

// MessageStore persists message records. Insertion order is the
// AUTOINCREMENT seq column, not created_at, so two records appended in the
// same clock tick still list in the order they were appended.
type MessageStore struct {
	conn *sql.DB
}

const messageColumns = `id, user_id, slack_message_id, channel_id, text,
	scheduled_at, sent_at, status, error, record_version, created_at, updated_at`

// Append inserts msg and fills in ID, Version, CreatedAt and UpdatedAt.
func (s *MessageStore) Append(ctx context.Context, msg *model.Message) error {
	if msg == nil {
		return apperror.ValidationFailed("message", "message is required")
	}
	if strings.TrimSpace(msg.UserID) == "" {
		return apperror.ValidationFailed("user_id", "user id is required")
	}
	if !msg.Status.Valid() {
		return apperror.ValidationFailed("status", fmt.Sprintf("unknown status %q", msg.Status))
	}

	now := time.Now().UTC()
	msg.ID = xid.New().String()
	msg.Version = model.CurrentRecordVersion
	msg.CreatedAt = now
	msg.UpdatedAt = now

	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO messages (`+messageColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID,
		msg.UserID,
		msg.SlackMessageID,
		msg.ChannelID,
		msg.Text,
		nullTime(msg.ScheduledAt),
		nullTime(msg.SentAt),
		string(msg.Status),
		msg.Error,
		msg.Version,
		msg.CreatedAt,
		msg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: appending message: %w", err)
	}
	return nil
}

// Get returns one record or apperror.ErrNotFound.
func (s *MessageStore) Get(ctx context.Context, id string) (*model.Message, error) {
	return getMessage(ctx, s.conn, id)
}

// Update merges patch into the record and bumps updated_at. The read and
// the write happen in one transaction.
func (s *MessageStore) Update(ctx context.Context, id string, patch model.MessagePatch) (*model.Message, error) {
	if patch.Status != nil && !patch.Status.Valid() {
		return nil, apperror.ValidationFailed("status", fmt.Sprintf("unknown status %q", *patch.Status))
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: starting update tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	msg, err := getMessage(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	patch.Apply(msg)
	msg.UpdatedAt = time.Now().UTC()
	msg.Version = model.CurrentRecordVersion

	_, err = tx.ExecContext(ctx,
		`UPDATE messages
		 SET slack_message_id = ?, text = ?, scheduled_at = ?, sent_at = ?,
		     status = ?, error = ?, record_version = ?, updated_at = ?
		 WHERE id = ?`,
		msg.SlackMessageID,
		msg.Text,
		nullTime(msg.ScheduledAt),
		nullTime(msg.SentAt),
		string(msg.Status),
		msg.Error,
		msg.Version,
		msg.UpdatedAt,
		msg.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: updating message %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite: committing message %s: %w", id, err)
	}
	return msg, nil
}

// Remove deletes a record. Unknown ids are not an error.
func (s *MessageStore) Remove(ctx context.Context, id string) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id); err != nil {
		return fmt.Errorf("sqlite: removing message %s: %w", id, err)
	}
	return nil
}

// List returns a user's records in insertion order (or reversed with
// opts.Newest).
// A Limit of zero or less means no limit.
func (s *MessageStore) List(ctx context.Context, opts repository.ListOptions) ([]model.Message, error) {
	if opts.UserID == "" {
		return nil, apperror.ValidationFailed("user_id", "user id is required")
	}

	query := `SELECT ` + messageColumns + ` FROM messages WHERE user_id = ?`
	args := []any{opts.UserID}
	if opts.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(opts.Status))
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	offset := max(opts.Offset, 0)
	if opts.Newest {
		query += ` ORDER BY seq DESC`
	} else {
		query += ` ORDER BY seq ASC`
	}
	query += ` LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing messages: %w", err)
	}
	defer rows.Close()

	messages := make([]model.Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning message row: %w", err)
		}
		messages = append(messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating messages: %w", err)
	}
	return messages, nil
}

// Stats counts a user's records per status.
func (s *MessageStore) Stats(ctx context.Context, userID string) (*model.Stats, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM messages WHERE user_id = ? GROUP BY status`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: counting messages: %w", err)
	}
	defer rows.Close()

	var stats model.Stats
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("sqlite: scanning message count: %w", err)
		}
		stats.Total += n
		switch model.Status(status) {
		case model.StatusSent:
			stats.Sent = n
		case model.StatusScheduled:
			stats.Scheduled = n
		case model.StatusDraft:
			stats.Draft = n
		case model.StatusFailed:
			stats.Failed = n
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating message counts: %w", err)
	}
	return &stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getMessage(ctx context.Context, q queryer, id string) (*model.Message, error) {
	msg, err := scanMessage(q.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("message", id)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting message %s: %w", id, err)
	}
	return msg, nil
}

func scanMessage(row rowScanner) (*model.Message, error) {
	var (
		msg         model.Message
		status      string
		scheduledAt sql.NullTime
		sentAt      sql.NullTime
	)
	err := row.Scan(
		&msg.ID,
		&msg.UserID,
		&msg.SlackMessageID,
		&msg.ChannelID,
		&msg.Text,
		&scheduledAt,
		&sentAt,
		&status,
		&msg.Error,
		&msg.Version,
		&msg.CreatedAt,
		&msg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	msg.Status = model.Status(status)
	if scheduledAt.Valid {
		t := scheduledAt.Time
		msg.ScheduledAt = &t
	}
	if sentAt.Valid {
		t := sentAt.Time
		msg.SentAt = &t
	}
	return &msg, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
