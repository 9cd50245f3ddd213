// Package sqlite implements the repository interfaces on an embedded SQLite
// database (modernc.org/sqlite, pure Go, no CGo).
//
// One *DB owns the connection pool and hands out the two stores:
//
//	db, err := sqlite.New("data/slackdash.db", sqlite.WithSealer(sealer))
//	sessions := db.Sessions() // repository.SessionStore
//	messages := db.Messages() // repository.MessageStore
//
// SCHEMA VERSIONING:
// Migrations are an ordered list. Each applied version is recorded in
// schema_migrations, so New only runs what a given file has not seen yet.
// Message rows also carry record_version so a reader can tell which shape
// a row was written with.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sakif/slackdash/internal/repository"

	// registers the "sqlite" driver with database/sql
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool.
type DB struct {
	conn   *sql.DB
	sealer repository.TokenSealer
}

// Option configures a DB.
type Option func(*DB)

// WithSealer encrypts session access tokens at rest. Without it tokens are
// stored as-is, which is only acceptable for tests.
func WithSealer(s repository.TokenSealer) Option {
	return func(db *DB) {
		db.sealer = s
	}
}

// New opens the database at dbPath and brings the schema up to date.
//
// dbPath examples:
//   - "data/slackdash.db" → file-based database (persistent)
//   - ":memory:"          → in-memory database (tests)
func New(dbPath string, opts ...Option) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// SINGLE CONNECTION:
	// SQLite serialises writers anyway, and an in-memory database exists per
	// connection, so a pool bigger than one would hand tests an empty database.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Foreign keys are OFF by default in SQLite. session and messages both
	// reference users(id).
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn, sealer: plainSealer{}}
	for _, opt := range opts {
		opt(db)
	}

	if err := db.migrate(context.Background()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Sessions returns the session store backed by this database.
func (db *DB) Sessions() *SessionStore {
	return &SessionStore{conn: db.conn, sealer: db.sealer}
}

// Messages returns the message record store backed by this database.
func (db *DB) Messages() *MessageStore {
	return &MessageStore{conn: db.conn}
}

// SchemaVersion reports the highest applied migration.
func (db *DB) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`,
	).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("sqlite: reading schema version: %w", err)
	}
	return v, nil
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type migration struct {
	version int
	name    string
	up      func(ctx context.Context, tx execer) error
}

// migrations must stay append-only: never edit an entry once released.
var migrations = []migration{
	{
		version: 1,
		name:    "create users, session and messages",
		up: func(ctx context.Context, tx execer) error {
			_, err := tx.ExecContext(ctx, `
				CREATE TABLE IF NOT EXISTS users (
					id         TEXT PRIMARY KEY,
					slack_id   TEXT NOT NULL,
					team_id    TEXT NOT NULL,
					name       TEXT NOT NULL DEFAULT '',
					email      TEXT NOT NULL DEFAULT '',
					team       TEXT NOT NULL DEFAULT '',
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL,
					UNIQUE (team_id, slack_id)
				);

				CREATE TABLE IF NOT EXISTS session (
					slot         INTEGER PRIMARY KEY CHECK (slot = 1),
					user_id      TEXT NOT NULL REFERENCES users(id),
					access_token TEXT NOT NULL,
					created_at   DATETIME NOT NULL
				);

				CREATE TABLE IF NOT EXISTS messages (
					seq              INTEGER PRIMARY KEY AUTOINCREMENT,
					id               TEXT NOT NULL UNIQUE,
					user_id          TEXT NOT NULL REFERENCES users(id),
					slack_message_id TEXT NOT NULL DEFAULT '',
					channel_id       TEXT NOT NULL,
					text             TEXT NOT NULL,
					scheduled_at     DATETIME,
					sent_at          DATETIME,
					status           TEXT NOT NULL,
					created_at       DATETIME NOT NULL,
					updated_at       DATETIME NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_messages_user_seq ON messages(user_id, seq);
			`)
			return err
		},
	},
	{
		version: 2,
		name:    "add error and record_version to messages",
		up: func(ctx context.Context, tx execer) error {
			if err := addColumnIfNotExists(ctx, tx, "messages", "error", "TEXT NOT NULL DEFAULT ''"); err != nil {
				return err
			}
			if err := addColumnIfNotExists(ctx, tx, "messages", "record_version", "INTEGER NOT NULL DEFAULT 1"); err != nil {
				return err
			}
			// v1 rows could claim sent/scheduled without a Slack id.
			_, err := tx.ExecContext(ctx, `
				UPDATE messages
				SET status = 'failed', error = 'missing slack message id'
				WHERE status IN ('sent', 'scheduled') AND slack_message_id = '';
				UPDATE messages SET record_version = 2 WHERE record_version < 2;
			`)
			return err
		},
	},
}

// migrate applies every migration newer than the recorded schema version,
// each in its own transaction.
func (db *DB) migrate(ctx context.Context) error {
	_, err := db.conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations: %w", err)
	}

	current, err := db.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := db.apply(ctx, m); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
	}
	return nil
}

func (db *DB) apply(ctx context.Context, m migration) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	if err := m.up(ctx, tx); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)`,
		m.version, m.name, time.Now().UTC(),
	); err != nil {
		return err
	}
	return tx.Commit()
}

// addColumnIfNotExists adds a column to a table only if it doesn't already exist.
// ALTER TABLE errors on a duplicate column, so we check pragma_table_info first.
func addColumnIfNotExists(ctx context.Context, tx execer, table, column, definition string) error {
	var count int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`,
		table, column,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	if count > 0 {
		return nil
	}
	_, err = tx.ExecContext(ctx, fmt.Sprintf(
		`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition,
	))
	return err
}

// plainSealer stores secrets unchanged.
type plainSealer struct{}

func (plainSealer) Seal(s string) (string, error) { return s, nil }
func (plainSealer) Open(s string) (string, error) { return s, nil }
