// Package repository declares the storage contracts the services depend on.
//
// Services only ever see these interfaces. The sqlite sub-package is the
// production implementation; tests swap in in-memory fakes.
package repository

import (
	"context"

	"github.com/sakif/slackdash/internal/model"
)

type ListOptions struct {
	UserID string       // required: only this user's records
	Status model.Status // optional filter, "" means any
	Newest bool         // newest first instead of insertion order
	Limit  int
	Offset int
}

// SessionStore holds the single active user session.
//
// Get returns (nil, nil) when nobody is logged in. Set replaces whatever
// session existed before and fills in user.ID (stable per Slack identity).
// Clear destroys the session including the stored access token; clearing an
// empty store is not an error.
type SessionStore interface {
	Get(ctx context.Context) (*model.User, error)
	Set(ctx context.Context, user *model.User) error
	Clear(ctx context.Context) error
}

// MessageStore is the local history of messages.
//
// Append fills in ID, Version and timestamps. List returns records in
// insertion order unless opts.Newest is set. Update returns
// apperror.ErrNotFound for unknown ids, Remove is a no-op for them.
type MessageStore interface {
	Append(ctx context.Context, msg *model.Message) error
	Get(ctx context.Context, id string) (*model.Message, error)
	Update(ctx context.Context, id string, patch model.MessagePatch) (*model.Message, error)
	Remove(ctx context.Context, id string) error
	List(ctx context.Context, opts ListOptions) ([]model.Message, error)
	Stats(ctx context.Context, userID string) (*model.Stats, error)
}

// TokenSealer encrypts secrets before they hit the disk.
// auth.Sealer is the implementation used in production.
type TokenSealer interface {
	Seal(plaintext string) (string, error)
	Open(sealed string) (string, error)
}
