// Package service holds the business rules. Handlers call services;
// services call repositories and the Slack gateway. Nothing here knows
// about HTTP.
//
//	SessionHandler → SessionService → OAuthExchanger (Slack)
//	                                ↘ SessionStore, TokenService
//	MessageHandler → MessageService → SlackGateway
//	                                ↘ SessionStore, MessageStore
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/slackdash/internal/apperror"
	"github.com/sakif/slackdash/internal/auth"
	"github.com/sakif/slackdash/internal/model"
	"github.com/sakif/slackdash/internal/repository"
)

// OAuthExchanger trades an OAuth code for a Slack identity and token.
// slackapi.OAuth implements it.
type OAuthExchanger interface {
	Exchange(ctx context.Context, code string) (*model.User, error)
}

// SessionService owns login and logout.
//
// There is a single session slot. Logging in replaces whoever was logged in,
// logging out clears it. There is no expiry: the Slack token is used until
// Slack rejects it.
type SessionService struct {
	exchanger OAuthExchanger
	sessions  repository.SessionStore
	tokens    *auth.TokenService
	logger    *slog.Logger
}

var _ auth.TokenValidator = (*SessionService)(nil)

func NewSessionService(
	exchanger OAuthExchanger,
	sessions repository.SessionStore,
	tokens *auth.TokenService,
	logger *slog.Logger,
) *SessionService {
	return &SessionService{
		exchanger: exchanger,
		sessions:  sessions,
		tokens:    tokens,
		logger:    logger,
	}
}

// LoginResult bundles the stored user and the cookie token so the handler
// can set the cookie and respond in one step.
type LoginResult struct {
	User  *model.User
	Token string
}

// Login completes the OAuth flow for code and makes the user the active
// session. A failed exchange leaves any previous session untouched.
func (s *SessionService) Login(ctx context.Context, code string) (*LoginResult, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, apperror.ValidationFailed("code", "Missing code")
	}

	user, err := s.exchanger.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("service/session: exchanging code: %w", err)
	}

	if err := s.sessions.Set(ctx, user); err != nil {
		return nil, fmt.Errorf("service/session: storing session: %w", err)
	}

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/session: generating token for user %s: %w", user.ID, err)
	}

	s.logger.InfoContext(ctx, "user logged in",
		slog.String("userID", user.ID),
		slog.String("slackID", user.SlackID),
		slog.String("team", user.Team),
	)

	return &LoginResult{User: user, Token: token}, nil
}

// current returns the active session user.
func (s *SessionService) current(ctx context.Context) (*model.User, error) {
	user, err := s.sessions.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/session: loading session: %w", err)
	}
	if user == nil {
		return nil, apperror.Unauthorized("no active Slack session")
	}
	return user, nil
}

// Authorize checks that userID (from the cookie) still owns the active
// session. A cookie from before a logout, or from another user's login,
// fails with ErrUnauthorized.
func (s *SessionService) Authorize(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.current(ctx)
	if err != nil {
		return nil, err
	}
	if user.ID != userID {
		return nil, apperror.Unauthorized("session has been replaced, log in again")
	}
	return user, nil
}

// Logout destroys the session and the stored token.
func (s *SessionService) Logout(ctx context.Context) error {
	if err := s.sessions.Clear(ctx); err != nil {
		return fmt.Errorf("service/session: clearing session: %w", err)
	}
	s.logger.InfoContext(ctx, "session cleared")
	return nil
}

// Validate returns the user ID inside a session token. It is the
// auth.TokenValidator the API middleware checks cookies with.
func (s *SessionService) Validate(tokenStr string) (string, error) {
	userID, err := s.tokens.Validate(tokenStr)
	if err != nil {
		return "", fmt.Errorf("service/session: %w", err)
	}
	return userID, nil
}
