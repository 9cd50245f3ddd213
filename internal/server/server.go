// Package server is the composition root: it builds the database, Slack
// gateway, services and handlers from a config.Server and mounts them on a
// chi router.
//
// DEPENDENCY CHAIN:
//
//	sqlite.DB ──→ SessionStore, MessageStore
//	auth.Sealer ─┘ (access tokens sealed at rest)
//	slackapi.Client ──→ OAuth, MessageService, RelayHandler
//	SessionService, MessageService ──→ SessionHandler, MessageHandler
//
// Each layer only receives what it needs: services get repository
// interfaces, handlers get service interfaces.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sakif/slackdash/internal/auth"
	"github.com/sakif/slackdash/internal/config"
	"github.com/sakif/slackdash/internal/handler"
	"github.com/sakif/slackdash/internal/middleware"
	sqliteRepo "github.com/sakif/slackdash/internal/repository/sqlite"
	"github.com/sakif/slackdash/internal/service"
	"github.com/sakif/slackdash/internal/slackapi"
)

const shutdownTimeout = 30 * time.Second

// Server owns the router and every resource that must be released on
// shutdown (database, rate limiter sweep).
type Server struct {
	router  *chi.Mux
	config  config.Server
	logger  *slog.Logger
	db      *sqliteRepo.DB
	limiter *middleware.RateLimiter

	slackHTTP *http.Client
}

// Option customises a Server.
type Option func(*Server)

// WithSlackHTTPClient sets the HTTP client for every Slack call, including
// the OAuth exchange.
func WithSlackHTTPClient(hc *http.Client) Option {
	return func(s *Server) {
		s.slackHTTP = hc
	}
}

// New opens the database and wires all routes. The caller must call Close
// (Start does it on shutdown).
func New(cfg config.Server, logger *slog.Logger, opts ...Option) (*Server, error) {
	s := &Server{
		router:    chi.NewRouter(),
		config:    cfg,
		logger:    logger,
		slackHTTP: &http.Client{},
	}
	for _, opt := range opts {
		opt(s)
	}

	sealer, err := auth.NewSealer(cfg.SessionSecret)
	if err != nil {
		return nil, fmt.Errorf("creating token sealer: %w", err)
	}
	tokens, err := auth.NewTokenService(cfg.SessionSecret, cfg.SessionTTL)
	if err != nil {
		return nil, fmt.Errorf("creating token service: %w", err)
	}

	s.db, err = sqliteRepo.New(cfg.DBPath, sqliteRepo.WithSealer(sealer))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s.limiter = middleware.NewRateLimiter(cfg.RateLimit, cfg.RateBurst, 2*time.Minute)
	s.setupRoutes(tokens)

	return s, nil
}

// setupRoutes configures middleware and routes.
//
// ROUTES:
//
//	GET    /healthz                    liveness
//	GET    /metrics                    Prometheus
//	GET    /auth/slack/login           → Slack authorize page
//	GET    /auth/slack/callback        ← Slack redirect
//	POST   /auth/logout
//	POST   /api/slack/oauth            rate limited
//	POST   /api/slack/send-message     rate limited, token in body
//	GET    /api/me                     session required from here on
//	GET    /api/channels
//	GET    /api/stats
//	GET    /api/messages
//	POST   /api/messages
//	POST   /api/messages/schedule
//	POST   /api/messages/drafts
//	GET    /api/messages/{id}
//	PATCH  /api/messages/{id}
//	DELETE /api/messages/{id}
//
// MIDDLEWARE ORDER:
// RequestID first so every log line has it, RealIP before the rate limiter
// reads RemoteAddr, Recoverer innermost of the globals so a panic is logged
// as a 500 by Logger.
func (s *Server) setupRoutes(tokens *auth.TokenService) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	if origins := s.config.AllowedOrigins(); len(origins) > 0 {
		s.router.Use(middleware.CORS(origins))
	}

	slackClient := slackapi.New(
		slackapi.WithAPIURL(s.config.SlackAPIURL),
		slackapi.WithHTTPClient(s.slackHTTP),
		slackapi.WithLogger(s.logger),
	)
	oauth := slackapi.NewOAuth(
		s.config.Slack.ClientID,
		s.config.Slack.ClientSecret,
		s.config.Slack.RedirectURI,
		slackClient,
	)

	sessions := s.db.Sessions()
	sessionService := service.NewSessionService(oauth, sessions, tokens, s.logger)
	messageService := service.NewMessageService(sessions, s.db.Messages(), slackClient, s.logger)

	sessionHandler := handler.NewSessionHandler(
		sessionService, oauth, tokens.TTL(), s.config.DashboardURL, s.logger,
	)
	messageHandler := handler.NewMessageHandler(messageService)
	relayHandler := handler.NewRelayHandler(slackClient, s.logger)

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}` + "\n"))
	})
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/auth", func(r chi.Router) {
		r.Get("/slack/login", sessionHandler.HandleLogin)
		r.Get("/slack/callback", sessionHandler.HandleCallback)
		r.Post("/logout", sessionHandler.HandleLogout)
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.limiter.Middleware)
			r.Post("/slack/oauth", sessionHandler.HandleOAuth)
			r.Post("/slack/send-message", relayHandler.HandleSendMessage)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(sessionService))
			r.Use(sessionHandler.RequireSession)

			r.Get("/me", sessionHandler.HandleMe)
			r.Get("/channels", messageHandler.HandleChannels)
			r.Get("/stats", messageHandler.HandleStats)

			r.Route("/messages", func(r chi.Router) {
				r.Get("/", messageHandler.HandleList)
				r.Post("/", messageHandler.HandleSend)
				r.Post("/schedule", messageHandler.HandleSchedule)
				r.Post("/drafts", messageHandler.HandleSaveDraft)
				r.Get("/{id}", messageHandler.HandleGet)
				r.Patch("/{id}", messageHandler.HandleEdit)
				r.Delete("/{id}", messageHandler.HandleDelete)
			})
		})
	})
}

// Handler exposes the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the database and stops the rate limiter sweep.
func (s *Server) Close() error {
	s.limiter.Stop()
	return s.db.Close()
}

// Start serves until ctx is cancelled or SIGINT/SIGTERM arrives, then
// drains in-flight requests for up to 30 seconds and closes the database.
func (s *Server) Start(ctx context.Context) error {
	defer s.Close()

	srv := &http.Server{
		Addr:         s.config.Addr(),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.String("addr", srv.Addr),
			slog.String("database", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}
	return nil
}
