// Package config binds command-line flags and environment variables to the
// settings of the server and of slackctl.
//
// Each group exposes Flags() for a urfave/cli command, Validate() for the
// checks that need more than one flag, and LogValue() so the whole struct
// can be logged without leaking secrets.
package config

import (
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

const (
	DefaultPort       = 3000
	DefaultDBPath     = "data/slackdash.db"
	DefaultSessionTTL = 7 * 24 * time.Hour
	DefaultBackendURL = "http://localhost:3000"

	minSecretLen = 16
)

// Slack is the Slack app registration shared by the server and slackctl.
type Slack struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// Server is everything cmd/server needs.
type Server struct {
	Port        int
	DBPath      string
	Slack       Slack
	SlackAPIURL string // override for tests and proxies, empty means slack.com

	SessionSecret string
	SessionTTL    time.Duration
	DashboardURL  string
	CORSOrigins   []string

	RateLimit float64 // requests per second per client on the relay and OAuth routes
	RateBurst int

	LogLevel  string
	LogFormat string
}

// Flags returns the CLI flags bound to s.
func (s *Server) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:        "port",
			Usage:       "HTTP listen port",
			Value:       DefaultPort,
			Sources:     cli.EnvVars("PORT"),
			Destination: &s.Port,
		},
		&cli.StringFlag{
			Name:        "db-path",
			Usage:       "SQLite database file (\":memory:\" for a throwaway database)",
			Value:       DefaultDBPath,
			Sources:     cli.EnvVars("DB_PATH"),
			Destination: &s.DBPath,
		},
		&cli.StringFlag{
			Name:        "slack-client-id",
			Usage:       "Slack OAuth client ID",
			Category:    "Slack",
			Sources:     cli.EnvVars("SLACK_CLIENT_ID"),
			Destination: &s.Slack.ClientID,
		},
		&cli.StringFlag{
			Name:        "slack-client-secret",
			Usage:       "Slack OAuth client secret",
			Category:    "Slack",
			Sources:     cli.EnvVars("SLACK_CLIENT_SECRET"),
			Destination: &s.Slack.ClientSecret,
		},
		&cli.StringFlag{
			Name:        "slack-redirect-uri",
			Usage:       "OAuth redirect URI registered with the Slack app",
			Category:    "Slack",
			Sources:     cli.EnvVars("SLACK_REDIRECT_URI"),
			Destination: &s.Slack.RedirectURI,
		},
		&cli.StringFlag{
			Name:        "slack-api-url",
			Usage:       "Slack Web API base URL (default https://slack.com/api/)",
			Category:    "Slack",
			Sources:     cli.EnvVars("SLACK_API_URL"),
			Destination: &s.SlackAPIURL,
		},
		&cli.StringFlag{
			Name:        "session-secret",
			Usage:       "Secret for signing session cookies and sealing stored tokens (16+ chars)",
			Category:    "Session",
			Sources:     cli.EnvVars("SESSION_SECRET"),
			Destination: &s.SessionSecret,
		},
		&cli.DurationFlag{
			Name:        "session-ttl",
			Usage:       "Session cookie lifetime",
			Category:    "Session",
			Value:       DefaultSessionTTL,
			Sources:     cli.EnvVars("SESSION_TTL"),
			Destination: &s.SessionTTL,
		},
		&cli.StringFlag{
			Name:        "dashboard-url",
			Usage:       "Where the browser is sent after Slack login",
			Category:    "Session",
			Value:       "/",
			Sources:     cli.EnvVars("DASHBOARD_URL"),
			Destination: &s.DashboardURL,
		},
		&cli.StringSliceFlag{
			Name:        "cors-origin",
			Usage:       "Allowed CORS origin with credentials, repeatable (\"*\" adds any origin without credentials)",
			Sources:     cli.EnvVars("CORS_ORIGINS"),
			Destination: &s.CORSOrigins,
		},
		&cli.FloatFlag{
			Name:        "rate-limit",
			Usage:       "Requests per second per client on the OAuth and relay routes",
			Value:       5,
			Sources:     cli.EnvVars("RATE_LIMIT"),
			Destination: &s.RateLimit,
		},
		&cli.IntFlag{
			Name:        "rate-burst",
			Usage:       "Burst size for --rate-limit",
			Value:       10,
			Sources:     cli.EnvVars("RATE_BURST"),
			Destination: &s.RateBurst,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "debug, info, warn or error",
			Value:       "info",
			Sources:     cli.EnvVars("LOG_LEVEL"),
			Destination: &s.LogLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "text or json",
			Value:       "text",
			Sources:     cli.EnvVars("LOG_FORMAT"),
			Destination: &s.LogFormat,
		},
	}
}

// Validate checks the settings the server cannot start without.
func (s *Server) Validate() error {
	if s.Port <= 0 || s.Port > 65535 {
		return goerr.New("port out of range", goerr.V("port", s.Port))
	}
	if s.DBPath == "" {
		return goerr.New("db-path is required")
	}
	if s.Slack.ClientID == "" || s.Slack.ClientSecret == "" {
		return goerr.New("slack-client-id and slack-client-secret are required")
	}
	if s.Slack.RedirectURI != "" {
		if err := validateURL(s.Slack.RedirectURI); err != nil {
			return goerr.Wrap(err, "invalid slack-redirect-uri", goerr.V("value", s.Slack.RedirectURI))
		}
	}
	if s.SlackAPIURL != "" {
		if err := validateURL(s.SlackAPIURL); err != nil {
			return goerr.Wrap(err, "invalid slack-api-url", goerr.V("value", s.SlackAPIURL))
		}
	}
	if len(s.SessionSecret) < minSecretLen {
		return goerr.New("session-secret must be at least 16 characters",
			goerr.V("length", len(s.SessionSecret)))
	}
	if s.SessionTTL <= 0 {
		return goerr.New("session-ttl must be positive", goerr.V("ttl", s.SessionTTL))
	}
	if s.RateLimit <= 0 || s.RateBurst <= 0 {
		return goerr.New("rate-limit and rate-burst must be positive",
			goerr.V("rate", s.RateLimit), goerr.V("burst", s.RateBurst))
	}
	return nil
}

// Addr is the listen address for http.Server.
func (s *Server) Addr() string {
	return ":" + strconv.Itoa(s.Port)
}

// AllowedOrigins returns the CORS origins with blanks and trailing slashes
// removed.
func (s *Server) AllowedOrigins() []string {
	var out []string
	for _, o := range s.CORSOrigins {
		o = strings.TrimSuffix(strings.TrimSpace(o), "/")
		if o != "" {
			out = append(out, o)
		}
	}
	return out
}

func (s Server) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("port", s.Port),
		slog.String("db-path", s.DBPath),
		slog.String("slack-client-id", s.Slack.ClientID),
		slog.Int("slack-client-secret.len", len(s.Slack.ClientSecret)),
		slog.String("slack-redirect-uri", s.Slack.RedirectURI),
		slog.String("slack-api-url", s.SlackAPIURL),
		slog.Int("session-secret.len", len(s.SessionSecret)),
		slog.Duration("session-ttl", s.SessionTTL),
		slog.String("dashboard-url", s.DashboardURL),
		slog.Any("cors-origins", s.CORSOrigins),
		slog.Float64("rate-limit", s.RateLimit),
		slog.Int("rate-burst", s.RateBurst),
	)
}

// Client is what cmd/slackctl needs: the same variables the browser
// client reads.
type Client struct {
	BackendURL  string
	ClientID    string
	RedirectURI string
}

func (c *Client) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "backend-url",
			Usage:       "slackdash server base URL",
			Value:       DefaultBackendURL,
			Sources:     cli.EnvVars("BACKEND_URL"),
			Destination: &c.BackendURL,
		},
		&cli.StringFlag{
			Name:        "slack-client-id",
			Usage:       "Slack OAuth client ID (for login-url)",
			Sources:     cli.EnvVars("SLACK_CLIENT_ID"),
			Destination: &c.ClientID,
		},
		&cli.StringFlag{
			Name:        "slack-redirect-uri",
			Usage:       "OAuth redirect URI (for login-url)",
			Sources:     cli.EnvVars("SLACK_REDIRECT_URI"),
			Destination: &c.RedirectURI,
		},
	}
}

func (c *Client) Validate() error {
	if err := validateURL(c.BackendURL); err != nil {
		return goerr.Wrap(err, "invalid backend-url", goerr.V("value", c.BackendURL))
	}
	return nil
}

func (c Client) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("backend-url", c.BackendURL),
		slog.String("slack-client-id", c.ClientID),
		slog.String("slack-redirect-uri", c.RedirectURI),
	)
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return goerr.New("scheme must be http or https", goerr.V("scheme", u.Scheme))
	}
	if u.Host == "" {
		return goerr.New("host is required")
	}
	return nil
}
