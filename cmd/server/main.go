// Package main is the entry point for the slackdash server.
//
// Configuration comes from flags or the matching environment variables
// (see internal/config). Everything else lives in internal/server.
package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/sakif/slackdash/internal/config"
	"github.com/sakif/slackdash/internal/logging"
	"github.com/sakif/slackdash/internal/server"
)

var version = "dev"

func main() {
	if err := run(context.Background(), os.Args); err != nil {
		slog.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	var cfg config.Server

	cmd := &cli.Command{
		Name:    "slackdash",
		Usage:   "Slack dashboard backend: OAuth login, send, schedule, edit and delete messages",
		Version: version,
		Flags:   cfg.Flags(),
		Action: func(ctx context.Context, _ *cli.Command) error {
			logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			if err := cfg.Validate(); err != nil {
				return err
			}
			logger.Info("starting slackdash", slog.String("version", version), slog.Any("config", cfg))

			// DB_PATH=/var/lib/slackdash/prod.db needs its directory to exist.
			if cfg.DBPath != ":memory:" {
				dir := filepath.Dir(cfg.DBPath)
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return goerr.Wrap(err, "creating database directory", goerr.V("dir", dir))
				}
			}

			srv, err := server.New(cfg, logger)
			if err != nil {
				return goerr.Wrap(err, "creating server")
			}

			// Start blocks until SIGINT/SIGTERM.
			return srv.Start(ctx)
		},
	}

	return cmd.Run(ctx, args)
}
