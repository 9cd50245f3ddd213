// Command slackctl drives a slackdash backend from the terminal, the same
// way the browser dashboard does: build the Slack login URL, trade the
// returned code for a user token, and send a message with it.
//
//	slackctl login-url
//	slackctl exchange --code 1234.5678.abcd
//	slackctl send --token xoxp-... --channel C0123 --text "hello"
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/rs/xid"
	"github.com/urfave/cli/v3"

	"github.com/sakif/slackdash/internal/client"
	"github.com/sakif/slackdash/internal/config"
	"github.com/sakif/slackdash/internal/logging"
	"github.com/sakif/slackdash/internal/slackapi"
)

var version = "dev"

func main() {
	if err := run(context.Background(), os.Args, os.Stdout); err != nil {
		slog.Error("slackctl failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	var (
		cfg      config.Client
		logLevel string
	)

	flags := append(cfg.Flags(), &cli.StringFlag{
		Name:        "log-level",
		Value:       "warn",
		Sources:     cli.EnvVars("LOG_LEVEL"),
		Destination: &logLevel,
	})

	cmd := &cli.Command{
		Name:    "slackctl",
		Usage:   "talk to a slackdash backend",
		Version: version,
		Flags:   flags,
		Before: func(ctx context.Context, _ *cli.Command) (context.Context, error) {
			logger, err := logging.New(logLevel, "text", os.Stderr)
			if err != nil {
				return ctx, err
			}
			slog.SetDefault(logger)
			logger.Debug("slackctl config", slog.Any("config", cfg))
			return ctx, cfg.Validate()
		},
		Commands: []*cli.Command{
			cmdLoginURL(&cfg, out),
			cmdExchange(&cfg, out),
			cmdSend(&cfg, out),
		},
	}

	return cmd.Run(ctx, args)
}

func cmdLoginURL(cfg *config.Client, out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "login-url",
		Usage: "print the Slack authorize URL to open in a browser",
		Action: func(_ context.Context, _ *cli.Command) error {
			if cfg.ClientID == "" {
				return goerr.New("slack-client-id is required for login-url")
			}
			oauth := slackapi.NewOAuth(cfg.ClientID, "", cfg.RedirectURI, slackapi.New())
			_, err := fmt.Fprintln(out, oauth.AuthURL(xid.New().String()))
			return err
		},
	}
}

func cmdExchange(cfg *config.Client, out io.Writer) *cli.Command {
	var code string
	return &cli.Command{
		Name:  "exchange",
		Usage: "trade an OAuth code for the Slack user and access token",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "code",
				Usage:       "code query parameter from the OAuth redirect",
				Required:    true,
				Destination: &code,
			},
		},
		Action: func(ctx context.Context, _ *cli.Command) error {
			user, err := client.New(cfg.BackendURL).Exchange(ctx, code)
			if err != nil {
				return err
			}
			return printJSON(out, user)
		},
	}
}

func cmdSend(cfg *config.Client, out io.Writer) *cli.Command {
	var token, channel, text string
	return &cli.Command{
		Name:  "send",
		Usage: "post a message through the relay endpoint",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "token",
				Usage:       "user access token from exchange",
				Required:    true,
				Sources:     cli.EnvVars("SLACK_USER_TOKEN"),
				Destination: &token,
			},
			&cli.StringFlag{
				Name:        "channel",
				Usage:       "channel ID",
				Required:    true,
				Destination: &channel,
			},
			&cli.StringFlag{
				Name:        "text",
				Usage:       "message text",
				Required:    true,
				Destination: &text,
			},
		},
		Action: func(ctx context.Context, _ *cli.Command) error {
			res, err := client.New(cfg.BackendURL).Send(ctx, token, channel, text)
			if err != nil {
				return err
			}
			return printJSON(out, res)
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return goerr.Wrap(err, "writing output")
	}
	return nil
}
