package slackapi

import (
	"context"
	"errors"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/slack-go/slack"

	"github.com/sakif/slackdash/internal/apperror"
	"github.com/sakif/slackdash/internal/metrics"
)

// observe records the call in metrics and converts err into an app error.
func (c *Client) observe(ctx context.Context, method string, err error) error {
	return observe(ctx, c.logger, method, err)
}

func observe(ctx context.Context, logger *slog.Logger, method string, err error) error {
	if err == nil {
		metrics.SlackCalls.WithLabelValues(method, metrics.OutcomeOK).Inc()
		return nil
	}

	classified := classify(method, err)
	if errors.Is(classified, apperror.ErrRemote) {
		metrics.SlackCalls.WithLabelValues(method, metrics.OutcomeRemote).Inc()
		logger.WarnContext(ctx, "slack rejected call",
			slog.String("method", method),
			slog.String("code", apperror.CodeOf(classified)),
		)
	} else {
		metrics.SlackCalls.WithLabelValues(method, metrics.OutcomeTransport).Inc()
		logger.ErrorContext(ctx, "slack call failed",
			slog.String("method", method),
			slog.Any("error", classified),
		)
	}
	return classified
}

// classify sorts a slack-go error into remote or transport.
//
// slack-go returns SlackErrorResponse (a value, not a pointer) when the body
// decoded fine but said ok:false. Rate limiting arrives as its own type and is
// reported as Slack's "ratelimited" code so the caller can show it.
func classify(method string, err error) error {
	var slackErr slack.SlackErrorResponse
	if errors.As(err, &slackErr) {
		return apperror.Remote(method, slackErr.Err)
	}

	var rateErr *slack.RateLimitedError
	if errors.As(err, &rateErr) {
		return apperror.Remote(method, "ratelimited")
	}

	return goerr.Wrap(apperror.Transport(method, err), "slack api call failed",
		goerr.V("method", method),
	)
}
