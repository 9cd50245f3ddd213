// Package metrics holds the process-wide Prometheus collectors.
//
// Collectors are package variables registered once in init, so any package
// can record without threading a registry through constructors. The server
// exposes them on GET /metrics via promhttp.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for SlackCalls.
const (
	OutcomeOK        = "ok"
	OutcomeRemote    = "remote_error"
	OutcomeTransport = "transport_error"
)

var (
	// SlackCalls counts Web API calls by method (e.g. "chat.postMessage").
	SlackCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "slackdash_slack_api_calls_total",
		Help: "Slack Web API calls by method and outcome",
	}, []string{"method", "outcome"})

	// MessageTransitions counts lifecycle results by operation and the
	// status the record ended in ("removed" for deletes).
	MessageTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "slackdash_message_transitions_total",
		Help: "Message lifecycle operations by resulting status",
	}, []string{"op", "status"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "slackdash_http_requests_total",
		Help: "HTTP requests by method, route and status",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "slackdash_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	RateLimited = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "slackdash_rate_limited_total",
		Help: "Requests rejected by the per-client rate limiter",
	}, []string{"route"})
)

func init() {
	prometheus.MustRegister(
		SlackCalls,
		MessageTransitions,
		HTTPRequestsTotal,
		HTTPRequestDuration,
		RateLimited,
	)
}
