// Package observability holds the Prometheus collectors shared across the gateway.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chainarena"

var (
	// HTTPRequestDuration observes inbound request latency by route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Duration of HTTP requests in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status_code"})

	// ProviderRequests counts hosted provider calls by provider, mode and result.
	ProviderRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "provider_requests_total",
		Help:      "Total number of hosted provider requests.",
	}, []string{"provider", "mode", "result"})

	// ChainSubmissions counts transactions broadcast to the oracle contracts.
	ChainSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "chain",
		Name:      "submissions_total",
		Help:      "Total number of oracle transactions submitted, by result.",
	}, []string{"result"})

	// OracleAsks counts bridge round trips by outcome code ("ok" on success).
	OracleAsks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "oracle",
		Name:      "asks_total",
		Help:      "Total number of oracle asks, by outcome.",
	}, []string{"outcome"})

	// OracleAskDuration observes the full submit-to-response latency.
	OracleAskDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "oracle",
		Name:      "ask_duration_seconds",
		Help:      "Time from transaction submission to a readable response.",
		Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 90, 120, 180},
	})

	// StreamChunks counts normalized chunks emitted to clients by type.
	StreamChunks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "stream",
		Name:      "chunks_total",
		Help:      "Total number of normalized stream chunks written, by type.",
	}, []string{"type"})

	// Votes counts applied pairwise votes.
	Votes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "votes_total",
		Help:      "Total number of applied votes, by participant kind and outcome.",
	}, []string{"kind", "outcome"})

	// Payouts counts reward transfers by reason and result.
	Payouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payouts_total",
		Help:      "Total number of reward payouts, by reason and result.",
	}, []string{"reason", "result"})
)

// Handler returns the Prometheus exposition handler for the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request duration for every route except skipPath.
func Middleware(skipPath string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			route := c.Path()
			if route == skipPath {
				return next(c)
			}

			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}
			HTTPRequestDuration.
				WithLabelValues(c.Request().Method, route, strconv.Itoa(status)).
				Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Result maps an error to the "ok"/"error" label used by the counters.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
