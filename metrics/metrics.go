package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cppla/empire/models"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "empire",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "empire",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "empire",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "route"},
	)

	checkIns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "empire",
			Subsystem: "checkin",
			Name:      "attempts_total",
			Help:      "Check-in attempts by outcome.",
		},
		[]string{"outcome"},
	)

	ledgerChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "empire",
			Subsystem: "reputation",
			Name:      "changes_total",
			Help:      "Reputation balance mutations by source, direction and outcome.",
		},
		[]string{"source", "direction", "outcome"},
	)

	pointsIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "empire",
			Subsystem: "reputation",
			Name:      "points_total",
			Help:      "Absolute reputation points moved, by source and direction.",
		},
		[]string{"source", "direction"},
	)
)

// Check-in outcomes.
const (
	OutcomeSuccess      = "success"
	OutcomeDuplicate    = "duplicate"
	OutcomeInsufficient = "insufficient"
	OutcomeError        = "error"
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		checkIns,
		ledgerChanges,
		pointsIssued,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// GinMiddleware records request count and latency per matched route.
func GinMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if ctx.Request.URL.Path == "/metrics" {
			ctx.Next()
			return
		}
		start := time.Now()
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		ctx.Next()

		route := ctx.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequests.WithLabelValues(ctx.Request.Method, route, strconv.Itoa(ctx.Writer.Status())).Inc()
		httpDuration.WithLabelValues(ctx.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// RecordCheckIn counts one check-in attempt.
func RecordCheckIn(outcome string) {
	checkIns.WithLabelValues(outcome).Inc()
}

// RecordLedgerChange counts one credit or debit attempt and the points it moved.
func RecordLedgerChange(source models.SourceType, delta int, outcome string) {
	direction := "credit"
	abs := delta
	if delta < 0 {
		direction = "debit"
		abs = -delta
	}
	ledgerChanges.WithLabelValues(string(source), direction, outcome).Inc()
	if outcome == OutcomeSuccess {
		pointsIssued.WithLabelValues(string(source), direction).Add(float64(abs))
	}
}
