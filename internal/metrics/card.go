package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/ryanbastic/go-scorecard/internal/circuitbreaker"
)

// Card request outcomes.
const (
	OutcomeHit    = "hit"
	OutcomeBuilt  = "built"
	OutcomeJoined = "joined"
	OutcomeError  = "error"
)

// Build results.
const (
	BuildSuccess      = "success"
	BuildRenderError  = "render_error"
	BuildEncodeError  = "encode_error"
	BuildStorageError = "storage_error"
	BuildSuperseded   = "superseded"
)

var (
	cardRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scorecard",
			Name:      "card_requests_total",
			Help:      "Card reads by outcome.",
		},
		[]string{"outcome"},
	)

	cardBuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scorecard",
			Name:      "card_builds_total",
			Help:      "Card builds by result.",
		},
		[]string{"result"},
	)

	cardBuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "scorecard",
			Name:      "card_build_duration_seconds",
			Help:      "Time from build start to settlement.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	cardBuildsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "scorecard",
			Name:      "card_builds_in_flight",
			Help:      "Number of card builds currently running.",
		},
	)

	encodeAttempts = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "scorecard",
			Name:      "encode_attempts",
			Help:      "JPEG encodes needed to fit the byte budget.",
			Buckets:   []float64{1, 2, 3, 4, 6, 8, 12},
		},
		[]string{"kind"},
	)

	encodedBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "scorecard",
			Name:      "encoded_bytes",
			Help:      "Size of encoded artifacts in bytes.",
			Buckets:   prometheus.ExponentialBuckets(8<<10, 2, 8),
		},
		[]string{"kind"},
	)

	invalidationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "scorecard",
			Name:      "invalidations_total",
			Help:      "Card invalidations triggered by score updates.",
		},
	)

	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "scorecard",
			Name:      "artifact_breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 open, 2 half-open).",
		},
		[]string{"breaker"},
	)
)

// CardRequest counts one card read.
func CardRequest(outcome string) {
	cardRequestsTotal.WithLabelValues(outcome).Inc()
}

// BuildStarted marks a build as running and returns a func that settles it.
func BuildStarted() func(result string) {
	cardBuildsInFlight.Inc()
	start := time.Now()
	return func(result string) {
		cardBuildsInFlight.Dec()
		cardBuildDuration.Observe(time.Since(start).Seconds())
		cardBuildsTotal.WithLabelValues(result).Inc()
	}
}

// Encoded records one successful budgeted encode. kind is "card" or "avatar".
func Encoded(kind string, attempts, size int) {
	encodeAttempts.WithLabelValues(kind).Observe(float64(attempts))
	encodedBytes.WithLabelValues(kind).Observe(float64(size))
}

// Invalidated counts one card invalidation.
func Invalidated() {
	invalidationsTotal.Inc()
}

// BreakerStateChanged is a circuitbreaker.StateChangeFunc.
func BreakerStateChanged(name string, from, to circuitbreaker.State) {
	breakerState.WithLabelValues(name).Set(float64(to))
}
