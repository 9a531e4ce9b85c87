package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequestsTotal  *prometheus.CounterVec
	httpLatencySeconds *prometheus.HistogramVec
	httpErrorsTotal    *prometheus.CounterVec

	ingestionsTotal         *prometheus.CounterVec
	normalizationFallbacks  *prometheus.CounterVec
	exerciseCacheTotal      *prometheus.CounterVec
	submissionsScoredTotal  *prometheus.CounterVec
	submissionScoreObserved prometheus.Histogram
	regradesTotal           *prometheus.CounterVec
	reviewTransitionsTotal  *prometheus.CounterVec
	eventsPublishedTotal    *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gema_http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gema_http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gema_http_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		ingestionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gema_ingest_exercises_total",
			Help: "Exercise ingestions by source and outcome.",
		}, []string{"source", "outcome"})

		normalizationFallbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gema_ingest_normalization_fallbacks_total",
			Help: "Question fields that fell back to a default during normalization.",
		}, []string{"field"})

		exerciseCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gema_exercise_cache_total",
			Help: "Exercise cache lookups by result.",
		}, []string{"result"})

		submissionsScoredTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gema_submissions_scored_total",
			Help: "Submissions scored by outcome.",
		}, []string{"outcome"})

		submissionScoreObserved = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gema_submission_score",
			Help:    "Distribution of submission scores on the 0-100 scale.",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		})

		regradesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gema_regrades_total",
			Help: "Regrade requests by outcome.",
		}, []string{"outcome"})

		reviewTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gema_review_transitions_total",
			Help: "Review status transitions by target status and outcome.",
		}, []string{"status", "outcome"})

		eventsPublishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gema_events_published_total",
			Help: "Domain events published by subject and outcome.",
		}, []string{"subject", "outcome"})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpLatencySeconds,
			httpErrorsTotal,
			ingestionsTotal,
			normalizationFallbacks,
			exerciseCacheTotal,
			submissionsScoredTotal,
			submissionScoreObserved,
			regradesTotal,
			reviewTransitionsTotal,
			eventsPublishedTotal,
		)
	})
}

// HTTPRequests exposes the counter for API requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for API requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the counter for API error responses.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// Ingestions exposes the exercise ingestion counter.
func Ingestions() *prometheus.CounterVec {
	RegisterMetrics()
	return ingestionsTotal
}

// NormalizationFallbacks exposes the per-field normalization fallback counter.
func NormalizationFallbacks() *prometheus.CounterVec {
	RegisterMetrics()
	return normalizationFallbacks
}

// ExerciseCache exposes the exercise cache hit/miss counter.
func ExerciseCache() *prometheus.CounterVec {
	RegisterMetrics()
	return exerciseCacheTotal
}

// SubmissionsScored exposes the scored submission counter.
func SubmissionsScored() *prometheus.CounterVec {
	RegisterMetrics()
	return submissionsScoredTotal
}

// SubmissionScores exposes the score distribution histogram.
func SubmissionScores() prometheus.Histogram {
	RegisterMetrics()
	return submissionScoreObserved
}

// Regrades exposes the regrade counter.
func Regrades() *prometheus.CounterVec {
	RegisterMetrics()
	return regradesTotal
}

// ReviewTransitions exposes the review transition counter.
func ReviewTransitions() *prometheus.CounterVec {
	RegisterMetrics()
	return reviewTransitionsTotal
}

// EventsPublished exposes the domain event counter.
func EventsPublished() *prometheus.CounterVec {
	RegisterMetrics()
	return eventsPublishedTotal
}
