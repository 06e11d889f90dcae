package observability

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce              sync.Once
	httpRequestsTotal         *prometheus.CounterVec
	httpLatencySeconds        *prometheus.HistogramVec
	httpErrorsTotal           *prometheus.CounterVec
	applicationsSubmitted     *prometheus.CounterVec
	reviewsRecorded           *prometheus.CounterVec
	roundAdvancements         *prometheus.CounterVec
	notificationCacheRequests *prometheus.CounterVec
	eventsPublished           *prometheus.CounterVec
	eventStreamClients        prometheus.Gauge
)

// RegisterMetrics initialises the Prometheus collectors used by the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "comphub_http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "comphub_http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "comphub_http_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		applicationsSubmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "comphub_applications_submitted_total",
			Help: "Submission attempts grouped by outcome.",
		}, []string{"result"})

		reviewsRecorded = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "comphub_reviews_recorded_total",
			Help: "Reviews recorded grouped by evaluation policy and outcome.",
		}, []string{"policy", "result"})

		roundAdvancements = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "comphub_round_advancements_total",
			Help: "Round activation attempts grouped by outcome.",
		}, []string{"result"})

		notificationCacheRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "comphub_notification_cache_requests_total",
			Help: "Notification stream reads grouped by stream and cache outcome.",
		}, []string{"stream", "result"})

		eventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "comphub_events_published_total",
			Help: "Domain events delivered to subscribers grouped by kind and origin.",
		}, []string{"kind", "origin"})

		eventStreamClients = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "comphub_event_stream_clients",
			Help: "Currently connected event stream subscribers.",
		})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpLatencySeconds,
			httpErrorsTotal,
			applicationsSubmitted,
			reviewsRecorded,
			roundAdvancements,
			notificationCacheRequests,
			eventsPublished,
			eventStreamClients,
		)
	})
}

// MetricsHandler serves the comphub collectors, together with the Go runtime ones, for scraping.
func MetricsHandler() fiber.Handler {
	RegisterMetrics()
	return adaptor.HTTPHandler(promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		ErrorHandling:     promhttp.ContinueOnError,
		EnableOpenMetrics: true,
	}))
}

// HTTPRequests exposes the request counter.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the request latency histogram.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the counter for error responses.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// ApplicationsSubmitted exposes the submission counter.
func ApplicationsSubmitted() *prometheus.CounterVec {
	RegisterMetrics()
	return applicationsSubmitted
}

// ReviewsRecorded exposes the review counter.
func ReviewsRecorded() *prometheus.CounterVec {
	RegisterMetrics()
	return reviewsRecorded
}

// RoundAdvancements exposes the round transition counter.
func RoundAdvancements() *prometheus.CounterVec {
	RegisterMetrics()
	return roundAdvancements
}

// NotificationCacheRequests exposes the notification cache counter.
func NotificationCacheRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return notificationCacheRequests
}

// EventsPublished exposes the event delivery counter.
func EventsPublished() *prometheus.CounterVec {
	RegisterMetrics()
	return eventsPublished
}

// EventStreamClients exposes the gauge of connected subscribers.
func EventStreamClients() prometheus.Gauge {
	RegisterMetrics()
	return eventStreamClients
}
