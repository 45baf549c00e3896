package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the timetable
// engine: HTTP traffic, resolver latency and substitution workflow counters.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	resolveDuration prometheus.Observer
	substitutionGap prometheus.Counter
	changeReviews   *prometheus.CounterVec
	generateRuns    *prometheus.HistogramVec
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	resolveDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "timetable_resolve_duration_seconds",
		Help:    "Time spent resolving a class-day schedule",
		Buckets: prometheus.DefBuckets,
	})

	substitutionGap := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "substitution_gaps_total",
		Help: "Slots resolved with an absent teacher and no substitute",
	})

	changeReviews := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "timetable_change_reviews_total",
		Help: "Change proposals reviewed, partitioned by verdict",
	}, []string{"verdict"})

	generateRuns := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "timetable_generation_duration_seconds",
		Help:    "Duration of bulk timetable generation runs",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"outcome"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, resolveDuration, substitutionGap, changeReviews, generateRuns, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		resolveDuration: resolveDuration,
		substitutionGap: substitutionGap,
		changeReviews:   changeReviews,
		generateRuns:    generateRuns,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records per-route request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// ObserveResolve records one resolver run.
func (m *MetricsService) ObserveResolve(duration time.Duration) {
	if m == nil {
		return
	}
	m.resolveDuration.Observe(duration.Seconds())
}

// RecordSubstitutionGap counts a slot left uncovered by any substitute.
func (m *MetricsService) RecordSubstitutionGap() {
	if m == nil {
		return
	}
	m.substitutionGap.Inc()
}

// RecordChangeReview counts an approval or rejection.
func (m *MetricsService) RecordChangeReview(verdict string) {
	if m == nil {
		return
	}
	m.changeReviews.WithLabelValues(verdict).Inc()
}

// ObserveGeneration records one bulk generation run.
func (m *MetricsService) ObserveGeneration(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.generateRuns.WithLabelValues(outcome).Observe(duration.Seconds())
}
