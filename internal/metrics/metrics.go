package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salesflow_http_requests_total",
			Help: "Total HTTP requests by method, path, and status",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "salesflow_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	eventsClassified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salesflow_events_classified_total",
			Help: "Inbound events by classification outcome",
		},
		[]string{"trigger"},
	)

	jobsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salesflow_jobs_created_total",
			Help: "Follow-up jobs created by type",
		},
		[]string{"type"},
	)

	jobsDuplicate = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "salesflow_jobs_duplicate_total",
			Help: "Job creations skipped because the job already existed",
		},
	)

	deliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salesflow_deliveries_total",
			Help: "Delivery attempts by type and terminal status",
		},
		[]string{"type", "status"},
	)

	deliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "salesflow_delivery_duration_seconds",
			Help:    "Channel send latency distribution",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10},
		},
		[]string{"type"},
	)

	phaseTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salesflow_phase_transitions_total",
			Help: "Chat phase transitions applied by value",
		},
		[]string{"phase"},
	)

	tasksDispatched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "salesflow_tasks_dispatched_total",
			Help: "Jobs registered with the delayed-execution queue",
		},
	)

	sweepRequeued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "salesflow_sweep_requeued_total",
			Help: "Overdue pending jobs re-dispatched by the reconciliation sweep",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordEventClassified records a classification outcome ("none" for no match)
func RecordEventClassified(trigger string) {
	eventsClassified.WithLabelValues(trigger).Inc()
}

// RecordJobCreated records a new pending job
func RecordJobCreated(jobType string) {
	jobsCreated.WithLabelValues(jobType).Inc()
}

// RecordJobDuplicate records an idempotent creation no-op
func RecordJobDuplicate() {
	jobsDuplicate.Inc()
}

// RecordDelivery records a delivery attempt outcome
func RecordDelivery(jobType, status string) {
	deliveriesTotal.WithLabelValues(jobType, status).Inc()
}

// RecordDeliveryDuration records channel send latency
func RecordDeliveryDuration(jobType string, d time.Duration) {
	deliveryDuration.WithLabelValues(jobType).Observe(d.Seconds())
}

// RecordPhaseTransition records an applied phase advance
func RecordPhaseTransition(phase string) {
	phaseTransitions.WithLabelValues(phase).Inc()
}

// RecordTaskDispatched records a queue registration
func RecordTaskDispatched() {
	tasksDispatched.Inc()
}

// RecordSweepRequeued records a reconciliation re-dispatch
func RecordSweepRequeued() {
	sweepRequeued.Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware returns HTTP middleware that records request metrics
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		RecordRequest(r.Method, r.URL.Path, wrapped.status, time.Since(start))
	})
}
