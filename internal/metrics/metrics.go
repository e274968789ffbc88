package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"beaconattend/internal/attendance"
)

// Metrics owns the Prometheus registry of the API process. It implements
// attendance.Observer.
type Metrics struct {
	registry *prometheus.Registry
	handler  http.Handler

	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	checks          *prometheus.CounterVec
	distance        *prometheus.HistogramVec
	transitions     *prometheus.CounterVec
	autoActivated   prometheus.Counter
	jobFailures     *prometheus.CounterVec
}

var _ attendance.Observer = (*Metrics)(nil)

// New registers the collectors on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "beaconattend_proximity_checks_total",
			Help: "Proximity gate outcomes by phase (pre, post) and result code",
		}, []string{"phase", "outcome"}),
		distance: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "beaconattend_student_distance_meters",
			Help:    "Measured student to beacon distance",
			Buckets: []float64{2, 5, 8, 10, 12, 15, 20, 30, 50, 100, 500},
		}, []string{"phase"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "beaconattend_attendance_transitions_total",
			Help: "Attendance records advanced, by capture stage",
		}, []string{"stage"}),
		autoActivated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "beaconattend_auto_activations_total",
			Help: "Classes made live by the auto-activation scan",
		}),
		jobFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "beaconattend_job_failures_total",
			Help: "Background job failures by job name",
		}, []string{"job"}),
	}

	registry.MustRegister(
		m.requestDuration, m.requestTotal,
		m.checks, m.distance, m.transitions, m.autoActivated, m.jobFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Handler exposes the registry.
func (m *Metrics) Handler() http.Handler { return m.handler }

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) ObserveCheck(phase, outcome string) {
	m.checks.WithLabelValues(phase, outcome).Inc()
}

func (m *Metrics) ObserveDistance(phase string, meters float64) {
	m.distance.WithLabelValues(phase).Observe(meters)
}

func (m *Metrics) ObserveTransition(stage attendance.BeaconType) {
	m.transitions.WithLabelValues(string(stage)).Inc()
}

// AutoActivated counts classes made live by one scan.
func (m *Metrics) AutoActivated(n int) {
	m.autoActivated.Add(float64(n))
}

// JobFailed counts a failed background job run.
func (m *Metrics) JobFailed(job string) {
	m.jobFailures.WithLabelValues(job).Inc()
}

// GinMiddleware records request count and latency per route template.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.requestTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		m.requestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
	}
}
