package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Runner metrics
	TickDuration     prometheus.Histogram
	EnrollmentsTotal *prometheus.CounterVec
	DeliveriesTotal  *prometheus.CounterVec

	// Intake and compliance metrics
	ProspectsIngested *prometheus.CounterVec
	InboundKeywords   *prometheus.CounterVec

	// Database metrics
	DBConnections prometheus.Gauge

	// Cache metrics
	LockContention *prometheus.CounterVec
}

// New creates a new Metrics instance with all metrics registered on reg.
// Pass prometheus.DefaultRegisterer in production; tests use a fresh registry.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		HTTPResponseSize: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 5000, 10000, 50000, 100000, 500000, 1000000},
			},
			[]string{"method", "path"},
		),

		// Runner metrics
		TickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "outreach_tick_duration_seconds",
			Help:    "Duration of one runner tick",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		EnrollmentsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outreach_enrollments_processed_total",
				Help: "Due enrollments processed by the runner, by outcome",
			},
			[]string{"outcome"}, // sent, completed, retried, failed, opted_out, throttled, quiet_hours, skipped
		),
		DeliveriesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outreach_deliveries_total",
				Help: "Delivery attempts, by channel and outcome",
			},
			[]string{"channel", "outcome"},
		),

		// Intake and compliance metrics
		ProspectsIngested: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outreach_prospects_ingested_total",
				Help: "Provider records ingested, by result",
			},
			[]string{"result"}, // inserted, updated, skipped
		),
		InboundKeywords: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outreach_inbound_keywords_total",
				Help: "Inbound replies handled, by action",
			},
			[]string{"action"},
		),

		// Database metrics
		DBConnections: f.NewGauge(prometheus.GaugeOpts{
			Name: "db_connections_active",
			Help: "Number of active database connections",
		}),

		// Cache metrics
		LockContention: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outreach_job_lock_busy_total",
				Help: "Scheduled jobs skipped because another instance held the lock",
			},
			[]string{"job"},
		),
	}

	return m
}

// Middleware creates an Echo middleware for Prometheus metrics
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			path := c.Path() // route pattern, e.g. /outreach/enrollments/:id

			err := next(c)

			status := c.Response().Status
			duration := time.Since(start).Seconds()

			m.HTTPRequestsTotal.WithLabelValues(req.Method, path, strconv.Itoa(status)).Inc()
			m.HTTPRequestDuration.WithLabelValues(req.Method, path, strconv.Itoa(status)).Observe(duration)
			m.HTTPResponseSize.WithLabelValues(req.Method, path).Observe(float64(c.Response().Size))

			return err
		}
	}
}

// ObserveTick records how long a runner tick took.
func (m *Metrics) ObserveTick(d time.Duration) {
	m.TickDuration.Observe(d.Seconds())
}

// RecordEnrollment increments the processed enrollments counter.
func (m *Metrics) RecordEnrollment(outcome string) {
	m.EnrollmentsTotal.WithLabelValues(outcome).Inc()
}

// RecordDelivery increments the delivery attempts counter.
func (m *Metrics) RecordDelivery(channel, outcome string) {
	m.DeliveriesTotal.WithLabelValues(channel, outcome).Inc()
}

// RecordIngest adds one intake run's counts.
func (m *Metrics) RecordIngest(inserted, updated, skipped int) {
	m.ProspectsIngested.WithLabelValues("inserted").Add(float64(inserted))
	m.ProspectsIngested.WithLabelValues("updated").Add(float64(updated))
	m.ProspectsIngested.WithLabelValues("skipped").Add(float64(skipped))
}

// RecordInbound increments the inbound keyword counter.
func (m *Metrics) RecordInbound(action string) {
	m.InboundKeywords.WithLabelValues(action).Inc()
}

// UpdateDBConnections updates active database connections gauge
func (m *Metrics) UpdateDBConnections(count float64) {
	m.DBConnections.Set(count)
}

// RecordLockBusy counts a scheduled job skipped on a held lock.
func (m *Metrics) RecordLockBusy(job string) {
	m.LockContention.WithLabelValues(job).Inc()
}
