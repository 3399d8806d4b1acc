package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains all platform-level metrics (not component-specific)
type Metrics struct {
	// Session metrics
	SessionsActive    prometheus.Gauge
	SessionsTotal     prometheus.Counter
	FramesReceived    *prometheus.CounterVec
	FramesSent        *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	ErrorsTotal       *prometheus.CounterVec
	HealthCheckStatus *prometheus.GaugeVec

	// Computation job metrics
	JobsRunning  *prometheus.GaugeVec
	JobsTotal    *prometheus.CounterVec
	JobDuration  *prometheus.HistogramVec

	// Stream metrics
	StreamQueueDepth *prometheus.GaugeVec
	TilesSent        prometheus.Counter
	AnimationCredits *prometheus.GaugeVec

	// NATS metrics
	NATSConnected      prometheus.Gauge
	NATSRTT            prometheus.Gauge
	NATSReconnects     prometheus.Counter
	NATSCircuitBreaker prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all platform metrics
func NewMetrics() *Metrics {
	return &Metrics{
		SessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "cubestream",
				Subsystem: "session",
				Name:      "active",
				Help:      "Number of currently registered viewer sessions",
			},
		),

		SessionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "cubestream",
				Subsystem: "session",
				Name:      "total",
				Help:      "Total number of viewer sessions registered",
			},
		),

		FramesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cubestream",
				Subsystem: "frames",
				Name:      "received_total",
				Help:      "Total number of request frames received",
			},
			[]string{"event_type"},
		),

		FramesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cubestream",
				Subsystem: "frames",
				Name:      "sent_total",
				Help:      "Total number of frames sent to viewers",
			},
			[]string{"event_type"},
		),

		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "cubestream",
				Subsystem: "dispatch",
				Name:      "duration_seconds",
				Help:      "Request handling duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"event_type"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cubestream",
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total number of errors",
			},
			[]string{"component", "type"},
		),

		HealthCheckStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "cubestream",
				Subsystem: "health",
				Name:      "status",
				Help:      "Health check status (0=unhealthy, 1=healthy)",
			},
			[]string{"component"},
		),

		JobsRunning: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "cubestream",
				Subsystem: "jobs",
				Name:      "running",
				Help:      "Number of currently running computation jobs",
			},
			[]string{"kind"},
		),

		JobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cubestream",
				Subsystem: "jobs",
				Name:      "total",
				Help:      "Total number of computation jobs by terminal outcome",
			},
			[]string{"kind", "outcome"},
		),

		JobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "cubestream",
				Subsystem: "jobs",
				Name:      "duration_seconds",
				Help:      "Computation job duration in seconds",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"kind"},
		),

		StreamQueueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "cubestream",
				Subsystem: "stream",
				Name:      "queue_depth",
				Help:      "Outbound stream queue depth per category",
			},
			[]string{"category"},
		),

		TilesSent: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "cubestream",
				Subsystem: "stream",
				Name:      "tiles_sent_total",
				Help:      "Total number of raster tiles sent",
			},
		),

		AnimationCredits: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "cubestream",
				Subsystem: "animation",
				Name:      "credits",
				Help:      "Available flow-control credits per animation",
			},
			[]string{"animation_id"},
		),

		// NATS metrics
		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "cubestream",
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),

		NATSRTT: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "cubestream",
				Subsystem: "nats",
				Name:      "rtt_milliseconds",
				Help:      "NATS round-trip time in milliseconds",
			},
		),

		NATSReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "cubestream",
				Subsystem: "nats",
				Name:      "reconnects_total",
				Help:      "Total number of NATS reconnections",
			},
		),

		NATSCircuitBreaker: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "cubestream",
				Subsystem: "nats",
				Name:      "circuit_breaker",
				Help:      "NATS circuit breaker status (0=closed, 1=open, 2=half-open)",
			},
		),
	}
}

// RecordSessionOpened tracks a new viewer session
func (c *Metrics) RecordSessionOpened() {
	c.SessionsActive.Inc()
	c.SessionsTotal.Inc()
}

// RecordSessionClosed tracks a closed viewer session
func (c *Metrics) RecordSessionClosed() {
	c.SessionsActive.Dec()
}

// RecordFrameReceived increments the received frame counter
func (c *Metrics) RecordFrameReceived(eventType string) {
	c.FramesReceived.WithLabelValues(eventType).Inc()
}

// RecordFrameSent increments the sent frame counter
func (c *Metrics) RecordFrameSent(eventType string) {
	c.FramesSent.WithLabelValues(eventType).Inc()
}

// RecordRequestDuration records request handling time
func (c *Metrics) RecordRequestDuration(eventType string, duration time.Duration) {
	c.RequestDuration.WithLabelValues(eventType).Observe(duration.Seconds())
}

// RecordError increments error counter
func (c *Metrics) RecordError(component, errorType string) {
	c.ErrorsTotal.WithLabelValues(component, errorType).Inc()
}

// RecordHealthStatus updates health check status
func (c *Metrics) RecordHealthStatus(component string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	c.HealthCheckStatus.WithLabelValues(component).Set(value)
}

// RecordJobStarted tracks a computation job entering the running state
func (c *Metrics) RecordJobStarted(kind string) {
	c.JobsRunning.WithLabelValues(kind).Inc()
}

// RecordJobFinished tracks a job reaching a terminal outcome
// (completed, cancelled, or failed)
func (c *Metrics) RecordJobFinished(kind, outcome string, duration time.Duration) {
	c.JobsRunning.WithLabelValues(kind).Dec()
	c.JobsTotal.WithLabelValues(kind, outcome).Inc()
	c.JobDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordStreamQueueDepth updates the queue depth for a stream category
func (c *Metrics) RecordStreamQueueDepth(category string, depth int) {
	c.StreamQueueDepth.WithLabelValues(category).Set(float64(depth))
}

// RecordTileSent increments the sent tile counter
func (c *Metrics) RecordTileSent() {
	c.TilesSent.Inc()
}

// RecordAnimationCredits updates the available credit gauge for an animation
func (c *Metrics) RecordAnimationCredits(animationID string, credits int) {
	c.AnimationCredits.WithLabelValues(animationID).Set(float64(credits))
}

// RecordNATSStatus updates NATS connection status
func (c *Metrics) RecordNATSStatus(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	c.NATSConnected.Set(value)
}

// RecordNATSRTT updates NATS round-trip time
func (c *Metrics) RecordNATSRTT(rtt time.Duration) {
	c.NATSRTT.Set(float64(rtt.Milliseconds()))
}

// RecordNATSReconnect increments reconnection counter
func (c *Metrics) RecordNATSReconnect() {
	c.NATSReconnects.Inc()
}

// RecordCircuitBreakerState updates circuit breaker status
func (c *Metrics) RecordCircuitBreakerState(state int) {
	c.NATSCircuitBreaker.Set(float64(state))
}
