package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics of one service instance.
// Every method is safe on a nil receiver so components can run without metrics.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP Request Metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// WebSocket Metrics
	websocketConnections   prometheus.Gauge
	websocketMessagesTotal *prometheus.CounterVec
	websocketErrorsTotal   *prometheus.CounterVec

	// Chat Metrics
	chat chatMetrics

	// Push Notification Metrics
	pushNotificationsTotal  *prometheus.CounterVec
	pushNotificationsFailed *prometheus.CounterVec
}

// NewMetrics creates all metrics on a dedicated registry
func NewMetrics(serviceName string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)
	labels := prometheus.Labels{"service": serviceName}

	m := &Metrics{
		registry: reg,

		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "http_requests_total",
				Help:        "Total number of HTTP requests",
				ConstLabels: labels,
			},
			[]string{"method", "endpoint", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "http_request_duration_seconds",
				Help:        "HTTP request latency in seconds",
				ConstLabels: labels,
				Buckets:     prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		httpRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "http_requests_in_flight",
				Help:        "Number of HTTP requests currently being processed",
				ConstLabels: labels,
			},
		),

		websocketConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "websocket_connections",
				Help:        "Number of active WebSocket connections",
				ConstLabels: labels,
			},
		),
		websocketMessagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "websocket_messages_total",
				Help:        "Total number of WebSocket messages",
				ConstLabels: labels,
			},
			[]string{"type", "direction"},
		),
		websocketErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "websocket_errors_total",
				Help:        "Total number of WebSocket errors",
				ConstLabels: labels,
			},
			[]string{"error"},
		),

		chat: newChatMetrics(factory, labels),

		pushNotificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "push_notifications_total",
				Help:        "Total number of push notifications sent",
				ConstLabels: labels,
			},
			[]string{"type", "platform"},
		),
		pushNotificationsFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "push_notifications_failed_total",
				Help:        "Total number of failed push notifications",
				ConstLabels: labels,
			},
			[]string{"type", "platform", "reason"},
		),
	}

	return m
}

// Gatherer merges this instance's registry with the process-wide default one
// where the storage metrics live
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m == nil {
		return prometheus.DefaultGatherer
	}
	return prometheus.Gatherers{m.registry, prometheus.DefaultGatherer}
}

// HTTP Metrics Methods

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// IncrementHTTPRequestsInFlight increments the number of in-flight HTTP requests
func (m *Metrics) IncrementHTTPRequestsInFlight() {
	if m == nil {
		return
	}
	m.httpRequestsInFlight.Inc()
}

// DecrementHTTPRequestsInFlight decrements the number of in-flight HTTP requests
func (m *Metrics) DecrementHTTPRequestsInFlight() {
	if m == nil {
		return
	}
	m.httpRequestsInFlight.Dec()
}

// WebSocket Metrics Methods

// SetWebSocketConnections sets the number of active WebSocket connections
func (m *Metrics) SetWebSocketConnections(count int) {
	if m == nil {
		return
	}
	m.websocketConnections.Set(float64(count))
}

// RecordWebSocketMessage records a WebSocket message
func (m *Metrics) RecordWebSocketMessage(msgType, direction string) {
	if m == nil {
		return
	}
	m.websocketMessagesTotal.WithLabelValues(msgType, direction).Inc()
}

// RecordWebSocketError records a WebSocket error
func (m *Metrics) RecordWebSocketError(err string) {
	if m == nil {
		return
	}
	m.websocketErrorsTotal.WithLabelValues(err).Inc()
}

// Push Notification Metrics Methods

// RecordPushNotification records a push notification
func (m *Metrics) RecordPushNotification(notifType, platform string) {
	if m == nil {
		return
	}
	m.pushNotificationsTotal.WithLabelValues(notifType, platform).Inc()
}

// RecordPushNotificationFailure records a failed push notification
func (m *Metrics) RecordPushNotificationFailure(notifType, platform, reason string) {
	if m == nil {
		return
	}
	m.pushNotificationsFailed.WithLabelValues(notifType, platform, reason).Inc()
}
