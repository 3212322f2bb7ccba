package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// chatMetrics monitors the message lifecycle and realtime delivery
type chatMetrics struct {
	messagesAccepted   *prometheus.CounterVec
	messagesRejected   *prometheus.CounterVec
	sendDuration       *prometheus.HistogramVec
	deliveries         *prometheus.CounterVec
	notificationsTotal *prometheus.CounterVec
	slowConsumers      prometheus.Counter
	conversations      *prometheus.CounterVec
	usersOnline        prometheus.Gauge
	typingExpired      prometheus.Counter
}

func newChatMetrics(factory promauto.Factory, labels prometheus.Labels) chatMetrics {
	return chatMetrics{
		messagesAccepted: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "chat_messages_accepted_total",
			Help:        "Total number of messages persisted",
			ConstLabels: labels,
		}, []string{"message_type"}),
		messagesRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "chat_messages_rejected_total",
			Help:        "Total number of messages rejected before persistence",
			ConstLabels: labels,
		}, []string{"reason"}),
		sendDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "chat_message_send_duration_seconds",
			Help:        "Time taken by each step of a send",
			ConstLabels: labels,
			Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"step"}), // "persist", "record", "dispatch"
		deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "chat_event_deliveries_total",
			Help:        "Realtime event delivery attempts by channel and outcome",
			ConstLabels: labels,
		}, []string{"channel", "outcome"}), // "delivered", "offline", "error"
		notificationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "chat_offline_notifications_total",
			Help:        "Notifications created because a recipient had no live session",
			ConstLabels: labels,
		}, []string{"status"}),
		slowConsumers: factory.NewCounter(prometheus.CounterOpts{
			Name:        "chat_slow_consumer_disconnects_total",
			Help:        "Sessions closed because their send buffer was full",
			ConstLabels: labels,
		}),
		conversations: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "chat_conversations_total",
			Help:        "Find-or-create outcomes",
			ConstLabels: labels,
		}, []string{"outcome"}), // "created", "found"
		usersOnline: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "chat_users_online",
			Help:        "Users with at least one live session on this replica",
			ConstLabels: labels,
		}),
		typingExpired: factory.NewCounter(prometheus.CounterOpts{
			Name:        "chat_typing_expired_total",
			Help:        "Typing indicators cleared by timeout",
			ConstLabels: labels,
		}),
	}
}

// RecordMessageAccepted counts a persisted message
func (m *Metrics) RecordMessageAccepted(messageType string) {
	if m == nil {
		return
	}
	m.chat.messagesAccepted.WithLabelValues(messageType).Inc()
}

// RecordMessageRejected counts a send refused before persistence
func (m *Metrics) RecordMessageRejected(reason string) {
	if m == nil {
		return
	}
	m.chat.messagesRejected.WithLabelValues(reason).Inc()
}

// ObserveSendStep records the latency of one step of a send
func (m *Metrics) ObserveSendStep(step string, start time.Time) {
	if m == nil {
		return
	}
	m.chat.sendDuration.WithLabelValues(step).Observe(time.Since(start).Seconds())
}

// RecordDelivery records the outcome of publishing one event to one user
func (m *Metrics) RecordDelivery(channel, outcome string) {
	if m == nil {
		return
	}
	m.chat.deliveries.WithLabelValues(channel, outcome).Inc()
}

// RecordOfflineNotification records the outcome of a notification fallback
func (m *Metrics) RecordOfflineNotification(status string) {
	if m == nil {
		return
	}
	m.chat.notificationsTotal.WithLabelValues(status).Inc()
}

// RecordSlowConsumer counts a session dropped for a full buffer
func (m *Metrics) RecordSlowConsumer() {
	if m == nil {
		return
	}
	m.chat.slowConsumers.Inc()
}

// RecordConversation counts a find-or-create outcome
func (m *Metrics) RecordConversation(created bool) {
	if m == nil {
		return
	}
	outcome := "found"
	if created {
		outcome = "created"
	}
	m.chat.conversations.WithLabelValues(outcome).Inc()
}

// SetUsersOnline sets the number of locally connected users
func (m *Metrics) SetUsersOnline(count int) {
	if m == nil {
		return
	}
	m.chat.usersOnline.Set(float64(count))
}

// RecordTypingExpired counts typing entries removed by timeout
func (m *Metrics) RecordTypingExpired(count int) {
	if m == nil || count == 0 {
		return
	}
	m.chat.typingExpired.Add(float64(count))
}
