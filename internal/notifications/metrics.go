// internal/notifications/metrics.go

package notifications

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes Prometheus counters and histograms for the pipeline
type Metrics struct {
	notificationsCreated  *prometheus.CounterVec
	notificationsSent     *prometheus.CounterVec
	notificationsFailed   *prometheus.CounterVec
	notificationsFiltered prometheus.Counter
	channelOutcomes       *prometheus.CounterVec
	relevanceScores       prometheus.Histogram
	dispatchDuration      prometheus.Histogram
	queueSweepSize        prometheus.Histogram
}

// NewMetrics registers the pipeline metrics with the default registry
func NewMetrics() *Metrics {
	return &Metrics{
		notificationsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_created_total",
			Help: "Notifications created, by category",
		}, []string{"category"}),
		notificationsSent: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Notifications that reached sent status, by category",
		}, []string{"category"}),
		notificationsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_failed_total",
			Help: "Notifications that exhausted delivery attempts, by category",
		}, []string{"category"}),
		notificationsFiltered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "notifications_smart_filtered_total",
			Help: "Notifications demoted to in-app only by the smart filter",
		}),
		channelOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_channel_outcomes_total",
			Help: "Per-channel delivery outcomes",
		}, []string{"channel", "outcome"}),
		relevanceScores: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "notification_relevance_score",
			Help:    "Distribution of computed relevance scores",
			Buckets: prometheus.LinearBuckets(0, 1, 11),
		}),
		dispatchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "notification_dispatch_duration_seconds",
			Help:    "Time spent dispatching one notification",
			Buckets: prometheus.DefBuckets,
		}),
		queueSweepSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "notification_queue_sweep_size",
			Help:    "Due notifications claimed per sweep",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250},
		}),
	}
}

func (m *Metrics) NotificationCreated(category Category) {
	m.notificationsCreated.WithLabelValues(string(category)).Inc()
}

func (m *Metrics) NotificationSent(category Category) {
	m.notificationsSent.WithLabelValues(string(category)).Inc()
}

func (m *Metrics) NotificationFailed(category Category) {
	m.notificationsFailed.WithLabelValues(string(category)).Inc()
}

func (m *Metrics) NotificationFiltered() {
	m.notificationsFiltered.Inc()
}

func (m *Metrics) ObserveChannelOutcome(channel DeliveryChannel, success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	m.channelOutcomes.WithLabelValues(string(channel), outcome).Inc()
}

func (m *Metrics) ObserveScore(score float64) {
	m.relevanceScores.Observe(score)
}

func (m *Metrics) ObserveDispatchDuration(seconds float64) {
	m.dispatchDuration.Observe(seconds)
}

func (m *Metrics) ObserveSweepSize(count int) {
	m.queueSweepSize.Observe(float64(count))
}
