package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SyncMetrics records quote sync runs and webhook event outcomes per provider.
type SyncMetrics struct {
	synced   *prometheus.CounterVec
	failed   *prometheus.CounterVec
	skipped  *prometheus.CounterVec
	duration *prometheus.HistogramVec
	webhooks *prometheus.CounterVec
}

// NewSyncMetrics registers the sync metrics on the provided registerer.
func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	if reg == nil {
		return &SyncMetrics{}
	}
	m := &SyncMetrics{
		synced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quote_sync_synced_total",
			Help: "Quotes written by the sync orchestrator.",
		}, []string{"provider"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quote_sync_failed_total",
			Help: "Quotes the sync orchestrator could not import.",
		}, []string{"provider"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quote_sync_skipped_total",
			Help: "Quotes left untouched because of their local status.",
		}, []string{"provider"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quote_sync_duration_seconds",
			Help:    "Duration of tenant quote sync runs in seconds.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"provider"}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Provider webhook events by entity and outcome.",
		}, []string{"provider", "entity", "outcome"}),
	}
	reg.MustRegister(m.synced, m.failed, m.skipped, m.duration, m.webhooks)
	return m
}

// ObserveRun records the tallies of one sync run.
func (m *SyncMetrics) ObserveRun(provider string, synced, failed, skipped int, duration time.Duration) {
	if m == nil || m.synced == nil {
		return
	}
	provider = normalizeLabel(provider)
	m.synced.WithLabelValues(provider).Add(float64(synced))
	m.failed.WithLabelValues(provider).Add(float64(failed))
	m.skipped.WithLabelValues(provider).Add(float64(skipped))
	m.duration.WithLabelValues(provider).Observe(duration.Seconds())
}

// IncWebhookEvent counts one processed webhook event.
func (m *SyncMetrics) IncWebhookEvent(provider, entity, outcome string) {
	if m == nil || m.webhooks == nil {
		return
	}
	m.webhooks.WithLabelValues(normalizeLabel(provider), normalizeLabel(entity), normalizeLabel(outcome)).Inc()
}
