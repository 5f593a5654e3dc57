package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncMetricsObserveRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSyncMetrics(reg)

	m.ObserveRun("qbo", 48, 2, 5, 3*time.Second)
	m.ObserveRun("qbo", 2, 0, 0, time.Second)

	assert.Equal(t, float64(50), testutil.ToFloat64(m.synced.WithLabelValues("qbo")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.failed.WithLabelValues("qbo")))
	assert.Equal(t, float64(5), testutil.ToFloat64(m.skipped.WithLabelValues("qbo")))

	mfs, err := reg.Gather()
	require.NoError(t, err)
	sum, err := fetchHistogramSum(mfs, "quote_sync_duration_seconds", "provider", "qbo")
	require.NoError(t, err)
	assert.InDelta(t, 4.0, sum, 0.001)
}

func TestSyncMetricsWebhookEvents(t *testing.T) {
	m := NewSyncMetrics(prometheus.NewRegistry())
	m.IncWebhookEvent("qbo", "Estimate", "skipped")
	m.IncWebhookEvent("qbo", "Estimate", "skipped")
	m.IncWebhookEvent("", "Item", "applied")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.webhooks.WithLabelValues("qbo", "Estimate", "skipped")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.webhooks.WithLabelValues("unknown", "Item", "applied")))
}

func TestNilSyncMetricsAreNoops(t *testing.T) {
	var m *SyncMetrics
	m.ObserveRun("qbo", 1, 1, 1, time.Second)
	m.IncWebhookEvent("qbo", "Item", "applied")
	NewSyncMetrics(nil).ObserveRun("qbo", 1, 0, 0, time.Second)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
