package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCronJobMetricsCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	m.now = func() time.Time { return time.Unix(1_700_000_000, 0) }

	job := "quote-sync"
	m.IncSuccess(job)
	m.IncFailure(job)
	m.IncSkipped(job)
	m.IncSkipped(job)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.runs.WithLabelValues(job, "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.runs.WithLabelValues(job, "failure")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.runs.WithLabelValues(job, "skipped")))
	assert.Equal(t, float64(1_700_000_000), testutil.ToFloat64(m.lastSuccess.WithLabelValues(job)))
}

func TestCronJobMetricsObservesDuration(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	m.ObserveDuration("", 250*time.Millisecond)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	var family *dto.MetricFamily
	for _, mf := range mfs {
		if mf.GetName() == "cron_job_duration_seconds" {
			family = mf
		}
	}
	require.NotNil(t, family)
	require.Len(t, family.GetMetric(), 1)

	metric := family.GetMetric()[0]
	assert.Equal(t, "unknown", metric.GetLabel()[0].GetValue())
	assert.InDelta(t, 0.25, metric.GetHistogram().GetSampleSum(), 0.0001)
}

func TestNilCronJobMetricsAreNoops(t *testing.T) {
	var m *CronJobMetrics
	m.IncSuccess("job")
	m.IncFailure("job")
	m.IncSkipped("job")
	m.ObserveDuration("job", time.Second)

	unregistered := NewCronJobMetrics(nil)
	unregistered.IncSuccess("job")
}
