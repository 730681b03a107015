package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCronJobMetricsRecordsRunsAndLastSuccess(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	m.now = func() time.Time { return time.Unix(1_780_000_000, 0) }

	m.ObserveDuration("import-batch-sweeper", 250*time.Millisecond)
	m.IncSuccess("import-batch-sweeper")
	m.IncFailure("import-batch-sweeper")
	m.IncFailure("import-batch-sweeper")

	mfs := gather(t, reg)
	if got := metricWith(mfs, "churnguard_cron_job_runs_total", map[string]string{"job": "import-batch-sweeper", "result": "success"}); got == nil || got.GetCounter().GetValue() != 1 {
		t.Fatalf("expected one success run")
	}
	if got := metricWith(mfs, "churnguard_cron_job_runs_total", map[string]string{"result": "failure"}); got == nil || got.GetCounter().GetValue() != 2 {
		t.Fatalf("expected two failed runs")
	}
	if got := metricWith(mfs, "churnguard_cron_job_last_success_timestamp_seconds", map[string]string{"job": "import-batch-sweeper"}); got == nil || got.GetGauge().GetValue() != 1_780_000_000 {
		t.Fatalf("expected last success timestamp")
	}
	if got := metricWith(mfs, "churnguard_cron_job_duration_seconds", nil); got == nil || got.GetHistogram().GetSampleCount() != 1 {
		t.Fatalf("expected one duration sample")
	}
}

func gather(t *testing.T, reg *prometheus.Registry) []*dto.MetricFamily {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	return mfs
}

// metricWith returns the first series of family name carrying every label in
// want.
func metricWith(mfs []*dto.MetricFamily, name string, want map[string]string) *dto.Metric {
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
	series:
		for _, metric := range mf.GetMetric() {
			have := map[string]string{}
			for _, lp := range metric.GetLabel() {
				have[lp.GetName()] = lp.GetValue()
			}
			for k, v := range want {
				if have[k] != v {
					continue series
				}
			}
			return metric
		}
	}
	return nil
}
