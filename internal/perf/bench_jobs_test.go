package perf

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/odyssey-erp/odyssey-folio/internal/jobqueue"
	jobmetrics "github.com/odyssey-erp/odyssey-folio/internal/jobs"
)

func TestJobThroughputAndReliability(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	recalc := string(jobqueue.TypeFolioRecalculate)
	audit := string(jobqueue.TypeNightAudit)

	for i := 0; i < 60; i++ {
		tracker := metrics.Track(recalc)
		time.Sleep(2 * time.Millisecond)
		if err := tracker.End(nil); err != nil {
			t.Fatalf("unexpected error ending recalculation tracker: %v", err)
		}
	}

	// Night audits post a full day of charges and run slower.
	for i := 0; i < 5; i++ {
		tracker := metrics.Track(audit)
		time.Sleep(40 * time.Millisecond)
		if err := tracker.End(nil); err != nil {
			t.Fatalf("unexpected error ending audit tracker: %v", err)
		}
	}

	for i := 0; i < 3; i++ {
		tracker := metrics.Track(recalc)
		if err := tracker.End(errors.New("serialization failure")); err == nil {
			t.Fatal("expected error to propagate")
		}
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	success := metricValue(t, families, "folio_jobs_total", map[string]string{"job": recalc, "status": "success"})
	failure := metricValue(t, families, "folio_jobs_total", map[string]string{"job": recalc, "status": "failure"})
	if success+failure == 0 {
		t.Fatal("no recalculation executions recorded")
	}
	if ratio := success / (success + failure); ratio < 0.9 {
		t.Fatalf("recalculation success ratio too low: %f", ratio)
	}
	if got := metricValue(t, families, "folio_jobs_failures_total", map[string]string{"job": recalc}); got != 3 {
		t.Fatalf("expected 3 recorded failures, got %f", got)
	}

	if mean := histogramMean(t, families, "folio_job_duration_seconds", map[string]string{"job": audit}); mean > 2.0 {
		t.Fatalf("night audit duration above target: %f", mean)
	}
	if mean := histogramMean(t, families, "folio_job_duration_seconds", map[string]string{"job": recalc}); mean > 0.5 {
		t.Fatalf("recalculation duration above target: %f", mean)
	}
}

func metricValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				if fam.GetType() == dto.MetricType_COUNTER {
					return metric.GetCounter().GetValue()
				}
				if fam.GetType() == dto.MetricType_GAUGE {
					return metric.GetGauge().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func histogramMean(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				hist := metric.GetHistogram()
				if hist == nil || hist.GetSampleCount() == 0 {
					t.Fatalf("histogram %s missing samples", name)
				}
				return hist.GetSampleSum() / float64(hist.GetSampleCount())
			}
		}
	}
	t.Fatalf("histogram %s with labels %v not found", name, labels)
	return 0
}

func hasLabels(metric *dto.Metric, labels map[string]string) bool {
	for _, lp := range metric.GetLabel() {
		if val, ok := labels[lp.GetName()]; ok {
			if lp.GetValue() != val {
				return false
			}
		}
	}
	for key := range labels {
		found := false
		for _, lp := range metric.GetLabel() {
			if lp.GetName() == key {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
