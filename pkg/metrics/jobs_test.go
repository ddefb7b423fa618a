package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestJobMetricsRecordsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewJobMetrics(reg)

	m.ObserveRun("low-stock-scan", 120*time.Millisecond, nil)
	m.ObserveRun("low-stock-scan", 80*time.Millisecond, errors.New("db down"))
	m.ObserveSkip("outbox-retention")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	runs := map[[2]string]float64{}
	for _, metric := range findMetricFamily(mfs, "sweetshop_job_runs_total").GetMetric() {
		runs[[2]string{labelValue(metric, "job"), labelValue(metric, "outcome")}] = metric.GetCounter().GetValue()
	}
	want := map[[2]string]float64{
		{"low-stock-scan", JobSucceeded}: 1,
		{"low-stock-scan", JobFailed}:    1,
		{"outbox-retention", JobSkipped}: 1,
	}
	for k, v := range want {
		if runs[k] != v {
			t.Fatalf("runs%v = %v, want %v", k, runs[k], v)
		}
	}

	if got, err := fetchHistogramSum(mfs, "sweetshop_job_duration_seconds", "job", "low-stock-scan"); err != nil || got < 0.19 {
		t.Fatalf("expected duration sum of both runs, got %f (%v)", got, err)
	}
	last := findMetricFamily(mfs, "sweetshop_job_last_success_timestamp_seconds")
	if last == nil || last.GetMetric()[0].GetGauge().GetValue() <= 0 {
		t.Fatal("expected last success timestamp")
	}
}

func labelValue(metric *dto.Metric, name string) string {
	for _, label := range metric.GetLabel() {
		if label.GetName() == name {
			return label.GetValue()
		}
	}
	return ""
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func findMetric(mfs []*dto.MetricFamily, name, label, value string) (*dto.Metric, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return nil, fmt.Errorf("metric %q not registered", name)
	}
	for _, metric := range mf.GetMetric() {
		if labelValue(metric, label) == value {
			return metric, nil
		}
	}
	return nil, fmt.Errorf("metric %q has no series with %s=%s", name, label, value)
}

// fetchCounterValue returns the first series of name whose label matches value.
func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	metric, err := findMetric(mfs, name, label, value)
	if err != nil {
		return 0, err
	}
	return metric.GetCounter().GetValue(), nil
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	metric, err := findMetric(mfs, name, label, value)
	if err != nil {
		return 0, err
	}
	return metric.GetHistogram().GetSampleSum(), nil
}
