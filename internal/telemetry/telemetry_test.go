package telemetry

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"DEBUG": slog.LevelDebug,
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"ERROR": slog.LevelError,
		"":      slog.LevelInfo,
		"other": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLogError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo, "json")

	LogError(logger, "job failed", ErrorKindExecuteJob, errors.New("boom"), "job", "cleanup")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid json log line: %v (%s)", err, buf.String())
	}
	if entry["msg"] != "job failed" {
		t.Errorf("unexpected msg: %v", entry["msg"])
	}
	if entry["error_kind"] != "executeJob" {
		t.Errorf("unexpected error_kind: %v", entry["error_kind"])
	}
	if entry["job"] != "cleanup" {
		t.Errorf("unexpected job: %v", entry["job"])
	}
	if entry["error"] != "boom" {
		t.Errorf("unexpected error: %v", entry["error"])
	}
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveExecution("cleanup", "finished", true, 10*time.Millisecond)
	m.ObserveExecution("cleanup", "maxRunningReached", false, 0)
	m.IncUnexpectedError("cleanup")
	m.SetScheduleActive("default", true)
	m.IncLeaseAcquisition("acquired")

	if got := gatherSum(t, reg, "momo_job_executions_total"); got != 2 {
		t.Errorf("expected 2 execution attempts, got %v", got)
	}
	if got := gatherSum(t, reg, "momo_unexpected_errors_total"); got != 1 {
		t.Errorf("expected 1 unexpected error, got %v", got)
	}
	if got := gatherSum(t, reg, "momo_schedule_active"); got != 1 {
		t.Errorf("expected active gauge 1, got %v", got)
	}

	var nilMetrics *Metrics
	nilMetrics.ObserveExecution("x", "finished", true, time.Second)
	nilMetrics.IncUnexpectedError("x")
	nilMetrics.SetScheduleActive("x", false)
	nilMetrics.IncLeaseAcquisition("lost")
}

// gatherSum суммирует значения counter/gauge метрики name по всем label'ам.
func gatherSum(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var sum float64
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			if c := m.GetCounter(); c != nil {
				sum += c.GetValue()
			}
			if g := m.GetGauge(); g != nil {
				sum += g.GetValue()
			}
		}
	}
	return sum
}
