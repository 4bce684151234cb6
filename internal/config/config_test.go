package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lmetrics/exporter/internal/config"
)

// writeTemp writes content to a temp file and returns its path.
func writeTemp(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "config-*.yaml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	f.Close()
	return f.Name()
}

const validYAML = `
metrics:
  line_count:
    type: counter
    description: "lines seen"
    labels: [level]
  queue_depth:
    type: gauge
    description: "queued items"
  request_latency:
    type: histogram
    description: "request latency"
    buckets: [0.1, 0.5, 1, 5]
files:
  /var/log/app/*.log: /etc/lmetrics/rules/app.lua
  /var/log/other.log: /etc/lmetrics/rules/other.lua
`

func TestLoad_Valid(t *testing.T) {
	path := writeTemp(t, validYAML)
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Metrics) != 3 {
		t.Fatalf("len(Metrics) = %d, want 3", len(cfg.Metrics))
	}
	// Sorted by name: line_count, queue_depth, request_latency.
	if cfg.Metrics[0].Name != "line_count" || cfg.Metrics[0].Type != "counter" {
		t.Errorf("Metrics[0] = %+v", cfg.Metrics[0])
	}
	if len(cfg.Metrics[0].Labels) != 1 || cfg.Metrics[0].Labels[0] != "level" {
		t.Errorf("Metrics[0].Labels = %v", cfg.Metrics[0].Labels)
	}
	if cfg.Metrics[2].Name != "request_latency" || len(cfg.Metrics[2].Buckets) != 4 {
		t.Errorf("Metrics[2] = %+v", cfg.Metrics[2])
	}

	if len(cfg.Files) != 2 {
		t.Fatalf("len(Files) = %d, want 2", len(cfg.Files))
	}
	if cfg.Files["/var/log/other.log"] != "/etc/lmetrics/rules/other.lua" {
		t.Errorf("Files[/var/log/other.log] = %q", cfg.Files["/var/log/other.log"])
	}
}

func TestLoad_NoMetricsOrFiles(t *testing.T) {
	path := writeTemp(t, "{}\n")
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Metrics) != 0 {
		t.Errorf("len(Metrics) = %d, want 0", len(cfg.Metrics))
	}
	if cfg.Files == nil || len(cfg.Files) != 0 {
		t.Errorf("Files = %v, want empty non-nil map", cfg.Files)
	}
}

func TestLoad_UnknownMetricType(t *testing.T) {
	yaml := `
metrics:
  bogus:
    type: stopwatch
    description: "not a real type"
`
	path := writeTemp(t, yaml)
	_, err := config.Load(path)
	if err == nil {
		t.Fatal("expected error for unknown metric type, got nil")
	}
	if !strings.Contains(err.Error(), "stopwatch") {
		t.Errorf("error %q does not mention invalid type", err.Error())
	}
	if !strings.Contains(err.Error(), "counter") {
		t.Errorf("error %q does not list valid types", err.Error())
	}
}

func TestLoad_UnknownKeysIgnored(t *testing.T) {
	// "buckets" on a counter, and an entirely unrecognized key, must not
	// cause a load failure — only the metric kind governs which keys are
	// meaningful.
	yaml := `
metrics:
  hits:
    type: counter
    description: "hits"
    buckets: [1, 2, 3]
    some_future_option: true
`
	path := writeTemp(t, yaml)
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Metrics) != 1 || cfg.Metrics[0].Name != "hits" {
		t.Fatalf("Metrics = %+v", cfg.Metrics)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	missingPath := filepath.Join(t.TempDir(), "nonexistent.yaml")
	_, err := config.Load(missingPath)
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeTemp(t, "metrics: [unclosed\n")
	_, err := config.Load(path)
	if err == nil {
		t.Fatal("expected error for invalid YAML, got nil")
	}
}

func TestValidateFilePaths(t *testing.T) {
	good := map[string]string{
		"/var/log/app/*.log": "rules.lua",
		"/var/log/app.log":   "rules.lua",
	}
	if err := config.ValidateFilePaths(good); err != nil {
		t.Errorf("unexpected error for basename-only globs: %v", err)
	}

	bad := map[string]string{
		"/var/log/*/app.log": "rules.lua",
	}
	if err := config.ValidateFilePaths(bad); err == nil {
		t.Error("expected error for directory-component wildcard, got nil")
	}
}
