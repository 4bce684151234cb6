package metric_test

import (
	"strings"
	"testing"

	"github.com/lmetrics/exporter/internal/config"
	"github.com/lmetrics/exporter/internal/metric"
)

func TestRegistry_CreateCounter(t *testing.T) {
	r := metric.New()
	h, err := r.Create(config.MetricConfig{Name: "hits_total", Type: "counter", Labels: []string{"level"}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := h.Inc(map[string]string{"level": "error"}); err != nil {
		t.Fatalf("Inc: %v", err)
	}
	if err := h.Set(1, nil); err == nil {
		t.Error("Set on a counter should fail")
	}
}

func TestRegistry_CreateGauge(t *testing.T) {
	r := metric.New()
	h, err := r.Create(config.MetricConfig{Name: "queue_depth", Type: "gauge"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := h.Set(42, nil); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := h.GaugeAdd(-2, nil); err != nil {
		t.Fatalf("GaugeAdd: %v", err)
	}
	if err := h.Inc(nil); err == nil {
		t.Error("Inc on a gauge should fail")
	}
}

func TestRegistry_CreateHistogram(t *testing.T) {
	r := metric.New()
	h, err := r.Create(config.MetricConfig{Name: "latency_seconds", Type: "histogram", Buckets: []float64{0.1, 0.5, 1}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := h.Observe(0.3, nil); err != nil {
		t.Fatalf("Observe: %v", err)
	}
}

func TestRegistry_CreateSummary(t *testing.T) {
	r := metric.New()
	h, err := r.Create(config.MetricConfig{Name: "size_bytes", Type: "summary"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := h.Observe(128, nil); err != nil {
		t.Fatalf("Observe: %v", err)
	}
}

func TestRegistry_UnknownType(t *testing.T) {
	r := metric.New()
	_, err := r.Create(config.MetricConfig{Name: "bogus", Type: "stopwatch"})
	if err == nil {
		t.Fatal("expected error for unknown type")
	}
	if !strings.Contains(err.Error(), "bogus") {
		t.Errorf("error %q does not mention metric name", err.Error())
	}
}

func TestRegistry_DuplicateNameFails(t *testing.T) {
	r := metric.New()
	if _, err := r.Create(config.MetricConfig{Name: "dup", Type: "counter"}); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	if _, err := r.Create(config.MetricConfig{Name: "dup", Type: "counter"}); err == nil {
		t.Fatal("expected error registering a duplicate metric name")
	}
}

func TestRegistry_GetAndNames(t *testing.T) {
	r := metric.New()
	if _, err := r.Create(config.MetricConfig{Name: "b", Type: "counter"}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Create(config.MetricConfig{Name: "a", Type: "gauge"}); err != nil {
		t.Fatal(err)
	}

	if _, ok := r.Get("a"); !ok {
		t.Error("Get(a) not found")
	}
	if _, ok := r.Get("missing"); ok {
		t.Error("Get(missing) unexpectedly found")
	}

	names := r.Names()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("Names() = %v, want sorted [a b]", names)
	}
}
