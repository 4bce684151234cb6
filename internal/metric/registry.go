// Package metric builds and registers the MetricHandles that rule actions
// mutate. Construction and registration are delegated entirely to
// prometheus/client_golang, per spec.md §1 ("metric type construction and
// registration... delegated to a metrics library"); this package only
// adapts MetricConfig into the calls the library expects and exposes the
// small, kind-agnostic mutation surface the embedded scripting layer calls
// into (inc/set/observe and their labelled variants).
package metric

import (
	"fmt"
	"sort"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lmetrics/exporter/internal/config"
)

// Kind identifies which Prometheus collector a Handle wraps.
type Kind string

const (
	KindCounter   Kind = "counter"
	KindGauge     Kind = "gauge"
	KindHistogram Kind = "histogram"
	KindSummary   Kind = "summary"
)

// Handle is an opaque, process-lifetime reference to one registered metric.
// It is shared by identity across every RuleSpec that names it (spec.md §3
// invariant: metric handles are created before any FileWatcher starts and
// are frozen thereafter).
type Handle struct {
	name       string
	kind       Kind
	labelNames []string

	counter   *prometheus.CounterVec
	gauge     *prometheus.GaugeVec
	histogram *prometheus.HistogramVec
	summary   *prometheus.SummaryVec
}

// Name returns the metric's configured name.
func (h *Handle) Name() string { return h.name }

// Kind returns the metric's configured kind.
func (h *Handle) Kind() Kind { return h.kind }

// LabelNames returns the metric's configured label names, sorted. Callers
// that accept label values positionally (the embedded scripting layer) use
// this order to zip values with names.
func (h *Handle) LabelNames() []string { return h.labelNames }

// labelValues orders the values in labels according to h.labelNames. A
// label name with no corresponding entry in labels contributes an empty
// string, matching Prometheus's own "missing label = empty value" rule.
func (h *Handle) labelValues(labels map[string]string) []string {
	if len(h.labelNames) == 0 {
		return nil
	}
	values := make([]string, len(h.labelNames))
	for i, name := range h.labelNames {
		values[i] = labels[name]
	}
	return values
}

// Inc increments a counter by one. Returns an error if the handle is not a
// counter.
func (h *Handle) Inc(labels map[string]string) error {
	if h.kind != KindCounter {
		return fmt.Errorf("metric %q: inc() requires a counter, got %s", h.name, h.kind)
	}
	h.counter.WithLabelValues(h.labelValues(labels)...).Inc()
	return nil
}

// Add adds value to a counter. value must be non-negative (enforced by the
// underlying Prometheus collector, which panics on a negative Add — callers
// should validate before calling when the value comes from untrusted rule
// script input).
func (h *Handle) Add(value float64, labels map[string]string) error {
	if h.kind != KindCounter {
		return fmt.Errorf("metric %q: add() requires a counter, got %s", h.name, h.kind)
	}
	h.counter.WithLabelValues(h.labelValues(labels)...).Add(value)
	return nil
}

// Set sets a gauge's current value. Returns an error if the handle is not a
// gauge.
func (h *Handle) Set(value float64, labels map[string]string) error {
	if h.kind != KindGauge {
		return fmt.Errorf("metric %q: set() requires a gauge, got %s", h.name, h.kind)
	}
	h.gauge.WithLabelValues(h.labelValues(labels)...).Set(value)
	return nil
}

// GaugeAdd adds (or, with a negative value, subtracts) a delta to a gauge.
func (h *Handle) GaugeAdd(value float64, labels map[string]string) error {
	if h.kind != KindGauge {
		return fmt.Errorf("metric %q: add() requires a gauge, got %s", h.name, h.kind)
	}
	h.gauge.WithLabelValues(h.labelValues(labels)...).Add(value)
	return nil
}

// Observe records a sample against a histogram or summary. Returns an error
// for any other kind.
func (h *Handle) Observe(value float64, labels map[string]string) error {
	switch h.kind {
	case KindHistogram:
		h.histogram.WithLabelValues(h.labelValues(labels)...).Observe(value)
		return nil
	case KindSummary:
		h.summary.WithLabelValues(h.labelValues(labels)...).Observe(value)
		return nil
	default:
		return fmt.Errorf("metric %q: observe() requires a histogram or summary, got %s", h.name, h.kind)
	}
}

// Registry builds MetricHandles from configuration and registers them
// against a private Prometheus registry (never the global default — see
// DESIGN.md).
type Registry struct {
	prom    *prometheus.Registry
	handles map[string]*Handle
}

// New creates an empty Registry backed by a fresh prometheus.Registry.
func New() *Registry {
	return &Registry{
		prom:    prometheus.NewRegistry(),
		handles: make(map[string]*Handle),
	}
}

// Prometheus returns the underlying prometheus.Registry, for wiring into an
// HTTP exposition handler or a process collector.
func (r *Registry) Prometheus() *prometheus.Registry {
	return r.prom
}

// Create builds, registers, and stores a Handle for cfg. It is called once
// per metrics.<name> entry at startup; the full set of metrics must be
// frozen before any FileWatcher starts (spec.md §3).
func (r *Registry) Create(cfg config.MetricConfig) (*Handle, error) {
	labels := append([]string(nil), cfg.Labels...)
	sort.Strings(labels)

	h := &Handle{name: cfg.Name, kind: Kind(cfg.Type), labelNames: labels}

	switch h.kind {
	case KindCounter:
		h.counter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: cfg.Name,
			Help: cfg.Description,
		}, labels)
		if err := r.prom.Register(h.counter); err != nil {
			return nil, fmt.Errorf("metric %q: register: %w", cfg.Name, err)
		}
	case KindGauge:
		h.gauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: cfg.Name,
			Help: cfg.Description,
		}, labels)
		if err := r.prom.Register(h.gauge); err != nil {
			return nil, fmt.Errorf("metric %q: register: %w", cfg.Name, err)
		}
	case KindHistogram:
		buckets := cfg.Buckets
		if len(buckets) == 0 {
			buckets = prometheus.DefBuckets
		}
		h.histogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    cfg.Name,
			Help:    cfg.Description,
			Buckets: buckets,
		}, labels)
		if err := r.prom.Register(h.histogram); err != nil {
			return nil, fmt.Errorf("metric %q: register: %w", cfg.Name, err)
		}
	case KindSummary:
		h.summary = prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name: cfg.Name,
			Help: cfg.Description,
		}, labels)
		if err := r.prom.Register(h.summary); err != nil {
			return nil, fmt.Errorf("metric %q: register: %w", cfg.Name, err)
		}
	default:
		return nil, fmt.Errorf("metric %q: unsupported kind %q", cfg.Name, cfg.Type)
	}

	r.handles[cfg.Name] = h
	return h, nil
}

// CreateAll builds a Handle for every entry in cfgs, in order, returning the
// first error encountered.
func (r *Registry) CreateAll(cfgs []config.MetricConfig) error {
	for _, c := range cfgs {
		if _, err := r.Create(c); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the Handle registered under name, if any.
func (r *Registry) Get(name string) (*Handle, bool) {
	h, ok := r.handles[name]
	return h, ok
}

// Names returns every registered metric name, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.handles))
	for name := range r.handles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
