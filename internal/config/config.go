// Package config loads and validates the YAML configuration that drives the
// exporter: which metrics to register and which log files to tail against
// which rule sources.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidMetricTypes is the set of metric kinds the exporter knows how to
// build, in the order an operator would expect to see them listed.
var ValidMetricTypes = []string{"counter", "gauge", "histogram", "summary"}

var validMetricTypeSet = func() map[string]bool {
	m := make(map[string]bool, len(ValidMetricTypes))
	for _, t := range ValidMetricTypes {
		m[t] = true
	}
	return m
}()

// MetricConfig describes one entry under the top-level "metrics" key.
type MetricConfig struct {
	// Name is the YAML map key this entry was parsed from.
	Name string

	// Description is the metric's HELP text. Optional.
	Description string

	// Type is one of ValidMetricTypes. Required.
	Type string

	// Labels names the label dimensions this metric is created with.
	// Optional; a metric with no labels is perfectly valid.
	Labels []string

	// Buckets holds histogram bucket boundaries. Only meaningful when
	// Type == "histogram"; ignored (but preserved) otherwise.
	Buckets []float64
}

// rawMetricConfig mirrors the YAML shape of one "metrics.<name>" entry.
// Unrecognized keys are accepted here and simply never read back out,
// which is how the format tolerates kind-specific keys (e.g. "buckets"
// on a counter) without erroring.
type rawMetricConfig struct {
	Type        string    `yaml:"type"`
	Description string    `yaml:"description"`
	Labels      []string  `yaml:"labels"`
	Buckets     []float64 `yaml:"buckets"`
}

// Config is the fully parsed and validated top-level configuration document.
type Config struct {
	// Metrics holds one entry per "metrics" map key, sorted by name so
	// registration order is deterministic across runs.
	Metrics []MetricConfig

	// Files maps a watched path (which may be a glob with wildcards
	// restricted to the basename) to the rule-source file that should be
	// loaded and evaluated against its lines.
	Files map[string]string
}

// rawConfig mirrors the top-level YAML document.
type rawConfig struct {
	Metrics map[string]rawMetricConfig `yaml:"metrics"`
	Files   map[string]string          `yaml:"files"`
}

// ErrUnknownMetricType is the error Load returns when a metric entry names a
// type outside ValidMetricTypes.
type ErrUnknownMetricType struct {
	Name string
	Type string
}

func (e *ErrUnknownMetricType) Error() string {
	return fmt.Sprintf("metric %q: unknown type %q: must be one of %v", e.Name, e.Type, ValidMetricTypes)
}

// Load reads the YAML file at path, parses it, and validates every metric
// entry's type.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: cannot read %q: %w", path, err)
	}

	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: cannot parse %q: %w", path, err)
	}

	cfg := &Config{Files: raw.Files}
	if cfg.Files == nil {
		cfg.Files = map[string]string{}
	}

	names := make([]string, 0, len(raw.Metrics))
	for name := range raw.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		m := raw.Metrics[name]
		if !validMetricTypeSet[m.Type] {
			errs = append(errs, &ErrUnknownMetricType{Name: name, Type: m.Type})
			continue
		}
		cfg.Metrics = append(cfg.Metrics, MetricConfig{
			Name:        name,
			Description: m.Description,
			Type:        m.Type,
			Labels:      m.Labels,
			Buckets:     m.Buckets,
		})
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("config: %q: %w", path, err)
	}

	return cfg, nil
}

// ValidateFilePaths rejects glob patterns with wildcards outside the
// basename component — the engine only ever installs a watch on a single
// parent directory per target (spec.md §4.1, §9).
func ValidateFilePaths(files map[string]string) error {
	var errs []error
	for path := range files {
		dir := filepath.Dir(path)
		if strings.ContainsAny(dir, "*?[") {
			errs = append(errs, fmt.Errorf("files: %q: wildcards are only supported in the file name, not the directory (%q)", path, dir))
		}
	}
	return errors.Join(errs...)
}
