package exporter

import (
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/lmetrics/exporter/internal/config"
	"github.com/lmetrics/exporter/internal/metric"
	"github.com/lmetrics/exporter/internal/rules"
	"github.com/lmetrics/exporter/internal/script"
	"github.com/lmetrics/exporter/internal/tail"
)

// Engine holds everything Build assembled from a Config: the metric
// registry the HTTP server exposes and the Supervisor that owns every
// FileWatcher's lifecycle.
type Engine struct {
	Metrics    *metric.Registry
	Supervisor *Supervisor
}

// Build validates cfg, registers its metrics, loads every distinct rule
// source file exactly once, and constructs one Watcher per "files" entry.
// Any failure here is a startup-time problem (spec.md §7): Build returns
// before any watcher is started, so the caller can print a diagnostic and
// exit without partially running state to tear down.
func Build(cfg *config.Config, log *slog.Logger) (*Engine, error) {
	if log == nil {
		log = slog.Default()
	}

	if err := config.ValidateFilePaths(cfg.Files); err != nil {
		return nil, &ConfigError{Stage: "config", Err: err}
	}

	metrics := metric.New()
	if err := metrics.CreateAll(cfg.Metrics); err != nil {
		return nil, &ConfigError{Stage: "metrics", Err: err}
	}

	host := script.NewHost(metrics, log)
	ruleRegistry := rules.NewRegistry(host)

	watchedPaths := make([]string, 0, len(cfg.Files))
	for path := range cfg.Files {
		watchedPaths = append(watchedPaths, path)
	}
	sort.Strings(watchedPaths)

	var watchers []*tail.Watcher
	for _, path := range watchedPaths {
		ruleSource := cfg.Files[path]
		if _, err := os.Stat(ruleSource); err != nil {
			return nil, &RuleFileNotFoundError{Path: ruleSource, Err: err}
		}

		analyzer, err := ruleRegistry.GetFileAnalyzer(path, ruleSource)
		if err != nil {
			return nil, &ConfigError{Stage: "rules", Err: fmt.Errorf("%s: %w", path, err)}
		}

		watcherLog := log.With("target", path)
		onLine := func(a *rules.FileAnalyzer) func(string) {
			return func(line string) {
				if err := a.AnalyzeLine(line); err != nil {
					watcherLog.Warn("rule action failed", "error", err)
				}
			}
		}(analyzer)

		watchers = append(watchers, tail.New(path, onLine, watcherLog))
	}

	return &Engine{
		Metrics:    metrics,
		Supervisor: New(log, WithWatchers(watchers...)),
	}, nil
}
