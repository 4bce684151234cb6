package exporter

import "fmt"

// ConfigError marks an error that must abort startup before any watcher
// begins (spec.md §7: ConfigParse, UnknownMetricType, RuleFileNotFound,
// RuleSyntaxError all share this disposition — exit with a single-line
// diagnostic).
type ConfigError struct {
	Stage string // "config", "metrics", "rules"
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s", e.Stage, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// RuleFileNotFoundError reports a files.<path> entry naming a rule source
// that does not exist. Kept distinct from the generic ConfigError; its
// message calls out the missing path explicitly, per spec.md §7's
// "including path" requirement.
type RuleFileNotFoundError struct {
	Path string
	Err  error
}

func (e *RuleFileNotFoundError) Error() string {
	return fmt.Sprintf("rule file not found: %s: %s", e.Path, e.Err)
}

func (e *RuleFileNotFoundError) Unwrap() error { return e.Err }
