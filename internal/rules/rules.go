// Package rules turns loaded Lua rule declarations into compiled matchers
// and dispatches matched lines to their actions, coercing named capture
// groups to numbers where possible (spec.md §4.4).
package rules

import (
	"fmt"
	"regexp"
	"strconv"
)

// Spec is one compiled, ready-to-match rule.
type Spec struct {
	Name   string
	Regexp *regexp.Regexp
	Action func(values map[string]interface{}) error
}

// Set is an ordered collection of Specs loaded from a single rule source
// file.
type Set []*Spec

// FileAnalyzer binds a target path to the RuleSet that should be evaluated
// against every line read from it.
type FileAnalyzer struct {
	TargetPath string
	Rules      Set
}

// NewFileAnalyzer returns a FileAnalyzer evaluating rules against lines
// read from targetPath.
func NewFileAnalyzer(targetPath string, rules Set) *FileAnalyzer {
	return &FileAnalyzer{TargetPath: targetPath, Rules: rules}
}

// AnalyzeLine runs every rule's regexp against line, in rule order, and
// invokes the action of each rule that matches. A rule's own action error
// does not stop evaluation of the remaining rules, in keeping with
// spec.md §7's per-rule continue-on-error disposition; the first error
// encountered (if any) is returned to the caller for logging.
func (a *FileAnalyzer) AnalyzeLine(line string) error {
	var firstErr error
	for _, spec := range a.Rules {
		match := spec.Regexp.FindStringSubmatch(line)
		if match == nil {
			continue
		}

		values := namedGroups(spec.Regexp, match)
		if err := spec.Action(values); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("rule %q: %w", spec.Name, err)
			}
		}
	}
	return firstErr
}

// namedGroups extracts a regexp's named capture groups from match and
// coerces each value to a float64 when it parses as one, leaving it as a
// string otherwise — the same rule the reference system's Python
// implementation applies via a bare float()/except ValueError.
func namedGroups(re *regexp.Regexp, match []string) map[string]interface{} {
	names := re.SubexpNames()
	values := make(map[string]interface{}, len(names))
	for i, name := range names {
		if name == "" || i >= len(match) {
			continue
		}
		values[name] = coerce(match[i])
	}
	return values
}

func coerce(s string) interface{} {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
