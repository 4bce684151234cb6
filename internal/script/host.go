// Package script embeds a Lua runtime (gopher-lua) used to evaluate rule
// source files: small scripts that define named rules, each pairing a
// regular expression with an action invoked on every matching line.
//
// The runtime is sandboxed deliberately narrow: no io, os, package, or
// debug libraries are loaded, so a rule file can only touch the "metrics",
// "rules", and "print" globals the host provides plus ordinary Lua base,
// string, table, and math functions. This mirrors the reference system's
// choice of an embeddable, no-implicit-syscalls scripting language.
package script

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/lmetrics/exporter/internal/metric"
)

// prelude defines the Rule constructor and the rules table that loaded
// scripts populate. It runs before every rule file so user scripts see
// `Rule()` and `rules` ready to use, without the host needing to build Lua
// tables field-by-field from Go.
const prelude = `
local RuleMeta = {}
RuleMeta.__index = RuleMeta
RuleMeta.action = function(match) end

function Rule(regexp)
  return setmetatable({regexp = regexp}, RuleMeta)
end

rules = {}
`

// RuleSyntaxError reports a parse failure in a rule source file. The
// message is whatever gopher-lua produced against the real file path as
// chunk name, so it already reads as "path:line: message" with no
// interpreter-internal noise to strip.
type RuleSyntaxError struct {
	Path string
	Err  error
}

func (e *RuleSyntaxError) Error() string {
	return fmt.Sprintf("rule file %s: %s", e.Path, e.Err)
}

func (e *RuleSyntaxError) Unwrap() error { return e.Err }

// RawRule is one named rule harvested from a loaded script, before its
// regexp has been compiled by the caller (internal/rules owns compilation
// and matching; this package only evaluates the script and hands back the
// declarations).
type RawRule struct {
	Name   string
	Regexp string
	// Action invokes the rule's Lua action(match) method with match
	// already converted to Lua values (strings or numbers). Calls are
	// serialized by the mutex of the loaded script that owns the Lua state,
	// since one *lua.LState is not safe for concurrent use.
	Action func(values map[string]interface{}) error
}

// Host builds rule sets from rule source files, binding each against the
// same metric registry. Every call to Load creates its own independent Lua
// runtime (the reference system does the same: a fresh lupa.LuaRuntime per
// file), since a loaded script's harvested rules keep closures over that
// runtime for the rest of the process's life and must never see it
// replaced out from under them.
type Host struct {
	metrics *metric.Registry
	log     *slog.Logger
}

// NewHost creates a Host bound to metrics, which rule actions mutate via
// the "metrics" global.
func NewHost(metrics *metric.Registry, log *slog.Logger) *Host {
	if log == nil {
		log = slog.Default()
	}
	return &Host{metrics: metrics, log: log}
}

// loadedScript holds the Lua runtime backing one loaded rule file, plus the
// mutex that serializes every call into it — required because a RuleSet's
// Specs are shared by identity across FileAnalyzers that may run on
// independent FileWatcher goroutines (spec.md §4.4, §8 invariant 6).
type loadedScript struct {
	mu  sync.Mutex
	l   *lua.LState
	log *slog.Logger
}

// Load parses and executes the rule source at path, returning every rule
// it registered into the "rules" global. A rule with no regexp assigned is
// skipped with a warning (a script may register rules conditionally and
// leave scaffolding entries unset).
func (h *Host) Load(path string) ([]RawRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rule file %s: %w", path, err)
	}

	l := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, open := range []func(*lua.LState) int{
		lua.OpenBase,
		lua.OpenString,
		lua.OpenTable,
		lua.OpenMath,
	} {
		open(l)
	}
	// dofile/loadfile/load would let a rule script read arbitrary files
	// through the "base" library even with io/os unloaded; remove them.
	l.SetGlobal("dofile", lua.LNil)
	l.SetGlobal("loadfile", lua.LNil)
	l.SetGlobal("load", lua.LNil)
	l.SetGlobal("require", lua.LNil)
	l.SetGlobal("collectgarbage", lua.LNil)

	script := &loadedScript{l: l, log: h.log}

	l.SetGlobal("print", l.NewFunction(script.luaPrint(path)))
	l.SetGlobal("metrics", h.buildMetricsTable(l))

	if fn, err := l.LoadString(prelude); err != nil {
		return nil, fmt.Errorf("rule file %s: internal prelude: %w", path, err)
	} else if err := l.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}); err != nil {
		return nil, fmt.Errorf("rule file %s: internal prelude: %w", path, err)
	}

	fn, err := l.Load(bytes.NewReader(data), path)
	if err != nil {
		return nil, &RuleSyntaxError{Path: path, Err: err}
	}
	if err := l.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}); err != nil {
		return nil, &RuleSyntaxError{Path: path, Err: err}
	}

	return script.harvestRules(path)
}

// harvestRules reads the populated "rules" global table and builds one
// RawRule per entry with a non-nil regexp.
func (s *loadedScript) harvestRules(path string) ([]RawRule, error) {
	rulesTable, ok := s.l.GetGlobal("rules").(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("rule file %s: \"rules\" global was reassigned to a non-table value", path)
	}

	type entry struct {
		name string
		tbl  *lua.LTable
	}
	var entries []entry
	rulesTable.ForEach(func(k, v lua.LValue) {
		tbl, ok := v.(*lua.LTable)
		if !ok {
			return
		}
		entries = append(entries, entry{name: k.String(), tbl: tbl})
	})
	sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })

	var out []RawRule
	for _, e := range entries {
		regexpVal := e.tbl.RawGetString("regexp")
		regexpStr, ok := regexpVal.(lua.LString)
		if !ok || string(regexpStr) == "" {
			s.log.Warn("skipped rule without a regexp", "rule_source", path, "rule", e.name)
			continue
		}

		actionVal := s.l.GetField(e.tbl, "action")
		actionFn, ok := actionVal.(*lua.LFunction)
		if !ok {
			s.log.Warn("skipped rule without an action function", "rule_source", path, "rule", e.name)
			continue
		}

		name := e.name
		out = append(out, RawRule{
			Name:   name,
			Regexp: string(regexpStr),
			Action: s.makeAction(path, name, actionFn),
		})
	}

	s.log.Info("loaded rules from file", "rule_source", path, "count", len(out))
	return out, nil
}

// makeAction returns the callback internal/rules invokes on a regexp
// match. Rule actions are plain functions (dot syntax: "function
// rules.x.action(match)"), not methods, so the call carries no receiver —
// match is the function's only argument. It serializes on the script's
// mutex since the Lua state is shared across every FileAnalyzer built from
// this rule file.
func (s *loadedScript) makeAction(path, name string, fn *lua.LFunction) func(map[string]interface{}) error {
	return func(values map[string]interface{}) error {
		s.mu.Lock()
		defer s.mu.Unlock()

		match := s.l.NewTable()
		for k, v := range values {
			switch val := v.(type) {
			case float64:
				match.RawSetString(k, lua.LNumber(val))
			case string:
				match.RawSetString(k, lua.LString(val))
			}
		}

		if err := s.l.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, match); err != nil {
			return fmt.Errorf("rule file %s: rule %q: action: %w", path, name, err)
		}
		return nil
	}
}

// luaPrint replaces Lua's default print with a logger call so rule scripts
// cannot write to stdout/stderr directly.
func (s *loadedScript) luaPrint(path string) lua.LGFunction {
	return func(l *lua.LState) int {
		n := l.GetTop()
		parts := make([]string, n)
		for i := 1; i <= n; i++ {
			parts[i-1] = l.ToStringMeta(l.Get(i)).String()
		}
		s.log.Info(strings.Join(parts, " "), "rule_source", path)
		return 0
	}
}

// buildMetricsTable exposes every registered metric as `metrics.<name>`,
// each a table of inc/add/set/observe methods that close over the
// corresponding MetricHandle.
func (h *Host) buildMetricsTable(l *lua.LState) *lua.LTable {
	t := l.NewTable()
	for _, name := range h.metrics.Names() {
		handle, _ := h.metrics.Get(name)
		t.RawSetString(name, h.bindMetric(l, handle))
	}
	return t
}

// bindMetric builds the `metrics.<name>` table. Every entry is a plain
// function (dot syntax: "metrics.foo.inc(match.v)"), so argument 1 is
// already the caller's first real value — there is no receiver to skip.
// inc takes the metric's label values, in configured (sorted) order, as
// trailing positional arguments; add/set/observe take the numeric amount
// first, then the same trailing label values.
func (h *Host) bindMetric(l *lua.LState, handle *metric.Handle) *lua.LTable {
	t := l.NewTable()

	t.RawSetString("inc", l.NewFunction(func(l *lua.LState) int {
		labels := positionalLabels(l, handle, 1)
		if err := handle.Inc(labels); err != nil {
			l.RaiseError("%s", err.Error())
		}
		return 0
	}))
	t.RawSetString("add", l.NewFunction(func(l *lua.LState) int {
		value := float64(l.CheckNumber(1))
		labels := positionalLabels(l, handle, 2)
		var err error
		if handle.Kind() == metric.KindGauge {
			err = handle.GaugeAdd(value, labels)
		} else {
			err = handle.Add(value, labels)
		}
		if err != nil {
			l.RaiseError("%s", err.Error())
		}
		return 0
	}))
	t.RawSetString("set", l.NewFunction(func(l *lua.LState) int {
		value := float64(l.CheckNumber(1))
		labels := positionalLabels(l, handle, 2)
		if err := handle.Set(value, labels); err != nil {
			l.RaiseError("%s", err.Error())
		}
		return 0
	}))
	t.RawSetString("observe", l.NewFunction(func(l *lua.LState) int {
		value := float64(l.CheckNumber(1))
		labels := positionalLabels(l, handle, 2)
		if err := handle.Observe(value, labels); err != nil {
			l.RaiseError("%s", err.Error())
		}
		return 0
	}))

	return t
}

// positionalLabels reads handle's configured label values starting at
// argument idx, one per configured label name in order, and returns them
// as a name->value map for Handle's labelled calls. A metric with no
// configured labels reads nothing. Values are coerced via tostring, same
// as Lua's own string concatenation of mixed types.
func positionalLabels(l *lua.LState, handle *metric.Handle, idx int) map[string]string {
	names := handle.LabelNames()
	if len(names) == 0 {
		return nil
	}
	labels := make(map[string]string, len(names))
	for i, name := range names {
		if v := l.Get(idx + i); v != lua.LNil {
			labels[name] = l.ToStringMeta(v).String()
		}
	}
	return labels
}
