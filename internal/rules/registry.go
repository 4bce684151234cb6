package rules

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/lmetrics/exporter/internal/script"
)

// Loader evaluates a rule source file and returns its raw, uncompiled
// declarations. *script.Host satisfies this.
type Loader interface {
	Load(path string) ([]script.RawRule, error)
}

// Registry compiles rule source files into RuleSets and caches them by
// canonical (symlink-resolved) path, so two watched files that name the
// same rule source by different paths share one compiled RuleSet and one
// underlying Lua runtime (spec.md §4.4, §8 — compile once, share by
// identity).
type Registry struct {
	loader Loader

	mu   sync.Mutex
	byID map[string]Set
}

// NewRegistry creates a Registry that compiles rule files via loader.
func NewRegistry(loader Loader) *Registry {
	return &Registry{loader: loader, byID: make(map[string]Set)}
}

// GetFileAnalyzer returns a FileAnalyzer for targetPath, loading and
// compiling ruleSourcePath on first use and reusing the cached RuleSet on
// every subsequent call naming the same (canonicalized) rule source.
func (r *Registry) GetFileAnalyzer(targetPath, ruleSourcePath string) (*FileAnalyzer, error) {
	set, err := r.loadSet(ruleSourcePath)
	if err != nil {
		return nil, err
	}
	return NewFileAnalyzer(targetPath, set), nil
}

func (r *Registry) loadSet(ruleSourcePath string) (Set, error) {
	id, err := canonicalID(ruleSourcePath)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if set, ok := r.byID[id]; ok {
		return set, nil
	}

	raws, err := r.loader.Load(ruleSourcePath)
	if err != nil {
		return nil, err
	}

	set := make(Set, 0, len(raws))
	for _, raw := range raws {
		re, err := regexp.Compile(raw.Regexp)
		if err != nil {
			return nil, fmt.Errorf("rule file %s: rule %q: invalid regexp: %w", ruleSourcePath, raw.Name, err)
		}
		set = append(set, &Spec{Name: raw.Name, Regexp: re, Action: raw.Action})
	}

	r.byID[id] = set
	return set, nil
}

// canonicalID resolves path to a form stable across symlinked or relative
// spellings, falling back to the cleaned absolute path if the
// file cannot be stat'd yet (e.g. during config validation before startup).
func canonicalID(path string) (string, error) {
	if real, err := filepath.EvalSymlinks(path); err == nil {
		return real, nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("rule file %s: %w", path, err)
	}
	return abs, nil
}
