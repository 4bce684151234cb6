package rules_test

import (
	"testing"

	"github.com/lmetrics/exporter/internal/rules"
	"github.com/lmetrics/exporter/internal/script"
)

type fakeLoader struct {
	calls int
	raws  []script.RawRule
}

func (f *fakeLoader) Load(path string) ([]script.RawRule, error) {
	f.calls++
	return f.raws, nil
}

func TestRegistry_CachesByPath(t *testing.T) {
	loader := &fakeLoader{raws: []script.RawRule{
		{Name: "r1", Regexp: `hello`, Action: func(map[string]interface{}) error { return nil }},
	}}
	reg := rules.NewRegistry(loader)

	a1, err := reg.GetFileAnalyzer("/var/log/a.log", "/etc/rules/shared.lua")
	if err != nil {
		t.Fatalf("GetFileAnalyzer (a): %v", err)
	}
	a2, err := reg.GetFileAnalyzer("/var/log/b.log", "/etc/rules/shared.lua")
	if err != nil {
		t.Fatalf("GetFileAnalyzer (b): %v", err)
	}

	if loader.calls != 1 {
		t.Errorf("loader.calls = %d, want 1 (rule file should be compiled once and shared)", loader.calls)
	}
	if len(a1.Rules) != 1 || len(a2.Rules) != 1 {
		t.Fatalf("expected both analyzers to carry the compiled rule")
	}
	if a1.Rules[0] != a2.Rules[0] {
		t.Error("expected the same *Spec to be shared by both analyzers")
	}
}

func TestRegistry_DistinctFilesLoadIndependently(t *testing.T) {
	loader := &fakeLoader{raws: []script.RawRule{
		{Name: "r1", Regexp: `hello`, Action: func(map[string]interface{}) error { return nil }},
	}}
	reg := rules.NewRegistry(loader)

	if _, err := reg.GetFileAnalyzer("/var/log/a.log", "/etc/rules/a.lua"); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.GetFileAnalyzer("/var/log/b.log", "/etc/rules/b.lua"); err != nil {
		t.Fatal(err)
	}
	if loader.calls != 2 {
		t.Errorf("loader.calls = %d, want 2 for two distinct rule files", loader.calls)
	}
}

func TestRegistry_InvalidRegexpFails(t *testing.T) {
	loader := &fakeLoader{raws: []script.RawRule{
		{Name: "bad", Regexp: `(unclosed`, Action: func(map[string]interface{}) error { return nil }},
	}}
	reg := rules.NewRegistry(loader)
	if _, err := reg.GetFileAnalyzer("/var/log/a.log", "/etc/rules/bad.lua"); err == nil {
		t.Fatal("expected an error for an invalid regexp")
	}
}
