package rules_test

import (
	"regexp"
	"testing"

	"github.com/lmetrics/exporter/internal/rules"
)

func TestFileAnalyzer_AnalyzeLine_NumericCoercion(t *testing.T) {
	var got map[string]interface{}
	spec := &rules.Spec{
		Name:   "latency",
		Regexp: regexp.MustCompile(`latency=(?P<latency>[0-9.]+) path=(?P<path>\S+)`),
		Action: func(values map[string]interface{}) error {
			got = values
			return nil
		},
	}
	analyzer := rules.NewFileAnalyzer("/var/log/app.log", rules.Set{spec})

	if err := analyzer.AnalyzeLine("latency=12.5 path=/api/foo"); err != nil {
		t.Fatalf("AnalyzeLine: %v", err)
	}

	lat, ok := got["latency"].(float64)
	if !ok || lat != 12.5 {
		t.Errorf("latency = %#v, want float64(12.5)", got["latency"])
	}
	path, ok := got["path"].(string)
	if !ok || path != "/api/foo" {
		t.Errorf("path = %#v, want string(/api/foo)", got["path"])
	}
}

func TestFileAnalyzer_AnalyzeLine_NoMatch(t *testing.T) {
	called := false
	spec := &rules.Spec{
		Name:   "never",
		Regexp: regexp.MustCompile(`^ZZZ`),
		Action: func(values map[string]interface{}) error {
			called = true
			return nil
		},
	}
	analyzer := rules.NewFileAnalyzer("/var/log/app.log", rules.Set{spec})
	if err := analyzer.AnalyzeLine("hello world"); err != nil {
		t.Fatalf("AnalyzeLine: %v", err)
	}
	if called {
		t.Error("action was called despite no match")
	}
}

func TestFileAnalyzer_AnalyzeLine_ContinuesAfterActionError(t *testing.T) {
	var secondCalled bool
	specA := &rules.Spec{
		Name:   "first",
		Regexp: regexp.MustCompile(`.*`),
		Action: func(values map[string]interface{}) error { return errBoom },
	}
	specB := &rules.Spec{
		Name:   "second",
		Regexp: regexp.MustCompile(`.*`),
		Action: func(values map[string]interface{}) error {
			secondCalled = true
			return nil
		},
	}
	analyzer := rules.NewFileAnalyzer("/var/log/app.log", rules.Set{specA, specB})

	err := analyzer.AnalyzeLine("anything")
	if err == nil {
		t.Fatal("expected the first rule's error to be returned")
	}
	if !secondCalled {
		t.Error("second rule's action was not called after the first rule's action errored")
	}
}

type sentinelError string

func (e sentinelError) Error() string { return string(e) }

var errBoom = sentinelError("boom")
