package opt_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"gale/internal/config"
	"gale/internal/ir"
	"gale/internal/observ"
	"gale/internal/opt"
	"gale/internal/testkit"
)

func verifyingPipeline(disable ...string) *opt.Pipeline {
	cfg := config.Default().Pipeline
	cfg.Verify = true
	cfg.Disable = disable
	return opt.Default(cfg)
}

// Optimizing must not change what a program returns, throws or prints.
func TestPipeline_PreservesBehavior(t *testing.T) {
	fixtures := map[string]func() *ir.Module{
		"pipeline":      testkit.Pipeline,
		"counter":       func() *ir.Module { return testkit.Counter(3) },
		"tdz":           func() *ir.Module { m, _, _ := testkit.TDZTwice(); return m },
		"string_switch": func() *ir.Module { return testkit.StringSwitch(10, "k7") },
		"switch_miss":   func() *ir.Module { return testkit.StringSwitch(10, "nope") },
	}
	for name, build := range fixtures {
		m := build()
		before := summary(t, m)
		if err := verifyingPipeline().Run(context.Background(), m); err != nil {
			t.Fatalf("%s: pipeline failed: %v", name, err)
		}
		if err := testkit.CheckOptimizedInvariants(m); err != nil {
			t.Errorf("%s: invariants broken: %v", name, err)
		}
		if got := summary(t, m); got != before {
			t.Errorf("%s: expected %q, got %q", name, before, got)
		}
	}
}

func TestPipeline_OptimizesPipelineFixture(t *testing.T) {
	m := testkit.Pipeline()
	if err := verifyingPipeline().Run(context.Background(), m); err != nil {
		t.Fatalf("pipeline failed: %v", err)
	}
	top := m.Funcs[0]
	if n := testkit.Count(top, ir.OpCall); n != 0 {
		t.Errorf("expected both calls inlined, %d left", n)
	}
	if !m.Scopes[1].Elided {
		t.Errorf("expected the block scope to be elided")
	}
	if n := testkit.Count(top, ir.OpThrowIfEmpty); n != 0 {
		t.Errorf("expected reads after initialization to lose their guards, %d left", n)
	}
}

func TestPipeline_DisableAndTimer(t *testing.T) {
	p := verifyingPipeline("inline", "elide-scopes")
	for _, pass := range p.Passes {
		if pass.Name == "inline" || pass.Name == "elide-scopes" {
			t.Errorf("expected %s to be disabled", pass.Name)
		}
	}
	p.Timer = observ.NewTimer()
	m := testkit.Pipeline()
	if err := p.Run(context.Background(), m); err != nil {
		t.Fatalf("pipeline failed: %v", err)
	}
	if n := testkit.Count(m.Funcs[0], ir.OpCall); n != 2 {
		t.Errorf("expected calls to survive without inlining, got %d", n)
	}
	if s := p.Timer.Summary(); !strings.Contains(s, "opt/const-fold") {
		t.Errorf("expected pass timings, got:\n%s", s)
	}
}

func TestPipeline_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := verifyingPipeline().Run(ctx, testkit.Pipeline())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestPipeline_VerifyReportsPass(t *testing.T) {
	broken := opt.Pass{Name: "break", Run: func(m *ir.Module) bool {
		f := m.Funcs[0]
		f.Blocks[f.Entry].Term = ir.Terminator{}
		return true
	}}
	p := &opt.Pipeline{Passes: []opt.Pass{broken}, Verify: true}
	err := p.Run(context.Background(), testkit.Pipeline())
	if err == nil || !strings.Contains(err.Error(), "after pass break") {
		t.Errorf("expected a verify failure naming the pass, got %v", err)
	}
}
