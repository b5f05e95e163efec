// Package opt implements the IR-to-IR optimization pipeline.
//
// Every pass mutates the module in place and reports whether it changed
// anything. Passes never raise user-visible errors: a rewrite that cannot be
// proven safe is skipped. Broken invariants are internal compiler errors.
package opt

import (
	"context"
	"fmt"

	"gale/internal/config"
	"gale/internal/ir"
	"gale/internal/observ"
	"gale/internal/trace"
)

// Pass is one module transformation.
type Pass struct {
	Name string
	Run  func(m *ir.Module) bool
}

// FuncPass lifts a per-function transformation to a module pass.
func FuncPass(name string, fn func(m *ir.Module, f *ir.Func) bool) Pass {
	return Pass{Name: name, Run: func(m *ir.Module) bool {
		changed := false
		for _, f := range m.Funcs {
			if fn(m, f) {
				changed = true
			}
		}
		return changed
	}}
}

// Pipeline is an ordered list of passes.
type Pipeline struct {
	Passes []Pass
	// Verify validates the module after every pass.
	Verify bool
	Timer  *observ.Timer
}

// Default builds the standard pipeline.
func Default(cfg config.Pipeline) *Pipeline {
	all := []Pass{
		FuncPass("simplify-cfg", func(_ *ir.Module, f *ir.Func) bool { return SimplifyCFG(f) }),
		FuncPass("const-fold", ConstFold),
		FuncPass("dce", func(_ *ir.Module, f *ir.Func) bool { return DCE(f) }),
		FuncPass("tdz-dedup", TDZDedup),
		FuncPass("resolve-scopes", ResolveScopes),
		{Name: "hoist-closures", Run: HoistClosures},
		{Name: "elide-scopes", Run: ElideScopes},
		{Name: "inline", Run: func(m *ir.Module) bool { return Inline(m, InlineOptions{MaxSize: cfg.InlineMaxSize}) }},
		FuncPass("const-fold", ConstFold),
		FuncPass("dce", func(_ *ir.Module, f *ir.Func) bool { return DCE(f) }),
		FuncPass("simplify-cfg", func(_ *ir.Module, f *ir.Func) bool { return SimplifyCFG(f) }),
		{Name: "bound-params", Run: func(m *ir.Module) bool { return BoundParams(m).Annotate(m) > 0 }},
	}
	p := &Pipeline{Verify: cfg.Verify}
	for _, pass := range all {
		if !cfg.Disabled(pass.Name) {
			p.Passes = append(p.Passes, pass)
		}
	}
	return p
}

// Run applies every pass in order. The returned error is either a context
// error, an invariant violation found by Verify, or a recovered ICE.
func (p *Pipeline) Run(ctx context.Context, m *ir.Module) (err error) {
	defer ir.RecoverICE(&err)
	for _, pass := range p.Passes {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, span := trace.Start(ctx, trace.ScopePass, pass.Name)
		idx := -1
		if p.Timer != nil {
			idx = p.Timer.Begin("opt/" + pass.Name)
		}
		changed := pass.Run(m)
		note := "unchanged"
		if changed {
			note = "changed"
		}
		if p.Timer != nil {
			p.Timer.End(idx, note)
		}
		span.End(note)
		if p.Verify {
			if verr := ir.Validate(m); verr != nil {
				return fmt.Errorf("after pass %s: %w", pass.Name, verr)
			}
		}
	}
	return nil
}
