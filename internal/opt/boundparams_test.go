package opt_test

import (
	"testing"

	"gale/internal/ir"
	"gale/internal/opt"
	"gale/internal/testkit"
)

func TestBoundParams_TryCatchMerge(t *testing.T) {
	m, call := testkit.ModuleFactory(false)
	f := m.Funcs[0]

	r := opt.BoundParams(m)
	p := r.Value(f, f.Values[call].Args[0])
	if !p.Proven || p.Func != f.ID || p.Param != 0 {
		t.Fatalf("expected callee bound to require, got %+v", p)
	}
	if v := r.Var(ir.VarRef{Scope: f.Scope, Index: 0}); !v.Proven {
		t.Errorf("expected the binding itself to be proven")
	}
	if n := r.Annotate(m); n != 1 {
		t.Fatalf("expected one annotated call, got %d", n)
	}
	info := f.Values[call].Call
	if info.Flags&ir.CallBoundParam == 0 || info.CacheSlot != 0 || info.Bound.Param != 0 {
		t.Errorf("expected bound call in slot 0, got %+v", info)
	}
	if err := testkit.CheckOptimizedInvariants(m); err != nil {
		t.Errorf("expected invariants to hold, got %v", err)
	}
}

func TestBoundParams_PerturbedHandler(t *testing.T) {
	m, call := testkit.ModuleFactory(true)
	f := m.Funcs[0]

	r := opt.BoundParams(m)
	if p := r.Value(f, f.Values[call].Args[0]); p.Proven {
		t.Errorf("expected no proof when the handler stores a global, got %+v", p)
	}
	if n := r.Annotate(m); n != 0 {
		t.Errorf("expected no annotated calls, got %d", n)
	}
}

func TestBoundParams_OnlyModuleFactories(t *testing.T) {
	m, call := testkit.ModuleFactory(false)
	f := m.Funcs[0]
	f.Flags &^= ir.FuncModuleFactory

	if p := opt.BoundParams(m).Value(f, f.Values[call].Args[0]); p.Proven {
		t.Errorf("expected parameters of ordinary functions to stay unproven")
	}
}
