package opt_test

import (
	"testing"

	"gale/internal/ir"
	"gale/internal/opt"
	"gale/internal/testkit"
)

func TestTDZDedup_SecondReadIsNarrowed(t *testing.T) {
	m, first, second := testkit.TDZTwice()
	f := m.Funcs[0]
	before := summary(t, m)

	if !opt.TDZDedup(m, f) {
		t.Fatalf("expected TDZDedup to report a change")
	}
	mustValidate(t, m)
	if f.Values[first].Kind != ir.OpThrowIfEmpty {
		t.Errorf("expected the first guard to survive, got %s", f.Values[first].Kind)
	}
	if f.Values[second].Kind != ir.OpDead {
		t.Errorf("expected the second guard to be dead, got %s", f.Values[second].Kind)
	}
	narrows := testkit.Instrs(f, ir.OpUnionNarrow)
	if len(narrows) != 1 {
		t.Fatalf("expected one union_narrow, got %d", len(narrows))
	}
	if typ := f.Values[narrows[0]].Type; typ.CanBe(ir.TypeEmpty) {
		t.Errorf("expected the narrowed type to exclude empty, got %s", typ)
	}
	if got := summary(t, m); got != before {
		t.Errorf("expected %s, got %s", before, got)
	}
	if kind, _ := interpResult(t, m); kind != "ReferenceError" {
		t.Errorf("expected ReferenceError, got %q", kind)
	}
}

func TestTDZDedup_StoreProvesBothReads(t *testing.T) {
	m := ir.NewModule()
	f := m.NewFunc("main", ir.NoScopeID)
	x := m.AddVar(f.Scope, "x", ir.TypeNumber, true)
	b := ir.NewBuilder(m, f)
	env := b.CreateScope(f.Scope, ir.NoValueID)
	b.CreateStoreVar(env, x, b.Num(5))
	g1 := b.CreateThrowIfEmpty(b.CreateLoadVar(env, x))
	g2 := b.CreateThrowIfEmpty(b.CreateLoadVar(env, x))
	b.Return(b.CreateBinary(ir.OperatorAdd, g1, g2))

	if !opt.TDZDedup(m, f) {
		t.Fatalf("expected TDZDedup to report a change")
	}
	mustValidate(t, m)
	for _, g := range []ir.ValueID{g1, g2} {
		if f.Values[g].Kind != ir.OpDead {
			t.Errorf("expected guard v%d to be dead after the store, got %s", g, f.Values[g].Kind)
		}
	}
	if n := len(testkit.Instrs(f, ir.OpUnionNarrow)); n != 2 {
		t.Errorf("expected two union_narrow markers, got %d", n)
	}
	if res := summary(t, m); res != "return 10" {
		t.Errorf("expected return 10, got %s", res)
	}
}

func TestTDZDedup_KeepsGuardsOfResetBindings(t *testing.T) {
	m := ir.NewModule()
	f := m.NewFunc("main", ir.NoScopeID)
	x := m.AddVar(f.Scope, "x", ir.TypeNumber, true)
	b := ir.NewBuilder(m, f)
	env := b.CreateScope(f.Scope, ir.NoValueID)
	b.CreateStoreVar(env, x, b.Num(1))
	g1 := b.CreateThrowIfEmpty(b.CreateLoadVar(env, x))
	reset := b.NewBlock()
	b.Branch(reset)
	b.SetBlock(reset)
	// Re-entering the binding's scope in another block empties it again.
	b.CreateStoreVar(env, x, b.Lit(ir.Empty()))
	g2 := b.CreateThrowIfEmpty(b.CreateLoadVar(env, x))
	b.Return(b.CreateBinary(ir.OperatorAdd, g1, g2))

	opt.TDZDedup(m, f)
	mustValidate(t, m)
	if n := testkit.Count(f, ir.OpThrowIfEmpty); n != 2 {
		t.Errorf("expected both guards kept, got %d", n)
	}
	if res := summary(t, m); res == "return 2" {
		t.Errorf("expected the second read to throw, got %s", res)
	}
}

func TestTDZDedup_DistinctEnvironments(t *testing.T) {
	m := ir.NewModule()
	f := m.NewFunc("main", ir.NoScopeID)
	block := m.NewScope("block", f.Scope, f.ID)
	x := m.AddVar(block, "x", ir.TypeNumber, true)
	b := ir.NewBuilder(m, f)
	env := b.CreateScope(f.Scope, ir.NoValueID)
	e1 := b.CreateScope(block, env)
	e2 := b.CreateScope(block, env)
	b.CreateStoreVar(e1, x, b.Num(1))
	g1 := b.CreateThrowIfEmpty(b.CreateLoadVar(e1, x))
	g2 := b.CreateThrowIfEmpty(b.CreateLoadVar(e2, x))
	b.Return(b.CreateBinary(ir.OperatorAdd, g1, g2))

	opt.TDZDedup(m, f)
	mustValidate(t, m)
	if f.Values[g2].Kind != ir.OpThrowIfEmpty {
		t.Errorf("expected the guard on the second environment to survive")
	}
	res, _ := interpResult(t, m)
	if res != "ReferenceError" {
		t.Errorf("expected ReferenceError, got %q", res)
	}
}

func TestTDZDedup_HandlerStartsWithoutFacts(t *testing.T) {
	m := ir.NewModule()
	f := m.NewFunc("main", ir.NoScopeID)
	x := m.AddVar(f.Scope, "x", ir.TypeNumber, true)
	b := ir.NewBuilder(m, f)
	env := b.CreateScope(f.Scope, ir.NoValueID)
	body := b.NewBlock()
	catch := b.NewBlock()
	b.Try(body, catch)
	b.SetHandler(body, catch)

	b.SetBlock(body)
	b.CreateLoadGlobal("missing")
	b.CreateStoreVar(env, x, b.Num(1))
	b.Return(b.CreateThrowIfEmpty(b.CreateLoadVar(env, x)))

	b.SetBlock(catch)
	b.CreateCatch()
	guard := b.CreateThrowIfEmpty(b.CreateLoadVar(env, x))
	b.Return(guard)

	opt.TDZDedup(m, f)
	mustValidate(t, m)
	if f.Values[guard].Kind != ir.OpThrowIfEmpty {
		t.Errorf("expected the handler guard to survive")
	}
	if kind, _ := interpResult(t, m); kind != "ReferenceError" {
		t.Errorf("expected ReferenceError from the handler, got %q", kind)
	}
}
