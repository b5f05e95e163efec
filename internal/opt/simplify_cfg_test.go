package opt_test

import (
	"testing"

	"gale/internal/ir"
	"gale/internal/opt"
)

// TestSimplifyCFG_TrivialBranch tests that forwarding blocks disappear.
func TestSimplifyCFG_TrivialBranch(t *testing.T) {
	// bb0 (with instruction) -> bb1 (empty) -> bb2 (return)
	m := ir.NewModule()
	f := m.NewFunc("main", ir.NoScopeID)
	b := ir.NewBuilder(m, f)
	hop := b.NewBlock()
	exit := b.NewBlock()
	v := b.CreateLoadGlobal("x")
	b.Branch(hop)
	b.SetBlock(hop)
	b.Branch(exit)
	b.SetBlock(exit)
	b.Return(v)

	if !opt.SimplifyCFG(f) {
		t.Fatalf("expected SimplifyCFG to report a change")
	}
	mustValidate(t, m)
	if len(f.Blocks) != 1 {
		t.Errorf("expected 1 block, got %d", len(f.Blocks))
	}
	if f.Blocks[0].Term.Kind != ir.TermReturn {
		t.Errorf("expected the merged block to return, got %s", f.Blocks[0].Term.Kind)
	}
}

// TestSimplifyCFG_UnreachablePhiEdge tests that removing a dead block also
// drops its phi edges.
func TestSimplifyCFG_UnreachablePhiEdge(t *testing.T) {
	m := ir.NewModule()
	f := m.NewFunc("main", ir.NoScopeID)
	b := ir.NewBuilder(m, f)
	p := b.Param("p", ir.TypeBoolean)
	live := b.NewBlock()
	dead := b.NewBlock()
	join := b.NewBlock()
	b.CondBranch(p, live, live)
	b.SetBlock(live)
	b.CreateLoadGlobal("keep")
	b.Branch(join)
	b.SetBlock(dead)
	b.CreateLoadGlobal("gone")
	b.Branch(join)
	b.SetBlock(join)
	phi := b.CreatePhi(ir.TypeNone)
	b.AddPhiIncoming(phi, live, b.Num(1))
	b.AddPhiIncoming(phi, dead, b.Num(2))
	b.Return(phi)

	for opt.SimplifyCFG(f) {
		mustValidate(t, m)
	}
	if len(f.Blocks) != 1 {
		t.Fatalf("expected everything merged into one block, got %d", len(f.Blocks))
	}
	if got := summaryWithGlobals(t, m, "keep"); got != "return 1" {
		t.Errorf("expected return 1, got %s", got)
	}
}

// TestSimplifyCFG_KeepsHandlers tests that handler blocks are never merged
// away even when they look like forwarding blocks.
func TestSimplifyCFG_KeepsHandlers(t *testing.T) {
	m := ir.NewModule()
	f := m.NewFunc("main", ir.NoScopeID)
	b := ir.NewBuilder(m, f)
	body := b.NewBlock()
	catch := b.NewBlock()
	b.Try(body, catch)
	b.SetHandler(body, catch)
	b.SetBlock(body)
	b.Throw(b.Num(1))
	b.SetBlock(catch)
	b.Return(b.CreateCatch())

	opt.SimplifyCFG(f)
	mustValidate(t, m)
	if got := summary(t, m); got != "return 1" {
		t.Errorf("expected the handler to return the thrown value, got %s", got)
	}
}
