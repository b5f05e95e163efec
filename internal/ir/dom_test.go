package ir_test

import (
	"testing"

	"gale/internal/ir"
)

// diamond builds entry -> {left, right} -> join -> loop header with a back edge.
func diamond(t *testing.T) (*ir.Func, []ir.BlockID) {
	t.Helper()
	m := ir.NewModule()
	f := m.NewFunc("diamond", ir.NoScopeID)
	b := ir.NewBuilder(m, f)
	p := b.Param("p", ir.TypeBoolean)

	entry := f.Entry
	left := b.NewBlock()
	right := b.NewBlock()
	join := b.NewBlock()
	loop := b.NewBlock()
	exit := b.NewBlock()

	b.CondBranch(p, left, right)
	b.SetBlock(left)
	b.Branch(join)
	b.SetBlock(right)
	b.Branch(join)
	b.SetBlock(join)
	b.Branch(loop)
	b.SetBlock(loop)
	b.CondBranch(p, loop, exit)
	b.SetBlock(exit)
	b.Return(b.Undef())
	return f, []ir.BlockID{entry, left, right, join, loop, exit}
}

func TestDominators_Diamond(t *testing.T) {
	f, bl := diamond(t)
	entry, left, right, join, loop, exit := bl[0], bl[1], bl[2], bl[3], bl[4], bl[5]
	dom := ir.ComputeDomTree(f)

	tests := []struct {
		a, b ir.BlockID
		want bool
	}{
		{entry, join, true},
		{entry, exit, true},
		{left, join, false},
		{right, join, false},
		{join, loop, true},
		{loop, exit, true},
		{exit, loop, false},
		{loop, loop, true},
	}
	for _, tt := range tests {
		if got := dom.Dominates(tt.a, tt.b); got != tt.want {
			t.Errorf("Dominates(bb%d, bb%d): expected %v, got %v", tt.a, tt.b, tt.want, got)
		}
	}
	if dom.Idom[join] != entry {
		t.Errorf("expected idom(join) = bb%d, got bb%d", entry, dom.Idom[join])
	}
	if dom.Depth(exit) != 3 {
		t.Errorf("expected depth(exit) = 3, got %d", dom.Depth(exit))
	}
}

func TestDominators_UnreachableBlock(t *testing.T) {
	f, _ := diamond(t)
	orphan := f.NewBlock()
	f.Blocks[orphan].Term = ir.Terminator{Kind: ir.TermUnreachable}
	dom := ir.ComputeDomTree(f)
	if dom.Reachable(orphan) {
		t.Errorf("expected orphan block to be unreachable")
	}
	if dom.Dominates(f.Entry, orphan) {
		t.Errorf("expected entry not to dominate an unreachable block")
	}
}

func TestDominators_HandlerEdges(t *testing.T) {
	m := ir.NewModule()
	f := m.NewFunc("try", ir.NoScopeID)
	b := ir.NewBuilder(m, f)
	body := b.NewBlock()
	handler := b.NewBlock()
	join := b.NewBlock()

	b.Try(body, handler)
	b.SetBlock(body)
	b.SetHandler(body, handler)
	v := b.CreateLoadGlobal("g")
	b.Branch(join)
	b.SetBlock(handler)
	b.CreateCatch()
	b.Branch(join)
	b.SetBlock(join)
	b.Return(b.Undef())

	dom := ir.ComputeDomTree(f)
	if dom.Idom[handler] != f.Entry {
		t.Errorf("expected handler idom to be the try block, got bb%d", dom.Idom[handler])
	}
	if dom.ValueDominates(f, v, handler, 0) {
		t.Errorf("expected value of the protected block not to reach the handler")
	}
}
