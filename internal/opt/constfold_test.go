package opt_test

import (
	"math"
	"testing"

	"gale/internal/ir"
	"gale/internal/opt"
	"gale/internal/testkit"
)

func TestConstFold_ArithmeticAndBranch(t *testing.T) {
	m := ir.NewModule()
	f := m.NewFunc("main", ir.NoScopeID)
	b := ir.NewBuilder(m, f)
	prod := b.CreateBinary(ir.OperatorMul, b.Num(6), b.Num(7))
	copied := b.CreateMov(prod)
	cond := b.CreateBinary(ir.OperatorGt, copied, b.Num(40))
	then := b.NewBlock()
	els := b.NewBlock()
	b.CondBranch(cond, then, els)
	b.SetBlock(then)
	b.Return(copied)
	b.SetBlock(els)
	b.Return(b.Num(-1))

	if !opt.ConstFold(m, f) {
		t.Fatalf("expected ConstFold to report a change")
	}
	mustValidate(t, m)
	if n := testkit.Count(f, ir.OpBinary) + testkit.Count(f, ir.OpMov); n != 0 {
		t.Errorf("expected all arithmetic folded, %d instructions left", n)
	}
	entry := &f.Blocks[f.Entry]
	if entry.Term.Kind != ir.TermBranch || entry.Term.Branch.Target != then {
		t.Fatalf("expected branch to bb%d, got %s", then, entry.Term.Kind)
	}
	if l, ok := f.LiteralOf(f.Blocks[then].Term.Return.Value); !ok || l.Num != 42 {
		t.Errorf("expected return of literal 42, got %v", l)
	}
	if got := summary(t, m); got != "return 42" {
		t.Errorf("expected return 42, got %s", got)
	}
}

func TestConstFold_SwitchOnLiteral(t *testing.T) {
	m := ir.NewModule()
	f := m.NewFunc("main", ir.NoScopeID)
	b := ir.NewBuilder(m, f)
	one := b.NewBlock()
	two := b.NewBlock()
	def := b.NewBlock()
	join := b.NewBlock()
	b.Switch(b.Str("b"), []ir.SwitchCase{
		{Label: ir.String("a"), Target: one},
		{Label: ir.String("b"), Target: two},
	}, def)
	for _, blk := range []ir.BlockID{one, two, def} {
		b.SetBlock(blk)
		b.Branch(join)
	}
	b.SetBlock(join)
	phi := b.CreatePhi(ir.TypeNone)
	b.AddPhiIncoming(phi, one, b.Num(1))
	b.AddPhiIncoming(phi, two, b.Num(2))
	b.AddPhiIncoming(phi, def, b.Num(0))
	b.Return(phi)

	opt.ConstFold(m, f)
	mustValidate(t, m)
	if f.Blocks[f.Entry].Term.Kind != ir.TermBranch || f.Blocks[f.Entry].Term.Branch.Target != two {
		t.Errorf("expected the switch to become a branch to bb%d", two)
	}
	if got := summary(t, m); got != "return 2" {
		t.Errorf("expected return 2, got %s", got)
	}
}

func TestConstFold_ClosureIsOfKnownClosure(t *testing.T) {
	m, top, callee := closureModule("g")
	b := ir.NewBuilder(m, top)
	env := b.CreateScope(top.Scope, ir.NoValueID)
	clo := b.CreateClosure(env, callee.ID)
	is := b.CreateClosureIs(clo, callee.ID)
	isNot := b.CreateClosureIs(b.Num(1), callee.ID)
	b.Return(b.CreateArrayLiteral([]ir.ValueID{is, isNot}))
	cb := ir.NewBuilder(m, callee)
	cb.Return(cb.Undef())

	opt.ConstFold(m, top)
	mustValidate(t, m)
	if n := testkit.Count(top, ir.OpClosureIs); n != 0 {
		t.Errorf("expected closure_is folded, %d left", n)
	}
	if got := summary(t, m); got != "return Array{0:true,1:false,length:2}" {
		t.Errorf("unexpected result %s", got)
	}
}

func TestFoldBinary(t *testing.T) {
	tests := []struct {
		name string
		op   ir.Operator
		x, y ir.Literal
		want ir.Literal
		ok   bool
	}{
		{"concat_number", ir.OperatorAdd, ir.String("n"), ir.Number(1), ir.String("n1"), true},
		{"add", ir.OperatorAdd, ir.Number(1), ir.Bool(true), ir.Number(2), true},
		{"null_eq_undefined", ir.OperatorEq, ir.Null(), ir.Undefined(), ir.Bool(true), true},
		{"null_ne_zero", ir.OperatorEq, ir.Null(), ir.Number(0), ir.Bool(false), true},
		{"nan_strict", ir.OperatorStrictEq, ir.Number(math.NaN()), ir.Number(math.NaN()), ir.Bool(false), true},
		{"bitor_wraps", ir.OperatorBitOr, ir.Number(1 << 32), ir.Number(5), ir.Number(5), true},
		{"ushr", ir.OperatorUshr, ir.Number(-1), ir.Number(28), ir.Number(15), true},
		{"ascii_compare", ir.OperatorLt, ir.String("a"), ir.String("b"), ir.Bool(true), true},
		{"unicode_compare", ir.OperatorLt, ir.String("é"), ir.String("ü"), ir.Literal{}, false},
		{"string_minus", ir.OperatorSub, ir.String("3"), ir.Number(1), ir.Literal{}, false},
		{"bigint", ir.OperatorAdd, ir.BigInt("1"), ir.BigInt("2"), ir.Literal{}, false},
		{"empty", ir.OperatorAdd, ir.Empty(), ir.Number(1), ir.Literal{}, false},
	}
	for _, tt := range tests {
		got, ok := opt.FoldBinary(tt.op, tt.x, tt.y)
		if ok != tt.ok {
			t.Errorf("%s: expected ok=%v, got %v", tt.name, tt.ok, ok)
			continue
		}
		if ok && !got.Same(tt.want) {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, got)
		}
	}
}

func TestFoldUnary(t *testing.T) {
	if got, ok := opt.FoldUnary(ir.OperatorTypeOf, ir.Null()); !ok || got.Str != "object" {
		t.Errorf("expected typeof null to fold to \"object\", got %v ok=%v", got, ok)
	}
	if got, ok := opt.FoldUnary(ir.OperatorBitNot, ir.Number(0)); !ok || got.Num != -1 {
		t.Errorf("expected ~0 to fold to -1, got %v ok=%v", got, ok)
	}
	if _, ok := opt.FoldUnary(ir.OperatorNot, ir.Empty()); ok {
		t.Errorf("expected the empty sentinel to stay unfolded")
	}
}
