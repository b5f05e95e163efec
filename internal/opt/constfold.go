package opt

import (
	"math"

	"gale/internal/ir"
)

// ConstFold folds instructions whose operands are literals, propagates
// copies, collapses trivial phis and resolves branches on literals. It runs
// to a fixed point.
func ConstFold(_ *ir.Module, f *ir.Func) bool {
	changed := false
	for {
		round := false
		for bi := range f.Blocks {
			// Instrs may shrink while we walk it; iterate over a snapshot.
			instrs := append([]ir.ValueID(nil), f.Blocks[bi].Instrs...)
			for _, v := range instrs {
				if f.Values[v].Block == ir.NoBlockID || f.Values[v].Kind == ir.OpDead {
					continue
				}
				if repl, ok := foldInstr(f, v); ok {
					f.ReplaceAllUses(v, repl)
					f.Remove(v)
					round = true
				}
			}
			if foldTerminator(f, ir.BlockID(bi)) {
				round = true
			}
		}
		if !round {
			return changed
		}
		changed = true
	}
}

// foldInstr returns the value that can replace v.
func foldInstr(f *ir.Func, v ir.ValueID) (ir.ValueID, bool) {
	ins := &f.Values[v]
	switch ins.Kind {
	case ir.OpMov:
		return ins.Args[0], true
	case ir.OpPhi:
		return trivialPhi(f, v)
	case ir.OpUnionNarrow:
		if f.IsLiteral(ins.Args[0]) {
			return ins.Args[0], true
		}
	case ir.OpThrowIfEmpty:
		if l, ok := f.LiteralOf(ins.Args[0]); ok && l.Kind != ir.LitEmpty {
			return ins.Args[0], true
		}
	case ir.OpCheckDerivedReturn:
		if l, ok := f.LiteralOf(ins.Args[0]); ok && l.Kind == ir.LitUndefined {
			return ins.Args[0], true
		}
	case ir.OpUnary:
		if l, ok := f.LiteralOf(ins.Args[0]); ok {
			if r, ok := FoldUnary(ins.Operator, l); ok {
				return f.Literal(r), true
			}
		}
	case ir.OpBinary:
		x, okx := f.LiteralOf(ins.Args[0])
		y, oky := f.LiteralOf(ins.Args[1])
		if okx && oky {
			if r, ok := FoldBinary(ins.Operator, x, y); ok {
				return f.Literal(r), true
			}
		}
	case ir.OpClosureIs:
		arg := &f.Values[ins.Args[0]]
		switch arg.Kind {
		case ir.OpCreateClosure:
			return f.Literal(ir.Bool(arg.Func == ins.Func)), true
		case ir.OpLiteral:
			return f.Literal(ir.Bool(false)), true
		}
	}
	return ir.NoValueID, false
}

// trivialPhi reports the single value a phi merges, ignoring self references.
func trivialPhi(f *ir.Func, v ir.ValueID) (ir.ValueID, bool) {
	ins := &f.Values[v]
	same := ir.NoValueID
	for _, a := range ins.Args {
		if a == v || a == same {
			continue
		}
		if same != ir.NoValueID {
			return ir.NoValueID, false
		}
		same = a
	}
	if same == ir.NoValueID {
		return ir.NoValueID, false
	}
	return same, true
}

func foldTerminator(f *ir.Func, b ir.BlockID) bool {
	bb := &f.Blocks[b]
	t := &bb.Term
	switch t.Kind {
	case ir.TermCondBranch:
		l, ok := f.LiteralOf(t.CondBranch.Cond)
		if !ok || l.Kind == ir.LitEmpty {
			return false
		}
		taken, dropped := t.CondBranch.Then, t.CondBranch.Else
		if !l.Truthy() {
			taken, dropped = dropped, taken
		}
		if dropped != taken {
			f.RemovePhiIncoming(dropped, b)
		}
		*t = ir.Terminator{Kind: ir.TermBranch, Pos: t.Pos, Branch: ir.BranchTerm{Target: taken}}
		return true
	case ir.TermSwitch:
		l, ok := f.LiteralOf(t.Switch.Value)
		if !ok {
			return false
		}
		taken := t.Switch.Default
		for _, c := range t.Switch.Cases {
			if c.Label.StrictEquals(l) {
				taken = c.Target
				break
			}
		}
		for _, s := range t.Successors() {
			if s != taken {
				f.RemovePhiIncoming(s, b)
			}
		}
		*t = ir.Terminator{Kind: ir.TermBranch, Pos: t.Pos, Branch: ir.BranchTerm{Target: taken}}
		return true
	}
	return false
}

// FoldUnary evaluates a unary operator on a literal when the result is exact.
func FoldUnary(op ir.Operator, l ir.Literal) (ir.Literal, bool) {
	if l.Kind == ir.LitEmpty {
		return ir.Literal{}, false
	}
	switch op {
	case ir.OperatorNot:
		return ir.Bool(!l.Truthy()), true
	case ir.OperatorTypeOf:
		return ir.String(l.TypeOf()), true
	case ir.OperatorPlus:
		if n, ok := toNumber(l); ok {
			return ir.Number(n), true
		}
	case ir.OperatorNeg:
		if n, ok := toNumber(l); ok {
			return ir.Number(-n), true
		}
	case ir.OperatorBitNot:
		if n, ok := toNumber(l); ok {
			return ir.Number(float64(^toInt32(n))), true
		}
	}
	return ir.Literal{}, false
}

// FoldBinary evaluates a binary operator on two literals when the result is
// exact. String comparisons are only folded for ASCII operands.
func FoldBinary(op ir.Operator, x, y ir.Literal) (ir.Literal, bool) {
	if x.Kind == ir.LitEmpty || y.Kind == ir.LitEmpty {
		return ir.Literal{}, false
	}
	switch op {
	case ir.OperatorStrictEq:
		return ir.Bool(x.StrictEquals(y)), true
	case ir.OperatorStrictNe:
		return ir.Bool(!x.StrictEquals(y)), true
	case ir.OperatorEq, ir.OperatorNe:
		eq, ok := looseEquals(x, y)
		if !ok {
			return ir.Literal{}, false
		}
		if op == ir.OperatorNe {
			eq = !eq
		}
		return ir.Bool(eq), true
	case ir.OperatorAdd:
		if x.Kind == ir.LitString || y.Kind == ir.LitString {
			xs, okx := x.ToPropertyString()
			ys, oky := y.ToPropertyString()
			if okx && oky && x.Kind != ir.LitBigInt && y.Kind != ir.LitBigInt {
				return ir.String(xs + ys), true
			}
			return ir.Literal{}, false
		}
	case ir.OperatorLt, ir.OperatorLe, ir.OperatorGt, ir.OperatorGe:
		if x.Kind == ir.LitString && y.Kind == ir.LitString {
			if !isASCII(x.Str) || !isASCII(y.Str) {
				return ir.Literal{}, false
			}
			return ir.Bool(compareStrings(op, x.Str, y.Str)), true
		}
	}
	if x.Kind == ir.LitBigInt || y.Kind == ir.LitBigInt || x.Kind == ir.LitString || y.Kind == ir.LitString {
		return ir.Literal{}, false
	}
	a, oka := toNumber(x)
	b, okb := toNumber(y)
	if !oka || !okb {
		return ir.Literal{}, false
	}
	switch op {
	case ir.OperatorAdd:
		return ir.Number(a + b), true
	case ir.OperatorSub:
		return ir.Number(a - b), true
	case ir.OperatorMul:
		return ir.Number(a * b), true
	case ir.OperatorDiv:
		return ir.Number(a / b), true
	case ir.OperatorMod:
		return ir.Number(math.Mod(a, b)), true
	case ir.OperatorLt:
		return ir.Bool(a < b), true
	case ir.OperatorLe:
		return ir.Bool(a <= b), true
	case ir.OperatorGt:
		return ir.Bool(a > b), true
	case ir.OperatorGe:
		return ir.Bool(a >= b), true
	case ir.OperatorBitAnd:
		return ir.Number(float64(toInt32(a) & toInt32(b))), true
	case ir.OperatorBitOr:
		return ir.Number(float64(toInt32(a) | toInt32(b))), true
	case ir.OperatorBitXor:
		return ir.Number(float64(toInt32(a) ^ toInt32(b))), true
	case ir.OperatorShl:
		return ir.Number(float64(toInt32(a) << (toUint32(b) & 31))), true
	case ir.OperatorShr:
		return ir.Number(float64(toInt32(a) >> (toUint32(b) & 31))), true
	case ir.OperatorUshr:
		return ir.Number(float64(toUint32(a) >> (toUint32(b) & 31))), true
	}
	return ir.Literal{}, false
}

func looseEquals(x, y ir.Literal) (bool, bool) {
	nullish := func(l ir.Literal) bool { return l.Kind == ir.LitNull || l.Kind == ir.LitUndefined }
	if nullish(x) || nullish(y) {
		return nullish(x) && nullish(y), true
	}
	if x.Kind == y.Kind {
		return x.StrictEquals(y), true
	}
	if (x.Kind == ir.LitNumber || x.Kind == ir.LitBool) && (y.Kind == ir.LitNumber || y.Kind == ir.LitBool) {
		a, _ := toNumber(x)
		b, _ := toNumber(y)
		return a == b, true
	}
	return false, false
}

// toNumber converts literals whose numeric value needs no string parsing.
func toNumber(l ir.Literal) (float64, bool) {
	switch l.Kind {
	case ir.LitNumber:
		return l.Num, true
	case ir.LitBool:
		if l.Bool {
			return 1, true
		}
		return 0, true
	case ir.LitNull:
		return 0, true
	case ir.LitUndefined:
		return math.NaN(), true
	}
	return 0, false
}

// ToInt32 implements the ECMAScript ToInt32 conversion on a double.
func ToInt32(n float64) int32 { return toInt32(n) }

func toInt32(n float64) int32 {
	return int32(toUint32(n))
}

func toUint32(n float64) uint32 {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0
	}
	n = math.Trunc(n)
	n = math.Mod(n, 1<<32)
	if n < 0 {
		n += 1 << 32
	}
	return uint32(n)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

func compareStrings(op ir.Operator, a, b string) bool {
	switch op {
	case ir.OperatorLt:
		return a < b
	case ir.OperatorLe:
		return a <= b
	case ir.OperatorGt:
		return a > b
	}
	return a >= b
}
