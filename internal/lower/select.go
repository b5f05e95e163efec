package lower

import (
	"math"
	"strconv"

	"gale/internal/ir"
	"gale/internal/lir"
)

var unaryOps = map[ir.Operator]lir.Op{
	ir.OperatorNeg:    lir.Negate,
	ir.OperatorPlus:   lir.ToNumber,
	ir.OperatorNot:    lir.Not,
	ir.OperatorBitNot: lir.BitNot,
	ir.OperatorTypeOf: lir.TypeOf,
}

var binaryOps = map[ir.Operator]lir.Op{
	ir.OperatorAdd:      lir.Add,
	ir.OperatorSub:      lir.Sub,
	ir.OperatorMul:      lir.Mul,
	ir.OperatorDiv:      lir.Div,
	ir.OperatorMod:      lir.Mod,
	ir.OperatorEq:       lir.Eq,
	ir.OperatorNe:       lir.Neq,
	ir.OperatorStrictEq: lir.StrictEq,
	ir.OperatorStrictNe: lir.StrictNeq,
	ir.OperatorLt:       lir.Less,
	ir.OperatorLe:       lir.LessEq,
	ir.OperatorGt:       lir.Greater,
	ir.OperatorGe:       lir.GreaterEq,
	ir.OperatorBitAnd:   lir.BitAnd,
	ir.OperatorBitOr:    lir.BitOr,
	ir.OperatorBitXor:   lir.BitXor,
	ir.OperatorShl:      lir.LShift,
	ir.OperatorShr:      lir.RShift,
	ir.OperatorUshr:     lir.URShift,
}

// intrinsics maps memory builtins to their opcode and arity.
var intrinsics = map[string]struct {
	op    lir.Op
	arity int
}{
	"__load8":   {lir.Load8, 1},
	"__load16":  {lir.Load16, 1},
	"__load32":  {lir.Load32, 1},
	"__store8":  {lir.Store8, 2},
	"__store16": {lir.Store16, 2},
	"__store32": {lir.Store32, 2},
}

func (l *lowerer) instr(v ir.ValueID) {
	ins := &l.f.Values[v]
	switch ins.Kind {
	case ir.OpDead:
		// Keeps its slot; the allocator and emitter skip it.
		l.add(lir.Instr{Op: lir.Nop, Dst: l.out.NewReg(lir.ClassGeneral), Dead: true})
	case ir.OpPhi:
		// Defined by the copies on incoming edges.
		l.reg(v)
	case ir.OpMov, ir.OpUnionNarrow:
		l.def(v, lir.Mov, l.reg(ins.Args[0]))
	case ir.OpUnary:
		op, ok := unaryOps[ins.Operator]
		if !ok {
			ir.Panicf("lower %s: v%d: unknown unary operator %s", l.f.Name, v, ins.Operator)
		}
		l.def(v, op, l.reg(ins.Args[0]))
	case ir.OpBinary:
		op, ok := binaryOps[ins.Operator]
		if !ok {
			ir.Panicf("lower %s: v%d: unknown binary operator %s", l.f.Name, v, ins.Operator)
		}
		l.def(v, op, l.reg(ins.Args[0]), l.reg(ins.Args[1]))

	case ir.OpCreateScope:
		s := l.m.Scope(ins.Scope)
		if s == nil || s.Elided {
			ir.Panicf("lower %s: v%d creates elided or missing scope s%d", l.f.Name, v, ins.Scope)
		}
		if len(ins.Args) == 0 {
			l.def(v, lir.CreateTopEnvironment).Imm = int64(len(s.Vars))
		} else {
			l.def(v, lir.CreateEnvironment, l.reg(ins.Args[0])).Imm = int64(len(s.Vars))
		}
	case ir.OpGetParentScope:
		l.def(v, lir.GetParentEnvironment)
	case ir.OpResolveScope:
		from := ir.StaticScope(l.f, ins.Args[0])
		hops, ok := l.m.Hops(from, ins.Scope)
		if !ok {
			ir.Panicf("lower %s: v%d: s%d is not on the chain of s%d", l.f.Name, v, ins.Scope, from)
		}
		if hops == 0 {
			l.def(v, lir.Mov, l.reg(ins.Args[0]))
		} else {
			l.def(v, lir.GetEnvironment, l.reg(ins.Args[0])).Imm = int64(hops)
		}
	case ir.OpGetClosureScope:
		l.def(v, lir.GetClosureEnvironment, l.reg(ins.Args[0]))
	case ir.OpLoadVar:
		l.def(v, lir.LoadFromEnvironment, l.reg(ins.Args[0])).Imm = int64(ins.Var.Index)
	case ir.OpStoreVar:
		l.add(lir.Instr{Op: lir.StoreToEnvironment, Args: l.regsOf(ins.Args[:2]), Imm: int64(ins.Var.Index)})
	case ir.OpThrowIfEmpty:
		l.def(v, lir.ThrowIfEmpty, l.reg(ins.Args[0]))
	case ir.OpCreateClosure:
		l.def(v, lir.CreateClosure, l.reg(ins.Args[0])).Imm = int64(ins.Func)

	case ir.OpCall:
		l.call(v, ins)
	case ir.OpCreateThis:
		l.def(v, lir.CreateThis, l.reg(ins.Args[0]))
	case ir.OpGetConstructedObject:
		l.def(v, lir.SelectObject, l.reg(ins.Args[0]), l.reg(ins.Args[1]))
	case ir.OpCheckDerivedReturn:
		l.def(v, lir.ThrowIfNotObjectOrUndefined, l.reg(ins.Args[0]))
	case ir.OpClosureIs:
		l.def(v, lir.ClosureIs, l.reg(ins.Args[0])).Imm = int64(ins.Func)
	case ir.OpCallBuiltin:
		l.builtin(v, ins)

	case ir.OpLoadProp:
		l.loadProp(v, ins)
	case ir.OpStoreProp:
		l.storeProp(ins)
	case ir.OpLoadGlobal:
		l.def(v, lir.GetGlobal).Str = ins.Name
	case ir.OpStoreGlobal:
		l.add(lir.Instr{Op: lir.PutGlobal, Args: []lir.Reg{l.reg(ins.Args[0])}, Str: ins.Name})

	case ir.OpAllocObjectLiteral:
		l.objectLiteral(v, ins)
	case ir.OpAllocArrayLiteral:
		l.arrayLiteral(v, ins)
	case ir.OpArguments:
		if l.escapes[v] {
			l.def(v, lir.ReifyArguments)
		}
	case ir.OpCatch:
		l.def(v, lir.Catch)
	default:
		ir.Panicf("lower %s: v%d: cannot select %s", l.f.Name, v, ins.Kind)
	}
}

func (l *lowerer) call(v ir.ValueID, ins *ir.Instr) {
	args := l.regsOf(ins.Args)
	switch {
	case ins.Call.Flags&ir.CallConstruct != 0:
		l.def(v, lir.Construct, args...)
	case ins.Call.Flags&ir.CallBoundParam != 0 && l.literalArgs(ins.Args[2:]):
		slot := int64(ins.Call.CacheSlot)
		l.def(v, lir.LoadCached).Imm = slot
		l.def(v, lir.CallAndCache, args...).Imm = slot
		l.out.CacheSlots = max(l.out.CacheSlots, int(slot)+1)
	default:
		if ins.Call.Flags&ir.CallBoundParam != 0 {
			l.fallback("call-cache", "v%d: bound call with computed arguments", v)
		}
		l.def(v, lir.Call, args...)
	}
}

func (l *lowerer) literalArgs(vs []ir.ValueID) bool {
	for _, a := range vs {
		if !l.f.IsLiteral(a) {
			return false
		}
	}
	return true
}

func (l *lowerer) builtin(v ir.ValueID, ins *ir.Instr) {
	if in, ok := intrinsics[ins.Name]; ok && len(ins.Args) == in.arity {
		args := l.regsOf(ins.Args)
		if lir.FormatOf(in.op).Dst {
			l.def(v, in.op, args...)
			return
		}
		l.add(lir.Instr{Op: in.op, Args: args})
		if l.uses[v] > 0 {
			l.loadLiteral(l.reg(v), ir.Undefined())
		}
		return
	}
	l.def(v, lir.CallBuiltin, l.regsOf(ins.Args)...).Str = ins.Name
}

// propKey classifies a property key operand: an array index, a named
// property, or a computed key that needs a register.
type propKey struct {
	index   int64
	name    string
	isIndex bool
	static  bool
}

func (l *lowerer) propKeyOf(v ir.ValueID) propKey {
	lit, ok := l.f.LiteralOf(v)
	if !ok {
		return propKey{}
	}
	if idx, ok := arrayIndex(lit); ok {
		if idx <= math.MaxInt32 {
			return propKey{index: idx, isIndex: true, static: true}
		}
		return propKey{}
	}
	s, ok := lit.ToPropertyString()
	if !ok {
		return propKey{}
	}
	return propKey{name: s, static: true}
}

// arrayIndex reports whether lit names an array element: an integral
// number or canonical decimal string in [0, 2^32-2].
func arrayIndex(lit ir.Literal) (int64, bool) {
	const maxIndex = 1<<32 - 2
	switch lit.Kind {
	case ir.LitNumber:
		n := lit.Num
		if n == math.Trunc(n) && n >= 0 && n <= maxIndex && !math.Signbit(n) {
			return int64(n), true
		}
	case ir.LitString:
		s := lit.Str
		if s == "" || len(s) > 10 || len(s) > 1 && s[0] == '0' {
			return 0, false
		}
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil || n > maxIndex {
			return 0, false
		}
		return int64(n), true
	}
	return 0, false
}

func (l *lowerer) loadProp(v ir.ValueID, ins *ir.Instr) {
	obj := ins.Args[0]
	if l.f.Values[obj].Kind == ir.OpArguments && !l.escapes[obj] {
		if k := l.propKeyOf(ins.Args[1]); k.static && !k.isIndex && k.name == "length" {
			l.def(v, lir.GetArgumentsLength)
			return
		}
		l.def(v, lir.GetArgumentsPropByVal, l.reg(ins.Args[1]))
		return
	}
	switch k := l.propKeyOf(ins.Args[1]); {
	case k.isIndex:
		l.def(v, lir.GetByIndex, l.reg(obj)).Imm = k.index
	case k.static:
		l.def(v, lir.GetById, l.reg(obj)).Str = k.name
	default:
		l.def(v, lir.GetByVal, l.reg(obj), l.reg(ins.Args[1]))
	}
}

func (l *lowerer) storeProp(ins *ir.Instr) {
	obj, key, val := ins.Args[0], ins.Args[1], ins.Args[2]
	switch k := l.propKeyOf(key); {
	case k.isIndex:
		l.add(lir.Instr{Op: lir.PutByIndex, Args: []lir.Reg{l.reg(obj), l.reg(val)}, Imm: k.index})
	case k.static:
		l.add(lir.Instr{Op: lir.PutById, Args: []lir.Reg{l.reg(obj), l.reg(val)}, Str: k.name})
	default:
		l.add(lir.Instr{Op: lir.PutByVal, Args: []lir.Reg{l.reg(obj), l.reg(key), l.reg(val)}})
	}
}

// escapingArguments finds the arguments objects that are used as anything
// other than the object of a property read.
func escapingArguments(f *ir.Func) map[ir.ValueID]bool {
	out := make(map[ir.ValueID]bool)
	var args []ir.ValueID
	for bi := range f.Blocks {
		for _, v := range f.Blocks[bi].Instrs {
			if f.Values[v].Kind == ir.OpArguments {
				args = append(args, v)
			}
		}
	}
	if len(args) == 0 {
		return out
	}
	uses := f.Uses()
	for _, a := range args {
		for _, u := range uses[a] {
			if u.Instr == ir.NoValueID || f.Values[u.Instr].Kind != ir.OpLoadProp || u.Index != 0 {
				out[a] = true
				break
			}
		}
	}
	return out
}
