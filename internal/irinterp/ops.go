package irinterp

import (
	"math"
	"math/big"
	"strings"

	"gale/internal/ir"
)

func (m *Machine) unary(op ir.Operator, v Value) (Value, error) {
	if v.Kind == KindEmpty || v.Kind == KindEnv {
		return Value{}, &Error{Code: ErrMalformed, Message: "unary " + op.String() + " of " + v.Kind.String(), Block: ir.NoBlockID}
	}
	switch op {
	case ir.OperatorNot:
		return Bool(!v.Truthy()), nil
	case ir.OperatorTypeOf:
		return String(v.TypeOf()), nil
	case ir.OperatorPlus:
		if v.Kind == KindBigInt {
			return Value{}, m.throwError("TypeError", "cannot convert a BigInt value to a number")
		}
		return Number(v.ToNumber()), nil
	case ir.OperatorNeg:
		if v.Kind == KindBigInt {
			n := bigOf(v)
			return bigValue(n.Neg(n)), nil
		}
		return Number(-v.ToNumber()), nil
	case ir.OperatorBitNot:
		if v.Kind == KindBigInt {
			n := bigOf(v)
			return bigValue(n.Not(n)), nil
		}
		return Number(float64(^toInt32(v.ToNumber()))), nil
	}
	return Value{}, &Error{Code: ErrMalformed, Message: "unknown unary operator " + op.String(), Block: ir.NoBlockID}
}

func (m *Machine) binary(op ir.Operator, x, y Value) (Value, error) {
	for _, v := range [2]Value{x, y} {
		if v.Kind == KindEmpty || v.Kind == KindEnv {
			return Value{}, &Error{Code: ErrMalformed, Message: "binary " + op.String() + " of " + v.Kind.String(), Block: ir.NoBlockID}
		}
	}
	switch op {
	case ir.OperatorStrictEq:
		return Bool(x.StrictEquals(y)), nil
	case ir.OperatorStrictNe:
		return Bool(!x.StrictEquals(y)), nil
	case ir.OperatorEq:
		return Bool(looseEquals(x, y)), nil
	case ir.OperatorNe:
		return Bool(!looseEquals(x, y)), nil
	case ir.OperatorAdd:
		px, py := toPrimitive(x), toPrimitive(y)
		if px.Kind == KindString || py.Kind == KindString {
			return String(px.ToString() + py.ToString()), nil
		}
		return m.numeric(op, px, py)
	case ir.OperatorLt, ir.OperatorLe, ir.OperatorGt, ir.OperatorGe:
		px, py := toPrimitive(x), toPrimitive(y)
		if px.Kind == KindString && py.Kind == KindString {
			c := compareUTF16(px.Str, py.Str)
			switch op {
			case ir.OperatorLt:
				return Bool(c < 0), nil
			case ir.OperatorLe:
				return Bool(c <= 0), nil
			case ir.OperatorGt:
				return Bool(c > 0), nil
			}
			return Bool(c >= 0), nil
		}
		a, b := px.ToNumber(), py.ToNumber()
		switch op {
		case ir.OperatorLt:
			return Bool(a < b), nil
		case ir.OperatorLe:
			return Bool(a <= b), nil
		case ir.OperatorGt:
			return Bool(a > b), nil
		}
		return Bool(a >= b), nil
	}
	return m.numeric(op, toPrimitive(x), toPrimitive(y))
}

func (m *Machine) numeric(op ir.Operator, x, y Value) (Value, error) {
	if x.Kind == KindBigInt || y.Kind == KindBigInt {
		if x.Kind != y.Kind {
			return Value{}, m.throwError("TypeError", "cannot mix BigInt and other types")
		}
		return m.bigArith(op, bigOf(x), bigOf(y))
	}
	a, b := x.ToNumber(), y.ToNumber()
	switch op {
	case ir.OperatorAdd:
		return Number(a + b), nil
	case ir.OperatorSub:
		return Number(a - b), nil
	case ir.OperatorMul:
		return Number(a * b), nil
	case ir.OperatorDiv:
		return Number(a / b), nil
	case ir.OperatorMod:
		return Number(math.Mod(a, b)), nil
	case ir.OperatorBitAnd:
		return Number(float64(toInt32(a) & toInt32(b))), nil
	case ir.OperatorBitOr:
		return Number(float64(toInt32(a) | toInt32(b))), nil
	case ir.OperatorBitXor:
		return Number(float64(toInt32(a) ^ toInt32(b))), nil
	case ir.OperatorShl:
		return Number(float64(toInt32(a) << (toUint32(b) & 31))), nil
	case ir.OperatorShr:
		return Number(float64(toInt32(a) >> (toUint32(b) & 31))), nil
	case ir.OperatorUshr:
		return Number(float64(toUint32(a) >> (toUint32(b) & 31))), nil
	}
	return Value{}, &Error{Code: ErrMalformed, Message: "unknown binary operator " + op.String(), Block: ir.NoBlockID}
}

func (m *Machine) bigArith(op ir.Operator, a, b *big.Int) (Value, error) {
	r := new(big.Int)
	switch op {
	case ir.OperatorAdd:
		r.Add(a, b)
	case ir.OperatorSub:
		r.Sub(a, b)
	case ir.OperatorMul:
		r.Mul(a, b)
	case ir.OperatorDiv, ir.OperatorMod:
		if b.Sign() == 0 {
			return Value{}, m.throwError("RangeError", "division by zero")
		}
		if op == ir.OperatorDiv {
			r.Quo(a, b)
		} else {
			r.Rem(a, b)
		}
	case ir.OperatorBitAnd:
		r.And(a, b)
	case ir.OperatorBitOr:
		r.Or(a, b)
	case ir.OperatorBitXor:
		r.Xor(a, b)
	default:
		return Value{}, m.throwError("TypeError", "unsupported BigInt operator %s", op)
	}
	return bigValue(r), nil
}

func bigOf(v Value) *big.Int {
	n, ok := new(big.Int).SetString(v.Str, 10)
	if !ok {
		return new(big.Int)
	}
	return n
}

func bigValue(n *big.Int) Value {
	return Value{Kind: KindBigInt, Str: n.String()}
}

func toPrimitive(v Value) Value {
	switch v.Kind {
	case KindObject, KindClosure:
		return String(v.ToString())
	}
	return v
}

func looseEquals(x, y Value) bool {
	nullish := func(v Value) bool { return v.Kind == KindNull || v.Kind == KindUndefined }
	switch {
	case x.Kind == y.Kind:
		return x.StrictEquals(y)
	case nullish(x) || nullish(y):
		return nullish(x) && nullish(y)
	case x.Kind == KindObject || x.Kind == KindClosure:
		return looseEquals(toPrimitive(x), y)
	case y.Kind == KindObject || y.Kind == KindClosure:
		return looseEquals(x, toPrimitive(y))
	case x.Kind == KindBigInt || y.Kind == KindBigInt:
		return x.ToString() == y.ToString()
	}
	return x.ToNumber() == y.ToNumber()
}

func compareUTF16(a, b string) int {
	ua, ub := utf16Units(a), utf16Units(b)
	for i := 0; i < len(ua) && i < len(ub); i++ {
		if ua[i] != ub[i] {
			if ua[i] < ub[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(ua) < len(ub):
		return -1
	case len(ua) > len(ub):
		return 1
	}
	return 0
}

func toInt32(n float64) int32 { return int32(toUint32(n)) }

func toUint32(n float64) uint32 {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0
	}
	n = math.Mod(math.Trunc(n), 1<<32)
	if n < 0 {
		n += 1 << 32
	}
	return uint32(n)
}

func (m *Machine) builtin(fr *frame, name string, args []Value) (Value, error) {
	switch name {
	case "print", "log":
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = a.ToString()
		}
		m.Log = append(m.Log, strings.Join(parts, " "))
		return Undefined(), nil
	}
	if g, ok := m.Globals[name]; ok && g.Kind == KindClosure {
		return m.call(g.Clo, Undefined(), args)
	}
	return Value{}, m.fail(fr, ErrUnknownGlobal, "unknown builtin %q", name)
}

// Memory intrinsics read and write little-endian integers in Machine.Memory.
var intrinsicWidths = map[string]int{
	"__load8": 1, "__load16": 2, "__load32": 4,
	"__store8": 1, "__store16": 2, "__store32": 4,
}

func (m *Machine) installIntrinsics() {
	for name, width := range intrinsicWidths {
		store := strings.HasPrefix(name, "__store")
		m.Globals[name] = Value{Kind: KindClosure, Clo: &Closure{Name: name, Native: memoryIntrinsic(width, store)}}
	}
	m.Globals["print"] = Value{Kind: KindClosure, Clo: &Closure{Name: "print", Native: func(m *Machine, _ Value, args []Value) (Value, error) {
		return m.builtin(nil, "print", args)
	}}}
}

func memoryIntrinsic(width int, store bool) func(*Machine, Value, []Value) (Value, error) {
	return func(m *Machine, _ Value, args []Value) (Value, error) {
		if len(args) == 0 {
			return Value{}, m.throwError("TypeError", "missing address")
		}
		addr := int(toUint32(args[0].ToNumber()))
		if addr+width > len(m.Memory) {
			return Value{}, m.throwError("RangeError", "address %d out of bounds", addr)
		}
		if store {
			v := Undefined()
			if len(args) > 1 {
				v = args[1]
			}
			u := toUint32(v.ToNumber())
			for i := 0; i < width; i++ {
				m.Memory[addr+i] = byte(u >> (8 * i))
			}
			return Undefined(), nil
		}
		var u uint32
		for i := 0; i < width; i++ {
			u |= uint32(m.Memory[addr+i]) << (8 * i)
		}
		return Number(float64(u)), nil
	}
}
