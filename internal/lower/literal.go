package lower

import (
	"math"

	"gale/internal/ir"
	"gale/internal/lir"
)

// EstimateBestPrefix picks how many leading entries of a literal to pack
// into its buffer. placeholder[i] is set for entries whose value is not a
// constant; each costs penalty packed literals, since it still needs a slot
// store after allocation. Ties go to the longer prefix. The result never
// exceeds maxEntries.
func EstimateBestPrefix(placeholder []bool, penalty, maxEntries int) int {
	best, bestScore, score := 0, 0, 0
	for i, ph := range placeholder {
		if i >= maxEntries {
			break
		}
		if ph {
			score -= penalty
		} else {
			score++
		}
		if score >= bestScore && score > 0 {
			best, bestScore = i+1, score
		}
	}
	return best
}

// bufValue serializes a constant value. ok is false for values a buffer
// cannot hold.
func bufValue(lit ir.Literal) (lir.BufValue, bool) {
	switch lit.Kind {
	case ir.LitNull:
		return lir.BufValue{Kind: lir.BufNull}, true
	case ir.LitUndefined:
		return lir.BufValue{Kind: lir.BufUndefined}, true
	case ir.LitBool:
		if lit.Bool {
			return lir.BufValue{Kind: lir.BufTrue}, true
		}
		return lir.BufValue{Kind: lir.BufFalse}, true
	case ir.LitNumber:
		if n, ok := int32Of(lit.Num); ok {
			return lir.BufValue{Kind: lir.BufInt, Int: int64(n)}, true
		}
		return lir.BufValue{Kind: lir.BufNumber, Num: lit.Num}, true
	case ir.LitString:
		return lir.BufValue{Kind: lir.BufString, Str: lit.Str}, true
	}
	return lir.BufValue{}, false
}

// bufKey normalizes a static object key. Numeric-looking keys become
// integer keys.
func bufKey(lit ir.Literal) (lir.BufValue, bool) {
	if idx, ok := arrayIndex(lit); ok && idx <= math.MaxInt32 {
		return lir.BufValue{Kind: lir.BufInt, Int: idx}, true
	}
	s, ok := lit.ToPropertyString()
	if !ok {
		return lir.BufValue{}, false
	}
	return lir.BufValue{Kind: lir.BufString, Str: s}, true
}

type bufEntry struct {
	key   lir.BufValue
	value ir.ValueID
}

type keyID struct {
	kind lir.BufValueKind
	n    int64
	s    string
}

// objectLiteral packs a source-order prefix of the entries into one buffer.
// Packing stops at the first accessor or dynamic key. A repeated key keeps
// the slot of its first occurrence and each repetition is stored again.
// Entries left out are stored one by one after allocation, in source order.
func (l *lowerer) objectLiteral(v ir.ValueID, ins *ir.Instr) {
	var entries []bufEntry
	slotOf := make([]int, len(ins.Props))
	byKey := make(map[keyID]int)
	stop := len(ins.Props)
	for i, p := range ins.Props {
		key, ok := l.staticKey(ins, p)
		if !ok || p.Kind != ir.PropValue {
			stop = i
			break
		}
		id := keyID{kind: key.Kind, n: key.Int, s: key.Str}
		if _, seen := byKey[id]; seen {
			slotOf[i] = -1
			continue
		}
		byKey[id] = len(entries)
		slotOf[i] = len(entries)
		entries = append(entries, bufEntry{key: key, value: ins.Args[p.ValueArg]})
	}

	placeholder := make([]bool, len(entries))
	for i, e := range entries {
		placeholder[i] = !l.bufferable(e.value)
	}
	n := EstimateBestPrefix(placeholder, l.cfg.PlaceholderPenalty, l.cfg.MaxBufferEntries)
	if n < len(ins.Props) {
		l.fallback("literal-buffer", "v%d: %d of %d entries packed", v, n, len(ins.Props))
	}

	obj := l.reg(v)
	if n == 0 {
		l.def(v, lir.NewObject)
	} else {
		buf := lir.Buffer{Keys: make([]lir.BufValue, n), Values: make([]lir.BufValue, n)}
		for i, e := range entries[:n] {
			buf.Keys[i] = e.key
			buf.Values[i] = l.bufferedValue(e.value)
		}
		l.out.Buffers = append(l.out.Buffers, buf)
		l.def(v, lir.NewObjectWithBuffer).Buffer = len(l.out.Buffers) - 1
		for i, e := range entries[:n] {
			if placeholder[i] {
				l.add(lir.Instr{Op: lir.PutOwnBySlotIdx, Args: []lir.Reg{obj, l.reg(e.value)}, Imm: int64(i)})
			}
		}
	}
	for i, p := range ins.Props {
		if i < stop && slotOf[i] >= 0 && slotOf[i] < n {
			continue
		}
		l.putOwn(obj, ins, p)
	}
}

func (l *lowerer) staticKey(ins *ir.Instr, p ir.Prop) (lir.BufValue, bool) {
	lit := p.Key
	if p.KeyArg >= 0 {
		var ok bool
		if lit, ok = l.f.LiteralOf(ins.Args[p.KeyArg]); !ok {
			return lir.BufValue{}, false
		}
	}
	return bufKey(lit)
}

func (l *lowerer) bufferable(v ir.ValueID) bool {
	lit, ok := l.f.LiteralOf(v)
	if !ok {
		return false
	}
	_, ok = bufValue(lit)
	return ok
}

// bufferedValue is the serialized value of v, null for a placeholder.
func (l *lowerer) bufferedValue(v ir.ValueID) lir.BufValue {
	if lit, ok := l.f.LiteralOf(v); ok {
		if bv, ok := bufValue(lit); ok {
			return bv
		}
	}
	return lir.BufValue{Kind: lir.BufNull}
}

// putOwn defines one entry after allocation.
func (l *lowerer) putOwn(obj lir.Reg, ins *ir.Instr, p ir.Prop) {
	val := l.reg(ins.Args[p.ValueArg])
	var keyReg lir.Reg
	key, static := l.staticKey(ins, p)
	switch {
	case p.KeyArg >= 0:
		keyReg = l.reg(ins.Args[p.KeyArg])
	case static && key.Kind == lir.BufInt:
		keyReg = l.litReg(ir.Number(float64(key.Int)))
	default:
		keyReg = l.litReg(p.Key)
	}
	if p.Kind != ir.PropValue {
		setter := int64(0)
		if p.Kind == ir.PropSetter {
			setter = 1
		}
		l.add(lir.Instr{Op: lir.PutOwnAccessor, Args: []lir.Reg{obj, keyReg, val}, Imm: setter})
		return
	}
	switch {
	case static && key.Kind == lir.BufInt:
		l.add(lir.Instr{Op: lir.PutOwnByIndex, Args: []lir.Reg{obj, val}, Imm: key.Int})
	case static:
		l.add(lir.Instr{Op: lir.PutOwnById, Args: []lir.Reg{obj, val}, Str: key.Str})
	default:
		l.add(lir.Instr{Op: lir.PutOwnByVal, Args: []lir.Reg{obj, keyReg, val}})
	}
}

// arrayLiteral packs a prefix of the elements; the rest are stored by index.
func (l *lowerer) arrayLiteral(v ir.ValueID, ins *ir.Instr) {
	placeholder := make([]bool, len(ins.Args))
	for i, a := range ins.Args {
		placeholder[i] = !l.bufferable(a)
	}
	n := EstimateBestPrefix(placeholder, l.cfg.PlaceholderPenalty, l.cfg.MaxBufferEntries)
	if n < len(ins.Args) {
		l.fallback("literal-buffer", "v%d: %d of %d elements packed", v, n, len(ins.Args))
	}
	arr := l.reg(v)
	if n == 0 {
		l.def(v, lir.NewArray).Imm = int64(len(ins.Args))
	} else {
		buf := lir.Buffer{Values: make([]lir.BufValue, n)}
		for i, a := range ins.Args[:n] {
			buf.Values[i] = l.bufferedValue(a)
		}
		l.out.Buffers = append(l.out.Buffers, buf)
		in := l.def(v, lir.NewArrayWithBuffer)
		in.Buffer, in.Imm = len(l.out.Buffers)-1, int64(len(ins.Args))
	}
	for i, a := range ins.Args {
		if i < n && !placeholder[i] {
			continue
		}
		l.add(lir.Instr{Op: lir.PutOwnByIndex, Args: []lir.Reg{arr, l.reg(a)}, Imm: int64(i)})
	}
}
