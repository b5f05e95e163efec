package opt

import "gale/internal/ir"

// Proof is the outcome of the bound-parameter analysis for one value or
// variable. Proven is false when the value may hold anything else.
type Proof struct {
	Proven bool
	Func   ir.FuncID
	Param  int32
}

type latticeLevel uint8

const (
	levelUnknown latticeLevel = iota
	levelProven
	levelConflict
)

type cell struct {
	level latticeLevel
	bound ir.BoundParam
}

// join reports whether c changed.
func (c *cell) join(o cell) bool {
	switch {
	case o.level == levelUnknown || c.level == levelConflict:
		return false
	case c.level == levelUnknown:
		*c = o
		return true
	case o.level == levelConflict || o.bound != c.bound:
		*c = cell{level: levelConflict}
		return true
	}
	return false
}

// BoundParamsResult holds the fixpoint of the analysis.
type BoundParamsResult struct {
	values map[*ir.Func][]cell
	vars   map[ir.VarRef]*cell
}

// BoundParams proves which values always hold a given parameter of a module
// factory function. Facts flow through copies, phis, narrowing, guards and
// scope variables; any other definition conflicts.
func BoundParams(m *ir.Module) *BoundParamsResult {
	r := &BoundParamsResult{
		values: make(map[*ir.Func][]cell, len(m.Funcs)),
		vars:   make(map[ir.VarRef]*cell),
	}
	for _, f := range m.Funcs {
		cells := make([]cell, len(f.Values))
		for i := range f.Values {
			if f.Values[i].Kind.Floating() {
				cells[i] = cell{level: levelConflict}
			}
		}
		if f.Flags.Has(ir.FuncModuleFactory) {
			for i, p := range f.Params {
				cells[p] = cell{level: levelProven, bound: ir.BoundParam{Func: f.ID, Param: ir.ID32(i, "param")}}
			}
		}
		r.values[f] = cells
	}
	for changed := true; changed; {
		changed = false
		for _, f := range m.Funcs {
			if r.propagate(m, f) {
				changed = true
			}
		}
	}
	return r
}

// varCell returns the cell of a variable. A plain variable starts out
// undefined, which conflicts; a lexical one starts empty, which every read
// must guard against before the value can be called.
func (r *BoundParamsResult) varCell(m *ir.Module, ref ir.VarRef) *cell {
	c := r.vars[ref]
	if c == nil {
		c = &cell{}
		if v := m.Var(ref); v == nil || !v.Lexical {
			c.level = levelConflict
		}
		r.vars[ref] = c
	}
	return c
}

func (r *BoundParamsResult) propagate(m *ir.Module, f *ir.Func) bool {
	cells := r.values[f]
	changed := false
	for bi := range f.Blocks {
		for _, v := range f.Blocks[bi].Instrs {
			ins := &f.Values[v]
			var in cell
			switch ins.Kind {
			case ir.OpMov, ir.OpUnionNarrow, ir.OpThrowIfEmpty:
				in = cells[ins.Args[0]]
			case ir.OpPhi:
				for _, a := range ins.Args {
					in.join(cells[a])
				}
			case ir.OpLoadVar:
				in = *r.varCell(m, ins.Var)
			case ir.OpStoreVar:
				if f.TypeOf(ins.Args[1]) == ir.TypeEmpty {
					// Initialization of a lexical binding.
					continue
				}
				if r.varCell(m, ins.Var).join(cells[ins.Args[1]]) {
					changed = true
				}
				continue
			case ir.OpDead:
				continue
			default:
				in = cell{level: levelConflict}
			}
			if cells[v].join(in) {
				changed = true
			}
		}
	}
	return changed
}

// Value returns the proof for v in f.
func (r *BoundParamsResult) Value(f *ir.Func, v ir.ValueID) Proof {
	cells := r.values[f]
	if v < 0 || int(v) >= len(cells) {
		return Proof{}
	}
	c := cells[v]
	if c.level != levelProven {
		return Proof{}
	}
	return Proof{Proven: true, Func: c.bound.Func, Param: c.bound.Param}
}

// Var returns the proof for a scope variable.
func (r *BoundParamsResult) Var(ref ir.VarRef) Proof {
	c := r.vars[ref]
	if c == nil || c.level != levelProven {
		return Proof{}
	}
	return Proof{Proven: true, Func: c.bound.Func, Param: c.bound.Param}
}

// Annotate marks every call whose callee is proven with CallBoundParam and
// assigns it a cache slot. Slots are numbered per module in function order.
// It returns the number of annotated calls.
func (r *BoundParamsResult) Annotate(m *ir.Module) int {
	n := 0
	for _, f := range m.Funcs {
		for bi := range f.Blocks {
			for _, v := range f.Blocks[bi].Instrs {
				ins := &f.Values[v]
				if ins.Kind != ir.OpCall || ins.Call.Flags&ir.CallConstruct != 0 {
					continue
				}
				p := r.Value(f, ins.Args[0])
				if !p.Proven {
					continue
				}
				ins.Call.Flags |= ir.CallBoundParam
				ins.Call.Bound = ir.BoundParam{Func: p.Func, Param: p.Param}
				ins.Call.CacheSlot = ir.ID32(n, "cache slot")
				n++
			}
		}
	}
	return n
}
