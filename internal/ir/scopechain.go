package ir

// StaticScope returns the scope whose environment v holds, or NoScopeID when
// v is not a statically known environment.
func StaticScope(f *Func, v ValueID) ScopeID {
	seen := make(map[ValueID]bool)
	var walk func(v ValueID) ScopeID
	walk = func(v ValueID) ScopeID {
		ins := f.Value(v)
		if ins == nil || seen[v] {
			return NoScopeID
		}
		seen[v] = true
		switch ins.Kind {
		case OpCreateScope, OpResolveScope, OpGetClosureScope:
			return ins.Scope
		case OpGetParentScope:
			return f.Parent
		case OpMov, OpUnionNarrow:
			return walk(ins.Args[0])
		case OpPhi:
			s := NoScopeID
			for _, a := range ins.Args {
				if a == v {
					continue
				}
				as := walk(a)
				if as == NoScopeID || s != NoScopeID && as != s {
					return NoScopeID
				}
				s = as
			}
			return s
		}
		return NoScopeID
	}
	return walk(v)
}

// ClosureOrigin proves which function v is a closure of, provided v holds a
// closure at all. It looks through copies, narrowing, guards and scope
// variables whose every store is a closure of the same function; a load from
// such a variable may still observe its initial value.
func ClosureOrigin(m *Module, f *Func, v ValueID) (FuncID, bool) {
	o := originFinder{m: m, seenVal: map[*Func]map[ValueID]bool{}, seenVar: map[VarRef]bool{}}
	fn := o.value(f, v)
	return fn, fn != NoFuncID
}

type originFinder struct {
	m       *Module
	seenVal map[*Func]map[ValueID]bool
	seenVar map[VarRef]bool
}

func (o *originFinder) value(f *Func, v ValueID) FuncID {
	ins := f.Value(v)
	if ins == nil {
		return NoFuncID
	}
	if o.seenVal[f] == nil {
		o.seenVal[f] = map[ValueID]bool{}
	}
	if o.seenVal[f][v] {
		return NoFuncID
	}
	o.seenVal[f][v] = true
	switch ins.Kind {
	case OpCreateClosure:
		return ins.Func
	case OpMov, OpUnionNarrow, OpThrowIfEmpty:
		return o.value(f, ins.Args[0])
	case OpLoadVar:
		return o.variable(ins.Var)
	}
	return NoFuncID
}

func (o *originFinder) variable(ref VarRef) FuncID {
	if o.seenVar[ref] {
		return NoFuncID
	}
	o.seenVar[ref] = true
	fn := NoFuncID
	stores := 0
	for _, g := range o.m.Funcs {
		for bi := range g.Blocks {
			for _, id := range g.Blocks[bi].Instrs {
				ins := &g.Values[id]
				if ins.Kind != OpStoreVar || ins.Var != ref {
					continue
				}
				sf := o.value(g, ins.Args[1])
				if sf == NoFuncID || fn != NoFuncID && sf != fn {
					return NoFuncID
				}
				fn = sf
				stores++
			}
		}
	}
	if stores == 0 {
		return NoFuncID
	}
	return fn
}

// ScopeSource tells a rewrite where the environment of a scope can be read
// at a given program point.
type ScopeSource struct {
	// Env is an environment value on whose chain the scope lies.
	Env ValueID
	// Closure, when set instead of Env, is a closure whose captured
	// environment chain reaches the scope. The caller materializes it with
	// OpGetClosureScope.
	Closure ValueID
	// Captured is the scope the closure's function captures.
	Captured ScopeID
	Hops     int
}

// FindScopeSource finds the cheapest way to reach target at position idx of
// block b. Environment values already on a chain that reaches target are
// preferred; failing that, a closure whose captured chain reaches target is
// used. This recovers scopes that are unreachable from the use site, for
// example after the closure was stored into and read back from a variable.
func FindScopeSource(m *Module, f *Func, dom *DomTree, target ScopeID, b BlockID, idx int) (ScopeSource, bool) {
	best := ScopeSource{Env: NoValueID, Closure: NoValueID, Captured: NoScopeID, Hops: -1}
	for bi := range f.Blocks {
		for _, id := range f.Blocks[bi].Instrs {
			ins := &f.Values[id]
			if ins.Type != TypeEnvironment || !dom.ValueDominates(f, id, b, idx) {
				continue
			}
			s := StaticScope(f, id)
			if s == NoScopeID {
				continue
			}
			if h, ok := m.Hops(s, target); ok && (best.Hops < 0 || h < best.Hops) {
				best = ScopeSource{Env: id, Closure: NoValueID, Captured: NoScopeID, Hops: h}
			}
		}
	}
	if best.Env != NoValueID {
		return best, true
	}
	for bi := range f.Blocks {
		for _, id := range f.Blocks[bi].Instrs {
			ins := &f.Values[id]
			if ins.Type != TypeClosure || !dom.ValueDominates(f, id, b, idx) {
				continue
			}
			fn, ok := ClosureOrigin(m, f, id)
			if !ok {
				continue
			}
			captured := m.Funcs[fn].Parent
			if h, ok := m.Hops(captured, target); ok && (best.Hops < 0 || h < best.Hops) {
				best = ScopeSource{Env: NoValueID, Closure: id, Captured: captured, Hops: h}
			}
		}
	}
	return best, best.Closure != NoValueID
}
