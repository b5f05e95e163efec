package opt

import "gale/internal/ir"

// TDZDedup removes ThrowIfEmpty guards that a dominating guard or store
// already proves redundant. The redundant guard is replaced by a
// union_narrow marker carrying the narrowed type and left behind as a dead
// placeholder. A guard survives unless a dominating guard on the same
// binding or a dominating store of a non-empty value precedes it.
func TDZDedup(m *ir.Module, f *ir.Func) bool {
	if len(f.Blocks) == 0 {
		return false
	}
	w := &tdzWalker{
		f:      f,
		dom:    ir.ComputeDomTree(f),
		facts:  make(map[tdzKey]bool),
		values: make(map[ir.ValueID]bool),
		unsafe: unsafeVars(m),
	}
	w.visit(f.Entry)
	return w.changed
}

// envKey names an environment independently of the SSA value spelling it.
type envKey struct {
	base  ir.ValueID
	scope ir.ScopeID
}

type tdzKey struct {
	env envKey
	ref ir.VarRef
}

const parentEnvBase ir.ValueID = -2

type tdzWalker struct {
	f       *ir.Func
	dom     *ir.DomTree
	facts   map[tdzKey]bool
	values  map[ir.ValueID]bool
	unsafe  map[ir.VarRef]bool
	changed bool
}

func (w *tdzWalker) canonEnv(v ir.ValueID) envKey {
	f := w.f
	for {
		ins := f.Value(v)
		if ins == nil {
			return envKey{base: ir.NoValueID, scope: ir.NoScopeID}
		}
		switch ins.Kind {
		case ir.OpMov, ir.OpUnionNarrow:
			v = ins.Args[0]
			continue
		case ir.OpGetParentScope:
			return envKey{base: parentEnvBase, scope: f.Parent}
		case ir.OpResolveScope:
			inner := w.canonEnv(ins.Args[0])
			return envKey{base: inner.base, scope: ins.Scope}
		case ir.OpCreateScope, ir.OpGetClosureScope:
			return envKey{base: v, scope: ins.Scope}
		}
		return envKey{base: v, scope: ir.NoScopeID}
	}
}

func (w *tdzWalker) visit(b ir.BlockID) {
	var added []tdzKey
	var addedValues []ir.ValueID
	f := w.f
	// Replacing a guard inserts into the block.
	instrs := append([]ir.ValueID(nil), f.Blocks[b].Instrs...)
	for _, v := range instrs {
		ins := &f.Values[v]
		switch ins.Kind {
		case ir.OpStoreVar:
			if w.unsafe[ins.Var] {
				continue
			}
			k := tdzKey{env: w.canonEnv(ins.Args[0]), ref: ins.Var}
			if f.TypeOf(ins.Args[1]).CanBe(ir.TypeEmpty) {
				delete(w.facts, k)
				continue
			}
			if !w.facts[k] {
				w.facts[k] = true
				added = append(added, k)
			}
		case ir.OpThrowIfEmpty:
			arg := ins.Args[0]
			if w.redundant(arg) {
				w.replaceGuard(v)
				continue
			}
			if !w.values[arg] {
				w.values[arg] = true
				addedValues = append(addedValues, arg)
			}
			if k, ok := w.loadKey(arg); ok && !w.facts[k] {
				w.facts[k] = true
				added = append(added, k)
			}
		}
	}
	for _, c := range w.dom.Children[b] {
		if f.IsHandler(c) {
			// The exception may have left b before any fact was established.
			facts, values := w.facts, w.values
			w.facts, w.values = make(map[tdzKey]bool), make(map[ir.ValueID]bool)
			w.visit(c)
			w.facts, w.values = facts, values
			continue
		}
		w.visit(c)
	}
	for _, k := range added {
		delete(w.facts, k)
	}
	for _, v := range addedValues {
		delete(w.values, v)
	}
}

// loadKey returns the fact key of a guarded load.
func (w *tdzWalker) loadKey(v ir.ValueID) (tdzKey, bool) {
	ins := w.f.Value(v)
	for ins != nil && (ins.Kind == ir.OpMov || ins.Kind == ir.OpUnionNarrow) {
		ins = w.f.Value(ins.Args[0])
	}
	if ins == nil || ins.Kind != ir.OpLoadVar || w.unsafe[ins.Var] {
		return tdzKey{}, false
	}
	return tdzKey{env: w.canonEnv(ins.Args[0]), ref: ins.Var}, true
}

func (w *tdzWalker) redundant(arg ir.ValueID) bool {
	if w.values[arg] || !w.f.TypeOf(arg).CanBe(ir.TypeEmpty) {
		return true
	}
	k, ok := w.loadKey(arg)
	return ok && w.facts[k]
}

func (w *tdzWalker) replaceGuard(g ir.ValueID) {
	f := w.f
	ins := f.Values[g]
	narrow := f.InsertBefore(g, ir.Instr{
		Kind: ir.OpUnionNarrow,
		Type: f.TypeOf(ins.Args[0]).Without(ir.TypeEmpty),
		Args: []ir.ValueID{ins.Args[0]},
		Pos:  ins.Pos,
	})
	f.ReplaceAllUses(g, narrow)
	f.Kill(g)
	w.changed = true
}

// unsafeVars lists variables that may become empty again after a guard
// proved them initialized. The only store of the sentinel that is tolerated
// initializes a fresh environment: it sits in the block that creates the
// environment, before any call made from that block.
func unsafeVars(m *ir.Module) map[ir.VarRef]bool {
	out := make(map[ir.VarRef]bool)
	for _, g := range m.Funcs {
		for bi := range g.Blocks {
			called := false
			for _, v := range g.Blocks[bi].Instrs {
				ins := &g.Values[v]
				if ins.Kind == ir.OpCall || ins.Kind == ir.OpCallBuiltin {
					called = true
				}
				if ins.Kind != ir.OpStoreVar || !g.TypeOf(ins.Args[1]).CanBe(ir.TypeEmpty) {
					continue
				}
				env := g.Value(ins.Args[0])
				if called || env.Kind != ir.OpCreateScope || env.Block != ir.BlockID(bi) {
					out[ins.Var] = true
				}
			}
		}
	}
	return out
}
