package opt

import "gale/internal/ir"

// HoistClosures retargets each closure to the innermost scope of its
// captured chain that it, or a function nested in it, actually reads or
// writes. Closures that need none of the chain capture its outermost scope.
// A resolve_scope of the new scope is inserted right before each creation
// site so the captured environment is the one the closure now expects.
func HoistClosures(m *ir.Module) bool {
	pinned, opaque := pinnedClosures(m)
	if opaque {
		return false
	}
	h := &hoister{
		m:        m,
		children: make(map[ir.FuncID][]ir.FuncID),
		state:    make(map[ir.FuncID]visitState),
		refs:     make(map[ir.FuncID]map[ir.ScopeID]bool),
		pinned:   pinned,
	}
	created := make(map[ir.FuncID]bool)
	for _, f := range m.Funcs {
		for _, site := range closureSites(f) {
			fn := f.Values[site].Func
			h.children[f.ID] = appendUnique(h.children[f.ID], fn)
			created[fn] = true
		}
	}
	for _, f := range m.Funcs {
		if !created[f.ID] {
			h.visit(f.ID)
		}
	}
	// Functions only reachable through creation cycles.
	for _, f := range m.Funcs {
		h.visit(f.ID)
	}
	return h.changed
}

type visitState uint8

const (
	unvisited visitState = iota
	visiting
	visited
)

type hoister struct {
	m        *ir.Module
	children map[ir.FuncID][]ir.FuncID
	state    map[ir.FuncID]visitState
	stack    []ir.FuncID
	refs     map[ir.FuncID]map[ir.ScopeID]bool
	pinned   map[ir.FuncID]bool
	changed  bool
}

func (h *hoister) visit(id ir.FuncID) {
	switch h.state[id] {
	case visited:
		return
	case visiting:
		// A creation cycle: the references of its members are incomplete.
		for i := len(h.stack) - 1; i >= 0; i-- {
			h.pinned[h.stack[i]] = true
			if h.stack[i] == id {
				break
			}
		}
		return
	}
	h.state[id] = visiting
	h.stack = append(h.stack, id)
	for _, c := range h.children[id] {
		h.visit(c)
	}
	h.stack = h.stack[:len(h.stack)-1]
	h.state[id] = visited

	f := h.m.Funcs[id]
	refs := h.collectRefs(f)
	h.refs[id] = refs
	if f.Parent == ir.NoScopeID || h.pinned[id] || !h.sitesResolvable(id) {
		return
	}
	chain := h.m.Chain(f.Parent)
	target := chain[len(chain)-1]
	for _, s := range chain {
		if refs[s] {
			target = s
			break
		}
	}
	if target == f.Parent {
		return
	}
	h.retarget(f, target)
}

// collectRefs lists the scopes f and its nested functions name directly.
func (h *hoister) collectRefs(f *ir.Func) map[ir.ScopeID]bool {
	refs := make(map[ir.ScopeID]bool)
	for bi := range f.Blocks {
		for _, v := range f.Blocks[bi].Instrs {
			ins := &f.Values[v]
			switch ins.Kind {
			case ir.OpLoadVar, ir.OpStoreVar:
				refs[ins.Var.Scope] = true
			case ir.OpResolveScope, ir.OpGetClosureScope:
				refs[ins.Scope] = true
			case ir.OpCreateClosure:
				callee := h.m.Funcs[ins.Func]
				refs[callee.Parent] = true
				for s := range h.refs[ins.Func] {
					refs[s] = true
				}
			}
		}
	}
	return refs
}

// sitesResolvable reports whether every creation site of id captures a
// statically known environment, so a resolve_scope can start from it.
func (h *hoister) sitesResolvable(id ir.FuncID) bool {
	for _, g := range h.m.Funcs {
		for _, site := range closureSites(g) {
			if g.Values[site].Func == id && ir.StaticScope(g, g.Values[site].Args[0]) == ir.NoScopeID {
				return false
			}
		}
	}
	return true
}

func (h *hoister) retarget(f *ir.Func, target ir.ScopeID) {
	for _, g := range h.m.Funcs {
		for _, site := range closureSites(g) {
			if g.Values[site].Func != f.ID {
				continue
			}
			env := g.Values[site].Args[0]
			pos := g.Values[site].Pos
			r := g.InsertBefore(site, ir.Instr{
				Kind:  ir.OpResolveScope,
				Type:  ir.TypeEnvironment,
				Scope: target,
				Args:  []ir.ValueID{env},
				Pos:   pos,
			})
			g.Values[site].Args[0] = r
		}
	}
	f.Parent = target
	for bi := range f.Blocks {
		for _, v := range f.Blocks[bi].Instrs {
			if f.Values[v].Kind == ir.OpGetParentScope {
				f.Values[v].Scope = target
			}
		}
	}
	h.changed = true
}

func closureSites(f *ir.Func) []ir.ValueID {
	var out []ir.ValueID
	for bi := range f.Blocks {
		for _, v := range f.Blocks[bi].Instrs {
			if f.Values[v].Kind == ir.OpCreateClosure {
				out = append(out, v)
			}
		}
	}
	return out
}

// pinnedClosures lists functions whose captured environment is read from
// outside through get_closure_scope. Their chain must stay as it is. opaque
// is set when some closure read that way has no provable origin.
func pinnedClosures(m *ir.Module) (pinned map[ir.FuncID]bool, opaque bool) {
	out := make(map[ir.FuncID]bool)
	for _, f := range m.Funcs {
		for bi := range f.Blocks {
			for _, v := range f.Blocks[bi].Instrs {
				ins := &f.Values[v]
				if ins.Kind != ir.OpGetClosureScope {
					continue
				}
				fn, ok := ir.ClosureOrigin(m, f, ins.Args[0])
				if !ok {
					return nil, true
				}
				out[fn] = true
			}
		}
	}
	return out, false
}

func appendUnique(list []ir.FuncID, id ir.FuncID) []ir.FuncID {
	for _, x := range list {
		if x == id {
			return list
		}
	}
	return append(list, id)
}
