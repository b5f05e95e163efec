package opt

import "gale/internal/ir"

// ElideScopes merges block scopes into the enclosing scope of the same
// function when no closure can observe them: none of their variables is
// captured and the environment value only feeds its own loads and stores.
// The creation point is replaced by stores of each variable's initial value,
// which keeps a fresh binding per execution.
func ElideScopes(m *ir.Module) bool {
	creations := scopeCreations(m)
	named := namedElsewhere(m)
	changed := false
	for _, f := range m.Funcs {
		for bi := range f.Blocks {
			instrs := append([]ir.ValueID(nil), f.Blocks[bi].Instrs...)
			for _, c := range instrs {
				ins := &f.Values[c]
				if ins.Kind != ir.OpCreateScope {
					continue
				}
				if elidable(m, f, c, creations, named) {
					elide(m, f, c)
					changed = true
				}
			}
		}
	}
	return changed
}

func elidable(m *ir.Module, f *ir.Func, c ir.ValueID, creations map[ir.ScopeID]int, named map[ir.ScopeID]bool) bool {
	ins := &f.Values[c]
	s := m.Scope(ins.Scope)
	if s == nil || s.Elided || s.Owner != f.ID || m.IsEntry(s.ID) || creations[s.ID] != 1 || named[s.ID] {
		return false
	}
	if len(ins.Args) == 0 {
		return false
	}
	p := m.RuntimeParent(s.ID)
	if p == ir.NoScopeID || m.Scopes[p].Owner != f.ID || ir.StaticScope(f, ins.Args[0]) != p {
		return false
	}
	for _, v := range s.Vars {
		if v.Captured {
			return false
		}
	}
	for bi := range f.Blocks {
		for _, u := range f.Blocks[bi].Instrs {
			ui := &f.Values[u]
			for k, a := range ui.Args {
				if a != c {
					continue
				}
				ok := k == 0 && (ui.Kind == ir.OpLoadVar || ui.Kind == ir.OpStoreVar) && ui.Var.Scope == s.ID
				if !ok {
					return false
				}
			}
		}
		for _, a := range f.Blocks[bi].Term.Operands() {
			if a == c {
				return false
			}
		}
	}
	return true
}

func elide(m *ir.Module, f *ir.Func, c ir.ValueID) {
	scope := f.Values[c].Scope
	parentEnv := f.Values[c].Args[0]
	pos := f.Values[c].Pos
	p := m.RuntimeParent(scope)

	vars := append([]ir.Variable(nil), m.Scopes[scope].Vars...)
	moved := make([]ir.VarRef, len(vars))
	for i, v := range vars {
		moved[i] = m.AddVar(p, v.Name, v.Type, v.Lexical)
	}
	for i, v := range vars {
		init := ir.Undefined()
		if v.Lexical {
			init = ir.Empty()
		}
		f.InsertBefore(c, ir.Instr{
			Kind: ir.OpStoreVar,
			Type: ir.TypeNone,
			Var:  moved[i],
			Args: []ir.ValueID{parentEnv, f.Literal(init)},
			Pos:  pos,
		})
	}
	for bi := range f.Blocks {
		for _, u := range f.Blocks[bi].Instrs {
			ui := &f.Values[u]
			if (ui.Kind == ir.OpLoadVar || ui.Kind == ir.OpStoreVar) && len(ui.Args) > 0 && ui.Args[0] == c {
				ui.Args[0] = parentEnv
				ui.Var = moved[ui.Var.Index]
			}
		}
	}
	f.Remove(c)
	m.Scopes[scope].Elided = true
}

func scopeCreations(m *ir.Module) map[ir.ScopeID]int {
	out := make(map[ir.ScopeID]int)
	for _, f := range m.Funcs {
		for bi := range f.Blocks {
			for _, v := range f.Blocks[bi].Instrs {
				if f.Values[v].Kind == ir.OpCreateScope {
					out[f.Values[v].Scope]++
				}
			}
		}
	}
	return out
}

// namedElsewhere lists scopes that some instruction outside the owning
// function names, or that a function captures.
func namedElsewhere(m *ir.Module) map[ir.ScopeID]bool {
	out := make(map[ir.ScopeID]bool)
	for _, f := range m.Funcs {
		if f.Parent != ir.NoScopeID {
			out[f.Parent] = true
		}
		for bi := range f.Blocks {
			for _, v := range f.Blocks[bi].Instrs {
				ins := &f.Values[v]
				var s ir.ScopeID
				switch ins.Kind {
				case ir.OpLoadVar, ir.OpStoreVar:
					s = ins.Var.Scope
				case ir.OpResolveScope, ir.OpGetClosureScope:
					s = ins.Scope
				default:
					continue
				}
				if sc := m.Scope(s); sc != nil && (sc.Owner != f.ID || ins.Kind != ir.OpLoadVar && ins.Kind != ir.OpStoreVar) {
					out[s] = true
				}
			}
		}
	}
	return out
}
