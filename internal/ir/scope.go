package ir

// Variable is one slot of a scope.
type Variable struct {
	Name string
	Type Type
	// Captured is set when a nested function reads or writes the slot.
	Captured bool
	// Lexical bindings start out empty and are guarded against TDZ reads.
	Lexical bool
}

// Scope is an environment record. Parent is fixed at creation.
type Scope struct {
	ID     ScopeID
	Name   string
	Parent ScopeID
	Owner  FuncID
	Vars   []Variable
	// Elided scopes were merged into their parent and are never allocated.
	Elided bool
}

// NewScope creates a scope under parent. The parent must already exist, so
// the scope graph is a tree by construction.
func (m *Module) NewScope(name string, parent ScopeID, owner FuncID) ScopeID {
	if parent != NoScopeID && (parent < 0 || int(parent) >= len(m.Scopes)) {
		Panicf("scope %q: parent s%d does not exist", name, parent)
	}
	id := ScopeID(ID32(len(m.Scopes), "scope"))
	m.Scopes = append(m.Scopes, Scope{ID: id, Name: name, Parent: parent, Owner: owner})
	return id
}

func (m *Module) Scope(id ScopeID) *Scope {
	if id < 0 || int(id) >= len(m.Scopes) {
		return nil
	}
	return &m.Scopes[id]
}

// AddVar appends a slot to scope.
func (m *Module) AddVar(scope ScopeID, name string, typ Type, lexical bool) VarRef {
	s := m.Scope(scope)
	if s == nil {
		Panicf("add var %q: no scope s%d", name, scope)
	}
	s.Vars = append(s.Vars, Variable{Name: name, Type: typ, Lexical: lexical})
	return VarRef{Scope: scope, Index: ID32(len(s.Vars)-1, "variable")}
}

func (m *Module) Var(ref VarRef) *Variable {
	s := m.Scope(ref.Scope)
	if s == nil || ref.Index < 0 || int(ref.Index) >= len(s.Vars) {
		return nil
	}
	return &s.Vars[ref.Index]
}

// IsEntry reports whether scope is the entry scope of its owner.
func (m *Module) IsEntry(scope ScopeID) bool {
	s := m.Scope(scope)
	if s == nil {
		return false
	}
	f := m.Func(s.Owner)
	return f != nil && f.Scope == scope
}

// RuntimeParent returns the scope whose environment is the parent link of
// scope's environment at run time. Entry scopes link to their function's
// captured scope, which hoisting may have moved outwards; elided scopes are
// skipped.
func (m *Module) RuntimeParent(scope ScopeID) ScopeID {
	s := m.Scope(scope)
	if s == nil {
		return NoScopeID
	}
	p := s.Parent
	if m.IsEntry(scope) {
		p = m.Funcs[s.Owner].Parent
	}
	for p != NoScopeID && m.Scopes[p].Elided {
		p = m.RuntimeParent(p)
	}
	return p
}

// Hops counts the parent links from one scope to an ancestor on its runtime
// chain. ok is false when to is not on the chain.
func (m *Module) Hops(from, to ScopeID) (int, bool) {
	n := 0
	for s := from; s != NoScopeID; s = m.RuntimeParent(s) {
		if s == to {
			return n, true
		}
		n++
		if n > len(m.Scopes) {
			Panicf("scope chain from s%d does not terminate", from)
		}
	}
	return 0, false
}

// Chain lists the runtime chain starting at scope, innermost first.
func (m *Module) Chain(scope ScopeID) []ScopeID {
	var out []ScopeID
	for s := scope; s != NoScopeID && len(out) <= len(m.Scopes); s = m.RuntimeParent(s) {
		out = append(out, s)
	}
	return out
}

// Lookup resolves name starting at scope: own slots first, then the runtime
// chain. hops counts the parent links crossed.
func (m *Module) Lookup(scope ScopeID, name string) (ref VarRef, hops int, ok bool) {
	for i, s := range m.Chain(scope) {
		vars := m.Scopes[s].Vars
		for j := len(vars) - 1; j >= 0; j-- {
			if vars[j].Name == name {
				return VarRef{Scope: s, Index: ID32(j, "variable")}, i, true
			}
		}
	}
	return VarRef{}, 0, false
}
