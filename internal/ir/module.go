package ir

type Module struct {
	Funcs  []*Func
	Scopes []Scope
	// Top is the function evaluated when the module is loaded.
	Top FuncID
}

func NewModule() *Module {
	return &Module{Top: NoFuncID}
}

// NewFunc creates a function whose closures capture parent. It also creates
// the function's entry scope, its receiver and an empty entry block. The
// first function created becomes Top.
func (m *Module) NewFunc(name string, parent ScopeID) *Func {
	id := FuncID(ID32(len(m.Funcs), "function"))
	f := &Func{
		ID:     id,
		Name:   name,
		Parent: parent,
		Result: TypeAny,
		This:   NoValueID,
		Entry:  NoBlockID,
	}
	m.Funcs = append(m.Funcs, f)
	f.Scope = m.NewScope(name, parent, id)
	f.This = f.NewValue(Instr{Kind: OpThis, Type: TypeAny, Block: NoBlockID})
	f.Entry = f.NewBlock()
	if m.Top == NoFuncID {
		m.Top = id
	}
	return f
}

func (m *Module) Func(id FuncID) *Func {
	if id < 0 || int(id) >= len(m.Funcs) {
		return nil
	}
	return m.Funcs[id]
}

// Rebuild restores derived state after the module was decoded.
func (m *Module) Rebuild() {
	for _, f := range m.Funcs {
		if f != nil {
			f.rebuildLiterals()
		}
	}
}
