package ir

type Func struct {
	ID     FuncID
	Name   string
	Pos    Pos
	Params []ValueID
	This   ValueID
	Result Type

	// Scope is the environment created on entry.
	Scope ScopeID
	// Parent is the captured defining scope, NoScopeID for the top level.
	Parent ScopeID

	Blocks []Block
	Entry  BlockID
	Values []Instr
	Flags  FuncFlags

	lits map[litKey]ValueID
}

// NewBlock appends an empty, unterminated block.
func (f *Func) NewBlock() BlockID {
	id := BlockID(ID32(len(f.Blocks), "block"))
	f.Blocks = append(f.Blocks, Block{ID: id, Handler: NoBlockID})
	return id
}

func (f *Func) Block(id BlockID) *Block {
	if id < 0 || int(id) >= len(f.Blocks) {
		return nil
	}
	return &f.Blocks[id]
}

// Value returns the instruction defining id, or nil when id is out of range.
func (f *Func) Value(id ValueID) *Instr {
	if id < 0 || int(id) >= len(f.Values) {
		return nil
	}
	return &f.Values[id]
}

// NewValue appends ins to the arena without placing it in a block.
func (f *Func) NewValue(ins Instr) ValueID {
	id := ValueID(ID32(len(f.Values), "value"))
	ins.ID = id
	f.Values = append(f.Values, ins)
	return id
}

// Literal returns the interned floating value for l.
func (f *Func) Literal(l Literal) ValueID {
	if f.lits == nil {
		f.rebuildLiterals()
	}
	k := l.key()
	if id, ok := f.lits[k]; ok {
		return id
	}
	id := f.NewValue(Instr{Kind: OpLiteral, Type: l.Type(), Block: NoBlockID, Lit: l})
	f.lits[k] = id
	return id
}

func (f *Func) rebuildLiterals() {
	f.lits = make(map[litKey]ValueID)
	for i := range f.Values {
		ins := &f.Values[i]
		if ins.Kind == OpLiteral {
			if _, ok := f.lits[ins.Lit.key()]; !ok {
				f.lits[ins.Lit.key()] = ins.ID
			}
		}
	}
}

// AddParam declares the next formal parameter.
func (f *Func) AddParam(name string, typ Type) ValueID {
	id := f.NewValue(Instr{Kind: OpParam, Type: typ, Block: NoBlockID, Name: name, Index: ID32(len(f.Params), "param")})
	f.Params = append(f.Params, id)
	return id
}

// LiteralOf reports the constant a value denotes.
func (f *Func) LiteralOf(v ValueID) (Literal, bool) {
	ins := f.Value(v)
	if ins == nil || ins.Kind != OpLiteral {
		return Literal{}, false
	}
	return ins.Lit, true
}

// IsLiteral reports whether v is a floating literal.
func (f *Func) IsLiteral(v ValueID) bool {
	_, ok := f.LiteralOf(v)
	return ok
}

// TypeOf returns the static type of v.
func (f *Func) TypeOf(v ValueID) Type {
	ins := f.Value(v)
	if ins == nil {
		return TypeNone
	}
	return ins.Type
}

// UsesArguments reports whether any live instruction reads the arguments object.
func (f *Func) UsesArguments() bool {
	for bi := range f.Blocks {
		for _, v := range f.Blocks[bi].Instrs {
			if f.Values[v].Kind == OpArguments {
				return true
			}
		}
	}
	return false
}

// HasSideEffects reports whether removing an unused v could change behavior.
// Operations that may run user code or throw count as side effects.
func (f *Func) HasSideEffects(v ValueID) bool {
	ins := f.Value(v)
	if ins == nil {
		return false
	}
	switch ins.Kind {
	case OpDead, OpLiteral, OpParam, OpThis, OpPhi, OpMov, OpUnionNarrow,
		OpCreateScope, OpGetParentScope, OpResolveScope, OpGetClosureScope,
		OpLoadVar, OpCreateClosure, OpAllocArrayLiteral, OpArguments, OpClosureIs:
		return false
	case OpUnary:
		if ins.Operator == OperatorTypeOf || ins.Operator == OperatorNot {
			return false
		}
		return !f.isPlainPrimitive(ins.Args[0])
	case OpBinary:
		if ins.Operator == OperatorStrictEq || ins.Operator == OperatorStrictNe {
			return false
		}
		return !f.isPlainPrimitive(ins.Args[0]) || !f.isPlainPrimitive(ins.Args[1])
	case OpAllocObjectLiteral:
		for _, p := range ins.Props {
			if p.KeyArg >= 0 && !f.isPlainPrimitive(ins.Args[p.KeyArg]) {
				return true
			}
		}
		return false
	}
	return true
}

// isPlainPrimitive reports whether arithmetic on v can neither call user code
// nor throw: no objects, no bigints, no TDZ sentinel.
func (f *Func) isPlainPrimitive(v ValueID) bool {
	t := f.TypeOf(v)
	return t != TypeNone && !t.CanBe(TypeObject|TypeClosure|TypeBigInt|TypeEmpty|TypeEnvironment)
}
