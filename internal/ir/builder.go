package ir

// Builder appends instructions to a function. It is the construction
// contract for producers of IR: every Create method appends to the current
// block and returns the new value.
type Builder struct {
	M   *Module
	F   *Func
	cur BlockID
	pos Pos
}

func NewBuilder(m *Module, f *Func) *Builder {
	return &Builder{M: m, F: f, cur: f.Entry}
}

func (b *Builder) SetBlock(id BlockID) { b.cur = id }
func (b *Builder) Current() BlockID    { return b.cur }
func (b *Builder) SetPos(p Pos)        { b.pos = p }

// NewBlock creates a block without switching to it.
func (b *Builder) NewBlock() BlockID { return b.F.NewBlock() }

// SetHandler routes exceptions raised in block to handler.
func (b *Builder) SetHandler(block, handler BlockID) {
	b.F.Blocks[block].Handler = handler
}

func (b *Builder) block() *Block {
	blk := b.F.Block(b.cur)
	if blk == nil {
		Panicf("builder: no current block in %s", b.F.Name)
	}
	if blk.Terminated() {
		Panicf("builder: bb%d of %s is already terminated", b.cur, b.F.Name)
	}
	return blk
}

func (b *Builder) emit(ins Instr) ValueID {
	blk := b.block()
	ins.Block = b.cur
	if ins.Pos == (Pos{}) {
		ins.Pos = b.pos
	}
	id := b.F.NewValue(ins)
	blk.Instrs = append(blk.Instrs, id)
	return id
}

func (b *Builder) Lit(l Literal) ValueID             { return b.F.Literal(l) }
func (b *Builder) Num(n float64) ValueID             { return b.F.Literal(Number(n)) }
func (b *Builder) Str(s string) ValueID              { return b.F.Literal(String(s)) }
func (b *Builder) Undef() ValueID                    { return b.F.Literal(Undefined()) }
func (b *Builder) Param(name string, t Type) ValueID { return b.F.AddParam(name, t) }

// CreatePhi inserts a phi after the phis already at the top of the block.
func (b *Builder) CreatePhi(typ Type) ValueID {
	blk := b.block()
	id := b.F.NewValue(Instr{Kind: OpPhi, Type: typ, Block: b.cur, Pos: b.pos})
	at := 0
	for at < len(blk.Instrs) && b.F.Values[blk.Instrs[at]].Kind == OpPhi {
		at++
	}
	blk.Instrs = append(blk.Instrs, NoValueID)
	copy(blk.Instrs[at+1:], blk.Instrs[at:])
	blk.Instrs[at] = id
	return id
}

// AddPhiIncoming records that v flows into phi from pred.
func (b *Builder) AddPhiIncoming(phi ValueID, pred BlockID, v ValueID) {
	ins := &b.F.Values[phi]
	ins.Args = append(ins.Args, v)
	ins.PhiPreds = append(ins.PhiPreds, pred)
	ins.Type = ins.Type.Union(b.F.TypeOf(v))
}

func (b *Builder) CreateMov(v ValueID) ValueID {
	return b.emit(Instr{Kind: OpMov, Type: b.F.TypeOf(v), Args: []ValueID{v}})
}

func (b *Builder) CreateUnary(op Operator, v ValueID) ValueID {
	return b.emit(Instr{Kind: OpUnary, Operator: op, Type: UnaryResultType(op, b.F.TypeOf(v)), Args: []ValueID{v}})
}

func (b *Builder) CreateBinary(op Operator, x, y ValueID) ValueID {
	t := BinaryResultType(op, b.F.TypeOf(x), b.F.TypeOf(y))
	return b.emit(Instr{Kind: OpBinary, Operator: op, Type: t, Args: []ValueID{x, y}})
}

// CreateScope allocates scope's environment linked to parentEnv. parentEnv
// is NoValueID for a root scope.
func (b *Builder) CreateScope(scope ScopeID, parentEnv ValueID) ValueID {
	var args []ValueID
	if parentEnv != NoValueID {
		args = []ValueID{parentEnv}
	}
	return b.emit(Instr{Kind: OpCreateScope, Type: TypeEnvironment, Scope: scope, Args: args})
}

func (b *Builder) CreateGetParentScope() ValueID {
	return b.emit(Instr{Kind: OpGetParentScope, Type: TypeEnvironment, Scope: b.F.Parent})
}

func (b *Builder) CreateResolveScope(start ValueID, target ScopeID) ValueID {
	return b.emit(Instr{Kind: OpResolveScope, Type: TypeEnvironment, Scope: target, Args: []ValueID{start}})
}

// CreateGetClosureScope reads the environment captured by closure, whose
// function captures scope.
func (b *Builder) CreateGetClosureScope(closure ValueID, scope ScopeID) ValueID {
	return b.emit(Instr{Kind: OpGetClosureScope, Type: TypeEnvironment, Scope: scope, Args: []ValueID{closure}})
}

func (b *Builder) CreateLoadVar(env ValueID, ref VarRef) ValueID {
	return b.emit(Instr{Kind: OpLoadVar, Type: b.M.LoadType(ref), Var: ref, Args: []ValueID{env}})
}

func (b *Builder) CreateStoreVar(env ValueID, ref VarRef, v ValueID) ValueID {
	return b.emit(Instr{Kind: OpStoreVar, Type: TypeNone, Var: ref, Args: []ValueID{env, v}})
}

func (b *Builder) CreateThrowIfEmpty(v ValueID) ValueID {
	return b.emit(Instr{Kind: OpThrowIfEmpty, Type: b.F.TypeOf(v).Without(TypeEmpty), Args: []ValueID{v}})
}

func (b *Builder) CreateUnionNarrow(v ValueID, t Type) ValueID {
	return b.emit(Instr{Kind: OpUnionNarrow, Type: t, Args: []ValueID{v}})
}

func (b *Builder) CreateClosure(env ValueID, fn FuncID) ValueID {
	return b.emit(Instr{Kind: OpCreateClosure, Type: TypeClosure, Func: fn, Args: []ValueID{env}})
}

// CreateCall calls callee with receiver this.
func (b *Builder) CreateCall(callee, this ValueID, args []ValueID) ValueID {
	ops := append([]ValueID{callee, this}, args...)
	return b.emit(Instr{Kind: OpCall, Type: TypeAny, Args: ops, Call: CallInfo{CacheSlot: -1}})
}

// CreateConstruct emits the new protocol: allocate this, call with it, and
// pick the constructed object.
func (b *Builder) CreateConstruct(callee ValueID, args []ValueID) ValueID {
	this := b.emit(Instr{Kind: OpCreateThis, Type: TypeObject, Args: []ValueID{callee}})
	ops := append([]ValueID{callee, this}, args...)
	res := b.emit(Instr{Kind: OpCall, Type: TypeAny, Args: ops, Call: CallInfo{Flags: CallConstruct, CacheSlot: -1}})
	return b.emit(Instr{Kind: OpGetConstructedObject, Type: TypeObject, Args: []ValueID{this, res}})
}

func (b *Builder) CreateCheckDerivedReturn(v ValueID) ValueID {
	return b.emit(Instr{Kind: OpCheckDerivedReturn, Type: TypeObject | TypeUndefined, Args: []ValueID{v}})
}

func (b *Builder) CreateLoadProp(obj, key ValueID) ValueID {
	return b.emit(Instr{Kind: OpLoadProp, Type: TypeAny, Args: []ValueID{obj, key}})
}

func (b *Builder) CreateStoreProp(obj, key, v ValueID) ValueID {
	return b.emit(Instr{Kind: OpStoreProp, Type: TypeNone, Args: []ValueID{obj, key, v}})
}

func (b *Builder) CreateLoadGlobal(name string) ValueID {
	return b.emit(Instr{Kind: OpLoadGlobal, Type: TypeAny, Name: name})
}

func (b *Builder) CreateStoreGlobal(name string, v ValueID) ValueID {
	return b.emit(Instr{Kind: OpStoreGlobal, Type: TypeNone, Name: name, Args: []ValueID{v}})
}

// ObjectEntry describes one entry of an object literal for the builder.
type ObjectEntry struct {
	Kind PropKind
	// Key is used when Computed is NoValueID.
	Key      Literal
	Computed ValueID
	Value    ValueID
}

func KV(key string, v ValueID) ObjectEntry {
	return ObjectEntry{Key: String(key), Computed: NoValueID, Value: v}
}

func (b *Builder) CreateObjectLiteral(entries []ObjectEntry) ValueID {
	var args []ValueID
	props := make([]Prop, 0, len(entries))
	for _, e := range entries {
		p := Prop{Kind: e.Kind, Key: e.Key, KeyArg: -1}
		if e.Computed != NoValueID {
			p.KeyArg = ID32(len(args), "operand")
			args = append(args, e.Computed)
		}
		p.ValueArg = ID32(len(args), "operand")
		args = append(args, e.Value)
		props = append(props, p)
	}
	return b.emit(Instr{Kind: OpAllocObjectLiteral, Type: TypeObject, Args: args, Props: props})
}

func (b *Builder) CreateArrayLiteral(elems []ValueID) ValueID {
	return b.emit(Instr{Kind: OpAllocArrayLiteral, Type: TypeObject, Args: append([]ValueID(nil), elems...)})
}

func (b *Builder) CreateArguments() ValueID {
	return b.emit(Instr{Kind: OpArguments, Type: TypeObject})
}

func (b *Builder) CreateCallBuiltin(name string, args []ValueID) ValueID {
	return b.emit(Instr{Kind: OpCallBuiltin, Type: TypeAny, Name: name, Args: append([]ValueID(nil), args...)})
}

// CreateCatch receives the exception; it must open a handler block.
func (b *Builder) CreateCatch() ValueID {
	return b.emit(Instr{Kind: OpCatch, Type: TypeAny})
}

func (b *Builder) CreateClosureIs(v ValueID, fn FuncID) ValueID {
	return b.emit(Instr{Kind: OpClosureIs, Type: TypeBoolean, Func: fn, Args: []ValueID{v}})
}

func (b *Builder) terminate(t Terminator) {
	blk := b.block()
	t.Pos = b.pos
	blk.Term = t
}

func (b *Builder) Branch(target BlockID) {
	b.terminate(Terminator{Kind: TermBranch, Branch: BranchTerm{Target: target}})
}

func (b *Builder) CondBranch(cond ValueID, then, els BlockID) {
	b.terminate(Terminator{Kind: TermCondBranch, CondBranch: CondBranchTerm{Cond: cond, Then: then, Else: els}})
}

func (b *Builder) Return(v ValueID) {
	b.terminate(Terminator{Kind: TermReturn, Return: ReturnTerm{Value: v}})
}

func (b *Builder) Throw(v ValueID) {
	b.terminate(Terminator{Kind: TermThrow, Throw: ThrowTerm{Value: v}})
}

func (b *Builder) Unreachable() {
	b.terminate(Terminator{Kind: TermUnreachable})
}

func (b *Builder) Switch(v ValueID, cases []SwitchCase, def BlockID) {
	b.terminate(Terminator{Kind: TermSwitch, Switch: SwitchTerm{Value: v, Cases: cases, Default: def}})
}

// Try enters a protected region at body; blocks of the region must have
// their Handler set to catch.
func (b *Builder) Try(body, catch BlockID) {
	b.terminate(Terminator{Kind: TermTry, Try: TryTerm{Body: body, Catch: catch}})
}

// LoadType is the static type of a load from ref.
func (m *Module) LoadType(ref VarRef) Type {
	v := m.Var(ref)
	if v == nil {
		return TypeAny
	}
	t := v.Type
	if t == TypeNone {
		t = TypeAny
	}
	if v.Lexical {
		t |= TypeEmpty
	}
	return t
}

// UnaryResultType computes the static result type of a unary operator.
func UnaryResultType(op Operator, t Type) Type {
	switch op {
	case OperatorNot:
		return TypeBoolean
	case OperatorTypeOf:
		return TypeString
	case OperatorPlus:
		return TypeNumber
	case OperatorNeg, OperatorBitNot:
		if t.CanBe(TypeBigInt) || t.CanBe(TypeObject|TypeClosure) {
			return TypeNumber | TypeBigInt
		}
		return TypeNumber
	}
	return TypeAny
}

// BinaryResultType computes the static result type of a binary operator.
func BinaryResultType(op Operator, x, y Type) Type {
	switch op {
	case OperatorEq, OperatorNe, OperatorStrictEq, OperatorStrictNe,
		OperatorLt, OperatorLe, OperatorGt, OperatorGe:
		return TypeBoolean
	case OperatorAdd:
		if x.IsNumber() && y.IsNumber() {
			return TypeNumber
		}
		if x == TypeString || y == TypeString {
			return TypeString
		}
		return TypeNumber | TypeString | TypeBigInt
	case OperatorUshr:
		return TypeNumber
	}
	if x.IsNonPtr() && y.IsNonPtr() || x.IsNumber() && y.IsNumber() {
		return TypeNumber
	}
	return TypeNumber | TypeBigInt
}
