package ir

// Op enumerates instruction kinds. The set is closed: passes switch over it.
type Op uint8

const (
	// OpDead is the placeholder left behind by a pass that killed an
	// instruction without removing it from its block.
	OpDead Op = iota
	// OpLiteral is a floating compile-time constant.
	OpLiteral
	// OpParam is a floating formal parameter.
	OpParam
	// OpThis is the floating receiver of the function.
	OpThis
	OpPhi
	OpMov
	OpUnary
	OpBinary
	// OpCreateScope allocates the environment record of a scope.
	OpCreateScope
	// OpGetParentScope yields the environment captured by the running closure.
	OpGetParentScope
	// OpResolveScope walks the parent chain from Args[0] to Scope.
	OpResolveScope
	// OpGetClosureScope reads the environment captured by the closure in Args[0].
	OpGetClosureScope
	OpLoadVar
	OpStoreVar
	// OpThrowIfEmpty raises a ReferenceError when Args[0] is the TDZ sentinel.
	OpThrowIfEmpty
	// OpUnionNarrow narrows the type of Args[0] without a runtime check.
	OpUnionNarrow
	OpCreateClosure
	OpCall
	OpCreateThis
	OpGetConstructedObject
	// OpCheckDerivedReturn raises a TypeError unless Args[0] is an object or undefined.
	OpCheckDerivedReturn
	OpLoadProp
	OpStoreProp
	OpLoadGlobal
	OpStoreGlobal
	OpAllocObjectLiteral
	OpAllocArrayLiteral
	// OpArguments is the implicit arguments object of the function.
	OpArguments
	OpCallBuiltin
	// OpCatch receives the in-flight exception at the start of a handler.
	OpCatch
	// OpClosureIs yields true when Args[0] is a closure of Func. It guards
	// speculatively inlined bodies.
	OpClosureIs
)

var opNames = [...]string{
	OpDead:                 "dead",
	OpLiteral:              "literal",
	OpParam:                "param",
	OpThis:                 "this",
	OpPhi:                  "phi",
	OpMov:                  "mov",
	OpUnary:                "unary",
	OpBinary:               "binary",
	OpCreateScope:          "create_scope",
	OpGetParentScope:       "get_parent_scope",
	OpResolveScope:         "resolve_scope",
	OpGetClosureScope:      "get_closure_scope",
	OpLoadVar:              "load_var",
	OpStoreVar:             "store_var",
	OpThrowIfEmpty:         "throw_if_empty",
	OpUnionNarrow:          "union_narrow",
	OpCreateClosure:        "create_closure",
	OpCall:                 "call",
	OpCreateThis:           "create_this",
	OpGetConstructedObject: "get_constructed_object",
	OpCheckDerivedReturn:   "check_derived_return",
	OpLoadProp:             "load_prop",
	OpStoreProp:            "store_prop",
	OpLoadGlobal:           "load_global",
	OpStoreGlobal:          "store_global",
	OpAllocObjectLiteral:   "alloc_object_literal",
	OpAllocArrayLiteral:    "alloc_array_literal",
	OpArguments:            "arguments",
	OpCallBuiltin:          "call_builtin",
	OpCatch:                "catch",
	OpClosureIs:            "closure_is",
}

func (op Op) String() string {
	if int(op) < len(opNames) && opNames[op] != "" {
		return opNames[op]
	}
	return "op?"
}

// Floating reports whether values of this kind live outside every block.
func (op Op) Floating() bool {
	return op == OpLiteral || op == OpParam || op == OpThis
}

// Operator selects the arithmetic of OpUnary and OpBinary.
type Operator uint8

const (
	OperatorNone Operator = iota
	// unary
	OperatorNeg
	OperatorPlus
	OperatorNot
	OperatorBitNot
	OperatorTypeOf
	// binary
	OperatorAdd
	OperatorSub
	OperatorMul
	OperatorDiv
	OperatorMod
	OperatorEq
	OperatorNe
	OperatorStrictEq
	OperatorStrictNe
	OperatorLt
	OperatorLe
	OperatorGt
	OperatorGe
	OperatorBitAnd
	OperatorBitOr
	OperatorBitXor
	OperatorShl
	OperatorShr
	OperatorUshr
)

var operatorNames = [...]string{
	OperatorNone:     "?",
	OperatorNeg:      "-",
	OperatorPlus:     "+",
	OperatorNot:      "!",
	OperatorBitNot:   "~",
	OperatorTypeOf:   "typeof",
	OperatorAdd:      "+",
	OperatorSub:      "-",
	OperatorMul:      "*",
	OperatorDiv:      "/",
	OperatorMod:      "%",
	OperatorEq:       "==",
	OperatorNe:       "!=",
	OperatorStrictEq: "===",
	OperatorStrictNe: "!==",
	OperatorLt:       "<",
	OperatorLe:       "<=",
	OperatorGt:       ">",
	OperatorGe:       ">=",
	OperatorBitAnd:   "&",
	OperatorBitOr:    "|",
	OperatorBitXor:   "^",
	OperatorShl:      "<<",
	OperatorShr:      ">>",
	OperatorUshr:     ">>>",
}

func (o Operator) String() string {
	if int(o) < len(operatorNames) {
		return operatorNames[o]
	}
	return "?"
}

// VarRef names a slot in a scope.
type VarRef struct {
	Scope ScopeID
	Index int32
}

// PropKind distinguishes object literal entries.
type PropKind uint8

const (
	PropValue PropKind = iota
	PropGetter
	PropSetter
)

// Prop is one entry of OpAllocObjectLiteral. Key is used when KeyArg is -1,
// otherwise the key is the computed operand Args[KeyArg].
type Prop struct {
	Kind     PropKind
	Key      Literal
	KeyArg   int32
	ValueArg int32
}

// CallFlags annotate OpCall.
type CallFlags uint8

const (
	// CallConstruct marks a call made through new.
	CallConstruct CallFlags = 1 << iota
	// CallBoundParam marks a call whose target is proven to be Call.Bound.
	CallBoundParam
	// CallInlineGuard marks the generic fallback call of a speculative inline.
	CallInlineGuard
)

// BoundParam identifies a parameter of a function.
type BoundParam struct {
	Func  FuncID
	Param int32
}

// CallInfo is the payload of OpCall.
type CallInfo struct {
	Flags     CallFlags
	Bound     BoundParam
	CacheSlot int32
}

// Instr is an SSA instruction. Each instruction defines at most one value,
// named by its ID. Operands live in Args; the payload fields that matter
// depend on Kind.
//
// Operand layout by kind:
//
//	phi                     Args[i] flows in from PhiPreds[i]
//	mov, union_narrow       Args[0]
//	create_scope            Args[0] parent environment (absent for a root)
//	resolve_scope           Args[0] start environment
//	get_closure_scope       Args[0] closure
//	load_var                Args[0] environment
//	store_var               Args[0] environment, Args[1] value
//	create_closure          Args[0] environment
//	call                    Args[0] callee, Args[1] this, Args[2:] arguments
//	create_this             Args[0] callee
//	get_constructed_object  Args[0] this, Args[1] call result
//	load_prop               Args[0] object, Args[1] key
//	store_prop              Args[0] object, Args[1] key, Args[2] value
//	store_global            Args[0] value
//	call_builtin            Args[0:] arguments
//	closure_is              Args[0] candidate
type Instr struct {
	ID    ValueID
	Kind  Op
	Type  Type
	Block BlockID
	Args  []ValueID
	Pos   Pos

	Lit      Literal
	Index    int32 // parameter index
	Name     string
	Operator Operator
	Var      VarRef
	Scope    ScopeID
	Func     FuncID
	PhiPreds []BlockID
	Props    []Prop
	Call     CallInfo
}

// IsGuard reports whether the instruction emits a generated-program runtime check.
func (ins *Instr) IsGuard() bool {
	return ins.Kind == OpThrowIfEmpty || ins.Kind == OpCheckDerivedReturn
}
