package lir

// Op is a low-level opcode. Every op except the pseudo ops maps to exactly
// one bytecode instruction.
type Op uint8

const (
	Nop Op = iota
	Mov
	LoadParam
	LoadConstUndefined
	LoadConstNull
	LoadConstTrue
	LoadConstFalse
	LoadConstEmpty
	LoadConstZero
	LoadConstInt
	LoadConstDouble
	LoadConstString
	LoadConstBigInt

	Negate
	ToNumber
	Not
	BitNot
	TypeOf

	Add
	Sub
	Mul
	Div
	Mod
	Eq
	Neq
	StrictEq
	StrictNeq
	Less
	LessEq
	Greater
	GreaterEq
	BitAnd
	BitOr
	BitXor
	LShift
	RShift
	URShift

	// CreateTopEnvironment allocates a root environment with Imm slots.
	CreateTopEnvironment
	// CreateEnvironment allocates an environment of Imm slots under Args[0].
	CreateEnvironment
	// GetParentEnvironment reads the environment captured by the running closure.
	GetParentEnvironment
	// GetEnvironment follows Imm parent links from Args[0].
	GetEnvironment
	GetClosureEnvironment
	LoadFromEnvironment
	StoreToEnvironment
	ThrowIfEmpty
	CreateClosure

	// Call invokes Args[0] with Args[1:] (receiver first).
	Call
	Construct
	CreateThis
	SelectObject
	ThrowIfNotObjectOrUndefined
	CallBuiltin
	// LoadCached reads call cache slot Imm, leaving Dst empty while the
	// slot is unfilled. CallAndCache performs its call only for an empty
	// slot and fills it.
	LoadCached
	CallAndCache
	ClosureIs

	GetById
	GetByIndex
	GetByVal
	PutById
	PutByIndex
	PutByVal
	GetGlobal
	PutGlobal

	NewObject
	NewObjectWithBuffer
	NewArray
	NewArrayWithBuffer
	PutOwnById
	PutOwnByIndex
	PutOwnByVal
	// PutOwnBySlotIdx fills placeholder Imm of the buffer an object was
	// allocated from.
	PutOwnBySlotIdx
	// PutOwnAccessor defines a getter (Imm 0) or setter (Imm 1).
	PutOwnAccessor

	GetArgumentsLength
	GetArgumentsPropByVal
	ReifyArguments

	Load8
	Load16
	Load32
	Store8
	Store16
	Store32

	Catch
	// Spill and Unspill move values between registers and spill slot Imm.
	// Only the register allocator inserts them.
	Spill
	Unspill

	// Terminators.
	Jmp
	JmpTrue
	JStrictEqual
	StringSwitch
	Ret
	Throw
	Unreachable

	numOps
)

// Kind is the encoding of one operand.
type Kind uint8

const (
	// KReg is a register read from Args.
	KReg Kind = iota
	KImm
	KNum
	KStr
	KBuf
	KTarget
	// KSwitch is the index of a string-switch jump table.
	KSwitch
	// KList is the rest of Args, staged into contiguous registers.
	KList
)

// Format describes the operand layout of an op. Dst, when present, is
// encoded first.
type Format struct {
	Name string
	Dst  bool
	// ReadsDst marks ops that read Dst before writing it.
	ReadsDst bool
	Operands []Kind
	Term     bool
}

var (
	kR    = []Kind{KReg}
	kRR   = []Kind{KReg, KReg}
	kRRR  = []Kind{KReg, KReg, KReg}
	kRI   = []Kind{KReg, KImm}
	kRRI  = []Kind{KReg, KReg, KImm}
	kRS   = []Kind{KReg, KStr}
	kRRS  = []Kind{KReg, KReg, KStr}
	kImm  = []Kind{KImm}
	kStr  = []Kind{KStr}
	kList = []Kind{KReg, KList}
)

var formats = [numOps]Format{
	Nop:                {Name: "Nop"},
	Mov:                {Name: "Mov", Dst: true, Operands: kR},
	LoadParam:          {Name: "LoadParam", Dst: true, Operands: kImm},
	LoadConstUndefined: {Name: "LoadConstUndefined", Dst: true},
	LoadConstNull:      {Name: "LoadConstNull", Dst: true},
	LoadConstTrue:      {Name: "LoadConstTrue", Dst: true},
	LoadConstFalse:     {Name: "LoadConstFalse", Dst: true},
	LoadConstEmpty:     {Name: "LoadConstEmpty", Dst: true},
	LoadConstZero:      {Name: "LoadConstZero", Dst: true},
	LoadConstInt:       {Name: "LoadConstInt", Dst: true, Operands: kImm},
	LoadConstDouble:    {Name: "LoadConstDouble", Dst: true, Operands: []Kind{KNum}},
	LoadConstString:    {Name: "LoadConstString", Dst: true, Operands: kStr},
	LoadConstBigInt:    {Name: "LoadConstBigInt", Dst: true, Operands: kStr},

	Negate:   {Name: "Negate", Dst: true, Operands: kR},
	ToNumber: {Name: "ToNumber", Dst: true, Operands: kR},
	Not:      {Name: "Not", Dst: true, Operands: kR},
	BitNot:   {Name: "BitNot", Dst: true, Operands: kR},
	TypeOf:   {Name: "TypeOf", Dst: true, Operands: kR},

	Add:       {Name: "Add", Dst: true, Operands: kRR},
	Sub:       {Name: "Sub", Dst: true, Operands: kRR},
	Mul:       {Name: "Mul", Dst: true, Operands: kRR},
	Div:       {Name: "Div", Dst: true, Operands: kRR},
	Mod:       {Name: "Mod", Dst: true, Operands: kRR},
	Eq:        {Name: "Eq", Dst: true, Operands: kRR},
	Neq:       {Name: "Neq", Dst: true, Operands: kRR},
	StrictEq:  {Name: "StrictEq", Dst: true, Operands: kRR},
	StrictNeq: {Name: "StrictNeq", Dst: true, Operands: kRR},
	Less:      {Name: "Less", Dst: true, Operands: kRR},
	LessEq:    {Name: "LessEq", Dst: true, Operands: kRR},
	Greater:   {Name: "Greater", Dst: true, Operands: kRR},
	GreaterEq: {Name: "GreaterEq", Dst: true, Operands: kRR},
	BitAnd:    {Name: "BitAnd", Dst: true, Operands: kRR},
	BitOr:     {Name: "BitOr", Dst: true, Operands: kRR},
	BitXor:    {Name: "BitXor", Dst: true, Operands: kRR},
	LShift:    {Name: "LShift", Dst: true, Operands: kRR},
	RShift:    {Name: "RShift", Dst: true, Operands: kRR},
	URShift:   {Name: "URShift", Dst: true, Operands: kRR},

	CreateTopEnvironment:  {Name: "CreateTopEnvironment", Dst: true, Operands: kImm},
	CreateEnvironment:     {Name: "CreateEnvironment", Dst: true, Operands: kRI},
	GetParentEnvironment:  {Name: "GetParentEnvironment", Dst: true},
	GetEnvironment:        {Name: "GetEnvironment", Dst: true, Operands: kRI},
	GetClosureEnvironment: {Name: "GetClosureEnvironment", Dst: true, Operands: kR},
	LoadFromEnvironment:   {Name: "LoadFromEnvironment", Dst: true, Operands: kRI},
	StoreToEnvironment:    {Name: "StoreToEnvironment", Operands: kRRI},
	ThrowIfEmpty:          {Name: "ThrowIfEmpty", Dst: true, Operands: kR},
	CreateClosure:         {Name: "CreateClosure", Dst: true, Operands: kRI},

	Call:                        {Name: "Call", Dst: true, Operands: kList},
	Construct:                   {Name: "Construct", Dst: true, Operands: kList},
	CreateThis:                  {Name: "CreateThis", Dst: true, Operands: kR},
	SelectObject:                {Name: "SelectObject", Dst: true, Operands: kRR},
	ThrowIfNotObjectOrUndefined: {Name: "ThrowIfNotObjectOrUndefined", Dst: true, Operands: kR},
	CallBuiltin:                 {Name: "CallBuiltin", Dst: true, Operands: []Kind{KStr, KList}},
	LoadCached:                  {Name: "LoadCached", Dst: true, Operands: kImm},
	CallAndCache:                {Name: "CallAndCache", Dst: true, ReadsDst: true, Operands: []Kind{KImm, KReg, KList}},
	ClosureIs:                   {Name: "ClosureIs", Dst: true, Operands: kRI},

	GetById:    {Name: "GetById", Dst: true, Operands: kRS},
	GetByIndex: {Name: "GetByIndex", Dst: true, Operands: kRI},
	GetByVal:   {Name: "GetByVal", Dst: true, Operands: kRR},
	PutById:    {Name: "PutById", Operands: kRRS},
	PutByIndex: {Name: "PutByIndex", Operands: kRRI},
	PutByVal:   {Name: "PutByVal", Operands: kRRR},
	GetGlobal:  {Name: "GetGlobal", Dst: true, Operands: kStr},
	PutGlobal:  {Name: "PutGlobal", Operands: kRS},

	NewObject:           {Name: "NewObject", Dst: true},
	NewObjectWithBuffer: {Name: "NewObjectWithBuffer", Dst: true, Operands: []Kind{KBuf}},
	NewArray:            {Name: "NewArray", Dst: true, Operands: kImm},
	NewArrayWithBuffer:  {Name: "NewArrayWithBuffer", Dst: true, Operands: []Kind{KBuf, KImm}},
	PutOwnById:          {Name: "PutOwnById", Operands: kRRS},
	PutOwnByIndex:       {Name: "PutOwnByIndex", Operands: kRRI},
	PutOwnByVal:         {Name: "PutOwnByVal", Operands: kRRR},
	PutOwnBySlotIdx:     {Name: "PutOwnBySlotIdx", Operands: kRRI},
	PutOwnAccessor:      {Name: "PutOwnAccessor", Operands: []Kind{KReg, KReg, KReg, KImm}},

	GetArgumentsLength:    {Name: "GetArgumentsLength", Dst: true},
	GetArgumentsPropByVal: {Name: "GetArgumentsPropByVal", Dst: true, Operands: kR},
	ReifyArguments:        {Name: "ReifyArguments", Dst: true},

	Load8:   {Name: "Load8", Dst: true, Operands: kR},
	Load16:  {Name: "Load16", Dst: true, Operands: kR},
	Load32:  {Name: "Load32", Dst: true, Operands: kR},
	Store8:  {Name: "Store8", Operands: kRR},
	Store16: {Name: "Store16", Operands: kRR},
	Store32: {Name: "Store32", Operands: kRR},

	Catch:   {Name: "Catch", Dst: true},
	Spill:   {Name: "Spill", Operands: kRI},
	Unspill: {Name: "Unspill", Dst: true, Operands: kImm},

	Jmp:          {Name: "Jmp", Operands: []Kind{KTarget}, Term: true},
	JmpTrue:      {Name: "JmpTrue", Operands: []Kind{KReg, KTarget}, Term: true},
	JStrictEqual: {Name: "JStrictEqual", Operands: []Kind{KReg, KReg, KTarget}, Term: true},
	StringSwitch: {Name: "StringSwitch", Operands: []Kind{KReg, KSwitch, KTarget}, Term: true},
	Ret:          {Name: "Ret", Operands: kR, Term: true},
	Throw:        {Name: "Throw", Operands: kR, Term: true},
	Unreachable:  {Name: "Unreachable", Term: true},
}

// FormatOf returns the operand layout of op.
func FormatOf(op Op) *Format {
	if int(op) >= len(formats) {
		return &formats[Nop]
	}
	return &formats[op]
}

func (op Op) String() string { return FormatOf(op).Name }

// IsTerm reports whether op ends a block.
func (op Op) IsTerm() bool { return FormatOf(op).Term }

// ReadsDst reports whether op uses the previous value of its destination.
func (op Op) ReadsDst() bool { return FormatOf(op).ReadsDst }

// NumOps is the size of the opcode space.
const NumOps = int(numOps)

// MaxRegOperands is the largest number of plain register operands of any
// op, a destination that is also read included. The allocator reserves that
// many scratch registers for reloads.
func MaxRegOperands() int {
	n := 0
	for i := range formats {
		k := 0
		if formats[i].ReadsDst {
			k++
		}
		for _, o := range formats[i].Operands {
			if o == KReg {
				k++
			}
		}
		n = max(n, k)
	}
	return n
}

// Conditional reports whether op falls through to Targets[1].
func (op Op) Conditional() bool { return op == JmpTrue || op == JStrictEqual }

// HasList reports whether op stages trailing arguments.
func (op Op) HasList() bool {
	for _, o := range FormatOf(op).Operands {
		if o == KList {
			return true
		}
	}
	return false
}
