package ir

import "strings"

type FuncID int32
type BlockID int32
type ValueID int32
type ScopeID int32

const (
	NoFuncID  FuncID  = -1
	NoBlockID BlockID = -1
	NoValueID ValueID = -1
	NoScopeID ScopeID = -1
)

// Pos is a source position carried into the debug table.
type Pos struct {
	Line uint32
	Col  uint32
}

// Type is an element of the static type lattice: a set of value kinds.
type Type uint16

const (
	TypeUndefined Type = 1 << iota
	TypeNull
	TypeBoolean
	TypeNumber
	TypeString
	TypeBigInt
	TypeObject
	TypeClosure
	// TypeEmpty marks a lexical binding that has not been initialized yet.
	TypeEmpty
	// TypeEnvironment is the type of scope values. It never reaches user code.
	TypeEnvironment
)

const (
	TypeNone Type = 0
	TypeAny       = TypeUndefined | TypeNull | TypeBoolean | TypeNumber | TypeString | TypeBigInt | TypeObject | TypeClosure

	typeNonPtr = TypeUndefined | TypeNull | TypeBoolean | TypeNumber | TypeEmpty
)

func (t Type) Union(o Type) Type     { return t | o }
func (t Type) Intersect(o Type) Type { return t & o }
func (t Type) Without(o Type) Type   { return t &^ o }

// CanBe reports whether a value of type t may be of some kind in o.
func (t Type) CanBe(o Type) bool { return t&o != 0 }

// IsSubsetOf reports whether every kind of t is also in o.
func (t Type) IsSubsetOf(o Type) bool { return t&^o == 0 }

// IsNumber reports whether t is exactly the number kind.
func (t Type) IsNumber() bool { return t == TypeNumber }

// IsNonPtr reports whether no kind of t is a heap pointer.
func (t Type) IsNonPtr() bool { return t != TypeNone && t.IsSubsetOf(typeNonPtr) }

// IsObject reports whether t only contains object kinds.
func (t Type) IsObject() bool { return t != TypeNone && t.IsSubsetOf(TypeObject|TypeClosure) }

var typeNames = [...]struct {
	bit  Type
	name string
}{
	{TypeUndefined, "undefined"},
	{TypeNull, "null"},
	{TypeBoolean, "boolean"},
	{TypeNumber, "number"},
	{TypeString, "string"},
	{TypeBigInt, "bigint"},
	{TypeObject, "object"},
	{TypeClosure, "closure"},
	{TypeEmpty, "empty"},
	{TypeEnvironment, "environment"},
}

func (t Type) String() string {
	switch t {
	case TypeNone:
		return "none"
	case TypeAny:
		return "any"
	}
	var parts []string
	rest := t
	if t&TypeAny == TypeAny {
		parts = append(parts, "any")
		rest = t &^ TypeAny
	}
	for _, tn := range typeNames {
		if rest&tn.bit != 0 {
			parts = append(parts, tn.name)
		}
	}
	return strings.Join(parts, "|")
}

// FuncFlags annotate whole functions.
type FuncFlags uint16

const (
	// FuncAllCallsKnown is set when every call site of the function is statically known.
	FuncAllCallsKnown FuncFlags = 1 << iota
	// FuncUnreachable is set for functions that are never called.
	FuncUnreachable
	// FuncConstructor marks functions that may be invoked with new.
	FuncConstructor
	// FuncDerived marks derived class constructors.
	FuncDerived
	// FuncModuleFactory marks a module wrapper invoked once with a fixed loader.
	FuncModuleFactory
	FuncStrict
)

func (f FuncFlags) Has(o FuncFlags) bool { return f&o != 0 }
