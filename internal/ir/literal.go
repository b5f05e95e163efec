package ir

import (
	"math"
	"strconv"
)

// LiteralKind distinguishes compile-time constants.
type LiteralKind uint8

const (
	LitUndefined LiteralKind = iota
	LitNull
	LitBool
	LitNumber
	LitString
	LitBigInt
	// LitEmpty is the TDZ sentinel stored into uninitialized lexical bindings.
	LitEmpty
)

// Literal is a compile-time constant value.
type Literal struct {
	Kind LiteralKind
	Num  float64
	Str  string // string payload or bigint decimal digits
	Bool bool
}

func Undefined() Literal           { return Literal{Kind: LitUndefined} }
func Null() Literal                { return Literal{Kind: LitNull} }
func Empty() Literal               { return Literal{Kind: LitEmpty} }
func Bool(b bool) Literal          { return Literal{Kind: LitBool, Bool: b} }
func Number(n float64) Literal     { return Literal{Kind: LitNumber, Num: n} }
func String(s string) Literal      { return Literal{Kind: LitString, Str: s} }
func BigInt(digits string) Literal { return Literal{Kind: LitBigInt, Str: digits} }

// Type returns the lattice element of the literal.
func (l Literal) Type() Type {
	switch l.Kind {
	case LitUndefined:
		return TypeUndefined
	case LitNull:
		return TypeNull
	case LitBool:
		return TypeBoolean
	case LitNumber:
		return TypeNumber
	case LitString:
		return TypeString
	case LitBigInt:
		return TypeBigInt
	case LitEmpty:
		return TypeEmpty
	}
	return TypeNone
}

// Same reports whether two literals are the identical constant.
// Unlike strict equality, NaN is the same as NaN and 0 differs from -0.
func (l Literal) Same(o Literal) bool {
	if l.Kind != o.Kind {
		return false
	}
	switch l.Kind {
	case LitBool:
		return l.Bool == o.Bool
	case LitNumber:
		return math.Float64bits(l.Num) == math.Float64bits(o.Num)
	case LitString, LitBigInt:
		return l.Str == o.Str
	}
	return true
}

// StrictEquals implements === between two literals.
func (l Literal) StrictEquals(o Literal) bool {
	if l.Kind != o.Kind {
		return false
	}
	if l.Kind == LitNumber {
		return l.Num == o.Num
	}
	return l.Same(o)
}

// Truthy reports the boolean conversion of the literal.
func (l Literal) Truthy() bool {
	switch l.Kind {
	case LitBool:
		return l.Bool
	case LitNumber:
		return l.Num != 0 && !math.IsNaN(l.Num)
	case LitString:
		return l.Str != ""
	case LitBigInt:
		return l.Str != "0"
	}
	return false
}

// TypeOf returns the typeof result for the literal.
func (l Literal) TypeOf() string {
	switch l.Kind {
	case LitUndefined:
		return "undefined"
	case LitNull:
		return "object"
	case LitBool:
		return "boolean"
	case LitNumber:
		return "number"
	case LitString:
		return "string"
	case LitBigInt:
		return "bigint"
	}
	return ""
}

// ToPropertyString converts a primitive literal to its string form when the
// conversion is exact and cheap to prove. ok is false otherwise.
func (l Literal) ToPropertyString() (string, bool) {
	switch l.Kind {
	case LitString:
		return l.Str, true
	case LitUndefined:
		return "undefined", true
	case LitNull:
		return "null", true
	case LitBool:
		if l.Bool {
			return "true", true
		}
		return "false", true
	case LitBigInt:
		return l.Str, true
	case LitNumber:
		return NumberToString(l.Num)
	}
	return "", false
}

// NumberToString renders integral doubles in the safe integer range and the
// special values. Other doubles need the full shortest-roundtrip algorithm of
// the VM and are reported as not representable.
func NumberToString(n float64) (string, bool) {
	switch {
	case math.IsNaN(n):
		return "NaN", true
	case math.IsInf(n, 1):
		return "Infinity", true
	case math.IsInf(n, -1):
		return "-Infinity", true
	case n == 0:
		return "0", true
	}
	if n == math.Trunc(n) && math.Abs(n) <= 1<<53 {
		return strconv.FormatInt(int64(n), 10), true
	}
	return "", false
}

func (l Literal) String() string {
	switch l.Kind {
	case LitUndefined:
		return "undefined"
	case LitNull:
		return "null"
	case LitEmpty:
		return "empty"
	case LitBool:
		return strconv.FormatBool(l.Bool)
	case LitNumber:
		return strconv.FormatFloat(l.Num, 'g', -1, 64)
	case LitString:
		return strconv.Quote(l.Str)
	case LitBigInt:
		return l.Str + "n"
	}
	return "?"
}

type litKey struct {
	kind LiteralKind
	bits uint64
	str  string
}

func (l Literal) key() litKey {
	k := litKey{kind: l.Kind, str: l.Str}
	switch l.Kind {
	case LitNumber:
		k.bits = math.Float64bits(l.Num)
	case LitBool:
		if l.Bool {
			k.bits = 1
		}
	}
	return k
}
