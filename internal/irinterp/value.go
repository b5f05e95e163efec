// Package irinterp is a reference interpreter for gale IR. It executes a
// module directly, without lowering, and serves as the oracle that checks
// optimizations preserve observable behavior.
package irinterp

import (
	"math"
	"strconv"
	"strings"

	"gale/internal/ir"
)

// Kind identifies the runtime type of a Value.
type Kind uint8

const (
	KindUndefined Kind = iota
	KindNull
	KindBool
	KindNumber
	KindString
	KindBigInt
	KindObject
	KindClosure
	KindEnv
	// KindEmpty is the TDZ sentinel of an uninitialized lexical binding.
	KindEmpty
)

func (k Kind) String() string {
	switch k {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindBigInt:
		return "bigint"
	case KindObject:
		return "object"
	case KindClosure:
		return "closure"
	case KindEnv:
		return "env"
	case KindEmpty:
		return "empty"
	}
	return "invalid"
}

// Value is a runtime value.
type Value struct {
	Kind Kind
	Num  float64
	Str  string
	Bool bool
	Obj  *Object
	Clo  *Closure
	Env  *Env
}

// Object is a property bag. Keys keeps insertion order for rendering.
type Object struct {
	Class   string
	Props   map[string]Value
	Keys    []string
	Getters map[string]*Closure
	Setters map[string]*Closure
}

// Closure is a function value. Native closures implement globals such as
// the memory intrinsics.
type Closure struct {
	Func   *ir.Func
	Env    *Env
	Native func(m *Machine, this Value, args []Value) (Value, error)
	Name   string
	// Props holds properties assigned to the function object itself.
	Props *Object
}

// Env is the runtime environment record of a scope.
type Env struct {
	Scope  ir.ScopeID
	Parent *Env
	Slots  []Value
}

func Undefined() Value            { return Value{Kind: KindUndefined} }
func Null() Value                 { return Value{Kind: KindNull} }
func Empty() Value                { return Value{Kind: KindEmpty} }
func Bool(b bool) Value           { return Value{Kind: KindBool, Bool: b} }
func Number(n float64) Value      { return Value{Kind: KindNumber, Num: n} }
func String(s string) Value       { return Value{Kind: KindString, Str: s} }
func ObjectValue(o *Object) Value { return Value{Kind: KindObject, Obj: o} }

// NewObject returns an empty ordinary object.
func NewObject() *Object {
	return &Object{Class: "Object", Props: make(map[string]Value)}
}

// FromLiteral converts an IR constant.
func FromLiteral(l ir.Literal) Value {
	switch l.Kind {
	case ir.LitNull:
		return Null()
	case ir.LitBool:
		return Bool(l.Bool)
	case ir.LitNumber:
		return Number(l.Num)
	case ir.LitString:
		return String(l.Str)
	case ir.LitBigInt:
		return Value{Kind: KindBigInt, Str: l.Str}
	case ir.LitEmpty:
		return Empty()
	}
	return Undefined()
}

// Get reads an own property or calls its getter.
func (o *Object) Get(m *Machine, self Value, key string) (Value, error) {
	if g := o.Getters[key]; g != nil {
		return m.call(g, self, nil)
	}
	if v, ok := o.Props[key]; ok {
		return v, nil
	}
	return Undefined(), nil
}

// Set writes an own property or calls its setter.
func (o *Object) Set(m *Machine, self Value, key string, v Value) error {
	if s := o.Setters[key]; s != nil {
		_, err := m.call(s, self, []Value{v})
		return err
	}
	o.define(key, v)
	return nil
}

func (o *Object) define(key string, v Value) {
	if _, ok := o.Props[key]; !ok {
		o.Keys = append(o.Keys, key)
	}
	o.Props[key] = v
}

func (o *Object) defineAccessor(key string, c *Closure, setter bool) {
	if _, ok := o.Props[key]; !ok && o.Getters[key] == nil && o.Setters[key] == nil {
		o.Keys = append(o.Keys, key)
	}
	if setter {
		if o.Setters == nil {
			o.Setters = make(map[string]*Closure)
		}
		o.Setters[key] = c
		return
	}
	if o.Getters == nil {
		o.Getters = make(map[string]*Closure)
	}
	o.Getters[key] = c
}

// Truthy implements ToBoolean.
func (v Value) Truthy() bool {
	switch v.Kind {
	case KindBool:
		return v.Bool
	case KindNumber:
		return v.Num != 0 && !math.IsNaN(v.Num)
	case KindString:
		return v.Str != ""
	case KindBigInt:
		return v.Str != "0"
	case KindObject, KindClosure:
		return true
	}
	return false
}

// TypeOf implements the typeof operator.
func (v Value) TypeOf() string {
	switch v.Kind {
	case KindNull, KindObject:
		return "object"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindBigInt:
		return "bigint"
	case KindClosure:
		return "function"
	}
	return "undefined"
}

// StrictEquals implements ===.
func (v Value) StrictEquals(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindUndefined, KindNull, KindEmpty:
		return true
	case KindBool:
		return v.Bool == o.Bool
	case KindNumber:
		return v.Num == o.Num
	case KindString, KindBigInt:
		return v.Str == o.Str
	case KindObject:
		return v.Obj == o.Obj
	case KindClosure:
		return v.Clo == o.Clo
	case KindEnv:
		return v.Env == o.Env
	}
	return false
}

// ToNumber converts primitives. Objects convert through their string form.
func (v Value) ToNumber() float64 {
	switch v.Kind {
	case KindNumber:
		return v.Num
	case KindBool:
		if v.Bool {
			return 1
		}
		return 0
	case KindNull:
		return 0
	case KindString:
		return stringToNumber(v.Str)
	case KindObject:
		return stringToNumber(v.ToString())
	}
	return math.NaN()
}

func stringToNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		n, err := strconv.ParseUint(s[2:], 16, 64)
		if err != nil {
			return math.NaN()
		}
		return float64(n)
	}
	switch s {
	case "Infinity", "+Infinity":
		return math.Inf(1)
	case "-Infinity":
		return math.Inf(-1)
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || strings.ContainsAny(s, "infINFnN_") {
		return math.NaN()
	}
	return n
}

// ToString converts a value to its string form.
func (v Value) ToString() string {
	switch v.Kind {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindNumber:
		if s, ok := ir.NumberToString(v.Num); ok {
			return s
		}
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	case KindString:
		return v.Str
	case KindBigInt:
		return v.Str
	case KindObject:
		if v.Obj.Class == "Array" {
			parts := make([]string, 0, len(v.Obj.Keys))
			n := int(v.Obj.Props["length"].Num)
			for i := 0; i < n; i++ {
				e := v.Obj.Props[strconv.Itoa(i)]
				if e.Kind == KindUndefined || e.Kind == KindNull {
					parts = append(parts, "")
					continue
				}
				parts = append(parts, e.ToString())
			}
			return strings.Join(parts, ",")
		}
		if v.Obj.Class != "Object" {
			return v.Obj.Class + ": " + v.Obj.Props["message"].ToString()
		}
		return "[object Object]"
	case KindClosure:
		return "function " + v.Clo.name() + "() { [code] }"
	}
	return "<" + v.Kind.String() + ">"
}

func (c *Closure) name() string {
	if c.Func != nil {
		return c.Func.Name
	}
	return c.Name
}

// Render prints a value deterministically, looking into objects. It is the
// comparison form used by equivalence tests.
func Render(v Value) string {
	var sb strings.Builder
	render(&sb, v, 0)
	return sb.String()
}

func render(sb *strings.Builder, v Value, depth int) {
	switch v.Kind {
	case KindString:
		sb.WriteString(strconv.Quote(v.Str))
	case KindObject:
		if depth > 4 {
			sb.WriteString("{...}")
			return
		}
		if v.Obj.Class != "Object" {
			sb.WriteString(v.Obj.Class)
		}
		sb.WriteByte('{')
		for i, k := range v.Obj.Keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(k)
			sb.WriteByte(':')
			switch {
			case v.Obj.Getters[k] != nil || v.Obj.Setters[k] != nil:
				sb.WriteString("<accessor>")
			default:
				render(sb, v.Obj.Props[k], depth+1)
			}
		}
		sb.WriteByte('}')
	default:
		sb.WriteString(v.ToString())
	}
}
