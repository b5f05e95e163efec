package irinterp

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gale/internal/ir"
)

// Options configures execution.
type Options struct {
	// MaxSteps bounds the number of executed instructions; 0 means the
	// default of one million.
	MaxSteps int
	// MemorySize is the size of the byte array behind the memory
	// intrinsics; 0 means 64 KiB.
	MemorySize int
}

// Machine executes one module.
type Machine struct {
	M       *ir.Module
	Globals map[string]Value
	Memory  []byte
	Log     []string

	steps    int
	maxSteps int
	depth    int
}

// Result is the observable outcome of a run.
type Result struct {
	Value Value
	// Thrown is set when the program ended with an uncaught exception,
	// held in Value.
	Thrown bool
	Log    []string
}

// ErrKind returns the class of an uncaught error object, or "".
func (r *Result) ErrKind() string {
	if !r.Thrown || r.Value.Kind != KindObject {
		return ""
	}
	return r.Value.Obj.Class
}

// Summary renders the result for comparisons.
func (r *Result) Summary() string {
	var sb strings.Builder
	if r.Thrown {
		sb.WriteString("throw ")
	} else {
		sb.WriteString("return ")
	}
	sb.WriteString(Render(r.Value))
	for _, l := range r.Log {
		sb.WriteString("\n| ")
		sb.WriteString(l)
	}
	return sb.String()
}

const maxCallDepth = 200

// New prepares a machine with the builtin globals installed.
func New(m *ir.Module, opts Options) *Machine {
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = 1_000_000
	}
	if opts.MemorySize <= 0 {
		opts.MemorySize = 64 << 10
	}
	mach := &Machine{
		M:        m,
		Globals:  make(map[string]Value),
		Memory:   make([]byte, opts.MemorySize),
		maxSteps: opts.MaxSteps,
	}
	mach.installIntrinsics()
	return mach
}

// Run executes the top-level function of m.
func Run(m *ir.Module, opts Options) (*Result, error) {
	return New(m, opts).Run()
}

// Run executes the top-level function. Program exceptions are part of the
// result; interpreter failures are returned as *Error.
func (m *Machine) Run() (*Result, error) {
	top := m.M.Func(m.M.Top)
	if top == nil {
		return nil, &Error{Code: ErrMalformed, Message: "module has no top-level function", Block: ir.NoBlockID}
	}
	v, err := m.call(&Closure{Func: top}, Undefined(), nil)
	res := &Result{Value: v, Log: m.Log}
	if err != nil {
		var t *Thrown
		if !errors.As(err, &t) {
			return nil, err
		}
		res.Value = t.Value
		res.Thrown = true
	}
	return res, nil
}

// Call invokes a function value from Go.
func (m *Machine) Call(fn Value, this Value, args []Value) (Value, error) {
	if fn.Kind != KindClosure {
		return Value{}, m.throwError("TypeError", "%s is not a function", fn.ToString())
	}
	return m.call(fn.Clo, this, args)
}

func (m *Machine) call(c *Closure, this Value, args []Value) (Value, error) {
	if c.Native != nil {
		return c.Native(m, this, args)
	}
	if m.depth >= maxCallDepth {
		return Value{}, m.throwError("RangeError", "maximum call stack size exceeded")
	}
	m.depth++
	defer func() { m.depth-- }()
	fr := newFrame(c, this, args)
	return m.exec(fr)
}

// frame is the activation of one IR function.
type frame struct {
	fn        *ir.Func
	closure   *Closure
	this      Value
	args      []Value
	values    []Value
	bb        ir.BlockID
	prev      ir.BlockID
	exception Value
}

func newFrame(c *Closure, this Value, args []Value) *frame {
	fr := &frame{
		fn:      c.Func,
		closure: c,
		this:    this,
		args:    args,
		values:  make([]Value, len(c.Func.Values)),
		bb:      c.Func.Entry,
		prev:    ir.NoBlockID,
	}
	for i, p := range c.Func.Params {
		if i < len(args) {
			fr.values[p] = args[i]
		}
	}
	if t := c.Func.This; t != ir.NoValueID {
		fr.values[t] = this
	}
	for i := range c.Func.Values {
		ins := &c.Func.Values[i]
		if ins.Kind == ir.OpLiteral {
			fr.values[i] = FromLiteral(ins.Lit)
		}
	}
	return fr
}

func (m *Machine) fail(fr *frame, code ErrorCode, format string, args ...any) *Error {
	e := &Error{Code: code, Message: fmt.Sprintf(format, args...), Block: ir.NoBlockID}
	if fr != nil {
		e.Func, e.Block = fr.fn.Name, fr.bb
	}
	return e
}

func (m *Machine) exec(fr *frame) (Value, error) {
	f := fr.fn
	for {
		blk := f.Block(fr.bb)
		if blk == nil {
			return Value{}, m.fail(fr, ErrMalformed, "jump to missing block")
		}
		if err := m.enterBlock(fr, blk); err != nil {
			return Value{}, err
		}
		next, ret, done, err := m.runBlock(fr, blk)
		if err != nil {
			var t *Thrown
			if errors.As(err, &t) && blk.Handler != ir.NoBlockID {
				fr.exception = t.Value
				fr.prev = fr.bb
				fr.bb = blk.Handler
				continue
			}
			return Value{}, err
		}
		if done {
			return ret, nil
		}
		fr.prev = fr.bb
		fr.bb = next
	}
}

// enterBlock evaluates the phis of blk in parallel.
func (m *Machine) enterBlock(fr *frame, blk *ir.Block) error {
	f := fr.fn
	type assign struct {
		id ir.ValueID
		v  Value
	}
	var pending []assign
	for _, v := range blk.Instrs {
		ins := &f.Values[v]
		if ins.Kind != ir.OpPhi {
			break
		}
		found := false
		for k, p := range ins.PhiPreds {
			if p == fr.prev {
				pending = append(pending, assign{id: v, v: fr.values[ins.Args[k]]})
				found = true
				break
			}
		}
		if !found {
			return m.fail(fr, ErrMalformed, "phi v%d has no edge from bb%d", v, fr.prev)
		}
	}
	for _, a := range pending {
		fr.values[a.id] = a.v
	}
	return nil
}

func (m *Machine) runBlock(fr *frame, blk *ir.Block) (next ir.BlockID, ret Value, done bool, err error) {
	f := fr.fn
	for _, v := range blk.Instrs {
		ins := &f.Values[v]
		if ins.Kind == ir.OpPhi || ins.Kind == ir.OpDead {
			continue
		}
		m.steps++
		if m.steps > m.maxSteps {
			return 0, Value{}, false, m.fail(fr, ErrStepLimit, "exceeded %d steps", m.maxSteps)
		}
		val, err := m.step(fr, ins)
		if err != nil {
			return 0, Value{}, false, err
		}
		fr.values[v] = val
	}
	return m.terminate(fr, &blk.Term)
}

func (m *Machine) terminate(fr *frame, t *ir.Terminator) (ir.BlockID, Value, bool, error) {
	switch t.Kind {
	case ir.TermBranch:
		return t.Branch.Target, Value{}, false, nil
	case ir.TermCondBranch:
		if fr.values[t.CondBranch.Cond].Truthy() {
			return t.CondBranch.Then, Value{}, false, nil
		}
		return t.CondBranch.Else, Value{}, false, nil
	case ir.TermReturn:
		return 0, fr.values[t.Return.Value], true, nil
	case ir.TermThrow:
		return 0, Value{}, false, &Thrown{Value: fr.values[t.Throw.Value]}
	case ir.TermSwitch:
		v := fr.values[t.Switch.Value]
		for _, c := range t.Switch.Cases {
			if FromLiteral(c.Label).StrictEquals(v) {
				return c.Target, Value{}, false, nil
			}
		}
		return t.Switch.Default, Value{}, false, nil
	case ir.TermTry:
		return t.Try.Body, Value{}, false, nil
	case ir.TermUnreachable:
		return 0, Value{}, false, m.fail(fr, ErrMalformed, "reached unreachable terminator")
	}
	return 0, Value{}, false, m.fail(fr, ErrMalformed, "unterminated block")
}

func (m *Machine) step(fr *frame, ins *ir.Instr) (Value, error) {
	arg := func(i int) Value { return fr.values[ins.Args[i]] }
	switch ins.Kind {
	case ir.OpMov, ir.OpUnionNarrow:
		return arg(0), nil
	case ir.OpUnary:
		return m.unary(ins.Operator, arg(0))
	case ir.OpBinary:
		return m.binary(ins.Operator, arg(0), arg(1))
	case ir.OpCreateScope:
		var parent *Env
		if len(ins.Args) > 0 {
			parent = arg(0).Env
		}
		s := m.M.Scope(ins.Scope)
		env := &Env{Scope: ins.Scope, Parent: parent, Slots: make([]Value, len(s.Vars))}
		for i, v := range s.Vars {
			if v.Lexical {
				env.Slots[i] = Empty()
			}
		}
		return Value{Kind: KindEnv, Env: env}, nil
	case ir.OpGetParentScope:
		return Value{Kind: KindEnv, Env: fr.closure.Env}, nil
	case ir.OpResolveScope:
		for e := arg(0).Env; e != nil; e = e.Parent {
			if e.Scope == ins.Scope {
				return Value{Kind: KindEnv, Env: e}, nil
			}
		}
		return Value{}, m.fail(fr, ErrScopeMissing, "v%d: s%d is not on the chain", ins.ID, ins.Scope)
	case ir.OpGetClosureScope:
		c := arg(0)
		if c.Kind != KindClosure {
			return Value{}, m.fail(fr, ErrMalformed, "v%d: get_closure_scope of %s", ins.ID, c.Kind)
		}
		return Value{Kind: KindEnv, Env: c.Clo.Env}, nil
	case ir.OpLoadVar:
		env, err := m.envFor(fr, ins, arg(0))
		if err != nil {
			return Value{}, err
		}
		if int(ins.Var.Index) >= len(env.Slots) {
			return m.initialValue(ins.Var), nil
		}
		return env.Slots[ins.Var.Index], nil
	case ir.OpStoreVar:
		env, err := m.envFor(fr, ins, arg(0))
		if err != nil {
			return Value{}, err
		}
		for int(ins.Var.Index) >= len(env.Slots) {
			env.Slots = append(env.Slots, m.initialValue(ir.VarRef{Scope: ins.Var.Scope, Index: ir.ID32(len(env.Slots), "slot")}))
		}
		env.Slots[ins.Var.Index] = arg(1)
		return Value{}, nil
	case ir.OpThrowIfEmpty:
		v := arg(0)
		if v.Kind == KindEmpty {
			return Value{}, m.throwError("ReferenceError", "cannot access binding before initialization")
		}
		return v, nil
	case ir.OpCreateClosure:
		fn := m.M.Func(ins.Func)
		if fn == nil {
			return Value{}, m.fail(fr, ErrMalformed, "closure of unknown function %d", ins.Func)
		}
		return Value{Kind: KindClosure, Clo: &Closure{Func: fn, Env: arg(0).Env}}, nil
	case ir.OpClosureIs:
		v := arg(0)
		return Bool(v.Kind == KindClosure && v.Clo.Func != nil && v.Clo.Func.ID == ins.Func), nil
	case ir.OpCall:
		args := make([]Value, 0, len(ins.Args)-2)
		for i := 2; i < len(ins.Args); i++ {
			args = append(args, arg(i))
		}
		return m.Call(arg(0), arg(1), args)
	case ir.OpCreateThis:
		if arg(0).Kind != KindClosure {
			return Value{}, m.throwError("TypeError", "%s is not a constructor", arg(0).ToString())
		}
		return ObjectValue(NewObject()), nil
	case ir.OpGetConstructedObject:
		if r := arg(1); r.Kind == KindObject || r.Kind == KindClosure {
			return r, nil
		}
		return arg(0), nil
	case ir.OpCheckDerivedReturn:
		v := arg(0)
		if v.Kind == KindObject || v.Kind == KindClosure || v.Kind == KindUndefined {
			return v, nil
		}
		return Value{}, m.throwError("TypeError", "derived constructors may only return object or undefined")
	case ir.OpLoadProp:
		return m.getProp(arg(0), arg(1))
	case ir.OpStoreProp:
		return Value{}, m.setProp(arg(0), arg(1), arg(2))
	case ir.OpLoadGlobal:
		v, ok := m.Globals[ins.Name]
		if !ok {
			return Value{}, m.throwError("ReferenceError", "%s is not defined", ins.Name)
		}
		return v, nil
	case ir.OpStoreGlobal:
		m.Globals[ins.Name] = arg(0)
		return Value{}, nil
	case ir.OpAllocObjectLiteral:
		o := NewObject()
		for _, p := range ins.Props {
			key := p.Key.Str
			if p.KeyArg >= 0 {
				key = propertyKey(arg(int(p.KeyArg)))
			} else if s, ok := p.Key.ToPropertyString(); ok {
				key = s
			}
			v := arg(int(p.ValueArg))
			switch p.Kind {
			case ir.PropGetter, ir.PropSetter:
				if v.Kind != KindClosure {
					return Value{}, m.fail(fr, ErrMalformed, "accessor %q is not a closure", key)
				}
				o.defineAccessor(key, v.Clo, p.Kind == ir.PropSetter)
			default:
				o.define(key, v)
			}
		}
		return ObjectValue(o), nil
	case ir.OpAllocArrayLiteral:
		elems := make([]Value, len(ins.Args))
		for i := range ins.Args {
			elems[i] = arg(i)
		}
		return ObjectValue(newArray("Array", elems)), nil
	case ir.OpArguments:
		return ObjectValue(newArray("Arguments", fr.args)), nil
	case ir.OpCallBuiltin:
		args := make([]Value, len(ins.Args))
		for i := range ins.Args {
			args[i] = arg(i)
		}
		return m.builtin(fr, ins.Name, args)
	case ir.OpCatch:
		return fr.exception, nil
	case ir.OpLiteral, ir.OpParam, ir.OpThis:
		return fr.values[ins.ID], nil
	}
	return Value{}, m.fail(fr, ErrMalformed, "cannot execute %s", ins.Kind)
}

func (m *Machine) envFor(fr *frame, ins *ir.Instr, v Value) (*Env, error) {
	if v.Kind != KindEnv || v.Env == nil {
		return nil, m.fail(fr, ErrMalformed, "v%d: variable access through %s", ins.ID, v.Kind)
	}
	if v.Env.Scope != ins.Var.Scope {
		return nil, m.fail(fr, ErrScopeMissing, "v%d: s%d accessed through an environment of s%d", ins.ID, ins.Var.Scope, v.Env.Scope)
	}
	return v.Env, nil
}

func (m *Machine) initialValue(ref ir.VarRef) Value {
	if v := m.M.Var(ref); v != nil && v.Lexical {
		return Empty()
	}
	return Undefined()
}

func newArray(class string, elems []Value) *Object {
	o := NewObject()
	o.Class = class
	for i, e := range elems {
		o.define(strconv.Itoa(i), e)
	}
	o.define("length", Number(float64(len(elems))))
	return o
}

// propertyKey implements ToPropertyKey for primitives.
func propertyKey(v Value) string {
	return v.ToString()
}

func (m *Machine) getProp(obj, key Value) (Value, error) {
	k := propertyKey(key)
	switch obj.Kind {
	case KindUndefined, KindNull:
		return Value{}, m.throwError("TypeError", "cannot read property %q of %s", k, obj.ToString())
	case KindObject:
		return obj.Obj.Get(m, obj, k)
	case KindClosure:
		if k == "name" {
			return String(obj.Clo.name()), nil
		}
		if obj.Clo.Props != nil {
			return obj.Clo.Props.Get(m, obj, k)
		}
	case KindString:
		units := utf16Units(obj.Str)
		if k == "length" {
			return Number(float64(len(units))), nil
		}
		if i, err := strconv.Atoi(k); err == nil && i >= 0 && i < len(units) {
			return String(string(rune(units[i]))), nil
		}
	}
	return Undefined(), nil
}

func (m *Machine) setProp(obj, key, v Value) error {
	k := propertyKey(key)
	switch obj.Kind {
	case KindUndefined, KindNull:
		return m.throwError("TypeError", "cannot set property %q of %s", k, obj.ToString())
	case KindObject:
		return obj.Obj.Set(m, obj, k, v)
	case KindClosure:
		if obj.Clo.Props == nil {
			obj.Clo.Props = NewObject()
		}
		return obj.Clo.Props.Set(m, obj, k, v)
	}
	return nil
}

func utf16Units(s string) []uint16 {
	var out []uint16
	for _, r := range s {
		if r >= 0x10000 {
			r -= 0x10000
			out = append(out, uint16(0xD800+(r>>10)), uint16(0xDC00+(r&0x3FF)))
			continue
		}
		out = append(out, uint16(r))
	}
	return out
}
