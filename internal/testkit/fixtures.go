// Package testkit provides IR fixtures and invariant checks shared by the
// compiler's package tests.
package testkit

import (
	"fmt"

	"gale/internal/ir"
)

// Counter builds a program whose top level keeps a counter in its scope
// and bumps it through a closure n times before returning it.
func Counter(n int) *ir.Module {
	m := ir.NewModule()
	top := m.NewFunc("main", ir.NoScopeID)
	count := m.AddVar(top.Scope, "count", ir.TypeNumber, false)
	m.Var(count).Captured = true
	inc := m.NewFunc("inc", top.Scope)

	tb := ir.NewBuilder(m, top)
	env := tb.CreateScope(top.Scope, ir.NoValueID)
	tb.CreateStoreVar(env, count, tb.Num(0))
	clo := tb.CreateClosure(env, inc.ID)
	for i := 0; i < n; i++ {
		tb.CreateCall(clo, tb.Undef(), nil)
	}
	tb.Return(tb.CreateLoadVar(env, count))

	ib := ir.NewBuilder(m, inc)
	parent := ib.CreateGetParentScope()
	ib.CreateScope(inc.Scope, parent)
	cur := ib.CreateLoadVar(parent, count)
	next := ib.CreateBinary(ir.OperatorAdd, cur, ib.Num(1))
	ib.CreateStoreVar(parent, count, next)
	ib.Return(next)
	return m
}

// TDZTwice reads a lexical binding twice while it still holds the empty
// sentinel. The first guard throws, so the second can never fail.
//
//	return x + x; let x = 5
func TDZTwice() (m *ir.Module, first, second ir.ValueID) {
	m = ir.NewModule()
	f := m.NewFunc("main", ir.NoScopeID)
	x := m.AddVar(f.Scope, "x", ir.TypeNumber, true)
	b := ir.NewBuilder(m, f)
	env := b.CreateScope(f.Scope, ir.NoValueID)
	b.CreateStoreVar(env, x, b.Lit(ir.Empty()))
	first = b.CreateThrowIfEmpty(b.CreateLoadVar(env, x))
	second = b.CreateThrowIfEmpty(b.CreateLoadVar(env, x))
	b.Return(b.CreateBinary(ir.OperatorAdd, first, second))
	return m, first, second
}

// StringSwitch builds classify(s), a switch over n string labels "k0".."kN"
// returning the label index or -1, and a top level that calls it with key.
func StringSwitch(n int, key string) *ir.Module {
	m := ir.NewModule()
	top := m.NewFunc("main", ir.NoScopeID)
	classify := m.NewFunc("classify", top.Scope)

	tb := ir.NewBuilder(m, top)
	env := tb.CreateScope(top.Scope, ir.NoValueID)
	clo := tb.CreateClosure(env, classify.ID)
	tb.Return(tb.CreateCall(clo, tb.Undef(), []ir.ValueID{tb.Str(key)}))

	cb := ir.NewBuilder(m, classify)
	s := cb.Param("s", ir.TypeAny)
	cases := make([]ir.SwitchCase, n)
	targets := make([]ir.BlockID, n)
	for i := range cases {
		targets[i] = cb.NewBlock()
		cases[i] = ir.SwitchCase{Label: ir.String(fmt.Sprintf("k%d", i)), Target: targets[i]}
	}
	def := cb.NewBlock()
	cb.Switch(s, cases, def)
	for i, t := range targets {
		cb.SetBlock(t)
		cb.Return(cb.Num(float64(i)))
	}
	cb.SetBlock(def)
	cb.Return(cb.Num(-1))
	return m
}

// ModuleFactory builds a module factory whose require parameter is stored
// into a lexical binding on both the protected path and its handler, then
// called. With perturbed set the handler stores a global instead.
//
//	function factory(require) {
//	  let r
//	  try { r = require; detect } catch { r = require }
//	  return r("dep")
//	}
func ModuleFactory(perturbed bool) (m *ir.Module, call ir.ValueID) {
	m = ir.NewModule()
	f := m.NewFunc("factory", ir.NoScopeID)
	f.Flags |= ir.FuncModuleFactory
	r := m.AddVar(f.Scope, "r", ir.TypeAny, true)

	b := ir.NewBuilder(m, f)
	req := b.Param("require", ir.TypeAny)
	env := b.CreateScope(f.Scope, ir.NoValueID)
	b.CreateStoreVar(env, r, b.Lit(ir.Empty()))
	body := b.NewBlock()
	catch := b.NewBlock()
	join := b.NewBlock()
	b.Try(body, catch)
	b.SetHandler(body, catch)

	b.SetBlock(body)
	b.CreateStoreVar(env, r, req)
	b.CreateLoadGlobal("detect")
	b.Branch(join)

	b.SetBlock(catch)
	b.CreateCatch()
	if perturbed {
		b.CreateStoreVar(env, r, b.CreateLoadGlobal("fallback"))
	} else {
		b.CreateStoreVar(env, r, req)
	}
	b.Branch(join)

	b.SetBlock(join)
	callee := b.CreateThrowIfEmpty(b.CreateLoadVar(env, r))
	call = b.CreateCall(callee, b.Undef(), []ir.ValueID{b.Str("dep")})
	b.Return(call)
	return m, call
}

// Pipeline builds a program touching every optimization: a block scope that
// can be elided, a closure that captures more than it needs, a small callee
// to inline and constant branches.
//
//	let base = 10
//	function add(a, b) { return a + b }
//	{ let t = 2; print(t) }
//	{ function k() { return 1 } }   // captures a scope it never reads
//	return add(base, k()) + (1 < 2 ? 0 : 100)
func Pipeline() *ir.Module {
	m := ir.NewModule()
	top := m.NewFunc("main", ir.NoScopeID)
	base := m.AddVar(top.Scope, "base", ir.TypeNumber, true)
	block := m.NewScope("block", top.Scope, top.ID)
	tvar := m.AddVar(block, "t", ir.TypeNumber, true)
	inner := m.NewScope("inner", top.Scope, top.ID)
	add := m.NewFunc("add", top.Scope)
	k := m.NewFunc("k", inner)

	tb := ir.NewBuilder(m, top)
	env := tb.CreateScope(top.Scope, ir.NoValueID)
	tb.CreateStoreVar(env, base, tb.Num(10))
	addClo := tb.CreateClosure(env, add.ID)

	benv := tb.CreateScope(block, env)
	tb.CreateStoreVar(benv, tvar, tb.Num(2))
	t := tb.CreateThrowIfEmpty(tb.CreateLoadVar(benv, tvar))
	tb.CreateCallBuiltin("print", []ir.ValueID{t})

	ienv := tb.CreateScope(inner, env)
	kClo := tb.CreateClosure(ienv, k.ID)
	kv := tb.CreateCall(kClo, tb.Undef(), nil)
	bv := tb.CreateThrowIfEmpty(tb.CreateLoadVar(env, base))
	sum := tb.CreateCall(addClo, tb.Undef(), []ir.ValueID{bv, kv})

	cond := tb.CreateBinary(ir.OperatorLt, tb.Num(1), tb.Num(2))
	then := tb.NewBlock()
	els := tb.NewBlock()
	join := tb.NewBlock()
	tb.CondBranch(cond, then, els)
	tb.SetBlock(then)
	tb.Branch(join)
	tb.SetBlock(els)
	tb.Branch(join)
	tb.SetBlock(join)
	phi := tb.CreatePhi(ir.TypeNone)
	tb.AddPhiIncoming(phi, then, tb.Num(0))
	tb.AddPhiIncoming(phi, els, tb.Num(100))
	tb.Return(tb.CreateBinary(ir.OperatorAdd, sum, phi))

	ab := ir.NewBuilder(m, add)
	a := ab.Param("a", ir.TypeAny)
	bp := ab.Param("b", ir.TypeAny)
	ab.CreateScope(add.Scope, ab.CreateGetParentScope())
	ab.Return(ab.CreateBinary(ir.OperatorAdd, a, bp))

	kb := ir.NewBuilder(m, k)
	kb.CreateScope(k.Scope, kb.CreateGetParentScope())
	kb.Return(kb.Num(1))
	return m
}
