package opt

import "gale/internal/ir"

// InlineOptions bound the inliner.
type InlineOptions struct {
	// MaxSize is the largest callee, in instructions, that is inlined.
	MaxSize int
}

// Inline replaces calls of small functions by a copy of their body. A call
// whose callee is created in the caller is inlined outright. A call whose
// callee is only known to be a closure of some function, for example one
// read back from a variable, is inlined behind a closure_is check with the
// generic call on the other path. Calls introduced by inlining are not
// considered again in the same run.
func Inline(m *ir.Module, opts InlineOptions) bool {
	changed := false
	for _, f := range m.Funcs {
		var calls []ir.ValueID
		for bi := range f.Blocks {
			for _, v := range f.Blocks[bi].Instrs {
				ins := &f.Values[v]
				if ins.Kind == ir.OpCall && ins.Call.Flags&(ir.CallInlineGuard|ir.CallBoundParam) == 0 {
					calls = append(calls, v)
				}
			}
		}
		for _, c := range calls {
			if f.Values[c].Kind != ir.OpCall || f.Values[c].Block == ir.NoBlockID {
				continue
			}
			site, ok := inlineCandidate(m, f, c, opts)
			if !ok {
				continue
			}
			inlineCall(f, c, site)
			changed = true
		}
	}
	return changed
}

type inlineSite struct {
	callee *ir.Func
	// env is the environment the callee closes over when it is created
	// in the caller; speculative sites read it from the closure instead.
	env         ir.ValueID
	speculative bool
}

func inlineCandidate(m *ir.Module, f *ir.Func, c ir.ValueID, opts InlineOptions) (inlineSite, bool) {
	ins := &f.Values[c]
	calleeVal := ins.Args[0]
	for def := f.Value(calleeVal); def != nil && def.Kind == ir.OpMov; def = f.Value(calleeVal) {
		calleeVal = def.Args[0]
	}
	site := inlineSite{env: ir.NoValueID}
	if def := f.Value(calleeVal); def != nil && def.Kind == ir.OpCreateClosure {
		site.callee = m.Func(def.Func)
		site.env = def.Args[0]
	} else if fn, ok := ir.ClosureOrigin(m, f, calleeVal); ok {
		site.callee = m.Func(fn)
		site.speculative = true
	}
	g := site.callee
	if g == nil || g == f || !inlinable(m, g, opts) {
		return inlineSite{}, false
	}
	if ins.Call.Flags&ir.CallConstruct != 0 && (g.Flags.Has(ir.FuncDerived) || !g.Flags.Has(ir.FuncConstructor)) {
		return inlineSite{}, false
	}
	if usesThis(g) && !g.Flags.Has(ir.FuncStrict) && !f.TypeOf(ins.Args[1]).IsObject() {
		// A sloppy callee would see the global object for a missing receiver.
		return inlineSite{}, false
	}
	return site, true
}

func inlinable(m *ir.Module, g *ir.Func, opts InlineOptions) bool {
	if g.Flags.Has(ir.FuncDerived) || g.Flags.Has(ir.FuncModuleFactory) || len(g.Blocks) == 0 {
		return false
	}
	size := 0
	for bi := range g.Blocks {
		blk := &g.Blocks[bi]
		if blk.Handler != ir.NoBlockID || blk.Term.Kind == ir.TermTry {
			return false
		}
		for _, v := range blk.Instrs {
			ins := &g.Values[v]
			switch ins.Kind {
			case ir.OpDead:
				continue
			case ir.OpCreateClosure, ir.OpCatch, ir.OpArguments:
				return false
			case ir.OpCall:
				if fn, ok := ir.ClosureOrigin(m, g, ins.Args[0]); ok && fn == g.ID {
					return false
				}
			}
			size++
		}
	}
	return size <= opts.MaxSize
}

func usesThis(g *ir.Func) bool {
	for bi := range g.Blocks {
		for _, v := range g.Blocks[bi].Instrs {
			for _, a := range g.Values[v].Args {
				if a == g.This {
					return true
				}
			}
		}
		for _, a := range g.Blocks[bi].Term.Operands() {
			if a == g.This {
				return true
			}
		}
	}
	return false
}

type incoming struct {
	block ir.BlockID
	value ir.ValueID
}

func inlineCall(f *ir.Func, c ir.ValueID, site inlineSite) {
	g := site.callee
	call := f.Values[c]
	b := call.Block
	idx := f.IndexOf(c)
	handler := f.Blocks[b].Handler
	construct := call.Call.Flags&ir.CallConstruct != 0

	// Split the block after the call.
	cont := f.NewBlock()
	f.Blocks[cont].Handler = handler
	tail := append([]ir.ValueID(nil), f.Blocks[b].Instrs[idx+1:]...)
	f.Blocks[cont].Instrs = tail
	f.Blocks[cont].Term = f.Blocks[b].Term
	for _, v := range tail {
		f.Values[v].Block = cont
	}
	for _, s := range f.Blocks[cont].Term.Successors() {
		f.ReplacePred(s, b, cont)
	}
	f.Blocks[b].Instrs = f.Blocks[b].Instrs[:idx]
	f.Blocks[b].Term = ir.Terminator{}

	var results []incoming
	slow, slowResult := ir.NoBlockID, ir.NoValueID
	bmap := make([]ir.BlockID, len(g.Blocks))
	for i := range g.Blocks {
		bmap[i] = f.NewBlock()
		f.Blocks[bmap[i]].Handler = handler
	}
	entry := bmap[g.Entry]

	if site.speculative {
		guard := f.Append(b, ir.Instr{Kind: ir.OpClosureIs, Type: ir.TypeBoolean, Func: g.ID, Args: []ir.ValueID{call.Args[0]}, Pos: call.Pos})
		slow = f.NewBlock()
		f.Blocks[slow].Handler = handler
		generic := call
		generic.Args = append([]ir.ValueID(nil), call.Args...)
		generic.Call.Flags |= ir.CallInlineGuard
		slowResult = f.Append(slow, generic)
		f.Blocks[slow].Term = ir.Terminator{Kind: ir.TermBranch, Pos: call.Pos, Branch: ir.BranchTerm{Target: cont}}
		f.Blocks[b].Term = ir.Terminator{Kind: ir.TermCondBranch, Pos: call.Pos, CondBranch: ir.CondBranchTerm{Cond: guard, Then: entry, Else: slow}}
		results = append(results, incoming{block: slow, value: slowResult})
	} else {
		f.Blocks[b].Term = ir.Terminator{Kind: ir.TermBranch, Pos: call.Pos, Branch: ir.BranchTerm{Target: entry}}
	}

	vmap := make(map[ir.ValueID]ir.ValueID, len(g.Values))
	vmap[g.This] = call.Args[1]
	for i, p := range g.Params {
		if 2+i < len(call.Args) {
			vmap[p] = call.Args[2+i]
		} else {
			vmap[p] = f.Literal(ir.Undefined())
		}
	}
	mapValue := func(v ir.ValueID) ir.ValueID {
		if nv, ok := vmap[v]; ok {
			return nv
		}
		if l, ok := g.LiteralOf(v); ok {
			nv := f.Literal(l)
			vmap[v] = nv
			return nv
		}
		ir.Panicf("inline %s into %s: v%d has no copy", g.Name, f.Name, v)
		return ir.NoValueID
	}

	// Copy instructions first so phis may refer to later definitions.
	var copied []ir.ValueID
	for bi := range g.Blocks {
		nb := bmap[bi]
		for _, v := range g.Blocks[bi].Instrs {
			src := g.Values[v]
			if src.Kind == ir.OpDead {
				continue
			}
			if src.Kind == ir.OpGetParentScope && !site.speculative {
				vmap[v] = site.env
				continue
			}
			ni := src
			ni.Args = append([]ir.ValueID(nil), src.Args...)
			if src.Kind == ir.OpGetParentScope {
				ni.Kind = ir.OpGetClosureScope
				ni.Scope = g.Parent
				ni.Args = []ir.ValueID{call.Args[0]}
			}
			if len(src.PhiPreds) > 0 {
				ni.PhiPreds = make([]ir.BlockID, len(src.PhiPreds))
				for k, p := range src.PhiPreds {
					ni.PhiPreds[k] = bmap[p]
				}
			}
			ni.Props = append([]ir.Prop(nil), src.Props...)
			if ni.Kind == ir.OpCall {
				ni.Call.CacheSlot = -1
				ni.Call.Flags &^= ir.CallBoundParam
			}
			nv := f.Append(nb, ni)
			vmap[v] = nv
			if src.Kind != ir.OpGetParentScope {
				copied = append(copied, nv)
			}
		}
	}
	for _, nv := range copied {
		ni := &f.Values[nv]
		for k, a := range ni.Args {
			ni.Args[k] = mapValue(a)
		}
	}

	thisVal := call.Args[1]
	inlineOnlyThis := construct
	for bi := range g.Blocks {
		nb := bmap[bi]
		t := g.Blocks[bi].Term
		t.RedirectTargets(func(x ir.BlockID) ir.BlockID { return bmap[x] })
		switch t.Kind {
		case ir.TermReturn:
			rv := mapValue(t.Return.Value)
			if construct && !f.TypeOf(rv).CanBe(ir.TypeObject|ir.TypeClosure) {
				rv = thisVal
			} else {
				inlineOnlyThis = false
			}
			results = append(results, incoming{block: nb, value: rv})
			t = ir.Terminator{Kind: ir.TermBranch, Pos: t.Pos, Branch: ir.BranchTerm{Target: cont}}
		case ir.TermCondBranch:
			t.CondBranch.Cond = mapValue(t.CondBranch.Cond)
		case ir.TermThrow:
			t.Throw.Value = mapValue(t.Throw.Value)
		case ir.TermSwitch:
			t.Switch.Value = mapValue(t.Switch.Value)
		}
		f.Blocks[nb].Term = t
	}

	result := f.Literal(ir.Undefined())
	switch len(results) {
	case 0:
	case 1:
		result = results[0].value
	default:
		phi := ir.Instr{Kind: ir.OpPhi, Pos: call.Pos}
		for _, in := range results {
			phi.Args = append(phi.Args, in.value)
			phi.PhiPreds = append(phi.PhiPreds, in.block)
			phi.Type = phi.Type.Union(f.TypeOf(in.value))
		}
		result = f.InsertAt(cont, 0, phi)
	}

	f.ReplaceAllUses(c, result)
	f.Kill(c)
	f.Values[c].Block = ir.NoBlockID

	if inlineOnlyThis {
		simplifyConstructed(f, cont, thisVal, result, slow, slowResult)
	}
}

// simplifyConstructed rewrites get_constructed_object(this, result) after
// an inlined constructor whose body never returns an object. On the
// inlined path the object is this. A speculative site keeps the check on
// its generic path only, and the merge point receives this or the checked
// result.
func simplifyConstructed(f *ir.Func, cont ir.BlockID, thisVal, result ir.ValueID, slow ir.BlockID, slowResult ir.ValueID) {
	for _, v := range append([]ir.ValueID(nil), f.Blocks[cont].Instrs...) {
		ins := f.Values[v]
		if ins.Kind != ir.OpGetConstructedObject || ins.Args[0] != thisVal || ins.Args[1] != result {
			continue
		}
		if slow == ir.NoBlockID {
			f.ReplaceAllUses(v, thisVal)
			f.Remove(v)
			continue
		}
		ins.Args = []ir.ValueID{thisVal, slowResult}
		ins.Block = slow
		checked := f.Append(slow, ins)
		merged := checked
		if result != slowResult {
			phi := &f.Values[result]
			phi.Type = ir.TypeNone
			for k, p := range phi.PhiPreds {
				if p == slow {
					phi.Args[k] = checked
				}
				phi.Type = phi.Type.Union(f.TypeOf(phi.Args[k]))
			}
			merged = result
		}
		f.ReplaceAllUses(v, merged)
		f.Remove(v)
	}
}
