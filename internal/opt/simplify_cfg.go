package opt

import "gale/internal/ir"

// SimplifyCFG performs control flow graph simplification on a function.
// Transformations:
// 1. Turn conditional branches with equal targets into plain branches
// 2. Collapse chains of empty branch blocks that feed no phis
// 3. Merge a block into its single predecessor
// 4. Remove unreachable blocks
// 5. Renumber blocks deterministically
func SimplifyCFG(f *ir.Func) bool {
	if f == nil || len(f.Blocks) == 0 {
		return false
	}
	changed := foldTrivialConds(f)

	// Phase 1: Build redirect map for trivial branch blocks
	redirects := buildRedirectMap(f)

	// Phase 2: Apply redirects to all terminators
	if len(redirects) > 0 {
		applyRedirects(f, redirects)
		changed = true
	}

	// Phase 3: Merge straight-line block pairs
	if mergeStraightLine(f) {
		changed = true
	}

	// Phase 4: Compute reachability and remove dead blocks
	reachable := f.Reachable()

	// Phase 5: Compact and renumber blocks
	if compactBlocks(f, reachable) {
		changed = true
	}
	return changed
}

func foldTrivialConds(f *ir.Func) bool {
	changed := false
	for i := range f.Blocks {
		t := &f.Blocks[i].Term
		if t.Kind == ir.TermCondBranch && t.CondBranch.Then == t.CondBranch.Else {
			*t = ir.Terminator{Kind: ir.TermBranch, Pos: t.Pos, Branch: ir.BranchTerm{Target: t.CondBranch.Then}}
			changed = true
		}
	}
	return changed
}

// buildRedirectMap finds all trivial branch blocks and builds a mapping
// from their IDs to their final targets (following chains).
func buildRedirectMap(f *ir.Func) map[ir.BlockID]ir.BlockID {
	redirects := make(map[ir.BlockID]ir.BlockID)
	handlers := handlerSet(f)

	for i := range f.Blocks {
		bb := &f.Blocks[i]
		if !isTrivialBranchBlock(f, handlers, bb.ID) {
			continue
		}
		target := bb.Term.Branch.Target
		// Follow chain to final target
		visited := map[ir.BlockID]bool{bb.ID: true}
		for !visited[target] {
			visited[target] = true
			if isTrivialBranchBlock(f, handlers, target) {
				target = f.Blocks[target].Term.Branch.Target
				continue
			}
			break
		}
		if target != bb.ID && !hasPhis(f, target) {
			redirects[bb.ID] = target
		}
	}
	return redirects
}

// isTrivialBranchBlock reports whether a block only forwards control.
func isTrivialBranchBlock(f *ir.Func, handlers map[ir.BlockID]bool, id ir.BlockID) bool {
	if id < 0 || int(id) >= len(f.Blocks) || id == f.Entry || handlers[id] {
		return false
	}
	bb := &f.Blocks[id]
	return len(bb.Instrs) == 0 && bb.Term.Kind == ir.TermBranch
}

func hasPhis(f *ir.Func, b ir.BlockID) bool {
	instrs := f.Blocks[b].Instrs
	return len(instrs) > 0 && f.Values[instrs[0]].Kind == ir.OpPhi
}

func handlerSet(f *ir.Func) map[ir.BlockID]bool {
	out := make(map[ir.BlockID]bool)
	for i := range f.Blocks {
		if h := f.Blocks[i].Handler; h != ir.NoBlockID {
			out[h] = true
		}
		if f.Blocks[i].Term.Kind == ir.TermTry {
			out[f.Blocks[i].Term.Try.Catch] = true
		}
	}
	return out
}

// applyRedirects updates all terminator targets according to the redirect map.
func applyRedirects(f *ir.Func, redirects map[ir.BlockID]ir.BlockID) {
	for i := range f.Blocks {
		f.Blocks[i].Term.RedirectTargets(func(t ir.BlockID) ir.BlockID {
			if r, ok := redirects[t]; ok {
				return r
			}
			return t
		})
	}
}

// mergeStraightLine folds a block into its predecessor when the predecessor
// branches only to it and it has no other predecessor.
func mergeStraightLine(f *ir.Func) bool {
	changed := false
	handlers := handlerSet(f)
	for {
		// Redirected blocks stay in the graph until compaction; their
		// edges must not count.
		reachable := f.Reachable()
		preds := livePreds(f, reachable)
		merged := false
		for i := range f.Blocks {
			a := &f.Blocks[i]
			if !reachable[i] || a.Term.Kind != ir.TermBranch {
				continue
			}
			bID := a.Term.Branch.Target
			if bID == a.ID || bID == f.Entry || handlers[bID] || len(preds[bID]) != 1 {
				continue
			}
			b := &f.Blocks[bID]
			if b.Handler != a.Handler {
				continue
			}
			for _, v := range b.Instrs {
				ins := &f.Values[v]
				if ins.Kind == ir.OpPhi {
					f.ReplaceAllUses(v, phiArgFrom(ins, a.ID))
					f.Kill(v)
					ins.Block = ir.NoBlockID
					continue
				}
				ins.Block = a.ID
				a.Instrs = append(a.Instrs, v)
			}
			a.Term = b.Term
			for _, s := range f.Succs(a.ID) {
				f.ReplacePred(s, bID, a.ID)
			}
			b.Instrs = nil
			b.Term = ir.Terminator{Kind: ir.TermUnreachable}
			merged = true
			changed = true
			break
		}
		if !merged {
			return changed
		}
	}
}

// livePreds returns the predecessors of every block, ignoring edges from
// unreachable blocks.
func livePreds(f *ir.Func, reachable []bool) [][]ir.BlockID {
	all := f.Preds()
	for b, ps := range all {
		live := ps[:0]
		for _, p := range ps {
			if reachable[p] {
				live = append(live, p)
			}
		}
		all[b] = live
	}
	return all
}

// phiArgFrom returns the incoming value of phi along the edge from pred.
func phiArgFrom(phi *ir.Instr, pred ir.BlockID) ir.ValueID {
	for k, p := range phi.PhiPreds {
		if p == pred {
			return phi.Args[k]
		}
	}
	ir.Panicf("phi v%d has no incoming edge from bb%d", phi.ID, pred)
	return ir.NoValueID
}

// compactBlocks removes unreachable blocks and renumbers the rest.
func compactBlocks(f *ir.Func, reachable []bool) bool {
	oldToNew := make([]ir.BlockID, len(f.Blocks))
	next := ir.BlockID(0)
	for i := range f.Blocks {
		if reachable[i] {
			oldToNew[i] = next
			next++
		} else {
			oldToNew[i] = ir.NoBlockID
		}
	}
	if int(next) == len(f.Blocks) {
		return false
	}

	// Drop phi edges from removed blocks before renumbering.
	for i := range f.Blocks {
		if !reachable[i] {
			continue
		}
		for k := range f.Blocks {
			if !reachable[k] {
				f.RemovePhiIncoming(ir.BlockID(i), ir.BlockID(k))
			}
		}
	}

	newBlocks := make([]ir.Block, 0, next)
	for i := range f.Blocks {
		if !reachable[i] {
			for _, v := range f.Blocks[i].Instrs {
				f.Kill(v)
				f.Values[v].Block = ir.NoBlockID
			}
			continue
		}
		bb := f.Blocks[i]
		bb.ID = oldToNew[i]
		bb.Term.RedirectTargets(func(t ir.BlockID) ir.BlockID { return oldToNew[t] })
		if bb.Handler != ir.NoBlockID {
			bb.Handler = oldToNew[bb.Handler]
		}
		for _, v := range bb.Instrs {
			ins := &f.Values[v]
			ins.Block = bb.ID
			for k, p := range ins.PhiPreds {
				ins.PhiPreds[k] = oldToNew[p]
			}
		}
		newBlocks = append(newBlocks, bb)
	}
	f.Blocks = newBlocks
	f.Entry = oldToNew[f.Entry]
	return true
}
