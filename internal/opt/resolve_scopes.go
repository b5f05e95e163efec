package opt

import "gale/internal/ir"

// ResolveScopes repairs resolve_scope instructions whose target is not on
// the chain of their start environment. The target is looked up among the
// environments and closures available at the instruction; a closure is
// opened with get_closure_scope. Unrecoverable resolutions are left alone.
func ResolveScopes(m *ir.Module, f *ir.Func) bool {
	var dom *ir.DomTree
	changed := false
	for bi := range f.Blocks {
		b := ir.BlockID(bi)
		for idx := 0; idx < len(f.Blocks[bi].Instrs); idx++ {
			v := f.Blocks[bi].Instrs[idx]
			ins := &f.Values[v]
			if ins.Kind != ir.OpResolveScope {
				continue
			}
			if from := ir.StaticScope(f, ins.Args[0]); from != ir.NoScopeID {
				if _, ok := m.Hops(from, ins.Scope); ok {
					continue
				}
			}
			if dom == nil {
				dom = ir.ComputeDomTree(f)
			}
			src, ok := ir.FindScopeSource(m, f, dom, ins.Scope, b, idx)
			if !ok {
				continue
			}
			if src.Env != ir.NoValueID {
				ins.Args[0] = src.Env
				changed = true
				continue
			}
			target := ins.Scope
			pos := ins.Pos
			open := f.InsertAt(b, idx, ir.Instr{
				Kind:  ir.OpGetClosureScope,
				Type:  ir.TypeEnvironment,
				Scope: src.Captured,
				Args:  []ir.ValueID{src.Closure},
				Pos:   pos,
			})
			idx++
			f.Values[v].Args[0] = open
			if src.Captured == target {
				f.ReplaceAllUses(v, open)
				f.Remove(v)
				idx--
			}
			changed = true
		}
	}
	return changed
}
