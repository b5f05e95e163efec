package opt

import "gale/internal/ir"

// DCE removes instructions whose results are never read and whose execution
// cannot be observed, along with dead placeholders nothing refers to.
// Guards, calls, stores and catches are kept regardless of use.
func DCE(f *ir.Func) bool {
	changed := false
	for {
		counts := f.UseCounts()
		removed := false
		for bi := range f.Blocks {
			blk := &f.Blocks[bi]
			kept := blk.Instrs[:0]
			for _, v := range blk.Instrs {
				ins := &f.Values[v]
				if counts[v] == 0 && removable(f, v) {
					// Operands of the removed instruction lose a use now so
					// chains collapse in fewer rounds.
					for _, a := range ins.Args {
						if a >= 0 && int(a) < len(counts) {
							counts[a]--
						}
					}
					f.Kill(v)
					ins.Block = ir.NoBlockID
					removed = true
					continue
				}
				kept = append(kept, v)
			}
			blk.Instrs = kept
		}
		if !removed {
			return changed
		}
		changed = true
	}
}

func removable(f *ir.Func, v ir.ValueID) bool {
	ins := &f.Values[v]
	if ins.Kind == ir.OpDead {
		return true
	}
	if ins.IsGuard() || ins.Kind == ir.OpCatch {
		return false
	}
	return !f.HasSideEffects(v)
}
