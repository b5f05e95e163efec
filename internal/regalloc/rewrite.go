package regalloc

import (
	"gale/internal/ir"
	"gale/internal/lir"
)

type frameLayout struct {
	allocatable int
	scratch     int
	stagingBase int
}

// rewrite replaces virtual registers with their locations. Spilled
// operands are reloaded into scratch registers before their instruction
// and spilled results are stored back after it.
func rewrite(f *lir.Func, a *Assignment, fl frameLayout) {
	scratch := func(k int) lir.Reg { return lir.Reg(ir.ID32(fl.allocatable+k, "register")) }
	for _, b := range f.Layout {
		blk := &f.Blocks[b]
		out := make([]lir.Instr, 0, len(blk.Instrs))
		for _, ins := range blk.Instrs {
			if ins.Dead {
				ins.Dst = lir.NoReg
				ins.Args = nil
				out = append(out, ins)
				continue
			}
			list := len(ins.Args) - len(listArgs(&ins))
			args := make([]lir.Reg, len(ins.Args))
			for i, v := range ins.Args {
				loc := a.Locs[v]
				switch {
				case i >= list:
					dst := lir.Reg(ir.ID32(fl.stagingBase+i-list, "register"))
					if loc.Spilled() {
						out = append(out, reload(dst, loc.Slot, ins.Pos))
						a.Reloads++
					} else {
						out = append(out, lir.Instr{Op: lir.Mov, Dst: dst, Args: []lir.Reg{loc.Reg}, Pos: ins.Pos})
					}
					args[i] = dst
				case loc.Spilled():
					args[i] = scratch(i)
					out = append(out, reload(args[i], loc.Slot, ins.Pos))
					a.Reloads++
				default:
					args[i] = loc.Reg
				}
			}
			ins.Args = args
			var spill *lir.Instr
			if ins.Dst != lir.NoReg {
				loc := a.Locs[ins.Dst]
				if loc.Spilled() {
					ins.Dst = scratch(0)
					if ins.Op.ReadsDst() {
						// Operands hold scratch 0..list-1 while the op runs.
						ins.Dst = scratch(list)
						out = append(out, reload(ins.Dst, loc.Slot, ins.Pos))
						a.Reloads++
					}
					spill = &lir.Instr{Op: lir.Spill, Dst: lir.NoReg, Args: []lir.Reg{ins.Dst}, Imm: int64(loc.Slot), Pos: ins.Pos}
				} else {
					ins.Dst = loc.Reg
				}
			}
			if ins.Op == lir.Mov && ins.Dst == ins.Args[0] {
				a.Coalesced++
			} else {
				out = append(out, ins)
			}
			if spill != nil {
				out = append(out, *spill)
				a.Spills++
			}
		}
		blk.Instrs = out
	}
}

func reload(dst lir.Reg, slot int, pos ir.Pos) lir.Instr {
	return lir.Instr{Op: lir.Unspill, Dst: dst, Imm: int64(slot), Pos: pos}
}
