package regalloc

import (
	"errors"
	"fmt"
	"slices"

	"gale/internal/lir"
)

// Verify checks an allocated function against its assignment: no two
// simultaneously live values share a register or a spill slot, and every
// register operand lies inside the frame.
func Verify(f *lir.Func, a *Assignment) error {
	var errs []error
	ivs := slices.Clone(a.Intervals)
	slices.SortFunc(ivs, func(x, y Interval) int { return x.Start - y.Start })
	for i := range ivs {
		x := &ivs[i]
		for j := i + 1; j < len(ivs) && ivs[j].Start <= x.End; j++ {
			y := &ivs[j]
			if !x.overlaps(y) {
				continue
			}
			switch {
			case x.Loc.Reg != lir.NoReg && x.Loc.Reg == y.Loc.Reg:
				errs = append(errs, fmt.Errorf("v%d and v%d overlap in r%d", x.VReg, y.VReg, x.Loc.Reg))
			case x.Loc.Spilled() && y.Loc.Spilled() && x.Loc.Slot == y.Loc.Slot:
				errs = append(errs, fmt.Errorf("v%d and v%d overlap in slot %d", x.VReg, y.VReg, x.Loc.Slot))
			}
		}
		if x.Loc.Reg == lir.NoReg && !x.Loc.Spilled() {
			errs = append(errs, fmt.Errorf("v%d has no location", x.VReg))
		}
		if x.Loc.Reg != lir.NoReg && !inClass(a.Frame, x.Class, x.Loc.Reg) {
			errs = append(errs, fmt.Errorf("v%d of class %s is in r%d", x.VReg, x.Class, x.Loc.Reg))
		}
	}
	if !f.Allocated {
		return errors.Join(errs...)
	}
	for _, b := range f.Layout {
		for i := range f.Blocks[b].Instrs {
			ins := &f.Blocks[b].Instrs[i]
			if ins.Dead {
				continue
			}
			for _, r := range ins.Args {
				if r < 0 || int(r) >= f.Frame.Size {
					errs = append(errs, fmt.Errorf("L%d: %s reads r%d outside a frame of %d", b, ins.Op, r, f.Frame.Size))
				}
			}
			if ins.Dst != lir.NoReg && int(ins.Dst) >= f.Frame.Size {
				errs = append(errs, fmt.Errorf("L%d: %s writes r%d outside a frame of %d", b, ins.Op, ins.Dst, f.Frame.Size))
			}
			if (ins.Op == lir.Spill || ins.Op == lir.Unspill) && (ins.Imm < 0 || ins.Imm >= int64(f.Frame.SpillSlots)) {
				errs = append(errs, fmt.Errorf("L%d: %s uses slot %d of %d", b, ins.Op, ins.Imm, f.Frame.SpillSlots))
			}
		}
	}
	return errors.Join(errs...)
}

func inClass(fr lir.Frame, c lir.Class, r lir.Reg) bool {
	n := int(r)
	switch c {
	case lir.ClassNumber:
		return n < fr.NumberRegs
	case lir.ClassNonPtr:
		return n >= fr.NumberRegs && n < fr.NumberRegs+fr.NonPtrRegs
	}
	return n >= fr.NumberRegs+fr.NonPtrRegs && n < fr.Size
}
