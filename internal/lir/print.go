package lir

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Dump writes a readable listing of f in layout order.
func Dump(w io.Writer, f *Func) error {
	if w == nil || f == nil {
		return nil
	}
	prefix := "v"
	if f.Allocated {
		prefix = "r"
	}
	if _, err := fmt.Fprintf(w, "lir %s params=%d regs=%d\n", f.Name, f.ParamCount, len(f.Classes)); err != nil {
		return err
	}
	if f.Allocated {
		fmt.Fprintf(w, "  frame size=%d number=%d nonptr=%d spill=%d\n",
			f.Frame.Size, f.Frame.NumberRegs, f.Frame.NonPtrRegs, f.Frame.SpillSlots)
	}
	for _, b := range f.Layout {
		blk := &f.Blocks[b]
		hdr := fmt.Sprintf("L%d:", b)
		if blk.Handler != NoBlockID {
			hdr += fmt.Sprintf(" handler=L%d", blk.Handler)
		}
		if _, err := fmt.Fprintln(w, hdr); err != nil {
			return err
		}
		for i := range blk.Instrs {
			if _, err := fmt.Fprintf(w, "  %s\n", FormatInstr(&blk.Instrs[i], prefix)); err != nil {
				return err
			}
		}
	}
	return nil
}

// FormatInstr renders one instruction; prefix names registers.
func FormatInstr(ins *Instr, prefix string) string {
	var sb strings.Builder
	if ins.Dead {
		sb.WriteString("dead ")
	}
	f := FormatOf(ins.Op)
	if f.Dst && ins.Dst != NoReg {
		fmt.Fprintf(&sb, "%s%d = ", prefix, ins.Dst)
	}
	sb.WriteString(f.Name)
	var ops []string
	ai, ti := 0, 0
	reg := func(r Reg) string { return prefix + strconv.Itoa(int(r)) }
	for _, k := range f.Operands {
		switch k {
		case KReg:
			if ai < len(ins.Args) {
				ops = append(ops, reg(ins.Args[ai]))
				ai++
			}
		case KList:
			var l []string
			for ; ai < len(ins.Args); ai++ {
				l = append(l, reg(ins.Args[ai]))
			}
			ops = append(ops, "("+strings.Join(l, ", ")+")")
		case KImm:
			ops = append(ops, strconv.FormatInt(ins.Imm, 10))
		case KNum:
			ops = append(ops, strconv.FormatFloat(ins.Num, 'g', -1, 64))
		case KStr:
			ops = append(ops, strconv.Quote(ins.Str))
		case KBuf:
			ops = append(ops, fmt.Sprintf("buf%d", ins.Buffer))
		case KSwitch:
			var cs []string
			for i, l := range ins.Labels {
				cs = append(cs, fmt.Sprintf("%q:L%d", l, ins.Targets[i]))
			}
			ops = append(ops, "{"+strings.Join(cs, ", ")+"}")
		case KTarget:
			if len(ins.Targets) > 0 {
				ti = len(ins.Targets) - 1
				if ins.Op.Conditional() {
					ti = 0
				}
				ops = append(ops, fmt.Sprintf("L%d", ins.Targets[ti]))
			}
		}
	}
	if ins.Op.Conditional() && len(ins.Targets) > 1 {
		ops = append(ops, fmt.Sprintf("else L%d", ins.Targets[1]))
	}
	if len(ops) > 0 {
		sb.WriteString(" ")
		sb.WriteString(strings.Join(ops, ", "))
	}
	return sb.String()
}

// Check verifies the structural rules every consumer relies on: live blocks
// end in exactly one terminator, targets exist and virtual registers are
// declared.
func Check(f *Func) error {
	var errs []error
	inLayout := make([]bool, len(f.Blocks))
	for _, b := range f.Layout {
		if b < 0 || int(b) >= len(f.Blocks) {
			errs = append(errs, fmt.Errorf("layout names missing block L%d", b))
			continue
		}
		inLayout[b] = true
	}
	for _, b := range f.Layout {
		if !inLayout[b] {
			continue
		}
		blk := &f.Blocks[b]
		if blk.Term() == nil {
			errs = append(errs, fmt.Errorf("L%d: missing terminator", b))
		}
		for i := range blk.Instrs {
			ins := &blk.Instrs[i]
			if ins.Dead {
				continue
			}
			if ins.Op.IsTerm() && i != len(blk.Instrs)-1 {
				errs = append(errs, fmt.Errorf("L%d: %s before the end of the block", b, ins.Op))
			}
			for _, t := range ins.Targets {
				if t < 0 || int(t) >= len(f.Blocks) || !inLayout[t] {
					errs = append(errs, fmt.Errorf("L%d: %s targets unknown block L%d", b, ins.Op, t))
				}
			}
			if f.Allocated {
				continue
			}
			for _, a := range ins.Args {
				if a < 0 || int(a) >= len(f.Classes) {
					errs = append(errs, fmt.Errorf("L%d: %s reads undeclared v%d", b, ins.Op, a))
				}
			}
			if FormatOf(ins.Op).Dst && (ins.Dst < 0 || int(ins.Dst) >= len(f.Classes)) {
				errs = append(errs, fmt.Errorf("L%d: %s writes undeclared v%d", b, ins.Op, ins.Dst))
			}
		}
		if blk.Handler != NoBlockID && (int(blk.Handler) >= len(f.Blocks) || !inLayout[blk.Handler]) {
			errs = append(errs, fmt.Errorf("L%d: handler L%d is not laid out", b, blk.Handler))
		}
	}
	return errors.Join(errs...)
}
