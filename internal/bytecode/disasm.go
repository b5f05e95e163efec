package bytecode

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"gale/internal/lir"
)

// Inst is one decoded instruction.
type Inst struct {
	Offset int
	Op     lir.Op
	Dst    int
	Regs   []int
	Imm    int32
	Num    float64
	// ID is the string, buffer or switch table operand.
	ID     uint32
	Target int32
	// First and Count describe a register list.
	First, Count int
}

// Decode splits code into instructions.
func Decode(code []byte) ([]Inst, error) {
	var out []Inst
	for pc := 0; pc < len(code); {
		op := lir.Op(code[pc])
		if int(op) >= lir.NumOps {
			return out, fmt.Errorf("offset %d: unknown opcode %d", pc, op)
		}
		size := InstrSize(op)
		if pc+size > len(code) {
			return out, fmt.Errorf("offset %d: truncated %s", pc, op)
		}
		in := Inst{Offset: pc, Op: op, Dst: -1}
		p := pc + 1
		f := lir.FormatOf(op)
		if f.Dst {
			in.Dst = int(binary.LittleEndian.Uint16(code[p:]))
			p += regSize
		}
		for _, k := range f.Operands {
			switch k {
			case lir.KReg:
				in.Regs = append(in.Regs, int(binary.LittleEndian.Uint16(code[p:])))
			case lir.KImm:
				in.Imm = int32(binary.LittleEndian.Uint32(code[p:]))
			case lir.KNum:
				in.Num = math.Float64frombits(binary.LittleEndian.Uint64(code[p:]))
			case lir.KStr, lir.KBuf, lir.KSwitch:
				in.ID = binary.LittleEndian.Uint32(code[p:])
			case lir.KTarget:
				in.Target = int32(binary.LittleEndian.Uint32(code[p:]))
			case lir.KList:
				in.First = int(binary.LittleEndian.Uint16(code[p:]))
				in.Count = int(binary.LittleEndian.Uint16(code[p+2:]))
			}
			p += operandSize(k)
		}
		out = append(out, in)
		pc += size
	}
	return out, nil
}

// FuncCode returns the code bytes of fn within img.
func (img *Image) FuncCode(fn *FuncHeader) ([]byte, error) {
	start := int(fn.Offset) - int(img.BaseCode)
	if start < 0 || start+int(fn.Length) > len(img.Code) {
		return nil, fmt.Errorf("function %d: code [%d, %d) outside the image", fn.ID, fn.Offset, fn.Offset+fn.Length)
	}
	return img.Code[start : start+int(fn.Length)], nil
}

const (
	noteColumn = 64
	maxQuoted  = 40
)

// Disassemble writes a listing of every function in img.
func Disassemble(w io.Writer, img *Image) error {
	head := color.New(color.FgCyan, color.Bold)
	fmt.Fprintf(w, "image v%d: %d functions, %d bytes, %d strings, %d literal buffers\n",
		img.Version, len(img.Functions), len(img.Code), len(img.StringTable), len(img.Literals))
	if img.IsDelta() {
		fmt.Fprintf(w, "delta over %d strings, %d buffers, %d bytes of code\n", img.BaseStrings, img.BaseLiterals, img.BaseCode)
	}
	for i := range img.Functions {
		fn := &img.Functions[i]
		name, _ := img.String(fn.Name)
		head.Fprintf(w, "\nfunction %s", name)
		fmt.Fprintf(w, " #%d params=%d frame=%d number=%d nonptr=%d spill=%d cache=%d\n",
			fn.ID, fn.ParamCount, fn.FrameSize, fn.NumberRegs, fn.NonPtrRegs, fn.SpillSlots, fn.CacheSlots)
		code, err := img.FuncCode(fn)
		if err != nil {
			return err
		}
		insts, err := Decode(code)
		for _, in := range insts {
			ops, note := img.operands(&in)
			line := fmt.Sprintf("  %04x  %-24s %s", in.Offset, in.Op, ops)
			if note != "" {
				line = runewidth.FillRight(line, noteColumn) + " ; " + note
			}
			if _, werr := fmt.Fprintln(w, line); werr != nil {
				return werr
			}
		}
		if err != nil {
			return fmt.Errorf("function %s: %w", name, err)
		}
		for _, e := range fn.Exceptions {
			fmt.Fprintf(w, "  try [%04x, %04x) -> %04x\n", e.Start, e.End, e.Handler)
		}
	}
	return nil
}

func (img *Image) operands(in *Inst) (string, string) {
	var ops []string
	var note string
	f := lir.FormatOf(in.Op)
	if f.Dst {
		ops = append(ops, "r"+strconv.Itoa(in.Dst))
	}
	ri := 0
	for _, k := range f.Operands {
		switch k {
		case lir.KReg:
			ops = append(ops, "r"+strconv.Itoa(in.Regs[ri]))
			ri++
		case lir.KImm:
			ops = append(ops, strconv.Itoa(int(in.Imm)))
		case lir.KNum:
			ops = append(ops, strconv.FormatFloat(in.Num, 'g', -1, 64))
		case lir.KStr:
			ops = append(ops, fmt.Sprintf("s%d", in.ID))
			if s, ok := img.String(in.ID); ok {
				note = runewidth.Truncate(strconv.Quote(s), maxQuoted, "...")
			}
		case lir.KBuf:
			ops = append(ops, fmt.Sprintf("buf%d", in.ID))
		case lir.KSwitch:
			ops = append(ops, fmt.Sprintf("table%d", in.ID))
			if t := int(in.ID) - int(img.BaseSwitches); t >= 0 && t < len(img.SwitchTables) {
				var cs []string
				for _, c := range img.SwitchTables[t].Cases {
					s, _ := img.String(c.String)
					cs = append(cs, fmt.Sprintf("%s:%04x", strconv.Quote(s), in.Offset+int(c.Target)))
				}
				note = runewidth.Truncate(strings.Join(cs, " "), 2*maxQuoted, "...")
			}
		case lir.KTarget:
			ops = append(ops, fmt.Sprintf("%04x", in.Offset+int(in.Target)))
		case lir.KList:
			ops = append(ops, fmt.Sprintf("r%d..+%d", in.First, in.Count))
		}
	}
	return strings.Join(ops, ", "), note
}
