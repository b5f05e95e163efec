package bytecode

import (
	"encoding/binary"
	"fmt"
	"math"

	"fortio.org/safecast"

	"gale/internal/ir"
	"gale/internal/lir"
)

// Operand sizes in bytes.
const (
	regSize    = 2
	immSize    = 4
	numSize    = 8
	idSize     = 4
	targetSize = 4
	listSize   = 4
	jmpSize    = 1 + targetSize
)

// InstrSize is the encoded size of op; every op has a fixed size.
func InstrSize(op lir.Op) int {
	f := lir.FormatOf(op)
	n := 1
	if f.Dst {
		n += regSize
	}
	for _, k := range f.Operands {
		n += operandSize(k)
	}
	return n
}

func operandSize(k lir.Kind) int {
	switch k {
	case lir.KReg:
		return regSize
	case lir.KImm:
		return immSize
	case lir.KNum:
		return numSize
	case lir.KStr, lir.KBuf, lir.KSwitch:
		return idSize
	case lir.KTarget:
		return targetSize
	case lir.KList:
		return listSize
	}
	return 0
}

func u16(n int) uint16 {
	v, err := safecast.Conv[uint16](n)
	if err != nil {
		ir.Panicf("bytecode: %d does not fit a register operand: %v", n, err)
	}
	return v
}

func u32(n int) uint32 {
	v, err := safecast.Conv[uint32](n)
	if err != nil {
		ir.Panicf("bytecode: %d does not fit 32 bits: %v", n, err)
	}
	return v
}

func i32(n int64) int32 {
	v, err := safecast.Conv[int32](n)
	if err != nil {
		ir.Panicf("bytecode: immediate %d does not fit 32 bits: %v", n, err)
	}
	return v
}

// Emitter accumulates functions into one image. With a base image it
// produces a delta that reuses the base strings and literal buffers.
type Emitter struct {
	img      *Image
	strs     *stringTable
	lits     *literalTable
	debug    bool
	finished bool
}

// NewEmitter creates an emitter. base may be nil; a delta base must be
// merged with its own base first.
func NewEmitter(base *Image) (*Emitter, error) {
	img := &Image{Version: Version}
	if base != nil {
		if base.IsDelta() {
			return nil, fmt.Errorf("emit: base image is itself a delta")
		}
		img.BaseStrings = u32(len(base.StringTable))
		img.BaseLiterals = u32(len(base.Literals))
		img.BaseSwitches = u32(len(base.SwitchTables))
		img.BaseCode = u32(len(base.Code))
	}
	return &Emitter{
		img:   img,
		strs:  newStringTable(img, base),
		lits:  newLiteralTable(img, base),
		debug: true,
	}, nil
}

// SetDebugInfo turns the position table on or off.
func (e *Emitter) SetDebugInfo(on bool) { e.debug = on }

// AddFunction encodes one allocated function after the previous ones.
func (e *Emitter) AddFunction(f *lir.Func) (err error) {
	defer ir.RecoverICE(&err)
	if e.finished {
		return fmt.Errorf("emit %s: emitter already finished", f.Name)
	}
	if !f.Allocated {
		return fmt.Errorf("emit %s: registers are not allocated", f.Name)
	}
	if err := checkStrings(f); err != nil {
		return err
	}
	fe := &funcEmitter{e: e, f: f, offsets: make([]int, len(f.Blocks))}
	fe.layout()
	code := fe.encode()

	img := e.img
	start := int(img.BaseCode) + len(img.Code)
	img.Code = append(img.Code, code...)
	img.Functions = append(img.Functions, FuncHeader{
		ID:         u32(int(f.ID)),
		Name:       e.strs.intern(f.Name),
		ParamCount: u32(f.ParamCount),
		FrameSize:  u32(f.Frame.Size),
		NumberRegs: u32(f.Frame.NumberRegs),
		NonPtrRegs: u32(f.Frame.NonPtrRegs),
		SpillSlots: u32(f.Frame.SpillSlots),
		CacheSlots: u32(f.CacheSlots),
		Offset:     u32(start),
		Length:     u32(len(code)),
		Exceptions: fe.exceptions(len(code)),
	})
	for _, d := range fe.debug {
		d.Offset += u32(start)
		img.Debug = append(img.Debug, d)
	}
	return nil
}

// Finish returns the image. The emitter accepts no functions afterwards.
func (e *Emitter) Finish() *Image {
	e.finished = true
	return e.img
}

type funcEmitter struct {
	e *Emitter
	f *lir.Func
	// offsets holds the code offset of every laid-out block.
	offsets []int
	buffers map[int]uint32
	debug   []DebugEntry
	lastPos ir.Pos
}

// next returns the block laid out after position k.
func (fe *funcEmitter) next(k int) lir.BlockID {
	if k+1 < len(fe.f.Layout) {
		return fe.f.Layout[k+1]
	}
	return lir.NoBlockID
}

// elided reports whether ins is a jump to the block that follows anyway.
func elided(ins *lir.Instr, next lir.BlockID) bool {
	return ins.Op == lir.Jmp && ins.Targets[0] == next
}

// layout sizes every block and records its offset.
func (fe *funcEmitter) layout() {
	pc := 0
	for k, b := range fe.f.Layout {
		fe.offsets[b] = pc
		next := fe.next(k)
		for i := range fe.f.Blocks[b].Instrs {
			ins := &fe.f.Blocks[b].Instrs[i]
			if ins.Dead || elided(ins, next) {
				continue
			}
			pc += InstrSize(ins.Op)
			if ins.Op.Conditional() && ins.Targets[1] != next {
				pc += jmpSize
			}
		}
	}
}

func (fe *funcEmitter) encode() []byte {
	var out []byte
	for k, b := range fe.f.Layout {
		next := fe.next(k)
		for i := range fe.f.Blocks[b].Instrs {
			ins := &fe.f.Blocks[b].Instrs[i]
			if ins.Dead || elided(ins, next) {
				continue
			}
			fe.position(len(out), ins.Pos)
			out = fe.instr(out, ins)
			if ins.Op.Conditional() && ins.Targets[1] != next {
				at := len(out)
				out = append(out, byte(lir.Jmp))
				out = binary.LittleEndian.AppendUint32(out, uint32(fe.rel(at, ins.Targets[1])))
			}
		}
	}
	return out
}

func (fe *funcEmitter) position(pc int, p ir.Pos) {
	if !fe.e.debug || p == (ir.Pos{}) || p == fe.lastPos {
		return
	}
	fe.lastPos = p
	fe.debug = append(fe.debug, DebugEntry{Offset: u32(pc), Line: p.Line, Col: p.Col})
}

func (fe *funcEmitter) rel(at int, target lir.BlockID) int32 {
	if target < 0 || int(target) >= len(fe.offsets) {
		ir.Panicf("emit %s: jump to missing block L%d", fe.f.Name, target)
	}
	return int32(fe.offsets[target] - at)
}

func (fe *funcEmitter) instr(out []byte, ins *lir.Instr) []byte {
	at := len(out)
	out = append(out, byte(ins.Op))
	f := lir.FormatOf(ins.Op)
	putReg := func(r lir.Reg) {
		if r < 0 || int(r) >= fe.f.Frame.Size {
			ir.Panicf("emit %s: %s uses r%d outside a frame of %d", fe.f.Name, ins.Op, r, fe.f.Frame.Size)
		}
		out = binary.LittleEndian.AppendUint16(out, u16(int(r)))
	}
	if f.Dst {
		putReg(ins.Dst)
	}
	ai := 0
	for _, k := range f.Operands {
		switch k {
		case lir.KReg:
			if ai >= len(ins.Args) {
				ir.Panicf("emit %s: %s lacks operand %d", fe.f.Name, ins.Op, ai)
			}
			putReg(ins.Args[ai])
			ai++
		case lir.KImm:
			out = binary.LittleEndian.AppendUint32(out, uint32(i32(ins.Imm)))
		case lir.KNum:
			out = binary.LittleEndian.AppendUint64(out, math.Float64bits(ins.Num))
		case lir.KStr:
			out = binary.LittleEndian.AppendUint32(out, fe.e.strs.intern(ins.Str))
		case lir.KBuf:
			out = binary.LittleEndian.AppendUint32(out, fe.buffer(ins.Buffer))
		case lir.KSwitch:
			out = binary.LittleEndian.AppendUint32(out, fe.switchTable(at, ins))
		case lir.KTarget:
			t := ins.Targets[len(ins.Targets)-1]
			if ins.Op.Conditional() {
				t = ins.Targets[0]
			}
			out = binary.LittleEndian.AppendUint32(out, uint32(fe.rel(at, t)))
		case lir.KList:
			list := ins.Args[ai:]
			first := 0
			if len(list) > 0 {
				first = int(list[0])
			}
			for i, r := range list {
				if int(r) != first+i || int(r) >= fe.f.Frame.Size {
					ir.Panicf("emit %s: %s operands %v are not contiguous in the frame", fe.f.Name, ins.Op, list)
				}
			}
			out = binary.LittleEndian.AppendUint16(out, u16(first))
			out = binary.LittleEndian.AppendUint16(out, u16(len(list)))
			ai = len(ins.Args)
		}
	}
	return out
}

func (fe *funcEmitter) buffer(i int) uint32 {
	if id, ok := fe.buffers[i]; ok {
		return id
	}
	if i < 0 || i >= len(fe.f.Buffers) {
		ir.Panicf("emit %s: missing literal buffer %d", fe.f.Name, i)
	}
	b := &fe.f.Buffers[i]
	var keys []byte
	if b.Keys != nil {
		keys = fe.e.strs.serialize(b.Keys)
	}
	id := fe.e.lits.add(keys, fe.e.strs.serialize(b.Values), b.Keys == nil, b.Len())
	if fe.buffers == nil {
		fe.buffers = make(map[int]uint32)
	}
	fe.buffers[i] = id
	return id
}

func (fe *funcEmitter) switchTable(at int, ins *lir.Instr) uint32 {
	img := fe.e.img
	t := SwitchTable{Cases: make([]SwitchCase, len(ins.Labels))}
	for i, l := range ins.Labels {
		t.Cases[i] = SwitchCase{String: fe.e.strs.intern(l), Target: fe.rel(at, ins.Targets[i])}
	}
	id := img.BaseSwitches + u32(len(img.SwitchTables))
	img.SwitchTables = append(img.SwitchTables, t)
	return id
}

// exceptions builds the handler ranges of the function, merging adjacent
// blocks protected by the same handler.
func (fe *funcEmitter) exceptions(size int) []ExceptionEntry {
	var out []ExceptionEntry
	for k, b := range fe.f.Layout {
		h := fe.f.Blocks[b].Handler
		if h == lir.NoBlockID {
			continue
		}
		start, end := fe.offsets[b], size
		if n := fe.next(k); n != lir.NoBlockID {
			end = fe.offsets[n]
		}
		if start == end {
			continue
		}
		handler := u32(fe.offsets[h])
		if last := len(out) - 1; last >= 0 && out[last].End == u32(start) && out[last].Handler == handler {
			out[last].End = u32(end)
			continue
		}
		out = append(out, ExceptionEntry{Start: u32(start), End: u32(end), Handler: handler})
	}
	return out
}
