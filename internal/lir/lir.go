// Package lir is the low-level IR between lowering and bytecode emission.
// Instructions map one to one onto bytecode opcodes; operands are virtual
// registers until the register allocator rewrites them to physical ones.
package lir

import "gale/internal/ir"

// Reg is a virtual register before allocation and a physical one after.
type Reg int32

const NoReg Reg = -1

type BlockID int32

const NoBlockID BlockID = -1

// Class partitions registers by what the garbage collector must scan.
type Class uint8

const (
	ClassGeneral Class = iota
	// ClassNonPtr registers never hold heap pointers.
	ClassNonPtr
	// ClassNumber registers only hold numbers.
	ClassNumber
)

func (c Class) String() string {
	switch c {
	case ClassNonPtr:
		return "nonptr"
	case ClassNumber:
		return "number"
	}
	return "general"
}

// ClassOf maps a static type to the narrowest register class holding it.
func ClassOf(t ir.Type) Class {
	switch {
	case t.IsNumber():
		return ClassNumber
	case t.IsNonPtr():
		return ClassNonPtr
	}
	return ClassGeneral
}

// Instr is one LIR instruction. Which payload fields are meaningful is given
// by the op's Format.
type Instr struct {
	Op   Op
	Dst  Reg
	Args []Reg
	Imm  int64
	Num  float64
	Str  string
	// Buffer indexes Func.Buffers.
	Buffer int
	// Targets holds jump targets. Conditional jumps fall through to
	// Targets[1]; StringSwitch keeps the default last.
	Targets []BlockID
	// Labels are the StringSwitch case labels, parallel to Targets.
	Labels []string
	// Dead instructions stay in their block but produce no code and own
	// no register.
	Dead bool
	Pos  ir.Pos
}

type Block struct {
	ID     BlockID
	Instrs []Instr
	// Handler receives exceptions raised in the block.
	Handler BlockID
}

// Term returns the terminator, or nil for an unterminated block.
func (b *Block) Term() *Instr {
	for i := len(b.Instrs) - 1; i >= 0; i-- {
		if b.Instrs[i].Dead {
			continue
		}
		if b.Instrs[i].Op.IsTerm() {
			return &b.Instrs[i]
		}
		return nil
	}
	return nil
}

// Frame is the register layout chosen by the allocator. Number registers
// come first, then non-pointer registers, then general ones.
type Frame struct {
	Size       int
	NumberRegs int
	NonPtrRegs int
	SpillSlots int
}

// Func is one lowered function.
type Func struct {
	ID         int32
	Name       string
	ParamCount int
	Pos        ir.Pos

	// Blocks are indexed by ID; Layout is the emission order and only
	// lists live blocks.
	Blocks []Block
	Layout []BlockID

	// Classes holds the class of every virtual register.
	Classes []Class
	Buffers []Buffer
	// CacheSlots counts the call cache slots used by LoadCached.
	CacheSlots int

	Frame     Frame
	Allocated bool
}

// NewReg creates a virtual register.
func (f *Func) NewReg(c Class) Reg {
	f.Classes = append(f.Classes, c)
	return Reg(ir.ID32(len(f.Classes)-1, "register"))
}

// NewBlock creates an empty block outside the layout.
func (f *Func) NewBlock(handler BlockID) BlockID {
	id := BlockID(ir.ID32(len(f.Blocks), "block"))
	f.Blocks = append(f.Blocks, Block{ID: id, Handler: handler})
	return id
}

func (f *Func) Block(id BlockID) *Block {
	if id < 0 || int(id) >= len(f.Blocks) {
		return nil
	}
	return &f.Blocks[id]
}

// Succs returns the successors of b, the handler edge included.
func (f *Func) Succs(b BlockID) []BlockID {
	blk := &f.Blocks[b]
	var out []BlockID
	if t := blk.Term(); t != nil {
		out = append(out, t.Targets...)
	}
	if blk.Handler != NoBlockID {
		out = append(out, blk.Handler)
	}
	return out
}

// Count returns how many live instructions use op.
func (f *Func) Count(op Op) int {
	n := 0
	for _, b := range f.Layout {
		for i := range f.Blocks[b].Instrs {
			if ins := &f.Blocks[b].Instrs[i]; ins.Op == op && !ins.Dead {
				n++
			}
		}
	}
	return n
}

// Each calls fn for every live instruction in layout order.
func (f *Func) Each(fn func(b BlockID, ins *Instr)) {
	for _, b := range f.Layout {
		for i := range f.Blocks[b].Instrs {
			if ins := &f.Blocks[b].Instrs[i]; !ins.Dead {
				fn(b, ins)
			}
		}
	}
}

// BufValueKind tags one serialized literal buffer element.
type BufValueKind uint8

const (
	BufNull BufValueKind = iota
	BufTrue
	BufFalse
	BufUndefined
	BufNumber
	BufInt
	BufString
)

// BufValue is one key or value of a literal buffer. Placeholders are
// serialized as null and patched after allocation.
type BufValue struct {
	Kind BufValueKind
	Int  int64
	Num  float64
	Str  string
}

// Buffer is a pre-packed literal prefix. Array buffers have no keys.
type Buffer struct {
	Keys   []BufValue
	Values []BufValue
}

func (b *Buffer) Len() int { return len(b.Values) }
