// Package regalloc assigns physical registers to LIR functions by linear
// scan over liveness intervals.
package regalloc

import (
	"context"
	"fmt"
	"slices"

	"fortio.org/safecast"

	"gale/internal/config"
	"gale/internal/ir"
	"gale/internal/lir"
	"gale/internal/trace"
)

// Loc is where a virtual register lives: a physical register, or a spill
// slot when Reg is NoReg and Slot is set.
type Loc struct {
	Reg  lir.Reg
	Slot int
}

func (l Loc) Spilled() bool { return l.Reg == lir.NoReg && l.Slot >= 0 }

// Assignment is the result of allocating one function.
type Assignment struct {
	// Intervals are ordered by start position.
	Intervals []Interval
	// Locs is indexed by virtual register.
	Locs  []Loc
	Frame lir.Frame

	Coalesced int
	Spills    int
	Reloads   int
}

// Allocate assigns registers to f and rewrites it in place to use them.
// Spilled values move through scratch registers reserved above the
// allocatable range; list operands are staged into contiguous registers
// above those.
func Allocate(f *lir.Func, cfg config.RegAlloc) (a *Assignment, err error) {
	return AllocateContext(context.Background(), f, cfg)
}

// AllocateContext is Allocate reporting a span to the tracer in ctx.
func AllocateContext(ctx context.Context, f *lir.Func, cfg config.RegAlloc) (a *Assignment, err error) {
	defer ir.RecoverICE(&err)
	if f.Allocated {
		return nil, fmt.Errorf("regalloc %s: already allocated", f.Name)
	}
	_, span := trace.Start(ctx, trace.ScopeFunc, "regalloc "+f.Name)
	defer func() {
		if a != nil {
			span.End(fmt.Sprintf("frame=%d spills=%d", a.Frame.Size, a.Frame.SpillSlots))
		} else {
			span.End("failed")
		}
	}()

	ln := flatten(f)
	staging := 0
	for _, ins := range ln.instrs {
		staging = max(staging, len(listArgs(ins)))
	}
	scratch := lir.MaxRegOperands()
	budget := cfg.RegisterFileSize - scratch - staging
	if budget < 0 {
		return nil, fmt.Errorf("regalloc %s: register file of %d cannot stage %d call operands", f.Name, cfg.RegisterFileSize, staging)
	}

	lv := computeLiveness(f, ln)
	byReg := buildIntervals(f, ln, lv)
	s := newScan(budget, hints(ln, byReg))
	var order []*Interval
	for _, iv := range byReg {
		if iv != nil {
			order = append(order, iv)
		}
	}
	slices.SortStableFunc(order, func(x, y *Interval) int {
		if x.Start != y.Start {
			return x.Start - y.Start
		}
		return int(x.VReg - y.VReg)
	})
	for _, iv := range order {
		s.allocate(iv)
	}
	slots := assignSlots(order)

	a = &Assignment{Locs: make([]Loc, len(f.Classes))}
	for i := range a.Locs {
		a.Locs[i] = Loc{Reg: lir.NoReg, Slot: -1}
	}
	nN, nP, nG := s.pools[lir.ClassNumber].size, s.pools[lir.ClassNonPtr].size, s.pools[lir.ClassGeneral].size
	base := [3]int{}
	base[lir.ClassNumber] = 0
	base[lir.ClassNonPtr] = nN
	base[lir.ClassGeneral] = nN + nP
	for _, iv := range order {
		if id, ok := s.assigned[iv.VReg]; ok {
			r, err := safecast.Conv[int32](base[iv.Class] + id)
			if err != nil {
				return nil, fmt.Errorf("regalloc %s: %w", f.Name, err)
			}
			iv.Loc = Loc{Reg: lir.Reg(r), Slot: -1}
		}
		a.Locs[iv.VReg] = iv.Loc
		a.Intervals = append(a.Intervals, *iv)
	}

	layout := frameLayout{allocatable: nN + nP + nG}
	if slots > 0 {
		layout.scratch = scratch
	}
	layout.stagingBase = layout.allocatable + layout.scratch
	a.Frame = lir.Frame{
		Size:       layout.stagingBase + staging,
		NumberRegs: nN,
		NonPtrRegs: nP,
		SpillSlots: slots,
	}
	rewrite(f, a, layout)
	f.Frame = a.Frame
	f.Allocated = true
	if err := Verify(f, a); err != nil {
		ir.Panicf("regalloc %s: %v", f.Name, err)
	}
	return a, nil
}

// listArgs returns the operands of ins encoded as a contiguous list.
func listArgs(ins *lir.Instr) []lir.Reg {
	if !ins.Op.HasList() {
		return nil
	}
	fixed := 0
	for _, k := range lir.FormatOf(ins.Op).Operands {
		if k == lir.KReg {
			fixed++
		}
	}
	if fixed > len(ins.Args) {
		return nil
	}
	return ins.Args[fixed:]
}

// hints maps the destination of a move to its source when the source dies
// at the move, so both can share a register.
func hints(ln *linear, ivs []*Interval) map[lir.Reg]lir.Reg {
	out := make(map[lir.Reg]lir.Reg)
	for i, ins := range ln.instrs {
		if ins.Op != lir.Mov || len(ins.Args) != 1 {
			continue
		}
		d, src := ivs[ins.Dst], ivs[ins.Args[0]]
		if d == nil || src == nil || d.Class != src.Class {
			continue
		}
		if d.Start == defPos(i) && src.End == usePos(i) {
			out[ins.Dst] = ins.Args[0]
		}
	}
	return out
}

// pool hands out the registers of one class, numbered from zero.
type pool struct {
	free []bool
	size int
}

func (p *pool) take(hint int) int {
	if hint >= 0 && hint < p.size && p.free[hint] {
		p.free[hint] = false
		return hint
	}
	for i := 0; i < p.size; i++ {
		if p.free[i] {
			p.free[i] = false
			return i
		}
	}
	return -1
}

func (p *pool) grow() int {
	p.free = append(p.free, false)
	p.size++
	return p.size - 1
}

func (p *pool) release(id int) { p.free[id] = true }

type scan struct {
	pools  [3]pool
	budget int
	// active intervals with a register, in no particular order.
	active   []*Interval
	assigned map[lir.Reg]int
	hints    map[lir.Reg]lir.Reg
}

func newScan(budget int, hints map[lir.Reg]lir.Reg) *scan {
	return &scan{budget: budget, assigned: make(map[lir.Reg]int), hints: hints}
}

func (s *scan) expire(pos int) {
	kept := s.active[:0]
	for _, iv := range s.active {
		if iv.End < pos {
			s.pools[iv.Class].release(s.assigned[iv.VReg])
			continue
		}
		kept = append(kept, iv)
	}
	s.active = kept
}

func (s *scan) used() int { return s.pools[0].size + s.pools[1].size + s.pools[2].size }

func (s *scan) allocate(iv *Interval) {
	s.expire(iv.Start)
	p := &s.pools[iv.Class]
	hint := -1
	if src, ok := s.hints[iv.VReg]; ok {
		if id, ok := s.assigned[src]; ok {
			hint = id
		}
	}
	id := p.take(hint)
	if id < 0 && s.used() < s.budget {
		id = p.grow()
	}
	if id >= 0 {
		s.assigned[iv.VReg] = id
		s.active = append(s.active, iv)
		return
	}
	// Spill whichever live interval of this class ends last.
	victim := -1
	for i, a := range s.active {
		if a.Class == iv.Class && (victim < 0 || a.End > s.active[victim].End) {
			victim = i
		}
	}
	if victim < 0 || s.active[victim].End <= iv.End {
		iv.Loc.Slot = 0
		return
	}
	v := s.active[victim]
	s.assigned[iv.VReg] = s.assigned[v.VReg]
	delete(s.assigned, v.VReg)
	v.Loc.Slot = 0
	s.active[victim] = iv
}

// assignSlots colors the spilled intervals with as few slots as possible
// and returns the slot count.
func assignSlots(order []*Interval) int {
	var ends []int
	for _, iv := range order {
		if iv.Loc.Slot < 0 {
			continue
		}
		slot := -1
		for k, e := range ends {
			if e < iv.Start {
				slot = k
				break
			}
		}
		if slot < 0 {
			slot = len(ends)
			ends = append(ends, 0)
		}
		ends[slot] = iv.End
		iv.Loc.Slot = slot
	}
	return len(ends)
}
