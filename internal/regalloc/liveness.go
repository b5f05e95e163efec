package regalloc

import (
	"math/bits"

	"gale/internal/lir"
)

// bitset is a dense set of virtual registers.
type bitset []uint64

func newBitset(n int) bitset { return make(bitset, (n+63)/64) }

func (s bitset) add(i lir.Reg)      { s[i/64] |= 1 << (uint(i) % 64) }
func (s bitset) remove(i lir.Reg)   { s[i/64] &^= 1 << (uint(i) % 64) }
func (s bitset) has(i lir.Reg) bool { return s[i/64]&(1<<(uint(i)%64)) != 0 }

// union adds o to s and reports whether s grew.
func (s bitset) union(o bitset) bool {
	changed := false
	for i := range s {
		if n := s[i] | o[i]; n != s[i] {
			s[i] = n
			changed = true
		}
	}
	return changed
}

func (s bitset) copyFrom(o bitset) { copy(s, o) }

func (s bitset) each(fn func(lir.Reg)) {
	for w, word := range s {
		for word != 0 {
			b := bits.TrailingZeros64(word)
			fn(lir.Reg(w*64 + b))
			word &^= 1 << uint(b)
		}
	}
}

// position numbering: the instruction at linear index i reads its operands
// at 2i and writes its result at 2i+1.
func usePos(i int) int { return 2 * i }
func defPos(i int) int { return 2*i + 1 }

// linear is the function flattened in layout order with dead instructions
// left out.
type linear struct {
	instrs []*lir.Instr
	block  []lir.BlockID
	// first and last are the linear index range of each laid-out block;
	// first > last for a block with no live instructions.
	first, last []int
}

func flatten(f *lir.Func) *linear {
	ln := &linear{
		first: make([]int, len(f.Blocks)),
		last:  make([]int, len(f.Blocks)),
	}
	for _, b := range f.Layout {
		ln.first[b] = len(ln.instrs)
		for i := range f.Blocks[b].Instrs {
			ins := &f.Blocks[b].Instrs[i]
			if ins.Dead {
				continue
			}
			ln.instrs = append(ln.instrs, ins)
			ln.block = append(ln.block, b)
		}
		ln.last[b] = len(ln.instrs) - 1
	}
	return ln
}

// liveness holds the live-in and live-out sets of every laid-out block.
type liveness struct {
	in, out []bitset
}

// computeLiveness solves the backward dataflow problem over the CFG,
// exception edges included.
func computeLiveness(f *lir.Func, ln *linear) *liveness {
	n := len(f.Classes)
	use := make([]bitset, len(f.Blocks))
	def := make([]bitset, len(f.Blocks))
	lv := &liveness{in: make([]bitset, len(f.Blocks)), out: make([]bitset, len(f.Blocks))}
	for _, b := range f.Layout {
		use[b], def[b] = newBitset(n), newBitset(n)
		lv.in[b], lv.out[b] = newBitset(n), newBitset(n)
		for i := ln.first[b]; i <= ln.last[b]; i++ {
			ins := ln.instrs[i]
			for _, a := range ins.Args {
				if !def[b].has(a) {
					use[b].add(a)
				}
			}
			if ins.Dst != lir.NoReg && ins.Op.ReadsDst() && !def[b].has(ins.Dst) {
				use[b].add(ins.Dst)
			}
			if ins.Dst != lir.NoReg {
				def[b].add(ins.Dst)
			}
		}
	}
	tmp := newBitset(n)
	for changed := true; changed; {
		changed = false
		for i := len(f.Layout) - 1; i >= 0; i-- {
			b := f.Layout[i]
			for _, s := range f.Succs(b) {
				if lv.in[s] != nil {
					lv.out[b].union(lv.in[s])
				}
			}
			tmp.copyFrom(lv.out[b])
			for w := range tmp {
				tmp[w] = tmp[w]&^def[b][w] | use[b][w]
			}
			if lv.in[b].union(tmp) {
				changed = true
			}
		}
	}
	return lv
}

// Interval is the hull of every point where a virtual register is live.
type Interval struct {
	VReg  lir.Reg
	Class lir.Class
	Start int
	End   int
	Loc   Loc
}

func (iv *Interval) overlaps(o *Interval) bool {
	return iv.Start <= o.End && o.Start <= iv.End
}

// buildIntervals folds liveness into one interval per referenced register.
// A value live into a handler stays live across every block the handler
// protects, since any instruction there may throw.
func buildIntervals(f *lir.Func, ln *linear, lv *liveness) []*Interval {
	ivs := make([]*Interval, len(f.Classes))
	extend := func(r lir.Reg, p int) {
		iv := ivs[r]
		if iv == nil {
			ivs[r] = &Interval{VReg: r, Class: f.Classes[r], Start: p, End: p, Loc: Loc{Reg: lir.NoReg, Slot: -1}}
			return
		}
		iv.Start = min(iv.Start, p)
		iv.End = max(iv.End, p)
	}
	for i, ins := range ln.instrs {
		for _, a := range ins.Args {
			extend(a, usePos(i))
		}
		if ins.Dst != lir.NoReg {
			if ins.Op.ReadsDst() {
				extend(ins.Dst, usePos(i))
			}
			extend(ins.Dst, defPos(i))
		}
	}
	for _, b := range f.Layout {
		if ln.first[b] > ln.last[b] {
			continue
		}
		start, end := usePos(ln.first[b]), defPos(ln.last[b])
		lv.in[b].each(func(r lir.Reg) { extend(r, start) })
		lv.out[b].each(func(r lir.Reg) { extend(r, end) })
		if h := f.Blocks[b].Handler; h != lir.NoBlockID && lv.in[h] != nil {
			lv.in[h].each(func(r lir.Reg) {
				extend(r, start)
				extend(r, end)
			})
		}
	}
	return ivs
}
