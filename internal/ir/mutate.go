package ir

// Use is one read of a value. Index is the operand position; an Instr of
// NoValueID means the block terminator.
type Use struct {
	Block BlockID
	Instr ValueID
	Index int
}

// Uses indexes every operand read in the function's blocks.
func (f *Func) Uses() map[ValueID][]Use {
	uses := make(map[ValueID][]Use)
	for bi := range f.Blocks {
		blk := &f.Blocks[bi]
		for _, v := range blk.Instrs {
			for k, a := range f.Values[v].Args {
				uses[a] = append(uses[a], Use{Block: blk.ID, Instr: v, Index: k})
			}
		}
		for k, a := range blk.Term.Operands() {
			uses[a] = append(uses[a], Use{Block: blk.ID, Instr: NoValueID, Index: k})
		}
	}
	return uses
}

// UseCounts returns the number of reads of each value.
func (f *Func) UseCounts() []int {
	counts := make([]int, len(f.Values))
	for bi := range f.Blocks {
		blk := &f.Blocks[bi]
		for _, v := range blk.Instrs {
			for _, a := range f.Values[v].Args {
				if a >= 0 && int(a) < len(counts) {
					counts[a]++
				}
			}
		}
		for _, a := range blk.Term.Operands() {
			if a >= 0 && int(a) < len(counts) {
				counts[a]++
			}
		}
	}
	return counts
}

// ReplaceAllUses rewrites every read of old into nv.
func (f *Func) ReplaceAllUses(old, nv ValueID) {
	if old == nv {
		return
	}
	for bi := range f.Blocks {
		blk := &f.Blocks[bi]
		for _, v := range blk.Instrs {
			args := f.Values[v].Args
			for k := range args {
				if args[k] == old {
					args[k] = nv
				}
			}
		}
		blk.Term.ReplaceOperand(old, nv)
	}
}

// Kill turns v into a dead placeholder. The instruction keeps its slot in its
// block so later passes never see a dangling reference; it has no operands
// and no type.
func (f *Func) Kill(v ValueID) {
	ins := &f.Values[v]
	*ins = Instr{ID: ins.ID, Kind: OpDead, Block: ins.Block, Pos: ins.Pos}
}

// RemoveDead drops dead placeholders from their blocks.
func (f *Func) RemoveDead() int {
	removed := 0
	for bi := range f.Blocks {
		blk := &f.Blocks[bi]
		kept := blk.Instrs[:0]
		for _, v := range blk.Instrs {
			if f.Values[v].Kind == OpDead {
				f.Values[v].Block = NoBlockID
				removed++
				continue
			}
			kept = append(kept, v)
		}
		blk.Instrs = kept
	}
	return removed
}

// Remove detaches v from its block. Its uses must already be gone.
func (f *Func) Remove(v ValueID) {
	ins := &f.Values[v]
	if ins.Block == NoBlockID {
		return
	}
	blk := &f.Blocks[ins.Block]
	for i, id := range blk.Instrs {
		if id == v {
			blk.Instrs = append(blk.Instrs[:i], blk.Instrs[i+1:]...)
			break
		}
	}
	f.Kill(v)
	f.Values[v].Block = NoBlockID
}

// IndexOf returns the position of v in its block, or -1.
func (f *Func) IndexOf(v ValueID) int {
	ins := f.Value(v)
	if ins == nil || ins.Block == NoBlockID {
		return -1
	}
	for i, id := range f.Blocks[ins.Block].Instrs {
		if id == v {
			return i
		}
	}
	return -1
}

// InsertAt places a new instruction at position idx of block b.
func (f *Func) InsertAt(b BlockID, idx int, ins Instr) ValueID {
	ins.Block = b
	id := f.NewValue(ins)
	blk := &f.Blocks[b]
	blk.Instrs = append(blk.Instrs, NoValueID)
	copy(blk.Instrs[idx+1:], blk.Instrs[idx:])
	blk.Instrs[idx] = id
	return id
}

// InsertBefore places a new instruction right before at.
func (f *Func) InsertBefore(at ValueID, ins Instr) ValueID {
	idx := f.IndexOf(at)
	if idx < 0 {
		Panicf("%s: insert before detached v%d", f.Name, at)
	}
	return f.InsertAt(f.Values[at].Block, idx, ins)
}

// InsertAfterPhis places a new instruction after the phis of block b.
func (f *Func) InsertAfterPhis(b BlockID, ins Instr) ValueID {
	idx := 0
	for idx < len(f.Blocks[b].Instrs) && f.Values[f.Blocks[b].Instrs[idx]].Kind == OpPhi {
		idx++
	}
	return f.InsertAt(b, idx, ins)
}

// Append places a new instruction at the end of block b.
func (f *Func) Append(b BlockID, ins Instr) ValueID {
	return f.InsertAt(b, len(f.Blocks[b].Instrs), ins)
}

// Users returns the instructions that read v, terminators excluded.
func (f *Func) Users(v ValueID) []ValueID {
	var out []ValueID
	for bi := range f.Blocks {
		for _, id := range f.Blocks[bi].Instrs {
			for _, a := range f.Values[id].Args {
				if a == v {
					out = append(out, id)
					break
				}
			}
		}
	}
	return out
}

// ReplacePred rewrites phi incoming edges of block b from old to nv.
func (f *Func) ReplacePred(b, old, nv BlockID) {
	for _, v := range f.Blocks[b].Instrs {
		ins := &f.Values[v]
		if ins.Kind != OpPhi {
			break
		}
		for k, p := range ins.PhiPreds {
			if p == old {
				ins.PhiPreds[k] = nv
			}
		}
	}
}

// RemovePhiIncoming drops the incoming edge from pred in every phi of b.
func (f *Func) RemovePhiIncoming(b, pred BlockID) {
	for _, v := range f.Blocks[b].Instrs {
		ins := &f.Values[v]
		if ins.Kind != OpPhi {
			break
		}
		for k := 0; k < len(ins.PhiPreds); k++ {
			if ins.PhiPreds[k] == pred {
				ins.PhiPreds = append(ins.PhiPreds[:k], ins.PhiPreds[k+1:]...)
				ins.Args = append(ins.Args[:k], ins.Args[k+1:]...)
				k--
			}
		}
	}
}
