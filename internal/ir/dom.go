package ir

// DomTree is the dominator tree of a function's CFG.
type DomTree struct {
	Idom     []BlockID
	Children [][]BlockID
	depth    []int32
	// Order is the reverse postorder the tree was computed over.
	Order []BlockID
}

// ComputeDomTree builds the dominator tree with the iterative algorithm of
// Cooper, Harvey and Kennedy. Unreachable blocks have no immediate dominator.
func ComputeDomTree(f *Func) *DomTree {
	n := len(f.Blocks)
	d := &DomTree{
		Idom:     make([]BlockID, n),
		Children: make([][]BlockID, n),
		depth:    make([]int32, n),
	}
	for i := range d.Idom {
		d.Idom[i] = NoBlockID
	}
	if n == 0 || f.Entry == NoBlockID {
		return d
	}
	d.Order = f.ReversePostorder()
	rpoIndex := make([]int, n)
	for i := range rpoIndex {
		rpoIndex[i] = -1
	}
	for i, b := range d.Order {
		rpoIndex[b] = i
	}
	preds := f.Preds()

	intersect := func(a, b BlockID) BlockID {
		for a != b {
			for rpoIndex[a] > rpoIndex[b] {
				a = d.Idom[a]
			}
			for rpoIndex[b] > rpoIndex[a] {
				b = d.Idom[b]
			}
		}
		return a
	}

	d.Idom[f.Entry] = f.Entry
	for changed := true; changed; {
		changed = false
		for _, b := range d.Order[1:] {
			newIdom := NoBlockID
			for _, p := range preds[b] {
				if rpoIndex[p] < 0 || d.Idom[p] == NoBlockID {
					continue
				}
				if newIdom == NoBlockID {
					newIdom = p
				} else {
					newIdom = intersect(p, newIdom)
				}
			}
			if newIdom != NoBlockID && d.Idom[b] != newIdom {
				d.Idom[b] = newIdom
				changed = true
			}
		}
	}
	d.Idom[f.Entry] = NoBlockID

	for _, b := range d.Order[1:] {
		p := d.Idom[b]
		if p != NoBlockID {
			d.Children[p] = append(d.Children[p], b)
			d.depth[b] = d.depth[p] + 1
		}
	}
	return d
}

// Reachable reports whether b is reachable from the entry.
func (d *DomTree) Reachable(b BlockID) bool {
	if len(d.Order) == 0 || b < 0 || int(b) >= len(d.Idom) {
		return false
	}
	return b == d.Order[0] || d.Idom[b] != NoBlockID
}

// Dominates reports whether a dominates b. It walks b's idom chain, so the
// cost is bounded by the depth of the tree.
func (d *DomTree) Dominates(a, b BlockID) bool {
	if a == b {
		return true
	}
	if !d.Reachable(a) || !d.Reachable(b) {
		return false
	}
	for d.depth[b] > d.depth[a] {
		b = d.Idom[b]
	}
	return a == b
}

// Depth returns the distance of b from the entry in the tree.
func (d *DomTree) Depth(b BlockID) int { return int(d.depth[b]) }

// ValueDominates reports whether def is available before position idx of
// block b. idx == len(Instrs) denotes the terminator.
func (d *DomTree) ValueDominates(f *Func, def ValueID, b BlockID, idx int) bool {
	ins := f.Value(def)
	if ins == nil || ins.Kind == OpDead {
		return false
	}
	if ins.Kind.Floating() {
		return true
	}
	if ins.Block != b {
		return d.Dominates(ins.Block, b)
	}
	for i, v := range f.Blocks[b].Instrs {
		if i >= idx {
			break
		}
		if v == def {
			return true
		}
	}
	return false
}

// UseDominated checks one operand of the instruction at position idx of block
// b. Phi operands are checked at the end of the matching predecessor.
func (d *DomTree) UseDominated(f *Func, b BlockID, idx, operand int) bool {
	blk := &f.Blocks[b]
	if idx < len(blk.Instrs) {
		ins := &f.Values[blk.Instrs[idx]]
		if ins.Kind == OpPhi {
			pred := ins.PhiPreds[operand]
			if !d.Reachable(pred) {
				return true
			}
			return d.ValueDominates(f, ins.Args[operand], pred, len(f.Blocks[pred].Instrs)+1)
		}
		return d.ValueDominates(f, ins.Args[operand], b, idx)
	}
	return d.ValueDominates(f, blk.Term.Operands()[operand], b, idx)
}
