package ir

import "slices"

// Succs returns the successors of b, including the exceptional edge to its
// handler. Duplicates are removed.
func (f *Func) Succs(b BlockID) []BlockID {
	blk := &f.Blocks[b]
	out := blk.Term.Successors()
	if blk.Handler != NoBlockID {
		out = append(out, blk.Handler)
	}
	return uniqueBlocks(out)
}

func uniqueBlocks(in []BlockID) []BlockID {
	if len(in) < 2 {
		return in
	}
	out := in[:0:0]
	for _, b := range in {
		if !slices.Contains(out, b) {
			out = append(out, b)
		}
	}
	return out
}

// Preds computes the predecessor lists of every block.
func (f *Func) Preds() [][]BlockID {
	preds := make([][]BlockID, len(f.Blocks))
	for i := range f.Blocks {
		for _, s := range f.Succs(BlockID(i)) {
			if s >= 0 && int(s) < len(f.Blocks) {
				preds[s] = append(preds[s], BlockID(i))
			}
		}
	}
	return preds
}

// Reachable marks the blocks reachable from the entry.
func (f *Func) Reachable() []bool {
	seen := make([]bool, len(f.Blocks))
	if f.Entry == NoBlockID || len(f.Blocks) == 0 {
		return seen
	}
	stack := []BlockID{f.Entry}
	seen[f.Entry] = true
	for len(stack) > 0 {
		b := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, s := range f.Succs(b) {
			if s >= 0 && int(s) < len(f.Blocks) && !seen[s] {
				seen[s] = true
				stack = append(stack, s)
			}
		}
	}
	return seen
}

// ReversePostorder lists the reachable blocks in reverse postorder.
func (f *Func) ReversePostorder() []BlockID {
	if f.Entry == NoBlockID || len(f.Blocks) == 0 {
		return nil
	}
	seen := make([]bool, len(f.Blocks))
	post := make([]BlockID, 0, len(f.Blocks))
	type frame struct {
		b     BlockID
		succs []BlockID
	}
	stack := []frame{{b: f.Entry, succs: f.Succs(f.Entry)}}
	seen[f.Entry] = true
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if len(top.succs) == 0 {
			post = append(post, top.b)
			stack = stack[:len(stack)-1]
			continue
		}
		s := top.succs[0]
		top.succs = top.succs[1:]
		if s < 0 || int(s) >= len(f.Blocks) || seen[s] {
			continue
		}
		seen[s] = true
		stack = append(stack, frame{b: s, succs: f.Succs(s)})
	}
	slices.Reverse(post)
	return post
}

// IsHandler reports whether some block routes its exceptions to b.
func (f *Func) IsHandler(b BlockID) bool {
	for i := range f.Blocks {
		if f.Blocks[i].Handler == b {
			return true
		}
		if f.Blocks[i].Term.Kind == TermTry && f.Blocks[i].Term.Try.Catch == b {
			return true
		}
	}
	return false
}
