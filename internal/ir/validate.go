package ir

import (
	"errors"
	"fmt"
)

// Validate checks module invariants.
// Returns error if any invariant is violated.
func Validate(m *Module) error {
	if m == nil {
		return nil
	}
	var errs []error
	if err := validateScopes(m); err != nil {
		errs = append(errs, err)
	}
	for _, f := range m.Funcs {
		if f == nil {
			continue
		}
		if err := validateFunc(m, f); err != nil {
			errs = append(errs, fmt.Errorf("function %s: %w", f.Name, err))
		}
	}
	return errors.Join(errs...)
}

func validateFunc(m *Module, f *Func) error {
	var errs []error

	// 1. Check all blocks terminated
	if err := validateBlocksTerminated(f); err != nil {
		errs = append(errs, err)
	}

	// 2. Check block targets exist
	if err := validateBlockTargets(f); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	// 3. Check operands are defined and placed
	if err := validateOperands(f); err != nil {
		return errors.Join(append(errs, err)...)
	}

	// 4. Check phis against predecessors, catches at handler entry
	if err := validatePhis(f); err != nil {
		errs = append(errs, err)
	}

	// 5. Check every use is dominated by its definition
	if err := validateDominance(f); err != nil {
		errs = append(errs, err)
	}

	// 6. Check scope operations and closure captures
	if err := validateScopeOps(m, f); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// validateBlocksTerminated checks that every block ends with a terminator.
func validateBlocksTerminated(f *Func) error {
	var errs []error
	for i := range f.Blocks {
		if f.Blocks[i].Term.Kind == TermNone {
			errs = append(errs, fmt.Errorf("bb%d: unterminated block", i))
		}
	}
	return errors.Join(errs...)
}

// validateBlockTargets checks that all terminator targets exist.
func validateBlockTargets(f *Func) error {
	var errs []error
	n := BlockID(ID32(len(f.Blocks), "block"))
	if f.Entry < 0 || f.Entry >= n {
		errs = append(errs, fmt.Errorf("invalid entry bb%d", f.Entry))
	}
	for i := range f.Blocks {
		bb := &f.Blocks[i]
		for _, t := range bb.Term.Successors() {
			if t < 0 || t >= n {
				errs = append(errs, fmt.Errorf("bb%d: %s to invalid bb%d", i, bb.Term.Kind, t))
			}
		}
		if bb.Handler != NoBlockID && (bb.Handler < 0 || bb.Handler >= n) {
			errs = append(errs, fmt.Errorf("bb%d: invalid handler bb%d", i, bb.Handler))
		}
	}
	return errors.Join(errs...)
}

func validateOperands(f *Func) error {
	var errs []error
	n := ValueID(ID32(len(f.Values), "value"))
	check := func(where string, a ValueID) {
		if a < 0 || a >= n {
			errs = append(errs, fmt.Errorf("%s: undefined operand v%d", where, a))
			return
		}
		def := &f.Values[a]
		switch {
		case def.Kind == OpDead:
			errs = append(errs, fmt.Errorf("%s: operand v%d is dead", where, a))
		case !def.Kind.Floating() && def.Block == NoBlockID:
			errs = append(errs, fmt.Errorf("%s: operand v%d is detached", where, a))
		case def.Type == TypeNone:
			errs = append(errs, fmt.Errorf("%s: operand v%d has no value", where, a))
		}
	}
	for i := range f.Blocks {
		bb := &f.Blocks[i]
		for _, v := range bb.Instrs {
			if v < 0 || v >= n {
				errs = append(errs, fmt.Errorf("bb%d: invalid instruction v%d", i, v))
				continue
			}
			ins := &f.Values[v]
			if ins.Block != bb.ID {
				errs = append(errs, fmt.Errorf("bb%d: v%d claims bb%d", i, v, ins.Block))
			}
			if ins.Kind.Floating() {
				errs = append(errs, fmt.Errorf("bb%d: floating v%d placed in a block", i, v))
			}
			for _, a := range ins.Args {
				check(fmt.Sprintf("bb%d: v%d %s", i, v, ins.Kind), a)
			}
		}
		for _, a := range bb.Term.Operands() {
			check(fmt.Sprintf("bb%d: %s", i, bb.Term.Kind), a)
		}
	}
	return errors.Join(errs...)
}

func validatePhis(f *Func) error {
	var errs []error
	preds := f.Preds()
	handlers := make(map[BlockID]bool)
	for i := range f.Blocks {
		if f.Blocks[i].Handler != NoBlockID {
			handlers[f.Blocks[i].Handler] = true
		}
		if f.Blocks[i].Term.Kind == TermTry {
			handlers[f.Blocks[i].Term.Try.Catch] = true
		}
	}
	for i := range f.Blocks {
		bb := &f.Blocks[i]
		inPhis := true
		for k, v := range bb.Instrs {
			ins := &f.Values[v]
			if ins.Kind == OpCatch && (k != 0 || !handlers[bb.ID]) {
				errs = append(errs, fmt.Errorf("bb%d: catch v%d must open a handler block", i, v))
			}
			if ins.Kind != OpPhi {
				inPhis = false
				continue
			}
			if !inPhis {
				errs = append(errs, fmt.Errorf("bb%d: phi v%d after non-phi", i, v))
			}
			if handlers[bb.ID] {
				errs = append(errs, fmt.Errorf("bb%d: phi v%d in handler block", i, v))
			}
			if len(ins.Args) != len(ins.PhiPreds) {
				errs = append(errs, fmt.Errorf("bb%d: phi v%d has %d values for %d edges", i, v, len(ins.Args), len(ins.PhiPreds)))
				continue
			}
			if len(ins.PhiPreds) != len(preds[i]) {
				errs = append(errs, fmt.Errorf("bb%d: phi v%d has %d edges, block has %d preds", i, v, len(ins.PhiPreds), len(preds[i])))
			}
			seen := make(map[BlockID]bool)
			for _, p := range ins.PhiPreds {
				if seen[p] {
					errs = append(errs, fmt.Errorf("bb%d: phi v%d repeats edge from bb%d", i, v, p))
				}
				seen[p] = true
				if !containsBlock(preds[i], p) {
					errs = append(errs, fmt.Errorf("bb%d: phi v%d names non-predecessor bb%d", i, v, p))
				}
			}
		}
		if handlers[bb.ID] && (len(bb.Instrs) == 0 || f.Values[bb.Instrs[0]].Kind != OpCatch) {
			errs = append(errs, fmt.Errorf("bb%d: handler block does not start with catch", i))
		}
	}
	return errors.Join(errs...)
}

func containsBlock(list []BlockID, b BlockID) bool {
	for _, x := range list {
		if x == b {
			return true
		}
	}
	return false
}

// validateDominance checks that each definition dominates its uses. Code in
// unreachable blocks is not checked.
func validateDominance(f *Func) error {
	var errs []error
	dom := ComputeDomTree(f)
	for i := range f.Blocks {
		bid := BlockID(i)
		if !dom.Reachable(bid) {
			continue
		}
		bb := &f.Blocks[i]
		for k, v := range bb.Instrs {
			ins := &f.Values[v]
			for j := range ins.Args {
				if !dom.UseDominated(f, bid, k, j) {
					errs = append(errs, fmt.Errorf("bb%d: v%d %s uses v%d before its definition", i, v, ins.Kind, ins.Args[j]))
				}
			}
		}
		for j, a := range bb.Term.Operands() {
			if !dom.UseDominated(f, bid, len(bb.Instrs), j) {
				errs = append(errs, fmt.Errorf("bb%d: %s uses v%d before its definition", i, bb.Term.Kind, a))
			}
		}
	}
	return errors.Join(errs...)
}

func validateScopeOps(m *Module, f *Func) error {
	var errs []error
	for i := range f.Blocks {
		for _, v := range f.Blocks[i].Instrs {
			ins := &f.Values[v]
			switch ins.Kind {
			case OpCreateScope:
				want := m.RuntimeParent(ins.Scope)
				got := NoScopeID
				if len(ins.Args) > 0 {
					got = StaticScope(f, ins.Args[0])
				}
				if got != want {
					errs = append(errs, fmt.Errorf("bb%d: v%d creates s%d under s%d, expected s%d", i, v, ins.Scope, got, want))
				}
				if s := m.Scope(ins.Scope); s != nil && s.Elided {
					errs = append(errs, fmt.Errorf("bb%d: v%d creates elided s%d", i, v, ins.Scope))
				}
			case OpResolveScope:
				from := StaticScope(f, ins.Args[0])
				if from != NoScopeID {
					if _, ok := m.Hops(from, ins.Scope); !ok {
						errs = append(errs, fmt.Errorf("bb%d: v%d resolves s%d not on the chain of s%d", i, v, ins.Scope, from))
					}
				}
			case OpLoadVar, OpStoreVar:
				if m.Var(ins.Var) == nil {
					errs = append(errs, fmt.Errorf("bb%d: v%d names invalid slot s%d[%d]", i, v, ins.Var.Scope, ins.Var.Index))
					continue
				}
				if s := StaticScope(f, ins.Args[0]); s != NoScopeID && s != ins.Var.Scope {
					errs = append(errs, fmt.Errorf("bb%d: v%d accesses s%d through an environment of s%d", i, v, ins.Var.Scope, s))
				}
			case OpCreateClosure:
				callee := m.Func(ins.Func)
				if callee == nil {
					errs = append(errs, fmt.Errorf("bb%d: v%d creates closure of unknown function %d", i, v, ins.Func))
					continue
				}
				if s := StaticScope(f, ins.Args[0]); s != NoScopeID && s != callee.Parent {
					errs = append(errs, fmt.Errorf("bb%d: v%d captures s%d, %s expects s%d", i, v, s, callee.Name, callee.Parent))
				}
			}
		}
	}
	return errors.Join(errs...)
}

// validateScopes checks that parent links form a tree.
func validateScopes(m *Module) error {
	var errs []error
	for i := range m.Scopes {
		s := &m.Scopes[i]
		if s.ID != ScopeID(i) {
			errs = append(errs, fmt.Errorf("s%d: id mismatch %d", i, s.ID))
		}
		steps := 0
		for p := s.Parent; p != NoScopeID; p = m.Scopes[p].Parent {
			if p < 0 || int(p) >= len(m.Scopes) {
				errs = append(errs, fmt.Errorf("s%d: invalid parent s%d", i, p))
				break
			}
			steps++
			if p == s.ID || steps > len(m.Scopes) {
				errs = append(errs, fmt.Errorf("s%d: scope parent chain has a cycle", i))
				break
			}
		}
	}
	for _, f := range m.Funcs {
		if f.Parent != NoScopeID && m.Scope(f.Parent) == nil {
			errs = append(errs, fmt.Errorf("function %s: invalid captured scope s%d", f.Name, f.Parent))
		}
	}
	return errors.Join(errs...)
}
