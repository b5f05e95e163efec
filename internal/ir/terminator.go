package ir

type TermKind uint8

const (
	TermNone TermKind = iota
	TermBranch
	TermCondBranch
	TermReturn
	TermThrow
	TermUnreachable
	TermSwitch
	// TermTry enters a try region: control continues at Body, exceptions
	// raised by blocks whose Handler is Catch transfer to Catch.
	TermTry
)

var termNames = [...]string{
	TermNone:        "<none>",
	TermBranch:      "br",
	TermCondBranch:  "cond_br",
	TermReturn:      "ret",
	TermThrow:       "throw",
	TermUnreachable: "unreachable",
	TermSwitch:      "switch",
	TermTry:         "try",
}

func (k TermKind) String() string {
	if int(k) < len(termNames) {
		return termNames[k]
	}
	return "term?"
}

type Terminator struct {
	Kind TermKind
	Pos  Pos

	Branch     BranchTerm
	CondBranch CondBranchTerm
	Return     ReturnTerm
	Throw      ThrowTerm
	Switch     SwitchTerm
	Try        TryTerm
}

type BranchTerm struct {
	Target BlockID
}

type CondBranchTerm struct {
	Cond ValueID
	Then BlockID
	Else BlockID
}

type ReturnTerm struct {
	Value ValueID
}

type ThrowTerm struct {
	Value ValueID
}

type SwitchCase struct {
	Label  Literal
	Target BlockID
}

// SwitchTerm dispatches on strict equality of Value against each label in
// order; the first match wins.
type SwitchTerm struct {
	Value   ValueID
	Cases   []SwitchCase
	Default BlockID
}

type TryTerm struct {
	Body  BlockID
	Catch BlockID
}

// Operands returns the values read by the terminator.
func (t *Terminator) Operands() []ValueID {
	switch t.Kind {
	case TermCondBranch:
		return []ValueID{t.CondBranch.Cond}
	case TermReturn:
		return []ValueID{t.Return.Value}
	case TermThrow:
		return []ValueID{t.Throw.Value}
	case TermSwitch:
		return []ValueID{t.Switch.Value}
	}
	return nil
}

// ReplaceOperand rewrites every read of old into nv.
func (t *Terminator) ReplaceOperand(old, nv ValueID) {
	switch t.Kind {
	case TermCondBranch:
		if t.CondBranch.Cond == old {
			t.CondBranch.Cond = nv
		}
	case TermReturn:
		if t.Return.Value == old {
			t.Return.Value = nv
		}
	case TermThrow:
		if t.Throw.Value == old {
			t.Throw.Value = nv
		}
	case TermSwitch:
		if t.Switch.Value == old {
			t.Switch.Value = nv
		}
	}
}

// Successors returns the normal control-flow successors in a stable order.
func (t *Terminator) Successors() []BlockID {
	switch t.Kind {
	case TermBranch:
		return []BlockID{t.Branch.Target}
	case TermCondBranch:
		return []BlockID{t.CondBranch.Then, t.CondBranch.Else}
	case TermSwitch:
		out := make([]BlockID, 0, len(t.Switch.Cases)+1)
		for _, c := range t.Switch.Cases {
			out = append(out, c.Target)
		}
		return append(out, t.Switch.Default)
	case TermTry:
		return []BlockID{t.Try.Body, t.Try.Catch}
	}
	return nil
}

// RedirectTargets applies fn to every successor reference.
func (t *Terminator) RedirectTargets(fn func(BlockID) BlockID) {
	switch t.Kind {
	case TermBranch:
		t.Branch.Target = fn(t.Branch.Target)
	case TermCondBranch:
		t.CondBranch.Then = fn(t.CondBranch.Then)
		t.CondBranch.Else = fn(t.CondBranch.Else)
	case TermSwitch:
		if len(t.Switch.Cases) > 0 {
			t.Switch.Cases = append([]SwitchCase(nil), t.Switch.Cases...)
		}
		for i := range t.Switch.Cases {
			t.Switch.Cases[i].Target = fn(t.Switch.Cases[i].Target)
		}
		t.Switch.Default = fn(t.Switch.Default)
	case TermTry:
		t.Try.Body = fn(t.Try.Body)
		t.Try.Catch = fn(t.Try.Catch)
	}
}
