package ir

import (
	"fmt"
	"io"
	"strings"
)

// DumpOptions configures module dumping.
type DumpOptions struct {
	// Types appends the static type of each value.
	Types bool
}

// DumpModule writes a human-readable representation of a module.
func DumpModule(w io.Writer, m *Module, opts DumpOptions) error {
	if w == nil || m == nil {
		return nil
	}
	fmt.Fprintf(w, "scopes=%d\n", len(m.Scopes))
	for i := range m.Scopes {
		s := &m.Scopes[i]
		flags := ""
		if s.Elided {
			flags = " elided"
		}
		fmt.Fprintf(w, "  s%d %s parent=s%d owner=f%d%s\n", s.ID, s.Name, s.Parent, s.Owner, flags)
		for j, v := range s.Vars {
			var marks []string
			if v.Captured {
				marks = append(marks, "captured")
			}
			if v.Lexical {
				marks = append(marks, "lexical")
			}
			mark := ""
			if len(marks) > 0 {
				mark = " [" + strings.Join(marks, ",") + "]"
			}
			fmt.Fprintf(w, "    %d: %s %s%s\n", j, v.Name, v.Type, mark)
		}
	}
	fmt.Fprintf(w, "funcs=%d\n", len(m.Funcs))
	for _, f := range m.Funcs {
		if err := DumpFunc(w, f, opts); err != nil {
			return err
		}
	}
	return nil
}

// DumpFunc writes one function.
func DumpFunc(w io.Writer, f *Func, opts DumpOptions) error {
	if w == nil || f == nil {
		return nil
	}
	params := make([]string, 0, len(f.Params))
	for _, p := range f.Params {
		params = append(params, fmt.Sprintf("v%d %s", p, f.Values[p].Name))
	}
	fmt.Fprintf(w, "\nfn f%d %s(%s) scope=s%d parent=s%d%s:\n", f.ID, f.Name, strings.Join(params, ", "), f.Scope, f.Parent, formatFuncFlags(f.Flags))
	for i := range f.Blocks {
		bb := &f.Blocks[i]
		if bb.Handler != NoBlockID {
			fmt.Fprintf(w, "  bb%d: handler=bb%d\n", bb.ID, bb.Handler)
		} else {
			fmt.Fprintf(w, "  bb%d:\n", bb.ID)
		}
		for _, v := range bb.Instrs {
			fmt.Fprintf(w, "    %s\n", FormatInstr(f, v, opts))
		}
		fmt.Fprintf(w, "    %s\n", formatTerm(f, &bb.Term))
	}
	return nil
}

func formatFuncFlags(fl FuncFlags) string {
	var parts []string
	names := []struct {
		bit  FuncFlags
		name string
	}{
		{FuncAllCallsKnown, "known"},
		{FuncUnreachable, "unreachable"},
		{FuncConstructor, "ctor"},
		{FuncDerived, "derived"},
		{FuncModuleFactory, "factory"},
		{FuncStrict, "strict"},
	}
	for _, n := range names {
		if fl.Has(n.bit) {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return " [" + strings.Join(parts, ",") + "]"
}

func operand(f *Func, v ValueID) string {
	if ins := f.Value(v); ins != nil {
		switch ins.Kind {
		case OpLiteral:
			return ins.Lit.String()
		case OpThis:
			return "this"
		}
	}
	return fmt.Sprintf("v%d", v)
}

func operands(f *Func, vs []ValueID) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = operand(f, v)
	}
	return strings.Join(parts, ", ")
}

// FormatInstr renders the instruction defining v.
func FormatInstr(f *Func, v ValueID, opts DumpOptions) string {
	ins := f.Value(v)
	if ins == nil {
		return "<instr?>"
	}
	var body string
	switch ins.Kind {
	case OpDead:
		return fmt.Sprintf("v%d = dead", v)
	case OpPhi:
		parts := make([]string, len(ins.Args))
		for i, a := range ins.Args {
			parts[i] = fmt.Sprintf("bb%d: %s", ins.PhiPreds[i], operand(f, a))
		}
		body = "phi [" + strings.Join(parts, ", ") + "]"
	case OpUnary, OpBinary:
		body = fmt.Sprintf("%s %s %s", ins.Kind, ins.Operator, operands(f, ins.Args))
	case OpCreateScope, OpResolveScope, OpGetClosureScope, OpGetParentScope:
		body = fmt.Sprintf("%s s%d", ins.Kind, ins.Scope)
		if len(ins.Args) > 0 {
			body += " " + operands(f, ins.Args)
		}
	case OpLoadVar, OpStoreVar:
		body = fmt.Sprintf("%s s%d[%d] %s", ins.Kind, ins.Var.Scope, ins.Var.Index, operands(f, ins.Args))
	case OpCreateClosure, OpClosureIs:
		body = fmt.Sprintf("%s f%d %s", ins.Kind, ins.Func, operands(f, ins.Args))
	case OpCall:
		body = fmt.Sprintf("call %s(%s)", operand(f, ins.Args[0]), operands(f, ins.Args[1:]))
		if ins.Call.Flags&CallConstruct != 0 {
			body = "new " + body
		}
		if ins.Call.Flags&CallBoundParam != 0 {
			body += fmt.Sprintf(" bound=f%d.p%d cache=%d", ins.Call.Bound.Func, ins.Call.Bound.Param, ins.Call.CacheSlot)
		}
	case OpLoadGlobal, OpStoreGlobal, OpCallBuiltin:
		body = fmt.Sprintf("%s %q %s", ins.Kind, ins.Name, operands(f, ins.Args))
	case OpAllocObjectLiteral:
		parts := make([]string, len(ins.Props))
		for i, p := range ins.Props {
			key := p.Key.String()
			if p.KeyArg >= 0 {
				key = "[" + operand(f, ins.Args[p.KeyArg]) + "]"
			}
			switch p.Kind {
			case PropGetter:
				key = "get " + key
			case PropSetter:
				key = "set " + key
			}
			parts[i] = key + ": " + operand(f, ins.Args[p.ValueArg])
		}
		body = "object {" + strings.Join(parts, ", ") + "}"
	case OpAllocArrayLiteral:
		body = "array [" + operands(f, ins.Args) + "]"
	default:
		body = ins.Kind.String()
		if len(ins.Args) > 0 {
			body += " " + operands(f, ins.Args)
		}
	}
	if opts.Types && ins.Type != TypeNone {
		body += " : " + ins.Type.String()
	}
	if ins.Type == TypeNone {
		return body
	}
	return fmt.Sprintf("v%d = %s", v, body)
}

func formatTerm(f *Func, t *Terminator) string {
	switch t.Kind {
	case TermBranch:
		return fmt.Sprintf("br bb%d", t.Branch.Target)
	case TermCondBranch:
		return fmt.Sprintf("cond_br %s, bb%d, bb%d", operand(f, t.CondBranch.Cond), t.CondBranch.Then, t.CondBranch.Else)
	case TermReturn:
		return "ret " + operand(f, t.Return.Value)
	case TermThrow:
		return "throw " + operand(f, t.Throw.Value)
	case TermSwitch:
		parts := make([]string, 0, len(t.Switch.Cases)+1)
		for _, c := range t.Switch.Cases {
			parts = append(parts, fmt.Sprintf("%s: bb%d", c.Label, c.Target))
		}
		parts = append(parts, fmt.Sprintf("default: bb%d", t.Switch.Default))
		return fmt.Sprintf("switch %s [%s]", operand(f, t.Switch.Value), strings.Join(parts, ", "))
	case TermTry:
		return fmt.Sprintf("try bb%d catch bb%d", t.Try.Body, t.Try.Catch)
	}
	return t.Kind.String()
}
