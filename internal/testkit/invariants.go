package testkit

import (
	"fmt"

	"fortio.org/safecast"

	"gale/internal/ir"
)

// CheckOptimizedInvariants runs the invariants that must still hold after
// the optimization pipeline:
// 1) the module validates
// 2) every bound-param call owns a distinct cache slot below the call count
// 3) no live instruction names an elided scope
// 4) inline guards are only set on calls that follow a closure_is check
func CheckOptimizedInvariants(m *ir.Module) error {
	if m == nil {
		return fmt.Errorf("nil module")
	}
	if err := ir.Validate(m); err != nil {
		return err
	}

	var bound []int32
	for _, f := range m.Funcs {
		guards := Count(f, ir.OpClosureIs)
		for _, v := range Instrs(f, ir.OpCall) {
			call := &f.Values[v]
			if call.Call.Flags&ir.CallBoundParam != 0 {
				bound = append(bound, call.Call.CacheSlot)
			}
			if call.Call.Flags&ir.CallInlineGuard != 0 && guards == 0 {
				return fmt.Errorf("%s: v%d is an inline fallback without a closure_is guard", f.Name, v)
			}
		}
		for bi := range f.Blocks {
			for _, v := range f.Blocks[bi].Instrs {
				if s, ok := namedScope(&f.Values[v]); ok && m.Scopes[s].Elided {
					return fmt.Errorf("%s: v%d %s names elided s%d", f.Name, v, f.Values[v].Kind, s)
				}
			}
		}
	}

	n, err := safecast.Conv[int32](len(bound))
	if err != nil {
		return fmt.Errorf("bound call count overflow: %w", err)
	}
	seen := make(map[int32]bool, len(bound))
	for _, slot := range bound {
		if slot < 0 || slot >= n {
			return fmt.Errorf("cache slot %d out of range [0, %d)", slot, n)
		}
		if seen[slot] {
			return fmt.Errorf("cache slot %d is shared", slot)
		}
		seen[slot] = true
	}
	return nil
}

func namedScope(ins *ir.Instr) (ir.ScopeID, bool) {
	switch ins.Kind {
	case ir.OpLoadVar, ir.OpStoreVar:
		return ins.Var.Scope, true
	case ir.OpCreateScope, ir.OpResolveScope, ir.OpGetClosureScope:
		return ins.Scope, true
	}
	return ir.NoScopeID, false
}

// Instrs returns the live instructions of kind op in block order.
func Instrs(f *ir.Func, op ir.Op) []ir.ValueID {
	var out []ir.ValueID
	for bi := range f.Blocks {
		for _, v := range f.Blocks[bi].Instrs {
			if f.Values[v].Kind == op {
				out = append(out, v)
			}
		}
	}
	return out
}

// Count returns the number of live instructions of kind op.
func Count(f *ir.Func, op ir.Op) int { return len(Instrs(f, op)) }
