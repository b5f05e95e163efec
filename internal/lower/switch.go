package lower

import (
	"gale/internal/ir"
	"gale/internal/lir"
)

// switchTerm lowers a switch to a StringSwitch jump table when every label
// is a string and there are more than StringSwitchThreshold of them, and to
// a chain of strict-equality jumps otherwise.
func (l *lowerer) switchTerm(b ir.BlockID, t *ir.SwitchTerm) {
	if len(t.Cases) == 0 {
		l.jump(l.edge(b, t.Default, false))
		return
	}
	if len(t.Cases) > l.cfg.StringSwitchThreshold && allStrings(t.Cases) {
		l.stringSwitch(b, t)
		return
	}
	if allStrings(t.Cases) {
		l.fallback("string-switch", "bb%d: %d cases, threshold %d", b, len(t.Cases), l.cfg.StringSwitchThreshold)
	}
	handler := l.out.Blocks[b].Handler
	for i, c := range t.Cases {
		last := i == len(t.Cases)-1
		val := l.reg(t.Value)
		label := l.litReg(c.Label)
		taken := l.edge(b, c.Target, true)
		var next lir.BlockID
		if last {
			next = l.edge(b, t.Default, true)
		} else {
			next = l.out.NewBlock(handler)
		}
		l.add(lir.Instr{Op: lir.JStrictEqual, Args: []lir.Reg{val, label}, Targets: []lir.BlockID{taken, next}})
		if !last {
			l.setBlock(next)
		}
	}
}

func (l *lowerer) stringSwitch(b ir.BlockID, t *ir.SwitchTerm) {
	ins := lir.Instr{Op: lir.StringSwitch, Args: []lir.Reg{l.reg(t.Value)}}
	seen := make(map[string]bool, len(t.Cases))
	for _, c := range t.Cases {
		// A repeated label can never match past its first case.
		if seen[c.Label.Str] {
			continue
		}
		seen[c.Label.Str] = true
		ins.Labels = append(ins.Labels, c.Label.Str)
		ins.Targets = append(ins.Targets, l.edge(b, c.Target, true))
	}
	ins.Targets = append(ins.Targets, l.edge(b, t.Default, true))
	l.add(ins)
}

func allStrings(cases []ir.SwitchCase) bool {
	for _, c := range cases {
		if c.Label.Kind != ir.LitString {
			return false
		}
	}
	return true
}
