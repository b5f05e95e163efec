// Package lower selects LIR instructions for optimized IR functions.
package lower

import (
	"context"
	"fmt"
	"math"

	"gale/internal/config"
	"gale/internal/ir"
	"gale/internal/lir"
	"gale/internal/trace"
)

// Lower translates f into LIR. Phis become parallel copies on their incoming
// edges, with critical edges split first. Constructs that cannot be
// specialized take the generic path and are reported as trace points.
func Lower(ctx context.Context, m *ir.Module, f *ir.Func, cfg config.Lowering) (out *lir.Func, err error) {
	defer ir.RecoverICE(&err)
	ctx, span := trace.Start(ctx, trace.ScopeFunc, "lower "+f.Name)
	defer func() { span.End(fmt.Sprintf("blocks=%d", len(f.Blocks))) }()

	l := &lowerer{
		m:      m,
		f:      f,
		cfg:    cfg,
		ctx:    ctx,
		out: &lir.Func{
			ID:         int32(f.ID),
			Name:       f.Name,
			ParamCount: len(f.Params),
			Pos:        f.Pos,
		},
		regs:  make([]lir.Reg, len(f.Values)),
		uses:  f.UseCounts(),
		split: make(map[[2]ir.BlockID]lir.BlockID),
	}
	for i := range l.regs {
		l.regs[i] = lir.NoReg
	}
	l.escapes = escapingArguments(f)
	l.run()
	if err := lir.Check(l.out); err != nil {
		return nil, fmt.Errorf("lower %s: %w", f.Name, err)
	}
	return l.out, nil
}

type lowerer struct {
	m      *ir.Module
	f      *ir.Func
	cfg    config.Lowering
	out    *lir.Func
	// ctx carries the lowering span that fallbacks are reported under.
	ctx context.Context

	regs []lir.Reg
	uses []int
	// escapes marks arguments objects that must be materialized.
	escapes map[ir.ValueID]bool

	cur  lir.BlockID
	pos  ir.Pos
	lits map[litKey]lir.Reg

	split   map[[2]ir.BlockID]lir.BlockID
	pending []pendingEdge
}

type pendingEdge struct {
	block    lir.BlockID
	from, to ir.BlockID
}

type litKey struct {
	kind ir.LiteralKind
	bits uint64
	str  string
}

func keyOf(l ir.Literal) litKey {
	k := litKey{kind: l.Kind, str: l.Str}
	switch l.Kind {
	case ir.LitNumber:
		k.bits = math.Float64bits(l.Num)
	case ir.LitBool:
		if l.Bool {
			k.bits = 1
		}
	}
	return k
}

func (l *lowerer) run() {
	f := l.f
	for range f.Blocks {
		l.out.NewBlock(lir.NoBlockID)
	}
	for i := range f.Blocks {
		l.out.Blocks[i].Handler = lir.BlockID(f.Blocks[i].Handler)
	}
	if f.Entry == ir.NoBlockID {
		ir.Panicf("lower %s: no entry block", f.Name)
	}

	prologue := l.out.NewBlock(lir.NoBlockID)
	l.setBlock(prologue)
	l.loadParams()
	l.add(lir.Instr{Op: lir.Jmp, Targets: []lir.BlockID{lir.BlockID(f.Entry)}})

	for _, b := range f.ReversePostorder() {
		blk := &f.Blocks[b]
		l.setBlock(lir.BlockID(b))
		for _, v := range blk.Instrs {
			l.pos = f.Values[v].Pos
			l.instr(v)
		}
		l.pos = blk.Term.Pos
		l.term(b)
		l.flushEdges()
	}
}

// setBlock starts emitting into b and appends it to the layout.
func (l *lowerer) setBlock(b lir.BlockID) {
	l.cur = b
	l.lits = make(map[litKey]lir.Reg)
	l.out.Layout = append(l.out.Layout, b)
}

func (l *lowerer) add(ins lir.Instr) {
	if ins.Pos == (ir.Pos{}) {
		ins.Pos = l.pos
	}
	if !lir.FormatOf(ins.Op).Dst && !ins.Dead {
		ins.Dst = lir.NoReg
	}
	blk := &l.out.Blocks[l.cur]
	blk.Instrs = append(blk.Instrs, ins)
}

// def emits an instruction defining the register of v.
func (l *lowerer) def(v ir.ValueID, op lir.Op, args ...lir.Reg) *lir.Instr {
	l.add(lir.Instr{Op: op, Dst: l.reg(v), Args: args})
	blk := &l.out.Blocks[l.cur]
	return &blk.Instrs[len(blk.Instrs)-1]
}

// reg returns the register holding v at the current point. Literals are
// materialized once per block.
func (l *lowerer) reg(v ir.ValueID) lir.Reg {
	ins := l.f.Value(v)
	if ins == nil {
		ir.Panicf("lower %s: operand v%d does not exist", l.f.Name, v)
	}
	if ins.Kind == ir.OpLiteral {
		return l.litReg(ins.Lit)
	}
	if l.regs[v] == lir.NoReg {
		l.regs[v] = l.out.NewReg(lir.ClassOf(ins.Type))
	}
	return l.regs[v]
}

func (l *lowerer) litReg(lit ir.Literal) lir.Reg {
	k := keyOf(lit)
	if r, ok := l.lits[k]; ok {
		return r
	}
	r := l.out.NewReg(lir.ClassOf(lit.Type()))
	l.loadLiteral(r, lit)
	l.lits[k] = r
	return r
}

func (l *lowerer) regsOf(vs []ir.ValueID) []lir.Reg {
	out := make([]lir.Reg, len(vs))
	for i, v := range vs {
		out[i] = l.reg(v)
	}
	return out
}

func (l *lowerer) loadLiteral(dst lir.Reg, lit ir.Literal) {
	ins := lir.Instr{Dst: dst}
	switch lit.Kind {
	case ir.LitUndefined:
		ins.Op = lir.LoadConstUndefined
	case ir.LitNull:
		ins.Op = lir.LoadConstNull
	case ir.LitEmpty:
		ins.Op = lir.LoadConstEmpty
	case ir.LitBool:
		ins.Op = lir.LoadConstFalse
		if lit.Bool {
			ins.Op = lir.LoadConstTrue
		}
	case ir.LitNumber:
		switch n, ok := int32Of(lit.Num); {
		case ok && n == 0:
			ins.Op = lir.LoadConstZero
		case ok:
			ins.Op, ins.Imm = lir.LoadConstInt, int64(n)
		default:
			ins.Op, ins.Num = lir.LoadConstDouble, lit.Num
		}
	case ir.LitString:
		ins.Op, ins.Str = lir.LoadConstString, lit.Str
	case ir.LitBigInt:
		ins.Op, ins.Str = lir.LoadConstBigInt, lit.Str
	default:
		ir.Panicf("lower %s: literal of kind %d", l.f.Name, lit.Kind)
	}
	l.add(ins)
}

// int32Of reports whether n is an int32 other than -0.
func int32Of(n float64) (int32, bool) {
	if n != math.Trunc(n) || n < math.MinInt32 || n > math.MaxInt32 || n == 0 && math.Signbit(n) {
		return 0, false
	}
	return int32(n), true
}

// loadParams loads every referenced parameter and the receiver on entry.
func (l *lowerer) loadParams() {
	if l.uses[l.f.This] > 0 {
		l.add(lir.Instr{Op: lir.LoadParam, Dst: l.reg(l.f.This), Imm: 0})
	}
	for i, p := range l.f.Params {
		if l.uses[p] > 0 {
			l.add(lir.Instr{Op: lir.LoadParam, Dst: l.reg(p), Imm: int64(i + 1)})
		}
	}
}

func (l *lowerer) fallback(name, format string, args ...any) {
	trace.Fallback(l.ctx, name, fmt.Sprintf(format, args...))
}

func (l *lowerer) term(b ir.BlockID) {
	t := &l.f.Blocks[b].Term
	switch t.Kind {
	case ir.TermBranch:
		l.jump(l.edge(b, t.Branch.Target, false))
	case ir.TermTry:
		l.jump(l.edge(b, t.Try.Body, false))
	case ir.TermCondBranch:
		c := t.CondBranch
		if c.Then == c.Else {
			l.jump(l.edge(b, c.Then, false))
			return
		}
		cond := l.reg(c.Cond)
		l.add(lir.Instr{Op: lir.JmpTrue, Args: []lir.Reg{cond},
			Targets: []lir.BlockID{l.edge(b, c.Then, true), l.edge(b, c.Else, true)}})
	case ir.TermSwitch:
		l.switchTerm(b, &t.Switch)
	case ir.TermReturn:
		l.add(lir.Instr{Op: lir.Ret, Args: []lir.Reg{l.reg(t.Return.Value)}})
	case ir.TermThrow:
		l.add(lir.Instr{Op: lir.Throw, Args: []lir.Reg{l.reg(t.Throw.Value)}})
	case ir.TermUnreachable:
		l.add(lir.Instr{Op: lir.Unreachable})
	default:
		ir.Panicf("lower %s: bb%d has no terminator", l.f.Name, b)
	}
}

func (l *lowerer) jump(to lir.BlockID) {
	l.add(lir.Instr{Op: lir.Jmp, Targets: []lir.BlockID{to}})
}

// edge returns the block entered on the edge from->to. Phi copies go at
// the end of from, or on a fresh block when split is set because from has
// other successors.
func (l *lowerer) edge(from, to ir.BlockID, split bool) lir.BlockID {
	if !l.hasPhis(to) {
		return lir.BlockID(to)
	}
	if !split {
		l.copies(from, to)
		return lir.BlockID(to)
	}
	key := [2]ir.BlockID{from, to}
	if e, ok := l.split[key]; ok {
		return e
	}
	e := l.out.NewBlock(lir.NoBlockID)
	l.split[key] = e
	l.pending = append(l.pending, pendingEdge{block: e, from: from, to: to})
	return e
}

// flushEdges fills the blocks created for split edges.
func (l *lowerer) flushEdges() {
	for _, p := range l.pending {
		l.setBlock(p.block)
		l.copies(p.from, p.to)
		l.jump(lir.BlockID(p.to))
	}
	l.pending = l.pending[:0]
}

func (l *lowerer) hasPhis(b ir.BlockID) bool {
	instrs := l.f.Blocks[b].Instrs
	return len(instrs) > 0 && l.f.Values[instrs[0]].Kind == ir.OpPhi
}

type copyOp struct {
	dst, src lir.Reg
}

// copies emits the phi moves of edge from->to as one parallel copy.
// Register sources go first, through temporaries when a destination is
// also a source; literal sources are loaded straight into place last.
func (l *lowerer) copies(from, to ir.BlockID) {
	var moves []copyOp
	type litCopy struct {
		dst lir.Reg
		lit ir.Literal
	}
	var lits []litCopy
	for _, v := range l.f.Blocks[to].Instrs {
		phi := &l.f.Values[v]
		if phi.Kind != ir.OpPhi {
			break
		}
		src := ir.NoValueID
		for k, p := range phi.PhiPreds {
			if p == from {
				src = phi.Args[k]
			}
		}
		if src == ir.NoValueID {
			ir.Panicf("lower %s: phi v%d has no incoming value from bb%d", l.f.Name, v, from)
		}
		dst := l.reg(v)
		if lit, ok := l.f.LiteralOf(src); ok {
			lits = append(lits, litCopy{dst: dst, lit: lit})
			continue
		}
		if s := l.reg(src); s != dst {
			moves = append(moves, copyOp{dst: dst, src: s})
		}
	}
	srcs := make(map[lir.Reg]bool, len(moves))
	for _, c := range moves {
		srcs[c.src] = true
	}
	conflict := false
	for _, c := range moves {
		if srcs[c.dst] {
			conflict = true
		}
	}
	if conflict {
		tmps := make([]lir.Reg, len(moves))
		for i, c := range moves {
			tmps[i] = l.out.NewReg(l.out.Classes[c.dst])
			l.add(lir.Instr{Op: lir.Mov, Dst: tmps[i], Args: []lir.Reg{c.src}})
		}
		for i, c := range moves {
			l.add(lir.Instr{Op: lir.Mov, Dst: c.dst, Args: []lir.Reg{tmps[i]}})
		}
	} else {
		for _, c := range moves {
			l.add(lir.Instr{Op: lir.Mov, Dst: c.dst, Args: []lir.Reg{c.src}})
		}
	}
	for _, c := range lits {
		l.loadLiteral(c.dst, c.lit)
	}
}
