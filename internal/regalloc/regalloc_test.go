package regalloc_test

import (
	"context"
	"strings"
	"testing"

	"gale/internal/config"
	"gale/internal/ir"
	"gale/internal/lir"
	"gale/internal/lower"
	"gale/internal/regalloc"
	"gale/internal/testkit"
)

func def(op lir.Op, dst lir.Reg, args ...lir.Reg) lir.Instr {
	return lir.Instr{Op: op, Dst: dst, Args: args}
}

func use(op lir.Op, args ...lir.Reg) lir.Instr {
	return lir.Instr{Op: op, Dst: lir.NoReg, Args: args}
}

func constInt(dst lir.Reg, n int64) lir.Instr {
	return lir.Instr{Op: lir.LoadConstInt, Dst: dst, Imm: n}
}

// single builds a one-block function over n virtual registers of class c.
func single(n int, c lir.Class, instrs ...lir.Instr) *lir.Func {
	f := &lir.Func{Name: "t"}
	for i := 0; i < n; i++ {
		f.NewReg(c)
	}
	b := f.NewBlock(lir.NoBlockID)
	f.Layout = append(f.Layout, b)
	f.Blocks[b].Instrs = instrs
	return f
}

// eval runs straight-line and jumping allocated code over integers.
func eval(t *testing.T, f *lir.Func) int64 {
	t.Helper()
	return evalCached(t, f, nil)
}

// evalCached is eval with call cache slots. Zero is the empty slot, and a
// call returns its callee plus 1000.
func evalCached(t *testing.T, f *lir.Func, cache map[int64]int64) int64 {
	t.Helper()
	regs := make([]int64, f.Frame.Size)
	slots := make([]int64, f.Frame.SpillSlots)
	b := f.Layout[0]
	for steps := 0; steps < 1000; steps++ {
		next := lir.NoBlockID
		for i := range f.Blocks[b].Instrs {
			ins := &f.Blocks[b].Instrs[i]
			if ins.Dead {
				continue
			}
			switch ins.Op {
			case lir.LoadConstInt:
				regs[ins.Dst] = ins.Imm
			case lir.LoadConstZero:
				regs[ins.Dst] = 0
			case lir.Add:
				regs[ins.Dst] = regs[ins.Args[0]] + regs[ins.Args[1]]
			case lir.Mov:
				regs[ins.Dst] = regs[ins.Args[0]]
			case lir.LoadCached:
				regs[ins.Dst] = cache[ins.Imm]
			case lir.CallAndCache:
				if regs[ins.Dst] == 0 {
					regs[ins.Dst] = regs[ins.Args[0]] + 1000
					cache[ins.Imm] = regs[ins.Dst]
				}
			case lir.Spill:
				slots[ins.Imm] = regs[ins.Args[0]]
			case lir.Unspill:
				regs[ins.Dst] = slots[ins.Imm]
			case lir.Jmp:
				next = ins.Targets[0]
			case lir.Ret:
				return regs[ins.Args[0]]
			default:
				t.Fatalf("unexpected %s", lir.FormatInstr(ins, "r"))
			}
		}
		b = next
	}
	t.Fatalf("no return")
	return 0
}

func TestAllocate_SpillsWithSmallFile(t *testing.T) {
	const n = 10
	var instrs []lir.Instr
	for i := 0; i < n; i++ {
		instrs = append(instrs, constInt(lir.Reg(i), int64(i+1)))
	}
	sum := lir.Reg(0)
	next := lir.Reg(n)
	for i := 1; i < n; i++ {
		instrs = append(instrs, def(lir.Add, next, sum, lir.Reg(i)))
		sum = next
		next++
	}
	instrs = append(instrs, use(lir.Ret, sum))
	f := single(int(next), lir.ClassNumber, instrs...)

	a, err := regalloc.Allocate(f, config.RegAlloc{RegisterFileSize: config.MinRegisterFileSize})
	if err != nil {
		t.Fatalf("allocate failed: %v", err)
	}
	if a.Frame.Size > config.MinRegisterFileSize {
		t.Errorf("expected a frame of at most %d, got %d", config.MinRegisterFileSize, a.Frame.Size)
	}
	if a.Frame.SpillSlots == 0 || a.Spills == 0 || a.Reloads == 0 {
		t.Errorf("expected spill code, got %+v", a.Frame)
	}
	if a.Frame.NumberRegs != 5 || a.Frame.NonPtrRegs != 0 {
		t.Errorf("expected 5 number registers, got %+v", a.Frame)
	}
	if err := regalloc.Verify(f, a); err != nil {
		t.Errorf("expected a valid assignment, got %v", err)
	}
	if got := eval(t, f); got != 55 {
		t.Errorf("expected 55, got %d\n%s", got, dumpFunc(f))
	}
}

// cachedCall sums ten long-lived constants with the result of a cached
// call, so the call result is the first interval to spill.
func cachedCall() *lir.Func {
	const n = 10
	var instrs []lir.Instr
	for i := 0; i < n; i++ {
		instrs = append(instrs, constInt(lir.Reg(i), int64(i+1)))
	}
	res, callee, recv := lir.Reg(n), lir.Reg(n+1), lir.Reg(n+2)
	instrs = append(instrs,
		lir.Instr{Op: lir.LoadCached, Dst: res},
		constInt(callee, 7),
		constInt(recv, 1),
		lir.Instr{Op: lir.CallAndCache, Dst: res, Args: []lir.Reg{callee, recv}},
	)
	sum, next := lir.Reg(0), lir.Reg(n+3)
	for i := 1; i < n; i++ {
		instrs = append(instrs, def(lir.Add, next, sum, lir.Reg(i)))
		sum = next
		next++
	}
	instrs = append(instrs, def(lir.Add, next, sum, res), use(lir.Ret, next))
	f := single(int(next)+1, lir.ClassNumber, instrs...)
	f.CacheSlots = 1
	return f
}

func TestAllocate_CallAndCacheReadsSpilledResult(t *testing.T) {
	tests := []struct {
		name  string
		cache map[int64]int64
		want  int64
	}{
		{"miss", map[int64]int64{}, 55 + 1007},
		{"hit", map[int64]int64{0: 500}, 55 + 500},
	}
	for _, tt := range tests {
		f := cachedCall()
		a, err := regalloc.Allocate(f, config.RegAlloc{RegisterFileSize: config.MinRegisterFileSize})
		if err != nil {
			t.Fatalf("%s: allocate failed: %v", tt.name, err)
		}
		if err := regalloc.Verify(f, a); err != nil {
			t.Errorf("%s: expected a valid assignment, got %v", tt.name, err)
		}
		instrs := f.Blocks[f.Layout[0]].Instrs
		for i, ins := range instrs {
			if ins.Op != lir.CallAndCache {
				continue
			}
			if i == 0 || instrs[i-1].Op != lir.Unspill || instrs[i-1].Dst != ins.Dst {
				t.Errorf("%s: expected the cached result reloaded into r%d before the call\n%s", tt.name, ins.Dst, dumpFunc(f))
			}
			for _, arg := range ins.Args {
				if arg == ins.Dst {
					t.Errorf("%s: expected the result register apart from the operands, both r%d", tt.name, arg)
				}
			}
		}
		if got := evalCached(t, f, tt.cache); got != tt.want {
			t.Errorf("%s: expected %d, got %d\n%s", tt.name, tt.want, got, dumpFunc(f))
		}
	}
}

func TestAllocate_CoalescesMoves(t *testing.T) {
	f := single(3, lir.ClassGeneral,
		constInt(0, 4),
		def(lir.Mov, 1, 0),
		def(lir.Add, 2, 1, 1),
		use(lir.Ret, 2),
	)
	a, err := regalloc.Allocate(f, config.Default().RegAlloc)
	if err != nil {
		t.Fatalf("allocate failed: %v", err)
	}
	if a.Coalesced != 1 {
		t.Errorf("expected one coalesced move, got %d", a.Coalesced)
	}
	if n := f.Count(lir.Mov); n != 0 {
		t.Errorf("expected the move removed, got %d", n)
	}
	if a.Locs[0].Reg != a.Locs[1].Reg {
		t.Errorf("expected v0 and v1 to share a register, got %+v and %+v", a.Locs[0], a.Locs[1])
	}
	if got := eval(t, f); got != 8 {
		t.Errorf("expected 8, got %d", got)
	}
}

func TestAllocate_StagesCallOperands(t *testing.T) {
	f := single(4, lir.ClassGeneral,
		lir.Instr{Op: lir.GetGlobal, Dst: 0, Str: "f"},
		def(lir.LoadConstUndefined, 1),
		constInt(2, 1),
		def(lir.Call, 3, 0, 1, 2),
		use(lir.Ret, 3),
	)
	a, err := regalloc.Allocate(f, config.Default().RegAlloc)
	if err != nil {
		t.Fatalf("allocate failed: %v", err)
	}
	var call *lir.Instr
	f.Each(func(_ lir.BlockID, ins *lir.Instr) {
		if ins.Op == lir.Call {
			call = ins
		}
	})
	if call == nil || len(call.Args) != 3 {
		t.Fatalf("expected a call with three operands, got %+v", call)
	}
	if call.Args[2] != call.Args[1]+1 || int(call.Args[2]) != a.Frame.Size-1 {
		t.Errorf("expected the list staged at the top of the frame, got %v in a frame of %d", call.Args, a.Frame.Size)
	}
	if call.Args[0] == call.Args[1] {
		t.Errorf("expected the callee outside the staging area, got %v", call.Args)
	}
}

func TestAllocate_HandlerKeepsValuesLive(t *testing.T) {
	f := &lir.Func{Name: "t"}
	for i := 0; i < 4; i++ {
		f.NewReg(lir.ClassGeneral)
	}
	entry := f.NewBlock(lir.NoBlockID)
	handler := f.NewBlock(lir.NoBlockID)
	body := f.NewBlock(handler)
	f.Layout = []lir.BlockID{entry, body, handler}
	f.Blocks[entry].Instrs = []lir.Instr{constInt(0, 7), {Op: lir.Jmp, Dst: lir.NoReg, Targets: []lir.BlockID{body}}}
	f.Blocks[body].Instrs = []lir.Instr{
		{Op: lir.GetGlobal, Dst: 1, Str: "x"},
		{Op: lir.GetGlobal, Dst: 2, Str: "y"},
		def(lir.Add, 1, 1, 2),
		use(lir.Ret, 1),
	}
	f.Blocks[handler].Instrs = []lir.Instr{def(lir.Catch, 3), use(lir.Ret, 0)}

	a, err := regalloc.Allocate(f, config.Default().RegAlloc)
	if err != nil {
		t.Fatalf("allocate failed: %v", err)
	}
	for _, v := range []int{1, 2} {
		if a.Locs[0].Reg == a.Locs[v].Reg {
			t.Errorf("expected v0 to keep its register through the protected block, shared with v%d", v)
		}
	}
}

func TestAllocate_DeadInstructionsInLargeSwitch(t *testing.T) {
	m := testkit.StringSwitch(120, "k7")
	f, err := lower.Lower(context.Background(), m, m.Funcs[1], config.Lowering{
		StringSwitchThreshold: 1000, PlaceholderPenalty: 2, MaxBufferEntries: 256,
	})
	if err != nil {
		t.Fatalf("lower failed: %v", err)
	}
	killed := 0
	for _, b := range f.Layout {
		blk := &f.Blocks[b]
		dead := []lir.Instr{
			{Op: lir.Nop, Dst: f.NewReg(lir.ClassGeneral), Dead: true},
			{Op: lir.Add, Dst: f.NewReg(lir.ClassNumber), Args: []lir.Reg{f.NewReg(lir.ClassNumber), f.NewReg(lir.ClassNumber)}, Dead: true},
		}
		blk.Instrs = append(dead, blk.Instrs...)
		killed += len(dead)
	}

	a, err := regalloc.Allocate(f, config.RegAlloc{RegisterFileSize: config.MinRegisterFileSize})
	if err != nil {
		t.Fatalf("allocate failed: %v", err)
	}
	if err := regalloc.Verify(f, a); err != nil {
		t.Errorf("expected a valid assignment, got %v", err)
	}
	left := 0
	for _, b := range f.Layout {
		for _, ins := range f.Blocks[b].Instrs {
			if ins.Dead {
				left++
				if ins.Dst != lir.NoReg {
					t.Errorf("expected dead instructions to own no register, got r%d", ins.Dst)
				}
			}
		}
	}
	if left != killed {
		t.Errorf("expected %d dead instructions kept, got %d", killed, left)
	}
	if err := lir.Check(f); err != nil {
		t.Errorf("expected a well-formed function, got %v", err)
	}
}

func TestAllocate_LoweredFixtures(t *testing.T) {
	for name, m := range map[string]func() []*lir.Func{
		"counter":  func() []*lir.Func { return lowerAll(t, testkit.Counter(3)) },
		"pipeline": func() []*lir.Func { return lowerAll(t, testkit.Pipeline()) },
	} {
		for _, f := range m() {
			a, err := regalloc.Allocate(f, config.Default().RegAlloc)
			if err != nil {
				t.Errorf("%s/%s: allocate failed: %v", name, f.Name, err)
				continue
			}
			if a.Frame.Size > config.Default().RegAlloc.RegisterFileSize {
				t.Errorf("%s/%s: frame of %d exceeds the register file", name, f.Name, a.Frame.Size)
			}
			if !f.Allocated || f.Frame != a.Frame {
				t.Errorf("%s/%s: expected the frame recorded on the function", name, f.Name)
			}
		}
	}
}

func TestAllocate_Twice(t *testing.T) {
	f := single(1, lir.ClassGeneral, constInt(0, 1), use(lir.Ret, 0))
	if _, err := regalloc.Allocate(f, config.Default().RegAlloc); err != nil {
		t.Fatalf("allocate failed: %v", err)
	}
	if _, err := regalloc.Allocate(f, config.Default().RegAlloc); err == nil {
		t.Errorf("expected an error for an allocated function")
	}
}

func TestVerify_DetectsOverlap(t *testing.T) {
	f := single(3, lir.ClassNumber,
		constInt(0, 1),
		constInt(1, 2),
		def(lir.Add, 2, 0, 1),
		use(lir.Ret, 2),
	)
	a, err := regalloc.Allocate(f, config.Default().RegAlloc)
	if err != nil {
		t.Fatalf("allocate failed: %v", err)
	}
	if err := regalloc.Verify(f, a); err != nil {
		t.Fatalf("expected a valid assignment, got %v", err)
	}
	a.Intervals[1].Loc = a.Intervals[0].Loc
	err = regalloc.Verify(f, a)
	if err == nil || !strings.Contains(err.Error(), "overlap") {
		t.Errorf("expected an overlap error, got %v", err)
	}
}

func lowerAll(t *testing.T, m *ir.Module) []*lir.Func {
	t.Helper()
	var out []*lir.Func
	for _, fn := range m.Funcs {
		f, err := lower.Lower(context.Background(), m, fn, config.Default().Lowering)
		if err != nil {
			t.Fatalf("lower %s failed: %v", fn.Name, err)
		}
		out = append(out, f)
	}
	return out
}

func dumpFunc(f *lir.Func) string {
	var sb strings.Builder
	_ = lir.Dump(&sb, f)
	return sb.String()
}
