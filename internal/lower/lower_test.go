package lower_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"gale/internal/config"
	"gale/internal/ir"
	"gale/internal/lir"
	"gale/internal/lower"
	"gale/internal/opt"
	"gale/internal/testkit"
	"gale/internal/trace"
)

func lowerFunc(t *testing.T, m *ir.Module, f *ir.Func, cfg config.Lowering) *lir.Func {
	t.Helper()
	out, err := lower.Lower(context.Background(), m, f, cfg)
	if err != nil {
		t.Fatalf("lower failed: %v", err)
	}
	return out
}

func defaults() config.Lowering { return config.Default().Lowering }

func dump(f *lir.Func) string {
	var sb strings.Builder
	_ = lir.Dump(&sb, f)
	return sb.String()
}

func TestEstimateBestPrefix(t *testing.T) {
	tests := []struct {
		name        string
		placeholder string
		want        int
	}{
		{"empty", "", 0},
		{"all literals", "LLLL", 4},
		{"all placeholders", "PPP", 0},
		{"leading placeholder", "PL", 0},
		{"tie goes to longer", "LPLL", 4},
		{"trailing placeholder dropped", "LLP", 2},
		{"recovers after placeholders", "LPLLLL", 6},
	}
	for _, tt := range tests {
		ph := make([]bool, len(tt.placeholder))
		for i, c := range tt.placeholder {
			ph[i] = c == 'P'
		}
		if got := lower.EstimateBestPrefix(ph, 2, 256); got != tt.want {
			t.Errorf("%s: expected %d, got %d", tt.name, tt.want, got)
		}
	}
	if got := lower.EstimateBestPrefix(make([]bool, 10), 2, 4); got != 4 {
		t.Errorf("expected prefix capped at 4, got %d", got)
	}
}

func TestLower_NestedObjectLiteral(t *testing.T) {
	m := ir.NewModule()
	f := m.NewFunc("main", ir.NoScopeID)
	b := ir.NewBuilder(m, f)
	inner := b.CreateObjectLiteral([]ir.ObjectEntry{ir.KV("1", b.Num(100)), ir.KV("2", b.Num(200))})
	outer := b.CreateObjectLiteral([]ir.ObjectEntry{
		ir.KV("a", b.Num(10)),
		ir.KV("b", inner),
		ir.KV("c", b.Str("hello")),
		ir.KV("d", b.Lit(ir.Null())),
	})
	b.Return(outer)

	out := lowerFunc(t, m, f, defaults())
	if n := out.Count(lir.NewObjectWithBuffer); n != 2 {
		t.Errorf("expected 2 buffered allocations, got %d\n%s", n, dump(out))
	}
	if n := out.Count(lir.PutOwnBySlotIdx); n != 1 {
		t.Errorf("expected 1 placeholder store, got %d\n%s", n, dump(out))
	}
	if n := out.Count(lir.PutOwnById); n != 0 {
		t.Errorf("expected no named stores, got %d", n)
	}
	if len(out.Buffers) != 2 || out.Buffers[1].Len() != 4 {
		t.Fatalf("expected an outer buffer of 4 entries, got %+v", out.Buffers)
	}
	if k := out.Buffers[0].Keys[0]; k.Kind != lir.BufInt || k.Int != 1 {
		t.Errorf("expected numeric key 1 as an integer key, got %+v", k)
	}
	if v := out.Buffers[1].Values[1]; v.Kind != lir.BufNull {
		t.Errorf("expected the placeholder serialized as null, got %+v", v)
	}
}

func TestLower_NumericKeysPacked(t *testing.T) {
	m := ir.NewModule()
	f := m.NewFunc("main", ir.NoScopeID)
	b := ir.NewBuilder(m, f)
	obj := b.CreateObjectLiteral([]ir.ObjectEntry{
		ir.KV("a", b.Num(1)), ir.KV("b", b.Num(2)), ir.KV("c", b.Num(3)), ir.KV("d", b.Num(4)),
		{Key: ir.Number(5), Computed: ir.NoValueID, Value: b.Num(5)},
		ir.KV("6", b.Num(6)),
	})
	b.Return(obj)

	out := lowerFunc(t, m, f, defaults())
	if len(out.Buffers) != 1 || out.Buffers[0].Len() != 6 {
		t.Fatalf("expected one buffer of 6 entries, got %+v", out.Buffers)
	}
	for _, i := range []int{4, 5} {
		if k := out.Buffers[0].Keys[i]; k.Kind != lir.BufInt || k.Int != int64(i+1) {
			t.Errorf("expected key %d as an integer, got %+v", i+1, k)
		}
	}
	stores := out.Count(lir.PutOwnById) + out.Count(lir.PutOwnByIndex) + out.Count(lir.PutOwnBySlotIdx)
	if stores != 0 {
		t.Errorf("expected no stores after allocation, got %d", stores)
	}
}

func TestLower_DuplicateKeyKeepsFirstSlot(t *testing.T) {
	m := ir.NewModule()
	f := m.NewFunc("main", ir.NoScopeID)
	b := ir.NewBuilder(m, f)
	obj := b.CreateObjectLiteral([]ir.ObjectEntry{
		ir.KV("a", b.Num(1)), ir.KV("b", b.Num(2)), ir.KV("a", b.Num(3)),
	})
	b.Return(obj)

	out := lowerFunc(t, m, f, defaults())
	if len(out.Buffers) != 1 || out.Buffers[0].Len() != 2 {
		t.Fatalf("expected two distinct keys, got %+v", out.Buffers)
	}
	if v := out.Buffers[0].Values[0]; v.Kind != lir.BufInt || v.Int != 1 {
		t.Errorf("expected the first value of a in its slot, got %+v", v)
	}
	var stores []lir.Instr
	for _, blk := range out.Blocks {
		for _, ins := range blk.Instrs {
			if ins.Op == lir.PutOwnById {
				stores = append(stores, ins)
			}
		}
	}
	if len(stores) != 1 || stores[0].Str != "a" {
		t.Fatalf("expected a stored again after allocation, got %+v", stores)
	}
	if n := out.Count(lir.PutOwnBySlotIdx); n != 0 {
		t.Errorf("expected no placeholder patches, got %d", n)
	}
}

func TestLower_AccessorStopsPacking(t *testing.T) {
	m := ir.NewModule()
	f := m.NewFunc("main", ir.NoScopeID)
	b := ir.NewBuilder(m, f)
	getter := b.CreateLoadGlobal("g")
	obj := b.CreateObjectLiteral([]ir.ObjectEntry{
		ir.KV("a", b.Num(1)),
		{Kind: ir.PropGetter, Key: ir.String("x"), Computed: ir.NoValueID, Value: getter},
		ir.KV("b", b.Num(2)),
	})
	b.Return(obj)

	out := lowerFunc(t, m, f, defaults())
	if len(out.Buffers) != 1 || out.Buffers[0].Len() != 1 {
		t.Fatalf("expected only the entry before the accessor packed, got %+v", out.Buffers)
	}
	if n := out.Count(lir.PutOwnAccessor); n != 1 {
		t.Errorf("expected one accessor definition, got %d", n)
	}
	if n := out.Count(lir.PutOwnById); n != 1 {
		t.Errorf("expected b stored after the accessor, got %d", n)
	}
}

func TestLower_ArrayLiteral(t *testing.T) {
	m := ir.NewModule()
	f := m.NewFunc("main", ir.NoScopeID)
	b := ir.NewBuilder(m, f)
	g := b.CreateLoadGlobal("g")
	arr := b.CreateArrayLiteral([]ir.ValueID{b.Num(1), b.Num(2), g, b.Num(3), b.Num(4)})
	b.Return(arr)

	out := lowerFunc(t, m, f, defaults())
	if n := out.Count(lir.NewArrayWithBuffer); n != 1 {
		t.Fatalf("expected a buffered array, got %d\n%s", n, dump(out))
	}
	if n := out.Count(lir.PutOwnByIndex); n != 1 {
		t.Errorf("expected one element store for the placeholder, got %d", n)
	}
}

// run evaluates the control flow of a lowered switch function for one
// string argument. It understands only what lowering emits for it.
func run(t *testing.T, f *lir.Func, arg string) any {
	t.Helper()
	regs := make(map[lir.Reg]any)
	b := f.Layout[0]
	for steps := 0; steps < 1000; steps++ {
		var next lir.BlockID = lir.NoBlockID
		for i := range f.Blocks[b].Instrs {
			ins := &f.Blocks[b].Instrs[i]
			if ins.Dead {
				continue
			}
			switch ins.Op {
			case lir.LoadParam:
				if ins.Imm == 1 {
					regs[ins.Dst] = arg
				}
			case lir.LoadConstString:
				regs[ins.Dst] = ins.Str
			case lir.LoadConstZero:
				regs[ins.Dst] = float64(0)
			case lir.LoadConstInt:
				regs[ins.Dst] = float64(ins.Imm)
			case lir.Mov:
				regs[ins.Dst] = regs[ins.Args[0]]
			case lir.Jmp:
				next = ins.Targets[0]
			case lir.JStrictEqual:
				next = ins.Targets[1]
				if regs[ins.Args[0]] == regs[ins.Args[1]] {
					next = ins.Targets[0]
				}
			case lir.StringSwitch:
				next = ins.Targets[len(ins.Targets)-1]
				for k, l := range ins.Labels {
					if regs[ins.Args[0]] == l {
						next = ins.Targets[k]
						break
					}
				}
			case lir.Ret:
				return regs[ins.Args[0]]
			default:
				t.Fatalf("unexpected %s", lir.FormatInstr(ins, "v"))
			}
		}
		if next == lir.NoBlockID {
			t.Fatalf("L%d fell off its end", b)
		}
		b = next
	}
	t.Fatalf("no return after 1000 blocks")
	return nil
}

func TestLower_StringSwitchEquivalence(t *testing.T) {
	m := testkit.StringSwitch(10, "k3")
	classify := m.Funcs[1]
	table := lowerFunc(t, m, classify, config.Lowering{StringSwitchThreshold: 8, PlaceholderPenalty: 2, MaxBufferEntries: 256})
	chain := lowerFunc(t, m, classify, config.Lowering{StringSwitchThreshold: 100, PlaceholderPenalty: 2, MaxBufferEntries: 256})

	if n := table.Count(lir.StringSwitch); n != 1 {
		t.Fatalf("expected one jump table, got %d\n%s", n, dump(table))
	}
	if n := table.Count(lir.JStrictEqual); n != 0 {
		t.Errorf("expected no compare chain with a jump table, got %d", n)
	}
	if n := chain.Count(lir.JStrictEqual); n != 10 {
		t.Errorf("expected 10 compares below the threshold, got %d\n%s", n, dump(chain))
	}
	keys := []string{"nope"}
	for i := 0; i < 10; i++ {
		keys = append(keys, fmt.Sprintf("k%d", i))
	}
	for _, k := range keys {
		a, b := run(t, table, k), run(t, chain, k)
		if a != b {
			t.Errorf("%q: expected the same result, got table=%v chain=%v", k, a, b)
		}
	}
	if got := run(t, table, "k7"); got != float64(7) {
		t.Errorf("expected k7 to select case 7, got %v", got)
	}
	if got := run(t, chain, "nope"); got != float64(-1) {
		t.Errorf("expected the default for an unknown key, got %v", got)
	}
}

func TestLower_StringSwitchThresholdBoundary(t *testing.T) {
	m := testkit.StringSwitch(8, "k0")
	ring := trace.NewRing(64, trace.LevelInstr)
	ctx := trace.WithTracer(context.Background(), ring)
	out, err := lower.Lower(ctx, m, m.Funcs[1], defaults())
	if err != nil {
		t.Fatalf("lower failed: %v", err)
	}
	if n := out.Count(lir.StringSwitch); n != 0 {
		t.Errorf("expected exactly threshold cases to stay a chain, got %d tables", n)
	}
	var span uint64
	var fallbacks []trace.Event
	for _, ev := range ring.Snapshot() {
		switch {
		case ev.Kind == trace.KindBegin && strings.HasPrefix(ev.Name, "lower "):
			span = ev.Span
		case ev.Kind == trace.KindFallback:
			fallbacks = append(fallbacks, ev)
		}
	}
	if len(fallbacks) != 1 || fallbacks[0].Name != "string-switch" {
		t.Fatalf("expected one string-switch fallback, got %+v", fallbacks)
	}
	if span == 0 || fallbacks[0].Parent != span {
		t.Errorf("expected the fallback under the lowering span %d, got parent %d", span, fallbacks[0].Parent)
	}
	if !strings.Contains(fallbacks[0].Detail, "8 cases") {
		t.Errorf("expected the case count in the detail, got %q", fallbacks[0].Detail)
	}
}

func TestLower_ArgumentsLength(t *testing.T) {
	m := ir.NewModule()
	f := m.NewFunc("count", ir.NoScopeID)
	b := ir.NewBuilder(m, f)
	args := b.CreateArguments()
	n := b.CreateLoadProp(args, b.Str("length"))
	first := b.CreateLoadProp(args, b.Num(0))
	b.Return(b.CreateBinary(ir.OperatorAdd, n, first))

	out := lowerFunc(t, m, f, defaults())
	if c := out.Count(lir.ReifyArguments); c != 0 {
		t.Errorf("expected no materialized arguments, got %d", c)
	}
	if c := out.Count(lir.GetArgumentsLength); c != 1 {
		t.Errorf("expected one length read, got %d", c)
	}
	if c := out.Count(lir.GetArgumentsPropByVal); c != 1 {
		t.Errorf("expected one element read, got %d", c)
	}
}

func TestLower_EscapingArguments(t *testing.T) {
	m := ir.NewModule()
	f := m.NewFunc("leak", ir.NoScopeID)
	b := ir.NewBuilder(m, f)
	args := b.CreateArguments()
	n := b.CreateLoadProp(args, b.Str("length"))
	b.CreateCallBuiltin("print", []ir.ValueID{args})
	b.Return(n)

	out := lowerFunc(t, m, f, defaults())
	if c := out.Count(lir.ReifyArguments); c != 1 {
		t.Errorf("expected the arguments object materialized once, got %d", c)
	}
	if c := out.Count(lir.GetById); c != 1 {
		t.Errorf("expected length read as an ordinary property, got %d", c)
	}
}

func TestLower_Intrinsics(t *testing.T) {
	m := ir.NewModule()
	f := m.NewFunc("mem", ir.NoScopeID)
	b := ir.NewBuilder(m, f)
	p := b.Param("p", ir.TypeNumber)
	v := b.CreateCallBuiltin("__load8", []ir.ValueID{p})
	b.CreateCallBuiltin("__store32", []ir.ValueID{p, v})
	bad := b.CreateCallBuiltin("__load16", []ir.ValueID{p, p})
	b.Return(b.CreateBinary(ir.OperatorAdd, v, bad))

	out := lowerFunc(t, m, f, defaults())
	if c := out.Count(lir.Load8); c != 1 {
		t.Errorf("expected Load8, got %d", c)
	}
	if c := out.Count(lir.Store32); c != 1 {
		t.Errorf("expected Store32, got %d", c)
	}
	if c := out.Count(lir.CallBuiltin); c != 1 {
		t.Errorf("expected the mis-arity intrinsic to stay a builtin call, got %d", c)
	}
}

func TestLower_BoundCallCached(t *testing.T) {
	m, _ := testkit.ModuleFactory(false)
	if n := opt.BoundParams(m).Annotate(m); n != 1 {
		t.Fatalf("expected one bound call, got %d", n)
	}
	out := lowerFunc(t, m, m.Funcs[0], defaults())
	if c := out.Count(lir.LoadCached); c != 1 {
		t.Errorf("expected one cache read, got %d\n%s", c, dump(out))
	}
	if c := out.Count(lir.CallAndCache); c != 1 {
		t.Errorf("expected one caching call, got %d", c)
	}
	if c := out.Count(lir.Call); c != 0 {
		t.Errorf("expected no plain call, got %d", c)
	}
	if out.CacheSlots != 1 {
		t.Errorf("expected 1 cache slot, got %d", out.CacheSlots)
	}
}

func TestLower_UnboundCallTraced(t *testing.T) {
	m, _ := testkit.ModuleFactory(true)
	ring := trace.NewRing(64, trace.LevelFunc)
	ctx := trace.WithTracer(context.Background(), ring)
	out, err := lower.Lower(ctx, m, m.Funcs[0], defaults())
	if err != nil {
		t.Fatalf("lower failed: %v", err)
	}
	if c := out.Count(lir.Call); c != 1 {
		t.Errorf("expected a plain call, got %d", c)
	}
	found := false
	for _, ev := range ring.Snapshot() {
		if ev.Name == "lower factory" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a lowering span for factory")
	}
}

func TestLower_DeadInstructionKept(t *testing.T) {
	m := ir.NewModule()
	f := m.NewFunc("main", ir.NoScopeID)
	b := ir.NewBuilder(m, f)
	x := b.CreateLoadGlobal("x")
	dead := b.CreateBinary(ir.OperatorAdd, x, b.Num(1))
	b.Return(x)
	f.Kill(dead)

	out := lowerFunc(t, m, f, defaults())
	deadCount := 0
	for _, blk := range out.Layout {
		for _, ins := range out.Blocks[blk].Instrs {
			if ins.Dead {
				deadCount++
			}
		}
	}
	if deadCount != 1 {
		t.Errorf("expected the dead instruction kept in place, got %d", deadCount)
	}
	if c := out.Count(lir.Add); c != 0 {
		t.Errorf("expected no code for the dead add, got %d", c)
	}
}

func TestLower_PhiCopies(t *testing.T) {
	m := ir.NewModule()
	f := m.NewFunc("main", ir.NoScopeID)
	b := ir.NewBuilder(m, f)
	c := b.CreateLoadGlobal("c")
	then, els, join := b.NewBlock(), b.NewBlock(), b.NewBlock()
	b.CondBranch(c, then, join)
	b.SetBlock(then)
	b.Branch(els)
	b.SetBlock(els)
	b.Branch(join)
	b.SetBlock(join)
	phi := b.CreatePhi(ir.TypeNumber)
	b.AddPhiIncoming(phi, f.Entry, b.Num(1))
	b.AddPhiIncoming(phi, els, b.Num(2))
	b.Return(phi)

	out := lowerFunc(t, m, f, defaults())
	if err := lir.Check(out); err != nil {
		t.Fatalf("expected a well-formed function, got %v", err)
	}
	// entry -> join is critical and gets its own block.
	if len(out.Blocks) <= len(f.Blocks)+1 {
		t.Errorf("expected a split block beyond the prologue, got %d blocks\n%s", len(out.Blocks), dump(out))
	}
	jt := out.Blocks[f.Entry].Term()
	if jt == nil || jt.Op != lir.JmpTrue || jt.Targets[1] == lir.BlockID(join) {
		t.Errorf("expected the branch to join routed through a split block\n%s", dump(out))
	}
}
