package bytecode_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"gale/internal/bytecode"
	"gale/internal/config"
	"gale/internal/ir"
	"gale/internal/lir"
	"gale/internal/lower"
	"gale/internal/regalloc"
	"gale/internal/testkit"
)

// allocated builds an already allocated function over a frame of size
// registers. blocks are laid out in order.
func allocated(name string, size int, blocks ...[]lir.Instr) *lir.Func {
	f := &lir.Func{Name: name, Allocated: true, Frame: lir.Frame{Size: size}}
	for _, instrs := range blocks {
		b := f.NewBlock(lir.NoBlockID)
		f.Blocks[b].Instrs = instrs
		f.Layout = append(f.Layout, b)
	}
	return f
}

func ret(r lir.Reg) lir.Instr { return lir.Instr{Op: lir.Ret, Dst: lir.NoReg, Args: []lir.Reg{r}} }

func jmp(to lir.BlockID) lir.Instr {
	return lir.Instr{Op: lir.Jmp, Dst: lir.NoReg, Targets: []lir.BlockID{to}}
}

func str(r lir.Reg, s string) lir.Instr { return lir.Instr{Op: lir.LoadConstString, Dst: r, Str: s} }

func emit(t *testing.T, base *bytecode.Image, fs ...*lir.Func) *bytecode.Image {
	t.Helper()
	e, err := bytecode.NewEmitter(base)
	if err != nil {
		t.Fatalf("new emitter: %v", err)
	}
	for _, f := range fs {
		if err := e.AddFunction(f); err != nil {
			t.Fatalf("emit %s: %v", f.Name, err)
		}
	}
	return e.Finish()
}

func ops(t *testing.T, img *bytecode.Image, fn int) []bytecode.Inst {
	t.Helper()
	code, err := img.FuncCode(&img.Functions[fn])
	if err != nil {
		t.Fatalf("func code: %v", err)
	}
	insts, err := bytecode.Decode(code)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return insts
}

func TestEmit_StringTable(t *testing.T) {
	f := allocated("main", 2, []lir.Instr{
		str(0, "héllo"),
		str(1, "héllo"),
		str(0, "abc"),
		ret(0),
	})
	img := emit(t, nil, f)
	if len(img.StringTable) != 3 {
		t.Fatalf("expected 3 distinct strings, got %d", len(img.StringTable))
	}
	if e := img.StringTable[0]; !e.UTF16 || e.Length != 5 {
		t.Errorf("expected héllo as 5 UTF-16 units, got %+v", e)
	}
	if e := img.StringTable[1]; e.UTF16 || e.Length != 3 {
		t.Errorf("expected abc as 3 ASCII bytes, got %+v", e)
	}
	for id, want := range []string{"héllo", "abc", "main"} {
		if s, ok := img.String(uint32(id)); !ok || s != want {
			t.Errorf("expected string %d to be %q, got %q", id, want, s)
		}
	}
	insts := ops(t, img, 0)
	if insts[0].ID != insts[1].ID {
		t.Errorf("expected equal strings to share an id, got %d and %d", insts[0].ID, insts[1].ID)
	}
}

func TestEmit_FallthroughElision(t *testing.T) {
	cond := lir.Instr{Op: lir.JmpTrue, Dst: lir.NoReg, Args: []lir.Reg{0}, Targets: []lir.BlockID{2, 1}}
	f := allocated("f", 1,
		[]lir.Instr{{Op: lir.LoadConstTrue, Dst: 0}, cond},
		[]lir.Instr{jmp(2)},
		[]lir.Instr{ret(0)},
	)
	insts := ops(t, emit(t, nil, f), 0)
	var names []string
	for _, in := range insts {
		names = append(names, in.Op.String())
	}
	if got := strings.Join(names, " "); got != "LoadConstTrue JmpTrue Ret" {
		t.Fatalf("expected jumps to the next block elided, got %s", got)
	}
	if target := insts[1].Offset + int(insts[1].Target); target != insts[2].Offset {
		t.Errorf("expected the branch to land on Ret at %d, got %d", insts[2].Offset, target)
	}
}

func TestEmit_ConditionalNeedsJump(t *testing.T) {
	cond := lir.Instr{Op: lir.JmpTrue, Dst: lir.NoReg, Args: []lir.Reg{0}, Targets: []lir.BlockID{1, 2}}
	f := allocated("f", 1,
		[]lir.Instr{{Op: lir.LoadConstTrue, Dst: 0}, cond},
		[]lir.Instr{ret(0)},
		[]lir.Instr{{Op: lir.Unreachable, Dst: lir.NoReg}},
	)
	insts := ops(t, emit(t, nil, f), 0)
	if len(insts) != 5 || insts[2].Op != lir.Jmp {
		t.Fatalf("expected an explicit jump for the fall-through edge, got %+v", insts)
	}
	if target := insts[2].Offset + int(insts[2].Target); target != insts[4].Offset {
		t.Errorf("expected the jump to reach Unreachable at %d, got %d", insts[4].Offset, target)
	}
}

func bufferFunc(name string, extra string) *lir.Func {
	f := allocated(name, 2, []lir.Instr{
		{Op: lir.NewObjectWithBuffer, Dst: 0, Buffer: 0},
		str(1, extra),
		ret(0),
	})
	f.Buffers = []lir.Buffer{{
		Keys:   []lir.BufValue{{Kind: lir.BufString, Str: "a"}, {Kind: lir.BufInt, Int: 2}},
		Values: []lir.BufValue{{Kind: lir.BufInt, Int: 1}, {Kind: lir.BufString, Str: "x"}},
	}}
	return f
}

func TestEmit_LiteralBuffersShared(t *testing.T) {
	img := emit(t, nil, bufferFunc("a", "p"), bufferFunc("b", "q"))
	if len(img.Literals) != 1 {
		t.Fatalf("expected identical buffers shared, got %d", len(img.Literals))
	}
	keys, values, n, ok := img.Literal(0)
	if !ok || n != 2 {
		t.Fatalf("expected a buffer of 2 entries, got %d", n)
	}
	if keys[0] != bytecode.TagString || values[0] != bytecode.TagInt {
		t.Errorf("expected tagged elements, got keys %v values %v", keys, values)
	}
}

func TestEmit_DeltaReusesBase(t *testing.T) {
	base := emit(t, nil, bufferFunc("a", "p"))
	delta := emit(t, base, bufferFunc("b", "p"), bufferFunc("c", "fresh"))

	if !delta.IsDelta() || int(delta.BaseStrings) != len(base.StringTable) {
		t.Fatalf("expected a delta over %d strings, got base %d", len(base.StringTable), delta.BaseStrings)
	}
	if len(delta.Literals) != 0 {
		t.Errorf("expected the base buffer reused, got %d new buffers", len(delta.Literals))
	}
	// Only the new function names and "fresh" are new.
	if len(delta.StringTable) != 3 {
		t.Errorf("expected 3 new strings, got %d", len(delta.StringTable))
	}
	if insts := ops(t, delta, 0); insts[0].ID != 0 {
		t.Errorf("expected the base buffer id 0, got %d", insts[0].ID)
	}

	merged, err := bytecode.Merge(base, delta)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if len(merged.Functions) != 3 || merged.IsDelta() {
		t.Fatalf("expected a full image of 3 functions, got %d", len(merged.Functions))
	}
	for i, want := range []string{"a", "b", "c"} {
		if name, ok := merged.String(merged.Functions[i].Name); !ok || name != want {
			t.Errorf("expected function %d named %q, got %q", i, want, name)
		}
	}
	insts := ops(t, merged, 2)
	if s, ok := merged.String(insts[1].ID); !ok || s != "fresh" {
		t.Errorf("expected the delta string resolved after merge, got %q", s)
	}
}

func TestMerge_RejectsMismatchedBase(t *testing.T) {
	base := emit(t, nil, bufferFunc("a", "p"))
	delta := emit(t, base, bufferFunc("b", "q"))
	other := emit(t, nil, bufferFunc("z", "zz"), bufferFunc("y", "yy"))
	if _, err := bytecode.Merge(other, delta); err == nil {
		t.Errorf("expected an error merging against the wrong base")
	}
	if _, err := bytecode.NewEmitter(delta); err == nil {
		t.Errorf("expected an error emitting against a delta base")
	}
}

func TestEmit_ExceptionTable(t *testing.T) {
	f := &lir.Func{Name: "f", Allocated: true, Frame: lir.Frame{Size: 1}}
	entry := f.NewBlock(lir.NoBlockID)
	handler := f.NewBlock(lir.NoBlockID)
	body := f.NewBlock(handler)
	f.Layout = []lir.BlockID{entry, body, handler}
	f.Blocks[entry].Instrs = []lir.Instr{jmp(body)}
	f.Blocks[body].Instrs = []lir.Instr{{Op: lir.GetGlobal, Dst: 0, Str: "x"}, ret(0)}
	f.Blocks[handler].Instrs = []lir.Instr{{Op: lir.Catch, Dst: 0}, ret(0)}

	img := emit(t, nil, f)
	ex := img.Functions[0].Exceptions
	if len(ex) != 1 {
		t.Fatalf("expected one protected range, got %+v", ex)
	}
	insts := ops(t, img, 0)
	// entry's jump is elided, so the body starts the function.
	if ex[0].Start != 0 || int(ex[0].End) != insts[2].Offset || ex[0].Handler != ex[0].End {
		t.Errorf("expected [0, %d) -> %d, got %+v", insts[2].Offset, insts[2].Offset, ex[0])
	}
}

func TestEmit_DebugTable(t *testing.T) {
	at := func(ins lir.Instr, line uint32) lir.Instr {
		ins.Pos = ir.Pos{Line: line, Col: 1}
		return ins
	}
	f := allocated("f", 1, []lir.Instr{
		at(str(0, "a"), 1),
		at(str(0, "b"), 1),
		at(str(0, "c"), 2),
		at(ret(0), 3),
	})
	img := emit(t, nil, f)
	if len(img.Debug) != 3 {
		t.Fatalf("expected one entry per position change, got %+v", img.Debug)
	}
	for i := 1; i < len(img.Debug); i++ {
		if img.Debug[i].Offset <= img.Debug[i-1].Offset {
			t.Errorf("expected increasing offsets, got %+v", img.Debug)
		}
	}

	e, _ := bytecode.NewEmitter(nil)
	e.SetDebugInfo(false)
	if err := e.AddFunction(f); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if n := len(e.Finish().Debug); n != 0 {
		t.Errorf("expected no debug entries when disabled, got %d", n)
	}
}

func TestEmit_Errors(t *testing.T) {
	e, _ := bytecode.NewEmitter(nil)
	if err := e.AddFunction(&lir.Func{Name: "raw"}); err == nil {
		t.Errorf("expected an error for an unallocated function")
	}
	big := allocated("big", 1, []lir.Instr{{Op: lir.LoadConstInt, Dst: 0, Imm: 1 << 40}, ret(0)})
	if err := e.AddFunction(big); err == nil {
		t.Errorf("expected an error for an immediate over 32 bits")
	}
	outside := allocated("outside", 1, []lir.Instr{{Op: lir.LoadConstNull, Dst: 4}, ret(4)})
	if err := e.AddFunction(outside); err == nil {
		t.Errorf("expected an error for a register outside the frame")
	}
}

func TestEmit_RejectsInvalidUTF8(t *testing.T) {
	tests := []struct {
		name string
		f    *lir.Func
	}{
		{"operand", allocated("main", 1, []lir.Instr{str(0, "caf\xe9"), ret(0)})},
		{"function name", allocated("m\xffain", 1, []lir.Instr{str(0, "ok"), ret(0)})},
		{"switch label", allocated("main", 1, []lir.Instr{
			{Op: lir.StringSwitch, Dst: lir.NoReg, Args: []lir.Reg{0}, Labels: []string{"\xc3("}, Targets: []lir.BlockID{1, 1}},
		}, []lir.Instr{ret(0)})},
	}
	for _, tt := range tests {
		e, _ := bytecode.NewEmitter(nil)
		err := e.AddFunction(tt.f)
		if !errors.Is(err, bytecode.ErrInvalidString) {
			t.Errorf("%s: expected ErrInvalidString, got %v", tt.name, err)
		}
		if img := e.Finish(); len(img.StringTable) != 0 || len(img.Code) != 0 {
			t.Errorf("%s: expected nothing emitted, got %d strings and %d code bytes", tt.name, len(img.StringTable), len(img.Code))
		}
	}
}

func TestImage_RoundTrip(t *testing.T) {
	img := emit(t, nil, bufferFunc("a", "héllo"))
	var buf bytes.Buffer
	if err := bytecode.WriteImage(&buf, img); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := bytecode.ReadImage(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got.Code, img.Code) || len(got.Functions) != 1 || len(got.Literals) != 1 {
		t.Fatalf("expected the image preserved, got %+v", got)
	}
	if s, ok := got.String(got.Functions[0].Name); !ok || s != "a" {
		t.Errorf("expected function name a, got %q", s)
	}
}

func TestEmit_StringSwitchPipeline(t *testing.T) {
	m := testkit.StringSwitch(10, "k3")
	f, err := lower.Lower(context.Background(), m, m.Funcs[1], config.Default().Lowering)
	if err != nil {
		t.Fatalf("lower: %v", err)
	}
	if _, err := regalloc.Allocate(f, config.Default().RegAlloc); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	img := emit(t, nil, f)
	if len(img.SwitchTables) != 1 || len(img.SwitchTables[0].Cases) != 10 {
		t.Fatalf("expected a switch table of 10 cases, got %+v", img.SwitchTables)
	}
	var out bytes.Buffer
	if err := bytecode.Disassemble(&out, img); err != nil {
		t.Fatalf("disassemble: %v", err)
	}
	text := out.String()
	for _, want := range []string{"function classify", "StringSwitch", `"k3"`} {
		if !strings.Contains(text, want) {
			t.Errorf("expected the listing to contain %s, got\n%s", want, text)
		}
	}
}
