package driver_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"gale/internal/bytecode"
	"gale/internal/config"
	"gale/internal/driver"
	"gale/internal/ir"
	"gale/internal/testkit"
	"gale/internal/trace"
)

func compile(t *testing.T, m *ir.Module, opts driver.Options) *driver.Result {
	t.Helper()
	opts.Config = config.Default()
	res, err := driver.Compile(context.Background(), m, opts)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	return res
}

func encode(t *testing.T, img *bytecode.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := bytecode.WriteImage(&buf, img); err != nil {
		t.Fatalf("write image: %v", err)
	}
	return buf.Bytes()
}

func TestCompile_Counter(t *testing.T) {
	m := testkit.Counter(3)
	res := compile(t, m, driver.Options{})
	if res.Stats.Funcs != len(m.Funcs) || len(res.Image.Functions) != len(m.Funcs) {
		t.Fatalf("expected %d functions, got %d", len(m.Funcs), res.Stats.Funcs)
	}
	if res.Stats.CodeBytes == 0 || res.Stats.CacheHit {
		t.Errorf("expected fresh code, got %+v", res.Stats)
	}
	var names []string
	for _, p := range res.Timings.Phases {
		names = append(names, p.Name)
	}
	joined := strings.Join(names, ",")
	for _, want := range []string{"validate", "optimize", "backend", "emit"} {
		if !strings.Contains(joined, want) {
			t.Errorf("expected phase %s in %s", want, joined)
		}
	}
}

func TestCompile_JobsDeterministic(t *testing.T) {
	serial := compile(t, testkit.Pipeline(), driver.Options{Jobs: 1})
	parallel := compile(t, testkit.Pipeline(), driver.Options{Jobs: 4})
	if !bytes.Equal(encode(t, serial.Image), encode(t, parallel.Image)) {
		t.Errorf("expected identical images for any job count")
	}
}

func TestCompile_Delta(t *testing.T) {
	base := compile(t, testkit.Counter(3), driver.Options{})
	delta := compile(t, testkit.Counter(3), driver.Options{Base: base.Image})
	img := delta.Image
	if !img.IsDelta() || int(img.BaseCode) != len(base.Image.Code) {
		t.Fatalf("expected a delta over %d bytes, got %d", len(base.Image.Code), img.BaseCode)
	}
	if len(img.StringTable) != 0 {
		t.Errorf("expected every string found in the base, got %d new", len(img.StringTable))
	}
	merged, err := bytecode.Merge(base.Image, img)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if len(merged.Functions) != 2*len(base.Image.Functions) {
		t.Errorf("expected both function sets, got %d", len(merged.Functions))
	}
}

func TestCompile_Cache(t *testing.T) {
	dir := t.TempDir()
	disk, err := driver.NewDiskCache(dir)
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	cache := driver.NewImageCache(4, disk)
	first := compile(t, testkit.Counter(2), driver.Options{Cache: cache})
	if first.Stats.CacheHit || first.Digest.IsZero() {
		t.Fatalf("expected a miss with a digest, got %+v", first.Stats)
	}
	second := compile(t, testkit.Counter(2), driver.Options{Cache: cache})
	if !second.Stats.CacheHit || second.Digest != first.Digest {
		t.Fatalf("expected a memory hit, got %+v", second.Stats)
	}

	// A fresh memory layer falls through to disk.
	reopened, err := driver.NewDiskCache(dir)
	if err != nil {
		t.Fatalf("reopen cache: %v", err)
	}
	third := compile(t, testkit.Counter(2), driver.Options{Cache: driver.NewImageCache(1, reopened)})
	if !third.Stats.CacheHit {
		t.Fatalf("expected a disk hit")
	}
	if !bytes.Equal(third.Image.Code, first.Image.Code) {
		t.Errorf("expected the cached code to match")
	}

	other := compile(t, testkit.Counter(5), driver.Options{Cache: cache})
	if other.Stats.CacheHit {
		t.Errorf("expected a different module to miss")
	}
	if err := disk.DropAll(); err != nil {
		t.Errorf("drop all: %v", err)
	}
}

func TestCompile_Errors(t *testing.T) {
	cfg := config.Default()
	cfg.RegAlloc.RegisterFileSize = 2
	if _, err := driver.Compile(context.Background(), testkit.Counter(1), driver.Options{Config: cfg}); err == nil {
		t.Errorf("expected an invalid config to fail")
	}

	m := ir.NewModule()
	m.NewFunc("main", ir.NoScopeID)
	if _, err := driver.Compile(context.Background(), m, driver.Options{Config: config.Default()}); err == nil {
		t.Errorf("expected an unterminated module to fail validation")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := driver.Compile(ctx, testkit.Counter(1), driver.Options{Config: config.Default()}); err == nil {
		t.Errorf("expected a cancelled context to fail")
	}
}

func TestCompile_ObserverAndTrace(t *testing.T) {
	var events []driver.PhaseEvent
	ring := trace.NewRing(1024, trace.LevelInstr)
	ctx := trace.WithTracer(context.Background(), ring)
	_, err := driver.Compile(ctx, testkit.Counter(1), driver.Options{
		Config:   config.Default(),
		Observer: func(ev driver.PhaseEvent) { events = append(events, ev) },
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if len(events) == 0 || len(events)%2 != 0 {
		t.Fatalf("expected paired phase events, got %d", len(events))
	}
	if events[0].Name != "validate" || events[0].Status != driver.PhaseStart {
		t.Errorf("expected validate to start first, got %+v", events[0])
	}
	seen := map[string]bool{}
	for _, ev := range ring.Snapshot() {
		seen[ev.Name] = true
	}
	for _, want := range []string{"compile", "backend main", "lower main", "regalloc main"} {
		if !seen[want] {
			t.Errorf("expected a %q span", want)
		}
	}
}

func TestWriteTimings(t *testing.T) {
	res := compile(t, testkit.Counter(1), driver.Options{})
	var buf bytes.Buffer
	if err := driver.WriteTimings(&buf, "counter.gir", res.Timings); err != nil {
		t.Fatalf("write timings: %v", err)
	}
	if !strings.Contains(buf.String(), `"kind":"compile"`) || !strings.Contains(buf.String(), `"path":"counter.gir"`) {
		t.Errorf("expected a JSON timing line, got %s", buf.String())
	}
}
