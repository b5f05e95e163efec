package prof_test

import (
	"os"
	"path/filepath"
	"testing"

	"gale/internal/prof"
)

func TestSession(t *testing.T) {
	dir := t.TempDir()
	opts := prof.Options{
		CPU:   filepath.Join(dir, "cpu.pprof"),
		Heap:  filepath.Join(dir, "heap.pprof"),
		Trace: filepath.Join(dir, "trace.out"),
	}
	s, err := prof.Start(opts)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Errorf("expected a second Stop to be a no-op, got %v", err)
	}
	for _, p := range []string{opts.CPU, opts.Heap, opts.Trace} {
		if st, err := os.Stat(p); err != nil || st.Size() == 0 {
			t.Errorf("expected %s written, got %v", p, err)
		}
	}
}

func TestStartFailureLeavesNothingRunning(t *testing.T) {
	dir := t.TempDir()
	_, err := prof.Start(prof.Options{
		CPU:   filepath.Join(dir, "cpu.pprof"),
		Trace: filepath.Join(dir, "missing", "trace.out"),
	})
	if err == nil {
		t.Fatalf("expected an error for an unwritable trace path")
	}
	// The CPU profiler must be free again.
	s, err := prof.Start(prof.Options{CPU: filepath.Join(dir, "again.pprof")})
	if err != nil {
		t.Fatalf("expected the cpu profiler released, got %v", err)
	}
	_ = s.Stop()
}
