package observ_test

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"gale/internal/observ"
)

func TestTimer_Report(t *testing.T) {
	tm := observ.NewTimer()
	idx := tm.Begin("lower")
	tm.End(idx, "3 funcs")
	if err := tm.Track("emit", func() error { return errors.New("boom") }); err == nil {
		t.Fatalf("expected Track to return the phase error")
	}
	rep := tm.Report()
	if len(rep.Phases) != 2 {
		t.Fatalf("expected 2 phases, got %d", len(rep.Phases))
	}
	if rep.Phases[0].Note != "3 funcs" || rep.Phases[1].Note != "failed" {
		t.Errorf("expected notes kept, got %+v", rep.Phases)
	}
	if s := tm.Summary(); !strings.Contains(s, "lower") || !strings.Contains(s, "total") {
		t.Errorf("expected a summary naming phases, got %q", s)
	}
}

func TestTimer_Concurrent(t *testing.T) {
	tm := observ.NewTimer()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tm.End(tm.Begin("fn"), "")
		}()
	}
	wg.Wait()
	if n := len(tm.Report().Phases); n != 8 {
		t.Errorf("expected 8 phases, got %d", n)
	}
}

func TestTimer_Nil(t *testing.T) {
	var tm *observ.Timer
	tm.End(tm.Begin("x"), "")
	if rep := tm.Report(); len(rep.Phases) != 0 {
		t.Errorf("expected an empty report, got %+v", rep)
	}
}
