package trace

import (
	"strconv"
	"sync"
	"time"
)

// Watch emits a heartbeat to t every interval until the returned stop
// function is called. Each beat carries the number of open spans and the
// span begun last, which is where a stuck compile sits. stop may be called
// more than once.
func Watch(t Tracer, interval time.Duration) (stop func()) {
	if t == nil || t.Level() == LevelOff || interval <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		tick := time.NewTicker(interval)
		defer tick.Stop()
		for n := 1; ; n++ {
			select {
			case <-tick.C:
				t.Emit(beat(n))
			case <-done:
				return
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			wg.Wait()
		})
	}
}

func beat(n int) Event {
	ev := newEvent(KindHeartbeat, ScopeDriver, "heartbeat")
	ev.Detail = "#" + strconv.Itoa(n)
	ev.Fields = []Field{{Key: "open", Value: strconv.FormatInt(open.Load(), 10)}}
	if name := latest.Load(); name != nil {
		ev.Fields = append(ev.Fields, Field{Key: "last", Value: *name})
	}
	return ev
}
