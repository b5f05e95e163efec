package trace

import (
	"io"
	"sync"
)

// Ring keeps the most recent events in memory.
type Ring struct {
	mu     sync.Mutex
	events []Event
	next   int
	// total counts every event kept, overwritten ones included.
	total uint64
	level Level
}

func NewRing(size int, level Level) *Ring {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &Ring{events: make([]Event, size), level: level}
}

func (r *Ring) Emit(ev Event) {
	if !r.level.keeps(&ev) {
		return
	}
	r.mu.Lock()
	r.events[r.next] = ev
	r.next = (r.next + 1) % len(r.events)
	r.total++
	r.mu.Unlock()
}

// Snapshot returns the kept events, oldest first.
func (r *Ring) Snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.total < uint64(len(r.events)) {
		return append([]Event(nil), r.events[:r.next]...)
	}
	out := make([]Event, 0, len(r.events))
	out = append(out, r.events[r.next:]...)
	return append(out, r.events[:r.next]...)
}

// Dropped is the number of events overwritten by newer ones.
func (r *Ring) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.total <= uint64(len(r.events)) {
		return 0
	}
	return r.total - uint64(len(r.events))
}

// Dump writes the snapshot to w.
func (r *Ring) Dump(w io.Writer, format Format) error {
	var buf []byte
	for _, ev := range r.Snapshot() {
		buf = AppendEvent(buf[:0], &ev, format)
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

func (r *Ring) Flush() error { return nil }
func (r *Ring) Close() error { return nil }
func (r *Ring) Level() Level { return r.level }
