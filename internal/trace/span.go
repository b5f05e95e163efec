package trace

import (
	"sync/atomic"
	"time"
)

var (
	seq     atomic.Uint64
	spanIDs atomic.Uint64
	// open and latest feed the heartbeat.
	open   atomic.Int64
	latest atomic.Pointer[string]
)

func newEvent(kind Kind, scope Scope, name string) Event {
	return Event{Seq: seq.Add(1), Time: time.Now(), Kind: kind, Scope: scope, Name: name}
}

// Span is an open interval of work. A nil *Span is valid and records
// nothing, which is what Begin returns when its scope is filtered out.
type Span struct {
	t      Tracer
	id     uint64
	parent uint64
	scope  Scope
	name   string
	start  time.Time
	fields []Field
	ended  bool
}

// Begin opens a span under parent (0 for a root) and emits its begin
// event.
func Begin(t Tracer, scope Scope, name string, parent uint64) *Span {
	if !Enabled(t, scope) {
		return nil
	}
	s := &Span{t: t, id: spanIDs.Add(1), parent: parent, scope: scope, name: name}
	ev := newEvent(KindBegin, scope, name)
	ev.Span, ev.Parent = s.id, parent
	s.start = ev.Time
	open.Add(1)
	latest.Store(&s.name)
	t.Emit(ev)
	return s
}

// Set annotates the end event.
func (s *Span) Set(key, value string) *Span {
	if s != nil {
		s.fields = append(s.fields, Field{Key: key, Value: value})
	}
	return s
}

// End closes the span with an optional detail and returns its duration.
// Only the first call emits.
func (s *Span) End(detail string) time.Duration {
	if s == nil || s.ended {
		return 0
	}
	s.ended = true
	open.Add(-1)
	ev := newEvent(KindEnd, s.scope, s.name)
	ev.Span, ev.Parent = s.id, s.parent
	ev.Detail = detail
	ev.Elapsed = ev.Time.Sub(s.start)
	ev.Fields = s.fields
	s.t.Emit(ev)
	return ev.Elapsed
}

// ID is 0 for a nil span.
func (s *Span) ID() uint64 {
	if s == nil {
		return 0
	}
	return s.id
}
