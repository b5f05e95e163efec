package trace

import "context"

type ctxKey struct{}

// state is what a context carries: the tracer and the innermost span.
type state struct {
	t    Tracer
	span uint64
}

func stateOf(ctx context.Context) state {
	if ctx != nil {
		if st, ok := ctx.Value(ctxKey{}).(state); ok {
			return st
		}
	}
	return state{t: Nop}
}

// WithTracer returns ctx carrying t with no open span.
func WithTracer(ctx context.Context, t Tracer) context.Context {
	if t == nil {
		t = Nop
	}
	return context.WithValue(ctx, ctxKey{}, state{t: t})
}

// FromContext returns the tracer in ctx, or Nop.
func FromContext(ctx context.Context) Tracer { return stateOf(ctx).t }

// Start opens a span under the one ctx carries. The returned context
// carries the new span; it is ctx itself when the span is filtered out.
func Start(ctx context.Context, scope Scope, name string) (context.Context, *Span) {
	st := stateOf(ctx)
	s := Begin(st.t, scope, name, st.span)
	if s == nil {
		return ctx, nil
	}
	return context.WithValue(ctx, ctxKey{}, state{t: st.t, span: s.id}), s
}

// Note records an instant event under the span in ctx.
func Note(ctx context.Context, scope Scope, name, detail string) {
	emitInstant(ctx, KindNote, scope, name, detail)
}

// Fallback records that a construct took its generic path. category names
// the specialization that did not apply.
func Fallback(ctx context.Context, category, detail string) {
	emitInstant(ctx, KindFallback, ScopeInstr, category, detail)
}

func emitInstant(ctx context.Context, kind Kind, scope Scope, name, detail string) {
	st := stateOf(ctx)
	if !Enabled(st.t, scope) {
		return
	}
	ev := newEvent(kind, scope, name)
	ev.Parent, ev.Detail = st.span, detail
	st.t.Emit(ev)
}
