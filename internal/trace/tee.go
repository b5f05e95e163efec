package trace

import "errors"

type tee struct {
	level   Level
	tracers []Tracer
}

// Tee sends every event to each of tracers.
func Tee(level Level, tracers ...Tracer) Tracer {
	return &tee{level: level, tracers: tracers}
}

func (t *tee) Emit(ev Event) {
	for _, tr := range t.tracers {
		tr.Emit(ev)
	}
}

func (t *tee) Flush() error {
	var errs []error
	for _, tr := range t.tracers {
		errs = append(errs, tr.Flush())
	}
	return errors.Join(errs...)
}

func (t *tee) Close() error {
	var errs []error
	for _, tr := range t.tracers {
		errs = append(errs, tr.Close())
	}
	return errors.Join(errs...)
}

func (t *tee) Level() Level { return t.level }

// Ring returns the first ring among the tee'd tracers, if any.
func (t *tee) Ring() *Ring {
	for _, tr := range t.tracers {
		if r, ok := tr.(*Ring); ok {
			return r
		}
	}
	return nil
}

// RingOf returns the ring t keeps events in, directly or through Tee.
func RingOf(t Tracer) *Ring {
	switch v := t.(type) {
	case *Ring:
		return v
	case *tee:
		return v.Ring()
	}
	return nil
}
