package driver

import "time"

// PhaseStatus reports whether a phase started or finished.
type PhaseStatus int

const (
	// PhaseStart indicates that a compilation phase has begun.
	PhaseStart PhaseStatus = iota
	PhaseEnd
)

// PhaseEvent describes a timing phase boundary.
type PhaseEvent struct {
	Name    string
	Status  PhaseStatus
	Elapsed time.Duration
}

// PhaseObserver receives phase events emitted during Compile.
type PhaseObserver func(PhaseEvent)

func (o PhaseObserver) phase(name string, fn func() error) func() error {
	return func() error {
		if o == nil {
			return fn()
		}
		o(PhaseEvent{Name: name, Status: PhaseStart})
		start := time.Now()
		err := fn()
		o(PhaseEvent{Name: name, Status: PhaseEnd, Elapsed: time.Since(start)})
		return err
	}
}
