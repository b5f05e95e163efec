package ir

import (
	"fmt"

	"fortio.org/safecast"
)

// ICE is an internal compiler error: an invariant of the compiler itself was
// violated. It is raised by panicking and recovered at the driver boundary.
type ICE struct {
	Msg string
}

func (e *ICE) Error() string {
	return "internal compiler error: " + e.Msg
}

// Panicf raises an ICE.
func Panicf(format string, args ...any) {
	panic(&ICE{Msg: fmt.Sprintf(format, args...)})
}

// ID32 narrows an arena length or index to an int32 id. Overflowing an
// arena is an ICE.
func ID32(n int, what string) int32 {
	id, err := safecast.Conv[int32](n)
	if err != nil {
		Panicf("%s id overflow: %v", what, err)
	}
	return id
}

// RecoverICE converts a pending ICE panic into *errp. Other panics propagate.
//
//	defer ir.RecoverICE(&err)
func RecoverICE(errp *error) {
	r := recover()
	if r == nil {
		return
	}
	if ice, ok := r.(*ICE); ok {
		*errp = ice
		return
	}
	panic(r)
}
