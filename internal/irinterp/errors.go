package irinterp

import (
	"fmt"

	"gale/internal/ir"
)

// ErrorCode identifies why the interpreter gave up on a program. These are
// failures of the IR, not exceptions of the interpreted program.
type ErrorCode int

// Stable error codes - do not change values.
const (
	ErrMalformed     ErrorCode = 1001 // IR1001: operand or terminator the interpreter cannot execute
	ErrScopeMissing  ErrorCode = 1002 // IR1002: no environment of the requested scope on the chain
	ErrStepLimit     ErrorCode = 1003 // IR1003: step budget exhausted
	ErrUnknownGlobal ErrorCode = 1004 // IR1004: unsupported builtin
)

func (c ErrorCode) String() string {
	return fmt.Sprintf("IR%d", c)
}

// Error reports an interpreter failure with the location it happened at.
type Error struct {
	Code    ErrorCode
	Message string
	Func    string
	Block   ir.BlockID
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s (in %s bb%d)", e.Code, e.Message, e.Func, e.Block)
}

// Thrown carries an exception of the interpreted program through Go
// returns until a handler block or the top level receives it.
type Thrown struct {
	Value Value
}

func (t *Thrown) Error() string {
	return "uncaught " + t.Value.ToString()
}

func (m *Machine) throwError(class, format string, args ...any) *Thrown {
	o := NewObject()
	o.Class = class
	o.define("name", String(class))
	o.define("message", String(fmt.Sprintf(format, args...)))
	return &Thrown{Value: ObjectValue(o)}
}
