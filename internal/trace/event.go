package trace

import "time"

// Kind of a trace event.
type Kind uint8

const (
	KindBegin Kind = iota + 1
	KindEnd
	// KindNote is an instant event inside a span.
	KindNote
	// KindFallback marks a construct compiled through its generic path.
	KindFallback
	KindHeartbeat
)

var kindNames = [...]string{
	KindBegin:     "begin",
	KindEnd:       "end",
	KindNote:      "note",
	KindFallback:  "fallback",
	KindHeartbeat: "heartbeat",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return "unknown"
}

// Scope is the granularity of an event; coarser scopes compare lower.
type Scope uint8

const (
	// ScopeDriver covers one compile request and its phases.
	ScopeDriver Scope = iota + 1
	// ScopePass covers an optimization pass over the module.
	ScopePass
	// ScopeFunc covers backend work on one function.
	ScopeFunc
	// ScopeInstr covers decisions about single instructions.
	ScopeInstr
)

var scopeNames = [...]string{
	ScopeDriver: "driver",
	ScopePass:   "pass",
	ScopeFunc:   "func",
	ScopeInstr:  "instr",
}

func (s Scope) String() string {
	if int(s) < len(scopeNames) && scopeNames[s] != "" {
		return scopeNames[s]
	}
	return "unknown"
}

// Field is one key/value annotation; fields keep the order they were added.
type Field struct {
	Key   string
	Value string
}

// Event is one trace record.
type Event struct {
	Seq    uint64
	Time   time.Time
	Kind   Kind
	Scope  Scope
	Span   uint64
	Parent uint64
	Name   string
	Detail string
	// Elapsed is set on KindEnd.
	Elapsed time.Duration
	Fields  []Field
}
