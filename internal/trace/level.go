package trace

import (
	"fmt"
	"strings"
)

// Level selects the finest scope a tracer records.
type Level uint8

const (
	LevelOff Level = iota
	LevelCrash
	LevelPass
	LevelFunc
	LevelInstr
)

var levelNames = [...]string{
	LevelOff:   "off",
	LevelCrash: "crash",
	LevelPass:  "pass",
	LevelFunc:  "func",
	LevelInstr: "instr",
}

func (l Level) String() string {
	if int(l) < len(levelNames) {
		return levelNames[l]
	}
	return "unknown"
}

// ParseLevel accepts the level names case-insensitively.
func ParseLevel(s string) (Level, error) {
	for l, name := range levelNames {
		if strings.EqualFold(s, name) {
			return Level(l), nil
		}
	}
	return LevelOff, fmt.Errorf("invalid trace level %q (expected %s)", s, strings.Join(levelNames[:], "|"))
}

// Allows reports whether events of scope are recorded at l.
func (l Level) Allows(scope Scope) bool {
	switch l {
	case LevelCrash:
		return scope <= ScopeDriver
	case LevelPass:
		return scope <= ScopePass
	case LevelFunc:
		return scope <= ScopeFunc
	case LevelInstr:
		return scope <= ScopeInstr
	}
	return false
}

// keeps is Allows for an event; heartbeats pass any live tracer.
func (l Level) keeps(ev *Event) bool {
	if ev.Kind == KindHeartbeat {
		return l > LevelOff
	}
	return l.Allows(ev.Scope)
}
