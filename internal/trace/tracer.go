package trace

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Tracer receives events. Implementations are safe for concurrent use.
type Tracer interface {
	Emit(ev Event)
	Flush() error
	Close() error
	Level() Level
}

// Enabled reports whether t records events of scope.
func Enabled(t Tracer, scope Scope) bool {
	return t != nil && t.Level().Allows(scope)
}

// Mode selects where events are kept.
type Mode uint8

const (
	ModeStream Mode = iota + 1
	ModeRing
	ModeBoth
)

func (m Mode) String() string {
	switch m {
	case ModeStream:
		return "stream"
	case ModeRing:
		return "ring"
	case ModeBoth:
		return "both"
	}
	return "unknown"
}

// ParseMode accepts stream, ring or both.
func ParseMode(s string) (Mode, error) {
	for _, m := range []Mode{ModeStream, ModeRing, ModeBoth} {
		if strings.EqualFold(s, m.String()) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("invalid trace mode %q (expected stream|ring|both)", s)
}

// DefaultRingSize is the ring capacity when none is configured.
const DefaultRingSize = 4096

// Config describes a tracer built by Open.
type Config struct {
	Level Level
	Mode  Mode
	// Format defaults to NDJSON for a .json or .ndjson Path, text otherwise.
	Format Format
	// Output takes precedence over Path. An empty Path or "-" is stderr.
	Output   io.Writer
	Path     string
	RingSize int
}

// Open builds the tracer cfg describes. LevelOff yields Nop.
func Open(cfg Config) (Tracer, error) {
	if cfg.Level == LevelOff {
		return Nop, nil
	}
	if cfg.RingSize <= 0 {
		cfg.RingSize = DefaultRingSize
	}
	if cfg.Format == FormatAuto {
		cfg.Format = formatFor(cfg.Path)
	}
	switch cfg.Mode {
	case ModeRing:
		return NewRing(cfg.RingSize, cfg.Level), nil
	case ModeStream, ModeBoth:
		w, err := openOutput(cfg)
		if err != nil {
			return nil, err
		}
		s := NewStream(w, cfg.Level, cfg.Format)
		if cfg.Mode == ModeStream {
			return s, nil
		}
		return Tee(cfg.Level, s, NewRing(cfg.RingSize, cfg.Level)), nil
	}
	return nil, fmt.Errorf("trace: unknown mode %v", cfg.Mode)
}

func formatFor(path string) Format {
	switch filepath.Ext(path) {
	case ".json", ".ndjson":
		return FormatNDJSON
	}
	return FormatText
}

func openOutput(cfg Config) (io.Writer, error) {
	if cfg.Output != nil {
		return cfg.Output, nil
	}
	if cfg.Path == "" || cfg.Path == "-" {
		return nopCloser{os.Stderr}, nil
	}
	f, err := os.Create(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("trace: open output: %w", err)
	}
	return f, nil
}

// nopCloser keeps Close from closing stderr.
type nopCloser struct{ io.Writer }
