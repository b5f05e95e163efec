// Package config holds the compiler tunables and loads them from gale.toml.
package config

import (
	"errors"
	"fmt"
)

// Config is the full set of compiler tunables.
type Config struct {
	Pipeline Pipeline `toml:"pipeline"`
	Lowering Lowering `toml:"lowering"`
	RegAlloc RegAlloc `toml:"regalloc"`
	Emit     Emit     `toml:"emit"`
}

// Pipeline configures the optimization passes.
type Pipeline struct {
	// Verify runs ir.Validate after every pass.
	Verify bool `toml:"verify"`
	// InlineMaxSize bounds the instruction count of an inlined callee.
	InlineMaxSize int `toml:"inline_max_size"`
	// Disable lists pass names that are skipped.
	Disable []string `toml:"disable"`
}

// Lowering configures instruction selection policy.
type Lowering struct {
	// StringSwitchThreshold is the case count a string switch must exceed
	// to be lowered to a jump table.
	StringSwitchThreshold int `toml:"string_switch_threshold"`
	// PlaceholderPenalty is the cost of one placeholder entry in a literal
	// buffer, in literal entries.
	PlaceholderPenalty int `toml:"placeholder_penalty"`
	// MaxBufferEntries caps the entries packed into one literal buffer.
	MaxBufferEntries int `toml:"max_buffer_entries"`
}

// RegAlloc configures the register allocator.
type RegAlloc struct {
	// RegisterFileSize is the number of allocatable registers per frame.
	RegisterFileSize int `toml:"register_file_size"`
}

// Emit configures the bytecode emitter.
type Emit struct {
	// DebugInfo enables the source position table.
	DebugInfo bool `toml:"debug_info"`
}

// Default returns the built-in tunables.
func Default() Config {
	return Config{
		Pipeline: Pipeline{
			Verify:        false,
			InlineMaxSize: 24,
		},
		Lowering: Lowering{
			StringSwitchThreshold: 8,
			PlaceholderPenalty:    2,
			MaxBufferEntries:      256,
		},
		RegAlloc: RegAlloc{
			RegisterFileSize: 250,
		},
		Emit: Emit{
			DebugInfo: true,
		},
	}
}

var (
	// ErrInvalid wraps every validation failure.
	ErrInvalid = errors.New("invalid config")
)

// MinRegisterFileSize leaves room for the allocator's scratch registers.
const MinRegisterFileSize = 8

// Validate checks value ranges.
func (c Config) Validate() error {
	var errs []error
	if c.Pipeline.InlineMaxSize < 0 {
		errs = append(errs, fmt.Errorf("%w: pipeline.inline_max_size must be >= 0, got %d", ErrInvalid, c.Pipeline.InlineMaxSize))
	}
	if c.Lowering.StringSwitchThreshold < 0 {
		errs = append(errs, fmt.Errorf("%w: lowering.string_switch_threshold must be >= 0, got %d", ErrInvalid, c.Lowering.StringSwitchThreshold))
	}
	if c.Lowering.PlaceholderPenalty < 0 {
		errs = append(errs, fmt.Errorf("%w: lowering.placeholder_penalty must be >= 0, got %d", ErrInvalid, c.Lowering.PlaceholderPenalty))
	}
	if c.Lowering.MaxBufferEntries < 1 || c.Lowering.MaxBufferEntries > 1<<16 {
		errs = append(errs, fmt.Errorf("%w: lowering.max_buffer_entries must be in [1, 65536], got %d", ErrInvalid, c.Lowering.MaxBufferEntries))
	}
	if c.RegAlloc.RegisterFileSize < MinRegisterFileSize || c.RegAlloc.RegisterFileSize > 1<<16 {
		errs = append(errs, fmt.Errorf("%w: regalloc.register_file_size must be in [%d, 65536], got %d", ErrInvalid, MinRegisterFileSize, c.RegAlloc.RegisterFileSize))
	}
	return errors.Join(errs...)
}

// Disabled reports whether the named pass is switched off.
func (p Pipeline) Disabled(name string) bool {
	for _, d := range p.Disable {
		if d == name {
			return true
		}
	}
	return false
}
