// Package trace records what the compiler does while it runs: driver
// phases, optimization passes, per-function backend work and the generic
// paths lowering falls back to.
//
// A Tracer travels in the context. Work opens a span under the span the
// context already carries:
//
//	ctx, span := trace.Start(ctx, trace.ScopeFunc, "lower "+f.Name)
//	defer span.End("")
//	trace.Fallback(ctx, "call-cache", "v12: computed arguments")
//
// The level picks the finest scope that is recorded. LevelPass keeps the
// driver and pass boundaries, LevelFunc adds per-function spans and
// LevelInstr adds single-instruction decisions. LevelCrash keeps only the
// driver phases and heartbeats, enough for a ring dumped after a crash or
// hang to show where the compile stopped.
//
// Events go to a Stream (text or NDJSON as they happen), a Ring (the last
// N events, dumped on exit) or both through Tee. The CLI wires these up
// from --trace, --trace-level, --trace-mode and --trace-heartbeat.
package trace
