// Package driver runs the whole backend over one module: validation, the
// optimization pipeline, lowering, register allocation and emission.
package driver

import (
	"context"
	"fmt"

	"gale/internal/bytecode"
	"gale/internal/config"
	"gale/internal/ir"
	"gale/internal/observ"
	"gale/internal/opt"
	"gale/internal/trace"
)

// Options configures Compile.
type Options struct {
	Config config.Config
	// Jobs bounds the functions lowered in parallel; <= 0 uses GOMAXPROCS.
	Jobs int
	// Base turns the output into a delta over a full image.
	Base *bytecode.Image
	// NoOptimize skips the optimization pipeline.
	NoOptimize bool
	// Cache short-circuits compilations seen before. May be nil.
	Cache    *ImageCache
	Observer PhaseObserver
}

// Stats summarizes one compilation.
type Stats struct {
	Funcs        int
	CodeBytes    int
	Strings      int
	Literals     int
	SwitchTables int
	FrameRegs    int
	SpillSlots   int
	Spills       int
	Reloads      int
	Coalesced    int
	CacheHit     bool
}

// Result is the output of Compile.
type Result struct {
	Image   *bytecode.Image
	Digest  Digest
	Timings observ.Report
	Stats   Stats
}

// Compile translates m into a bytecode image. m is optimized in place.
func Compile(ctx context.Context, m *ir.Module, opts Options) (res *Result, err error) {
	defer ir.RecoverICE(&err)
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	ctx, span := trace.Start(ctx, trace.ScopeDriver, "compile")
	defer func() {
		if err != nil || res == nil {
			span.End("failed")
		} else {
			span.End(fmt.Sprintf("funcs=%d code=%d", res.Stats.Funcs, res.Stats.CodeBytes))
		}
	}()

	timer := observ.NewTimer()
	res = &Result{}
	phase := func(name string, fn func() error) error {
		return timer.Track(name, opts.Observer.phase(name, fn))
	}

	if err := phase("validate", func() error {
		if verr := ir.Validate(m); verr != nil {
			return fmt.Errorf("invalid input module: %w", verr)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	if opts.Cache != nil {
		if err := phase("cache", func() error {
			d, derr := ComputeDigest(m, opts.Config, opts.Base)
			if derr != nil {
				return derr
			}
			res.Digest = d
			img, hit, gerr := opts.Cache.Get(d)
			if gerr != nil {
				trace.Note(ctx, trace.ScopeDriver, "cache-error", gerr.Error())
				return nil
			}
			if hit {
				res.Image = img
				res.Stats.CacheHit = true
			}
			return nil
		}); err != nil {
			return nil, err
		}
		if res.Stats.CacheHit {
			fillImageStats(&res.Stats, res.Image)
			res.Timings = timer.Report()
			return res, nil
		}
	}

	if !opts.NoOptimize {
		if err := phase("optimize", func() error {
			p := opt.Default(opts.Config.Pipeline)
			p.Timer = timer
			return p.Run(ctx, m)
		}); err != nil {
			return nil, err
		}
	}

	var funcs []backendResult
	if err := phase("backend", func() (berr error) {
		funcs, berr = lowerAll(ctx, m, opts.Config, opts.Jobs)
		return berr
	}); err != nil {
		return nil, err
	}

	if err := phase("emit", func() error {
		e, eerr := bytecode.NewEmitter(opts.Base)
		if eerr != nil {
			return eerr
		}
		e.SetDebugInfo(opts.Config.Emit.DebugInfo)
		for _, r := range funcs {
			if aerr := e.AddFunction(r.Func); aerr != nil {
				return fmt.Errorf("function %s: %w", r.Func.Name, aerr)
			}
			res.Stats.FrameRegs = max(res.Stats.FrameRegs, r.Func.Frame.Size)
			res.Stats.SpillSlots += r.Func.Frame.SpillSlots
			res.Stats.Spills += r.Alloc.Spills
			res.Stats.Reloads += r.Alloc.Reloads
			res.Stats.Coalesced += r.Alloc.Coalesced
		}
		res.Image = e.Finish()
		return nil
	}); err != nil {
		return nil, err
	}
	fillImageStats(&res.Stats, res.Image)

	if opts.Cache != nil && !res.Digest.IsZero() {
		if perr := opts.Cache.Put(res.Digest, res.Image); perr != nil {
			trace.Note(ctx, trace.ScopeDriver, "cache-error", perr.Error())
		}
	}
	res.Timings = timer.Report()
	return res, nil
}

func fillImageStats(s *Stats, img *bytecode.Image) {
	s.Funcs = len(img.Functions)
	s.CodeBytes = len(img.Code)
	s.Strings = len(img.StringTable)
	s.Literals = len(img.Literals)
	s.SwitchTables = len(img.SwitchTables)
}
