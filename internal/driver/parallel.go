package driver

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"gale/internal/config"
	"gale/internal/ir"
	"gale/internal/lir"
	"gale/internal/lower"
	"gale/internal/regalloc"
	"gale/internal/trace"
)

// backendResult is the lowered and allocated form of one function.
type backendResult struct {
	Func  *lir.Func
	Alloc *regalloc.Assignment
}

// lowerAll lowers and allocates every function of m. Functions are
// independent at this stage, so up to jobs of them run at once; results
// keep module order.
func lowerAll(ctx context.Context, m *ir.Module, cfg config.Config, jobs int) ([]backendResult, error) {
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	// each goroutine owns results[i], no mutex needed
	results := make([]backendResult, len(m.Funcs))
	if len(m.Funcs) == 0 {
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(m.Funcs)))
	for i, f := range m.Funcs {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			out, err := backend(gctx, m, f, cfg)
			if err != nil {
				return err
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func backend(ctx context.Context, m *ir.Module, f *ir.Func, cfg config.Config) (_ backendResult, err error) {
	defer ir.RecoverICE(&err)
	defer func() {
		if err != nil {
			err = fmt.Errorf("function %s: %w", f.Name, err)
		}
	}()
	ctx, span := trace.Start(ctx, trace.ScopeFunc, "backend "+f.Name)
	defer span.End("")

	lf, err := lower.Lower(ctx, m, f, cfg.Lowering)
	if err != nil {
		return backendResult{}, err
	}
	a, err := regalloc.AllocateContext(ctx, lf, cfg.RegAlloc)
	if err != nil {
		return backendResult{}, err
	}
	return backendResult{Func: lf, Alloc: a}, nil
}
