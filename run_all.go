package comlink

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Runner is implemented by [Consumer].
type Runner interface {
	Run(ctx context.Context, stop *StopToken) error
}

// RunAll runs every runner concurrently with the same stop token and waits
// for all of them. The first runner to fail cancels the others; its error is
// returned. When stop is set, all runners return nil and so does RunAll.
func RunAll(ctx context.Context, stop *StopToken, runners ...Runner) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, r := range runners {
		g.Go(func() error {
			return r.Run(gctx, stop)
		})
	}

	return g.Wait()
}
