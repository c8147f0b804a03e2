package transfer

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/danielfilipeteixeira24/wintech2022-wiperf/logging"
)

// RunAll runs the roles concurrently until all of them return. When ctx is
// done, or when a role fails, every role is asked to stop. The first error
// is returned.
func RunAll(ctx context.Context, roles ...Role) error {
	g, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(gctx, func() {
		for _, r := range roles {
			r.Stop()
		}
	})
	defer stop()
	for _, r := range roles {
		r := r
		g.Go(func() error {
			return r.Run(gctx)
		})
	}
	err := g.Wait()
	if err != nil {
		logging.Logger.WithError(err).Error("role failed")
	}
	return err
}
