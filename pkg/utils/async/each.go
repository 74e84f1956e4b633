package async

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/sync/errgroup"
)

// Each runs handler for every item with at most limit goroutines and waits for
// all of them.
//
// Behavior:
//   - limit <= 0 means no limit
//   - The first error cancels the context passed to the remaining handlers
//     and is returned after all started handlers finish
//   - A panicking handler is logged with its stack and reported as an error
func Each[T any](ctx context.Context, items []T, limit int, handler func(ctx context.Context, item T) error) error {
	eg, egCtx := errgroup.WithContext(ctx)
	if limit > 0 {
		eg.SetLimit(limit)
	}

	for _, item := range items {
		eg.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					stack := debug.Stack()
					ctxlog.From(egCtx).Error("panic in async handler",
						"recover", r,
						"stack", string(stack))
					err = goerr.New("panic in async handler", goerr.V("recover", fmt.Sprint(r)))
				}
			}()

			if err := egCtx.Err(); err != nil {
				return err
			}
			return handler(egCtx, item)
		})
	}

	return eg.Wait()
}
