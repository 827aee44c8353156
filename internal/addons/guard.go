package addons

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/ryanm101/gami/internal/metrics"
)

// runGuarded runs fn on its own goroutine so that a panic or a hang in addon
// code cannot take the host down with it. done runs when fn returns, which
// may be long after runGuarded gave up on it.
func runGuarded(ctx context.Context, addonID, op string, timeout time.Duration, fn func(context.Context) error, done func()) error {
	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result := make(chan error, 1)
	go func() {
		defer done()
		defer func() {
			if r := recover(); r != nil {
				metrics.AddonFaults.WithLabelValues(addonID, "panic").Inc()
				result <- &AddonFaultError{AddonID: addonID, Op: op, Value: r, Stack: debug.Stack()}
			}
		}()
		result <- fn(callCtx)
	}()

	select {
	case err := <-result:
		return err
	case <-callCtx.Done():
		if err := ctx.Err(); err != nil {
			return err
		}
		metrics.AddonFaults.WithLabelValues(addonID, "timeout").Inc()
		return fmt.Errorf("%w: %s after %s", ErrAddonTimeout, op, timeout)
	}
}
