// Package retry re-runs operations that fail for transient reasons.
package retry

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	k8swait "k8s.io/apimachinery/pkg/util/wait"
)

// Forever runs op until it succeeds, sleeping backoff after every failure.
//
// There is no attempt limit: qube starts fail when dom0 is short on memory
// and succeed once an operator frees some. Every failure is logged as a
// warning. The only error returned is the one from ctx ending.
func Forever(ctx context.Context, log *zap.SugaredLogger, backoff time.Duration, what string, op func(ctx context.Context) error) error {
	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	attempt := 0
	succeeded := false
	// UntilWithContext measures the period from the end of each attempt, so
	// a slow failing start is still followed by a full backoff.
	k8swait.UntilWithContext(runCtx, func(runCtx context.Context) {
		attempt++
		if err := op(runCtx); err != nil {
			log.Warnw("Operation failed, likely transient resource exhaustion (e.g. not enough free memory), retrying",
				"operation", what,
				"attempt", attempt,
				"retryIn", backoff,
				"error", err,
			)
			return
		}
		succeeded = true
		stop()
	}, backoff)

	if !succeeded {
		return fmt.Errorf("gave up on %s after %d attempts: %w", what, attempt, context.Cause(ctx))
	}
	return nil
}

// Once runs op and, if it fails, runs it exactly one more time.
func Once(ctx context.Context, log *zap.SugaredLogger, what string, op func(ctx context.Context) error) error {
	err := op(ctx)
	if err == nil {
		return nil
	}
	log.Warnw("Operation failed, retrying once", "operation", what, "error", err)

	if err := op(ctx); err != nil {
		return fmt.Errorf("%s failed twice: %w", what, err)
	}
	return nil
}
