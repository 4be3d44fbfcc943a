// Package poll waits for qubes to reach states observed through the
// control surface.
//
// All waits are unbounded by default: installer phases are long and driven
// by the guest, so the only way out besides the predicate holding is
// cancelling ctx. A failing query never ends a wait, it just counts as
// "not yet"; qubes that do not exist yet or are not yet visible as running
// make the qvm tools exit non-zero.
package poll

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	k8swait "k8s.io/apimachinery/pkg/util/wait"
)

// Predicate is a state check. An error is treated like false.
type Predicate func(ctx context.Context) (bool, error)

// Poller waits on predicates at a fixed interval.
type Poller struct {
	Interval time.Duration
	Log      *zap.SugaredLogger
}

// New creates a Poller. A nil log disables debug output.
func New(interval time.Duration, log *zap.SugaredLogger) *Poller {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Poller{Interval: interval, Log: log}
}

// AwaitState blocks until predicate holds, checking immediately and then
// every Interval. It returns an error only when ctx is done.
func (p *Poller) AwaitState(ctx context.Context, what string, predicate Predicate) error {
	err := k8swait.PollUntilContextCancel(ctx, p.Interval, true, func(ctx context.Context) (bool, error) {
		ok, err := predicate(ctx)
		if err != nil {
			p.Log.Debugw("State query failed, will retry", "waitingFor", what, "error", err)
			return false, nil
		}
		return ok, nil
	})
	if err != nil {
		return fmt.Errorf("stopped waiting for %s: %w", what, err)
	}
	return nil
}

// WaitForEdge waits for up to hold and afterwards for down to hold.
//
// Waiting for the leading edge first is what keeps a fast
// start-then-finish from being missed: checking down alone could see the
// state from before the event even began.
func (p *Poller) WaitForEdge(ctx context.Context, what string, up, down Predicate) error {
	if err := p.AwaitState(ctx, what+" to begin", up); err != nil {
		return err
	}
	return p.AwaitState(ctx, what+" to end", down)
}

// Not negates a predicate. A query error stays an error.
func Not(pred Predicate) Predicate {
	return func(ctx context.Context) (bool, error) {
		ok, err := pred(ctx)
		if err != nil {
			return false, err
		}
		return !ok, nil
	}
}

// Any holds when at least one of preds holds. Predicates are evaluated in
// order and evaluation stops at the first that holds; an error from one
// predicate does not hide a later one holding.
func Any(preds ...Predicate) Predicate {
	return func(ctx context.Context) (bool, error) {
		var firstErr error
		for _, pred := range preds {
			ok, err := pred(ctx)
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			if ok {
				return true, nil
			}
		}
		return false, firstErr
	}
}
