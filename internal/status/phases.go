// Package status tracks the provisioning phase of an Instance and enforces
// the order in which phases may be entered.
package status

import (
	"fmt"
	"time"

	"github.com/jbweber/qubeforge/api/v1alpha1"
)

// Transition moves the instance into phase to.
//
// A fresh instance may only enter PhaseCreated. After that, to must be the
// phase directly following the current one, except that an optional phase
// may be skipped. Terminal instances cannot transition at all. On error the
// instance is left untouched.
func Transition(inst *v1alpha1.Instance, to v1alpha1.Phase) error {
	return transitionAt(inst, to, time.Now())
}

func transitionAt(inst *v1alpha1.Instance, to v1alpha1.Phase, now time.Time) error {
	if err := CanTransition(inst.GetPhase(), to); err != nil {
		return err
	}

	inst.Status.Phase = to
	inst.Status.History = append(inst.Status.History, v1alpha1.PhaseRecord{
		Phase:   to,
		Entered: now,
	})
	return nil
}

// CanTransition reports whether moving from phase from to phase to is legal.
func CanTransition(from, to v1alpha1.Phase) error {
	toIdx := to.Index()
	if toIdx < 0 {
		return fmt.Errorf("unknown phase %q", to)
	}

	// Fresh instance
	if from == "" {
		if to != v1alpha1.PhaseCreated {
			return fmt.Errorf("cannot transition to %s before %s", to, v1alpha1.PhaseCreated)
		}
		return nil
	}

	fromIdx := from.Index()
	if fromIdx < 0 {
		return fmt.Errorf("unknown phase %q", from)
	}
	if from.IsTerminal() {
		return fmt.Errorf("cannot transition to %s from terminal phase %s", to, from)
	}

	phases := v1alpha1.Phases()
	next := fromIdx + 1
	for next < toIdx && phases[next].IsOptional() {
		next++
	}
	if toIdx != fromIdx+1 && toIdx != next {
		return fmt.Errorf("cannot transition to %s from phase %s", to, from)
	}
	return nil
}

// Duration returns the time elapsed between entering the first recorded
// phase and entering the last one.
func Duration(inst *v1alpha1.Instance) time.Duration {
	h := inst.Status.History
	if len(h) < 2 {
		return 0
	}
	return h[len(h)-1].Entered.Sub(h[0].Entered)
}
