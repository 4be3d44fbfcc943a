// Package netguard controls when a qube under installation can reach the
// network.
//
// A sealed qube has a deny-all firewall and no netvm. An open qube accepts
// all traffic through its assigned netvm. Seal and Open are idempotent
// operations on the qube; Guard adds the bookkeeping one provisioning run
// needs on top of them.
package netguard

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jbweber/qubeforge/api/v1alpha1"
	"github.com/jbweber/qubeforge/internal/qubes"
	"github.com/jbweber/qubeforge/internal/status"
)

// Surface is the part of the control surface the guard needs.
type Surface interface {
	SetFirewall(ctx context.Context, name string, rule qubes.FirewallRule) error
	SetPref(ctx context.Context, name, key, value string) error
}

// Seal denies all traffic from the qube and detaches it from its netvm.
func Seal(ctx context.Context, s Surface, name string) error {
	if err := s.SetFirewall(ctx, name, qubes.FirewallDenyAll); err != nil {
		return fmt.Errorf("failed to seal %s: %w", name, err)
	}
	if err := s.SetPref(ctx, name, "netvm", ""); err != nil {
		return fmt.Errorf("failed to detach netvm of %s: %w", name, err)
	}
	return nil
}

// Open allows all traffic from the qube and attaches it to netvm.
func Open(ctx context.Context, s Surface, name, netvm string) error {
	if err := s.SetFirewall(ctx, name, qubes.FirewallAllowAll); err != nil {
		return fmt.Errorf("failed to open firewall of %s: %w", name, err)
	}
	if err := s.SetPref(ctx, name, "netvm", netvm); err != nil {
		return fmt.Errorf("failed to attach %s to netvm %s: %w", name, netvm, err)
	}
	return nil
}

// Guard tracks the network state of one instance during one run.
//
// Every method is a no-op for an instance without a netvm. Open may only
// happen once, and only after Seal.
type Guard struct {
	s    Surface
	inst *v1alpha1.Instance
	log  *zap.SugaredLogger

	sealed bool
	opened bool
}

// NewGuard creates a Guard for inst.
func NewGuard(s Surface, inst *v1alpha1.Instance, log *zap.SugaredLogger) *Guard {
	return &Guard{s: s, inst: inst, log: log}
}

// Configured reports whether the instance has a netvm to guard.
func (g *Guard) Configured() bool {
	return g.inst.HasNetwork()
}

// Opened reports whether Open has run.
func (g *Guard) Opened() bool {
	return g.opened
}

// Seal seals the instance.
func (g *Guard) Seal(ctx context.Context) error {
	if !g.Configured() {
		return nil
	}
	if g.opened {
		return fmt.Errorf("refusing to seal %s after its network was opened", g.inst.Name)
	}

	g.log.Infow("Sealing network", "qube", g.inst.Name)
	// Marked sealed before trying, so Release re-seals a partial seal
	g.sealed = true
	if err := Seal(ctx, g.s, g.inst.Name); err != nil {
		status.MarkNetworkSealFailed(g.inst, err)
		return err
	}
	status.MarkNetworkSealed(g.inst)
	return nil
}

// Open opens the instance's network to its netvm.
func (g *Guard) Open(ctx context.Context) error {
	if !g.Configured() {
		return nil
	}
	if !g.sealed {
		return fmt.Errorf("refusing to open network of %s before it was sealed", g.inst.Name)
	}
	if g.opened {
		return fmt.Errorf("network of %s already opened", g.inst.Name)
	}

	g.log.Infow("Opening network", "qube", g.inst.Name, "netvm", g.inst.Spec.NetVM)
	if err := Open(ctx, g.s, g.inst.Name, g.inst.Spec.NetVM); err != nil {
		return err
	}
	g.opened = true
	status.MarkNetworkOpen(g.inst)
	return nil
}

// Release leaves a run that ended early in a known state.
//
// A sealed instance that was never opened is sealed again, so a failure
// half way through sealing cannot leave a route out. The network is never
// opened here; an operator decides whether a half-provisioned qube gets one.
// Release is best-effort and only logs failures.
func (g *Guard) Release(ctx context.Context) {
	if !g.Configured() || !g.sealed || g.opened {
		return
	}

	if err := Seal(context.WithoutCancel(ctx), g.s, g.inst.Name); err != nil {
		status.MarkNetworkSealFailed(g.inst, err)
		g.log.Errorw("Failed to re-seal network after aborted run", "qube", g.inst.Name, "error", err)
		return
	}
	status.MarkNetworkResealed(g.inst)
	g.log.Warnw("Run aborted, network left sealed",
		"qube", g.inst.Name,
		"netvm", g.inst.Spec.NetVM,
		"hint", fmt.Sprintf("qvm-firewall %s reset && qvm-prefs %s netvm %s", g.inst.Name, g.inst.Name, g.inst.Spec.NetVM),
	)
}
