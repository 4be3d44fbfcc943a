package vm

import (
	"context"
	"fmt"
	"path"

	"go.uber.org/zap"

	"github.com/jbweber/qubeforge/api/v1alpha1"
	"github.com/jbweber/qubeforge/internal/naming"
	"github.com/jbweber/qubeforge/internal/netguard"
	"github.com/jbweber/qubeforge/internal/policy"
	"github.com/jbweber/qubeforge/internal/qubes"
	"github.com/jbweber/qubeforge/internal/retry"
	"github.com/jbweber/qubeforge/internal/status"
)

// Post-installation scripts in the bundle copied from the resources qube.
const (
	scriptSeamless = "seamless.bat"
	scriptOptimize = "optimize.bat"
	scriptSpyless  = "spyless.bat"
	scriptWhonix   = "whonix.bat"
	scriptPackages = "packages.bat"
	scriptCustom   = "custom.bat"

	// anonTag makes dom0 treat the qube like other Whonix workstations.
	anonTag = "anon-vm"
)

// customize copies the post-installation bundle into the qube and runs the
// requested scripts. The file copy grant lives exactly as long as this
// call.
func (p *Provisioner) customize(ctx context.Context, inst *v1alpha1.Instance, guard *netguard.Guard, log *zap.SugaredLogger) error {
	name := inst.Name
	resources := p.media.Resources()

	grant, err := p.policy.Allow(policy.FileCopyService, resources, name)
	if err != nil {
		return fmt.Errorf("failed to allow file copy from %s: %w", resources, err)
	}
	status.MarkPolicyGranted(inst, grant.Path())
	revoked := false
	revoke := func() error {
		if revoked {
			return nil
		}
		revoked = true
		if err := grant.Revoke(); err != nil {
			status.MarkPolicyRevokeFailed(inst, err)
			return err
		}
		status.MarkPolicyRevoked(inst)
		return nil
	}
	defer func() {
		if err := revoke(); err != nil {
			log.Errorw("Failed to revoke file copy policy", "path", grant.Path(), "error", err)
		}
	}()
	log.Debugw("Allowed file copy", "from", resources, "policy", grant.Path())

	bundle := p.media.PostBundle()
	err = retry.Once(ctx, log, "copy post-installation scripts", func(ctx context.Context) error {
		return p.surface.CopyIn(ctx, resources, name, bundle)
	})
	if err != nil {
		return err
	}
	dir := naming.GuestPath(naming.GuestIncomingDir(resources), path.Base(bundle))

	optional := []struct {
		enabled bool
		script  string
	}{
		{p.opts.Seamless, scriptSeamless},
		{p.opts.Optimize, scriptOptimize},
		{p.opts.Spyless, scriptSpyless},
		{p.opts.Whonix, scriptWhonix},
	}
	for _, o := range optional {
		if o.enabled {
			p.runScript(ctx, log, name, dir, o.script)
		}
	}
	if p.opts.Whonix {
		p.bestEffort(ctx, log, "tag "+anonTag, func(ctx context.Context) error {
			return p.surface.AddTag(ctx, name, anonTag)
		})
	}

	if len(p.opts.Packages) > 0 {
		if err := guard.Open(ctx); err != nil {
			return err
		}
		p.runScript(ctx, log, name, dir, scriptPackages, p.opts.Packages...)
		p.bestEffort(ctx, log, "app menu sync", func(ctx context.Context) error {
			return p.surface.SyncAppMenus(ctx, name)
		})
	}

	p.runScript(ctx, log, name, dir, scriptCustom)

	p.bestEffort(ctx, log, "remove post-installation scripts", func(ctx context.Context) error {
		_, err := p.surface.Run(ctx, name, "rmdir /s /q "+cmdQuote(dir), qubes.RunOptions{})
		return err
	})

	if err := p.enter(inst, v1alpha1.PhaseTeardownPolicy); err != nil {
		return err
	}
	if err := revoke(); err != nil {
		return fmt.Errorf("failed to revoke file copy policy: %w", err)
	}
	log.Debugw("Revoked file copy policy", "policy", grant.Path())
	return nil
}

// runScript runs a post-installation script inside the qube, best-effort.
func (p *Provisioner) runScript(ctx context.Context, log *zap.SugaredLogger, name, dir, script string, args ...string) {
	log.Infow("Running post-installation script", "script", script, "args", args)
	p.bestEffort(ctx, log, script, func(ctx context.Context) error {
		_, err := p.surface.Run(ctx, name, guestCommand(dir, append([]string{script}, args...)...), qubes.RunOptions{})
		return err
	})
}
