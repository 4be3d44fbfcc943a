package vm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/jbweber/qubeforge/api/v1alpha1"
	"github.com/jbweber/qubeforge/internal/config"
	"github.com/jbweber/qubeforge/internal/media"
	"github.com/jbweber/qubeforge/internal/naming"
	"github.com/jbweber/qubeforge/internal/netguard"
	"github.com/jbweber/qubeforge/internal/poll"
	"github.com/jbweber/qubeforge/internal/qubes"
	"github.com/jbweber/qubeforge/internal/retry"
	"github.com/jbweber/qubeforge/internal/status"
)

// ReadinessMarker is the qvm-features entry the tools set once the guest
// agent runs.
var ReadinessMarker = poll.Marker{Feature: "os", Value: "Windows"}

const (
	videoModelFeature = "video-model"
	label             = "red"
	memoryMiB         = "4096"

	// qrexecTimeout covers the first boot after tools installation, which
	// can take far longer than the default timeout.
	qrexecTimeout = "86400"
)

// Provisioner creates and installs Windows qubes.
type Provisioner struct {
	surface qubes.Surface
	media   MediaStager
	policy  PolicyGranter
	poller  *poll.Poller
	opts    config.Options
	log     *zap.SugaredLogger

	inspectTools func(path string) (*media.ToolsImage, error)
}

// NewProvisioner creates a Provisioner for opts.
func NewProvisioner(s qubes.Surface, m MediaStager, g PolicyGranter, opts config.Options, log *zap.SugaredLogger) *Provisioner {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Provisioner{
		surface:      s,
		media:        m,
		policy:       g,
		poller:       poll.New(opts.PollInterval, log),
		opts:         opts,
		log:          log,
		inspectTools: media.InspectToolsImage,
	}
}

// Preflight validates the options and checks that the requested media
// exists. It changes nothing on the host. Any problem it finds is a
// *config.ValidationError.
func (p *Provisioner) Preflight(ctx context.Context) error {
	if err := p.opts.Validate(); err != nil {
		return err
	}

	if err := p.media.Check(ctx, p.opts.ISO, p.opts.AnswerFile); err != nil {
		if errors.Is(err, media.ErrNotFound) {
			return &config.ValidationError{Field: "media", Reason: err.Error()}
		}
		return fmt.Errorf("failed to check media: %w", err)
	}

	ti, err := p.inspectTools(p.opts.ToolsISO)
	if err != nil {
		return &config.ValidationError{Field: "tools_iso", Reason: err.Error()}
	}
	p.log.Debugw("Tools image checked", "path", p.opts.ToolsISO, "label", ti.Label, "installers", ti.Installers)

	return nil
}

// CreateBatch provisions opts.Count instances one after another.
//
// It returns every instance it started on, including one that failed. A
// fatal error on one instance stops the batch.
func (p *Provisioner) CreateBatch(ctx context.Context) ([]*v1alpha1.Instance, error) {
	if err := p.Preflight(ctx); err != nil {
		return nil, err
	}

	seq := naming.NewSequence(p.opts.Name, p.opts.Count)
	var insts []*v1alpha1.Instance

	for i := 1; seq.Remaining() > 0; i++ {
		name, err := seq.Next(ctx, p.surface.Exists)
		if err != nil {
			if errors.Is(err, naming.ErrNameTaken) || errors.Is(err, naming.ErrInvalidName) {
				return insts, &config.ValidationError{Field: "name", Reason: err.Error()}
			}
			return insts, fmt.Errorf("failed to pick a qube name: %w", err)
		}

		inst := v1alpha1.NewInstance(name, p.opts.InstanceSpec())
		insts = append(insts, inst)

		p.log.Infow("Provisioning instance", "qube", name, "instance", i, "count", p.opts.Count)
		if err := p.Provision(ctx, inst); err != nil {
			return insts, fmt.Errorf("failed to provision %s: %w", name, err)
		}
		p.log.Infow("Provisioned instance", "qube", name, "duration", status.Duration(inst))
	}

	return insts, nil
}

// Provision drives inst from creation to a shut down, fully installed qube.
func (p *Provisioner) Provision(ctx context.Context, inst *v1alpha1.Instance) (err error) {
	name := inst.Name
	log := p.log.With("qube", name)
	guard := netguard.NewGuard(p.surface, inst, log)
	defer func() {
		if err != nil {
			log.Errorw("Provisioning failed", "phase", inst.GetPhase(), "error", err)
			guard.Release(ctx)
		}
	}()

	// Creation
	if err := p.create(ctx, inst); err != nil {
		return err
	}
	if err := p.enter(inst, v1alpha1.PhaseCreated); err != nil {
		return err
	}
	if err := p.configure(ctx, inst); err != nil {
		return err
	}
	if err := p.enter(inst, v1alpha1.PhaseDiskConfigured); err != nil {
		return err
	}

	// First installer pass boots from the unattended installation media
	installMedia, err := p.media.StageInstall(ctx, p.opts.ISO, p.opts.AnswerFile)
	if err != nil {
		return err
	}
	if err := p.bootPhase(ctx, inst, installMedia, v1alpha1.PhaseInstallPhase1Running, v1alpha1.PhaseInstallPhase1Done); err != nil {
		return err
	}

	// Second installer pass boots from disk with the final video model
	if err := p.surface.UnsetFeature(ctx, name, videoModelFeature); err != nil {
		return err
	}
	if err := p.bootPhase(ctx, inst, nil, v1alpha1.PhaseInstallPhase2Running, v1alpha1.PhaseInstallPhase2Done); err != nil {
		return err
	}

	// Tools
	if err := p.enter(inst, v1alpha1.PhaseToolsStaging); err != nil {
		return err
	}
	toolsMedia, err := p.media.StageTools(ctx, p.opts.ToolsISO)
	if err != nil {
		return err
	}
	if err := guard.Seal(ctx); err != nil {
		return err
	}
	if err := p.bootPhase(ctx, inst, toolsMedia, v1alpha1.PhaseToolsInstallRunning, v1alpha1.PhaseToolsInstallDone); err != nil {
		return err
	}

	value, ok, err := p.surface.GetFeature(ctx, name, ReadinessMarker.Feature)
	if err != nil {
		return err
	}
	if !ReadinessMarker.Matches(value, ok) {
		if err := p.start(ctx, name, nil); err != nil {
			return err
		}
		if err := p.enter(inst, v1alpha1.PhaseToolsFinalizeRunning); err != nil {
			return err
		}
		if err := p.poller.MarkerPresent(ctx, p.surface, name, ReadinessMarker); err != nil {
			return err
		}
	}
	status.MarkMarkerPresent(inst, ReadinessMarker.String())

	// App menus
	if err := p.enter(inst, v1alpha1.PhaseAppMenuSync); err != nil {
		return err
	}
	if err := p.poller.AppMenuSync(ctx, p.surface, name); err != nil {
		return err
	}
	p.bestEffort(ctx, log, "app menu sync", func(ctx context.Context) error {
		return p.surface.SyncAppMenus(ctx, name)
	})

	// Customization
	if err := p.enter(inst, v1alpha1.PhasePostScripts); err != nil {
		return err
	}
	if err := p.customize(ctx, inst, guard, log); err != nil {
		return err
	}

	// Shutdown
	if err := p.enter(inst, v1alpha1.PhaseShutdown); err != nil {
		return err
	}
	if err := p.surface.ShutdownAndWait(ctx, name); err != nil {
		return err
	}
	if len(p.opts.Packages) == 0 {
		if err := guard.Open(ctx); err != nil {
			return err
		}
	}

	return p.enter(inst, v1alpha1.PhaseDone)
}

// create creates the qube.
func (p *Provisioner) create(ctx context.Context, inst *v1alpha1.Instance) error {
	p.log.Infow("Creating qube", "qube", inst.Name, "class", inst.Spec.Class, "pool", inst.Spec.Pool)
	return p.surface.Create(ctx, inst.Name, inst.Spec.Class, qubes.CreateOptions{
		Label: label,
		Pool:  inst.Spec.Pool,
	})
}

// configure sets the qube up for an HVM Windows install and sizes its
// volumes. The qube has no netvm until the install is trusted.
func (p *Provisioner) configure(ctx context.Context, inst *v1alpha1.Instance) error {
	name := inst.Name
	prefs := []struct{ key, value string }{
		{"virt_mode", "hvm"},
		{"kernel", ""},
		{"memory", memoryMiB},
		{"maxmem", "0"},
		{"qrexec_timeout", qrexecTimeout},
		{"netvm", ""},
	}
	for _, pref := range prefs {
		if err := p.surface.SetPref(ctx, name, pref.key, pref.value); err != nil {
			return err
		}
	}

	// The installer only has drivers for the emulated cirrus card
	if err := p.surface.SetFeature(ctx, name, videoModelFeature, "cirrus"); err != nil {
		return err
	}

	if err := p.surface.ExtendVolume(ctx, name, "root", inst.Spec.DiskSizeGiB); err != nil {
		return err
	}
	return p.surface.ExtendVolume(ctx, name, "private", inst.Spec.PrivateSizeGiB)
}

// bootPhase starts the qube from m and waits for the boot to end, entering
// running once the qube started and done once it finished.
func (p *Provisioner) bootPhase(ctx context.Context, inst *v1alpha1.Instance, m *v1alpha1.MediaRef, running, done v1alpha1.Phase) error {
	if err := p.start(ctx, inst.Name, m); err != nil {
		return err
	}
	if err := p.enter(inst, running); err != nil {
		return err
	}
	if err := p.poller.RunningUntilMarked(ctx, p.surface, inst.Name, ReadinessMarker); err != nil {
		return err
	}
	return p.enter(inst, done)
}

// start starts the qube, retrying until dom0 has the memory for it.
func (p *Provisioner) start(ctx context.Context, name string, m *v1alpha1.MediaRef) error {
	what := "start " + name
	if m != nil {
		what += " from " + m.String()
	}
	return retry.Forever(ctx, p.log, p.opts.RetryBackoff, what, func(ctx context.Context) error {
		return p.surface.Start(ctx, name, m)
	})
}

// enter records the transition of inst to phase.
func (p *Provisioner) enter(inst *v1alpha1.Instance, phase v1alpha1.Phase) error {
	if err := status.Transition(inst, phase); err != nil {
		return err
	}
	p.log.Infow("Entered phase", "qube", inst.Name, "phase", phase, "step", fmt.Sprintf("%d/%d", phase.Index()+1, len(v1alpha1.Phases())))
	return nil
}

// bestEffort runs fn and logs its failure instead of returning it.
func (p *Provisioner) bestEffort(ctx context.Context, log *zap.SugaredLogger, what string, fn func(ctx context.Context) error) {
	if err := fn(ctx); err != nil {
		log.Warnw("Best-effort step failed, continuing", "step", what, "error", err)
	}
}

// guestCommand returns a cmd.exe command line run from dir.
func guestCommand(dir string, args ...string) string {
	return "cd /d " + cmdQuote(dir) + " && " + strings.Join(args, " ")
}

// cmdQuote quotes s as a single cmd.exe argument. Environment variables
// such as %USERPROFILE% are still expanded inside the quotes.
func cmdQuote(s string) string {
	return `"` + s + `"`
}
