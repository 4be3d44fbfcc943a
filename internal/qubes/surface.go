package qubes

import (
	"context"
	"io"

	"github.com/jbweber/qubeforge/api/v1alpha1"
)

// Surface is the set of operations qubeforge performs on qubes.
//
// In production, this is satisfied by *CLI.
// In tests, this is satisfied by fakes that simulate qube state.
type Surface interface {
	// Exists reports whether a qube with the given name exists.
	Exists(ctx context.Context, name string) (bool, error)

	// IsRunning reports whether the qube is running.
	IsRunning(ctx context.Context, name string) (bool, error)

	// GetFeature returns the value of a qvm-features key. The second result
	// is false when the feature is not set.
	GetFeature(ctx context.Context, name, key string) (string, bool, error)

	// SetFeature sets a qvm-features key.
	SetFeature(ctx context.Context, name, key, value string) error

	// UnsetFeature removes a qvm-features key.
	UnsetFeature(ctx context.Context, name, key string) error

	// Create creates a new qube of the given class.
	Create(ctx context.Context, name string, class v1alpha1.Class, opts CreateOptions) error

	// SetPref sets a qvm-prefs property. An empty value resets references
	// such as netvm to none.
	SetPref(ctx context.Context, name, key, value string) error

	// ExtendVolume grows a volume of the qube to sizeGiB.
	ExtendVolume(ctx context.Context, name, volume string, sizeGiB int) error

	// Start starts the qube, optionally with media attached as a boot cdrom.
	Start(ctx context.Context, name string, media *v1alpha1.MediaRef) error

	// ShutdownAndWait shuts the qube down and blocks until it halted.
	ShutdownAndWait(ctx context.Context, name string) error

	// Run runs a shell command inside the qube and returns its stdout.
	Run(ctx context.Context, name, command string, opts RunOptions) ([]byte, error)

	// CopyIn copies path from the src qube into the dest qube's incoming
	// directory. Requires a policy allowing the transfer.
	CopyIn(ctx context.Context, src, dest, path string) error

	// SetFirewall replaces the qube's firewall rules.
	SetFirewall(ctx context.Context, name string, rule FirewallRule) error

	// AddTag adds a tag to the qube.
	AddTag(ctx context.Context, name, tag string) error

	// ListFiles lists the entries of dir inside the qube whose base name
	// matches pattern (path.Match syntax), sorted.
	ListFiles(ctx context.Context, name, dir, pattern string) ([]string, error)

	// AppMenuSyncRunning reports whether an application menu
	// synchronization for the qube is in progress in dom0.
	AppMenuSyncRunning(ctx context.Context, name string) (bool, error)

	// SyncAppMenus synchronizes the qube's application menu.
	SyncAppMenus(ctx context.Context, name string) error
}

// CreateOptions are passed to qvm-create.
type CreateOptions struct {
	// Label is the qube's color label.
	Label string
	// Pool is the storage pool. Empty means the default pool.
	Pool string
}

// RunOptions control how a command is run inside a qube.
type RunOptions struct {
	// Stdin is fed to the command.
	Stdin io.Reader
	// NoGUI runs the command without a GUI session.
	NoGUI bool
}

// FirewallRule is a whole-qube firewall policy.
type FirewallRule string

const (
	// FirewallDenyAll drops every outbound connection.
	FirewallDenyAll FirewallRule = "drop"
	// FirewallAllowAll accepts every outbound connection.
	FirewallAllowAll FirewallRule = "accept"
)
