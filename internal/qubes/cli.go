package qubes

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/jbweber/qubeforge/api/v1alpha1"
)

// RunningProbe answers "is this qube running" without spawning qvm-check.
type RunningProbe interface {
	IsRunning(name string) (bool, error)
}

// CLI implements Surface with the dom0 qvm-* tools.
type CLI struct {
	runner Runner
	probe  RunningProbe
	log    *zap.SugaredLogger
}

// Option configures a CLI.
type Option func(*CLI)

// WithRunningProbe answers IsRunning from p, falling back to qvm-check when
// p returns an error.
func WithRunningProbe(p RunningProbe) Option {
	return func(c *CLI) { c.probe = p }
}

// WithLogger sets the logger used for debug output of executed commands.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(c *CLI) { c.log = log }
}

// NewCLI creates a CLI that executes commands through runner.
func NewCLI(runner Runner, opts ...Option) *CLI {
	c := &CLI{
		runner: runner,
		log:    zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ Surface = (*CLI)(nil)

func (c *CLI) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	c.log.Debugw("Running command", "cmd", name, "args", args)
	return c.runner.Run(ctx, nil, name, args...)
}

// Exists implements Surface.
func (c *CLI) Exists(ctx context.Context, name string) (bool, error) {
	_, err := c.run(ctx, "qvm-check", "--quiet", name)
	if err == nil {
		return true, nil
	}
	if isNegative(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to check qube %s: %w", name, err)
}

// IsRunning implements Surface.
func (c *CLI) IsRunning(ctx context.Context, name string) (bool, error) {
	if c.probe != nil {
		running, err := c.probe.IsRunning(name)
		if err == nil {
			return running, nil
		}
		c.log.Debugw("Running probe failed, falling back to qvm-check", "qube", name, "error", err)
	}

	_, err := c.run(ctx, "qvm-check", "--quiet", "--running", name)
	if err == nil {
		return true, nil
	}
	if isNegative(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to check running state of %s: %w", name, err)
}

// GetFeature implements Surface.
func (c *CLI) GetFeature(ctx context.Context, name, key string) (string, bool, error) {
	out, err := c.run(ctx, "qvm-features", name, key)
	if err != nil {
		if isNegative(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get feature %s of %s: %w", key, name, err)
	}
	value := strings.TrimSpace(string(out))
	return value, value != "", nil
}

// SetFeature implements Surface.
func (c *CLI) SetFeature(ctx context.Context, name, key, value string) error {
	if _, err := c.run(ctx, "qvm-features", name, key, value); err != nil {
		return fmt.Errorf("failed to set feature %s of %s: %w", key, name, err)
	}
	return nil
}

// UnsetFeature implements Surface.
func (c *CLI) UnsetFeature(ctx context.Context, name, key string) error {
	if _, err := c.run(ctx, "qvm-features", "--unset", name, key); err != nil {
		return fmt.Errorf("failed to unset feature %s of %s: %w", key, name, err)
	}
	return nil
}

// Create implements Surface.
func (c *CLI) Create(ctx context.Context, name string, class v1alpha1.Class, opts CreateOptions) error {
	label := opts.Label
	if label == "" {
		label = "red"
	}
	args := []string{"--class", string(class), "--label", label}
	if opts.Pool != "" {
		args = append(args, "-P", opts.Pool)
	}
	args = append(args, name)

	if _, err := c.run(ctx, "qvm-create", args...); err != nil {
		return fmt.Errorf("failed to create qube %s: %w", name, err)
	}
	return nil
}

// SetPref implements Surface.
func (c *CLI) SetPref(ctx context.Context, name, key, value string) error {
	if _, err := c.run(ctx, "qvm-prefs", name, key, value); err != nil {
		return fmt.Errorf("failed to set %s of %s: %w", key, name, err)
	}
	return nil
}

// ExtendVolume implements Surface.
func (c *CLI) ExtendVolume(ctx context.Context, name, volume string, sizeGiB int) error {
	size := strconv.Itoa(sizeGiB) + "g"
	if _, err := c.run(ctx, "qvm-volume", "extend", name+":"+volume, size); err != nil {
		return fmt.Errorf("failed to extend %s:%s to %s: %w", name, volume, size, err)
	}
	return nil
}

// Start implements Surface.
func (c *CLI) Start(ctx context.Context, name string, media *v1alpha1.MediaRef) error {
	args := []string{}
	if media != nil {
		args = append(args, "--cdrom="+media.String())
	}
	args = append(args, name)

	if _, err := c.run(ctx, "qvm-start", args...); err != nil {
		return fmt.Errorf("failed to start %s: %w", name, err)
	}
	return nil
}

// ShutdownAndWait implements Surface.
func (c *CLI) ShutdownAndWait(ctx context.Context, name string) error {
	if _, err := c.run(ctx, "qvm-shutdown", "--wait", name); err != nil {
		return fmt.Errorf("failed to shut down %s: %w", name, err)
	}
	return nil
}

// Run implements Surface.
func (c *CLI) Run(ctx context.Context, name, command string, opts RunOptions) ([]byte, error) {
	args := []string{"--pass-io"}
	if opts.NoGUI {
		args = append(args, "--no-gui")
	}
	args = append(args, name, command)

	c.log.Debugw("Running command in qube", "qube", name, "command", command)
	out, err := c.runner.Run(ctx, opts.Stdin, "qvm-run", args...)
	if err != nil {
		return out, fmt.Errorf("command failed in %s: %w", name, err)
	}
	return out, nil
}

// CopyIn implements Surface.
func (c *CLI) CopyIn(ctx context.Context, src, dest, p string) error {
	cmd := "qvm-copy-to-vm " + ShellQuote(dest) + " " + ShellQuote(p)
	if _, err := c.Run(ctx, src, cmd, RunOptions{NoGUI: true}); err != nil {
		return fmt.Errorf("failed to copy %s from %s to %s: %w", p, src, dest, err)
	}
	return nil
}

// SetFirewall implements Surface.
//
// The rule set is reset first, which leaves a single accept rule. For
// FirewallDenyAll that rule is then replaced by a drop rule, so the
// operation is idempotent in both directions.
func (c *CLI) SetFirewall(ctx context.Context, name string, rule FirewallRule) error {
	if _, err := c.run(ctx, "qvm-firewall", name, "reset"); err != nil {
		return fmt.Errorf("failed to reset firewall of %s: %w", name, err)
	}
	if rule == FirewallAllowAll {
		return nil
	}

	if _, err := c.run(ctx, "qvm-firewall", name, "del", "--rule-no", "0"); err != nil {
		return fmt.Errorf("failed to remove accept rule of %s: %w", name, err)
	}
	if _, err := c.run(ctx, "qvm-firewall", name, "add", string(rule)); err != nil {
		return fmt.Errorf("failed to add %s rule to %s: %w", rule, name, err)
	}
	return nil
}

// AddTag implements Surface.
func (c *CLI) AddTag(ctx context.Context, name, tag string) error {
	if _, err := c.run(ctx, "qvm-tags", name, "add", tag); err != nil {
		return fmt.Errorf("failed to tag %s with %s: %w", name, tag, err)
	}
	return nil
}

// ListFiles implements Surface.
func (c *CLI) ListFiles(ctx context.Context, name, dir, pattern string) ([]string, error) {
	out, err := c.Run(ctx, name, "ls -1 -- "+ShellQuote(dir), RunOptions{NoGUI: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s in %s: %w", dir, name, err)
	}

	var files []string
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		entry := strings.TrimSpace(scanner.Text())
		if entry == "" {
			continue
		}
		ok, err := path.Match(pattern, entry)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
		if ok {
			files = append(files, entry)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read listing of %s: %w", dir, err)
	}

	sort.Strings(files)
	return files, nil
}

// AppMenuSyncRunning implements Surface.
func (c *CLI) AppMenuSyncRunning(ctx context.Context, name string) (bool, error) {
	_, err := c.run(ctx, "pgrep", "-f", AppMenuSyncSignature(name))
	if err == nil {
		return true, nil
	}
	if isNegative(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to look for app menu sync of %s: %w", name, err)
}

// SyncAppMenus implements Surface.
func (c *CLI) SyncAppMenus(ctx context.Context, name string) error {
	if _, err := c.run(ctx, "qvm-sync-appmenus", name); err != nil {
		return fmt.Errorf("failed to sync app menus of %s: %w", name, err)
	}
	return nil
}

// AppMenuSyncSignature returns the pgrep pattern matching the command line
// of a qvm-sync-appmenus process for the named qube.
func AppMenuSyncSignature(name string) string {
	return `qvm-sync-appmenus( --[a-z-]+)* ` + regexp.QuoteMeta(name) + `$`
}
