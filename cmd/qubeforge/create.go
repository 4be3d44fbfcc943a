package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jbweber/qubeforge/internal/config"
	"github.com/jbweber/qubeforge/internal/output"
	"github.com/jbweber/qubeforge/internal/policy"
	"github.com/jbweber/qubeforge/internal/qubes"
	"github.com/jbweber/qubeforge/internal/vm"
)

// createFlags holds the values of the create command's flags. Only flags
// the user set override the loaded options.
var createFlags struct {
	count         int
	template      bool
	netvm         string
	seamless      bool
	optimize      bool
	spyless       bool
	whonix        bool
	packages      []string
	pool          string
	diskSizeGiB   int
	privateGiB    int
	iso           string
	answerFile    string
	toolsISO      string
	deadline      time.Duration
	libvirtSocket string
	skipRelease   bool
	summaryFormat string
}

var createCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create and install Windows qubes",
	Long: `Create a Windows qube and install it unattended.

The qube is created without network access. If a netvm is given, the qube
stays sealed off (no netvm, all traffic dropped) while Windows and the tools
are installed and is attached to the netvm once installation finished, or
just before packages are installed.

With --count greater than one, the qubes are named <name>-1, <name>-2, ...
skipping names that are already taken, and are installed one after another.

Starting a qube that fails (usually because dom0 is short on memory) is
retried until it succeeds. Interrupt qubeforge to give up.

Example:
  qubeforge create work -i win10x64.iso -a win10x64-pro.xml -n sys-firewall -p firefox,7zip`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := output.ValidateFormat(createFlags.summaryFormat); err != nil {
			return err
		}

		opts, err := loadOptions()
		if err != nil {
			return err
		}
		opts.Name = args[0]
		applyCreateFlags(cmd.Flags(), &opts)

		if err := opts.Validate(); err != nil {
			return err
		}
		if !createFlags.skipRelease {
			v, err := qubes.CheckRelease(qubes.ReleaseFile)
			if err != nil {
				return &config.ValidationError{Field: "platform", Reason: err.Error()}
			}
			log.Debugw("Qubes release supported", "release", v)
		}

		ctx := cmd.Context()
		if opts.Deadline > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, opts.Deadline)
			defer cancel()
		}

		s, closeFn := newSurface(ctx, opts)
		defer closeFn()

		p := vm.NewProvisioner(s, newStager(s, opts), policy.NewGranter(opts.PolicyDir), opts, log)
		insts, err := p.CreateBatch(ctx)

		if len(insts) > 0 {
			formatter, ferr := output.NewFormatter(output.Options{Format: output.Format(createFlags.summaryFormat)})
			if ferr == nil {
				if result, ferr := formatter.FormatInstances(insts); ferr == nil {
					fmt.Fprint(cmd.OutOrStdout(), result)
				}
			}
		}

		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return fmt.Errorf("deadline of %s exceeded: %w", opts.Deadline, err)
			}
			return err
		}
		return nil
	},
}

func init() {
	f := createCmd.Flags()
	f.StringVarP(&createFlags.iso, "iso", "i", "", "Installation image in the resources qube (required)")
	f.StringVarP(&createFlags.answerFile, "answer-file", "a", "", "Answer file in the resources qube (required)")
	f.IntVarP(&createFlags.count, "count", "c", 1, "Number of qubes to create")
	f.BoolVarP(&createFlags.template, "template", "t", false, "Create a TemplateVM instead of a StandaloneVM")
	f.StringVarP(&createFlags.netvm, "netvm", "n", "", "NetVM to attach once installation finished")
	f.BoolVarP(&createFlags.seamless, "seamless", "s", false, "Configure for seamless GUI mode")
	f.BoolVarP(&createFlags.optimize, "optimize", "o", false, "Optimize Windows for use in a qube")
	f.BoolVarP(&createFlags.spyless, "spyless", "y", false, "Disable Windows telemetry")
	f.BoolVarP(&createFlags.whonix, "whonix", "w", false, "Apply Whonix recommended settings")
	f.StringSliceVarP(&createFlags.packages, "packages", "p", nil, "Comma-separated Chocolatey packages to install (requires --netvm)")
	f.StringVarP(&createFlags.pool, "pool", "P", "", "Storage pool for the qube's volumes")
	f.IntVarP(&createFlags.diskSizeGiB, "disk-size", "d", config.DefaultDiskSizeGiB, "Root volume size in GiB")
	f.IntVar(&createFlags.privateGiB, "private-size", config.DefaultPrivateSizeGiB, "Private volume size in GiB")
	f.StringVar(&createFlags.toolsISO, "tools-iso", config.DefaultToolsISO, "Qubes Windows Tools image in dom0")
	f.DurationVar(&createFlags.deadline, "deadline", 0, "Give up after this long (default: never)")
	f.StringVar(&createFlags.libvirtSocket, "libvirt-socket", config.DefaultLibvirtSocket, "libvirt socket used to read running state; empty disables")
	f.BoolVar(&createFlags.skipRelease, "skip-release-check", false, "Do not check the Qubes release")
	f.StringVar(&createFlags.summaryFormat, "format", "table", "Summary output format (table, yaml, json)")

	defaultHelp := createCmd.HelpFunc()
	createCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		defaultHelp(cmd, args)
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		printMediaHelp(ctx, cmd.OutOrStdout())
	})
}

// applyCreateFlags overrides opts with every flag the user set.
func applyCreateFlags(fs *pflag.FlagSet, opts *config.Options) {
	set := func(name string, apply func()) {
		if fs.Changed(name) {
			apply()
		}
	}

	set("iso", func() { opts.ISO = createFlags.iso })
	set("answer-file", func() { opts.AnswerFile = createFlags.answerFile })
	set("count", func() { opts.Count = createFlags.count })
	set("template", func() { opts.Template = createFlags.template })
	set("netvm", func() { opts.NetVM = createFlags.netvm })
	set("seamless", func() { opts.Seamless = createFlags.seamless })
	set("optimize", func() { opts.Optimize = createFlags.optimize })
	set("spyless", func() { opts.Spyless = createFlags.spyless })
	set("whonix", func() { opts.Whonix = createFlags.whonix })
	set("packages", func() { opts.Packages = createFlags.packages })
	set("pool", func() { opts.Pool = createFlags.pool })
	set("disk-size", func() { opts.DiskSizeGiB = createFlags.diskSizeGiB })
	set("private-size", func() { opts.PrivateSizeGiB = createFlags.privateGiB })
	set("tools-iso", func() { opts.ToolsISO = createFlags.toolsISO })
	set("deadline", func() { opts.Deadline = createFlags.deadline })
	set("libvirt-socket", func() { opts.LibvirtSocket = createFlags.libvirtSocket })
}
