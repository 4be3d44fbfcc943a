package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jbweber/qubeforge/internal/config"
	"github.com/jbweber/qubeforge/internal/logging"
)

var (
	version = "dev"
	commit  = "unknown"
)

// Global flags
var (
	configPath string
	logLevel   string
	logFile    string
	noColor    bool
)

// log is set up before any subcommand runs.
var log = zap.NewNop().Sugar()

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	_ = log.Sync()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "qubeforge",
	Short: "qubeforge - Windows qube provisioning for Qubes OS",
	Long: `qubeforge creates Windows qubes on Qubes OS and installs them unattended.

It drives the dom0 qvm-* tools through the whole installation: creating the
qube, booting the Windows installer, installing Qubes Windows Tools and
running post-installation scripts. Installation images, answer files and
scripts live in a resources qube (default: ` + config.DefaultResourcesQube + `).`,
	Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		opts := logging.DefaultOptions()
		opts.Level = logLevel
		opts.FilePath = logFile
		opts.Color = !noColor

		l, err := logging.New(opts)
		if err != nil {
			return err
		}
		log = l
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML file with default options")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Console log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write JSON logs to this file, rotated by size")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored console output")

	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(mediaCmd)
}

// loadOptions builds options from the defaults, the config file and the
// environment. Flags are applied by the caller.
func loadOptions() (config.Options, error) {
	opts := config.Defaults()
	if configPath != "" {
		var err error
		opts, err = config.LoadFile(configPath, opts)
		if err != nil {
			return opts, err
		}
	}
	return opts.ApplyEnv(os.Getenv), nil
}
