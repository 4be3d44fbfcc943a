package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/jbweber/qubeforge/internal/output"
	"github.com/jbweber/qubeforge/internal/qubes"
)

var (
	outputFormat string
	noHeaders    bool
)

var mediaCmd = &cobra.Command{
	Use:   "media",
	Short: "List installation images and answer files",
	Long: `List the installation images and answer files available in the
resources qube.

Output formats:
  -o table  Human-readable table (default)
  -o yaml   YAML document
  -o json   JSON object`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := output.ValidateFormat(outputFormat); err != nil {
			return err
		}

		opts, err := loadOptions()
		if err != nil {
			return err
		}

		s, closeFn := newSurface(cmd.Context(), opts)
		defer closeFn()

		inv, err := newStager(s, opts).Inventory(cmd.Context())
		if err != nil {
			return err
		}

		formatter, err := output.NewFormatter(output.Options{
			Format:    output.Format(outputFormat),
			NoHeaders: noHeaders,
		})
		if err != nil {
			return err
		}

		result, err := formatter.FormatInventory(inv)
		if err != nil {
			return fmt.Errorf("failed to format output: %w", err)
		}

		fmt.Fprint(cmd.OutOrStdout(), result)
		return nil
	},
}

func init() {
	mediaCmd.Flags().StringVarP(&outputFormat, "output", "o", "table", "Output format (table, yaml, json)")
	mediaCmd.Flags().BoolVar(&noHeaders, "no-headers", false, "Omit table headers")
}

// printMediaHelp appends the available media to help output. It is silent
// outside dom0 or when the resources qube cannot be queried quickly.
func printMediaHelp(ctx context.Context, w io.Writer) {
	if _, err := qubes.CheckRelease(qubes.ReleaseFile); err != nil {
		return
	}

	opts, err := loadOptions()
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	s, closeFn := newSurface(ctx, opts)
	defer closeFn()

	inv, err := newStager(s, opts).Inventory(ctx)
	if err != nil {
		return
	}

	fmt.Fprintf(w, "\nInstallation images in %s:\n", inv.Resources)
	for _, name := range inv.Images {
		fmt.Fprintf(w, "  %s\n", name)
	}
	fmt.Fprintf(w, "\nAnswer files in %s:\n", inv.Resources)
	for _, name := range inv.AnswerFiles {
		fmt.Fprintf(w, "  %s\n", name)
	}
}
