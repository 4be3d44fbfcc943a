// Package output renders media inventories and provisioning summaries as
// tables, YAML or JSON.
package output

import (
	"fmt"
	"strings"

	"github.com/jbweber/qubeforge/api/v1alpha1"
	"github.com/jbweber/qubeforge/internal/media"
)

// Format names an output format.
type Format string

const (
	FormatTable Format = "table"
	FormatYAML  Format = "yaml"
	FormatJSON  Format = "json"
)

var formats = []Format{FormatTable, FormatYAML, FormatJSON}

// Formatter renders qubeforge results.
type Formatter interface {
	// FormatInventory renders the media available in the resources qube.
	FormatInventory(inv *media.Inventory) (string, error)

	// FormatInstances renders the instances of a batch with their last
	// phase, whether or not they finished.
	FormatInstances(insts []*v1alpha1.Instance) (string, error)
}

// Options selects the format. NoHeaders only applies to tables.
type Options struct {
	Format    Format
	NoHeaders bool
}

// NewFormatter returns the Formatter for opts.Format.
func NewFormatter(opts Options) (Formatter, error) {
	if err := ValidateFormat(string(opts.Format)); err != nil {
		return nil, err
	}
	switch opts.Format {
	case FormatYAML:
		return &YAMLFormatter{}, nil
	case FormatJSON:
		return &JSONFormatter{}, nil
	default:
		return &TableFormatter{NoHeaders: opts.NoHeaders}, nil
	}
}

// ValidateFormat returns an error unless format is one of the supported
// formats.
func ValidateFormat(format string) error {
	names := make([]string, 0, len(formats))
	for _, f := range formats {
		if Format(format) == f {
			return nil
		}
		names = append(names, string(f))
	}
	return fmt.Errorf("invalid output format %q (valid formats: %s)", format, strings.Join(names, ", "))
}
