package output

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/jbweber/qubeforge/api/v1alpha1"
	"github.com/jbweber/qubeforge/internal/media"
	"github.com/jbweber/qubeforge/internal/status"
)

// TableFormatter formats results as human-readable tables.
type TableFormatter struct {
	// NoHeaders omits the header row.
	NoHeaders bool
}

// FormatInventory formats the media inventory as a table with one row per
// file.
func (f *TableFormatter) FormatInventory(inv *media.Inventory) (string, error) {
	if len(inv.Images) == 0 && len(inv.AnswerFiles) == 0 {
		return fmt.Sprintf("No media found in %s\n", inv.Resources), nil
	}

	var buf bytes.Buffer
	table := f.newTable(&buf, "KIND", "NAME")
	for _, name := range inv.Images {
		table.Append([]string{"image", name})
	}
	for _, name := range inv.AnswerFiles {
		table.Append([]string{"answer-file", name})
	}
	table.Render()

	return buf.String(), nil
}

// FormatInstances formats instances as a table.
func (f *TableFormatter) FormatInstances(insts []*v1alpha1.Instance) (string, error) {
	if len(insts) == 0 {
		return "No instances provisioned\n", nil
	}

	var buf bytes.Buffer
	table := f.newTable(&buf, "NAME", "CLASS", "PHASE", "NETVM", "NETWORK", "CONDITIONS", "DURATION")
	for _, inst := range insts {
		table.Append([]string{
			inst.Name,
			string(inst.Spec.Class),
			orDash(string(inst.Status.Phase)),
			orDash(inst.Spec.NetVM),
			orDash(string(inst.Status.Network)),
			formatConditions(inst.Status.Conditions),
			formatDuration(status.Duration(inst)),
		})
	}
	table.Render()

	return buf.String(), nil
}

func (f *TableFormatter) newTable(buf *bytes.Buffer, headers ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(buf)
	if !f.NoHeaders {
		table.SetHeader(headers)
	}
	table.SetAutoFormatHeaders(false)
	table.SetBorder(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)
	return table
}

// formatConditions lists the conditions that hold, and flags the ones
// whose state is unknown with a trailing "?".
// Example: "NetworkSealed,MarkerPresent"
func formatConditions(conds []v1alpha1.Condition) string {
	var out []string
	for _, c := range conds {
		switch c.Status {
		case v1alpha1.ConditionTrue:
			out = append(out, c.Type)
		case v1alpha1.ConditionUnknown:
			out = append(out, c.Type+"?")
		}
	}
	return orDash(strings.Join(out, ","))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// formatDuration formats a provisioning duration.
// Examples: "45s", "12m05s", "2h03m"
func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}

	seconds := int(d.Seconds())
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}

	minutes := seconds / 60
	if minutes < 60 {
		return fmt.Sprintf("%dm%02ds", minutes, seconds%60)
	}

	return fmt.Sprintf("%dh%02dm", minutes/60, minutes%60)
}
