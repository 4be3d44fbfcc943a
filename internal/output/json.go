package output

import (
	"encoding/json"
	"fmt"

	"github.com/jbweber/qubeforge/api/v1alpha1"
	"github.com/jbweber/qubeforge/internal/media"
)

// JSONFormatter formats results as JSON.
type JSONFormatter struct{}

// FormatInventory formats the media inventory as a JSON object.
func (f *JSONFormatter) FormatInventory(inv *media.Inventory) (string, error) {
	data, err := json.MarshalIndent(inv, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal inventory to JSON: %w", err)
	}
	return string(data) + "\n", nil
}

// FormatInstances formats instances as a JSON array.
func (f *JSONFormatter) FormatInstances(insts []*v1alpha1.Instance) (string, error) {
	if len(insts) == 0 {
		return "[]\n", nil
	}

	data, err := json.MarshalIndent(insts, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal instances to JSON: %w", err)
	}
	return string(data) + "\n", nil
}
