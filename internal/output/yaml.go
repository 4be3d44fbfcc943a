package output

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/jbweber/qubeforge/api/v1alpha1"
	"github.com/jbweber/qubeforge/internal/media"
)

// YAMLFormatter formats results as YAML.
type YAMLFormatter struct{}

// FormatInventory formats the media inventory as YAML.
func (f *YAMLFormatter) FormatInventory(inv *media.Inventory) (string, error) {
	data, err := yaml.Marshal(inv)
	if err != nil {
		return "", fmt.Errorf("failed to marshal inventory to YAML: %w", err)
	}
	return string(data), nil
}

// FormatInstances formats instances as a YAML stream, one document per
// instance.
func (f *YAMLFormatter) FormatInstances(insts []*v1alpha1.Instance) (string, error) {
	var buf bytes.Buffer

	for i, inst := range insts {
		data, err := yaml.Marshal(inst)
		if err != nil {
			return "", fmt.Errorf("failed to marshal instance %s to YAML: %w", inst.Name, err)
		}

		if i > 0 {
			buf.WriteString("---\n")
		}
		buf.Write(data)
	}

	return buf.String(), nil
}
