package media

import (
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/kdomanski/iso9660"
)

// ToolsImage describes a Qubes Windows Tools ISO.
type ToolsImage struct {
	Label      string
	Installers []string
}

// InspectToolsImage opens the ISO at p and checks that it looks like a
// tools image: it must carry a volume label and at least one Windows
// installer in its root directory.
func InspectToolsImage(p string) (*ToolsImage, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("failed to open tools image: %w", err)
	}
	defer func() { _ = f.Close() }()

	img, err := iso9660.OpenImage(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read tools image %s: %w", p, err)
	}

	label, err := img.Label()
	if err != nil {
		return nil, fmt.Errorf("failed to read label of %s: %w", p, err)
	}
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, fmt.Errorf("tools image %s has no volume label", p)
	}

	root, err := img.RootDir()
	if err != nil {
		return nil, fmt.Errorf("failed to read root directory of %s: %w", p, err)
	}
	children, err := root.GetChildren()
	if err != nil {
		return nil, fmt.Errorf("failed to list root directory of %s: %w", p, err)
	}

	ti := &ToolsImage{Label: label}
	for _, child := range children {
		if child.IsDir() {
			continue
		}
		switch strings.ToLower(path.Ext(child.Name())) {
		case ".exe", ".msi":
			ti.Installers = append(ti.Installers, child.Name())
		}
	}
	if len(ti.Installers) == 0 {
		return nil, fmt.Errorf("tools image %s contains no installer", p)
	}

	return ti, nil
}
