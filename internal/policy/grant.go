// Package policy manages temporary qrexec policy grants.
//
// A grant allows exactly one service between two qubes, for example
// qubes.Filecopy from the resources qube to the qube being provisioned.
// Each grant is a separate file in the dom0 policy directory, named with a
// per-run UUID, so that concurrent runs never share or clobber a file.
package policy

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

const (
	// DefaultDir is the Qubes 4.1+ qrexec policy directory.
	DefaultDir = "/etc/qubes/policy.d"

	// FileCopyService is the qrexec service used by qvm-copy-to-vm.
	FileCopyService = "qubes.Filecopy"

	// filePrefix orders grants before the distribution's 90-default.policy.
	filePrefix = "10-qubeforge-"
)

// Grant is one policy file on disk.
type Grant struct {
	path string
}

// Path returns the location of the policy file.
func (g *Grant) Path() string {
	return g.path
}

// Granter creates grants in a policy directory.
type Granter struct {
	Dir string

	newID func() uuid.UUID
}

// NewGranter returns a Granter writing to dir. An empty dir means DefaultDir.
func NewGranter(dir string) *Granter {
	if dir == "" {
		dir = DefaultDir
	}
	return &Granter{Dir: dir, newID: uuid.New}
}

// Rule renders the policy line allowing service from source to target.
func Rule(service, source, target string) string {
	return fmt.Sprintf("%s * %s %s allow\n", service, source, target)
}

// FileName returns the policy file name for a run.
func FileName(id uuid.UUID) string {
	return filePrefix + id.String() + ".policy"
}

// Allow writes a policy file allowing service from source to target and
// returns the grant. The file is created exclusively; an existing file
// with the same name is an error.
func (g *Granter) Allow(service, source, target string) (*Grant, error) {
	if service == "" || source == "" || target == "" {
		return nil, errors.New("service, source and target are required")
	}

	p := filepath.Join(g.Dir, FileName(g.newID()))
	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create policy file: %w", err)
	}

	if _, err := f.WriteString(Rule(service, source, target)); err != nil {
		_ = f.Close()
		_ = os.Remove(p)
		return nil, fmt.Errorf("failed to write policy file %s: %w", p, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(p)
		return nil, fmt.Errorf("failed to write policy file %s: %w", p, err)
	}

	return &Grant{path: p}, nil
}

// Revoke removes the policy file. Revoking an already removed grant is not
// an error.
func (g *Grant) Revoke() error {
	if err := os.Remove(g.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove policy file %s: %w", g.path, err)
	}
	return nil
}
