// Package naming holds the naming conventions for qubes and the paths
// qubeforge derives from them: qube name validation, batch instance names
// and the locations files land in inside a Windows guest.
package naming

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// MaxNameLength is the longest qube name dom0 accepts.
const MaxNameLength = 31

var (
	namePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_.-]*$`)

	reservedNames = map[string]bool{
		"none":     true,
		"default":  true,
		"dom0":     true,
		"Domain-0": true,
	}
)

var (
	// ErrNameTaken is returned when a single-instance name already exists.
	ErrNameTaken = errors.New("qube already exists")

	// ErrInvalidName is returned when a batch runs out of valid names,
	// usually because the instance number no longer fits.
	ErrInvalidName = errors.New("invalid qube name")
)

// ValidateQubeName checks name against the qube naming rules of dom0.
func ValidateQubeName(name string) error {
	switch {
	case name == "":
		return errors.New("name is required")
	case len(name) > MaxNameLength:
		return fmt.Errorf("name %q is longer than %d characters", name, MaxNameLength)
	case !namePattern.MatchString(name):
		return fmt.Errorf("name %q must start with a letter and contain only letters, digits, '_', '.' and '-'", name)
	case reservedNames[name]:
		return fmt.Errorf("name %q is reserved", name)
	case strings.HasSuffix(name, "-dm"):
		return fmt.Errorf("name %q must not end in -dm", name)
	}
	return nil
}

// Indexed returns the name of the k-th instance of a batch.
//
// Example: Indexed("win", 2) → win-2
func Indexed(base string, k int) string {
	return base + "-" + strconv.Itoa(k)
}

// ExistsFunc reports whether a qube with the given name exists.
type ExistsFunc func(ctx context.Context, name string) (bool, error)

// Sequence hands out free names for a batch of count instances.
//
// A batch of one uses base unchanged and fails if it is taken. Larger
// batches probe base-1, base-2, ... and skip taken names. The probe
// counter is shared by all instances of the batch, so a name is never
// probed twice.
type Sequence struct {
	base    string
	count   int
	counter int
	issued  int
}

// NewSequence creates a Sequence for count instances named after base.
func NewSequence(base string, count int) *Sequence {
	return &Sequence{base: base, count: count}
}

// Remaining returns how many names have not been handed out yet.
func (s *Sequence) Remaining() int {
	return s.count - s.issued
}

// Next returns the next free name.
func (s *Sequence) Next(ctx context.Context, exists ExistsFunc) (string, error) {
	if s.Remaining() <= 0 {
		return "", fmt.Errorf("all %d names of batch %s issued", s.count, s.base)
	}

	if s.count == 1 {
		taken, err := exists(ctx, s.base)
		if err != nil {
			return "", err
		}
		if taken {
			return "", fmt.Errorf("%s: %w", s.base, ErrNameTaken)
		}
		s.issued++
		return s.base, nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		s.counter++
		name := Indexed(s.base, s.counter)
		if err := ValidateQubeName(name); err != nil {
			return "", fmt.Errorf("%w: %w", ErrInvalidName, err)
		}
		taken, err := exists(ctx, name)
		if err != nil {
			return "", err
		}
		if !taken {
			s.issued++
			return name, nil
		}
	}
}

// GuestIncomingDir returns where qvm-copy-to-vm places files sent from the
// src qube inside a Windows guest.
func GuestIncomingDir(src string) string {
	return `%USERPROFILE%\Documents\QubesIncoming\` + src
}

// GuestPath joins elements with Windows separators.
func GuestPath(elem ...string) string {
	return strings.Join(elem, `\`)
}
