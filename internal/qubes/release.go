package qubes

import (
	"fmt"
	"os"
	"regexp"

	"github.com/Masterminds/semver/v3"
)

// ReleaseFile is where dom0 records the installed Qubes release.
const ReleaseFile = "/etc/qubes-release"

// SupportedReleases is the constraint the installed release must satisfy.
// qrexec policy files in /etc/qubes/policy.d only exist from 4.1 on.
const SupportedReleases = ">= 4.1.0"

var releasePattern = regexp.MustCompile(`release\s+(\d+\.\d+(?:\.\d+)?)`)

// ParseRelease extracts the version from the contents of ReleaseFile,
// e.g. "Qubes release 4.2.3 (R4.2)".
func ParseRelease(content string) (*semver.Version, error) {
	m := releasePattern.FindStringSubmatch(content)
	if m == nil {
		return nil, fmt.Errorf("no release version found in %q", content)
	}
	v, err := semver.NewVersion(m[1])
	if err != nil {
		return nil, fmt.Errorf("invalid release version %q: %w", m[1], err)
	}
	return v, nil
}

// CheckRelease verifies that the release recorded in path is supported.
func CheckRelease(path string) (*semver.Version, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s (is this dom0?): %w", path, err)
	}

	v, err := ParseRelease(string(data))
	if err != nil {
		return nil, err
	}

	constraint, err := semver.NewConstraint(SupportedReleases)
	if err != nil {
		return nil, fmt.Errorf("invalid release constraint: %w", err)
	}
	if !constraint.Check(v) {
		return v, fmt.Errorf("unsupported Qubes release %s (need %s)", v, SupportedReleases)
	}
	return v, nil
}
