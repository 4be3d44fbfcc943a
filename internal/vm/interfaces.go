package vm

import (
	"context"

	"github.com/jbweber/qubeforge/api/v1alpha1"
	"github.com/jbweber/qubeforge/internal/policy"
)

// MediaStager builds boot media on the resources qube.
//
// In production, this is satisfied by *media.Stager.
// In tests, this is satisfied by mock implementations.
type MediaStager interface {
	// Resources returns the name of the resources qube.
	Resources() string

	// Check verifies that the installation image and answer file exist.
	Check(ctx context.Context, iso, answerFile string) error

	// StageInstall builds unattended installation media.
	StageInstall(ctx context.Context, iso, answerFile string) (*v1alpha1.MediaRef, error)

	// StageTools builds the tools installer media from a dom0 image.
	StageTools(ctx context.Context, hostPath string) (*v1alpha1.MediaRef, error)

	// PostBundle returns the path of the post-installation scripts inside
	// the resources qube.
	PostBundle() string
}

// PolicyGranter creates temporary qrexec policy grants.
//
// In production, this is satisfied by *policy.Granter.
type PolicyGranter interface {
	// Allow permits service from source to target until the grant is
	// revoked.
	Allow(service, source, target string) (*policy.Grant, error)
}
