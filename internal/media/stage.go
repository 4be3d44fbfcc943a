package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"

	"go.uber.org/zap"

	"github.com/jbweber/qubeforge/api/v1alpha1"
	"github.com/jbweber/qubeforge/internal/qubes"
)

const (
	// DefaultResourcesDir is where the resources qube keeps media and
	// scripts.
	DefaultResourcesDir = "/home/user/Documents/qubeforge"

	isoDir        = "windows-media/isos"
	answerFileDir = "windows-media/answer-files"
	outDir        = "windows-media/out"
	toolsDir      = "tools-media"
	postDir       = "post"

	toolsUpload = "qubes-windows-tools.iso"
	toolsOutput = "qwt-installer.iso"
)

// ErrNotFound is returned when a requested image or answer file is not
// present on the resources qube.
var ErrNotFound = errors.New("media not found")

// Surface is the part of the control surface the stager needs.
type Surface interface {
	Run(ctx context.Context, name, command string, opts qubes.RunOptions) ([]byte, error)
	ListFiles(ctx context.Context, name, dir, pattern string) ([]string, error)
}

// Stager builds boot media on the resources qube.
type Stager struct {
	s         Surface
	resources string
	dir       string
	log       *zap.SugaredLogger
}

// NewStager creates a Stager for the resources qube. An empty dir means
// DefaultResourcesDir.
func NewStager(s Surface, resources, dir string, log *zap.SugaredLogger) *Stager {
	if dir == "" {
		dir = DefaultResourcesDir
	}
	return &Stager{s: s, resources: resources, dir: dir, log: log}
}

// Resources returns the name of the resources qube.
func (st *Stager) Resources() string {
	return st.resources
}

// PostBundle returns the path of the post-installation script bundle
// inside the resources qube.
func (st *Stager) PostBundle() string {
	return path.Join(st.dir, postDir)
}

// Inventory lists installation images and answer files.
func (st *Stager) Inventory(ctx context.Context) (*Inventory, error) {
	images, err := st.s.ListFiles(ctx, st.resources, path.Join(st.dir, isoDir), "*.iso")
	if err != nil {
		return nil, fmt.Errorf("failed to list installation images: %w", err)
	}
	answers, err := st.s.ListFiles(ctx, st.resources, path.Join(st.dir, answerFileDir), "*.xml")
	if err != nil {
		return nil, fmt.Errorf("failed to list answer files: %w", err)
	}
	return &Inventory{Resources: st.resources, Images: images, AnswerFiles: answers}, nil
}

// Check verifies that iso and answerFile exist on the resources qube.
func (st *Stager) Check(ctx context.Context, iso, answerFile string) error {
	inv, err := st.Inventory(ctx)
	if err != nil {
		return err
	}
	if !inv.HasImage(iso) {
		return fmt.Errorf("installation image %s: %w", iso, ErrNotFound)
	}
	if !inv.HasAnswerFile(answerFile) {
		return fmt.Errorf("answer file %s: %w", answerFile, ErrNotFound)
	}
	return nil
}

// StageInstall combines iso and answerFile into unattended installation
// media and returns where it was written.
func (st *Stager) StageInstall(ctx context.Context, iso, answerFile string) (*v1alpha1.MediaRef, error) {
	st.log.Infow("Creating installation media", "image", iso, "answerFile", answerFile, "resources", st.resources)

	cmd := fmt.Sprintf("cd %s && ./create-media.sh %s %s",
		qubes.ShellQuote(path.Join(st.dir, "windows-media")),
		qubes.ShellQuote(path.Join("isos", iso)),
		qubes.ShellQuote(path.Join("answer-files", answerFile)),
	)
	if _, err := st.s.Run(ctx, st.resources, cmd, qubes.RunOptions{NoGUI: true}); err != nil {
		return nil, fmt.Errorf("failed to create installation media: %w", err)
	}

	return &v1alpha1.MediaRef{Instance: st.resources, Path: path.Join(st.dir, outDir, iso)}, nil
}

// StageTools streams the tools image at hostPath into the resources qube
// and builds an autorun installer image from it.
func (st *Stager) StageTools(ctx context.Context, hostPath string) (*v1alpha1.MediaRef, error) {
	f, err := os.Open(hostPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open tools image: %w", err)
	}
	defer func() { _ = f.Close() }()

	dir := path.Join(st.dir, toolsDir)
	st.log.Infow("Copying tools image to resources qube", "image", hostPath, "resources", st.resources)

	upload := "cat > " + qubes.ShellQuote(path.Join(dir, toolsUpload))
	if _, err := st.s.Run(ctx, st.resources, upload, qubes.RunOptions{Stdin: f, NoGUI: true}); err != nil {
		return nil, fmt.Errorf("failed to copy tools image: %w", err)
	}

	st.log.Infow("Creating tools installer media", "resources", st.resources)
	build := fmt.Sprintf("cd %s && ./unpack-qwt.sh && ./create-autorun-iso.sh", qubes.ShellQuote(dir))
	if _, err := st.s.Run(ctx, st.resources, build, qubes.RunOptions{NoGUI: true}); err != nil {
		return nil, fmt.Errorf("failed to create tools installer media: %w", err)
	}

	return &v1alpha1.MediaRef{Instance: st.resources, Path: path.Join(dir, toolsOutput)}, nil
}
