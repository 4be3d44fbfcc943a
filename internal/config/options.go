// Package config holds the options of a provisioning run.
//
// Options are assembled once at startup from built-in defaults, an optional
// YAML file, the environment and command-line flags, in that order, and are
// never modified afterwards.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jbweber/qubeforge/api/v1alpha1"
	"github.com/jbweber/qubeforge/internal/libvirt"
	"github.com/jbweber/qubeforge/internal/naming"
)

// EnvResourcesQube overrides the resources qube name.
const EnvResourcesQube = "QUBEFORGE_RESOURCES_QUBE"

const (
	DefaultResourcesQube  = "windows-mgmt"
	DefaultToolsISO       = "/usr/lib/qubes/qubes-windows-tools.iso"
	DefaultLibvirtSocket  = libvirt.DefaultSocket
	DefaultDiskSizeGiB    = 30
	DefaultPrivateSizeGiB = 10
	DefaultPollInterval   = time.Second
	DefaultRetryBackoff   = 10 * time.Second
)

// packagePattern matches Chocolatey package ids.
var packagePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._+-]*$`)

// Options is the configuration of one qubeforge run.
type Options struct {
	Name     string `yaml:"name"`
	Count    int    `yaml:"count"`
	Template bool   `yaml:"template"`
	NetVM    string `yaml:"netvm,omitempty"`

	Seamless bool     `yaml:"seamless"`
	Optimize bool     `yaml:"optimize"`
	Spyless  bool     `yaml:"spyless"`
	Whonix   bool     `yaml:"whonix"`
	Packages []string `yaml:"packages,omitempty"`

	Pool           string `yaml:"pool,omitempty"`
	DiskSizeGiB    int    `yaml:"disk_size_gib"`
	PrivateSizeGiB int    `yaml:"private_size_gib"`

	ISO        string `yaml:"iso"`
	AnswerFile string `yaml:"answer_file"`
	ToolsISO   string `yaml:"tools_iso"`

	ResourcesQube string `yaml:"resources_qube"`
	ResourcesDir  string `yaml:"resources_dir,omitempty"` // Media and scripts inside the resources qube
	PolicyDir     string `yaml:"policy_dir,omitempty"`
	LibvirtSocket string `yaml:"libvirt_socket,omitempty"` // Empty disables the libvirt running probe

	PollInterval time.Duration `yaml:"poll_interval"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
	Deadline     time.Duration `yaml:"deadline,omitempty"` // Zero waits forever
}

// Defaults returns the built-in options.
func Defaults() Options {
	return Options{
		Count:          1,
		DiskSizeGiB:    DefaultDiskSizeGiB,
		PrivateSizeGiB: DefaultPrivateSizeGiB,
		ToolsISO:       DefaultToolsISO,
		ResourcesQube:  DefaultResourcesQube,
		LibvirtSocket:  DefaultLibvirtSocket,
		PollInterval:   DefaultPollInterval,
		RetryBackoff:   DefaultRetryBackoff,
	}
}

// LoadFile overlays the YAML file at path on base. Keys missing from the
// file keep the value from base; unknown keys are an error.
func LoadFile(path string, base Options) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	opts, err := LoadYAML(data, base)
	if err != nil {
		return base, fmt.Errorf("config file %s: %w", path, err)
	}
	return opts, nil
}

// LoadYAML overlays YAML data on base.
func LoadYAML(data []byte, base Options) (Options, error) {
	opts := base
	opts.Packages = append([]string(nil), base.Packages...)

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&opts); err != nil && !errors.Is(err, io.EOF) {
		return base, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}
	return opts, nil
}

// ApplyEnv returns o with environment overrides applied.
func (o Options) ApplyEnv(getenv func(string) string) Options {
	if v := getenv(EnvResourcesQube); v != "" {
		o.ResourcesQube = v
	}
	return o
}

// Class returns the qube class to create.
func (o Options) Class() v1alpha1.Class {
	if o.Template {
		return v1alpha1.ClassTemplate
	}
	return v1alpha1.ClassStandalone
}

// InstanceSpec returns the spec every instance of the batch shares.
func (o Options) InstanceSpec() v1alpha1.InstanceSpec {
	return v1alpha1.InstanceSpec{
		Class:          o.Class(),
		DiskSizeGiB:    o.DiskSizeGiB,
		PrivateSizeGiB: o.PrivateSizeGiB,
		Pool:           o.Pool,
		NetVM:          o.NetVM,
	}
}

// Validate checks the options for errors. It performs no I/O, so it can
// run before anything on the host is touched.
func (o Options) Validate() error {
	if err := naming.ValidateQubeName(o.Name); err != nil {
		return invalid("name", err.Error())
	}
	if o.Count < 1 {
		return invalid("count", fmt.Sprintf("must be >= 1, got %d", o.Count))
	}
	if o.Count > 1 && len(naming.Indexed(o.Name, o.Count)) > naming.MaxNameLength {
		return invalid("name", fmt.Sprintf("%q leaves no room for an instance number", o.Name))
	}
	if o.DiskSizeGiB < 1 {
		return invalid("disk_size_gib", fmt.Sprintf("must be >= 1, got %d", o.DiskSizeGiB))
	}
	if o.PrivateSizeGiB < 1 {
		return invalid("private_size_gib", fmt.Sprintf("must be >= 1, got %d", o.PrivateSizeGiB))
	}

	if o.NetVM != "" {
		if err := naming.ValidateQubeName(o.NetVM); err != nil {
			return invalid("netvm", err.Error())
		}
	}
	if len(o.Packages) > 0 && o.NetVM == "" {
		return invalid("packages", "installing packages requires a netvm")
	}
	for i, pkg := range o.Packages {
		if !packagePattern.MatchString(pkg) {
			return invalid(fmt.Sprintf("packages[%d]", i), fmt.Sprintf("invalid package name %q", pkg))
		}
	}

	if o.ISO == "" {
		return invalid("iso", "is required")
	}
	if o.AnswerFile == "" {
		return invalid("answer_file", "is required")
	}
	if o.ToolsISO == "" {
		return invalid("tools_iso", "is required")
	}
	if err := naming.ValidateQubeName(o.ResourcesQube); err != nil {
		return invalid("resources_qube", err.Error())
	}

	if o.PollInterval <= 0 {
		return invalid("poll_interval", fmt.Sprintf("must be > 0, got %s", o.PollInterval))
	}
	if o.RetryBackoff <= 0 {
		return invalid("retry_backoff", fmt.Sprintf("must be > 0, got %s", o.RetryBackoff))
	}
	if o.Deadline < 0 {
		return invalid("deadline", fmt.Sprintf("must not be negative, got %s", o.Deadline))
	}

	return nil
}

// ValidationError reports an invalid option.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidationError reports whether err is or wraps a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
