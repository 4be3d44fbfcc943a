package qubes

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"strings"
)

// Runner executes a host command and returns its captured output.
// A non-nil error for a command that ran and exited non-zero must be a
// *CommandError carrying the exit status.
type Runner interface {
	Run(ctx context.Context, stdin io.Reader, name string, args ...string) (stdout []byte, err error)
}

// ExecRunner runs commands on the local host with os/exec.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, stdin io.Reader, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = stdin

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.Bytes(), nil
	}

	exitCode := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		exitCode = exitErr.ExitCode()
	}
	return stdout.Bytes(), &CommandError{
		Args:       append([]string{name}, args...),
		ExitCode:   exitCode,
		Stderr:     stderr.String(),
		Underlying: err,
	}
}

// ShellQuote quotes s for a POSIX shell running inside a qube.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
