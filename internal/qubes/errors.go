package qubes

import (
	"errors"
	"fmt"
	"strings"
)

// CommandError describes a qvm-* (or other dom0) command that failed.
type CommandError struct {
	Args       []string
	ExitCode   int
	Stderr     string
	Underlying error
}

// Error returns a string representation of the CommandError.
func (e *CommandError) Error() string {
	msg := fmt.Sprintf("command '%s' failed with exit code %d", strings.Join(e.Args, " "), e.ExitCode)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg = fmt.Sprintf("%s: %s", msg, s)
	}
	return msg
}

// Unwrap returns the underlying error for errors.Is and errors.As support.
func (e *CommandError) Unwrap() error {
	return e.Underlying
}

// ExitCode extracts the exit status from err. The second result is false
// when err does not carry one, for example when the binary could not be
// started at all.
func ExitCode(err error) (int, bool) {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) && cmdErr.ExitCode >= 0 {
		return cmdErr.ExitCode, true
	}
	return -1, false
}

// isNegative reports whether err is a plain "no" answer from a predicate
// command such as qvm-check or pgrep, i.e. a clean non-zero exit.
func isNegative(err error) bool {
	code, ok := ExitCode(err)
	return ok && code > 0
}
