package cli

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"lawgraph/internal/failure"
)

const (
	ExitSuccess           = 0
	ExitGraphFailure      = 1
	ExitInvalidInvocation = 2
	ExitConfigError       = 3
	ExitInternalError     = 4
)

// InvocationError is an error with a fixed exit code: bad flags or
// arguments, or configuration that could not be loaded.
type InvocationError struct {
	ExitCode int
	Message  string
}

func (e *InvocationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func invalidInvocationf(format string, args ...any) error {
	return &InvocationError{ExitCode: ExitInvalidInvocation, Message: fmt.Sprintf(format, args...)}
}

func configErrorf(format string, args ...any) error {
	return &InvocationError{ExitCode: ExitConfigError, Message: fmt.Sprintf(format, args...)}
}

// ExitCode maps err to a semantic exit code.
//
//   - invocation errors carry their own code
//   - construction failures (unreadable or invalid law files, bad seeds) are 3
//   - graph and execution failures (blocked runs, failed terminals) are 1
//   - everything else is 4
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var invErr *InvocationError
	if errors.As(err, &invErr) && invErr != nil {
		if invErr.ExitCode != 0 {
			return invErr.ExitCode
		}
		return ExitInvalidInvocation
	}
	f, cerr := failure.Classify(err)
	if cerr != nil {
		return ExitInternalError
	}
	switch f.Class {
	case failure.ClassConstruction:
		return ExitConfigError
	case failure.ClassGraph, failure.ClassExecution:
		return ExitGraphFailure
	default:
		return ExitInternalError
	}
}

// resolveUnderWorkDir makes p absolute relative to workDir. Absolute paths
// are kept as given.
func resolveUnderWorkDir(workDir, p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", invalidInvocationf("path must not be empty")
	}
	clean := filepath.Clean(p)
	if clean == "." {
		return "", invalidInvocationf("path must not be '.'")
	}
	if filepath.IsAbs(clean) {
		return clean, nil
	}
	return filepath.Clean(filepath.Join(workDir, clean)), nil
}
