// Package errdefs defines the stable error code system for agentpack.
package errdefs

import (
	"errors"
	"fmt"
	"io"
)

// Code is a stable error code string.
type Code string

// Error codes. Stable public contract for scripting against the CLI.
const (
	EUsage Code = "E_USAGE"

	// Precondition errors: reported before any mutation.
	ESourceMissing  Code = "E_SOURCE_MISSING"
	ETargetInvalid  Code = "E_TARGET_INVALID"
	ENotInstalled   Code = "E_NOT_INSTALLED"
	EBundleInvalid  Code = "E_BUNDLE_INVALID"
	EVersionInvalid Code = "E_VERSION_INVALID"

	// Permission errors: distinct from generic I/O so the caller can
	// suggest a different scope.
	EPermission Code = "E_PERMISSION"

	// Corruption errors: the manifest exists but cannot be trusted.
	EManifestCorrupt Code = "E_MANIFEST_CORRUPT"

	// Operational errors.
	EStageFailed   Code = "E_STAGE_FAILED"
	ESwapFailed    Code = "E_SWAP_FAILED"
	ELocked        Code = "E_LOCKED"
	EUnhealthy     Code = "E_UNHEALTHY"
	EInterrupted   Code = "E_INTERRUPTED"
	EPersistFailed Code = "E_PERSIST_FAILED"
	EInternal      Code = "E_INTERNAL"
)

// Exit codes for the CLI layer. 130 follows the shell convention for
// SIGINT-terminated processes.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitUsage       = 2
	ExitInterrupted = 130
)

// PackError is the standard error type for agentpack errors.
type PackError struct {
	Code  Code
	Msg   string
	Cause error
}

// Error returns the stable error format: "CODE: message".
func (e *PackError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *PackError) Unwrap() error {
	return e.Cause
}

// New creates a new PackError with the given code and message.
func New(code Code, msg string) error {
	return &PackError{Code: code, Msg: msg}
}

// Newf creates a new PackError with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &PackError{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Wrap creates a new PackError wrapping an underlying error.
func Wrap(code Code, msg string, err error) error {
	return &PackError{Code: code, Msg: msg, Cause: err}
}

// GetCode extracts the error code from an error, or empty string if not a PackError.
func GetCode(err error) Code {
	var pe *PackError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// ExitCode returns the appropriate exit code for an error.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch GetCode(err) {
	case EUsage:
		return ExitUsage
	case EInterrupted:
		return ExitInterrupted
	default:
		return ExitFailure
	}
}

// Print writes the error to w in the stable stderr format:
//
//	error_code: <CODE>
//	<message>
func Print(w io.Writer, err error) {
	if err == nil {
		return
	}
	var pe *PackError
	if errors.As(err, &pe) {
		fmt.Fprintf(w, "error_code: %s\n", pe.Code)
		fmt.Fprintln(w, pe.Msg)
		return
	}
	fmt.Fprintln(w, err.Error())
}
