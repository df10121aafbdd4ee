package common

import (
	"errors"
)

// Error kinds for the one taxonomy shared by dispatcher, worker and the
// API surfaces. Wrap with fmt.Errorf("...: %w", Err...) and classify
// with errors.Is.
var (
	// ErrValidation - caller supplied bad input. Surfaced immediately,
	// no state mutation.
	ErrValidation = errors.New("validation error")

	// ErrNotFound - the id exists nowhere the caller can see (download
	// on a job with no results, unknown local record).
	ErrNotFound = errors.New("not found")

	// ErrTimeout - a bounded wait expired before completion.
	ErrTimeout = errors.New("timed out")

	// ErrTransport - store or network operation failed after retries.
	ErrTransport = errors.New("transport error")

	// ErrExecution - the render tool exited non-zero, timed out, or
	// crashed. Recorded in the failure sentinel, never auto-retried.
	ErrExecution = errors.New("execution error")

	// ErrInternal - an invariant was violated. Logged with context;
	// details are never surfaced to clients.
	ErrInternal = errors.New("internal error")
)

// CLI exit codes per the job API contract.
const (
	ExitOK          = 0
	ExitInvalidArgs = 2
	ExitNotFound    = 3
	ExitTimeout     = 4
	ExitTransport   = 5
)

// ExitCode maps an error to the CLI exit code contract.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrValidation):
		return ExitInvalidArgs
	case errors.Is(err, ErrNotFound):
		return ExitNotFound
	case errors.Is(err, ErrTimeout):
		return ExitTimeout
	case errors.Is(err, ErrTransport):
		return ExitTransport
	default:
		return 1
	}
}
