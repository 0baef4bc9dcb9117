package initd

import (
	"errors"
	"fmt"
)

// Common errors returned by supervisor operations
var (
	// ErrChildExit indicates a subordinate process exited and forced a
	// full shutdown of the session
	ErrChildExit = errors.New("initd: subordinate exited")

	// ErrHashFailed indicates the htpasswd hash could not be computed;
	// a fail-closed entry was written instead
	ErrHashFailed = errors.New("initd: password hash failed")

	// ErrNotReady indicates an expected on-disk layout did not appear
	// within the readiness window
	ErrNotReady = errors.New("initd: layout not ready")
)

// Op identifies a supervisor stage for error reporting
type Op int

// Supervisor stages
const (
	OpUnknown Op = iota
	OpResolve
	OpMaterialize
	OpPrepare
	OpLaunch
	OpSupervise
)

// String returns the human-readable stage name
func (o Op) String() string {
	switch o {
	case OpResolve:
		return "resolve"
	case OpMaterialize:
		return "materialize"
	case OpPrepare:
		return "prepare"
	case OpLaunch:
		return "launch"
	case OpSupervise:
		return "supervise"
	default:
		return "unknown"
	}
}

// OpError represents an error from a supervisor stage
type OpError struct {
	// Op is the stage that failed
	Op Op
	// Path is the file path or process name involved
	Path string
	// Err is the underlying error
	Err error
}

// Error returns a formatted error message
func (e *OpError) Error() string {
	return fmt.Sprintf("initd %s %q: %v", e.Op.String(), e.Path, e.Err)
}

// Unwrap returns the underlying error for error chain inspection
func (e *OpError) Unwrap() error {
	return e.Err
}

// MultiError aggregates multiple errors from bulk operations
type MultiError struct {
	// Errors contains all accumulated errors
	Errors []error
}

// Error returns a summary of the accumulated errors
func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}
	return fmt.Sprintf("%d errors occurred", len(m.Errors))
}

// Add appends an error to the collection if it's not nil
func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// Err returns nil if no errors occurred, otherwise returns the MultiError itself
func (m *MultiError) Err() error {
	if len(m.Errors) == 0 {
		return nil
	}
	return m
}
