package lifecycle

import (
	"errors"
	"fmt"
)

// Common errors returned by lifecycle operations
var (
	// ErrNotInstalled indicates the service is unknown to the OS service manager
	ErrNotInstalled = errors.New("service is not installed")

	// ErrInvalidInstallation indicates the service could not be registered,
	// usually insufficient privilege or a malformed descriptor
	ErrInvalidInstallation = errors.New("invalid installation")

	// ErrOutcomeUnknown indicates a command was issued but no terminal
	// notification arrived in time
	ErrOutcomeUnknown = errors.New("outcome unknown, check status manually")
)

// Operation identifies a service manager command
type Operation int

const (
	OpInstall Operation = iota
	OpUninstall
	OpStart
	OpStop
)

func (o Operation) String() string {
	switch o {
	case OpInstall:
		return "install"
	case OpUninstall:
		return "uninstall"
	case OpStart:
		return "start"
	case OpStop:
		return "stop"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// PreconditionError is returned when an action is rejected before any
// command reaches the service manager
type PreconditionError struct {
	Service string
	Action  Action
	State   State
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("cannot %s %s: service is not installed", e.Action, e.Service)
}

// Unwrap returns ErrNotInstalled so callers can use errors.Is
func (e *PreconditionError) Unwrap() error {
	return ErrNotInstalled
}

// ManagerError represents a failure reported for a command already issued
type ManagerError struct {
	Op      Operation
	Service string
	Err     error
}

func (e *ManagerError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Service, e.Err)
}

// Unwrap returns the underlying error for error chain inspection
func (e *ManagerError) Unwrap() error {
	return e.Err
}
