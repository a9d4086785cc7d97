package shell

import (
	"errors"
	"fmt"
)

var (
	ErrBuilderConsumed = fmt.Errorf("application builder has already been consumed")
	ErrMissingContext  = fmt.Errorf("run context is required")
	ErrMissingRuntime  = fmt.Errorf("host runtime is required")
	ErrNotBuilding     = fmt.Errorf("application values can only be set while plugins initialize")
	ErrRunTwice        = fmt.Errorf("cannot run an application more than once")
)

// Startup phases reported through FatalStartupError and the Hook.
const (
	PhaseBuild          = "build"
	PhaseContext        = "context"
	PhaseInitialization = "initialization"
	PhaseRunning        = "running"
	PhaseShutdown       = "shutdown"
	PhaseTerminated     = "terminated"
)

// FatalStartupError is returned when the application could not be finalized, a plugin could not be initialized, or
// the host runtime could not be started. There is no recovery from it: the process is expected to exit.
type FatalStartupError struct {
	Phase  string
	Plugin string
	Err    error
}

func (e *FatalStartupError) Error() string {
	if e.Plugin != "" {
		return fmt.Sprintf("error while running application: %s: plugin %q: %v", e.Phase, e.Plugin, e.Err)
	}
	return fmt.Sprintf("error while running application: %s: %v", e.Phase, e.Err)
}

func (e *FatalStartupError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err carries a FatalStartupError.
func IsFatal(err error) bool {
	var fatal *FatalStartupError
	return errors.As(err, &fatal)
}

func fatal(phase, plugin string, err error) error {
	return &FatalStartupError{Phase: phase, Plugin: plugin, Err: err}
}
