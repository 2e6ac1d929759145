package runtime

import "fmt"

// BackendInitError reports a backend that failed to come up. Phase names
// the lifecycle step that failed ("initialize", "start").
type BackendInitError struct {
	Backend string
	Phase   string
	Err     error
}

func (e *BackendInitError) Error() string {
	return fmt.Sprintf("%s backend failed to %s: %v", e.Backend, e.Phase, e.Err)
}

func (e *BackendInitError) Unwrap() error { return e.Err }

// BackendCompileError reports a backend that rejected a program during
// compile. The coordinator fails the whole compile when any active
// backend returns one.
type BackendCompileError struct {
	Backend string
	Err     error
}

func (e *BackendCompileError) Error() string {
	return fmt.Sprintf("%s backend compile: %v", e.Backend, e.Err)
}

func (e *BackendCompileError) Unwrap() error { return e.Err }
