package core

import "fmt"

var (
	// ErrSkillNotFound is returned when an operation references a skill
	// id that was never registered.
	ErrSkillNotFound = fmt.Errorf("skill not found")

	// ErrSkillNotActive is returned when an operation requires an
	// active skill but the skill is in another lifecycle state.
	ErrSkillNotActive = fmt.Errorf("skill not active")

	// ErrSkillExists is returned when starting a skill whose id is
	// already registered and not stopped.
	ErrSkillExists = fmt.Errorf("skill already registered")

	// ErrConfigurationMissing is returned when a skill declares a
	// required configuration key that the config source cannot resolve.
	ErrConfigurationMissing = fmt.Errorf("required configuration missing")

	// ErrHookTimeout is returned when a lifecycle hook exceeds its
	// budget.
	ErrHookTimeout = fmt.Errorf("lifecycle hook timed out")
)

// LifecycleError reports a failed or timed out lifecycle hook. It is
// surfaced to whatever triggered start/stop and recorded against the
// skill's state.
type LifecycleError struct {
	SkillID string
	Hook    Hook
	Err     error
}

// Error implements the error interface.
func (e *LifecycleError) Error() string {
	return fmt.Sprintf("skill %s: %s failed: %v", e.SkillID, e.Hook, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *LifecycleError) Unwrap() error { return e.Err }

// StorageError reports a durable read/write fault after the retry budget
// is exhausted. It is surfaced synchronously to the caller of the failing
// store operation; the store never silently downgrades a durable write to
// volatile.
type StorageError struct {
	SkillID  string
	Key      string
	Attempts int
	Err      error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure for (%s, %s) after %d attempts: %v", e.SkillID, e.Key, e.Attempts, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *StorageError) Unwrap() error { return e.Err }

// DispatchError reports a single faulted handler invocation. It is
// contained at the dispatch boundary: logged with the originating skill
// and channel, never propagated past the dispatcher, and non-fatal to the
// rest of the fan-out.
type DispatchError struct {
	SkillID string
	Channel string
	Err     error
}

// Error implements the error interface.
func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch to skill %s on %q failed: %v", e.SkillID, e.Channel, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *DispatchError) Unwrap() error { return e.Err }
