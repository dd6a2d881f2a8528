package core

import "context"

// Hook identifies a skill lifecycle entry point.
type Hook string

const (
	// HookStart is the skill initialization hook.
	HookStart Hook = "on_start"
	// HookEnd is the skill teardown hook.
	HookEnd Hook = "on_end"
)

// Sandbox is the boundary between the runtime and script execution. All
// skill code runs behind this interface; the runtime never holds script
// closures, only handler identifiers resolved by the sandbox's own
// indirection table.
//
// Implementations must:
//   - Respect context cancellation and deadlines (hook and handler
//     timeouts are enforced through the supplied context)
//   - Return script-level assertion failures as errors rather than
//     panicking into runtime control flow
//   - Tolerate concurrent invocations for different skills; the runtime
//     guarantees that calls for a single skill never overlap
type Sandbox interface {
	// InvokeHook runs a lifecycle hook. A non-nil error marks the
	// start as failed; errors from the end hook are logged only.
	InvokeHook(ctx context.Context, skillID string, hook Hook) error

	// InvokeHandler delivers a published message to a subscription
	// handler. The message carries the typed payload and sender
	// metadata.
	InvokeHandler(ctx context.Context, skillID string, ref HandlerRef, msg Message) error

	// InvokeReply delivers a validated dialogue reply to a pending
	// reply handler.
	InvokeReply(ctx context.Context, skillID string, ref HandlerRef, sessionID string, value Value) error
}

// Executor submits work to a skill's serial execution queue. A single
// skill never executes two submitted functions concurrently; different
// skills run in parallel. Submit returns false when the skill is not
// accepting work (unknown, failed or stopping), in which case fn is
// never called.
type Executor interface {
	Submit(skillID string, fn func(ctx context.Context)) bool
}

// ConfigSource resolves script-level configuration constants declared as
// required by a skill manifest. It is a collaborator contract; a missing
// key surfaces as a start failure for the declaring skill.
type ConfigSource interface {
	Lookup(skillID, key string) (Value, bool)
}

// EmptyConfigSource is a ConfigSource with no entries.
type EmptyConfigSource struct{}

// Lookup always reports absence.
func (EmptyConfigSource) Lookup(string, string) (Value, bool) { return nil, false }
