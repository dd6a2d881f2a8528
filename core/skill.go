package core

// LifecycleState is the single current state of a skill. A skill is never
// in more than one state; all transitions go through the lifecycle
// controller.
type LifecycleState int

const (
	// StateUninitialized is the zero state before registration completes.
	StateUninitialized LifecycleState = iota
	// StateStarting means the start hook is executing.
	StateStarting
	// StateActive means the skill is running and eligible for dispatch.
	StateActive
	// StateFailed means the start hook returned an error, panicked or
	// timed out. Failed skills never receive dispatched messages.
	StateFailed
	// StateShuttingDown means stop has begun; subscriptions are already
	// removed but the end hook may still be running.
	StateShuttingDown
	// StateStopped is the terminal state after stop completes.
	StateStopped
)

// String returns the string representation of the lifecycle state.
func (s LifecycleState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	case StateFailed:
		return "failed"
	case StateShuttingDown:
		return "shutting_down"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// HandlerRef is a stable identifier for a sandbox-invocable entry point.
// The core stores these identifiers, never raw closures, so every handler
// invocation crosses the sandbox boundary explicitly.
type HandlerRef string

// Subscription binds a skill's handler to a channel. Uniqueness is per
// (skill, channel type, channel name); re-subscribing replaces the prior
// handler for that skill.
type Subscription struct {
	SkillID string
	Type    ChannelType
	Channel string
	Handler HandlerRef
}

// SkillInfo is a point-in-time snapshot of a skill's lifecycle state used
// for introspection and reporting.
type SkillInfo struct {
	ID            string
	Name          string
	State         LifecycleState
	Subscriptions int
}
