// Package core provides the foundational domain types, interfaces and error
// taxonomy used by skilldock. It defines the core abstractions for:
//
//   - Values (the closed tagged variant crossing the sandbox boundary)
//   - Messages (ephemeral units of topic/event dispatch)
//   - Skills (lifecycle states, subscriptions, handler references)
//   - Sandbox (the boundary behind which all script code executes)
//   - Executor / ConfigSource (small collaborator contracts)
//
// The package intentionally keeps implementation concerns (persistence,
// dispatch, lifecycle orchestration) out of scope, exposing small interfaces
// so higher layers can be wired together without import cycles.
package core
