// Package engine is the lifecycle controller of the skill runtime. It
// registers skills from their manifests, runs start/end hooks in the
// sandbox under timeouts, installs subscriptions atomically on a
// successful start, and tears everything down in a defined order on
// stop. It is the composition root: the dispatcher, context store and
// dialogue table are created and owned here.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/skilldock/skilldock/clock"
	"github.com/skilldock/skilldock/contextstore"
	"github.com/skilldock/skilldock/core"
	"github.com/skilldock/skilldock/dialogue"
	"github.com/skilldock/skilldock/dispatch"
	"github.com/skilldock/skilldock/internal/serial"
	"github.com/skilldock/skilldock/logging"
)

// Config defines tuning parameters for the engine's lifecycle behavior.
//
// Additional concerns such as metrics collection should be configured via
// functional options rather than expanding this struct.
type Config struct {
	// StartTimeout bounds the on_start hook. A hook exceeding it
	// resolves the start to Failed.
	StartTimeout time.Duration

	// StopTimeout bounds the on_end hook and the drain of a stopping
	// skill's queued work. In-flight handlers past the deadline are
	// abandoned, not resumed.
	StopTimeout time.Duration

	// HandlerTimeout bounds a single topic/event/reply handler
	// invocation.
	HandlerTimeout time.Duration

	// ReplyWindow bounds how long a registered dialogue reply waits
	// for input.
	ReplyWindow time.Duration

	// SweepInterval is the cadence of the context and dialogue expiry
	// sweeps.
	SweepInterval time.Duration
}

// DefaultConfig provides production-ready default configuration values.
var DefaultConfig = Config{
	StartTimeout:   10 * time.Second,
	StopTimeout:    5 * time.Second,
	HandlerTimeout: 15 * time.Second,
	ReplyWindow:    2 * time.Minute,
	SweepInterval:  30 * time.Second,
}

// Options configures an Engine instance using the functional options
// pattern.
type Options struct {
	// Config contains operational parameters. Defaults to DefaultConfig.
	Config Config

	// ContextBackend persists durable context entries. Defaults to a
	// volatile-only store.
	ContextBackend contextstore.Backend

	// ConfigSource resolves required configuration constants declared
	// by manifests. Defaults to an empty source.
	ConfigSource core.ConfigSource

	// Clock provides the current time. Defaults to the real clock.
	Clock clock.Clock

	// Logger defaults to NoOp if nil.
	Logger logging.Logger
}

// Engine is the lifecycle controller. It owns the skill registry, the
// per-skill serial executors, the dispatcher's subscription registry, the
// context store and the dialogue table. There are no ambient singletons:
// every component receives its collaborators explicitly from here, and
// Shutdown drains them in a documented order (skills first, then the
// dialogue sweeper, then the context store and its backend).
//
// Concurrency model: skills execute in parallel with each other, but all
// work for one skill (lifecycle hooks, topic/event handlers, dialogue
// replies) runs on that skill's serial queue, so a skill's handlers never
// race against themselves.
type Engine struct {
	cfg     Config
	sandbox core.Sandbox
	logger  logging.Logger
	configs core.ConfigSource

	store      *contextstore.Store
	dispatcher *dispatch.Dispatcher
	dialogues  *dialogue.Table

	mu     sync.RWMutex
	skills map[string]*skillState
	closed bool
}

type skillState struct {
	manifest Manifest
	queue    *serial.Queue

	mu    sync.Mutex
	state core.LifecycleState

	stopOnce sync.Once
	stopped  chan struct{}
}

func (st *skillState) currentState() core.LifecycleState {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.state
}

func (st *skillState) setState(s core.LifecycleState) {
	st.mu.Lock()
	st.state = s
	st.mu.Unlock()
}

// transition moves the skill from one state to another, reporting false
// when another transition won the race and the move is no longer legal.
func (st *skillState) transition(from, to core.LifecycleState) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.state != from {
		return false
	}
	st.state = to
	return true
}

// beginShutdown atomically enters ShuttingDown and reports whether the
// skill was Active, so a concurrent activation cannot slip in between
// the check and the state change.
func (st *skillState) beginShutdown() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	wasActive := st.state == core.StateActive
	st.state = core.StateShuttingDown
	return wasActive
}

// New creates an engine around the given sandbox. The sandbox is
// required; everything else has defaults suitable for tests and
// volatile deployments.
func New(sandbox core.Sandbox, optFns ...func(o *Options)) *Engine {
	opts := Options{
		Config:         DefaultConfig,
		ContextBackend: contextstore.NoopBackend{},
		ConfigSource:   core.EmptyConfigSource{},
		Clock:          clock.Real(),
		Logger:         logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Config.StartTimeout <= 0 {
		opts.Config.StartTimeout = DefaultConfig.StartTimeout
	}
	if opts.Config.StopTimeout <= 0 {
		opts.Config.StopTimeout = DefaultConfig.StopTimeout
	}
	if opts.Config.HandlerTimeout <= 0 {
		opts.Config.HandlerTimeout = DefaultConfig.HandlerTimeout
	}
	if opts.Config.ReplyWindow <= 0 {
		opts.Config.ReplyWindow = DefaultConfig.ReplyWindow
	}
	if opts.Config.SweepInterval <= 0 {
		opts.Config.SweepInterval = DefaultConfig.SweepInterval
	}

	e := &Engine{
		cfg:     opts.Config,
		sandbox: sandbox,
		logger:  opts.Logger,
		configs: opts.ConfigSource,
		skills:  make(map[string]*skillState),
	}

	e.store = contextstore.New(func(o *contextstore.Options) {
		o.Backend = opts.ContextBackend
		o.Clock = opts.Clock
		o.Logger = opts.Logger
		o.Config.SweepInterval = opts.Config.SweepInterval
	})
	e.dispatcher = dispatch.New(sandbox, e, func(o *dispatch.Options) {
		o.HandlerTimeout = opts.Config.HandlerTimeout
		o.Logger = opts.Logger
	})
	e.dialogues = dialogue.New(sandbox, e, func(o *dialogue.Options) {
		o.ReplyWindow = opts.Config.ReplyWindow
		o.HandlerTimeout = opts.Config.HandlerTimeout
		o.SweepInterval = opts.Config.SweepInterval
		o.Clock = opts.Clock
		o.Logger = opts.Logger
	})
	return e
}

// Submit implements core.Executor: it enqueues fn on the skill's serial
// queue, accepting work only while the skill is Active.
func (e *Engine) Submit(skillID string, fn func(ctx context.Context)) bool {
	e.mu.RLock()
	st := e.skills[skillID]
	e.mu.RUnlock()
	if st == nil || st.currentState() != core.StateActive {
		return false
	}
	return st.queue.Submit(fn)
}

// StartSkill registers the skill and runs its start hook inside the
// sandbox under Config.StartTimeout. A returned error, a panic or a
// timeout all resolve to Failed: the skill is reported as such, never
// retried automatically, and never receives dispatched messages. Only on
// success does the skill become Active with its declared subscriptions
// installed atomically.
func (e *Engine) StartSkill(ctx context.Context, m Manifest) error {
	if err := m.Validate(); err != nil {
		return err
	}

	st := &skillState{
		manifest: m,
		queue:    serial.New(),
		state:    core.StateStarting,
		stopped:  make(chan struct{}),
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		st.queue.Close()
		return fmt.Errorf("engine is shut down")
	}
	if prior, ok := e.skills[m.ID]; ok {
		switch prior.currentState() {
		case core.StateFailed, core.StateStopped:
			// Restart after a terminal state replaces the record.
		default:
			e.mu.Unlock()
			st.queue.Close()
			return fmt.Errorf("%w: %s", core.ErrSkillExists, m.ID)
		}
	}
	e.skills[m.ID] = st
	e.mu.Unlock()

	fail := func(cause error) error {
		st.transition(core.StateStarting, core.StateFailed)
		st.queue.Close()
		err := &core.LifecycleError{SkillID: m.ID, Hook: core.HookStart, Err: cause}
		e.logger.Error("skill %s failed to start: %v", m.ID, cause)
		return err
	}

	for _, key := range m.RequiredConfig {
		if _, ok := e.configs.Lookup(m.ID, key); !ok {
			return fail(fmt.Errorf("%w: %q", core.ErrConfigurationMissing, key))
		}
	}

	if err := e.store.LoadSkill(ctx, m.ID); err != nil {
		return fail(err)
	}

	// The start hook runs on the skill's own queue so that nothing the
	// skill does later can overlap with its initialization.
	errCh := make(chan error, 1)
	st.queue.Submit(func(qctx context.Context) {
		hctx, cancel := context.WithTimeout(qctx, e.cfg.StartTimeout)
		defer cancel()
		errCh <- e.invokeHookGuarded(hctx, m.ID, core.HookStart)
	})

	var hookErr error
	select {
	case hookErr = <-errCh:
	case <-time.After(e.cfg.StartTimeout + time.Second):
		// Sandbox ignored the deadline; abandon the hook.
		st.queue.Abandon()
		hookErr = core.ErrHookTimeout
	case <-ctx.Done():
		hookErr = ctx.Err()
	}
	if hookErr != nil {
		if errors.Is(hookErr, context.DeadlineExceeded) {
			hookErr = core.ErrHookTimeout
		}
		return fail(hookErr)
	}

	// A concurrent StopSkill may have torn the skill down while the hook
	// was running; activating would be an illegal Stopped -> Active move.
	if !st.transition(core.StateStarting, core.StateActive) {
		return fmt.Errorf("%w: %s stopped while starting", core.ErrSkillNotActive, m.ID)
	}
	e.dispatcher.Install(m.subscriptions())
	if st.currentState() != core.StateActive {
		// Teardown raced the install; undo it so no subscription outlives
		// the skill.
		e.dispatcher.Remove(m.ID)
		return fmt.Errorf("%w: %s stopped while starting", core.ErrSkillNotActive, m.ID)
	}
	e.logger.Info("skill %s started with %d subscriptions", m.ID, len(m.Subscriptions))
	return nil
}

// StopSkill transitions the skill to Stopped. Subscriptions are removed
// first so no new dispatch can reach the skill, then the end hook runs
// exactly once (hook failures are logged, never propagated), queued work
// is drained up to Config.StopTimeout, and the skill's context is
// flushed when its manifest requests it. Concurrent StopSkill calls are
// idempotent: every caller returns after the single teardown completes.
func (e *Engine) StopSkill(ctx context.Context, skillID string) error {
	e.mu.RLock()
	st := e.skills[skillID]
	e.mu.RUnlock()
	if st == nil {
		return fmt.Errorf("%w: %s", core.ErrSkillNotFound, skillID)
	}

	st.stopOnce.Do(func() { e.teardown(skillID, st) })

	select {
	case <-st.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) teardown(skillID string, st *skillState) {
	wasActive := st.beginShutdown()
	e.dispatcher.Remove(skillID)
	e.dialogues.RemoveSkill(skillID)

	if wasActive {
		st.queue.Submit(func(qctx context.Context) {
			hctx, cancel := context.WithTimeout(qctx, e.cfg.StopTimeout)
			defer cancel()
			if err := e.invokeHookGuarded(hctx, skillID, core.HookEnd); err != nil {
				e.logger.Warn("skill %s: end hook failed: %v", skillID, err)
			}
		})
	}
	st.queue.Close()

	select {
	case <-st.queue.Done():
	case <-time.After(e.cfg.StopTimeout + time.Second):
		e.logger.Warn("skill %s: drain deadline exceeded, abandoning queued work", skillID)
		st.queue.Abandon()
	}

	if st.manifest.FlushContext {
		e.store.Flush(skillID)
	}
	st.setState(core.StateStopped)
	e.logger.Info("skill %s stopped", skillID)
	close(st.stopped)
}

func (e *Engine) invokeHookGuarded(ctx context.Context, skillID string, hook core.Hook) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked: %v", hook, r)
		}
	}()
	return e.sandbox.InvokeHook(ctx, skillID, hook)
}

// Subscribe installs one subscription for an active skill, replacing any
// prior handler the skill bound to the same (type, channel). Used by the
// sandbox when a running skill subscribes outside its manifest.
func (e *Engine) Subscribe(skillID string, channelType core.ChannelType, channel string, handler core.HandlerRef) error {
	if !channelType.Valid() {
		return fmt.Errorf("invalid channel type %q", channelType)
	}
	if channel == "" || handler == "" {
		return fmt.Errorf("channel and handler are required")
	}
	e.mu.RLock()
	st := e.skills[skillID]
	e.mu.RUnlock()
	if st == nil {
		return fmt.Errorf("%w: %s", core.ErrSkillNotFound, skillID)
	}
	if st.currentState() != core.StateActive {
		return fmt.Errorf("%w: %s", core.ErrSkillNotActive, skillID)
	}
	e.dispatcher.Install([]core.Subscription{{
		SkillID: skillID,
		Type:    channelType,
		Channel: channel,
		Handler: handler,
	}})
	return nil
}

// Publish routes a message to all active subscribers of the channel.
// Delivery to different skills proceeds concurrently; per-subscriber
// FIFO holds per channel.
func (e *Engine) Publish(channelType core.ChannelType, channel string, payload core.Value, sender *core.SenderInfo) {
	e.dispatcher.Publish(core.NewMessage(channelType, channel, payload, sender))
}

// RegisterReply arms a dialogue session with a pending reply handler
// owned by the skill. A prior registration for the session is replaced.
func (e *Engine) RegisterReply(sessionID, skillID string, handler core.HandlerRef, validator dialogue.Validator) {
	e.dialogues.RegisterReply(sessionID, skillID, handler, validator)
}

// SubmitReply feeds raw user input to a session's pending validator.
// Returns true when the reply was accepted and its handler dispatched.
func (e *Engine) SubmitReply(sessionID, raw string) bool {
	return e.dialogues.SubmitReply(sessionID, raw)
}

// Context returns the context store, the surface the sandbox exposes to
// scripts as context.get/set/has/remove.
func (e *Engine) Context() *contextstore.Store { return e.store }

// Skill returns a snapshot of the skill's lifecycle state.
func (e *Engine) Skill(skillID string) (core.SkillInfo, bool) {
	e.mu.RLock()
	st := e.skills[skillID]
	e.mu.RUnlock()
	if st == nil {
		return core.SkillInfo{}, false
	}
	return core.SkillInfo{
		ID:            skillID,
		Name:          st.manifest.Name,
		State:         st.currentState(),
		Subscriptions: e.dispatcher.Subscriptions(skillID),
	}, true
}

// Skills returns a snapshot of all registered skills.
func (e *Engine) Skills() []core.SkillInfo {
	e.mu.RLock()
	ids := make([]string, 0, len(e.skills))
	for id := range e.skills {
		ids = append(ids, id)
	}
	e.mu.RUnlock()

	infos := make([]core.SkillInfo, 0, len(ids))
	for _, id := range ids {
		if info, ok := e.Skill(id); ok {
			infos = append(infos, info)
		}
	}
	return infos
}

// Shutdown stops every skill, then the dialogue sweeper, then the
// context store and its backend. After Shutdown no skill can start.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	ids := make([]string, 0, len(e.skills))
	for id := range e.skills {
		ids = append(ids, id)
	}
	e.mu.Unlock()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := e.StopSkill(ctx, id); err != nil {
				e.logger.Warn("shutdown: stopping skill %s: %v", id, err)
			}
		}(id)
	}
	wg.Wait()

	e.dialogues.Close()
	return e.store.Close()
}
