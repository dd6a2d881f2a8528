// Package dialogue implements the multi-turn reply state machine. Each
// conversation session holds at most one pending reply handler; the next
// accepted reply consumes it, a rejected reply leaves it in place for a
// re-prompt, and an unanswered session expires silently.
package dialogue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/skilldock/skilldock/clock"
	"github.com/skilldock/skilldock/core"
	"github.com/skilldock/skilldock/logging"
)

// Options configures a Table.
type Options struct {
	// ReplyWindow bounds how long a registered reply handler waits for
	// input before it is discarded without being invoked.
	ReplyWindow time.Duration

	// HandlerTimeout bounds the reply handler invocation itself.
	HandlerTimeout time.Duration

	// SweepInterval is the cadence of the proactive expiry pass.
	SweepInterval time.Duration

	// Clock defaults to the real clock.
	Clock clock.Clock

	// Logger defaults to NoOp if nil.
	Logger logging.Logger
}

// Default windows; tunable via Options, not visible to skills.
const (
	DefaultReplyWindow    = 2 * time.Minute
	DefaultHandlerTimeout = 15 * time.Second
	DefaultSweepInterval  = 30 * time.Second
)

type pending struct {
	skillID   string
	handler   core.HandlerRef
	validator Validator
	createdAt time.Time
	expiresAt time.Time
}

// Table tracks pending reply handlers per conversation session. All
// methods are safe for concurrent use. Accepted replies are handed to the
// owning skill's serial executor, so reply handlers obey the same
// per-skill serialization as topic/event handlers.
type Table struct {
	sandbox core.Sandbox
	exec    core.Executor
	clk     clock.Clock
	logger  logging.Logger

	window  time.Duration
	timeout time.Duration

	mu       sync.Mutex
	sessions map[string]*pending

	unmatched atomic.Uint64

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New creates a table and starts its expiry sweeper. Call Close to stop
// the sweeper.
func New(sandbox core.Sandbox, exec core.Executor, optFns ...func(o *Options)) *Table {
	opts := Options{
		ReplyWindow:    DefaultReplyWindow,
		HandlerTimeout: DefaultHandlerTimeout,
		SweepInterval:  DefaultSweepInterval,
		Clock:          clock.Real(),
		Logger:         logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.ReplyWindow <= 0 {
		opts.ReplyWindow = DefaultReplyWindow
	}
	if opts.HandlerTimeout <= 0 {
		opts.HandlerTimeout = DefaultHandlerTimeout
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}

	t := &Table{
		sandbox:  sandbox,
		exec:     exec,
		clk:      opts.Clock,
		logger:   opts.Logger,
		window:   opts.ReplyWindow,
		timeout:  opts.HandlerTimeout,
		sessions: make(map[string]*pending),
		stopCh:   make(chan struct{}),
	}
	go t.sweepLoop(opts.SweepInterval)
	return t
}

// RegisterReply arms the session with a pending handler and validator.
// A prior pending handler for the session is replaced without being
// invoked: last registration wins, there is no queueing.
func (t *Table) RegisterReply(sessionID, skillID string, handler core.HandlerRef, validator Validator) {
	if validator == nil {
		validator = Any{}
	}
	now := t.clk.Now()
	t.mu.Lock()
	if prior, ok := t.sessions[sessionID]; ok {
		t.logger.Debug("session %s: pending handler of skill %s replaced by skill %s", sessionID, prior.skillID, skillID)
	}
	t.sessions[sessionID] = &pending{
		skillID:   skillID,
		handler:   handler,
		validator: validator,
		createdAt: now,
		expiresAt: now.Add(t.window),
	}
	t.mu.Unlock()
}

// SubmitReply feeds raw input to the session's pending validator. Returns
// true when the input was accepted and the handler dispatched. Input for
// a session with no live pending handler is discarded as unmatched;
// rejected input leaves the session awaiting a re-prompt.
func (t *Table) SubmitReply(sessionID, raw string) bool {
	now := t.clk.Now()
	t.mu.Lock()
	p, ok := t.sessions[sessionID]
	if ok && !p.expiresAt.After(now) {
		// Lazy expiry: the window passed without an accepted reply.
		delete(t.sessions, sessionID)
		ok = false
	}
	if !ok {
		t.mu.Unlock()
		t.unmatched.Add(1)
		t.logger.Debug("session %s: reply with no pending handler discarded", sessionID)
		return false
	}

	value, accepted := p.validator.Validate(raw)
	if !accepted {
		// Session stays armed with the same handler; the caller is
		// expected to re-prompt.
		t.mu.Unlock()
		t.logger.Debug("session %s: reply rejected by validator", sessionID)
		return false
	}

	// Consume before dispatch so the handler runs at most once even if
	// another reply for the session races in.
	delete(t.sessions, sessionID)
	t.mu.Unlock()

	submitted := t.exec.Submit(p.skillID, func(ctx context.Context) {
		hctx, cancel := context.WithTimeout(ctx, t.timeout)
		defer cancel()
		if err := t.sandbox.InvokeReply(hctx, p.skillID, p.handler, sessionID, value); err != nil {
			t.logger.Error("session %s: reply handler of skill %s failed: %v", sessionID, p.skillID, err)
		}
	})
	if !submitted {
		t.logger.Warn("session %s: skill %s not accepting work, reply dropped", sessionID, p.skillID)
		return false
	}
	return true
}

// RemoveSkill discards all pending handlers owned by the skill. Called by
// the lifecycle controller when the skill stops or fails.
func (t *Table) RemoveSkill(skillID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for sessionID, p := range t.sessions {
		if p.skillID == skillID {
			delete(t.sessions, sessionID)
		}
	}
}

// Pending reports whether the session currently has a live pending
// handler.
func (t *Table) Pending(sessionID string) bool {
	now := t.clk.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.sessions[sessionID]
	return ok && p.expiresAt.After(now)
}

// Sweep discards expired pending handlers and returns how many were
// removed. The background sweeper calls this; exposed for tests.
func (t *Table) Sweep() int {
	now := t.clk.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for sessionID, p := range t.sessions {
		if !p.expiresAt.After(now) {
			delete(t.sessions, sessionID)
			removed++
		}
	}
	return removed
}

// UnmatchedCount reports replies that found no pending handler.
func (t *Table) UnmatchedCount() uint64 { return t.unmatched.Load() }

// Close stops the expiry sweeper.
func (t *Table) Close() {
	t.stopOnce.Do(func() { close(t.stopCh) })
}

func (t *Table) sweepLoop(interval time.Duration) {
	ticker := t.clk.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.C:
			if n := t.Sweep(); n > 0 {
				t.logger.Debug("dialogue sweep discarded %d expired sessions", n)
			}
		}
	}
}
