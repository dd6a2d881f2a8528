// Package dispatch routes published topic/event messages to the handlers
// of subscribed skills.
//
// Guarantees:
//   - Per-channel FIFO: messages published on one (type, name) channel
//     reach a given subscriber in publish order.
//   - Isolation: one subscriber's error, panic or timeout never prevents
//     delivery to the remaining subscribers of the same message.
//   - Per-skill serialization: handler work is submitted to the skill's
//     serial executor, so one skill never runs two handlers at once.
//
// Cross-skill ordering for a single published message is incidental:
// delivery to different skills proceeds in parallel.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/skilldock/skilldock/core"
	"github.com/skilldock/skilldock/logging"
)

// Options configures a Dispatcher.
type Options struct {
	// HandlerTimeout bounds a single handler invocation. A handler
	// exceeding it is abandoned (its context is cancelled); the
	// runtime never resumes a handler mid-execution.
	HandlerTimeout time.Duration

	// Logger defaults to NoOp if nil.
	Logger logging.Logger
}

// DefaultHandlerTimeout is used when no timeout is configured.
const DefaultHandlerTimeout = 15 * time.Second

// Dispatcher owns the subscription registry and performs publish fan-out.
// Subscriptions are installed per skill as an atomic batch and removed as
// a batch; the registry never exposes a partial set.
type Dispatcher struct {
	sandbox core.Sandbox
	exec    core.Executor
	logger  logging.Logger
	timeout time.Duration

	mu       sync.RWMutex
	channels map[channelKey]*channelState
	bySkill  map[string][]channelKey

	dropped   atomic.Uint64
	unmatched atomic.Uint64
}

type channelKey struct {
	kind core.ChannelType
	name string
}

// channelState holds one channel's subscribers. Its mutex is held across
// the enqueue phase of a publish, which is what makes per-channel FIFO
// hold under concurrent publishers without a global dispatch lock.
type channelState struct {
	mu    sync.Mutex
	subs  map[string]core.Subscription // skill id -> subscription
	order []string                     // install order, for deterministic fan-out
}

// New creates a dispatcher delivering through sandbox on the given
// per-skill executor.
func New(sandbox core.Sandbox, exec core.Executor, optFns ...func(o *Options)) *Dispatcher {
	opts := Options{HandlerTimeout: DefaultHandlerTimeout, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.HandlerTimeout <= 0 {
		opts.HandlerTimeout = DefaultHandlerTimeout
	}
	return &Dispatcher{
		sandbox:  sandbox,
		exec:     exec,
		logger:   opts.Logger,
		timeout:  opts.HandlerTimeout,
		channels: make(map[channelKey]*channelState),
		bySkill:  make(map[string][]channelKey),
	}
}

// Install registers all subscriptions of one skill as a single atomic
// batch: a concurrent Publish sees either none or all of them. Within the
// batch, a later subscription for the same (type, channel) replaces an
// earlier one, matching re-subscribe semantics.
func (d *Dispatcher) Install(subs []core.Subscription) {
	if len(subs) == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, sub := range subs {
		key := channelKey{kind: sub.Type, name: sub.Channel}
		cs := d.channels[key]
		if cs == nil {
			cs = &channelState{subs: make(map[string]core.Subscription)}
			d.channels[key] = cs
		}
		// A publisher past the registry lookup still iterates this
		// channel under cs.mu, so per-channel mutation needs it too.
		cs.mu.Lock()
		if _, replaced := cs.subs[sub.SkillID]; !replaced {
			cs.order = append(cs.order, sub.SkillID)
			d.bySkill[sub.SkillID] = append(d.bySkill[sub.SkillID], key)
		}
		cs.subs[sub.SkillID] = sub
		cs.mu.Unlock()
	}
}

// Remove drops every subscription owned by the skill. After Remove
// returns, no new dispatch can reach the skill.
func (d *Dispatcher) Remove(skillID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, key := range d.bySkill[skillID] {
		cs := d.channels[key]
		if cs == nil {
			continue
		}
		cs.mu.Lock()
		delete(cs.subs, skillID)
		for i, id := range cs.order {
			if id == skillID {
				cs.order = append(cs.order[:i], cs.order[i+1:]...)
				break
			}
		}
		empty := len(cs.subs) == 0
		cs.mu.Unlock()
		if empty {
			delete(d.channels, key)
		}
	}
	delete(d.bySkill, skillID)
}

// Publish fans the message out to every subscriber of its channel. Each
// matching handler is enqueued on its skill's serial executor; the call
// returns once all deliveries are enqueued, not when handlers finish.
func (d *Dispatcher) Publish(msg core.Message) {
	d.mu.RLock()
	cs := d.channels[channelKey{kind: msg.Type, name: msg.Channel}]
	d.mu.RUnlock()
	if cs == nil {
		d.unmatched.Add(1)
		d.logger.Debug("no subscribers for %s %q, message %s discarded", msg.Type, msg.Channel, msg.ID)
		return
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()
	for _, skillID := range cs.order {
		sub, ok := cs.subs[skillID]
		if !ok {
			continue
		}
		if !d.exec.Submit(sub.SkillID, d.invocation(sub, msg)) {
			d.dropped.Add(1)
			d.logger.Debug("skill %s not accepting work, dropped message %s on %q", sub.SkillID, msg.ID, msg.Channel)
		}
	}
}

// invocation wraps one handler delivery with timeout, panic containment
// and error logging. Failures never propagate past the dispatch boundary.
func (d *Dispatcher) invocation(sub core.Subscription, msg core.Message) func(ctx context.Context) {
	return func(ctx context.Context) {
		hctx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()

		start := time.Now()
		err := d.invokeGuarded(hctx, sub, msg)
		if err != nil {
			dispatchErr := &core.DispatchError{SkillID: sub.SkillID, Channel: msg.Channel, Err: err}
			d.logger.Error("handler failed: %v (message %s, duration %s)", dispatchErr, msg.ID, time.Since(start))
			return
		}
		d.logger.Debug("delivered %s %q to skill %s in %s", msg.Type, msg.Channel, sub.SkillID, time.Since(start))
	}
}

func (d *Dispatcher) invokeGuarded(ctx context.Context, sub core.Subscription, msg core.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return d.sandbox.InvokeHandler(ctx, sub.SkillID, sub.Handler, msg)
}

// Subscriptions returns the number of installed subscriptions for the
// skill. Used for introspection and tests.
func (d *Dispatcher) Subscriptions(skillID string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.bySkill[skillID])
}

// DroppedCount reports deliveries rejected by a stopping skill's executor.
func (d *Dispatcher) DroppedCount() uint64 { return d.dropped.Load() }

// UnmatchedCount reports publishes that found no subscribers.
func (d *Dispatcher) UnmatchedCount() uint64 { return d.unmatched.Load() }
