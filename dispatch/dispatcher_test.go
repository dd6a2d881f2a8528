package dispatch

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/skilldock/skilldock/core"
	"github.com/skilldock/skilldock/internal/serial"
)

// funcSandbox dispatches handler refs to registered Go funcs, standing in
// for a script sandbox.
type funcSandbox struct {
	mu       sync.Mutex
	handlers map[core.HandlerRef]func(ctx context.Context, skillID string, msg core.Message) error
}

func newFuncSandbox() *funcSandbox {
	return &funcSandbox{handlers: map[core.HandlerRef]func(context.Context, string, core.Message) error{}}
}

func (s *funcSandbox) on(ref core.HandlerRef, fn func(ctx context.Context, skillID string, msg core.Message) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[ref] = fn
}

func (s *funcSandbox) InvokeHook(context.Context, string, core.Hook) error { return nil }

func (s *funcSandbox) InvokeHandler(ctx context.Context, skillID string, ref core.HandlerRef, msg core.Message) error {
	s.mu.Lock()
	fn := s.handlers[ref]
	s.mu.Unlock()
	if fn == nil {
		return fmt.Errorf("unknown handler %s", ref)
	}
	return fn(ctx, skillID, msg)
}

func (s *funcSandbox) InvokeReply(context.Context, string, core.HandlerRef, string, core.Value) error {
	return nil
}

// queueExecutor runs submissions on one serial queue per skill.
type queueExecutor struct {
	mu     sync.Mutex
	queues map[string]*serial.Queue
}

func newQueueExecutor() *queueExecutor { return &queueExecutor{queues: map[string]*serial.Queue{}} }

func (e *queueExecutor) Submit(skillID string, fn func(ctx context.Context)) bool {
	e.mu.Lock()
	q := e.queues[skillID]
	if q == nil {
		q = serial.New()
		e.queues[skillID] = q
	}
	e.mu.Unlock()
	return q.Submit(fn)
}

func (e *queueExecutor) drain() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, q := range e.queues {
		q.Close()
		<-q.Done()
	}
	e.queues = map[string]*serial.Queue{}
}

func (e *queueExecutor) stop(skillID string) {
	e.mu.Lock()
	q := e.queues[skillID]
	if q == nil {
		// Queues are created lazily; materialize one so closing it makes
		// Submit reject for this skill even if it never received work.
		q = serial.New()
		e.queues[skillID] = q
	}
	e.mu.Unlock()
	q.Close()
	<-q.Done()
}

func topicSub(skillID, channel string, ref core.HandlerRef) core.Subscription {
	return core.Subscription{SkillID: skillID, Type: core.ChannelTopic, Channel: channel, Handler: ref}
}

func TestFanOutIsolation(t *testing.T) {
	sandbox := newFuncSandbox()
	exec := newQueueExecutor()
	d := New(sandbox, exec)

	var healthyCalls int32
	var mu sync.Mutex
	sandbox.on("broken.handler", func(context.Context, string, core.Message) error {
		panic("boom")
	})
	sandbox.on("healthy.handler", func(context.Context, string, core.Message) error {
		mu.Lock()
		healthyCalls++
		mu.Unlock()
		return nil
	})

	d.Install([]core.Subscription{topicSub("broken", "T", "broken.handler")})
	d.Install([]core.Subscription{topicSub("healthy", "T", "healthy.handler")})

	d.Publish(core.NewMessage(core.ChannelTopic, "T", core.Text("hi"), nil))
	exec.drain()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, int32(1), healthyCalls, "healthy handler must run exactly once despite peer panic")
}

func TestPerChannelFIFO(t *testing.T) {
	sandbox := newFuncSandbox()
	exec := newQueueExecutor()
	d := New(sandbox, exec)

	var mu sync.Mutex
	var got []string
	sandbox.on("rec", func(_ context.Context, _ string, msg core.Message) error {
		text, _ := core.AsText(msg.Payload)
		mu.Lock()
		got = append(got, text)
		mu.Unlock()
		return nil
	})
	d.Install([]core.Subscription{topicSub("sk", "orders", "rec")})

	for i := 0; i < 50; i++ {
		d.Publish(core.NewMessage(core.ChannelTopic, "orders", core.Text(fmt.Sprintf("m%d", i)), nil))
	}
	exec.drain()

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, got, 50)
	for i, text := range got {
		assert.Equal(t, fmt.Sprintf("m%d", i), text)
	}
}

func TestPerSkillSerialization(t *testing.T) {
	sandbox := newFuncSandbox()
	exec := newQueueExecutor()
	d := New(sandbox, exec)

	var mu sync.Mutex
	running, maxRunning := 0, 0
	handler := func(context.Context, string, core.Message) error {
		mu.Lock()
		running++
		if running > maxRunning {
			maxRunning = running
		}
		mu.Unlock()
		time.Sleep(time.Millisecond)
		mu.Lock()
		running--
		mu.Unlock()
		return nil
	}
	sandbox.on("h1", handler)
	sandbox.on("h2", handler)

	// Same skill on two channels; handlers must never overlap.
	d.Install([]core.Subscription{
		topicSub("sk", "a", "h1"),
		topicSub("sk", "b", "h2"),
	})

	for i := 0; i < 20; i++ {
		d.Publish(core.NewMessage(core.ChannelTopic, "a", core.Null(), nil))
		d.Publish(core.NewMessage(core.ChannelTopic, "b", core.Null(), nil))
	}
	exec.drain()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, maxRunning, "handlers for one skill overlapped")
}

func TestRemoveStopsDelivery(t *testing.T) {
	sandbox := newFuncSandbox()
	exec := newQueueExecutor()
	d := New(sandbox, exec)

	var calls int32
	var mu sync.Mutex
	sandbox.on("h", func(context.Context, string, core.Message) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil
	})
	d.Install([]core.Subscription{topicSub("sk", "T", "h")})

	d.Publish(core.NewMessage(core.ChannelTopic, "T", core.Null(), nil))
	d.Remove("sk")
	d.Publish(core.NewMessage(core.ChannelTopic, "T", core.Null(), nil))
	exec.drain()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, int32(1), calls)
	assert.Equal(t, 0, d.Subscriptions("sk"))
	assert.Equal(t, uint64(1), d.UnmatchedCount())
}

func TestEventAndTopicChannelsAreDistinct(t *testing.T) {
	sandbox := newFuncSandbox()
	exec := newQueueExecutor()
	d := New(sandbox, exec)

	var topicCalls int32
	var mu sync.Mutex
	sandbox.on("h", func(context.Context, string, core.Message) error {
		mu.Lock()
		topicCalls++
		mu.Unlock()
		return nil
	})
	d.Install([]core.Subscription{topicSub("sk", "same-name", "h")})

	d.Publish(core.NewMessage(core.ChannelEvent, "same-name", core.Null(), nil))
	exec.drain()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, int32(0), topicCalls, "event publish must not hit topic subscription")
	assert.Equal(t, uint64(1), d.UnmatchedCount())
}

func TestStoppedSkillDropsCounted(t *testing.T) {
	sandbox := newFuncSandbox()
	exec := newQueueExecutor()
	d := New(sandbox, exec)

	sandbox.on("h", func(context.Context, string, core.Message) error { return nil })
	d.Install([]core.Subscription{topicSub("sk", "T", "h")})

	exec.stop("sk") // executor rejects from here on
	d.Publish(core.NewMessage(core.ChannelTopic, "T", core.Null(), nil))

	assert.Equal(t, uint64(1), d.DroppedCount())
}

// Publishers racing skill start/stop must not corrupt a channel's
// subscriber registry. Most meaningful under the race detector.
func TestConcurrentPublishAndLifecycle(t *testing.T) {
	sb := newFuncSandbox()
	sb.on("a.h", func(context.Context, string, core.Message) error { return nil })
	sb.on("b.h", func(context.Context, string, core.Message) error { return nil })
	exec := newQueueExecutor()
	defer exec.drain()
	d := New(sb, exec)

	d.Install([]core.Subscription{{SkillID: "a", Type: core.ChannelTopic, Channel: "T", Handler: "a.h"}})

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					d.Publish(core.NewMessage(core.ChannelTopic, "T", core.Text("x"), nil))
				}
			}
		}()
	}

	// Churn a second subscriber on the same channel while publishers run.
	for i := 0; i < 200; i++ {
		d.Install([]core.Subscription{{SkillID: "b", Type: core.ChannelTopic, Channel: "T", Handler: "b.h"}})
		d.Remove("b")
	}
	close(stop)
	wg.Wait()

	assert.Equal(t, 1, d.Subscriptions("a"))
	assert.Equal(t, 0, d.Subscriptions("b"))
}

func TestHandlerErrorDoesNotPropagate(t *testing.T) {
	sandbox := newFuncSandbox()
	exec := newQueueExecutor()
	d := New(sandbox, exec)

	sandbox.on("failing", func(context.Context, string, core.Message) error {
		return fmt.Errorf("script assertion failed")
	})
	d.Install([]core.Subscription{topicSub("sk", "T", "failing")})

	// Must not panic, error is contained at the boundary.
	d.Publish(core.NewMessage(core.ChannelTopic, "T", core.Null(), nil))
	exec.drain()
}
