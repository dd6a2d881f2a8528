package serial

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestQueueRunsJobsInOrder(t *testing.T) {
	q := New()
	var mu sync.Mutex
	var got []int
	for i := 0; i < 100; i++ {
		i := i
		if !q.Submit(func(context.Context) {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}) {
			t.Fatalf("submit %d rejected", i)
		}
	}
	q.Close()
	<-q.Done()

	if len(got) != 100 {
		t.Fatalf("expected 100 jobs, ran %d", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("job %d ran out of order (got %d)", i, v)
		}
	}
}

func TestQueueNeverOverlapsJobs(t *testing.T) {
	q := New()
	var running, maxRunning int
	var mu sync.Mutex
	for i := 0; i < 50; i++ {
		q.Submit(func(context.Context) {
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
		})
	}
	q.Close()
	<-q.Done()
	if maxRunning != 1 {
		t.Fatalf("jobs overlapped: max concurrent = %d", maxRunning)
	}
}

func TestQueueCloseDrainsThenRejects(t *testing.T) {
	q := New()
	done := make(chan struct{})
	q.Submit(func(context.Context) { close(done) })
	q.Close()

	if q.Submit(func(context.Context) {}) {
		t.Error("submit after close should be rejected")
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("queued job did not run after close")
	}
	<-q.Done()
}

func TestQueueAbandonCancelsJobContext(t *testing.T) {
	q := New()
	observed := make(chan error, 1)
	started := make(chan struct{})
	q.Submit(func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		observed <- ctx.Err()
	})
	<-started
	q.Abandon()

	select {
	case err := <-observed:
		if err == nil {
			t.Fatal("expected cancellation error")
		}
	case <-time.After(time.Second):
		t.Fatal("job never observed cancellation")
	}
	q.Close()
	<-q.Done()
}
