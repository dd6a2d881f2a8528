package clock

import (
	"testing"
	"time"
)

func TestFakeAdvanceMovesNow(t *testing.T) {
	f := NewFake()
	start := f.Now()
	f.Advance(5 * time.Second)
	if got := f.Now().Sub(start); got != 5*time.Second {
		t.Fatalf("expected 5s elapsed, got %v", got)
	}
}

func TestFakeTickerFiresOnAdvance(t *testing.T) {
	f := NewFake()
	tk := f.NewTicker(time.Second)
	defer tk.Stop()

	select {
	case <-tk.C:
		t.Fatal("ticker fired before any advance")
	default:
	}

	f.Advance(time.Second)
	select {
	case <-tk.C:
	default:
		t.Fatal("ticker did not fire after one interval")
	}

	// Multiple elapsed intervals with an undrained channel collapse to
	// one pending tick.
	f.Advance(10 * time.Second)
	<-tk.C
	select {
	case <-tk.C:
		t.Fatal("expected dropped ticks beyond channel capacity")
	default:
	}
}

func TestFakeTickerStop(t *testing.T) {
	f := NewFake()
	tk := f.NewTicker(time.Second)
	tk.Stop()
	f.Advance(3 * time.Second)
	select {
	case <-tk.C:
		t.Fatal("stopped ticker fired")
	default:
	}
}

func TestFakeSetBackwardsPanics(t *testing.T) {
	f := NewFake()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic moving time backwards")
		}
	}()
	f.Set(f.Now().Add(-time.Second))
}
