package hub

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestPollerRunsAtInterval(t *testing.T) {
	var runs atomic.Int32
	p := NewPoller("test", 10*time.Millisecond, func() {
		runs.Add(1)
	})
	p.Start()
	time.Sleep(55 * time.Millisecond)
	p.Stop()

	if n := runs.Load(); n < 2 {
		t.Errorf("ran %d times in 55ms at a 10ms interval, want at least 2", n)
	}
}

func TestPollerSingleFlight(t *testing.T) {
	var active, maxActive atomic.Int32
	block := make(chan struct{})

	p := NewPoller("test", 5*time.Millisecond, func() {
		n := active.Add(1)
		if n > maxActive.Load() {
			maxActive.Store(n)
		}
		<-block
		active.Add(-1)
	})
	p.Start()

	// Let several ticks fire while the first run is blocked; they must
	// all be skipped.
	time.Sleep(40 * time.Millisecond)
	close(block)
	p.Stop()

	if maxActive.Load() != 1 {
		t.Errorf("max concurrent runs = %d, want 1", maxActive.Load())
	}
}

func TestPollerStopWaitsForRun(t *testing.T) {
	var started, finished atomic.Int32
	p := NewPoller("test", 5*time.Millisecond, func() {
		started.Add(1)
		time.Sleep(20 * time.Millisecond)
		finished.Add(1)
	})
	p.Start()
	time.Sleep(10 * time.Millisecond)
	p.Stop()

	if started.Load() != finished.Load() {
		t.Errorf("Stop returned with %d runs started but %d finished",
			started.Load(), finished.Load())
	}
}
