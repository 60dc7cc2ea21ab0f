package subscription

import (
	"sync"
	"time"
)

// Handle controls one periodic task started by Every.
type Handle struct {
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// Every runs fn on each tick of interval until the handle is cancelled. fn
// runs on the task's own goroutine; ticks are never run concurrently.
func Every(clock Clock, interval time.Duration, fn func(now time.Time)) *Handle {
	if clock == nil {
		clock = SystemClock()
	}
	h := &Handle{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	ticker := clock.NewTicker(interval)

	go func() {
		defer close(h.done)
		defer ticker.Stop()

		for {
			select {
			case <-h.stop:
				return
			case now := <-ticker.C():
				select {
				case <-h.stop:
					return
				default:
				}
				fn(now)
			}
		}
	}()

	return h
}

// Cancel signals the task to stop without waiting. Safe to call from fn.
func (h *Handle) Cancel() {
	if h == nil {
		return
	}
	h.once.Do(func() { close(h.stop) })
}

// Wait blocks until the task goroutine has exited.
func (h *Handle) Wait() {
	if h == nil {
		return
	}
	<-h.done
}

// Stop cancels the task and waits for it. Must not be called from fn.
func (h *Handle) Stop() {
	h.Cancel()
	h.Wait()
}
