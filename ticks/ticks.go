// Package ticks provides the monotonic clocks used to timestamp buffer
// accesses.
package ticks

import (
	"sync"
	"time"
)

type Clock interface {
	Now() uint64
}

// Counter is a logical clock: every call to Now returns a value larger than
// any returned before.
type Counter struct {
	mu    *sync.Mutex
	ticks uint64
}

func MkCounter() *Counter {
	return &Counter{mu: new(sync.Mutex)}
}

func (c *Counter) Now() uint64 {
	c.mu.Lock()
	c.ticks++
	t := c.ticks
	c.mu.Unlock()
	return t
}

// Ticker counts timer interrupts. Accesses within the same period share a
// tick.
type Ticker struct {
	mu    *sync.Mutex
	ticks uint64
	done  chan struct{}
	wg    sync.WaitGroup
}

func MkTicker() *Ticker {
	return &Ticker{mu: new(sync.Mutex)}
}

func (t *Ticker) Start(period time.Duration) {
	t.mu.Lock()
	if t.done != nil {
		t.mu.Unlock()
		panic("ticker: already started")
	}
	t.done = make(chan struct{})
	done := t.done
	t.mu.Unlock()

	tk := time.NewTicker(period)
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer tk.Stop()
		for {
			select {
			case <-done:
				return
			case <-tk.C:
				t.tick()
			}
		}
	}()
}

func (t *Ticker) tick() {
	t.mu.Lock()
	t.ticks++
	t.mu.Unlock()
}

func (t *Ticker) Stop() {
	t.mu.Lock()
	done := t.done
	t.done = nil
	t.mu.Unlock()
	if done != nil {
		close(done)
		t.wg.Wait()
	}
}

func (t *Ticker) Now() uint64 {
	t.mu.Lock()
	n := t.ticks
	t.mu.Unlock()
	return n
}
