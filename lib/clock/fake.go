// Copyright 2026 The Manifold Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"slices"
	"sync"
	"time"
)

// FakeClock is a Clock whose time moves only when Advance is called.
// It is safe for concurrent use.
//
// AfterFunc callbacks run synchronously inside Advance, in deadline
// order, with no clock lock held. A callback may arm new timers; ones
// that fall due within the same Advance fire before it returns.
type FakeClock struct {
	mu      sync.Mutex
	changed *sync.Cond
	now     time.Time
	nextSeq uint64
	pending []*scheduled
}

// scheduled is one armed After, AfterFunc, or ticker entry.
type scheduled struct {
	seq      uint64
	due      time.Time
	period   time.Duration // non-zero for tickers
	channel  chan time.Time
	callback func()
}

// Fake returns a FakeClock reading initial.
func Fake(initial time.Time) *FakeClock {
	clock := &FakeClock{now: initial}
	clock.changed = sync.NewCond(&clock.mu)
	return clock
}

// Now returns the fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After returns a channel that receives once the clock has advanced by d.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	channel := make(chan time.Time, 1)
	c.mu.Lock()
	defer c.mu.Unlock()
	if d <= 0 {
		channel <- c.now
		return channel
	}
	c.scheduleLocked(&scheduled{due: c.now.Add(d), channel: channel})
	return channel
}

// AfterFunc arms f to run during the Advance that crosses now+d. A
// non-positive d runs f synchronously.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	if d <= 0 {
		f()
		return &Timer{stop: func() bool { return false }}
	}
	c.mu.Lock()
	entry := &scheduled{due: c.now.Add(d), callback: f}
	c.scheduleLocked(entry)
	c.mu.Unlock()
	return &Timer{stop: func() bool { return c.cancel(entry) }}
}

// NewTicker returns a ticker that fires once per period of advanced time.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}
	channel := make(chan time.Time, 1)
	c.mu.Lock()
	entry := &scheduled{due: c.now.Add(d), period: d, channel: channel}
	c.scheduleLocked(entry)
	c.mu.Unlock()
	return &Ticker{C: channel, stop: func() { c.cancel(entry) }}
}

// Advance moves time forward by d, firing every entry that falls due
// in deadline order. Ticker sends never block.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	target := c.now
	c.mu.Unlock()

	for {
		entry := c.popDue(target)
		if entry == nil {
			return
		}
		if entry.callback != nil {
			entry.callback()
			continue
		}
		select {
		case entry.channel <- entry.due:
		default:
		}
	}
}

// WaitForTimers blocks until at least n entries are armed. Call it
// before Advance when the code under test arms its timer on another
// goroutine.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.pending) < n {
		c.changed.Wait()
	}
}

// PendingCount returns the number of armed entries.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *FakeClock) scheduleLocked(entry *scheduled) {
	c.nextSeq++
	entry.seq = c.nextSeq
	c.pending = append(c.pending, entry)
	c.changed.Broadcast()
}

// popDue removes and returns the earliest entry due at or before
// target. Tickers are re-armed for their next period.
func (c *FakeClock) popDue(target time.Time) *scheduled {
	c.mu.Lock()
	defer c.mu.Unlock()
	best := -1
	for index, entry := range c.pending {
		if entry.due.After(target) {
			continue
		}
		if best < 0 || entry.due.Before(c.pending[best].due) ||
			(entry.due.Equal(c.pending[best].due) && entry.seq < c.pending[best].seq) {
			best = index
		}
	}
	if best < 0 {
		return nil
	}
	entry := c.pending[best]
	if entry.period > 0 {
		fired := *entry
		entry.due = entry.due.Add(entry.period)
		return &fired
	}
	c.pending = slices.Delete(c.pending, best, best+1)
	return entry
}

func (c *FakeClock) cancel(entry *scheduled) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	index := slices.Index(c.pending, entry)
	if index < 0 {
		return false
	}
	c.pending = slices.Delete(c.pending, index, index+1)
	return true
}
