// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package clock abstracts time so the autonomous scan loop and TTL logic
// can be driven deterministically in tests.
package clock

import (
	"context"
	"sync"
	"time"
)

// Clock provides current time, sleeping, and repeating timers.
// Implementations must be safe for concurrent use.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Sleep blocks for d or until ctx is cancelled.
	Sleep(ctx context.Context, d time.Duration) error

	// After returns a channel that delivers the current time once d has
	// elapsed. Use it in select loops where Sleep cannot.
	After(d time.Duration) <-chan time.Time

	// SetInterval invokes fn every d until the returned cancel is called.
	// Invocations run on their own goroutine; fn must not block long.
	SetInterval(fn func(), d time.Duration) (cancel func())
}

// System is the wall-clock implementation.
type System struct{}

// NewSystem returns a Clock backed by the real time package.
func NewSystem() *System {
	return &System{}
}

// Now returns time.Now().
func (s *System) Now() time.Time {
	return time.Now()
}

// Sleep blocks for d or until ctx is cancelled.
func (s *System) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// After returns time.After(d).
func (s *System) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// SetInterval starts a ticker goroutine invoking fn every d.
func (s *System) SetInterval(fn func(), d time.Duration) func() {
	ticker := time.NewTicker(d)
	done := make(chan struct{})
	var once sync.Once

	go func() {
		for {
			select {
			case <-ticker.C:
				fn()
			case <-done:
				return
			}
		}
	}()

	return func() {
		once.Do(func() {
			ticker.Stop()
			close(done)
		})
	}
}

var _ Clock = (*System)(nil)

// Fake is a manually advanced Clock for tests.
// Advance moves time forward and fires any intervals that come due,
// synchronously on the caller's goroutine.
type Fake struct {
	mu        sync.Mutex
	now       time.Time
	intervals map[int]*fakeInterval
	timers    map[int]*fakeTimer
	nextID    int
}

type fakeInterval struct {
	fn     func()
	period time.Duration
	nextAt time.Time
}

type fakeTimer struct {
	ch    chan time.Time
	dueAt time.Time
}

// NewFake creates a fake clock starting at the given instant.
func NewFake(start time.Time) *Fake {
	return &Fake{
		now:       start,
		intervals: make(map[int]*fakeInterval),
		timers:    make(map[int]*fakeTimer),
	}
}

// Now returns the fake current time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Sleep advances the fake clock by d and returns immediately.
func (f *Fake) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.Advance(d)
	return nil
}

// After returns a channel delivered when Advance moves past d.
// A non-positive d delivers immediately.
func (f *Fake) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- f.now
		return ch
	}
	id := f.nextID
	f.nextID++
	f.timers[id] = &fakeTimer{ch: ch, dueAt: f.now.Add(d)}
	return ch
}

// SetInterval registers fn to fire every d fake-clock units.
func (f *Fake) SetInterval(fn func(), d time.Duration) func() {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextID
	f.nextID++
	f.intervals[id] = &fakeInterval{fn: fn, period: d, nextAt: f.now.Add(d)}

	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.intervals, id)
	}
}

// Advance moves the clock forward, firing due timers and intervals in
// time order.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)

	for {
		var dueIv *fakeInterval
		for _, iv := range f.intervals {
			if !iv.nextAt.After(target) && (dueIv == nil || iv.nextAt.Before(dueIv.nextAt)) {
				dueIv = iv
			}
		}
		var dueTimerID int
		var dueTimer *fakeTimer
		for id, tm := range f.timers {
			if !tm.dueAt.After(target) && (dueTimer == nil || tm.dueAt.Before(dueTimer.dueAt)) {
				dueTimer, dueTimerID = tm, id
			}
		}
		if dueIv == nil && dueTimer == nil {
			break
		}

		// Timers win ties: a select racing a timer against an interval
		// observes the timer's delivery first.
		if dueTimer != nil && (dueIv == nil || !dueTimer.dueAt.After(dueIv.nextAt)) {
			f.now = dueTimer.dueAt
			delete(f.timers, dueTimerID)
			dueTimer.ch <- f.now
			continue
		}

		f.now = dueIv.nextAt
		dueIv.nextAt = dueIv.nextAt.Add(dueIv.period)
		fn := dueIv.fn
		// Fire outside the lock so fn may re-enter the clock.
		f.mu.Unlock()
		fn()
		f.mu.Lock()
	}

	f.now = target
	f.mu.Unlock()
}

var _ Clock = (*Fake)(nil)
