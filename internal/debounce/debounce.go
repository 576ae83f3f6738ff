// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package debounce implements the trailing-edge, key-scoped rate limiter
// shared by the dispatcher and the broadcast hub: a single Debouncer type
// used both producer-side (throttle continuous events before they reach
// the tree) and broadcaster-side (coalesce rapid fan-outs).
package debounce

import (
	"sync"
	"time"
)

// Callback receives the most recent payload queued for key when its
// quiet-time window elapses.
type Callback func(key string, payload any)

type pending struct {
	timer    *time.Timer
	payload  any
	deadline time.Time
}

// Debouncer maps a debounce key to at most one pending scheduled callback.
// A new call for a key already pending cancels the old timer and
// reschedules with the latest payload — standard trailing-edge behavior.
type Debouncer struct {
	mu      sync.Mutex
	pending map[string]*pending
}

func New() *Debouncer {
	return &Debouncer{pending: make(map[string]*pending)}
}

// Debounce schedules callback(key, payload) to run after delay of quiet
// time on key. delay <= 0 is the structural-event class: it runs
// immediately, bypassing the timer machinery entirely.
func (d *Debouncer) Debounce(key string, payload any, delay time.Duration, callback Callback) {
	if delay <= 0 {
		callback(key, payload)
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if p, ok := d.pending[key]; ok {
		p.timer.Stop()
		p.payload = payload
		p.deadline = time.Now().Add(delay)
		p.timer.Reset(delay)
		return
	}

	p := &pending{payload: payload, deadline: time.Now().Add(delay)}
	p.timer = time.AfterFunc(delay, func() {
		d.mu.Lock()
		cur, ok := d.pending[key]
		if !ok {
			d.mu.Unlock()
			return
		}
		// A reschedule can race a timer that already fired and is waiting
		// on the lock; in that case the deadline has moved forward and the
		// quiet window isn't over yet, so re-arm for the remainder instead
		// of firing early.
		if remaining := time.Until(cur.deadline); remaining > 0 {
			cur.timer.Reset(remaining)
			d.mu.Unlock()
			return
		}
		delete(d.pending, key)
		latest := cur.payload
		d.mu.Unlock()
		callback(key, latest)
	})
	d.pending[key] = p
}

// Cancel drops any pending callback for key without running it, used when
// a superseding event makes the pending fan-out moot.
func (d *Debouncer) Cancel(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.pending[key]; ok {
		p.timer.Stop()
		delete(d.pending, key)
	}
}

// Shutdown cancels every pending callback, used when the owning hub shuts
// down.
func (d *Debouncer) Shutdown() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, p := range d.pending {
		p.timer.Stop()
		delete(d.pending, key)
	}
}

// Pending reports whether key currently has a scheduled callback, mainly
// useful from tests.
func (d *Debouncer) Pending(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pending[key]
	return ok
}
