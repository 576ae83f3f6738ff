// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package snapcache caches serialized FULL_AST payloads keyed by the
// project tree's root hash: a TTL'd, size-bounded LRU with a single
// compute slot per key so concurrent misses on the same key block on one
// computation instead of racing it. This keeps N clients reconnecting
// around the same tree state from each re-serializing it, which matters
// given the full-snapshot serialization latency budget.
package snapcache

import (
	"sync"
	"time"
)

type entry struct {
	payload    []byte
	expiration time.Time
	computing  bool
	ready      chan struct{}

	prev, next *entry
	key        string
}

// Cache holds up to capacity serialized snapshot payloads, evicting the
// least-recently-used entry once full, each with its own TTL.
type Cache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	entries  map[string]*entry
	head     *entry
	tail     *entry

	hits, misses uint64
}

// New builds a Cache holding up to capacity entries, each valid for ttl
// after it is computed.
func New(capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		capacity = 8
	}
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &Cache{
		capacity: capacity,
		ttl:      ttl,
		entries:  make(map[string]*entry, capacity),
	}
}

// ComputeFunc produces the serialized payload for a cache miss.
type ComputeFunc func() ([]byte, error)

// Get returns the cached payload for rootHash if still fresh, otherwise
// calls compute once and caches the result. Concurrent callers racing the
// same miss block on the single in-flight computation rather than each
// calling compute.
func (c *Cache) Get(rootHash string, compute ComputeFunc) ([]byte, error) {
	now := time.Now()

	c.mu.Lock()
	if e, ok := c.entries[rootHash]; ok {
		if e.computing {
			ready := e.ready
			c.mu.Unlock()
			<-ready
			c.mu.Lock()
		}
		if e, ok = c.entries[rootHash]; ok && now.Before(e.expiration) {
			c.touch(e)
			c.hits++
			payload := e.payload
			c.mu.Unlock()
			return payload, nil
		}
		if ok {
			c.unlink(e)
			delete(c.entries, rootHash)
		}
	}
	c.misses++

	e := &entry{key: rootHash, computing: true, ready: make(chan struct{})}
	c.entries[rootHash] = e
	c.mu.Unlock()

	payload, err := compute()

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		delete(c.entries, rootHash)
		close(e.ready)
		return nil, err
	}

	e.payload = payload
	e.expiration = now.Add(c.ttl)
	e.computing = false
	close(e.ready)
	c.insertFront(e)
	c.evictOverCapacity()

	return payload, nil
}

// Invalidate drops rootHash from the cache, used when the watcher
// reconciles the tree to a new root hash (document save or gap recovery).
func (c *Cache) Invalidate(rootHash string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[rootHash]; ok {
		c.unlink(e)
		delete(c.entries, rootHash)
	}
}

// Stats reports cumulative hit/miss counters, mainly for diagnostics.
func (c *Cache) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

func (c *Cache) touch(e *entry) {
	if e == c.head {
		return
	}
	c.unlink(e)
	c.insertFront(e)
}

func (c *Cache) unlink(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else if c.head == e {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else if c.tail == e {
		c.tail = e.prev
	}
	e.prev, e.next = nil, nil
}

func (c *Cache) insertFront(e *entry) {
	e.prev = nil
	e.next = c.head
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *Cache) evictOverCapacity() {
	for len(c.entries) > c.capacity && c.tail != nil {
		victim := c.tail
		c.unlink(victim)
		delete(c.entries, victim.key)
	}
}
