// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package snapcache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGetCachesByRootHash(t *testing.T) {
	c := New(4, time.Minute)
	var computed int32

	compute := func() ([]byte, error) {
		atomic.AddInt32(&computed, 1)
		return []byte("payload"), nil
	}

	for i := 0; i < 5; i++ {
		payload, err := c.Get("hash-a", compute)
		require.NoError(t, err)
		require.Equal(t, []byte("payload"), payload)
	}

	require.Equal(t, int32(1), computed)
	hits, misses := c.Stats()
	require.Equal(t, uint64(4), hits)
	require.Equal(t, uint64(1), misses)
}

func TestGetExpiresAfterTTL(t *testing.T) {
	c := New(4, 20*time.Millisecond)
	var computed int32
	compute := func() ([]byte, error) {
		atomic.AddInt32(&computed, 1)
		return []byte("v"), nil
	}

	_, err := c.Get("hash-b", compute)
	require.NoError(t, err)
	time.Sleep(40 * time.Millisecond)
	_, err = c.Get("hash-b", compute)
	require.NoError(t, err)

	require.Equal(t, int32(2), computed)
}

func TestConcurrentMissesBlockOnOneComputation(t *testing.T) {
	c := New(4, time.Minute)
	var computed int32
	release := make(chan struct{})

	compute := func() ([]byte, error) {
		atomic.AddInt32(&computed, 1)
		<-release
		return []byte("payload"), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			payload, err := c.Get("hash-c", compute)
			require.NoError(t, err)
			require.Equal(t, []byte("payload"), payload)
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	require.Equal(t, int32(1), computed)
}

func TestGetPropagatesComputeError(t *testing.T) {
	c := New(4, time.Minute)
	wantErr := errors.New("boom")

	_, err := c.Get("hash-d", func() ([]byte, error) {
		return nil, wantErr
	})
	require.ErrorIs(t, err, wantErr)

	// A failed compute must not poison the cache: a subsequent call
	// gets a fresh attempt, not a cached error.
	payload, err := c.Get("hash-d", func() ([]byte, error) {
		return []byte("ok"), nil
	})
	require.NoError(t, err)
	require.Equal(t, []byte("ok"), payload)
}

func TestEvictsLeastRecentlyUsedOverCapacity(t *testing.T) {
	c := New(2, time.Minute)
	compute := func(payload string) ComputeFunc {
		return func() ([]byte, error) { return []byte(payload), nil }
	}

	_, err := c.Get("a", compute("a"))
	require.NoError(t, err)
	_, err = c.Get("b", compute("b"))
	require.NoError(t, err)
	_, err = c.Get("a", compute("a")) // touch "a", making "b" the LRU entry.
	require.NoError(t, err)
	_, err = c.Get("c", compute("c")) // over capacity, evicts "b".
	require.NoError(t, err)

	var recomputed int32
	_, err = c.Get("b", func() ([]byte, error) {
		atomic.AddInt32(&recomputed, 1)
		return []byte("b"), nil
	})
	require.NoError(t, err)
	require.Equal(t, int32(1), recomputed)
}

func TestInvalidateDropsEntry(t *testing.T) {
	c := New(4, time.Minute)
	var computed int32
	compute := func() ([]byte, error) {
		atomic.AddInt32(&computed, 1)
		return []byte("v"), nil
	}

	_, err := c.Get("hash-e", compute)
	require.NoError(t, err)
	c.Invalidate("hash-e")
	_, err = c.Get("hash-e", compute)
	require.NoError(t, err)

	require.Equal(t, int32(2), computed)
}
