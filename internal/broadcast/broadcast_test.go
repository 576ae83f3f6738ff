// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package broadcast

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cckit/dawsync/internal/debounce"
	"github.com/cckit/dawsync/internal/tree"
)

func newTestHub(queueCapacity int) *Hub {
	return &Hub{
		queueCapacity: queueCapacity,
		clients:       make(map[*client]struct{}),
	}
}

func newTestClient(h *Hub) *client {
	c := &client{hub: h, notify: make(chan struct{}, 1), done: make(chan struct{})}
	h.clients[c] = struct{}{}
	return c
}

// TestDropOldestDiffOnSaturatedQueue exercises the backpressure policy:
// when the queue is full, the oldest diff_update frame is evicted to
// make room, and the client stays connected.
func TestDropOldestDiffOnSaturatedQueue(t *testing.T) {
	h := newTestHub(2)
	c := newTestClient(h)

	require.True(t, c.enqueue(frame{Type: frameDiffUpdate, Payload: 1}))
	require.True(t, c.enqueue(frame{Type: frameDiffUpdate, Payload: 2}))
	// Queue is now full; this enqueue must evict the oldest diff (payload 1).
	require.True(t, c.enqueue(frame{Type: frameDiffUpdate, Payload: 3}))

	c.mu.Lock()
	queued := append([]frame(nil), c.queue...)
	c.mu.Unlock()

	require.Len(t, queued, 2)
	require.Equal(t, 2, queued[0].Payload)
	require.Equal(t, 3, queued[1].Payload)
	require.False(t, c.closed)
	require.Contains(t, h.clients, c)
}

// TestSlowConsumerDisconnectWhenQueueHasNoDroppableFrame covers the other
// branch of the same policy: a queue saturated with non-diff frames
// (full_snapshot/error) has nothing droppable, so the client is dropped
// as a slow consumer instead.
func TestSlowConsumerDisconnectWhenQueueHasNoDroppableFrame(t *testing.T) {
	h := newTestHub(1)
	c := newTestClient(h)

	require.True(t, c.enqueue(frame{Type: frameFullAST, Payload: "snap"}))
	ok := c.enqueue(frame{Type: frameFullAST, Payload: "snap2"})

	require.False(t, ok)
	require.True(t, c.closed)
	require.NotContains(t, h.clients, c)
}

// TestPerClientFIFOPreservesEnqueueOrder asserts property 8: messages are
// drained from a client's queue in the order they were enqueued.
func TestPerClientFIFOPreservesEnqueueOrder(t *testing.T) {
	h := newTestHub(64)
	c := newTestClient(h)

	for i := 0; i < 10; i++ {
		require.True(t, c.enqueue(frame{Type: frameDiffUpdate, Payload: i}))
	}

	out := c.popAll()
	require.Len(t, out, 10)
	for i, f := range out {
		require.Equal(t, i, f.Payload)
	}
}

// TestSlowConsumerIsolation covers property 9: one client saturating its
// queue and getting disconnected must not affect another client's queue.
func TestSlowConsumerIsolation(t *testing.T) {
	h := newTestHub(1)
	slow := newTestClient(h)
	fast := newTestClient(h)

	require.True(t, slow.enqueue(frame{Type: frameFullAST, Payload: "a"}))
	require.False(t, slow.enqueue(frame{Type: frameFullAST, Payload: "b"}))
	require.True(t, slow.closed)

	for i := 0; i < 5; i++ {
		require.True(t, fast.enqueue(frame{Type: frameDiffUpdate, Payload: i}))
	}
	require.False(t, fast.closed)
	// With a capacity of 1, each new diff evicts the queued one, so the fast
	// client keeps only the latest frame.
	remaining := fast.popAll()
	require.Len(t, remaining, 1)
	require.Equal(t, 4, remaining[0].Payload)
}

// TestBroadcastBatchAboveThresholdSendsSnapshotNotDiff covers S6: a diff
// batch larger than SnapshotThreshold must produce a single FULL_AST frame
// instead of a DIFF_UPDATE.
func TestBroadcastBatchAboveThresholdSendsSnapshotNotDiff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	root := &tree.Snapshot{NodeType: tree.NodeProject, ID: "project", Attrs: tree.Attrs{"tempo": 120.0}}
	mut := tree.NewMutator(ctx, tree.CreateFromParse(root), 8)

	h := New(mut, debounce.New(), nil, nil, Config{SnapshotThreshold: 5})
	c := newTestClient(h)

	var big tree.Batch
	for i := 0; i < 10; i++ {
		big.AppendChange(tree.ChangeDescriptor{Kind: tree.ChangeStateChanged, NodeID: "project"})
	}
	h.BroadcastBatch(big)

	queued := c.popAll()
	require.Len(t, queued, 1)
	require.Equal(t, frameFullAST, queued[0].Type)
}

// TestBroadcastBatchBelowThresholdSendsDiff covers the ordinary-update
// path: a small batch is sent as a DIFF_UPDATE frame, not a snapshot.
func TestBroadcastBatchBelowThresholdSendsDiff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	root := &tree.Snapshot{NodeType: tree.NodeProject, ID: "project", Attrs: tree.Attrs{"tempo": 120.0}}
	mut := tree.NewMutator(ctx, tree.CreateFromParse(root), 8)

	h := New(mut, debounce.New(), nil, nil, Config{SnapshotThreshold: 200})
	c := newTestClient(h)

	var small tree.Batch
	small.AppendChange(tree.ChangeDescriptor{Kind: tree.ChangeStateChanged, NodeID: "project"})
	h.BroadcastBatch(small)

	queued := c.popAll()
	require.Len(t, queued, 1)
	require.Equal(t, frameDiffUpdate, queued[0].Type)
}
