// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package broadcast implements the Broadcast Hub: it holds the
// authoritative tree, fans out FULL_AST/DIFF_UPDATE/live_event frames to
// WebSocket clients, and optionally mirrors the same traffic to NATS for
// out-of-process consumers.
package broadcast

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cckit/dawsync/internal/debounce"
	"github.com/cckit/dawsync/internal/snapcache"
	"github.com/cckit/dawsync/internal/tree"
	"github.com/cckit/dawsync/pkg/log"
	"github.com/cckit/dawsync/pkg/nats"
)

const debounceKey = "broadcast"

// Config controls the Hub's queueing, coalescing, and liveness behavior.
type Config struct {
	QueueCapacity     int
	SnapshotThreshold int
	BroadcastDelay    time.Duration
	IdleTimeout       time.Duration
	PingTimeout       time.Duration

	// NatsSubject, when non-empty and natsClient is connected, mirrors
	// every outbound frame as a published NATS message. Left empty in
	// most deployments; this is purely an optional side-channel for
	// out-of-process consumers.
	NatsSubject string
}

// Hub owns the set of connected clients and the live tree reference used
// to build full_snapshot frames on (re)connect.
type Hub struct {
	mut       *tree.Mutator
	debouncer *debounce.Debouncer
	cfg       Config
	nats      *nats.Client
	snap      *snapcache.Cache

	queueCapacity int
	upgrader      websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}

	pendingMu sync.Mutex
	pending   tree.Batch
}

// New builds a Hub. debouncer is the same shared instance the dispatcher
// uses: one trailing-edge debouncer coalesces both producer-side
// throttling and broadcaster fan-out, keyed by distinct strings so the
// two uses never collide.
func New(mut *tree.Mutator, debouncer *debounce.Debouncer, natsClient *nats.Client, snapCache *snapcache.Cache, cfg Config) *Hub {
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 64
	}
	if cfg.SnapshotThreshold <= 0 {
		cfg.SnapshotThreshold = 200
	}
	if cfg.BroadcastDelay <= 0 {
		cfg.BroadcastDelay = 50 * time.Millisecond
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = 10 * time.Second
	}

	return &Hub{
		mut:           mut,
		debouncer:     debouncer,
		cfg:           cfg,
		nats:          natsClient,
		snap:          snapCache,
		queueCapacity: cfg.QueueCapacity,
		upgrader:      websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096},
		clients:       make(map[*client]struct{}),
	}
}

// ServeWS upgrades an HTTP request to a WebSocket connection, registers
// the client, and pushes a fresh full_snapshot immediately: every new
// connection gets a fresh snapshot regardless of what was most recently
// broadcast.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("broadcast: websocket upgrade failed: %v", err)
		return
	}

	c := newClient(h, conn)
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	ConnectedClients.Inc()

	go c.readPump(h.cfg.IdleTimeout, h.cfg.PingTimeout)
	go c.writePump(h.cfg.IdleTimeout, h.cfg.PingTimeout)

	h.sendSnapshotTo(c)
}

func (h *Hub) removeClient(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	h.mu.Unlock()
	if ok {
		ConnectedClients.Dec()
		c.markClosed()
	}
}

func (h *Hub) sendSnapshotTo(c *client) {
	var snap *tree.Snapshot
	var path string
	if err := h.mut.View(context.Background(), func(t *tree.Tree) {
		snap = t.Root().ToSnapshot()
		if p, ok := t.Root().Attrs["document_path"].(string); ok {
			path = p
		}
	}); err != nil {
		log.Errorf("broadcast: failed to snapshot tree for new client: %v", err)
		return
	}

	var pathPtr *string
	if path != "" {
		pathPtr = &path
	}
	payload := fullASTPayload{AST: snap, ProjectPath: pathPtr}
	c.enqueue(h.fullASTFrame(snap, payload))
	h.mirror(frameFullAST, payload)
}

// fullASTFrame builds the FULL_AST frame for snap, serving the already-
// serialized JSON bytes from the snapshot cache when one is configured:
// repeated sends of the same root hash, which is the common case when
// many clients reconnect around the same tree state, skip re-marshaling
// the whole tree per client.
func (h *Hub) fullASTFrame(snap *tree.Snapshot, payload fullASTPayload) frame {
	if h.snap == nil || snap == nil {
		return frame{Type: frameFullAST, Payload: payload}
	}
	raw, err := h.snap.Get(snap.Hash, func() ([]byte, error) {
		return json.Marshal(frame{Type: frameFullAST, Payload: payload})
	})
	if err != nil {
		log.Warnf("broadcast: snapshot cache compute failed, falling back to uncached send: %v", err)
		return frame{Type: frameFullAST, Payload: payload}
	}
	return frame{Type: frameFullAST, Payload: payload, raw: raw}
}

// BroadcastBatch pushes a diff batch to every client. A batch larger than
// SnapshotThreshold is sent as a fresh full_snapshot instead of a
// diff_update, since at that size a diff is no cheaper to apply than a
// full replace on the client.
func (h *Hub) BroadcastBatch(batch tree.Batch) {
	if batch.Len() == 0 {
		return
	}
	if batch.Len() > h.cfg.SnapshotThreshold {
		h.BroadcastFullSnapshot()
		return
	}
	h.enqueueDiff(batch)
}

// BroadcastChange is the entry point for the dispatcher's per-event
// change output: structural changes (node_added/node_removed) broadcast
// immediately, while state_changed records coalesce through the shared
// debouncer at BroadcastDelay for continuous control fan-out.
func (h *Hub) BroadcastChange(cd tree.ChangeDescriptor) {
	if cd.Kind != tree.ChangeStateChanged {
		var b tree.Batch
		b.AppendChange(cd)
		h.enqueueDiff(b)
		return
	}

	h.pendingMu.Lock()
	h.collapseStateChange(cd)
	h.pendingMu.Unlock()

	h.debouncer.Debounce(debounceKey, nil, h.cfg.BroadcastDelay, func(string, any) {
		h.pendingMu.Lock()
		batch := h.pending
		h.pending = tree.Batch{}
		h.pendingMu.Unlock()
		h.BroadcastBatch(batch)
	})
}

// collapseStateChange folds cd into h.pending, collapsing repeated
// state_changed records for the same (node_id, attribute) pair down to
// one record: rapid updates to the same attribute within one coalescing
// window (continuous controls like volume, device parameters, playing
// status) must reach clients as a single change carrying the original
// old_value and the latest new_value, not one record per intermediate
// tick. Callers must hold pendingMu.
func (h *Hub) collapseStateChange(cd tree.ChangeDescriptor) {
	for i, existing := range h.pending.Changes {
		if existing.Kind == tree.ChangeStateChanged && existing.NodeID == cd.NodeID && existing.Attribute == cd.Attribute {
			cd.OldValue = existing.OldValue
			h.pending.Changes[i] = cd
			return
		}
	}
	h.pending.AppendChange(cd)
}

// BroadcastSelection sends a live_event frame for a cursor/selection
// change (dispatch.OutputSelection); these never mutate the tree and so
// bypass the diff/snapshot machinery entirely.
func (h *Hub) BroadcastSelection(eventPath string, args any, seq uint32) {
	h.broadcastLiveEvent(eventPath, args, seq)
}

// BroadcastTransient sends a live_event frame for a momentary trigger
// (dispatch.OutputTransient).
func (h *Hub) BroadcastTransient(eventPath string, args any, seq uint32) {
	h.broadcastLiveEvent(eventPath, args, seq)
}

func unixMillisNow() int64 { return time.Now().UnixMilli() }

func (h *Hub) broadcastLiveEvent(eventPath string, args any, seq uint32) {
	payload := liveEventPayload{EventPath: eventPath, Args: args, SeqNum: seq, Timestamp: unixMillisNow()}
	h.broadcastFrame(frame{Type: frameLiveEvent, Payload: payload})
	h.mirror(frameLiveEvent, payload)
}

// BroadcastError sends an ERROR frame to every connected client, used
// when the watcher/dispatcher encounters a condition clients should know
// about (a parse failure that leaves the tree stale, for instance).
func (h *Hub) BroadcastError(message string, details string) {
	payload := errorPayload{Error: message, Details: details}
	h.broadcastFrame(frame{Type: frameError, Payload: payload})
	h.mirror(frameError, payload)
}

// BroadcastFullSnapshot pushes the current tree to every client as a
// fresh full_snapshot, used after a watcher reconciliation whose diff
// exceeded the snapshot threshold.
func (h *Hub) BroadcastFullSnapshot() {
	var snap *tree.Snapshot
	var path string
	if err := h.mut.View(context.Background(), func(t *tree.Tree) {
		snap = t.Root().ToSnapshot()
		if p, ok := t.Root().Attrs["document_path"].(string); ok {
			path = p
		}
	}); err != nil {
		log.Errorf("broadcast: failed to snapshot tree: %v", err)
		return
	}
	var pathPtr *string
	if path != "" {
		pathPtr = &path
	}
	payload := fullASTPayload{AST: snap, ProjectPath: pathPtr}
	h.broadcastFrame(h.fullASTFrame(snap, payload))
	h.mirror(frameFullAST, payload)
}

func (h *Hub) enqueueDiff(batch tree.Batch) {
	payload := diffUpdatePayload{Changes: batch.Changes, Added: batch.Added, Removed: batch.Removed, Modified: batch.Modified}
	h.broadcastFrame(frame{Type: frameDiffUpdate, Payload: payload})
	h.mirror(frameDiffUpdate, payload)
}

func (h *Hub) broadcastFrame(f frame) {
	h.mu.Lock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		c.enqueue(f)
	}
}

func (h *Hub) mirror(t frameType, payload any) {
	if h.nats == nil || h.cfg.NatsSubject == "" || !h.nats.IsConnected() {
		return
	}
	data, err := json.Marshal(frame{Type: t, Payload: payload})
	if err != nil {
		return
	}
	if err := h.nats.Publish(h.cfg.NatsSubject, data); err != nil {
		log.Warnf("broadcast: nats mirror publish failed: %v", err)
	}
}

// ClientCount reports the number of currently connected clients, mainly
// for diagnostics and tests.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Shutdown closes every connected client.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for _, c := range targets {
		c.markClosed()
		ConnectedClients.Dec()
	}
}
