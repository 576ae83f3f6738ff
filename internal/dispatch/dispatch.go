// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package dispatch implements the Event Dispatcher & Handlers: a static
// address routing table that applies inbound events to the project
// tree, debounces continuous-control traffic, accumulates batch markers,
// and classifies handler errors.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cckit/dawsync/internal/debounce"
	"github.com/cckit/dawsync/internal/ingress"
	"github.com/cckit/dawsync/internal/tree"
	"github.com/cckit/dawsync/pkg/log"
)

// Config bounds the dispatcher's debounce delays and reconciliation
// trigger, sourced from internal/config.Keys by the caller.
type Config struct {
	VolumeDebounce    time.Duration
	ParamDebounce     time.Duration
	TempoDebounce     time.Duration
	BatchFlushTimeout time.Duration

	// ReconcileNodeErrorThreshold is how many node_not_found errors within
	// ReconcileNodeErrorWindow trigger reconciliation: node_not_found is
	// downgraded to a warning and triggers reconciliation if two occur
	// within the window.
	ReconcileNodeErrorThreshold int
	ReconcileNodeErrorWindow    time.Duration
}

// handlerFunc applies one decoded event to the tree and emits its
// resulting Output via the owning Dispatcher.
type handlerFunc func(d *Dispatcher, ctx context.Context, ev ingress.Event) error

// Dispatcher owns the address routing table, the shared Debouncer (also
// used by the broadcast hub to coalesce continuous-control fan-out), and
// the batch-marker accumulation state.
type Dispatcher struct {
	mut       *tree.Mutator
	debouncer *debounce.Debouncer
	sink      Sink
	reconcile func()
	cfg       Config

	mu          sync.Mutex
	batchActive bool
	batchTimer  *time.Timer
	batch       tree.Batch

	nodeNotFoundMu sync.Mutex
	nodeNotFoundAt []time.Time
}

// New builds a Dispatcher. reconcile is called to trigger the "reconcile
// now" path on a node_not_found error burst; it is wired to the document
// watcher's on-demand parse+diff by the caller.
func New(mut *tree.Mutator, debouncer *debounce.Debouncer, sink Sink, reconcile func(), cfg Config) *Dispatcher {
	if cfg.ReconcileNodeErrorThreshold <= 0 {
		cfg.ReconcileNodeErrorThreshold = 2
	}
	if cfg.ReconcileNodeErrorWindow <= 0 {
		cfg.ReconcileNodeErrorWindow = time.Second
	}
	return &Dispatcher{
		mut:       mut,
		debouncer: debouncer,
		sink:      sink,
		reconcile: reconcile,
		cfg:       cfg,
	}
}

// Dispatch routes ev to its handler by exact address match. Unknown
// addresses are logged and ignored.
func (d *Dispatcher) Dispatch(ctx context.Context, ev ingress.Event) {
	h, ok := routes[ev.Address]
	if !ok {
		log.Warnf("dispatch: unknown_address %q", ev.Address)
		return
	}
	if err := h(d, ctx, ev); err != nil {
		d.classifyError(ev.Address, err)
	}
}

// classifyError implements the handler error policy: unknown_address is
// handled in Dispatch itself; node_not_found is downgraded to a warning
// with burst-triggered reconciliation; type_mismatch is logged with the
// offending payload and leaves the tree unchanged (already guaranteed by
// the tree package never applying a rejected mutation).
func (d *Dispatcher) classifyError(address string, err error) {
	switch {
	case errors.Is(err, tree.ErrNotFound):
		log.Warnf("dispatch: node_not_found handling %s: %v", address, err)
		d.noteNodeNotFound()
	case errors.Is(err, tree.ErrTypeMismatch):
		log.Errorf("dispatch: type_mismatch handling %s: %v", address, err)
	case errors.Is(err, tree.ErrInvariantViolation):
		log.Errorf("dispatch: invariant_violation handling %s: %v", address, err)
	default:
		log.Errorf("dispatch: handler error for %s: %v", address, err)
	}
}

func (d *Dispatcher) noteNodeNotFound() {
	now := time.Now()
	cutoff := now.Add(-d.cfg.ReconcileNodeErrorWindow)

	d.nodeNotFoundMu.Lock()
	defer d.nodeNotFoundMu.Unlock()

	kept := d.nodeNotFoundAt[:0]
	for _, t := range d.nodeNotFoundAt {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	d.nodeNotFoundAt = kept

	if len(d.nodeNotFoundAt) >= d.cfg.ReconcileNodeErrorThreshold {
		d.nodeNotFoundAt = nil
		if d.reconcile != nil {
			log.Warnf("dispatch: node_not_found burst, triggering reconciliation")
			d.reconcile()
		}
	}
}

// StartBatch opens a batch context: subsequent emitted changes accumulate
// instead of broadcasting individually, until EndBatch or the flush
// timeout elapses.
func (d *Dispatcher) StartBatch() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.batchActive {
		return
	}
	d.batchActive = true
	d.batch = tree.Batch{}
	d.batchTimer = time.AfterFunc(d.flushTimeout(), d.flushBatch)
}

// EndBatch closes the current batch context immediately, flushing its
// accumulated changes as a single diff batch.
func (d *Dispatcher) EndBatch() {
	d.flushBatch()
}

func (d *Dispatcher) flushTimeout() time.Duration {
	if d.cfg.BatchFlushTimeout > 0 {
		return d.cfg.BatchFlushTimeout
	}
	return 500 * time.Millisecond
}

func (d *Dispatcher) flushBatch() {
	d.mu.Lock()
	if !d.batchActive {
		d.mu.Unlock()
		return
	}
	d.batchActive = false
	if d.batchTimer != nil {
		d.batchTimer.Stop()
	}
	batch := d.batch
	d.batch = tree.Batch{}
	d.mu.Unlock()

	for _, c := range batch.Changes {
		d.sink(Output{Kind: OutputChange, Change: c})
	}
}

// emitChange appends cd to the open batch, if any, otherwise forwards it
// to the sink immediately.
func (d *Dispatcher) emitChange(cd tree.ChangeDescriptor) {
	d.mu.Lock()
	if d.batchActive {
		d.batch.AppendChange(cd)
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()
	d.sink(Output{Kind: OutputChange, Change: cd})
}

func (d *Dispatcher) emitSelection(s SelectionChange, seq uint32) {
	d.sink(Output{Kind: OutputSelection, Seq: seq, Selection: s})
}

func (d *Dispatcher) emitTransient(t TransientTrigger, seq uint32) {
	d.sink(Output{Kind: OutputTransient, Seq: seq, Transient: t})
}

// malformed wraps ingress-level arg-count/type failures distinctly from
// tree-level errors, so classifyError's default branch logs them as
// ordinary handler errors rather than misreporting them as tree defects.
func malformed(address string, want string) error {
	return fmt.Errorf("dispatch: %s expects args %s", address, want)
}
