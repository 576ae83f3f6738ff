// Copyright (C) 2023 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package watcher implements the Document Watcher: observes the project
// document path for modification events, debounces, then re-parses and
// reconciles the live tree against the fresh parse. It also exposes the
// on-demand "reconcile now" path used by gap-detection and
// node_not_found-burst triggers from ingress and dispatch.
package watcher

import (
	"context"
	"strings"
	"time"

	"github.com/cckit/dawsync/internal/debounce"
	"github.com/cckit/dawsync/internal/diff"
	"github.com/cckit/dawsync/internal/docparser"
	"github.com/cckit/dawsync/internal/tree"
	"github.com/cckit/dawsync/internal/util"
	"github.com/cckit/dawsync/pkg/log"
)

const debounceKey = "watcher:document"

// Watcher wires fsnotify events on the document path through the parser,
// the diff engine, and the tree's replace_with: on change, debounce
// 500 ms, then parse, then diff the current tree against the new one,
// then apply the diff via replace_with, then push the resulting batch to
// the broadcast hub.
type Watcher struct {
	path      string
	parser    *docparser.Parser
	mut       *tree.Mutator
	debouncer *debounce.Debouncer
	delay     time.Duration

	onReconciled func(tree.Batch)
	onError      func(error)
}

// New builds a Watcher. onReconciled receives the resulting diff batch
// for the broadcast hub to send out; onError is called (without altering
// the live tree) on parser failure — a bad parse retains the current tree
// and just surfaces the error.
func New(path string, parser *docparser.Parser, mut *tree.Mutator, debouncer *debounce.Debouncer, delay time.Duration, onReconciled func(tree.Batch), onError func(error)) *Watcher {
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	return &Watcher{
		path:         path,
		parser:       parser,
		mut:          mut,
		debouncer:    debouncer,
		delay:        delay,
		onReconciled: onReconciled,
		onError:      onError,
	}
}

// Start registers the Watcher against the document path's parent
// directory with the shared fsnotify singleton (util.AddListener watches
// a directory; EventMatch filters to this Watcher's specific file).
func (w *Watcher) Start() {
	util.AddListener(parentDir(w.path), w)
}

// EventMatch implements util.Listener: only modification events on the
// exact document path are relevant.
func (w *Watcher) EventMatch(event string) bool {
	return strings.Contains(event, w.path) && strings.Contains(event, "WRITE")
}

// EventCallback implements util.Listener: debounce the burst of WRITE
// events a single save typically produces before reconciling once.
func (w *Watcher) EventCallback() {
	w.debouncer.Debounce(debounceKey, struct{}{}, w.delay, func(string, any) {
		w.Reconcile()
	})
}

// Reconcile runs the parse+diff+replace_with path immediately, bypassing
// the debounce window. This is the "reconcile now" path that the ingress
// gap handler and the dispatcher's node_not_found burst detector trigger.
func (w *Watcher) Reconcile() {
	newTree, err := w.parser.Parse(w.path)
	if err != nil {
		log.Errorf("watcher: parse failed, retaining current tree: %v", err)
		if w.onError != nil {
			w.onError(err)
		}
		return
	}

	batch, err := w.mut.ReplaceWith(context.Background(), newTree, diff.Diff)
	if err != nil {
		log.Errorf("watcher: replace_with failed: %v", err)
		if w.onError != nil {
			w.onError(err)
		}
		return
	}

	if w.onReconciled != nil {
		w.onReconciled(batch)
	}
}

func parentDir(path string) string {
	idx := strings.LastIndexByte(path, '/')
	if idx < 0 {
		return "."
	}
	return path[:idx]
}
