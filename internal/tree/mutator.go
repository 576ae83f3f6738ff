// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package tree

import (
	"context"
	"fmt"

	"github.com/cckit/dawsync/pkg/log"
)

// Mutator pins a Tree to a single owning goroutine and exposes every
// mutation as a request sent over a bounded channel: the tree and its
// identifier index are owned by a single executor task, and all other
// tasks communicate with it via bounded channels rather than a shared
// mutex.
type Mutator struct {
	tree *Tree
	reqs chan request
}

type request struct {
	fn    func(*Tree) (any, error)
	reply chan result
}

type result struct {
	val any
	err error
}

// NewMutator starts the owning goroutine for t and returns a handle. Run
// cancels when ctx is done; callers must not use the Mutator afterward.
func NewMutator(ctx context.Context, t *Tree, queueDepth int) *Mutator {
	m := &Mutator{tree: t, reqs: make(chan request, queueDepth)}
	go m.run(ctx)
	return m
}

func (m *Mutator) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-m.reqs:
			// A panic inside fn is recovered, logged and returned to the
			// caller as an error, so the owning goroutine keeps running.
			req.reply <- func() (res result) {
				defer func() {
					if r := recover(); r != nil {
						log.Errorf("tree: mutator recovered from panic: %v", r)
						res = result{err: fmt.Errorf("tree: mutator panic: %v", r)}
					}
				}()
				val, err := req.fn(m.tree)
				return result{val: val, err: err}
			}()
		}
	}
}

// do submits fn to the owning goroutine and blocks for its result. It is
// the only way outside code touches the wrapped Tree.
func (m *Mutator) do(ctx context.Context, fn func(*Tree) (any, error)) (any, error) {
	reply := make(chan result, 1)
	select {
	case m.reqs <- request{fn: fn, reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-reply:
		return r.val, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Mutator) SetAttribute(ctx context.Context, nodeID, attr string, value any, seq uint32) (ChangeDescriptor, error) {
	v, err := m.do(ctx, func(t *Tree) (any, error) { return t.SetAttribute(nodeID, attr, value, seq) })
	if err != nil {
		return ChangeDescriptor{}, err
	}
	return v.(ChangeDescriptor), nil
}

func (m *Mutator) AddChild(ctx context.Context, parentID string, position int, snapshot *Snapshot) (ChangeDescriptor, error) {
	v, err := m.do(ctx, func(t *Tree) (any, error) { return t.AddChild(parentID, position, snapshot) })
	if err != nil {
		return ChangeDescriptor{}, err
	}
	return v.(ChangeDescriptor), nil
}

// SetClipPresence wraps Tree.SetClipPresence on the owning goroutine.
func (m *Mutator) SetClipPresence(ctx context.Context, slotID string, present bool, clip *Snapshot, seq uint32) (ChangeDescriptor, error) {
	v, err := m.do(ctx, func(t *Tree) (any, error) { return t.SetClipPresence(slotID, present, clip, seq) })
	if err != nil {
		return ChangeDescriptor{}, err
	}
	return v.(ChangeDescriptor), nil
}

func (m *Mutator) RemoveChild(ctx context.Context, nodeID string) (ChangeDescriptor, error) {
	v, err := m.do(ctx, func(t *Tree) (any, error) { return t.RemoveChild(nodeID) })
	if err != nil {
		return ChangeDescriptor{}, err
	}
	return v.(ChangeDescriptor), nil
}

// View runs a read-only function against the tree on the owning goroutine,
// guaranteeing it observes a consistent snapshot of in-flight mutations.
func (m *Mutator) View(ctx context.Context, fn func(*Tree)) error {
	_, err := m.do(ctx, func(t *Tree) (any, error) { fn(t); return nil, nil })
	return err
}

// ReplaceWith reconciles the live tree to match other: diffFn computes the
// diff between the live tree and other (injected to avoid an import cycle
// between tree and diff), then every resulting change is applied
// atomically from the caller's perspective — no other command interleaves
// because the whole operation runs as one function on the owning
// goroutine.
func (m *Mutator) ReplaceWith(ctx context.Context, other *Tree, diffFn func(old, new *Tree) Batch) (Batch, error) {
	v, err := m.do(ctx, func(t *Tree) (any, error) {
		batch := diffFn(t, other)
		for _, c := range batch.Changes {
			if err := t.Apply(c); err != nil {
				return batch, err
			}
		}
		return batch, nil
	})
	if err != nil {
		if b, ok := v.(Batch); ok {
			return b, err
		}
		return Batch{}, err
	}
	return v.(Batch), nil
}
