// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package tree

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("tree: node not found")
	ErrTypeMismatch       = errors.New("tree: attribute type mismatch")
	ErrInvariantViolation = errors.New("tree: invariant violation")
	ErrDuplicateID        = errors.New("tree: duplicate node id")
)

// Tree is a rooted ordered tree with an O(1) identifier index.
//
// A Tree is not safe for concurrent mutation from multiple goroutines; the
// single-executor ownership model is provided by Mutator (mutator.go),
// which wraps exactly one Tree.
type Tree struct {
	root  *Node
	index map[string]*Node
}

// New builds an (invalid, rootless) Tree. Use CreateFromParse in the common
// case of installing a freshly parsed document.
func New() *Tree {
	return &Tree{index: make(map[string]*Node)}
}

// CreateFromParse installs root as the tree's root exactly once: the root
// is created once by the initial document parse, then mutated in place
// thereafter.
func CreateFromParse(root *Snapshot) *Tree {
	t := New()
	n := fromSnapshot(root)
	t.root = n
	t.reindex(n)
	return t
}

func (t *Tree) Root() *Node { return t.root }

// Lookup is the O(1) identifier lookup.
func (t *Tree) Lookup(id string) (*Node, bool) {
	n, ok := t.index[id]
	return n, ok
}

func (t *Tree) reindex(n *Node) {
	t.index[n.ID] = n
	for _, c := range n.Children {
		t.reindex(c)
	}
}

func (t *Tree) deindex(n *Node) {
	delete(t.index, n.ID)
	for _, c := range n.Children {
		t.deindex(c)
	}
}

// SetAttribute updates the attribute, recomputes the node's hash,
// propagates upward, and returns the state_changed descriptor. seq is
// stamped onto the descriptor for clients that want to correlate it with
// the originating event.
func (t *Tree) SetAttribute(nodeID, attr string, value any, seq uint32) (ChangeDescriptor, error) {
	n, ok := t.index[nodeID]
	if !ok {
		return ChangeDescriptor{}, fmt.Errorf("%w: %s", ErrNotFound, nodeID)
	}

	old, existed := n.Attrs[attr]
	if existed && !sameKind(old, value) {
		return ChangeDescriptor{}, fmt.Errorf("%w: attribute %q on %s", ErrTypeMismatch, attr, nodeID)
	}

	n.Attrs = n.Attrs.clone()
	n.Attrs[attr] = value
	propagateHash(n)

	if err := checkInvariants(n); err != nil {
		// Roll back the offending attribute at the node level: an
		// invariant violation detected post-mutation rolls back just the
		// offending mutation.
		if existed {
			n.Attrs[attr] = old
		} else {
			delete(n.Attrs, attr)
		}
		propagateHash(n)
		return ChangeDescriptor{}, err
	}

	return ChangeDescriptor{
		Kind:      ChangeStateChanged,
		NodeID:    nodeID,
		Attribute: attr,
		OldValue:  old,
		NewValue:  value,
		SeqNum:    seq,
	}, nil
}

// sameKind is a light type-compatibility check for set_attribute: a
// mismatch returns type_mismatch rather than silently coercing.
func sameKind(a, b any) bool {
	switch a.(type) {
	case int, int64:
		switch b.(type) {
		case int, int64:
			return true
		}
		return false
	case float32, float64:
		switch b.(type) {
		case float32, float64, int, int64:
			return true
		}
		return false
	case bool:
		_, ok := b.(bool)
		return ok
	case string:
		_, ok := b.(string)
		return ok
	default:
		return true
	}
}

// AddChild inserts at position (appending if position == len), assigns
// the already-deterministic id carried by the snapshot, updates the
// index, and propagates hashes.
func (t *Tree) AddChild(parentID string, position int, snapshot *Snapshot) (ChangeDescriptor, error) {
	parent, ok := t.index[parentID]
	if !ok {
		return ChangeDescriptor{}, fmt.Errorf("%w: parent %s", ErrNotFound, parentID)
	}
	if _, exists := t.index[snapshot.ID]; exists {
		return ChangeDescriptor{}, fmt.Errorf("%w: %s", ErrDuplicateID, snapshot.ID)
	}

	child := fromSnapshot(snapshot)
	child.parent = parent

	if position < 0 || position > len(parent.Children) {
		position = len(parent.Children)
	}
	parent.Children = append(parent.Children, nil)
	copy(parent.Children[position+1:], parent.Children[position:])
	parent.Children[position] = child

	t.reindex(child)
	propagateHash(parent)

	if err := checkInvariants(parent); err != nil {
		parent.Children = append(parent.Children[:position], parent.Children[position+1:]...)
		t.deindex(child)
		propagateHash(parent)
		return ChangeDescriptor{}, err
	}

	return ChangeDescriptor{
		Kind:     ChangeNodeAdded,
		NodeID:   child.ID,
		ParentID: parentID,
		NodeType: child.Type,
		Position: position,
		Snapshot: child.ToSnapshot(),
	}, nil
}

// RemoveChild detaches the subtree rooted at nodeID, removes every id in
// it from the index, and propagates hashes up from the (former) parent.
func (t *Tree) RemoveChild(nodeID string) (ChangeDescriptor, error) {
	n, ok := t.index[nodeID]
	if !ok {
		return ChangeDescriptor{}, fmt.Errorf("%w: %s", ErrNotFound, nodeID)
	}
	if n.parent == nil {
		return ChangeDescriptor{}, fmt.Errorf("%w: cannot remove root", ErrInvariantViolation)
	}

	parent := n.parent
	idx := parent.childIndex(nodeID)
	parent.Children = append(parent.Children[:idx], parent.Children[idx+1:]...)
	t.deindex(n)
	propagateHash(parent)

	return ChangeDescriptor{
		Kind:   ChangeNodeRemoved,
		NodeID: nodeID,
	}, nil
}

// Apply replays a single previously-computed ChangeDescriptor against the
// tree. It is used by the diff engine's reconciliation path (diff.Diff
// produces descriptors against two independent trees; the mutator applies
// them one at a time to the live tree) and is intentionally more
// permissive than AddChild/SetAttribute about ordering assumptions, since
// callers are expected to apply removals, then additions, then state
// changes in that order.
func (t *Tree) Apply(c ChangeDescriptor) error {
	switch c.Kind {
	case ChangeNodeRemoved:
		_, err := t.RemoveChild(c.NodeID)
		return err
	case ChangeNodeAdded:
		_, err := t.AddChild(c.ParentID, c.Position, c.Snapshot)
		return err
	case ChangeStateChanged:
		_, err := t.SetAttribute(c.NodeID, c.Attribute, c.NewValue, c.SeqNum)
		return err
	default:
		return fmt.Errorf("tree: unknown change kind %q", c.Kind)
	}
}
