// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package diff implements the structural comparison engine: given two
// project trees, produce an ordered list of additions, removals, and
// attribute changes that turns the old tree into the new one.
package diff

import (
	"reflect"

	"github.com/cckit/dawsync/internal/tree"
)

// Diff compares old and new and returns an ordered Batch: removals first,
// then additions in document order, then state_changed events in document
// order, so clients can apply the list in sequence without lookups
// against intermediate inconsistent states.
func Diff(old, new *tree.Tree) tree.Batch {
	var batch tree.Batch
	if old.Root() == nil || new.Root() == nil {
		return batch
	}
	if old.Root().Hash == new.Root().Hash {
		return batch
	}

	var removals, additions, modifications []tree.ChangeDescriptor
	walk(old.Root(), new.Root(), &removals, &additions, &modifications)

	for _, c := range removals {
		batch.AppendChange(c)
	}
	for _, c := range additions {
		batch.AppendChange(c)
	}
	for _, c := range modifications {
		batch.AppendChange(c)
	}
	return batch
}

// walk recurses over a matched pair of nodes (same id), comparing
// attributes and then children matched by id.
func walk(oldNode, newNode *tree.Node, removals, additions, modifications *[]tree.ChangeDescriptor) {
	if oldNode.Hash == newNode.Hash {
		return
	}

	for _, attr := range changedAttrs(oldNode.Attrs, newNode.Attrs) {
		*modifications = append(*modifications, tree.ChangeDescriptor{
			Kind:      tree.ChangeStateChanged,
			NodeID:    newNode.ID,
			Attribute: attr,
			OldValue:  oldNode.Attrs[attr],
			NewValue:  newNode.Attrs[attr],
		})
	}

	oldByID := childMap(oldNode)
	newByID := childMap(newNode)

	for _, oldChild := range oldNode.Children {
		if _, ok := newByID[oldChild.ID]; !ok {
			*removals = append(*removals, tree.ChangeDescriptor{
				Kind:   tree.ChangeNodeRemoved,
				NodeID: oldChild.ID,
			})
		}
	}

	for _, newChild := range newNode.Children {
		if oldChild, ok := oldByID[newChild.ID]; ok {
			walk(oldChild, newChild, removals, additions, modifications)
			continue
		}
		*additions = append(*additions, tree.ChangeDescriptor{
			Kind:     tree.ChangeNodeAdded,
			NodeID:   newChild.ID,
			ParentID: newNode.ID,
			NodeType: newChild.Type,
			Position: positionOf(newNode, newChild.ID),
			Snapshot: newChild.ToSnapshot(),
		})
	}
}

func positionOf(parent *tree.Node, childID string) int {
	for i, c := range parent.Children {
		if c.ID == childID {
			return i
		}
	}
	return len(parent.Children)
}

func childMap(n *tree.Node) map[string]*tree.Node {
	m := make(map[string]*tree.Node, len(n.Children))
	for _, c := range n.Children {
		m[c.ID] = c
	}
	return m
}

// changedAttrs returns the sorted set of attribute keys whose values
// differ between two attribute tuples (present-in-one-only counts as
// changed too, to cover parser-version drift).
func changedAttrs(a, b tree.Attrs) []string {
	var changed []string
	seen := make(map[string]bool)
	for k, av := range a {
		seen[k] = true
		bv, ok := b[k]
		if !ok || !reflect.DeepEqual(av, bv) {
			changed = append(changed, k)
		}
	}
	for k := range b {
		if !seen[k] {
			changed = append(changed, k)
		}
	}
	return sortedUnique(changed)
}

func sortedUnique(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	out := keys[:0]
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	sortStrings(out)
	return out
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
