// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package tree

// ChangeKind tags the shape of one ChangeDescriptor record.
type ChangeKind string

const (
	ChangeStateChanged ChangeKind = "state_changed"
	ChangeNodeAdded    ChangeKind = "node_added"
	ChangeNodeRemoved  ChangeKind = "node_removed"
)

// ChangeDescriptor is one record in a diff batch. Only the fields relevant
// to Kind are populated; a single tagged-record shape is used rather than
// three separate Go types since all three kinds flow through the same
// ordered list and dispatch/broadcast queues.
type ChangeDescriptor struct {
	Kind ChangeKind `json:"kind"`

	// state_changed
	NodeID    string `json:"node_id,omitempty"`
	Attribute string `json:"attribute,omitempty"`
	OldValue  any    `json:"old_value,omitempty"`
	NewValue  any    `json:"new_value,omitempty"`
	SeqNum    uint32 `json:"seq_num,omitempty"`

	// node_added
	ParentID string    `json:"parent_id,omitempty"`
	NodeType NodeType  `json:"node_type,omitempty"`
	Position int       `json:"position,omitempty"`
	Snapshot *Snapshot `json:"snapshot,omitempty"`
}

// Batch is the aggregate broadcast payload shape: the ordered Changes
// plus id buckets.
type Batch struct {
	Changes  []ChangeDescriptor `json:"changes"`
	Added    []string           `json:"added"`
	Removed  []string           `json:"removed"`
	Modified []string           `json:"modified"`
}

// AppendChange folds one descriptor into a Batch's ordered list and its
// aggregate id buckets.
func (b *Batch) AppendChange(c ChangeDescriptor) {
	b.Changes = append(b.Changes, c)
	switch c.Kind {
	case ChangeNodeAdded:
		id := c.NodeID
		if id == "" && c.Snapshot != nil {
			id = c.Snapshot.ID
		}
		b.Added = append(b.Added, id)
	case ChangeNodeRemoved:
		b.Removed = append(b.Removed, c.NodeID)
	case ChangeStateChanged:
		b.Modified = append(b.Modified, c.NodeID)
	}
}

// Len reports the number of change records, used against
// config.SnapshotThreshold to decide FULL_AST vs DIFF_UPDATE.
func (b *Batch) Len() int { return len(b.Changes) }
