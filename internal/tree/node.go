// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package tree implements the live project tree: a rooted ordered tree of
// typed nodes with stable identifiers and incremental content hashes,
// mutated exclusively through a single owning actor (see mutator.go).
package tree

import (
	"encoding/json"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// NodeType discriminates the fixed variant set of tree nodes.
type NodeType string

const (
	NodeProject   NodeType = "project"
	NodeTrack     NodeType = "track"
	NodeClipSlot  NodeType = "clip_slot"
	NodeClip      NodeType = "clip"
	NodeDevice    NodeType = "device"
	NodeParameter NodeType = "parameter"
	NodeScene     NodeType = "scene"
	NodeMixer     NodeType = "mixer"
	NodeFileRef   NodeType = "file_ref"
)

type TrackKind string

const (
	TrackAudio  TrackKind = "audio"
	TrackMIDI   TrackKind = "midi"
	TrackReturn TrackKind = "return"
	TrackMaster TrackKind = "master"
)

type DeviceKind string

const (
	DeviceInstrument  DeviceKind = "instrument"
	DeviceAudioEffect DeviceKind = "audio_effect"
	DeviceMIDIEffect  DeviceKind = "midi_effect"
)

type ClipType string

const (
	ClipAudio ClipType = "audio"
	ClipMIDI  ClipType = "midi"
)

// PlayingStatus is the ClipSlot.playing_status enum.
type PlayingStatus int

const (
	PlayingStopped   PlayingStatus = 0
	PlayingPlaying   PlayingStatus = 1
	PlayingTriggered PlayingStatus = 2
)

// Attrs is the attribute tuple for a node. Keys are the wire/JSON attribute
// names (e.g. "name", "volume", "playing_status"). Using a map rather
// than one struct per variant keeps SetAttribute generic across all node
// kinds; callers that need a typed value use a type assertion on the
// entry.
type Attrs map[string]any

func (a Attrs) clone() Attrs {
	out := make(Attrs, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// canonicalBytes serializes the attribute tuple deterministically;
// encoding/json sorts map keys, which is sufficient here.
func (a Attrs) canonicalBytes() []byte {
	b, err := json.Marshal(map[string]any(a))
	if err != nil {
		// Attrs only ever holds JSON-marshalable scalars assembled by this
		// package; a marshal failure means a caller smuggled in something
		// it shouldn't have.
		panic(fmt.Sprintf("tree: attrs not marshalable: %v", err))
	}
	return b
}

// Node is one element of the project tree. Children is nil for leaves.
// parent is used only for hash propagation and is never serialized or
// exposed outside the package.
type Node struct {
	ID       string
	Type     NodeType
	Attrs    Attrs
	Children []*Node
	Hash     uint64

	parent *Node
}

// Snapshot is the externally-visible, parent-free view of a node used in
// node_added descriptors and FULL_AST payloads.
type Snapshot struct {
	NodeType NodeType    `json:"node_type"`
	ID       string      `json:"id"`
	Attrs    Attrs       `json:"attributes"`
	Hash     string      `json:"hash"`
	Children []*Snapshot `json:"children"`
}

// ToSnapshot recursively copies a node (and its subtree) into its wire form.
func (n *Node) ToSnapshot() *Snapshot {
	if n == nil {
		return nil
	}
	s := &Snapshot{
		NodeType: n.Type,
		ID:       n.ID,
		Attrs:    n.Attrs.clone(),
		Hash:     fmt.Sprintf("%016x", n.Hash),
	}
	for _, c := range n.Children {
		s.Children = append(s.Children, c.ToSnapshot())
	}
	return s
}

// fromSnapshot rebuilds a detached subtree (parent pointers unset) from a
// Snapshot, used by add_child and by the document parser.
func fromSnapshot(s *Snapshot) *Node {
	if s == nil {
		return nil
	}
	n := &Node{
		ID:    s.ID,
		Type:  s.NodeType,
		Attrs: s.Attrs.clone(),
	}
	for _, c := range s.Children {
		child := fromSnapshot(c)
		child.parent = n
		n.Children = append(n.Children, child)
	}
	n.recomputeHash()
	return n
}

// recomputeHash sets N.hash = H(N.attrs ‖ concat(child.hash for child in
// N.children)). It touches only this node; propagation to ancestors is
// the caller's job (see propagateHash).
func (n *Node) recomputeHash() {
	h := xxhash.New()
	h.Write(n.Attrs.canonicalBytes())
	for _, c := range n.Children {
		var buf [8]byte
		putUint64(buf[:], c.Hash)
		h.Write(buf[:])
	}
	n.Hash = h.Sum64()
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (56 - 8*i))
	}
}

// propagateHash recomputes n's hash and walks up the parent chain
// recomputing every ancestor's hash. Recomputation is incremental: it
// propagates upward along the parent chain only.
func propagateHash(n *Node) {
	for cur := n; cur != nil; cur = cur.parent {
		cur.recomputeHash()
	}
}

// childIndex returns the position of child c within n.Children, or -1.
func (n *Node) childIndex(id string) int {
	for i, c := range n.Children {
		if c.ID == id {
			return i
		}
	}
	return -1
}
