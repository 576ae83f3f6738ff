// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package dispatch

import "github.com/cckit/dawsync/internal/tree"

// OutputKind discriminates the three shapes a handler can produce: a
// change descriptor (state_changed | node_added | node_removed) or a
// non-mutating event (selection_changed, transient_trigger).
type OutputKind int

const (
	OutputChange OutputKind = iota
	OutputSelection
	OutputTransient
)

// SelectionChange is a cursor event: it never mutates the tree, only the
// client-visible notion of "what's selected". The JSON form is what goes
// out inside a live_event frame's args.
type SelectionChange struct {
	Kind       string `json:"kind"` // "track" | "clip_slot" | "scene"
	TrackIndex int    `json:"track_index"`
	SceneIndex int    `json:"scene_index"`
	Name       string `json:"name,omitempty"`
	HasName    bool   `json:"-"`
	Color      int    `json:"color,omitempty"`
	HasColor   bool   `json:"-"`
}

// TransientTrigger is a momentary event with no persisted tree state of
// its own (clip/scene triggers).
type TransientTrigger struct {
	Kind       string `json:"kind"` // "clip_triggered" | "clip_stopped" | "scene_triggered"
	TrackIndex int    `json:"track_index"`
	SceneIndex int    `json:"scene_index"`
}

// Output is the tagged union the dispatcher hands to its Sink: exactly
// one of Change/Selection/Transient is meaningful, selected by Kind. Seq
// is the originating event's sequence number for the non-mutating kinds
// (change descriptors carry their own).
type Output struct {
	Kind      OutputKind
	Seq       uint32
	Change    tree.ChangeDescriptor
	Selection SelectionChange
	Transient TransientTrigger
}

// Sink consumes one dispatcher output; the broadcast hub (C10) is the
// production implementation.
type Sink func(Output)
