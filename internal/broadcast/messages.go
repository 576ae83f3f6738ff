// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package broadcast

import "github.com/cckit/dawsync/internal/tree"

// frameType is the `type` discriminant of every client-bound JSON frame.
type frameType string

const (
	frameFullAST    frameType = "FULL_AST"
	frameDiffUpdate frameType = "DIFF_UPDATE"
	frameLiveEvent  frameType = "live_event"
	frameError      frameType = "ERROR"
)

// frame is the envelope every outbound message shares; Payload holds one
// of fullASTPayload, diffUpdatePayload, liveEventPayload, errorPayload.
//
// raw, when set, is the frame's already-serialized JSON form (populated
// via internal/snapcache for FULL_AST frames, since the tree behind a
// snapshot doesn't change between a frame's construction and the moment
// each connected client drains it from its queue). writePump prefers raw
// over re-marshaling Payload per client.
type frame struct {
	Type    frameType `json:"type"`
	Payload any       `json:"payload"`
	raw     []byte    `json:"-"`
}

type fullASTPayload struct {
	AST         *tree.Snapshot `json:"ast"`
	ProjectPath *string        `json:"project_path"`
}

type diffUpdatePayload struct {
	Changes  []tree.ChangeDescriptor `json:"changes"`
	Added    []string                `json:"added"`
	Removed  []string                `json:"removed"`
	Modified []string                `json:"modified"`
}

// liveEventPayload carries the non-mutating selection/transient outputs
// the dispatcher produces: cursor/selection changes and momentary
// triggers never touch the tree, so they bypass the diff/snapshot
// machinery and go out as their own frame type instead.
type liveEventPayload struct {
	EventPath string `json:"event_path"`
	Args      any    `json:"args"`
	SeqNum    uint32 `json:"seq_num"`
	Timestamp int64  `json:"timestamp"`
}

type errorPayload struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
