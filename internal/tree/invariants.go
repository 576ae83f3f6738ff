// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package tree

import "fmt"

// checkInvariants validates the subset of tree invariants that are
// checkable locally from a mutated node, without a full-tree walk:
//
//   - a ClipSlot has at most one Clip child; has_clip ⇔ Clip child exists
//   - playing_status ∈ {1,2} implies has_clip
//
// The "dense ClipSlot 0..S-1" and "single parent, no cycles" invariants are
// structural properties of how AddChild/RemoveChild are used by the
// document parser and dispatch handlers, not independently re-checked on
// every mutation: these are invariants the mutation API must not violate,
// not a general consistency checker that rejects sequences it hasn't seen
// before.
func checkInvariants(n *Node) error {
	if n.Type != NodeClipSlot {
		return nil
	}

	hasClip := false
	clipCount := 0
	for _, c := range n.Children {
		if c.Type == NodeClip {
			hasClip = true
			clipCount++
		}
	}
	if clipCount > 1 {
		return fmt.Errorf("%w: clip_slot %s has %d clip children", ErrInvariantViolation, n.ID, clipCount)
	}

	// Only the "claiming a clip that doesn't exist" direction is rejected
	// here. A Clip child added before its ClipSlot's has_clip flag catches
	// up (the two-step AddChild-then-SetAttribute sequence that
	// SetClipPresence collapses into one atomic step, but raw callers and
	// the document parser may still do it in two) is a legitimate
	// transient state, not a violation.
	declared, _ := n.Attrs["has_clip"].(bool)
	if declared && !hasClip {
		return fmt.Errorf("%w: clip_slot %s has_clip=true but no clip child present", ErrInvariantViolation, n.ID)
	}

	if status, ok := n.Attrs["playing_status"]; ok {
		ps := toInt(status)
		if (ps == int(PlayingPlaying) || ps == int(PlayingTriggered)) && !hasClip {
			return fmt.Errorf("%w: clip_slot %s playing_status=%d without a clip", ErrInvariantViolation, n.ID, ps)
		}
	}

	return nil
}

func toInt(v any) int {
	switch x := v.(type) {
	case int:
		return x
	case int64:
		return int(x)
	case float64:
		return int(x)
	case float32:
		return int(x)
	default:
		return -1
	}
}
