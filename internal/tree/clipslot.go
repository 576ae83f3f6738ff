// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package tree

import "fmt"

// SetClipPresence implements the ClipSlot Empty/Stopped transitions:
// "Empty -> Stopped" on `has_clip=T` arrives together with the new Clip's
// snapshot, and "Stopped -> Empty" on `has_clip=F` removes it. The
// child-list change and the has_clip attribute flip land as one
// invariant-checked step with a single has_clip state_changed descriptor,
// so no caller ever observes the slot with has_clip and its Clip child
// disagreeing.
func (t *Tree) SetClipPresence(slotID string, present bool, clip *Snapshot, seq uint32) (ChangeDescriptor, error) {
	slot, ok := t.index[slotID]
	if !ok {
		return ChangeDescriptor{}, fmt.Errorf("%w: %s", ErrNotFound, slotID)
	}
	if slot.Type != NodeClipSlot {
		return ChangeDescriptor{}, fmt.Errorf("%w: %s is not a clip_slot", ErrTypeMismatch, slotID)
	}

	old, _ := slot.Attrs["has_clip"].(bool)
	if old == present {
		return ChangeDescriptor{}, fmt.Errorf("%w: clip_slot %s already has_clip=%v", ErrInvariantViolation, slotID, present)
	}

	if present {
		return t.addClipToSlot(slot, clip, seq)
	}
	return t.removeClipFromSlot(slot, seq)
}

func (t *Tree) addClipToSlot(slot *Node, clip *Snapshot, seq uint32) (ChangeDescriptor, error) {
	if clip == nil {
		return ChangeDescriptor{}, fmt.Errorf("%w: has_clip=true requires a clip snapshot", ErrInvariantViolation)
	}
	if _, exists := t.index[clip.ID]; exists {
		return ChangeDescriptor{}, fmt.Errorf("%w: %s", ErrDuplicateID, clip.ID)
	}

	child := fromSnapshot(clip)
	child.parent = slot
	slot.Children = append(slot.Children, child)
	slot.Attrs = slot.Attrs.clone()
	slot.Attrs["has_clip"] = true
	t.reindex(child)
	propagateHash(slot)

	if err := checkInvariants(slot); err != nil {
		slot.Children = slot.Children[:len(slot.Children)-1]
		slot.Attrs["has_clip"] = false
		t.deindex(child)
		propagateHash(slot)
		return ChangeDescriptor{}, err
	}

	return ChangeDescriptor{
		Kind:      ChangeStateChanged,
		NodeID:    slot.ID,
		Attribute: "has_clip",
		OldValue:  false,
		NewValue:  true,
		SeqNum:    seq,
	}, nil
}

func (t *Tree) removeClipFromSlot(slot *Node, seq uint32) (ChangeDescriptor, error) {
	idx := -1
	for i, c := range slot.Children {
		if c.Type == NodeClip {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ChangeDescriptor{}, fmt.Errorf("%w: clip_slot %s has no clip child", ErrInvariantViolation, slot.ID)
	}

	removed := slot.Children[idx]
	slot.Children = append(slot.Children[:idx], slot.Children[idx+1:]...)
	slot.Attrs = slot.Attrs.clone()
	slot.Attrs["has_clip"] = false
	t.deindex(removed)
	propagateHash(slot)

	if err := checkInvariants(slot); err != nil {
		// Put the clip back; this path only fires if playing_status was
		// left at a value that now violates "playing implies has_clip".
		slot.Children = append(slot.Children, nil)
		copy(slot.Children[idx+1:], slot.Children[idx:])
		slot.Children[idx] = removed
		slot.Attrs["has_clip"] = true
		t.reindex(removed)
		propagateHash(slot)
		return ChangeDescriptor{}, err
	}

	return ChangeDescriptor{
		Kind:      ChangeStateChanged,
		NodeID:    slot.ID,
		Attribute: "has_clip",
		OldValue:  true,
		NewValue:  false,
		SeqNum:    seq,
	}, nil
}
