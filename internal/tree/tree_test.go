package tree

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trackSnapshot(idx int, name string) *Snapshot {
	return &Snapshot{
		NodeType: NodeTrack,
		ID:       TrackID(idx),
		Attrs: Attrs{
			"index":  idx,
			"kind":   string(TrackAudio),
			"name":   name,
			"muted":  false,
			"volume": 0.8,
		},
	}
}

func projectWithOneTrack() *Tree {
	root := &Snapshot{
		NodeType: NodeProject,
		ID:       ProjectID(),
		Attrs:    Attrs{"tempo": 120.0, "is_playing": false},
		Children: []*Snapshot{trackSnapshot(3, "Audio")},
	}
	return CreateFromParse(root)
}

// Rename round-trip.
func TestSetAttribute_RenameRoundTrip(t *testing.T) {
	tr := projectWithOneTrack()

	before, ok := tr.Lookup("track_3")
	require.True(t, ok)
	rootHashBefore := tr.Root().Hash

	change, err := tr.SetAttribute("track_3", "name", "Bass", 1)
	require.NoError(t, err)

	assert.Equal(t, ChangeStateChanged, change.Kind)
	assert.Equal(t, "track_3", change.NodeID)
	assert.Equal(t, "name", change.Attribute)
	assert.Equal(t, "Audio", change.OldValue)
	assert.Equal(t, "Bass", change.NewValue)

	assert.Equal(t, "Bass", before.Attrs["name"])
	assert.NotEqual(t, rootHashBefore, tr.Root().Hash)
}

func TestSetAttribute_NotFound(t *testing.T) {
	tr := projectWithOneTrack()
	_, err := tr.SetAttribute("track_99", "name", "X", 1)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSetAttribute_TypeMismatch(t *testing.T) {
	tr := projectWithOneTrack()
	_, err := tr.SetAttribute("track_3", "name", 42, 1)
	require.ErrorIs(t, err, ErrTypeMismatch)
}

func clipSlotSnapshot(trackIdx, sceneIdx int) *Snapshot {
	return &Snapshot{
		NodeType: NodeClipSlot,
		ID:       ClipSlotID(trackIdx, sceneIdx),
		Attrs: Attrs{
			"track_index":     trackIdx,
			"scene_index":     sceneIdx,
			"has_clip":        false,
			"has_stop_button": true,
			"playing_status":  0,
		},
	}
}

// ClipSlot state machine.
func TestClipSlotStateMachine(t *testing.T) {
	root := &Snapshot{
		NodeType: NodeProject,
		ID:       ProjectID(),
		Attrs:    Attrs{"tempo": 120.0},
	}
	tr := CreateFromParse(root)
	_, err := tr.AddChild(ProjectID(), 0, trackSnapshot(0, "Drums"))
	require.NoError(t, err)
	_, err = tr.AddChild(TrackID(0), 0, clipSlotSnapshot(0, 0))
	require.NoError(t, err)

	slot, ok := tr.Lookup("clip_slot_0_0")
	require.True(t, ok)
	assert.Equal(t, false, slot.Attrs["has_clip"])

	// Empty -> Stopped: has_clip becomes true with a clip child snapshot.
	clipSnap := &Snapshot{
		NodeType: NodeClip,
		ID:       ClipID(0, 0),
		Attrs:    Attrs{"name": "Loop", "muted": false, "looping": true, "length": 4.0, "start": 0.0, "end": 4.0, "type": string(ClipAudio), "color": 0},
	}
	_, err = tr.AddChild("clip_slot_0_0", 0, clipSnap)
	require.NoError(t, err)
	_, err = tr.SetAttribute("clip_slot_0_0", "has_clip", true, 2)
	require.NoError(t, err)

	// Stopped -> Triggered -> Playing -> Stopped.
	_, err = tr.SetAttribute("clip_slot_0_0", "playing_status", 2, 3)
	require.NoError(t, err)
	_, err = tr.SetAttribute("clip_slot_0_0", "playing_status", 1, 4)
	require.NoError(t, err)
	_, err = tr.SetAttribute("clip_slot_0_0", "playing_status", 0, 5)
	require.NoError(t, err)

	// Attempting Triggered/Playing without a clip is rejected.
	_, err = tr.RemoveChild(ClipID(0, 0))
	require.NoError(t, err)
	_, err = tr.SetAttribute("clip_slot_0_0", "has_clip", false, 6)
	require.NoError(t, err)
	_, err = tr.SetAttribute("clip_slot_0_0", "playing_status", 1, 7)
	require.ErrorIs(t, err, ErrInvariantViolation)
}

func TestAddRemoveChild_UpdatesIndexAndHash(t *testing.T) {
	tr := projectWithOneTrack()
	rootHash := tr.Root().Hash

	change, err := tr.AddChild(ProjectID(), 1, trackSnapshot(1, "Synth"))
	require.NoError(t, err)
	assert.Equal(t, ChangeNodeAdded, change.Kind)

	_, ok := tr.Lookup("track_1")
	require.True(t, ok)
	assert.NotEqual(t, rootHash, tr.Root().Hash)

	afterAddHash := tr.Root().Hash
	rc, err := tr.RemoveChild("track_1")
	require.NoError(t, err)
	assert.Equal(t, ChangeNodeRemoved, rc.Kind)
	_, ok = tr.Lookup("track_1")
	assert.False(t, ok)
	assert.NotEqual(t, afterAddHash, tr.Root().Hash)
}

// Incremental hash propagation must agree with a from-scratch rebuild
// after any sequence of mutations: the tree mutated in place and a fresh
// tree built from its snapshot hash identically.
func TestHash_IncrementalMatchesFullRebuild(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	root := &Snapshot{
		NodeType: NodeProject,
		ID:       ProjectID(),
		Attrs:    Attrs{"tempo": 120.0, "is_playing": false},
	}
	for i := 0; i < 4; i++ {
		root.Children = append(root.Children, trackSnapshot(i, "Track"))
	}
	tr := CreateFromParse(root)

	for step := 0; step < 200; step++ {
		idx := rng.Intn(4)
		switch rng.Intn(3) {
		case 0:
			_, err := tr.SetAttribute(TrackID(idx), "name", fmt.Sprintf("T%d", rng.Intn(1000)), uint32(step))
			require.NoError(t, err)
		case 1:
			_, err := tr.SetAttribute(TrackID(idx), "volume", rng.Float64(), uint32(step))
			require.NoError(t, err)
		case 2:
			_, err := tr.SetAttribute(TrackID(idx), "muted", rng.Intn(2) == 0, uint32(step))
			require.NoError(t, err)
		}

		rebuilt := CreateFromParse(tr.Root().ToSnapshot())
		require.Equal(t, tr.Root().Hash, rebuilt.Root().Hash, "step %d", step)
	}
}

func TestHash_DeepStructuralEquality(t *testing.T) {
	a := projectWithOneTrack()
	b := projectWithOneTrack()
	assert.Equal(t, a.Root().Hash, b.Root().Hash)

	_, err := b.SetAttribute("track_3", "volume", 0.9, 1)
	require.NoError(t, err)
	assert.NotEqual(t, a.Root().Hash, b.Root().Hash)
}
