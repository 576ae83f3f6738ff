package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cckit/dawsync/internal/debounce"
	"github.com/cckit/dawsync/internal/ingress"
	"github.com/cckit/dawsync/internal/tree"
	"github.com/cckit/dawsync/internal/wireformat"
)

func testTrackSnapshot(idx int, name string) *tree.Snapshot {
	return &tree.Snapshot{
		NodeType: tree.NodeTrack,
		ID:       tree.TrackID(idx),
		Attrs: tree.Attrs{
			"index": idx, "kind": string(tree.TrackAudio), "name": name,
			"muted": false, "volume": 0.8, "pan": 0.0, "color": 0, "armed": false,
		},
	}
}

func testClipSlotSnapshot(trackIdx, sceneIdx int) *tree.Snapshot {
	return &tree.Snapshot{
		NodeType: tree.NodeClipSlot,
		ID:       tree.ClipSlotID(trackIdx, sceneIdx),
		Attrs: tree.Attrs{
			"track_index": trackIdx, "scene_index": sceneIdx,
			"has_clip": false, "has_stop_button": true, "playing_status": 0, "color": 0,
		},
	}
}

type harness struct {
	d       *Dispatcher
	mu      sync.Mutex
	outputs []Output
}

func (h *harness) collect(o Output) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.outputs = append(h.outputs, o)
}

func (h *harness) changes() []tree.ChangeDescriptor {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []tree.ChangeDescriptor
	for _, o := range h.outputs {
		if o.Kind == OutputChange {
			out = append(out, o.Change)
		}
	}
	return out
}

func newHarness(t *testing.T, track3Name string) (*harness, context.Context, *tree.Mutator) {
	t.Helper()
	root := &tree.Snapshot{
		NodeType: tree.NodeProject,
		ID:       tree.ProjectID(),
		Attrs:    tree.Attrs{"tempo": 120.0, "is_playing": false, "document_path": "", "time_signature": "4/4"},
		Children: []*tree.Snapshot{testTrackSnapshot(3, track3Name)},
	}
	tr := tree.CreateFromParse(root)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	mut := tree.NewMutator(ctx, tr, 16)

	h := &harness{}
	d := New(mut, debounce.New(), h.collect, nil, Config{
		VolumeDebounce: 30 * time.Millisecond,
		ParamDebounce:  30 * time.Millisecond,
		TempoDebounce:  30 * time.Millisecond,
	})
	h.d = d
	return h, ctx, mut
}

// S1: rename round-trip.
func TestDispatchTrackRenamed(t *testing.T) {
	h, ctx, mut := newHarness(t, "Audio")
	h.d.Dispatch(ctx, ingress.Event{
		Seq: 1, Address: "/track/renamed",
		Args: []wireformat.Arg{wireformat.Int(3), wireformat.Str("Bass")},
	})

	changes := h.changes()
	require.Len(t, changes, 1)
	require.Equal(t, tree.ChangeStateChanged, changes[0].Kind)
	require.Equal(t, "track_3", changes[0].NodeID)
	require.Equal(t, "name", changes[0].Attribute)
	require.Equal(t, "Audio", changes[0].OldValue)
	require.Equal(t, "Bass", changes[0].NewValue)

	var name string
	require.NoError(t, mut.View(ctx, func(tr *tree.Tree) {
		n, _ := tr.Lookup("track_3")
		name = n.Attrs["name"].(string)
	}))
	require.Equal(t, "Bass", name)
}

// S2: debounced continuous control collapses four rapid volume events into
// one broadcast carrying only the latest value.
func TestDispatchDebouncesVolume(t *testing.T) {
	h, ctx, _ := newHarness(t, "Audio")

	for i, v := range []float32{0.50, 0.55, 0.60, 0.65} {
		h.d.Dispatch(ctx, ingress.Event{
			Seq: uint32(i + 1), Address: "/track/volume",
			Args: []wireformat.Arg{wireformat.Int(3), wireformat.Float(v)},
		})
		time.Sleep(10 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		return len(h.changes()) == 1
	}, time.Second, 5*time.Millisecond)

	changes := h.changes()
	require.InDelta(t, 0.65, changes[0].NewValue.(float64), 1e-6)
}

// S4: ClipSlot state machine driven entirely through dispatcher addresses.
func TestDispatchClipSlotStateMachine(t *testing.T) {
	h, ctx, mut := newHarness(t, "Drums")
	require.NoError(t, func() error {
		_, err := mut.AddChild(ctx, tree.TrackID(3), 0, testClipSlotSnapshot(3, 0))
		return err
	}())

	h.d.Dispatch(ctx, ingress.Event{Seq: 1, Address: "/clip_slot/has_clip",
		Args: []wireformat.Arg{wireformat.Int(3), wireformat.Int(0), wireformat.Bool(true)}})
	h.d.Dispatch(ctx, ingress.Event{Seq: 2, Address: "/clip_slot/playing_status",
		Args: []wireformat.Arg{wireformat.Int(3), wireformat.Int(0), wireformat.Int(2)}})
	h.d.Dispatch(ctx, ingress.Event{Seq: 3, Address: "/clip_slot/playing_status",
		Args: []wireformat.Arg{wireformat.Int(3), wireformat.Int(0), wireformat.Int(1)}})
	h.d.Dispatch(ctx, ingress.Event{Seq: 4, Address: "/clip_slot/playing_status",
		Args: []wireformat.Arg{wireformat.Int(3), wireformat.Int(0), wireformat.Int(0)}})
	h.d.Dispatch(ctx, ingress.Event{Seq: 5, Address: "/clip_slot/has_clip",
		Args: []wireformat.Arg{wireformat.Int(3), wireformat.Int(0), wireformat.Bool(false)}})

	require.Len(t, h.changes(), 5)

	var slot *tree.Node
	require.NoError(t, mut.View(ctx, func(tr *tree.Tree) {
		slot, _ = tr.Lookup(tree.ClipSlotID(3, 0))
	}))
	require.Equal(t, false, slot.Attrs["has_clip"])
	require.Equal(t, 0, slot.Attrs["playing_status"])
}

// A device added to a track with ClipSlots must land after the ClipSlot
// block, keeping the ClipSlot…, Device…, Mixer child order intact.
func TestDispatchDeviceAddedLandsAfterClipSlots(t *testing.T) {
	h, ctx, mut := newHarness(t, "Audio")
	for s := 0; s < 2; s++ {
		_, err := mut.AddChild(ctx, tree.TrackID(3), s, testClipSlotSnapshot(3, s))
		require.NoError(t, err)
	}

	h.d.Dispatch(ctx, ingress.Event{Seq: 1, Address: "/device/added",
		Args: []wireformat.Arg{wireformat.Int(3), wireformat.Int(0), wireformat.Str("EQ Eight")}})

	changes := h.changes()
	require.Len(t, changes, 1)
	require.Equal(t, tree.ChangeNodeAdded, changes[0].Kind)
	require.Equal(t, 2, changes[0].Position)

	var order []tree.NodeType
	require.NoError(t, mut.View(ctx, func(tr *tree.Tree) {
		trk, _ := tr.Lookup(tree.TrackID(3))
		for _, c := range trk.Children {
			order = append(order, c.Type)
		}
	}))
	require.Equal(t, []tree.NodeType{tree.NodeClipSlot, tree.NodeClipSlot, tree.NodeDevice}, order)

	h.d.Dispatch(ctx, ingress.Event{Seq: 2, Address: "/device/deleted",
		Args: []wireformat.Arg{wireformat.Int(3), wireformat.Int(0)}})

	require.NoError(t, mut.View(ctx, func(tr *tree.Tree) {
		_, ok := tr.Lookup(tree.DeviceID(3, 0))
		require.False(t, ok)
	}))
}

// Device parameter changes are debounced like volume: rapid updates on
// one parameter coalesce to a single change carrying the latest value.
func TestDispatchDebouncesDeviceParam(t *testing.T) {
	h, ctx, mut := newHarness(t, "Audio")

	h.d.Dispatch(ctx, ingress.Event{Seq: 1, Address: "/device/added",
		Args: []wireformat.Arg{wireformat.Int(3), wireformat.Int(0), wireformat.Str("EQ Eight")}})
	_, err := mut.AddChild(ctx, tree.DeviceID(3, 0), 0, &tree.Snapshot{
		NodeType: tree.NodeParameter,
		ID:       tree.ParamID(3, 0, 0),
		Attrs:    tree.Attrs{"index": 0, "name": "Gain", "value": 0.5, "min": 0.0, "max": 1.0, "is_automated": false},
	})
	require.NoError(t, err)

	for i, v := range []float32{0.1, 0.2, 0.3} {
		h.d.Dispatch(ctx, ingress.Event{Seq: uint32(i + 2), Address: "/device/param",
			Args: []wireformat.Arg{wireformat.Int(3), wireformat.Int(0), wireformat.Int(0), wireformat.Float(v)}})
		time.Sleep(10 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		for _, c := range h.changes() {
			if c.Kind == tree.ChangeStateChanged && c.NodeID == tree.ParamID(3, 0, 0) {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	paramChanges := 0
	var last tree.ChangeDescriptor
	for _, c := range h.changes() {
		if c.Kind == tree.ChangeStateChanged && c.NodeID == tree.ParamID(3, 0, 0) {
			paramChanges++
			last = c
		}
	}
	require.Equal(t, 1, paramChanges)
	require.InDelta(t, 0.3, last.NewValue.(float64), 1e-6)
}

// Batch markers accumulate changes and flush once, on /batch/end.
func TestDispatchBatchAccumulatesUntilEnd(t *testing.T) {
	h, ctx, _ := newHarness(t, "Audio")

	h.d.Dispatch(ctx, ingress.Event{Seq: 1, Address: "/batch/start", Args: []wireformat.Arg{wireformat.Int(1)}})
	h.d.Dispatch(ctx, ingress.Event{Seq: 2, Address: "/track/mute",
		Args: []wireformat.Arg{wireformat.Int(3), wireformat.Bool(true)}})
	h.d.Dispatch(ctx, ingress.Event{Seq: 3, Address: "/track/color",
		Args: []wireformat.Arg{wireformat.Int(3), wireformat.Int(5)}})
	require.Empty(t, h.changes())

	h.d.Dispatch(ctx, ingress.Event{Seq: 4, Address: "/batch/end", Args: []wireformat.Arg{wireformat.Int(1)}})
	require.Len(t, h.changes(), 2)
}

// Unknown addresses are ignored rather than panicking.
func TestDispatchUnknownAddressIgnored(t *testing.T) {
	h, ctx, _ := newHarness(t, "Audio")
	h.d.Dispatch(ctx, ingress.Event{Seq: 1, Address: "/not/a/real/address"})
	require.Empty(t, h.changes())
}

// Two node_not_found errors within the window trigger reconciliation.
func TestDispatchNodeNotFoundBurstTriggersReconcile(t *testing.T) {
	root := &tree.Snapshot{NodeType: tree.NodeProject, ID: tree.ProjectID(), Attrs: tree.Attrs{"tempo": 120.0}}
	tr := tree.CreateFromParse(root)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	mut := tree.NewMutator(ctx, tr, 16)

	var reconciled int32
	var mu sync.Mutex
	d := New(mut, debounce.New(), func(Output) {}, func() {
		mu.Lock()
		reconciled++
		mu.Unlock()
	}, Config{ReconcileNodeErrorThreshold: 2, ReconcileNodeErrorWindow: time.Second})

	for i := 0; i < 2; i++ {
		d.Dispatch(ctx, ingress.Event{Seq: uint32(i + 1), Address: "/track/renamed",
			Args: []wireformat.Arg{wireformat.Int(99), wireformat.Str("X")}})
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, int32(1), reconciled)
}
