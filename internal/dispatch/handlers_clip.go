// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package dispatch

import (
	"context"

	"github.com/cckit/dawsync/internal/ingress"
	"github.com/cckit/dawsync/internal/tree"
	"github.com/cckit/dawsync/internal/wireformat"
)

// defaultClipSnapshot builds the Clip child created alongside a ClipSlot's
// has_clip=true transition. The wire registry's `/clip_slot/has_clip`
// entry only carries `i i T|F`, with no room for clip attributes, so a
// freshly created clip gets empty/default content here; a subsequent
// `/clip/name` (etc.) or a full `/clip/added` event fills it in.
func defaultClipSnapshot(trackIdx, sceneIdx int) *tree.Snapshot {
	return &tree.Snapshot{
		NodeType: tree.NodeClip,
		ID:       tree.ClipID(trackIdx, sceneIdx),
		Attrs: tree.Attrs{
			"name":    "",
			"color":   0,
			"muted":   false,
			"looping": false,
			"length":  0.0,
			"start":   0.0,
			"end":     0.0,
			"type":    string(tree.ClipAudio),
		},
	}
}

func handleClipSlotHasClip(d *Dispatcher, ctx context.Context, ev ingress.Event) error {
	if !argsOK(ev.Args, wireformat.KindInt, wireformat.KindInt) || len(ev.Args) < 3 {
		return malformed(ev.Address, "i i T|F")
	}
	trackIdx, sceneIdx, present := argInt(ev.Args, 0), argInt(ev.Args, 1), argBool(ev.Args, 2)

	var clip *tree.Snapshot
	if present {
		clip = defaultClipSnapshot(trackIdx, sceneIdx)
	}
	cd, err := d.mut.SetClipPresence(ctx, tree.ClipSlotID(trackIdx, sceneIdx), present, clip, ev.Seq)
	if err != nil {
		return err
	}
	d.emitChange(cd)
	return nil
}

func handleClipSlotHasStop(d *Dispatcher, ctx context.Context, ev ingress.Event) error {
	if !argsOK(ev.Args, wireformat.KindInt, wireformat.KindInt) || len(ev.Args) < 3 {
		return malformed(ev.Address, "i i T|F")
	}
	trackIdx, sceneIdx, val := argInt(ev.Args, 0), argInt(ev.Args, 1), argBool(ev.Args, 2)
	cd, err := d.mut.SetAttribute(ctx, tree.ClipSlotID(trackIdx, sceneIdx), "has_stop_button", val, ev.Seq)
	if err != nil {
		return err
	}
	d.emitChange(cd)
	return nil
}

func handleClipSlotPlayingStatus(d *Dispatcher, ctx context.Context, ev ingress.Event) error {
	if !argsOK(ev.Args, wireformat.KindInt, wireformat.KindInt, wireformat.KindInt) {
		return malformed(ev.Address, "i i i")
	}
	trackIdx, sceneIdx, status := argInt(ev.Args, 0), argInt(ev.Args, 1), argInt(ev.Args, 2)
	cd, err := d.mut.SetAttribute(ctx, tree.ClipSlotID(trackIdx, sceneIdx), "playing_status", status, ev.Seq)
	if err != nil {
		return err
	}
	d.emitChange(cd)
	return nil
}

func handleClipSlotColor(d *Dispatcher, ctx context.Context, ev ingress.Event) error {
	if !argsOK(ev.Args, wireformat.KindInt, wireformat.KindInt, wireformat.KindInt) {
		return malformed(ev.Address, "i i i")
	}
	trackIdx, sceneIdx, color := argInt(ev.Args, 0), argInt(ev.Args, 1), argInt(ev.Args, 2)
	cd, err := d.mut.SetAttribute(ctx, tree.ClipSlotID(trackIdx, sceneIdx), "color", color, ev.Seq)
	if err != nil {
		return err
	}
	d.emitChange(cd)
	return nil
}

func handleClipName(d *Dispatcher, ctx context.Context, ev ingress.Event) error {
	if !argsOK(ev.Args, wireformat.KindInt, wireformat.KindInt, wireformat.KindString) {
		return malformed(ev.Address, "i i s")
	}
	trackIdx, sceneIdx, name := argInt(ev.Args, 0), argInt(ev.Args, 1), argStr(ev.Args, 2)
	cd, err := d.mut.SetAttribute(ctx, tree.ClipID(trackIdx, sceneIdx), "name", name, ev.Seq)
	if err != nil {
		return err
	}
	d.emitChange(cd)
	return nil
}

func handleClipMuted(d *Dispatcher, ctx context.Context, ev ingress.Event) error {
	return setClipBoolAttr(d, ctx, ev, "muted")
}

func handleClipLooping(d *Dispatcher, ctx context.Context, ev ingress.Event) error {
	return setClipBoolAttr(d, ctx, ev, "looping")
}

func setClipBoolAttr(d *Dispatcher, ctx context.Context, ev ingress.Event, attr string) error {
	if !argsOK(ev.Args, wireformat.KindInt, wireformat.KindInt) || len(ev.Args) < 3 {
		return malformed(ev.Address, "i i T|F ("+attr+")")
	}
	trackIdx, sceneIdx, val := argInt(ev.Args, 0), argInt(ev.Args, 1), argBool(ev.Args, 2)
	cd, err := d.mut.SetAttribute(ctx, tree.ClipID(trackIdx, sceneIdx), attr, val, ev.Seq)
	if err != nil {
		return err
	}
	d.emitChange(cd)
	return nil
}

func handleClipColor(d *Dispatcher, ctx context.Context, ev ingress.Event) error {
	if !argsOK(ev.Args, wireformat.KindInt, wireformat.KindInt, wireformat.KindInt) {
		return malformed(ev.Address, "i i i")
	}
	trackIdx, sceneIdx, color := argInt(ev.Args, 0), argInt(ev.Args, 1), argInt(ev.Args, 2)
	cd, err := d.mut.SetAttribute(ctx, tree.ClipID(trackIdx, sceneIdx), "color", color, ev.Seq)
	if err != nil {
		return err
	}
	d.emitChange(cd)
	return nil
}

func handleClipTriggered(d *Dispatcher, ctx context.Context, ev ingress.Event) error {
	return emitClipTransient(d, ev, "clip_triggered")
}

func handleClipStopped(d *Dispatcher, ctx context.Context, ev ingress.Event) error {
	return emitClipTransient(d, ev, "clip_stopped")
}

func emitClipTransient(d *Dispatcher, ev ingress.Event, kind string) error {
	if !argsOK(ev.Args, wireformat.KindInt, wireformat.KindInt) {
		return malformed(ev.Address, "i i")
	}
	d.emitTransient(TransientTrigger{Kind: kind, TrackIndex: argInt(ev.Args, 0), SceneIndex: argInt(ev.Args, 1)}, ev.Seq)
	return nil
}
