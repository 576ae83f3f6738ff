// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package dispatch

import (
	"context"
	"fmt"

	"github.com/cckit/dawsync/internal/ingress"
	"github.com/cckit/dawsync/internal/tree"
	"github.com/cckit/dawsync/internal/wireformat"
)

func handleTrackRenamed(d *Dispatcher, ctx context.Context, ev ingress.Event) error {
	if !argsOK(ev.Args, wireformat.KindInt, wireformat.KindString) {
		return malformed(ev.Address, "i s")
	}
	idx, name := argInt(ev.Args, 0), argStr(ev.Args, 1)
	cd, err := d.mut.SetAttribute(ctx, tree.TrackID(idx), "name", name, ev.Seq)
	if err != nil {
		return err
	}
	d.emitChange(cd)
	return nil
}

func handleTrackAdded(d *Dispatcher, ctx context.Context, ev ingress.Event) error {
	if !argsOK(ev.Args, wireformat.KindInt, wireformat.KindString, wireformat.KindString) {
		return malformed(ev.Address, "i s s")
	}
	idx, name, kind := argInt(ev.Args, 0), argStr(ev.Args, 1), argStr(ev.Args, 2)

	sceneCount := 0
	if err := d.mut.View(ctx, func(t *tree.Tree) {
		for _, c := range t.Root().Children {
			if c.Type == tree.NodeScene {
				sceneCount++
			}
		}
	}); err != nil {
		return err
	}

	attrs := tree.Attrs{
		"index":  idx,
		"kind":   kind,
		"name":   name,
		"color":  0,
		"muted":  false,
		"volume": 0.8,
		"pan":    0.0,
	}
	if kind != string(tree.TrackMaster) {
		attrs["armed"] = false
	}
	snap := &tree.Snapshot{NodeType: tree.NodeTrack, ID: tree.TrackID(idx), Attrs: attrs}

	for s := 0; s < sceneCount; s++ {
		snap.Children = append(snap.Children, &tree.Snapshot{
			NodeType: tree.NodeClipSlot,
			ID:       tree.ClipSlotID(idx, s),
			Attrs: tree.Attrs{
				"track_index":     idx,
				"scene_index":     s,
				"has_clip":        false,
				"has_stop_button": true,
				"playing_status":  int(tree.PlayingStopped),
				"color":           0,
			},
		})
	}
	snap.Children = append(snap.Children, &tree.Snapshot{
		NodeType: tree.NodeMixer,
		ID:       tree.MixerID(idx),
		Attrs: tree.Attrs{
			"volume":            0.8,
			"pan":               0.0,
			"sends":             []float64{},
			"crossfader_assign": "",
		},
	})

	cd, err := d.mut.AddChild(ctx, tree.ProjectID(), idx, snap)
	if err != nil {
		return err
	}
	d.emitChange(cd)
	return nil
}

func handleTrackDeleted(d *Dispatcher, ctx context.Context, ev ingress.Event) error {
	if !argsOK(ev.Args, wireformat.KindInt) {
		return malformed(ev.Address, "i")
	}
	idx := argInt(ev.Args, 0)
	cd, err := d.mut.RemoveChild(ctx, tree.TrackID(idx))
	if err != nil {
		return err
	}
	d.emitChange(cd)
	return nil
}

func handleTrackMute(d *Dispatcher, ctx context.Context, ev ingress.Event) error {
	return setTrackBoolAttr(d, ctx, ev, "muted")
}

func handleTrackArm(d *Dispatcher, ctx context.Context, ev ingress.Event) error {
	return setTrackBoolAttr(d, ctx, ev, "armed")
}

func setTrackBoolAttr(d *Dispatcher, ctx context.Context, ev ingress.Event, attr string) error {
	if len(ev.Args) < 2 || ev.Args[0].Kind != wireformat.KindInt {
		return malformed(ev.Address, fmt.Sprintf("i T|F (%s)", attr))
	}
	idx := argInt(ev.Args, 0)
	cd, err := d.mut.SetAttribute(ctx, tree.TrackID(idx), attr, argBool(ev.Args, 1), ev.Seq)
	if err != nil {
		return err
	}
	d.emitChange(cd)
	return nil
}

func handleTrackColor(d *Dispatcher, ctx context.Context, ev ingress.Event) error {
	if !argsOK(ev.Args, wireformat.KindInt, wireformat.KindInt) {
		return malformed(ev.Address, "i i")
	}
	idx, color := argInt(ev.Args, 0), argInt(ev.Args, 1)
	cd, err := d.mut.SetAttribute(ctx, tree.TrackID(idx), "color", color, ev.Seq)
	if err != nil {
		return err
	}
	d.emitChange(cd)
	return nil
}

func handleTrackVolume(d *Dispatcher, ctx context.Context, ev ingress.Event) error {
	if !argsOK(ev.Args, wireformat.KindInt, wireformat.KindFloat) {
		return malformed(ev.Address, "i f")
	}
	idx, vol := argInt(ev.Args, 0), argFloat(ev.Args, 1)
	key := fmt.Sprintf("volume:track=%d", idx)
	d.debouncer.Debounce(key, vol, d.cfg.VolumeDebounce, func(_ string, payload any) {
		cd, err := d.mut.SetAttribute(ctx, tree.TrackID(idx), "volume", payload.(float64), ev.Seq)
		if err != nil {
			d.classifyError(ev.Address, err)
			return
		}
		d.emitChange(cd)
	})
	return nil
}
