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

func handleSceneRenamed(d *Dispatcher, ctx context.Context, ev ingress.Event) error {
	if !argsOK(ev.Args, wireformat.KindInt, wireformat.KindString) {
		return malformed(ev.Address, "i s")
	}
	idx, name := argInt(ev.Args, 0), argStr(ev.Args, 1)
	cd, err := d.mut.SetAttribute(ctx, tree.SceneID(idx), "name", name, ev.Seq)
	if err != nil {
		return err
	}
	d.emitChange(cd)
	return nil
}

func handleSceneTriggered(d *Dispatcher, ctx context.Context, ev ingress.Event) error {
	if !argsOK(ev.Args, wireformat.KindInt) {
		return malformed(ev.Address, "i")
	}
	d.emitTransient(TransientTrigger{Kind: "scene_triggered", SceneIndex: argInt(ev.Args, 0)}, ev.Seq)
	return nil
}

func handleTransportPlay(d *Dispatcher, ctx context.Context, ev ingress.Event) error {
	if len(ev.Args) < 1 {
		return malformed(ev.Address, "T|F")
	}
	cd, err := d.mut.SetAttribute(ctx, tree.ProjectID(), "is_playing", argBool(ev.Args, 0), ev.Seq)
	if err != nil {
		return err
	}
	d.emitChange(cd)
	return nil
}

func handleTransportTempo(d *Dispatcher, ctx context.Context, ev ingress.Event) error {
	if !argsOK(ev.Args, wireformat.KindFloat) {
		return malformed(ev.Address, "f")
	}
	tempo := argFloat(ev.Args, 0)
	d.debouncer.Debounce("tempo", tempo, d.cfg.TempoDebounce, func(_ string, payload any) {
		cd, err := d.mut.SetAttribute(ctx, tree.ProjectID(), "tempo", payload.(float64), ev.Seq)
		if err != nil {
			d.classifyError(ev.Address, err)
			return
		}
		d.emitChange(cd)
	})
	return nil
}

func handleCursorTrack(d *Dispatcher, ctx context.Context, ev ingress.Event) error {
	if !argsOK(ev.Args, wireformat.KindInt) {
		return malformed(ev.Address, "i [s i]")
	}
	sel := SelectionChange{Kind: "track", TrackIndex: argInt(ev.Args, 0)}
	if len(ev.Args) > 1 && ev.Args[1].Kind == wireformat.KindString {
		sel.Name, sel.HasName = argStr(ev.Args, 1), true
	}
	if len(ev.Args) > 2 && ev.Args[2].Kind == wireformat.KindInt {
		sel.Color, sel.HasColor = argInt(ev.Args, 2), true
	}
	d.emitSelection(sel, ev.Seq)
	return nil
}

func handleCursorClipSlot(d *Dispatcher, ctx context.Context, ev ingress.Event) error {
	if !argsOK(ev.Args, wireformat.KindInt, wireformat.KindInt) {
		return malformed(ev.Address, "i i")
	}
	d.emitSelection(SelectionChange{Kind: "clip_slot", TrackIndex: argInt(ev.Args, 0), SceneIndex: argInt(ev.Args, 1)}, ev.Seq)
	return nil
}

func handleCursorScene(d *Dispatcher, ctx context.Context, ev ingress.Event) error {
	if !argsOK(ev.Args, wireformat.KindInt) {
		return malformed(ev.Address, "i")
	}
	d.emitSelection(SelectionChange{Kind: "scene", SceneIndex: argInt(ev.Args, 0)}, ev.Seq)
	return nil
}

func handleBatchStart(d *Dispatcher, ctx context.Context, ev ingress.Event) error {
	d.StartBatch()
	return nil
}

func handleBatchEnd(d *Dispatcher, ctx context.Context, ev ingress.Event) error {
	d.EndBatch()
	return nil
}
