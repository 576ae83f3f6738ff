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

func handleDeviceAdded(d *Dispatcher, ctx context.Context, ev ingress.Event) error {
	if !argsOK(ev.Args, wireformat.KindInt, wireformat.KindInt, wireformat.KindString) {
		return malformed(ev.Address, "i i s")
	}
	trackIdx, devIdx, name := argInt(ev.Args, 0), argInt(ev.Args, 1), argStr(ev.Args, 2)

	// A Track's children are ordered ClipSlot…, Device…, Mixer; devIdx is
	// the device's position within the device block only, so offset by
	// the ClipSlot count to get the absolute insert position.
	slotCount := 0
	if err := d.mut.View(ctx, func(t *tree.Tree) {
		if track, ok := t.Lookup(tree.TrackID(trackIdx)); ok {
			for _, c := range track.Children {
				if c.Type == tree.NodeClipSlot {
					slotCount++
				}
			}
		}
	}); err != nil {
		return err
	}

	snap := &tree.Snapshot{
		NodeType: tree.NodeDevice,
		ID:       tree.DeviceID(trackIdx, devIdx),
		Attrs: tree.Attrs{
			"track_index":  trackIdx,
			"device_index": devIdx,
			"name":         name,
			"kind":         string(tree.DeviceAudioEffect),
		},
	}
	cd, err := d.mut.AddChild(ctx, tree.TrackID(trackIdx), slotCount+devIdx, snap)
	if err != nil {
		return err
	}
	d.emitChange(cd)
	return nil
}

func handleDeviceDeleted(d *Dispatcher, ctx context.Context, ev ingress.Event) error {
	if !argsOK(ev.Args, wireformat.KindInt, wireformat.KindInt) {
		return malformed(ev.Address, "i i")
	}
	trackIdx, devIdx := argInt(ev.Args, 0), argInt(ev.Args, 1)
	cd, err := d.mut.RemoveChild(ctx, tree.DeviceID(trackIdx, devIdx))
	if err != nil {
		return err
	}
	d.emitChange(cd)
	return nil
}

func handleDeviceParam(d *Dispatcher, ctx context.Context, ev ingress.Event) error {
	if !argsOK(ev.Args, wireformat.KindInt, wireformat.KindInt, wireformat.KindInt, wireformat.KindFloat) {
		return malformed(ev.Address, "i i i f")
	}
	trackIdx, devIdx, paramIdx, val := argInt(ev.Args, 0), argInt(ev.Args, 1), argInt(ev.Args, 2), argFloat(ev.Args, 3)
	key := fmt.Sprintf("device_param:track=%d,dev=%d,param=%d", trackIdx, devIdx, paramIdx)
	d.debouncer.Debounce(key, val, d.cfg.ParamDebounce, func(_ string, payload any) {
		cd, err := d.mut.SetAttribute(ctx, tree.ParamID(trackIdx, devIdx, paramIdx), "value", payload.(float64), ev.Seq)
		if err != nil {
			d.classifyError(ev.Address, err)
			return
		}
		d.emitChange(cd)
	})
	return nil
}
