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

// handleClipAdded covers the `/clip/added` event. Its argument schema
// isn't covered by the other narrower clip handlers (`/clip/name`,
// `/clip/muted`, `/clip/looping`), so this uses the full attribute set of
// the Clip node variant: track, scene, name, color, muted, looping,
// length, start, end, type.
func handleClipAdded(d *Dispatcher, ctx context.Context, ev ingress.Event) error {
	if !argsOK(ev.Args,
		wireformat.KindInt, wireformat.KindInt, wireformat.KindString, wireformat.KindInt,
	) || len(ev.Args) < 10 {
		return malformed(ev.Address, "i i s i T|F T|F f f f s")
	}
	trackIdx, sceneIdx := argInt(ev.Args, 0), argInt(ev.Args, 1)

	clip := &tree.Snapshot{
		NodeType: tree.NodeClip,
		ID:       tree.ClipID(trackIdx, sceneIdx),
		Attrs: tree.Attrs{
			"name":    argStr(ev.Args, 2),
			"color":   argInt(ev.Args, 3),
			"muted":   argBool(ev.Args, 4),
			"looping": argBool(ev.Args, 5),
			"length":  argFloat(ev.Args, 6),
			"start":   argFloat(ev.Args, 7),
			"end":     argFloat(ev.Args, 8),
			"type":    argStr(ev.Args, 9),
		},
	}

	cd, err := d.mut.SetClipPresence(ctx, tree.ClipSlotID(trackIdx, sceneIdx), true, clip, ev.Seq)
	if err != nil {
		return err
	}
	d.emitChange(cd)
	return nil
}

func handleClipDeleted(d *Dispatcher, ctx context.Context, ev ingress.Event) error {
	if !argsOK(ev.Args, wireformat.KindInt, wireformat.KindInt) {
		return malformed(ev.Address, "i i")
	}
	trackIdx, sceneIdx := argInt(ev.Args, 0), argInt(ev.Args, 1)
	cd, err := d.mut.SetClipPresence(ctx, tree.ClipSlotID(trackIdx, sceneIdx), false, nil, ev.Seq)
	if err != nil {
		return err
	}
	d.emitChange(cd)
	return nil
}
