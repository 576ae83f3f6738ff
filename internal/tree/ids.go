// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package tree

import "fmt"

// ID derivation rules for stable node identity: every identifier is
// deterministically reproducible from the node's structural position
// alone, never from an incrementing counter.

func ProjectID() string { return "project" }

func TrackID(trackIdx int) string { return fmt.Sprintf("track_%d", trackIdx) }

func ClipSlotID(trackIdx, sceneIdx int) string {
	return fmt.Sprintf("clip_slot_%d_%d", trackIdx, sceneIdx)
}

func ClipID(trackIdx, sceneIdx int) string {
	return fmt.Sprintf("clip_%d_%d", trackIdx, sceneIdx)
}

func DeviceID(trackIdx, deviceIdx int) string {
	return fmt.Sprintf("device_%d_%d", trackIdx, deviceIdx)
}

func ParamID(trackIdx, deviceIdx, paramIdx int) string {
	return fmt.Sprintf("param_%d_%d_%d", trackIdx, deviceIdx, paramIdx)
}

func SceneID(sceneIdx int) string { return fmt.Sprintf("scene_%d", sceneIdx) }

func MixerID(trackIdx int) string { return fmt.Sprintf("mixer_%d", trackIdx) }

func FileRefID(path string) string { return fmt.Sprintf("file_ref_%s", path) }
