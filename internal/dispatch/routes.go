// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package dispatch

// routes is the static address -> handler table for the event registry.
var routes = map[string]handlerFunc{
	"/track/renamed": handleTrackRenamed,
	"/track/added":   handleTrackAdded,
	"/track/deleted": handleTrackDeleted,
	"/track/mute":    handleTrackMute,
	"/track/arm":     handleTrackArm,
	"/track/volume":  handleTrackVolume,
	"/track/color":   handleTrackColor,

	"/device/added":   handleDeviceAdded,
	"/device/deleted": handleDeviceDeleted,
	"/device/param":   handleDeviceParam,

	"/clip_slot/has_clip":       handleClipSlotHasClip,
	"/clip_slot/has_stop":       handleClipSlotHasStop,
	"/clip_slot/playing_status": handleClipSlotPlayingStatus,
	"/clip_slot/color":          handleClipSlotColor,

	"/clip/name":      handleClipName,
	"/clip/muted":     handleClipMuted,
	"/clip/looping":   handleClipLooping,
	"/clip/color":     handleClipColor,
	"/clip/triggered": handleClipTriggered,
	"/clip/stopped":   handleClipStopped,
	"/clip/added":     handleClipAdded,
	"/clip/deleted":   handleClipDeleted,

	"/scene/renamed":   handleSceneRenamed,
	"/scene/triggered": handleSceneTriggered,

	"/transport/play":  handleTransportPlay,
	"/transport/tempo": handleTransportTempo,

	"/cursor/track":     handleCursorTrack,
	"/cursor/clip_slot": handleCursorClipSlot,
	"/cursor/scene":     handleCursorScene,

	"/batch/start": handleBatchStart,
	"/batch/end":   handleBatchEnd,
}
