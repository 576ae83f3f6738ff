// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package docparser implements the Document Parser: reads a project
// document from disk and materializes a full tree.Tree. The source
// format is gzip-compressed XML.
package docparser

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/cckit/dawsync/internal/tree"
	"github.com/cckit/dawsync/internal/util"
	"github.com/cckit/dawsync/pkg/log"
)

// Failure modes the parser can report.
var (
	ErrNotFound           = errors.New("docparser: document not found")
	ErrMalformed          = errors.New("docparser: malformed document")
	ErrUnsupportedVersion = errors.New("docparser: unsupported document version")
)

const supportedVersion = "1"

var (
	trackKinds = []string{
		string(tree.TrackAudio), string(tree.TrackMIDI),
		string(tree.TrackReturn), string(tree.TrackMaster),
	}
	deviceKinds = []string{
		string(tree.DeviceInstrument), string(tree.DeviceAudioEffect), string(tree.DeviceMIDIEffect),
	}
)

type xmlProject struct {
	XMLName       xml.Name     `xml:"project"`
	Version       string       `xml:"version,attr"`
	DocumentPath  string       `xml:"documentPath,attr"`
	Tempo         float64      `xml:"tempo,attr"`
	TimeSignature string       `xml:"timeSignature,attr"`
	IsPlaying     bool         `xml:"isPlaying,attr"`
	Tracks        []xmlTrack   `xml:"tracks>track"`
	Scenes        []xmlScene   `xml:"scenes>scene"`
	FileRefs      []xmlFileRef `xml:"fileRefs>fileRef"`
}

type xmlTrack struct {
	Index     int           `xml:"index,attr"`
	Kind      string        `xml:"kind,attr"`
	Name      string        `xml:"name,attr"`
	Color     int           `xml:"color,attr"`
	Muted     bool          `xml:"muted,attr"`
	Armed     bool          `xml:"armed,attr"`
	Volume    float64       `xml:"volume,attr"`
	Pan       float64       `xml:"pan,attr"`
	ClipSlots []xmlClipSlot `xml:"clipSlots>clipSlot"`
	Devices   []xmlDevice   `xml:"devices>device"`
	Mixer     xmlMixer      `xml:"mixer"`
}

type xmlClipSlot struct {
	SceneIndex    int      `xml:"sceneIndex,attr"`
	HasStopButton bool     `xml:"hasStopButton,attr"`
	PlayingStatus int      `xml:"playingStatus,attr"`
	Color         int      `xml:"color,attr"`
	Clip          *xmlClip `xml:"clip"`
}

type xmlClip struct {
	Name    string  `xml:"name,attr"`
	Color   int     `xml:"color,attr"`
	Muted   bool    `xml:"muted,attr"`
	Looping bool    `xml:"looping,attr"`
	Length  float64 `xml:"length,attr"`
	Start   float64 `xml:"start,attr"`
	End     float64 `xml:"end,attr"`
	Type    string  `xml:"type,attr"`
}

type xmlDevice struct {
	Index      int            `xml:"index,attr"`
	Name       string         `xml:"name,attr"`
	Kind       string         `xml:"kind,attr"`
	Parameters []xmlParameter `xml:"parameters>parameter"`
}

type xmlParameter struct {
	Index       int     `xml:"index,attr"`
	Name        string  `xml:"name,attr"`
	Value       float64 `xml:"value,attr"`
	Min         float64 `xml:"min,attr"`
	Max         float64 `xml:"max,attr"`
	IsAutomated bool    `xml:"isAutomated,attr"`
}

type xmlMixer struct {
	Volume           float64 `xml:"volume,attr"`
	Pan              float64 `xml:"pan,attr"`
	Sends            string  `xml:"sends,attr"`
	CrossfaderAssign string  `xml:"crossfaderAssign,attr"`
}

type xmlScene struct {
	Index int      `xml:"index,attr"`
	Name  string   `xml:"name,attr"`
	Tempo *float64 `xml:"tempo,attr"`
	Color int      `xml:"color,attr"`
}

type xmlFileRef struct {
	Path string `xml:"path,attr"`
	Kind string `xml:"kind,attr"`
}

// Parser reads project documents and caches the parsed root snapshots
// keyed by the document's content hash, so repeated reconciliation
// triggers against an unchanged file skip re-parsing entirely. Only the
// immutable Snapshot form is cached; every Parse call materializes a
// fresh tree.Tree from it, because callers mutate the returned tree in
// place and reconciliation against an unchanged file must diff the live
// tree against what the document says, not against itself.
type Parser struct {
	cache *lru.Cache[string, *tree.Snapshot]
}

// NewParser builds a Parser with an LRU cache holding up to capacity
// recently parsed root snapshots.
func NewParser(capacity int) *Parser {
	c, err := lru.New[string, *tree.Snapshot](capacity)
	if err != nil {
		// Only returns an error for capacity <= 0, which is a caller bug.
		panic(fmt.Sprintf("docparser: %v", err))
	}
	return &Parser{cache: c}
}

// Parse reads the project document at path and returns a freshly
// materialized tree.Tree. A cache hit on the document's content hash
// skips re-parsing; the tree itself is always new.
func (p *Parser) Parse(path string) (*tree.Tree, error) {
	raw, err := util.ReadMaybeGzip(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	sum := sha256.Sum256(raw)
	key := hex.EncodeToString(sum[:])
	if root, ok := p.cache.Get(key); ok {
		return tree.CreateFromParse(root), nil
	}

	root, err := parseBytes(raw, filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	p.cache.Add(key, root)
	return tree.CreateFromParse(root), nil
}

func parseBytes(raw []byte, baseDir string) (*tree.Snapshot, error) {
	var doc xmlProject
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	version := doc.Version
	if version == "" {
		version = supportedVersion
	}
	if version != supportedVersion {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedVersion, version)
	}

	root := &tree.Snapshot{
		NodeType: tree.NodeProject,
		ID:       tree.ProjectID(),
		Attrs: tree.Attrs{
			"document_path":  doc.DocumentPath,
			"tempo":          doc.Tempo,
			"time_signature": doc.TimeSignature,
			"is_playing":     doc.IsPlaying,
		},
	}

	sceneCount := len(doc.Scenes)

	for _, t := range doc.Tracks {
		if !util.Contains(trackKinds, t.Kind) {
			return nil, fmt.Errorf("%w: track %d has unknown kind %q", ErrMalformed, t.Index, t.Kind)
		}
		for _, d := range t.Devices {
			if !util.Contains(deviceKinds, d.Kind) {
				return nil, fmt.Errorf("%w: device %d/%d has unknown kind %q", ErrMalformed, t.Index, d.Index, d.Kind)
			}
		}
		root.Children = append(root.Children, buildTrack(t, sceneCount))
	}
	for _, s := range doc.Scenes {
		root.Children = append(root.Children, buildScene(s))
	}
	for _, f := range doc.FileRefs {
		root.Children = append(root.Children, buildFileRef(f, baseDir))
	}

	return root, nil
}

func buildTrack(t xmlTrack, sceneCount int) *tree.Snapshot {
	attrs := tree.Attrs{
		"index":  t.Index,
		"kind":   t.Kind,
		"name":   t.Name,
		"color":  t.Color,
		"muted":  t.Muted,
		"volume": t.Volume,
		"pan":    t.Pan,
	}
	if t.Kind != string(tree.TrackMaster) {
		attrs["armed"] = t.Armed
	}

	n := &tree.Snapshot{
		NodeType: tree.NodeTrack,
		ID:       tree.TrackID(t.Index),
		Attrs:    attrs,
	}

	bySceneIdx := make(map[int]xmlClipSlot, len(t.ClipSlots))
	for _, cs := range t.ClipSlots {
		bySceneIdx[cs.SceneIndex] = cs
	}
	for s := 0; s < sceneCount; s++ {
		cs, ok := bySceneIdx[s]
		if !ok {
			cs = xmlClipSlot{SceneIndex: s}
		}
		n.Children = append(n.Children, buildClipSlot(t.Index, cs))
	}

	for _, d := range t.Devices {
		n.Children = append(n.Children, buildDevice(t.Index, d))
	}

	n.Children = append(n.Children, buildMixer(t.Index, t.Mixer))
	return n
}

func buildClipSlot(trackIdx int, cs xmlClipSlot) *tree.Snapshot {
	n := &tree.Snapshot{
		NodeType: tree.NodeClipSlot,
		ID:       tree.ClipSlotID(trackIdx, cs.SceneIndex),
		Attrs: tree.Attrs{
			"track_index":     trackIdx,
			"scene_index":     cs.SceneIndex,
			"has_clip":        cs.Clip != nil,
			"has_stop_button": cs.HasStopButton,
			"playing_status":  cs.PlayingStatus,
			"color":           cs.Color,
		},
	}
	if cs.Clip != nil {
		n.Children = append(n.Children, buildClip(trackIdx, cs.SceneIndex, *cs.Clip))
	}
	return n
}

func buildClip(trackIdx, sceneIdx int, c xmlClip) *tree.Snapshot {
	return &tree.Snapshot{
		NodeType: tree.NodeClip,
		ID:       tree.ClipID(trackIdx, sceneIdx),
		Attrs: tree.Attrs{
			"name":    c.Name,
			"color":   c.Color,
			"muted":   c.Muted,
			"looping": c.Looping,
			"length":  c.Length,
			"start":   c.Start,
			"end":     c.End,
			"type":    c.Type,
		},
	}
}

func buildDevice(trackIdx int, d xmlDevice) *tree.Snapshot {
	n := &tree.Snapshot{
		NodeType: tree.NodeDevice,
		ID:       tree.DeviceID(trackIdx, d.Index),
		Attrs: tree.Attrs{
			"track_index":  trackIdx,
			"device_index": d.Index,
			"name":         d.Name,
			"kind":         d.Kind,
		},
	}
	for _, p := range d.Parameters {
		n.Children = append(n.Children, buildParameter(trackIdx, d.Index, p))
	}
	return n
}

func buildParameter(trackIdx, deviceIdx int, p xmlParameter) *tree.Snapshot {
	return &tree.Snapshot{
		NodeType: tree.NodeParameter,
		ID:       tree.ParamID(trackIdx, deviceIdx, p.Index),
		Attrs: tree.Attrs{
			"index":        p.Index,
			"name":         p.Name,
			"value":        p.Value,
			"min":          p.Min,
			"max":          p.Max,
			"is_automated": p.IsAutomated,
		},
	}
}

func buildMixer(trackIdx int, m xmlMixer) *tree.Snapshot {
	return &tree.Snapshot{
		NodeType: tree.NodeMixer,
		ID:       tree.MixerID(trackIdx),
		Attrs: tree.Attrs{
			"volume":            m.Volume,
			"pan":               m.Pan,
			"sends":             parseSends(m.Sends),
			"crossfader_assign": m.CrossfaderAssign,
		},
	}
}

// parseSends turns the document's comma-separated sends attribute into
// the per-return-track send level list the Mixer node carries.
func parseSends(s string) []float64 {
	out := []float64{}
	if s == "" {
		return out
	}
	for _, part := range strings.Split(s, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			log.Warnf("docparser: unparsable send level %q, using 0", part)
			v = 0
		}
		out = append(out, v)
	}
	return out
}

func buildScene(s xmlScene) *tree.Snapshot {
	attrs := tree.Attrs{
		"index": s.Index,
		"name":  s.Name,
		"color": s.Color,
	}
	if s.Tempo != nil {
		attrs["tempo"] = *s.Tempo
	}
	return &tree.Snapshot{
		NodeType: tree.NodeScene,
		ID:       tree.SceneID(s.Index),
		Attrs:    attrs,
	}
}

// buildFileRef computes the content SHA of the referenced file relative to
// baseDir. A referenced file that can't be read yields an empty
// content_sha rather than failing the whole document parse; missing
// media shouldn't block the rest of the project tree from loading.
func buildFileRef(f xmlFileRef, baseDir string) *tree.Snapshot {
	sha := ""
	target := f.Path
	if !filepath.IsAbs(target) {
		target = filepath.Join(baseDir, target)
	}
	if data, err := os.ReadFile(target); err == nil {
		sum := sha256.Sum256(data)
		sha = hex.EncodeToString(sum[:])
	} else {
		log.Warnf("docparser: file_ref %q unreadable, content_sha left empty: %v", f.Path, err)
	}

	return &tree.Snapshot{
		NodeType: tree.NodeFileRef,
		ID:       tree.FileRefID(f.Path),
		Attrs: tree.Attrs{
			"path":        f.Path,
			"kind":        f.Kind,
			"content_sha": sha,
		},
	}
}
