package docparser

import (
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cckit/dawsync/internal/tree"
)

const sampleDoc = `<?xml version="1.0"?>
<project version="1" documentPath="/tmp/song.dawproj" tempo="120" timeSignature="4/4" isPlaying="false">
  <tracks>
    <track index="0" kind="audio" name="Bass" color="1" muted="false" armed="true" volume="0.8" pan="0">
      <clipSlots>
        <clipSlot sceneIndex="0" hasStopButton="true" playingStatus="0" color="0">
          <clip name="Groove" color="2" muted="false" looping="true" length="4" start="0" end="4" type="audio"/>
        </clipSlot>
        <clipSlot sceneIndex="1" hasStopButton="true" playingStatus="0" color="0"/>
      </clipSlots>
      <devices>
        <device index="0" name="EQ Eight" kind="audio_effect">
          <parameters>
            <parameter index="0" name="Gain" value="0.5" min="0" max="1" isAutomated="false"/>
          </parameters>
        </device>
      </devices>
      <mixer volume="0.8" pan="0" sends="0,0" crossfaderAssign="A"/>
    </track>
  </tracks>
  <scenes>
    <scene index="0" name="Intro" color="3"/>
    <scene index="1" name="Verse" color="4"/>
  </scenes>
  <fileRefs>
    <fileRef path="samples/kick.wav" kind="audio"/>
  </fileRefs>
</project>`

func TestParseBuildsTreeWithDenseClipSlotGrid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "song.xml")
	require.NoError(t, os.WriteFile(path, []byte(sampleDoc), 0o644))

	p := NewParser(8)
	tr, err := p.Parse(path)
	require.NoError(t, err)

	root := tr.Root()
	require.Equal(t, tree.NodeProject, root.Type)

	slot0, ok := tr.Lookup(tree.ClipSlotID(0, 0))
	require.True(t, ok)
	require.Equal(t, true, slot0.Attrs["has_clip"])

	slot1, ok := tr.Lookup(tree.ClipSlotID(0, 1))
	require.True(t, ok)
	require.Equal(t, false, slot1.Attrs["has_clip"])

	clip, ok := tr.Lookup(tree.ClipID(0, 0))
	require.True(t, ok)
	require.Equal(t, "Groove", clip.Attrs["name"])

	fileRef, ok := tr.Lookup(tree.FileRefID("samples/kick.wav"))
	require.True(t, ok)
	require.Equal(t, "", fileRef.Attrs["content_sha"])
}

func TestParseComputesFileRefContentSHA(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "samples"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "samples", "kick.wav"), []byte("audio-bytes"), 0o644))

	path := filepath.Join(dir, "song.xml")
	require.NoError(t, os.WriteFile(path, []byte(sampleDoc), 0o644))

	p := NewParser(8)
	tr, err := p.Parse(path)
	require.NoError(t, err)

	fileRef, ok := tr.Lookup(tree.FileRefID("samples/kick.wav"))
	require.True(t, ok)
	require.NotEmpty(t, fileRef.Attrs["content_sha"])
}

func TestParseAcceptsGzippedDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "song.xml.gz")

	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	_, err := gw.Write([]byte(sampleDoc))
	require.NoError(t, err)
	require.NoError(t, gw.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	p := NewParser(8)
	tr, err := p.Parse(path)
	require.NoError(t, err)
	require.Equal(t, tree.NodeProject, tr.Root().Type)
}

func TestParseMissingDocumentIsNotFound(t *testing.T) {
	p := NewParser(8)
	_, err := p.Parse("/nonexistent/song.xml")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestParseMalformedXMLIsMalformed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "song.xml")
	require.NoError(t, os.WriteFile(path, []byte("<project><unterminated"), 0o644))

	p := NewParser(8)
	_, err := p.Parse(path)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestParseUnknownTrackKindIsMalformed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "song.xml")
	doc := `<project version="1" documentPath="x" tempo="120" timeSignature="4/4" isPlaying="false">
  <tracks><track index="0" kind="sampler" name="X" volume="0.8" pan="0"/></tracks>
</project>`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	p := NewParser(8)
	_, err := p.Parse(path)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestParseUnsupportedVersionRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "song.xml")
	doc := `<project version="99" documentPath="x" tempo="120" timeSignature="4/4" isPlaying="false"></project>`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	p := NewParser(8)
	_, err := p.Parse(path)
	require.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestParseCachesByContentHashButReturnsFreshTrees(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "song.xml")
	require.NoError(t, os.WriteFile(path, []byte(sampleDoc), 0o644))

	p := NewParser(8)
	first, err := p.Parse(path)
	require.NoError(t, err)
	second, err := p.Parse(path)
	require.NoError(t, err)

	// Cache hit: structurally identical, but never the same live tree —
	// callers mutate the returned tree in place, and a shared instance
	// would make reconciliation against an unchanged file diff the live
	// tree against itself.
	require.NotSame(t, first, second)
	require.Equal(t, first.Root().Hash, second.Root().Hash)

	_, err = first.SetAttribute(tree.TrackID(0), "name", "Mutated", 1)
	require.NoError(t, err)

	third, err := p.Parse(path)
	require.NoError(t, err)
	trk, ok := third.Lookup(tree.TrackID(0))
	require.True(t, ok)
	require.Equal(t, "Bass", trk.Attrs["name"])
}
