// Copyright (C) 2023 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package util_test

import (
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/cckit/dawsync/internal/util"
)

func TestCheckFileExists(t *testing.T) {
	tmpdir := t.TempDir()
	if !util.CheckFileExists(tmpdir) {
		t.Fatal("expected true, got false")
	}

	filePath := filepath.Join(tmpdir, "song.xml")

	if err := os.WriteFile(filePath, []byte("<project/>"), 0666); err != nil {
		t.Fatal(err)
	}
	if !util.CheckFileExists(filePath) {
		t.Fatal("expected true, got false")
	}

	filePath = filepath.Join(tmpdir, "missing.xml")
	if util.CheckFileExists(filePath) {
		t.Fatal("expected false, got true")
	}
}

func TestGetFileSize(t *testing.T) {
	tmpdir := t.TempDir()
	filePath := filepath.Join(tmpdir, "song.xml")

	if s := util.GetFilesize(filePath); s > 0 {
		t.Fatalf("expected 0, got %d", s)
	}

	if err := os.WriteFile(filePath, []byte("<project/>"), 0666); err != nil {
		t.Fatal(err)
	}
	if s := util.GetFilesize(filePath); s == 0 {
		t.Fatal("expected not 0, got 0")
	}
}

func TestReadMaybeGzip(t *testing.T) {
	tmpdir := t.TempDir()

	plain := filepath.Join(tmpdir, "plain.xml")
	if err := os.WriteFile(plain, []byte("<project/>"), 0666); err != nil {
		t.Fatal(err)
	}
	raw, err := util.ReadMaybeGzip(plain)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != "<project/>" {
		t.Fatalf("unexpected content %q", raw)
	}

	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write([]byte("<project/>")); err != nil {
		t.Fatal(err)
	}
	if err := gw.Close(); err != nil {
		t.Fatal(err)
	}
	zipped := filepath.Join(tmpdir, "zipped.xml.gz")
	if err := os.WriteFile(zipped, buf.Bytes(), 0666); err != nil {
		t.Fatal(err)
	}
	raw, err = util.ReadMaybeGzip(zipped)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != "<project/>" {
		t.Fatalf("unexpected content %q", raw)
	}
}

func TestContains(t *testing.T) {
	kinds := []string{"audio", "midi", "return", "master"}
	if !util.Contains(kinds, "midi") {
		t.Fatal("expected true, got false")
	}
	if util.Contains(kinds, "sampler") {
		t.Fatal("expected false, got true")
	}
}
