// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package util

import (
	"bytes"
	"compress/gzip"
	"io"
	"os"

	"github.com/cckit/dawsync/pkg/log"
)

// ReadMaybeGzip reads path and transparently gunzips it if it carries a
// gzip magic header, otherwise returns the raw bytes. The document parser
// (internal/docparser) uses this to accept both the gzip+XML project
// document format and a bare XML file during development/tests.
func ReadMaybeGzip(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		log.Errorf("ReadMaybeGzip() error: %v", err)
		return nil, err
	}

	if len(raw) < 2 || raw[0] != 0x1f || raw[1] != 0x8b {
		return raw, nil
	}

	gzipReader, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		log.Errorf("ReadMaybeGzip() gzip error: %v", err)
		return nil, err
	}
	defer gzipReader.Close()

	return io.ReadAll(gzipReader)
}
