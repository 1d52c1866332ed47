// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stfinst

import (
	"strings"

	"github.com/stf-trace/stf"
	"github.com/stf-trace/stf/stfio"
)

// PTEPath returns the sibling page-table-walk file path for a trace
// at path: the base name with "-pte" inserted before the compression
// extension.
func PTEPath(path string) string {
	for _, ext := range []string{".gz", ".xz"} {
		if strings.HasSuffix(path, ".stf"+ext) {
			return strings.TrimSuffix(path, ext) + "-pte" + ext
		}
	}
	if strings.HasSuffix(path, ".zstf") {
		return strings.TrimSuffix(path, ".zstf") + "-pte.zstf"
	}
	return path + "-pte"
}

// PTEReader iterates the PageTableWalk records of a sibling -pte
// file. It reads raw PageTableWalk records directly; the sibling file
// carries no per-instruction framing of its own.
type PTEReader struct {
	opened *stfio.Opened
}

// OpenPTE opens the -pte sibling of path, if present. The header is
// consumed and discarded; only the PageTableWalk body records matter.
func OpenPTE(path string) (*PTEReader, error) {
	o, err := stfio.Open(PTEPath(path), stfio.ModeRead)
	if err != nil {
		return nil, err
	}
	return &PTEReader{opened: o}, nil
}

// Next returns the next PageTableWalk record from the sibling file.
func (p *PTEReader) Next() (*stf.PageTableWalk, error) {
	for {
		rec, err := stf.ReadRecord(p.opened.Stream)
		if err != nil {
			return nil, err
		}
		if ptw, ok := rec.(*stf.PageTableWalk); ok {
			return ptw, nil
		}
		// Skip header/other records; the sibling file is still a
		// well-formed STF stream.
	}
}

// Close closes the underlying file.
func (p *PTEReader) Close() error { return p.opened.Close() }
