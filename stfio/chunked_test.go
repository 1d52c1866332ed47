// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stfio

import (
	"io"
	"os"
	"path/filepath"
	"testing"
)

// writeChunkedFixture writes 6 single-byte "records" (values 1..6),
// calling Marker after each with nextChunkStartPC = m*0x1000, using a
// chunk size of 2 markers. This yields exactly 3 chunks with no
// partial tail at Close, with StartPCs 0x1000 (seeded), 0x2000, and
// 0x4000 -- each chunk's own starting PC, not the one after it.
func writeChunkedFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trace.zstf")
	w, err := NewChunkedWriter(path, 2)
	if err != nil {
		t.Fatalf("NewChunkedWriter: %v", err)
	}
	w.SetStartPC(0x1000)
	s := w.Stream()
	for m := 1; m <= 6; m++ {
		if err := s.WriteU8(byte(m)); err != nil {
			t.Fatalf("WriteU8(%d): %v", m, err)
		}
		if err := w.Marker(uint64(m) * 0x1000); err != nil {
			t.Fatalf("Marker(%d): %v", m, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return path
}

func TestChunkedWriteReadRoundTrip(t *testing.T) {
	path := writeChunkedFixture(t)

	r, err := NewChunkedReader(path)
	if err != nil {
		t.Fatalf("NewChunkedReader: %v", err)
	}
	defer r.Close()

	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	want := []byte{1, 2, 3, 4, 5, 6}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("byte %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestChunkedReaderRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.zstf")
	if err := os.WriteFile(path, []byte("NOTZ0000000000000000000000"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewChunkedReader(path); err == nil {
		t.Fatal("expected error for bad magic")
	}
}

func TestChunkedSeekLandsOnChunkStart(t *testing.T) {
	path := writeChunkedFixture(t)

	r, err := NewChunkedReader(path)
	if err != nil {
		t.Fatalf("NewChunkedReader: %v", err)
	}
	defer r.Close()

	var gotPC uint64
	if err := r.Seek(3, func(pc uint64) { gotPC = pc }); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	// Marker 3 falls in chunk index 3/2 = 1, whose own StartPC is the PC
	// the writer's tracker had when chunk 1 started accumulating --
	// the nextChunkStartPC passed on the flush that closed chunk 0 (the
	// 2nd marker, value 2*0x1000) -- not the PC of the chunk after it.
	if gotPC != 0x2000 {
		t.Errorf("got forcePC=0x%x, want 0x2000", gotPC)
	}

	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll after seek: %v", err)
	}
	if len(got) == 0 {
		t.Fatal("expected data remaining after seek")
	}
}
