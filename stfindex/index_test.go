// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stfindex

import (
	"bytes"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stf-trace/stf"
	"github.com/stf-trace/stf/stfio"
)

// countingReader wraps an io.Reader, tracking the total byte count
// consumed so it can serve as an offsetFn for scan.
type countingReader struct {
	r   io.Reader
	pos int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.pos += int64(n)
	return n, err
}

// buildFixture packs n InstOpcode16 marker records (one per
// "instruction") into a buffer, returning a Stream and offsetFn pair
// ready for scan.
func buildFixture(n int) (*stfio.Stream, func() int64) {
	var buf bytes.Buffer
	w := stfio.NewWriteStream(&buf)
	for i := 0; i < n; i++ {
		rec := &stf.InstOpcode16{Opcode: uint16(i)}
		if err := stf.WriteRecord(w, rec); err != nil {
			panic(err)
		}
	}
	cr := &countingReader{r: &buf}
	s := stfio.NewReadStream(cr)
	return s, func() int64 { return cr.pos }
}

// newTestIndex starts a scan with a small granule so tests don't need
// thousands of fixture records to exercise multiple entries.
func newTestIndex(granule uint64, s *stfio.Stream, offsetFn func() int64) *Index {
	idx := &Index{granule: granule}
	idx.cond = sync.NewCond(&idx.mu)
	go idx.scan(s, offsetFn)
	return idx
}

func waitForEntries(t *testing.T, idx *Index, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		idx.mu.Lock()
		got := len(idx.entries)
		done := idx.done
		idx.mu.Unlock()
		if got >= n || done {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d entries (have %d)", n, got)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestScanRecordsGranuleEntries(t *testing.T) {
	s, offsetFn := buildFixture(10)
	idx := newTestIndex(3, s, offsetFn)
	defer idx.Close()

	// 10 records, granule 3 -> entries at markers 3, 6, 9.
	waitForEntries(t, idx, 3)

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if len(idx.entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(idx.entries))
	}
	for i, want := range []uint64{3, 6, 9} {
		if idx.entries[i].markerCount != want {
			t.Errorf("entry %d: markerCount = %d, want %d", i, idx.entries[i].markerCount, want)
		}
	}
}

func TestFindNearestReturnsBestBelow(t *testing.T) {
	s, offsetFn := buildFixture(10)
	idx := newTestIndex(3, s, offsetFn)
	defer idx.Close()

	_, markerCount, ok, err := idx.FindNearest(8)
	if err != nil {
		t.Fatalf("FindNearest: %v", err)
	}
	if !ok {
		t.Fatal("expected ok=true")
	}
	if markerCount != 6 {
		t.Errorf("got markerCount %d, want 6 (largest granule entry <= 8)", markerCount)
	}
}

func TestFindNearestBeforeFirstGranule(t *testing.T) {
	s, offsetFn := buildFixture(10)
	idx := newTestIndex(3, s, offsetFn)
	defer idx.Close()

	_, _, ok, err := idx.FindNearest(1)
	if err != nil {
		t.Fatalf("FindNearest: %v", err)
	}
	if ok {
		t.Error("expected ok=false: n precedes the first granule entry")
	}
}

func TestCloseUnblocksPendingFindNearest(t *testing.T) {
	// An io.Pipe reader never reaches EOF until the write side is
	// closed, so scan blocks inside ReadRecord indefinitely and
	// FindNearest has no entry or done state to return from except
	// via Close.
	pr, pw := io.Pipe()
	s := stfio.NewReadStream(pr)
	idx := newTestIndex(1000, s, func() int64 { return 0 })
	defer pw.Close()

	done := make(chan struct{})
	go func() {
		idx.FindNearest(5)
		close(done)
	}()

	// Give the FindNearest goroutine time to reach cond.Wait.
	time.Sleep(50 * time.Millisecond)
	idx.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("FindNearest did not unblock after Close")
	}
}
