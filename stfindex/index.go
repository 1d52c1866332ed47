// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package stfindex implements the background random-access index: a
// scanner that records (marker count -> file offset) every granule so
// a reader can seek by marker count without rescanning from the start.
package stfindex

import (
	"sync"

	"github.com/stf-trace/stf"
	"github.com/stf-trace/stf/stfio"
)

// defaultGranule is the number of marker records between recorded
// index entries.
const defaultGranule = 1024

// entry is one (marker count, file offset) sample.
type entry struct {
	markerCount uint64
	offset      int64
}

// Index is a background scanner over a seekable record stream.
// Scan runs on its own goroutine; FindNearest blocks callers until
// either the scan has passed the requested marker count or finished.
type Index struct {
	granule uint64

	mu      sync.Mutex
	cond    *sync.Cond
	entries []entry
	done    bool
	err     error
	cancel  bool
}

// New starts a background scan of the record stream on s, whose
// underlying reader must support io.Seeker-style offset tracking
// (the caller passes offsetFn to read the current byte offset after
// each record, since Stream itself does not expose one).
func New(s *stfio.Stream, offsetFn func() int64) *Index {
	idx := &Index{granule: defaultGranule}
	idx.cond = sync.NewCond(&idx.mu)
	go idx.scan(s, offsetFn)
	return idx
}

func (idx *Index) scan(s *stfio.Stream, offsetFn func() int64) {
	var markers uint64
	for {
		idx.mu.Lock()
		cancelled := idx.cancel
		idx.mu.Unlock()
		if cancelled {
			return
		}

		rec, err := stf.ReadRecord(s)
		if err != nil {
			idx.mu.Lock()
			if !stf.IsEOF(err) {
				idx.err = err
			}
			idx.done = true
			idx.cond.Broadcast()
			idx.mu.Unlock()
			return
		}
		if rec.Descriptor().IsMarker() {
			markers++
			if markers%idx.granule == 0 {
				idx.mu.Lock()
				idx.entries = append(idx.entries, entry{markerCount: markers, offset: offsetFn()})
				idx.cond.Broadcast()
				idx.mu.Unlock()
			}
		}
	}
}

// FindNearest returns the largest recorded file offset whose marker
// count is <= n, blocking until the scan has either passed n or
// completed. ok is false if no entry at or below n exists
// (n precedes the first granule).
func (idx *Index) FindNearest(n uint64) (offset int64, markerCount uint64, ok bool, err error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for {
		passed := len(idx.entries) > 0 && idx.entries[len(idx.entries)-1].markerCount >= n
		if passed || idx.done {
			if best, found := idx.bestLocked(n); found {
				return best.offset, best.markerCount, true, nil
			}
			return 0, 0, false, idx.err
		}
		idx.cond.Wait()
	}
}

func (idx *Index) bestLocked(n uint64) (entry, bool) {
	var best entry
	found := false
	for _, e := range idx.entries {
		if e.markerCount <= n && (!found || e.markerCount > best.markerCount) {
			best, found = e, true
		}
	}
	return best, found
}

// Close aborts the background scan, unblocking any pending FindNearest
// call.
func (idx *Index) Close() {
	idx.mu.Lock()
	idx.cancel = true
	idx.done = true
	idx.cond.Broadcast()
	idx.mu.Unlock()
}
