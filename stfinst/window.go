// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stfinst

import "github.com/stf-trace/stf"

// defaultWindowSize is the number of completed instructions buffered
// for look-ahead and restartable seek.
const defaultWindowSize = 4096

// Seeker is implemented by a chunked stream container that can seek
// by marker count, falling back to when the window doesn't already
// hold the target.
type Seeker interface {
	// Seek repositions to the chunk containing markerCount, invoking
	// forcePC with that chunk's start_pc.
	Seek(markerCount uint64, forcePC func(pc uint64)) error

	// ChunkSize reports the number of marker records per chunk, so
	// SeekTo can compute how many records to consume forward from the
	// chunk boundary Seek lands on.
	ChunkSize() uint64
}

// Window provides a forward iterator over a Materialiser with a
// sliding buffer of completed instructions, so that seek-by-
// instruction-count can usually be served from memory instead of
// re-reading the stream.
type Window struct {
	m    *Materialiser
	seek Seeker // nil if the underlying stream is not seekable

	buf   []*Instruction
	start uint64 // instruction index (0-based) of buf[0]
	head  int    // index into buf of the next instruction to return

	size int
}

// NewWindow wraps m with a sliding window of the default size. seek
// may be nil for a non-chunked (plain or piped) stream, in which case
// SeekTo only succeeds for indices still held in the window.
func NewWindow(m *Materialiser, seek Seeker) *Window {
	return &Window{m: m, seek: seek, size: defaultWindowSize}
}

// Next returns the next instruction in program order.
func (w *Window) Next() (*Instruction, error) {
	if w.head < len(w.buf) {
		in := w.buf[w.head]
		w.head++
		return in, nil
	}
	in, err := w.m.Next()
	if err != nil {
		return nil, err
	}
	// Materialiser.Next reuses one Instruction across calls; buffer a
	// copy so earlier window entries are not overwritten.
	cp := *in
	cp.RecordMap = make(map[stf.Descriptor][]stf.Record, len(in.RecordMap))
	for d, recs := range in.RecordMap {
		cp.RecordMap[d] = recs
	}
	w.append(&cp)
	w.head = len(w.buf)
	return &cp, nil
}

func (w *Window) append(in *Instruction) {
	if len(w.buf) >= w.size {
		drop := len(w.buf) - w.size + 1
		w.buf = w.buf[drop:]
		w.start += uint64(drop)
		w.head -= drop
		if w.head < 0 {
			w.head = 0
		}
	}
	w.buf = append(w.buf, in)
}

// SeekTo repositions the iterator so the next Next() call returns
// instruction index n (0-based, counting materialised — not skipped —
// instructions). It first consults the buffered window; if n predates
// the window or the window doesn't hold it, it falls back to the
// underlying chunked-stream seek, then consumes n mod chunk_size
// records forward from the chunk boundary Seek lands on.
func (w *Window) SeekTo(n uint64) error {
	if n >= w.start && n < w.start+uint64(len(w.buf)) {
		w.head = int(n - w.start)
		return nil
	}
	if w.seek == nil {
		return stf.Protocolf("seek target %d is outside the buffered window and the stream is not seekable", n)
	}
	markerCount := n // one marker per materialised instruction in the non-filtered case
	if err := w.seek.Seek(markerCount, func(pc uint64) { w.m.nextPC = pc }); err != nil {
		return err
	}
	w.buf = w.buf[:0]
	w.start = n
	w.head = 0

	if chunkSize := w.seek.ChunkSize(); chunkSize > 0 {
		if forward := n % chunkSize; forward > 0 {
			for i := uint64(0); i < forward; i++ {
				if _, err := w.m.Next(); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
