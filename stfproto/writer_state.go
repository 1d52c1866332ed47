// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stfproto

import (
	"github.com/stf-trace/stf"
	"github.com/stf-trace/stf/stfio"
)

// WriterState enforces the intra-instruction record ordering as
// records are written to the body of a trace (after the header has
// been finalized).
type WriterState struct {
	s          *stfio.Stream
	sink       stfio.WriteMarkerSink
	headerDone bool

	last Descriptor

	awaitingContent Descriptor // zero (DescriptorReserved) when nothing pending

	nextPC    uint64
	branchSet bool // an InstPCTarget was seen this instruction
}

type Descriptor = stf.Descriptor

// NewWriterState returns a WriterState bound to s. MarkHeaderDone
// must be called once the header has been finalized before any body
// record is written. The marker sink defaults to s itself; call
// SetMarkerSink to route marker crossings to a chunked container
// instead.
func NewWriterState(s *stfio.Stream) *WriterState {
	return &WriterState{s: s, sink: s, last: stf.DescriptorReserved}
}

// MarkHeaderDone transitions the writer from header phase to body
// phase.
func (w *WriterState) MarkHeaderDone() { w.headerDone = true }

// SetMarkerSink routes marker-crossing notifications to sink instead
// of s. Pass the *stfio.ChunkedWriter from the same stfio.Open call
// (stfio.Opened.WriteMarker) when writing a chunked trace, so a chunk
// actually gets flushed when its marker count is reached. If sink
// also implements stfio.StartPCSetter (ChunkedWriter does), it is
// primed with the PC tracker's current value so chunk 0's index entry
// gets the right start_pc regardless of call order against
// SetForcePC.
func (w *WriterState) SetMarkerSink(sink stfio.WriteMarkerSink) {
	w.sink = sink
	if s, ok := sink.(stfio.StartPCSetter); ok {
		s.SetStartPC(w.nextPC)
	}
}

// SetForcePC seeds the PC tracker used to compute the PC a marker
// record's closing chunk boundary reports as the next chunk's
// start_pc. Call once with the header's ForcePC value before writing
// any body record.
func (w *WriterState) SetForcePC(pc uint64) {
	w.nextPC = pc
	if s, ok := w.sink.(stfio.StartPCSetter); ok {
		s.SetStartPC(pc)
	}
}

// Write validates rec against the current state, packs it if legal,
// and advances the state machine.
func (w *WriterState) Write(rec stf.Record) error {
	d := rec.Descriptor()

	if d.IsReserved() {
		return stf.Protocolf("reserved descriptor %d may not be written", uint8(d))
	}

	// Comments may appear anywhere and never affect ordering or
	// phase state.
	if d == stf.DescriptorComment {
		return rec.Pack(w.s)
	}

	if d.IsHeaderRecord() {
		return stf.Protocolf("header record (descriptor %d) written after header finalized", uint8(d))
	}
	if !w.headerDone {
		return stf.Protocolf("instruction record (descriptor %d) written before header finalized", uint8(d))
	}

	if w.awaitingContent != stf.DescriptorReserved {
		if d != w.awaitingContent {
			return stf.Protocolf("%s must follow %s", contentName(w.awaitingContent), accessName(w.awaitingContent))
		}
		if err := rec.Pack(w.s); err != nil {
			return err
		}
		w.awaitingContent = stf.DescriptorReserved
		w.last = d
		return nil
	}

	if !w.orderOK(d) {
		return stf.Protocolf("descriptor %d out of order after %d", uint8(d), uint8(w.last))
	}

	if err := rec.Pack(w.s); err != nil {
		return err
	}

	switch d {
	case stf.DescriptorInstMemAccess:
		w.awaitingContent = stf.DescriptorInstMemContent
	case stf.DescriptorBusMasterAccess:
		w.awaitingContent = stf.DescriptorBusMasterContent
	case stf.DescriptorInstPCTarget:
		if v, ok := rec.(*stf.InstPCTarget); ok {
			w.nextPC = v.Addr
			w.branchSet = true
		}
	case stf.DescriptorInstOpcode16, stf.DescriptorInstOpcode32:
		size := uint64(2)
		if d == stf.DescriptorInstOpcode32 {
			size = 4
		}
		if w.branchSet {
			w.branchSet = false
		} else {
			w.nextPC += size
		}
		if err := w.sink.Marker(w.nextPC); err != nil {
			return err
		}
		w.last = stf.DescriptorReserved // closes the instruction group
		return nil
	}
	w.last = d
	return nil
}

// orderOK reports whether next may legally follow w.last: either the
// general non-decreasing rule, or one of the three documented
// backward exceptions.
func (w *WriterState) orderOK(next stf.Descriptor) bool {
	if next >= w.last {
		return true
	}
	switch {
	case w.last == stf.DescriptorInstMemContent && next == stf.DescriptorInstMemAccess:
		return true
	case w.last == stf.DescriptorBusMasterContent && next == stf.DescriptorBusMasterAccess:
		return true
	case w.last == stf.DescriptorEventPCTarget && next == stf.DescriptorEvent:
		return true
	}
	return false
}

// PendingContent reports whether the instruction group is missing a
// content record for its last access record; the
// caller should check this before writing a marker record.
func (w *WriterState) PendingContent() bool {
	return w.awaitingContent != stf.DescriptorReserved
}

func contentName(d stf.Descriptor) string {
	if d == stf.DescriptorBusMasterContent {
		return "BUS_MASTER_CONTENT"
	}
	return "MEM_CONTENT"
}

func accessName(contentDescriptor stf.Descriptor) string {
	if contentDescriptor == stf.DescriptorBusMasterContent {
		return "BUS_MASTER_ACCESS"
	}
	return "MEM_ACCESS"
}
