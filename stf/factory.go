// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stf

import (
	"io"

	"github.com/stf-trace/stf/stfio"
)

// recordFactory constructs the zero-value Record for a descriptor: a
// plain array indexed by Descriptor, filled once at package init,
// since every record type is known at compile time.
var recordFactory [numDescriptors]func() Record

func init() {
	recordFactory[DescriptorIdentifier] = func() Record { return &Identifier{} }
	recordFactory[DescriptorVersion] = func() Record { return &Version{} }
	recordFactory[DescriptorComment] = func() Record { return &Comment{} }
	recordFactory[DescriptorISA] = func() Record { return &ISARecord{} }
	recordFactory[DescriptorInstIEM] = func() Record { return &InstIEM{} }
	recordFactory[DescriptorISAExtended] = func() Record { return &ISAExtendedRecord{} }
	recordFactory[DescriptorForcePC] = func() Record { return &ForcePC{} }
	recordFactory[DescriptorVLenConfig] = func() Record { return &VLenConfig{} }
	recordFactory[DescriptorTraceInfo] = func() Record { return &TraceInfo{} }
	recordFactory[DescriptorTraceInfoFeature] = func() Record { return &TraceInfoFeature{} }
	recordFactory[DescriptorProcessIDExt] = func() Record { return &ProcessIDExt{} }
	recordFactory[DescriptorEndOfHeader] = func() Record { return &EndOfHeader{} }

	recordFactory[DescriptorPageTableWalk] = func() Record { return &PageTableWalk{} }
	recordFactory[DescriptorInstReg] = func() Record { return &InstReg{} }
	recordFactory[DescriptorInstMemAccess] = func() Record { return &InstMemAccess{} }
	recordFactory[DescriptorInstMemContent] = func() Record { return &InstMemContent{} }
	recordFactory[DescriptorBusMasterAccess] = func() Record { return &BusMasterAccess{} }
	recordFactory[DescriptorBusMasterContent] = func() Record { return &BusMasterContent{} }
	recordFactory[DescriptorEvent] = func() Record { return &Event{} }
	recordFactory[DescriptorEventPCTarget] = func() Record { return &EventPCTarget{} }
	recordFactory[DescriptorInstPCTarget] = func() Record { return &InstPCTarget{} }
	recordFactory[DescriptorInstMicroOp] = func() Record { return &InstMicroOp{} }
	recordFactory[DescriptorInstReadyReg] = func() Record { return &InstReadyReg{} }
	recordFactory[DescriptorInstOpcode16] = func() Record { return &InstOpcode16{} }
	recordFactory[DescriptorInstOpcode32] = func() Record { return &InstOpcode32{} }
}

// ReadRecord reads one descriptor-tagged record from s, dispatching
// to the matching type's Unpack. A clean end of stream at
// a record boundary returns an error satisfying IsEOF.
func ReadRecord(s *stfio.Stream) (Record, error) {
	d, err := readDescriptor(s)
	if err != nil {
		return nil, err
	}
	if d.IsReserved() || recordFactory[d] == nil {
		return nil, errf(KindInvalidDescriptor, "descriptor %d has no registered record type", uint8(d))
	}
	rec := recordFactory[d]()
	if err := rec.Unpack(s); err != nil {
		if err == stfio.ErrEOF || err == io.ErrUnexpectedEOF {
			return nil, wrapf(KindCorrupt, err, "truncated record body for descriptor %d", uint8(d))
		}
		return nil, err
	}
	return rec, nil
}

// WriteRecord packs rec (descriptor tag and payload) to s.
func WriteRecord(s *stfio.Stream, rec Record) error {
	return rec.Pack(s)
}
