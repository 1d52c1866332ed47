// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stf

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/stf-trace/stf/stfio"
)

func roundTrip(t *testing.T, rec Record, vlen uint32) Record {
	t.Helper()
	var buf bytes.Buffer
	ws := stfio.NewWriteStream(&buf)
	ws.VLen = vlen
	if err := rec.Pack(ws); err != nil {
		t.Fatalf("Pack: %v", err)
	}
	rs := stfio.NewReadStream(&buf)
	rs.VLen = vlen
	got, err := ReadRecord(rs)
	if err != nil {
		t.Fatalf("ReadRecord: %v", err)
	}
	return got
}

func TestRecordRoundTrip(t *testing.T) {
	tests := []Record{
		NewIdentifier(),
		&Version{Major: 1, Minor: 5},
		&Comment{Text: "hello trace"},
		&ISARecord{ISA: ISARISCV},
		&InstIEM{IEM: IEMRV64},
		&ISAExtendedRecord{Extension: "IMAFDC"},
		&ForcePC{Addr: 0x80000000},
		&VLenConfig{VLen: 256},
		&TraceInfo{Gen: GenDromajo, Major: 1, Minor: 2, MinorMinor: 0, Comment: "Trace from Dromajo"},
		&TraceInfoFeature{Features: FeatureRV64 | FeaturePhysicalAddress},
		&ProcessIDExt{TGID: 1, TID: 2, ASID: 3},
		&EndOfHeader{},
		&InstReg{RegNum: 1, Kind: OperandSource, Class: RegClassInteger, Data: []uint64{0x42}},
		&InstMemAccess{Address: 0x1000, Size: 8, Attributes: 0, Kind: MemAccessRead},
		&InstMemContent{Data: 0xdeadbeef},
		&BusMasterAccess{Address: 0x2000, Size: 4, Kind: MemAccessWrite, Initiator: BusMasterDMA},
		&BusMasterContent{Data: 0xcafe},
		&Event{Type: EventUserEcall, Data: []uint64{1, 2}},
		&EventPCTarget{Addr: 0x3000},
		&InstPCTarget{Addr: 0x4000},
		&PageTableWalk{VA: 0x5000, FirstAccessIndex: 1, PageSize: 4096, PTEs: []PTE{{PA: 0x6000, Entry: 0x7}}},
		&InstMicroOp{Payload: []byte{1, 2, 3}},
		&InstReadyReg{Payload: []byte{4, 5}},
		&InstOpcode16{Opcode: 0x4505},
		&InstOpcode32{Opcode: 0x00b60733},
	}
	for _, want := range tests {
		got := roundTrip(t, want, 256)
		if !reflect.DeepEqual(want, got) {
			t.Errorf("round trip of %T: got %+v, want %+v", want, got, want)
		}
	}
}

func TestInstRegVectorWidth(t *testing.T) {
	want := &InstReg{RegNum: 3, Kind: OperandDest, Class: RegClassVector, Data: []uint64{1, 2, 3, 4}}
	got := roundTrip(t, want, 256) // 256 bits = 4 u64 elements
	if !reflect.DeepEqual(want, got) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestReadRecordInvalidDescriptor(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(0) // DescriptorReserved
	rs := stfio.NewReadStream(&buf)
	_, err := ReadRecord(rs)
	e, ok := err.(*Error)
	if !ok || e.Kind != KindInvalidDescriptor {
		t.Fatalf("got %v, want KindInvalidDescriptor", err)
	}
}

func TestReadRecordEOF(t *testing.T) {
	var buf bytes.Buffer
	rs := stfio.NewReadStream(&buf)
	_, err := ReadRecord(rs)
	if !IsEOF(err) {
		t.Fatalf("got %v, want EOF", err)
	}
}

func TestVersionCompatible(t *testing.T) {
	tests := []struct {
		major, minor uint32
		want         bool
	}{
		{0, 8, true},
		{1, 5, true},
		{1, 0, true},
		{0, 7, false},
		{CurrentMajor + 1, 0, false},
		{CurrentMajor, CurrentMinor + 1, false},
	}
	for _, tc := range tests {
		v := &Version{Major: tc.major, Minor: tc.minor}
		if got := v.Compatible(); got != tc.want {
			t.Errorf("Version{%d,%d}.Compatible() = %v, want %v", tc.major, tc.minor, got, tc.want)
		}
	}
}

func TestEventClassification(t *testing.T) {
	tests := []struct {
		name string
		e    EventType
		want func(EventType) bool
	}{
		{"user ecall is syscall", EventUserEcall, EventType.IsSyscall},
		{"machine ecall is syscall", EventMachineEcall, EventType.IsSyscall},
		{"timer interrupt is interrupt", EventIntMachineTimer, EventType.IsInterrupt},
		{"mode change is mode change", EventModeChange, EventType.IsModeChange},
		{"illegal inst is fault", EventIllegalInst, EventType.IsFault},
	}
	for _, tc := range tests {
		if !tc.want(tc.e) {
			t.Errorf("%s: classification failed for %v", tc.name, tc.e)
		}
	}
}

func TestRegMetadataPacking(t *testing.T) {
	for _, k := range []OperandKind{OperandSource, OperandDest, OperandState} {
		for _, c := range []RegisterClass{RegClassInteger, RegClassFloat, RegClassVector, RegClassCSR} {
			b := packRegMetadata(k, c)
			gotK, gotC := unpackRegMetadata(b)
			if gotK != k || gotC != c {
				t.Errorf("packRegMetadata(%v,%v) round trip got (%v,%v)", k, c, gotK, gotC)
			}
		}
	}
}
