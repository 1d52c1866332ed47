// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stf

import (
	"io"

	"github.com/stf-trace/stf/stfio"
)

// Identifier is the three-byte ASCII "STF" record that must be the
// very first record in any trace.
type Identifier struct {
	Str [3]byte
}

func NewIdentifier() *Identifier { return &Identifier{Str: [3]byte{'S', 'T', 'F'}} }

func (r *Identifier) Descriptor() Descriptor { return DescriptorIdentifier }

func (r *Identifier) Valid() bool { return r.Str == [3]byte{'S', 'T', 'F'} }

func (r *Identifier) Pack(s *stfio.Stream) error {
	if err := writeDescriptor(s, r.Descriptor()); err != nil {
		return err
	}
	return s.WriteBytes(r.Str[:])
}

func (r *Identifier) Unpack(s *stfio.Stream) error {
	return s.ReadBytes(r.Str[:])
}

func (r *Identifier) Format(w io.Writer) error {
	return formatf(w, "IDENT %s", string(r.Str[:]))
}

// Version is the (major, minor) format version, written immediately
// after Identifier.
type Version struct {
	Major, Minor uint32
}

const (
	// CurrentMajor/CurrentMinor are the version this package writes.
	CurrentMajor uint32 = 1
	CurrentMinor uint32 = 5

	// MinSupportedMajor/MinSupportedMinor are the oldest version
	// this package will read.
	MinSupportedMajor uint32 = 0
	MinSupportedMinor uint32 = 8
)

func (r *Version) Descriptor() Descriptor { return DescriptorVersion }

// Compatible reports whether r is within [0.8, current].
func (r *Version) Compatible() bool {
	if r.Major > CurrentMajor || (r.Major == CurrentMajor && r.Minor > CurrentMinor) {
		return false
	}
	if r.Major < MinSupportedMajor || (r.Major == MinSupportedMajor && r.Minor < MinSupportedMinor) {
		return false
	}
	return true
}

func (r *Version) Pack(s *stfio.Stream) error {
	if err := writeDescriptor(s, r.Descriptor()); err != nil {
		return err
	}
	if err := s.WriteU32(r.Major); err != nil {
		return err
	}
	return s.WriteU32(r.Minor)
}

func (r *Version) Unpack(s *stfio.Stream) error {
	var err error
	if r.Major, err = s.ReadU32(); err != nil {
		return err
	}
	r.Minor, err = s.ReadU32()
	return err
}

func (r *Version) Format(w io.Writer) error {
	return formatf(w, "VERSION %d.%d", r.Major, r.Minor)
}

// Comment is a length-prefixed UTF-8 comment string.
type Comment struct {
	Text string
}

func (r *Comment) Descriptor() Descriptor { return DescriptorComment }

func (r *Comment) Pack(s *stfio.Stream) error {
	if err := writeDescriptor(s, r.Descriptor()); err != nil {
		return err
	}
	return s.WriteString(r.Text, 4)
}

func (r *Comment) Unpack(s *stfio.Stream) error {
	var err error
	r.Text, err = s.ReadString(4)
	return err
}

func (r *Comment) Format(w io.Writer) error {
	return formatf(w, "COMMENT %q", r.Text)
}

// ISARecord names the instruction set family for the rest of the
// trace.
type ISARecord struct {
	ISA ISA
}

func (r *ISARecord) Descriptor() Descriptor { return DescriptorISA }

func (r *ISARecord) Pack(s *stfio.Stream) error {
	if err := writeDescriptor(s, r.Descriptor()); err != nil {
		return err
	}
	return s.WriteU16(uint16(r.ISA))
}

func (r *ISARecord) Unpack(s *stfio.Stream) error {
	v, err := s.ReadU16()
	r.ISA = ISA(v)
	return err
}

func (r *ISARecord) Format(w io.Writer) error { return formatf(w, "ISA %s", r.ISA) }

// InstIEM is the initial (and, on RISC-V, only) instruction encoding
// mode.
type InstIEM struct {
	IEM IEM
}

func (r *InstIEM) Descriptor() Descriptor { return DescriptorInstIEM }

func (r *InstIEM) Pack(s *stfio.Stream) error {
	if err := writeDescriptor(s, r.Descriptor()); err != nil {
		return err
	}
	return s.WriteU16(uint16(r.IEM))
}

func (r *InstIEM) Unpack(s *stfio.Stream) error {
	v, err := s.ReadU16()
	r.IEM = IEM(v)
	return err
}

func (r *InstIEM) Format(w io.Writer) error { return formatf(w, "IEM %s", r.IEM) }

// ISAExtendedRecord carries the default ISA-extension string for a
// given (ISA, IEM) pair.
type ISAExtendedRecord struct {
	Extension string
}

func (r *ISAExtendedRecord) Descriptor() Descriptor { return DescriptorISAExtended }

func (r *ISAExtendedRecord) Pack(s *stfio.Stream) error {
	if err := writeDescriptor(s, r.Descriptor()); err != nil {
		return err
	}
	return s.WriteString(r.Extension, 2)
}

func (r *ISAExtendedRecord) Unpack(s *stfio.Stream) error {
	var err error
	r.Extension, err = s.ReadString(2)
	return err
}

func (r *ISAExtendedRecord) Format(w io.Writer) error {
	return formatf(w, "ISA_EXTENDED %q", r.Extension)
}

// ForcePC sets (or resets) the PC tracker to an absolute address
//. The header's ForcePC establishes the trace's
// starting PC; later ones mark explicit changes of flow.
type ForcePC struct {
	Addr uint64
}

func (r *ForcePC) Descriptor() Descriptor { return DescriptorForcePC }

func (r *ForcePC) Pack(s *stfio.Stream) error {
	if err := writeDescriptor(s, r.Descriptor()); err != nil {
		return err
	}
	return s.WriteU64(r.Addr)
}

func (r *ForcePC) Unpack(s *stfio.Stream) error {
	var err error
	r.Addr, err = s.ReadU64()
	return err
}

func (r *ForcePC) Format(w io.Writer) error { return formatf(w, "FORCE_PC 0x%x", r.Addr) }

// VLenConfig sets the vector register length in bits; at
// most one per trace, optional, must be >= the element size of a
// vector data word (64 bits).
type VLenConfig struct {
	VLen uint32
}

func (r *VLenConfig) Descriptor() Descriptor { return DescriptorVLenConfig }

func (r *VLenConfig) Pack(s *stfio.Stream) error {
	if err := writeDescriptor(s, r.Descriptor()); err != nil {
		return err
	}
	return s.WriteU32(r.VLen)
}

func (r *VLenConfig) Unpack(s *stfio.Stream) error {
	var err error
	r.VLen, err = s.ReadU32()
	return err
}

func (r *VLenConfig) Format(w io.Writer) error { return formatf(w, "VLEN_CONFIG %d", r.VLen) }

// TraceInfo names a single tool involved in producing the trace
// (generator, version, and a free-text comment); at least one must
// appear in the header, and multiple TraceInfo records accumulate a
// provenance chain.
type TraceInfo struct {
	Gen              Generator
	Major, Minor, MinorMinor uint8
	Comment          string
}

func (r *TraceInfo) Descriptor() Descriptor { return DescriptorTraceInfo }

func (r *TraceInfo) Pack(s *stfio.Stream) error {
	if err := writeDescriptor(s, r.Descriptor()); err != nil {
		return err
	}
	if err := s.WriteU8(uint8(r.Gen)); err != nil {
		return err
	}
	if err := s.WriteU8(r.Major); err != nil {
		return err
	}
	if err := s.WriteU8(r.Minor); err != nil {
		return err
	}
	if err := s.WriteU8(r.MinorMinor); err != nil {
		return err
	}
	return s.WriteString(r.Comment, 2)
}

func (r *TraceInfo) Unpack(s *stfio.Stream) error {
	v, err := s.ReadU8()
	if err != nil {
		return err
	}
	r.Gen = Generator(v)
	if r.Major, err = s.ReadU8(); err != nil {
		return err
	}
	if r.Minor, err = s.ReadU8(); err != nil {
		return err
	}
	if r.MinorMinor, err = s.ReadU8(); err != nil {
		return err
	}
	r.Comment, err = s.ReadString(2)
	return err
}

func (r *TraceInfo) Format(w io.Writer) error {
	return formatf(w, "TRACE_INFO %s %d.%d.%d %q", r.Gen, r.Major, r.Minor, r.MinorMinor, r.Comment)
}

// TraceInfoFeature is the bitfield of trace-wide feature flags.
type TraceInfoFeature struct {
	Features TraceFeature
}

func (r *TraceInfoFeature) Descriptor() Descriptor { return DescriptorTraceInfoFeature }

func (r *TraceInfoFeature) Pack(s *stfio.Stream) error {
	if err := writeDescriptor(s, r.Descriptor()); err != nil {
		return err
	}
	return s.WriteU64(uint64(r.Features))
}

func (r *TraceInfoFeature) Unpack(s *stfio.Stream) error {
	v, err := s.ReadU64()
	r.Features = TraceFeature(v)
	return err
}

func (r *TraceInfoFeature) Format(w io.Writer) error {
	return formatf(w, "TRACE_INFO_FEATURE 0x%x", uint64(r.Features))
}

// ProcessIDExt carries (tgid, tid, asid) for the process that the
// following instructions belong to. It appears at
// most once in the header to seed the initial process identity, and
// may recur in the instruction stream on every process switch.
type ProcessIDExt struct {
	TGID, TID, ASID uint32
}

func (r *ProcessIDExt) Descriptor() Descriptor { return DescriptorProcessIDExt }

func (r *ProcessIDExt) Pack(s *stfio.Stream) error {
	if err := writeDescriptor(s, r.Descriptor()); err != nil {
		return err
	}
	if err := s.WriteU32(r.TGID); err != nil {
		return err
	}
	if err := s.WriteU32(r.TID); err != nil {
		return err
	}
	return s.WriteU32(r.ASID)
}

func (r *ProcessIDExt) Unpack(s *stfio.Stream) error {
	var err error
	if r.TGID, err = s.ReadU32(); err != nil {
		return err
	}
	if r.TID, err = s.ReadU32(); err != nil {
		return err
	}
	r.ASID, err = s.ReadU32()
	return err
}

func (r *ProcessIDExt) Format(w io.Writer) error {
	return formatf(w, "PROCESS_ID tgid=0x%x tid=0x%x asid=0x%x", r.TGID, r.TID, r.ASID)
}

// EndOfHeader is the empty terminator of the header block.
type EndOfHeader struct{}

func (r *EndOfHeader) Descriptor() Descriptor { return DescriptorEndOfHeader }
func (r *EndOfHeader) Pack(s *stfio.Stream) error {
	return writeDescriptor(s, r.Descriptor())
}
func (r *EndOfHeader) Unpack(s *stfio.Stream) error { return nil }
func (r *EndOfHeader) Format(w io.Writer) error     { return formatf(w, "END_OF_HEADER") }
