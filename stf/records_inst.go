// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stf

import (
	"io"

	"github.com/stf-trace/stf/stfio"
)

// vlenElements returns the number of u64 elements a vector register
// operand occupies for a given stream VLen (bits); VLen must already
// be set from a VLenConfig record before any vector operand is
// packed or unpacked.
func vlenElements(vlenBits uint32) int {
	if vlenBits == 0 {
		return 1
	}
	return int(vlenBits / 64)
}

// InstReg is a single register source, destination, or implicit-state
// operand.
type InstReg struct {
	RegNum   uint16
	Kind     OperandKind
	Class    RegisterClass
	Data     []uint64 // len 1 for scalar classes, len vlenElements(vlen) for vector
}

func (r *InstReg) Descriptor() Descriptor { return DescriptorInstReg }

func (r *InstReg) Pack(s *stfio.Stream) error {
	if err := writeDescriptor(s, r.Descriptor()); err != nil {
		return err
	}
	if err := s.WriteU16(r.RegNum); err != nil {
		return err
	}
	if err := s.WriteU8(packRegMetadata(r.Kind, r.Class)); err != nil {
		return err
	}
	for _, v := range r.Data {
		if err := s.WriteU64(v); err != nil {
			return err
		}
	}
	return nil
}

func (r *InstReg) Unpack(s *stfio.Stream) error {
	var err error
	if r.RegNum, err = s.ReadU16(); err != nil {
		return err
	}
	meta, err := s.ReadU8()
	if err != nil {
		return err
	}
	r.Kind, r.Class = unpackRegMetadata(meta)
	n := 1
	if r.Class == RegClassVector {
		n = vlenElements(s.VLen)
	}
	r.Data = make([]uint64, n)
	for i := range r.Data {
		if r.Data[i], err = s.ReadU64(); err != nil {
			return err
		}
	}
	return nil
}

func (r *InstReg) Format(w io.Writer) error {
	if len(r.Data) == 1 {
		return formatf(w, "REG %s %s %d 0x%x", r.Kind, r.Class, r.RegNum, r.Data[0])
	}
	return formatf(w, "REG %s %s %d %v", r.Kind, r.Class, r.RegNum, r.Data)
}

// InstMemAccess describes a core load or store; it must be
// immediately followed by an InstMemContent record.
type InstMemAccess struct {
	Address    uint64
	Size       uint16
	Attributes uint16
	Kind       MemAccessKind
}

func (r *InstMemAccess) Descriptor() Descriptor { return DescriptorInstMemAccess }

func (r *InstMemAccess) Pack(s *stfio.Stream) error {
	if err := writeDescriptor(s, r.Descriptor()); err != nil {
		return err
	}
	if err := s.WriteU64(r.Address); err != nil {
		return err
	}
	if err := s.WriteU16(r.Size); err != nil {
		return err
	}
	if err := s.WriteU16(r.Attributes); err != nil {
		return err
	}
	return s.WriteU8(uint8(r.Kind))
}

func (r *InstMemAccess) Unpack(s *stfio.Stream) error {
	var err error
	if r.Address, err = s.ReadU64(); err != nil {
		return err
	}
	if r.Size, err = s.ReadU16(); err != nil {
		return err
	}
	if r.Attributes, err = s.ReadU16(); err != nil {
		return err
	}
	k, err := s.ReadU8()
	r.Kind = MemAccessKind(k)
	return err
}

func (r *InstMemAccess) Format(w io.Writer) error {
	return formatf(w, "MEM_ACCESS %s 0x%x size=%d attr=0x%x", r.Kind, r.Address, r.Size, r.Attributes)
}

// InstMemContent is the data payload of the preceding InstMemAccess.
type InstMemContent struct {
	Data uint64
}

func (r *InstMemContent) Descriptor() Descriptor { return DescriptorInstMemContent }

func (r *InstMemContent) Pack(s *stfio.Stream) error {
	if err := writeDescriptor(s, r.Descriptor()); err != nil {
		return err
	}
	return s.WriteU64(r.Data)
}

func (r *InstMemContent) Unpack(s *stfio.Stream) error {
	var err error
	r.Data, err = s.ReadU64()
	return err
}

func (r *InstMemContent) Format(w io.Writer) error {
	return formatf(w, "MEM_CONTENT 0x%x", r.Data)
}

// BusMasterAccess is the non-core analogue of InstMemAccess, for
// DMA/GPU/PCIe/SRIO/ICN initiators. Must be immediately
// followed by BusMasterContent.
type BusMasterAccess struct {
	Address    uint64
	Size       uint16
	Attributes uint16
	Kind       MemAccessKind
	Initiator  BusMaster
}

func (r *BusMasterAccess) Descriptor() Descriptor { return DescriptorBusMasterAccess }

func (r *BusMasterAccess) Pack(s *stfio.Stream) error {
	if err := writeDescriptor(s, r.Descriptor()); err != nil {
		return err
	}
	if err := s.WriteU64(r.Address); err != nil {
		return err
	}
	if err := s.WriteU16(r.Size); err != nil {
		return err
	}
	if err := s.WriteU16(r.Attributes); err != nil {
		return err
	}
	if err := s.WriteU8(uint8(r.Kind)); err != nil {
		return err
	}
	return s.WriteU8(uint8(r.Initiator))
}

func (r *BusMasterAccess) Unpack(s *stfio.Stream) error {
	var err error
	if r.Address, err = s.ReadU64(); err != nil {
		return err
	}
	if r.Size, err = s.ReadU16(); err != nil {
		return err
	}
	if r.Attributes, err = s.ReadU16(); err != nil {
		return err
	}
	k, err := s.ReadU8()
	if err != nil {
		return err
	}
	r.Kind = MemAccessKind(k)
	i, err := s.ReadU8()
	r.Initiator = BusMaster(i)
	return err
}

func (r *BusMasterAccess) Format(w io.Writer) error {
	return formatf(w, "BUS_ACCESS %s %s 0x%x size=%d attr=0x%x", r.Initiator, r.Kind, r.Address, r.Size, r.Attributes)
}

// BusMasterContent is the data payload of the preceding
// BusMasterAccess.
type BusMasterContent struct {
	Data uint64
}

func (r *BusMasterContent) Descriptor() Descriptor { return DescriptorBusMasterContent }

func (r *BusMasterContent) Pack(s *stfio.Stream) error {
	if err := writeDescriptor(s, r.Descriptor()); err != nil {
		return err
	}
	return s.WriteU64(r.Data)
}

func (r *BusMasterContent) Unpack(s *stfio.Stream) error {
	var err error
	r.Data, err = s.ReadU64()
	return err
}

func (r *BusMasterContent) Format(w io.Writer) error {
	return formatf(w, "BUS_CONTENT 0x%x", r.Data)
}

// Event records an exception, interrupt, syscall, or mode change
//. May be immediately followed by EventPCTarget,
// except mode-change events, which never carry a target.
type Event struct {
	Type EventType
	Data []uint64
}

func (r *Event) Descriptor() Descriptor { return DescriptorEvent }

func (r *Event) Pack(s *stfio.Stream) error {
	if err := writeDescriptor(s, r.Descriptor()); err != nil {
		return err
	}
	if s.Event32 {
		if err := s.WriteU32(uint32(r.Type)); err != nil {
			return err
		}
	} else {
		if err := s.WriteU64(uint64(r.Type)); err != nil {
			return err
		}
	}
	return s.WriteU64Slice(r.Data, 1)
}

func (r *Event) Unpack(s *stfio.Stream) error {
	var t uint64
	if s.Event32 {
		v, err := s.ReadU32()
		if err != nil {
			return err
		}
		t = uint64(v)
	} else {
		v, err := s.ReadU64()
		if err != nil {
			return err
		}
		t = v
	}
	r.Type = EventType(t)
	var err error
	r.Data, err = s.ReadU64Slice(1)
	return err
}

func (r *Event) Format(w io.Writer) error {
	return formatf(w, "EVENT %s data=%v", r.Type, r.Data)
}

// EventPCTarget is the target address of a taken exception or
// interrupt's preceding Event.
type EventPCTarget struct {
	Addr uint64
}

func (r *EventPCTarget) Descriptor() Descriptor { return DescriptorEventPCTarget }

func (r *EventPCTarget) Pack(s *stfio.Stream) error {
	if err := writeDescriptor(s, r.Descriptor()); err != nil {
		return err
	}
	return s.WriteU64(r.Addr)
}

func (r *EventPCTarget) Unpack(s *stfio.Stream) error {
	var err error
	r.Addr, err = s.ReadU64()
	return err
}

func (r *EventPCTarget) Format(w io.Writer) error {
	return formatf(w, "EVENT_PC_TARGET 0x%x", r.Addr)
}

// InstPCTarget marks a taken branch's destination address.
type InstPCTarget struct {
	Addr uint64
}

func (r *InstPCTarget) Descriptor() Descriptor { return DescriptorInstPCTarget }

func (r *InstPCTarget) Pack(s *stfio.Stream) error {
	if err := writeDescriptor(s, r.Descriptor()); err != nil {
		return err
	}
	return s.WriteU64(r.Addr)
}

func (r *InstPCTarget) Unpack(s *stfio.Stream) error {
	var err error
	r.Addr, err = s.ReadU64()
	return err
}

func (r *InstPCTarget) Format(w io.Writer) error {
	return formatf(w, "PC_TARGET 0x%x", r.Addr)
}

// PTE is one page-table-walk entry.
type PTE struct {
	PA, Entry uint64
}

// PageTableWalk records the page-table entries visited while
// translating a virtual address.
type PageTableWalk struct {
	VA               uint64
	FirstAccessIndex uint64
	PageSize         uint32
	PTEs             []PTE
}

func (r *PageTableWalk) Descriptor() Descriptor { return DescriptorPageTableWalk }

func (r *PageTableWalk) Pack(s *stfio.Stream) error {
	if err := writeDescriptor(s, r.Descriptor()); err != nil {
		return err
	}
	if err := s.WriteU64(r.VA); err != nil {
		return err
	}
	if err := s.WriteU64(r.FirstAccessIndex); err != nil {
		return err
	}
	if err := s.WriteU32(r.PageSize); err != nil {
		return err
	}
	if err := s.WriteU8(uint8(len(r.PTEs))); err != nil {
		return err
	}
	for _, p := range r.PTEs {
		if err := s.WriteU64(p.PA); err != nil {
			return err
		}
		if err := s.WriteU64(p.Entry); err != nil {
			return err
		}
	}
	return nil
}

func (r *PageTableWalk) Unpack(s *stfio.Stream) error {
	var err error
	if r.VA, err = s.ReadU64(); err != nil {
		return err
	}
	if r.FirstAccessIndex, err = s.ReadU64(); err != nil {
		return err
	}
	if r.PageSize, err = s.ReadU32(); err != nil {
		return err
	}
	n, err := s.ReadU8()
	if err != nil {
		return err
	}
	r.PTEs = make([]PTE, n)
	for i := range r.PTEs {
		if r.PTEs[i].PA, err = s.ReadU64(); err != nil {
			return err
		}
		if r.PTEs[i].Entry, err = s.ReadU64(); err != nil {
			return err
		}
	}
	return nil
}

func (r *PageTableWalk) Format(w io.Writer) error {
	return formatf(w, "PAGE_TABLE_WALK va=0x%x page_size=%d ptes=%d", r.VA, r.PageSize, len(r.PTEs))
}

// InstMicroOp is an opaque micro-op pass-through record: it is
// reassembled into the instruction's record map with no effect on
// the materialised fields.
type InstMicroOp struct {
	Payload []byte
}

func (r *InstMicroOp) Descriptor() Descriptor { return DescriptorInstMicroOp }

func (r *InstMicroOp) Pack(s *stfio.Stream) error {
	if err := writeDescriptor(s, r.Descriptor()); err != nil {
		return err
	}
	return s.WriteString(string(r.Payload), 4)
}

func (r *InstMicroOp) Unpack(s *stfio.Stream) error {
	str, err := s.ReadString(4)
	r.Payload = []byte(str)
	return err
}

func (r *InstMicroOp) Format(w io.Writer) error {
	return formatf(w, "MICRO_OP %d bytes", len(r.Payload))
}

// InstReadyReg is an opaque ready-register pass-through record,
// identical in treatment to InstMicroOp.
type InstReadyReg struct {
	Payload []byte
}

func (r *InstReadyReg) Descriptor() Descriptor { return DescriptorInstReadyReg }

func (r *InstReadyReg) Pack(s *stfio.Stream) error {
	if err := writeDescriptor(s, r.Descriptor()); err != nil {
		return err
	}
	return s.WriteString(string(r.Payload), 4)
}

func (r *InstReadyReg) Unpack(s *stfio.Stream) error {
	str, err := s.ReadString(4)
	r.Payload = []byte(str)
	return err
}

func (r *InstReadyReg) Format(w io.Writer) error {
	return formatf(w, "READY_REG %d bytes", len(r.Payload))
}

// InstOpcode16 is a 16-bit compressed-form opcode; a marker record
// that closes the instruction group it terminates.
type InstOpcode16 struct {
	Opcode uint16
}

func (r *InstOpcode16) Descriptor() Descriptor { return DescriptorInstOpcode16 }

func (r *InstOpcode16) Pack(s *stfio.Stream) error {
	if err := writeDescriptor(s, r.Descriptor()); err != nil {
		return err
	}
	return s.WriteU16(r.Opcode)
}

func (r *InstOpcode16) Unpack(s *stfio.Stream) error {
	var err error
	r.Opcode, err = s.ReadU16()
	return err
}

func (r *InstOpcode16) Format(w io.Writer) error {
	return formatf(w, "OPCODE16 0x%04x", r.Opcode)
}

// InstOpcode32 is a 32-bit opcode; a marker record that closes the
// instruction group it terminates.
type InstOpcode32 struct {
	Opcode uint32
}

func (r *InstOpcode32) Descriptor() Descriptor { return DescriptorInstOpcode32 }

func (r *InstOpcode32) Pack(s *stfio.Stream) error {
	if err := writeDescriptor(s, r.Descriptor()); err != nil {
		return err
	}
	return s.WriteU32(r.Opcode)
}

func (r *InstOpcode32) Unpack(s *stfio.Stream) error {
	var err error
	r.Opcode, err = s.ReadU32()
	return err
}

func (r *InstOpcode32) Format(w io.Writer) error {
	return formatf(w, "OPCODE32 0x%08x", r.Opcode)
}
