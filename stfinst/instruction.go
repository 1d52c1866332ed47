// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package stfinst implements the instruction materialiser: reassembly of the flat record stream into per-instruction
// objects, the PC tracker, the user-mode-only filter with
// syscall-to-nop rewriting, and the windowed forward iterator.
package stfinst

import "github.com/stf-trace/stf"

// MemOp pairs an access record with its content.
type MemOp struct {
	Access  *stf.InstMemAccess
	Content *stf.InstMemContent
}

// BusOp is the non-core analogue of MemOp.
type BusOp struct {
	Access  *stf.BusMasterAccess
	Content *stf.BusMasterContent
}

// EventOp pairs an event with its optional PC target.
type EventOp struct {
	Event  *stf.Event
	Target *stf.EventPCTarget
}

// Instruction is one reassembled instruction.
type Instruction struct {
	PC         uint64
	Opcode     uint32
	OpcodeSize int // 2 or 4
	IEM        stf.IEM

	TGID, TID, ASID uint32

	MarkerIndex uint64

	SourceRegs []*stf.InstReg
	DestRegs   []*stf.InstReg
	StateRegs  []*stf.InstReg

	MemReads  []MemOp
	MemWrites []MemOp
	BusReads  []BusOp
	BusWrites []BusOp

	Events []EventOp

	TakenBranch   bool
	BranchTarget  uint64
	ChangeOfFlow  bool

	IsFP        bool
	IsLoad      bool
	IsStore     bool
	IsSyscall   bool
	IsFault     bool
	IsInterrupt bool

	// Skipped marks an instruction materialised only to advance the
	// stream while user-mode-only filtering is active.
	Skipped bool
	Valid   bool

	// RecordMap holds records that do not affect the reassembled
	// fields (comments, micro-op, ready-reg, page-table-walk, bus
	// pass-through), keyed by descriptor, in arrival order.
	RecordMap map[stf.Descriptor][]stf.Record
}

func newInstruction() *Instruction {
	return &Instruction{RecordMap: make(map[stf.Descriptor][]stf.Record)}
}

func (in *Instruction) reset() {
	in.PC, in.Opcode, in.OpcodeSize = 0, 0, 0
	in.SourceRegs, in.DestRegs, in.StateRegs = nil, nil, nil
	in.MemReads, in.MemWrites, in.BusReads, in.BusWrites = nil, nil, nil, nil
	in.Events = nil
	in.TakenBranch, in.BranchTarget, in.ChangeOfFlow = false, 0, false
	in.IsFP, in.IsLoad, in.IsStore = false, false, false
	in.IsSyscall, in.IsFault, in.IsInterrupt = false, false, false
	in.Skipped, in.Valid = false, false
	for k := range in.RecordMap {
		delete(in.RecordMap, k)
	}
}

func (in *Instruction) remember(rec stf.Record) {
	d := rec.Descriptor()
	in.RecordMap[d] = append(in.RecordMap[d], rec)
}
