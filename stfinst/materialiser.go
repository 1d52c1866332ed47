// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stfinst

import (
	"github.com/stf-trace/stf"
	"github.com/stf-trace/stf/stfio"
)

// NopOpcode is the architectural RISC-V nop (addi x0, x0, 0) used to
// rewrite a pending user syscall when user-mode-only filtering is
// active.
const NopOpcode uint32 = 0x00000013

// Config controls materialiser behavior.
type Config struct {
	// UserModeOnly enables skipping of supervisor/machine/hypervisor
	// instructions, surfacing only a nop for each user ecall boundary.
	UserModeOnly bool

	// FilterModeChange drops mode-change Event records instead of
	// appending them to the reassembled instruction.
	FilterModeChange bool

	// ForcePCOffset is added to a ForcePC record's address when
	// seeding next_pc.
	ForcePCOffset uint64
}

// Materialiser reassembles the flat record stream on s into
// Instructions.
type Materialiser struct {
	s      *stfio.Stream
	sink   stfio.ReadMarkerSink
	isa    stf.ISA
	iem    stf.IEM
	cfg    Config

	pc, nextPC uint64
	branchSet  bool // a branch/target record was seen this instruction

	tgid, tid, asid uint32

	markerCount uint64

	skipping           bool
	pendingSkip        bool
	pendingUserSyscall bool

	cur *Instruction
}

// New returns a Materialiser seeded from a parsed header: isa/iem/forcePC come from the header. tgid/tid/asid start at
// zero; call SetProcessID to seed them from the header's optional
// ProcessIDExt. The marker sink defaults to s itself; call
// SetMarkerSink to route marker crossings to a chunked container
// instead.
func New(s *stfio.Stream, isa stf.ISA, iem stf.IEM, forcePC uint64, cfg Config) *Materialiser {
	return &Materialiser{
		s:      s,
		sink:   s,
		isa:    isa,
		iem:    iem,
		cfg:    cfg,
		nextPC: forcePC,
		cur:    newInstruction(),
	}
}

// SetProcessID seeds the running process identity.
func (m *Materialiser) SetProcessID(tgid, tid, asid uint32) {
	m.tgid, m.tid, m.asid = tgid, tid, asid
}

// SetMarkerSink routes marker-crossing notifications to sink instead
// of s. Pass the *stfio.ChunkedReader from the same stfio.Open call
// (stfio.Opened.ReadMarker) when reading a chunked trace, so the
// reader's per-chunk marker count follows the records consumed.
// Window.SeekTo does not consult that count.
func (m *Materialiser) SetMarkerSink(sink stfio.ReadMarkerSink) {
	m.sink = sink
}

// Next reassembles and returns the next instruction, or an error
// satisfying stf.IsEOF at a clean end of stream. The returned
// Instruction is reused: the following call resets and refills it.
func (m *Materialiser) Next() (*Instruction, error) {
	for {
		in, err := m.nextRaw()
		if err != nil {
			return nil, err
		}
		if in.Skipped {
			continue // user-mode-only filtering: caller never sees skipped instructions
		}
		return in, nil
	}
}

// nextRaw reassembles exactly one instruction, including ones marked
// Skipped, which Next() filters out; exposing this lets tests observe
// the skip accounting directly.
func (m *Materialiser) nextRaw() (*Instruction, error) {
	m.cur.reset()
	var lastEvent *EventOp

	for {
		rec, err := stf.ReadRecord(m.s)
		if err != nil {
			return nil, err
		}

		switch v := rec.(type) {
		case *stf.InstReg:
			switch v.Kind {
			case stf.OperandSource:
				m.cur.SourceRegs = append(m.cur.SourceRegs, v)
			case stf.OperandDest:
				m.cur.DestRegs = append(m.cur.DestRegs, v)
			default:
				m.cur.StateRegs = append(m.cur.StateRegs, v)
			}
			if v.Class == stf.RegClassFloat {
				m.cur.IsFP = true
			}

		case *stf.InstMemAccess:
			contentRec, err := stf.ReadRecord(m.s)
			if err != nil {
				return nil, err
			}
			content, ok := contentRec.(*stf.InstMemContent)
			if !ok {
				return nil, stf.Protocolf("MEM_CONTENT must follow MEM_ACCESS")
			}
			op := MemOp{Access: v, Content: content}
			if v.Kind == stf.MemAccessWrite {
				m.cur.MemWrites = append(m.cur.MemWrites, op)
				m.cur.IsStore = true
			} else {
				m.cur.MemReads = append(m.cur.MemReads, op)
				m.cur.IsLoad = true
			}

		case *stf.BusMasterAccess:
			contentRec, err := stf.ReadRecord(m.s)
			if err != nil {
				return nil, err
			}
			content, ok := contentRec.(*stf.BusMasterContent)
			if !ok {
				return nil, stf.Protocolf("BUS_MASTER_CONTENT must follow BUS_MASTER_ACCESS")
			}
			op := BusOp{Access: v, Content: content}
			if v.Kind == stf.MemAccessWrite {
				m.cur.BusWrites = append(m.cur.BusWrites, op)
			} else {
				m.cur.BusReads = append(m.cur.BusReads, op)
			}

		case *stf.InstPCTarget:
			m.cur.TakenBranch = true
			m.cur.BranchTarget = v.Addr
			m.nextPC = v.Addr
			m.branchSet = true

		case *stf.Event:
			m.classifyEvent(v)
			if !(m.cfg.FilterModeChange && v.Type.IsModeChange()) {
				m.cur.Events = append(m.cur.Events, EventOp{Event: v})
				lastEvent = &m.cur.Events[len(m.cur.Events)-1]
			} else {
				lastEvent = nil
			}

		case *stf.EventPCTarget:
			if lastEvent != nil {
				lastEvent.Target = v
			}

		case *stf.ForcePC:
			m.nextPC = v.Addr + m.cfg.ForcePCOffset
			m.cur.ChangeOfFlow = true

		case *stf.ProcessIDExt:
			m.tgid, m.tid, m.asid = v.TGID, v.TID, v.ASID

		case *stf.InstIEM:
			if !m.isa.AllowsIEMChange() {
				return nil, stf.Protocolf("ISA %s does not allow mid-trace IEM changes", m.isa)
			}
			m.iem = v.IEM

		case *stf.InstOpcode16:
			m.finalize(uint32(v.Opcode), 2)
			return m.cur, nil

		case *stf.InstOpcode32:
			m.finalize(v.Opcode, 4)
			return m.cur, nil

		default:
			m.cur.remember(rec)
		}
	}
}

func (m *Materialiser) classifyEvent(e *stf.Event) {
	switch {
	case e.Type.IsModeChange():
		toUser := len(e.Data) > 0 && stf.ExecutionMode(e.Data[0]) == stf.ExecModeUser
		if m.cfg.UserModeOnly {
			if toUser {
				m.skipping = false
			} else {
				// Takes effect starting with the next instruction: the
				// instruction carrying this event (the one that leaves
				// user mode) is still materialised normally.
				m.pendingSkip = true
			}
		}
	case e.Type.IsInterrupt():
		m.cur.IsInterrupt = true
	case e.Type.IsSyscall():
		m.cur.IsSyscall = true
		if m.cfg.UserModeOnly && !m.skipping {
			m.pendingUserSyscall = true
		}
	case e.Type.IsFault():
		m.cur.IsFault = true
	}
}

// finalize sets the opcode/PC/IEM/process-identity/marker fields,
// applies the user-mode skip and pending-syscall rewrite, and marks
// the instruction valid.
func (m *Materialiser) finalize(opcode uint32, size int) {
	m.markerCount++
	m.cur.MarkerIndex = m.markerCount
	m.sink.MarkerCrossed()

	m.cur.PC = m.pc
	m.pc = m.nextPC
	if m.branchSet {
		m.branchSet = false
	} else {
		m.nextPC += uint64(size)
	}

	m.cur.Opcode = opcode
	m.cur.OpcodeSize = size
	m.cur.IEM = m.iem
	m.cur.TGID, m.cur.TID, m.cur.ASID = m.tgid, m.tid, m.asid

	if m.pendingUserSyscall {
		m.cur.Opcode = NopOpcode
		m.cur.OpcodeSize = 4
		m.cur.SourceRegs = []*stf.InstReg{{RegNum: 0, Kind: stf.OperandSource, Class: stf.RegClassInteger, Data: []uint64{0}}}
		m.cur.DestRegs = nil
		m.cur.StateRegs = nil
		m.cur.MemReads, m.cur.MemWrites = nil, nil
		m.cur.BusReads, m.cur.BusWrites = nil, nil
		m.cur.Events = nil
		m.cur.IsFP, m.cur.IsLoad, m.cur.IsStore = false, false, false
		m.cur.IsSyscall, m.cur.IsFault, m.cur.IsInterrupt = false, false, false
		m.cur.Skipped = false
		m.pendingUserSyscall = false
	} else {
		m.cur.Skipped = m.skipping
	}
	if m.pendingSkip {
		m.skipping = true
		m.pendingSkip = false
	}
	m.cur.Valid = true
}
