// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package stfproto implements the header protocol and the
// post-header writer state machine: the two pieces
// that turn a raw stf.Record stream into a well-formed trace.
package stfproto

import (
	"io"

	"github.com/stf-trace/stf"
	"github.com/stf-trace/stf/stfio"
)

// Header is the fully parsed header block of a trace.
type Header struct {
	Comments   []*stf.Comment
	ISA        stf.ISA
	IEM        stf.IEM
	Extension  string // from ISAExtended, if present
	ForcePC    uint64
	TraceInfos []*stf.TraceInfo
	Features   stf.TraceFeature
	ProcessID  *stf.ProcessIDExt // optional
	VLen       uint32            // 0 if VLenConfig absent
}

// ReadHeader reads and validates the ordered header block: Identifier, Version, zero or more Comments, ISA, InstIEM,
// optional ISAExtended, one or more TraceInfo, exactly one
// TraceInfoFeature, ForcePC, optional ProcessIDExt, optional
// VLenConfig, EndOfHeader. Any other order is a protocol violation.
// It configures s.Event32 from the parsed features before returning.
func ReadHeader(s *stfio.Stream) (*Header, error) {
	id := &stf.Identifier{}
	d, err := s.ReadU8()
	if err == nil && stf.Descriptor(d) != stf.DescriptorIdentifier {
		return nil, stf.Protocolf("not an STF file")
	}
	if err == nil {
		err = id.Unpack(s)
	}
	if err != nil {
		if err == stfio.ErrEOF || err == io.ErrUnexpectedEOF {
			return nil, stf.WrapProtocol(err, "incomplete header: missing identifier")
		}
		return nil, err
	}
	if !id.Valid() {
		return nil, stf.Protocolf("not an STF file")
	}

	verRec, err := stf.ReadRecord(s)
	if err != nil {
		if stf.IsEOF(err) {
			return nil, stf.WrapProtocol(err, "incomplete header: missing version")
		}
		return nil, err
	}
	ver, ok := verRec.(*stf.Version)
	if !ok {
		return nil, stf.Protocolf("expected Version record, got descriptor %d", verRec.Descriptor())
	}
	if !ver.Compatible() {
		return nil, stf.Protocolf("incompatible version %d.%d", ver.Major, ver.Minor)
	}

	h := &Header{}
	haveISA, haveIEM, haveForcePC, haveFeature := false, false, false, false

	// phase tracks progress through the required ordering (comments,
	// ISA, InstIEM, TraceInfo, TraceInfoFeature, ForcePC, optional
	// tail): each record kind advances phase to its own stage and
	// rejects a kind whose stage has already passed, so e.g. a ForcePC
	// before TraceInfoFeature (or a second ISA) is a protocol violation
	// rather than silently accepted.
	const (
		phaseComments = iota
		phaseISA
		phaseIEM
		phaseTraceInfo
		phaseFeature
		phaseForcePC
		phaseTail
	)
	phase := phaseComments

	for {
		rec, err := stf.ReadRecord(s)
		if err != nil {
			if stf.IsEOF(err) {
				return nil, stf.Protocolf("incomplete header: missing end of header")
			}
			return nil, err
		}
		switch v := rec.(type) {
		case *stf.Comment:
			// Comments form one block ahead of every other header record.
			if phase > phaseComments {
				return nil, stf.Protocolf("Comment record out of order in header")
			}
			h.Comments = append(h.Comments, v)
		case *stf.ISARecord:
			if phase > phaseISA {
				return nil, stf.Protocolf("ISA record out of order in header")
			}
			phase = phaseISA
			if haveISA {
				return nil, stf.Protocolf("duplicate ISA record in header")
			}
			h.ISA, haveISA = v.ISA, true
		case *stf.InstIEM:
			if phase > phaseIEM {
				return nil, stf.Protocolf("InstIEM record out of order in header")
			}
			phase = phaseIEM
			if haveIEM {
				return nil, stf.Protocolf("duplicate InstIEM record in header")
			}
			h.IEM, haveIEM = v.IEM, true
		case *stf.ISAExtendedRecord:
			if phase > phaseIEM {
				return nil, stf.Protocolf("ISAExtended record out of order in header")
			}
			phase = phaseIEM
			h.Extension = v.Extension
		case *stf.TraceInfo:
			if phase > phaseTraceInfo {
				return nil, stf.Protocolf("TraceInfo record out of order in header")
			}
			phase = phaseTraceInfo
			h.TraceInfos = append(h.TraceInfos, v)
		case *stf.TraceInfoFeature:
			if phase > phaseFeature {
				return nil, stf.Protocolf("TraceInfoFeature record out of order in header")
			}
			phase = phaseFeature
			if haveFeature {
				return nil, stf.Protocolf("duplicate TraceInfoFeature record in header")
			}
			h.Features, haveFeature = v.Features, true
			s.Event32 = !h.Features.Has(stf.FeatureEvent64)
		case *stf.ForcePC:
			if phase > phaseForcePC {
				return nil, stf.Protocolf("ForcePC record out of order in header")
			}
			phase = phaseForcePC
			if haveForcePC {
				return nil, stf.Protocolf("duplicate ForcePC record in header")
			}
			h.ForcePC, haveForcePC = v.Addr, true
		case *stf.ProcessIDExt:
			if phase > phaseTail {
				return nil, stf.Protocolf("ProcessIDExt record out of order in header")
			}
			phase = phaseTail
			h.ProcessID = v
		case *stf.VLenConfig:
			if phase > phaseTail {
				return nil, stf.Protocolf("VLenConfig record out of order in header")
			}
			phase = phaseTail
			h.VLen = v.VLen
			s.VLen = v.VLen
		case *stf.EndOfHeader:
			if !haveISA || !haveIEM || !haveForcePC || !haveFeature || len(h.TraceInfos) == 0 {
				return nil, stf.Protocolf("incomplete header: missing required record")
			}
			return h, nil
		default:
			return nil, stf.Protocolf("unexpected record in header: descriptor %d", rec.Descriptor())
		}
	}
}

// HeaderWriter incrementally emits a header block, enforcing its
// record ordering via a per-block "written" latch and a staged
// flush/finalize phase machine.
type HeaderWriter struct {
	s *stfio.Stream

	identWritten bool

	comments   []*stf.Comment
	isa        *stf.ISARecord
	iem        *stf.InstIEM
	ext        *stf.ISAExtendedRecord
	forcePC    *stf.ForcePC
	traceInfos []*stf.TraceInfo
	feature    *stf.TraceInfoFeature
	processID  *stf.ProcessIDExt
	vlen       *stf.VLenConfig

	commentsWritten, isaWritten, iemWritten, extWritten bool
	forcePCWritten, traceInfoWritten, featureWritten     bool
	processIDWritten, vlenWritten, finalized             bool
}

// NewHeaderWriter writes Identifier and Version immediately and
// returns a writer for the remaining, order-sensitive blocks.
func NewHeaderWriter(s *stfio.Stream) (*HeaderWriter, error) {
	if err := stf.NewIdentifier().Pack(s); err != nil {
		return nil, err
	}
	ver := &stf.Version{Major: stf.CurrentMajor, Minor: stf.CurrentMinor}
	if err := ver.Pack(s); err != nil {
		return nil, err
	}
	return &HeaderWriter{s: s, identWritten: true}, nil
}

func (h *HeaderWriter) AddComment(text string) { h.comments = append(h.comments, &stf.Comment{Text: text}) }
func (h *HeaderWriter) SetISA(isa stf.ISA)     { h.isa = &stf.ISARecord{ISA: isa} }
func (h *HeaderWriter) SetIEM(iem stf.IEM)     { h.iem = &stf.InstIEM{IEM: iem} }
func (h *HeaderWriter) SetExtension(ext string) { h.ext = &stf.ISAExtendedRecord{Extension: ext} }
func (h *HeaderWriter) SetForcePC(pc uint64)    { h.forcePC = &stf.ForcePC{Addr: pc} }
func (h *HeaderWriter) AddTraceInfo(ti *stf.TraceInfo) { h.traceInfos = append(h.traceInfos, ti) }
func (h *HeaderWriter) SetFeatures(f stf.TraceFeature) {
	h.feature = &stf.TraceInfoFeature{Features: f}
	h.s.Event32 = !f.Has(stf.FeatureEvent64)
}
func (h *HeaderWriter) SetProcessID(tgid, tid, asid uint32) {
	h.processID = &stf.ProcessIDExt{TGID: tgid, TID: tid, ASID: asid}
}
func (h *HeaderWriter) SetVLen(vlen uint32) {
	h.vlen = &stf.VLenConfig{VLen: vlen}
	h.s.VLen = vlen
}

// Flush emits every block whose content has been set and whose latch
// is clear, enforcing prerequisite ordering.
func (h *HeaderWriter) Flush() error {
	if !h.commentsWritten {
		for _, c := range h.comments {
			if err := c.Pack(h.s); err != nil {
				return err
			}
		}
		h.commentsWritten = true
	}
	if !h.isaWritten && h.isa != nil {
		if err := h.isa.Pack(h.s); err != nil {
			return err
		}
		h.isaWritten = true
	}
	if !h.iemWritten && h.iem != nil {
		if err := h.iem.Pack(h.s); err != nil {
			return err
		}
		h.iemWritten = true
	}
	if !h.extWritten && h.ext != nil {
		if !h.iemWritten {
			return stf.Protocolf("ISAExtended requires InstIEM already written")
		}
		if err := h.ext.Pack(h.s); err != nil {
			return err
		}
		h.extWritten = true
	}
	if !h.traceInfoWritten && len(h.traceInfos) > 0 {
		for _, ti := range h.traceInfos {
			if err := ti.Pack(h.s); err != nil {
				return err
			}
		}
		h.traceInfoWritten = true
	}
	if !h.featureWritten && h.feature != nil {
		if !h.traceInfoWritten {
			return stf.Protocolf("TraceInfoFeature requires TraceInfo already written")
		}
		if err := h.feature.Pack(h.s); err != nil {
			return err
		}
		h.featureWritten = true
	}
	if !h.forcePCWritten && h.forcePC != nil {
		if !h.traceInfoWritten || !h.featureWritten {
			return stf.Protocolf("ForcePC requires TraceInfo and TraceInfoFeature already written")
		}
		if err := h.forcePC.Pack(h.s); err != nil {
			return err
		}
		h.forcePCWritten = true
	}
	if !h.processIDWritten && h.processID != nil {
		if err := h.processID.Pack(h.s); err != nil {
			return err
		}
		h.processIDWritten = true
	}
	if !h.vlenWritten && h.vlen != nil {
		if err := h.vlen.Pack(h.s); err != nil {
			return err
		}
		h.vlenWritten = true
	}
	return nil
}

// Finalize flushes any unwritten blocks in order and emits
// EndOfHeader. The writer must have set ISA, IEM,
// ForcePC, at least one TraceInfo, and Features before calling this.
func (h *HeaderWriter) Finalize() error {
	if h.finalized {
		return stf.Protocolf("header already finalized")
	}
	if h.isa == nil || h.iem == nil || h.forcePC == nil || len(h.traceInfos) == 0 || h.feature == nil {
		return stf.Protocolf("cannot finalize header: missing required block")
	}
	if err := h.Flush(); err != nil {
		return err
	}
	if err := (&stf.EndOfHeader{}).Pack(h.s); err != nil {
		return err
	}
	h.finalized = true
	return nil
}
