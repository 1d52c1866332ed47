// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package stfio implements the STF byte stream abstraction: the
// bidirectional, little-endian scalar/array/string codec that every
// record variant packs and unpacks through, along with the concrete
// stream containers (plain file, piped external decompressor, chunked
// ZSTD) that the codec is transparent to.
package stfio

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Mode selects read or write access when opening a stream.
type Mode int

const (
	ModeRead Mode = iota
	ModeWrite
)

// Stream is the bidirectional serialisation primitive every record's
// Pack/Unpack method is written against, so the same record code
// works unmodified whether the
// underlying container is a plain file, a piped decompressor, or a
// chunked ZSTD stream.
//
// Stream also carries two pieces of decode/encode context that a
// handful of record variants need: the current vlen (vector register
// length in bits) and whether events are packed into 32 bits on the
// wire. It carries no PC tracker; stfinst.Materialiser and
// stfproto.WriterState each keep their own.
type Stream struct {
	r   io.Reader
	w   io.Writer
	ord binary.ByteOrder

	// VLen is the current vector register length in bits. Must be
	// set before any vector InstReg operand is packed/unpacked.
	VLen uint32

	// Event32 reports whether Event.Type is packed into 32 bits
	// (the default) rather than 64 (STF_CONTAIN_EVENT64).
	Event32 bool

	// scratch is a reusable small buffer for scalar encode/decode,
	// avoiding an allocation per field.
	scratch [8]byte

	// markerCount is incremented by the caller (writer/materialiser)
	// each time a marker record (InstOpcode16/32) crosses the
	// stream; exposed so the chunked container and random-access
	// index can count markers without re-parsing records.
	markerCount uint64
}

// NewReadStream wraps r as a Stream open for reading.
func NewReadStream(r io.Reader) *Stream {
	return &Stream{r: r, ord: binary.LittleEndian, Event32: true}
}

// NewWriteStream wraps w as a Stream open for writing.
func NewWriteStream(w io.Writer) *Stream {
	return &Stream{w: w, ord: binary.LittleEndian, Event32: true}
}

// MarkerCount returns the number of marker records observed or
// written so far on this stream.
func (s *Stream) MarkerCount() uint64 { return s.markerCount }

// IncMarkerCount bumps the marker counter; called by the writer state
// machine and the materialiser whenever an InstOpcode16/32 crosses.
func (s *Stream) IncMarkerCount() { s.markerCount++ }

// WriteMarkerSink is notified every time a marker record (InstOpcode16/32)
// is written to the body of a trace, carrying the PC the following
// instruction will have. A chunked container uses this to know when
// to flush the chunk it is assembling and what start_pc to seed the
// next one with; *Stream's own implementation below just maintains
// the plain counter read back by MarkerCount.
type WriteMarkerSink interface {
	Marker(nextPC uint64) error
}

// ReadMarkerSink is notified every time a marker record is consumed
// from the body of a trace. A chunked container uses this to track
// its position within the chunk currently being decompressed;
// *Stream's own implementation below just maintains the plain
// counter read back by MarkerCount.
type ReadMarkerSink interface {
	MarkerCrossed()
}

// Marker implements WriteMarkerSink.
func (s *Stream) Marker(nextPC uint64) error {
	s.IncMarkerCount()
	return nil
}

// MarkerCrossed implements ReadMarkerSink.
func (s *Stream) MarkerCrossed() { s.IncMarkerCount() }

var (
	_ WriteMarkerSink = (*Stream)(nil)
	_ ReadMarkerSink  = (*Stream)(nil)
)

func (s *Stream) ReadU8() (uint8, error) {
	if _, err := io.ReadFull(s.r, s.scratch[:1]); err != nil {
		return 0, wrapEOF(err)
	}
	return s.scratch[0], nil
}

func (s *Stream) ReadU16() (uint16, error) {
	if _, err := io.ReadFull(s.r, s.scratch[:2]); err != nil {
		return 0, wrapEOF(err)
	}
	return s.ord.Uint16(s.scratch[:2]), nil
}

func (s *Stream) ReadU32() (uint32, error) {
	if _, err := io.ReadFull(s.r, s.scratch[:4]); err != nil {
		return 0, wrapEOF(err)
	}
	return s.ord.Uint32(s.scratch[:4]), nil
}

func (s *Stream) ReadU64() (uint64, error) {
	if _, err := io.ReadFull(s.r, s.scratch[:8]); err != nil {
		return 0, wrapEOF(err)
	}
	return s.ord.Uint64(s.scratch[:8]), nil
}

// ReadBytes reads exactly len(buf) bytes.
func (s *Stream) ReadBytes(buf []byte) error {
	_, err := io.ReadFull(s.r, buf)
	return wrapEOF(err)
}

// ReadString reads a length-prefixed UTF-8 string. width is the
// byte-width of the length prefix (1, 2, or 4).
func (s *Stream) ReadString(width int) (string, error) {
	n, err := s.readLen(width)
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	buf := make([]byte, n)
	if err := s.ReadBytes(buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// ReadU64Slice reads a length-prefixed sequence of u64 elements.
// width is the byte-width of the count prefix.
func (s *Stream) ReadU64Slice(width int) ([]uint64, error) {
	n, err := s.readLen(width)
	if err != nil {
		return nil, err
	}
	out := make([]uint64, n)
	for i := range out {
		v, err := s.ReadU64()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (s *Stream) readLen(width int) (int, error) {
	switch width {
	case 1:
		v, err := s.ReadU8()
		return int(v), err
	case 2:
		v, err := s.ReadU16()
		return int(v), err
	case 4:
		v, err := s.ReadU32()
		return int(v), err
	default:
		return 0, fmt.Errorf("stfio: invalid length-prefix width %d", width)
	}
}

func (s *Stream) WriteU8(v uint8) error {
	s.scratch[0] = v
	return s.writeRaw(s.scratch[:1])
}

func (s *Stream) WriteU16(v uint16) error {
	s.ord.PutUint16(s.scratch[:2], v)
	return s.writeRaw(s.scratch[:2])
}

func (s *Stream) WriteU32(v uint32) error {
	s.ord.PutUint32(s.scratch[:4], v)
	return s.writeRaw(s.scratch[:4])
}

func (s *Stream) WriteU64(v uint64) error {
	s.ord.PutUint64(s.scratch[:8], v)
	return s.writeRaw(s.scratch[:8])
}

func (s *Stream) WriteBytes(buf []byte) error {
	return s.writeRaw(buf)
}

// WriteString writes a length-prefixed UTF-8 string with the given
// length-prefix width (1, 2, or 4 bytes).
func (s *Stream) WriteString(str string, width int) error {
	if err := s.writeLen(len(str), width); err != nil {
		return err
	}
	if len(str) == 0 {
		return nil
	}
	return s.writeRaw([]byte(str))
}

// WriteU64Slice writes a length-prefixed sequence of u64 elements.
func (s *Stream) WriteU64Slice(vals []uint64, width int) error {
	if err := s.writeLen(len(vals), width); err != nil {
		return err
	}
	for _, v := range vals {
		if err := s.WriteU64(v); err != nil {
			return err
		}
	}
	return nil
}

func (s *Stream) writeLen(n int, width int) error {
	switch width {
	case 1:
		return s.WriteU8(uint8(n))
	case 2:
		return s.WriteU16(uint16(n))
	case 4:
		return s.WriteU32(uint32(n))
	default:
		return fmt.Errorf("stfio: invalid length-prefix width %d", width)
	}
}

func (s *Stream) writeRaw(buf []byte) error {
	_, err := s.w.Write(buf)
	return err
}

// ErrEOF is returned, unwrapped, when a read finds no bytes at all
// left in the stream. A read that gets some but not all of its bytes
// returns io.ErrUnexpectedEOF instead; errors.Is does not treat the
// two as equal. The Stream does not know record boundaries: deciding
// whether an ErrEOF fell between records or inside one is up to the
// record decoder (stf.ReadRecord).
var ErrEOF = io.EOF

func wrapEOF(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return err
	}
	return err
}
