// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stf

import (
	"fmt"
	"io"

	"github.com/stf-trace/stf/stfio"
)

// Record is the interface every record variant implements. Records
// are plain structs: Go's GC makes the pool (stfpool) and the record
// map's shared views unnecessary to model with reference counting.
type Record interface {
	// Descriptor returns this record's wire tag.
	Descriptor() Descriptor

	// Pack serialises the record to s.
	Pack(s *stfio.Stream) error

	// Unpack deserialises the record from s. The record's own zero
	// value is a valid receiver.
	Unpack(s *stfio.Stream) error

	// Format writes a human-readable, fixed-column representation
	// of the record.
	Format(w io.Writer) error
}

// writeDescriptor writes a record's one-byte descriptor tag ahead of
// its payload; every Pack implementation calls this first.
func writeDescriptor(s *stfio.Stream, d Descriptor) error {
	return s.WriteU8(uint8(d))
}

// readDescriptor reads the next one-byte descriptor tag. A clean EOF
// here (no bytes at all) is reported as KindEOF; anything else
// (including a short read) is KindCorrupt.
func readDescriptor(s *stfio.Stream) (Descriptor, error) {
	b, err := s.ReadU8()
	if err != nil {
		if err == stfio.ErrEOF {
			return 0, errf(KindEOF, "end of record stream")
		}
		return 0, wrapf(KindCorrupt, err, "reading record descriptor")
	}
	return Descriptor(b), nil
}

func formatf(w io.Writer, format string, args ...interface{}) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}
