// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package stf implements the Simple Trace Format record codec: the
// closed set of typed records, their factory dispatch, and the
// header/writer protocol that holds them together.
package stf

import (
	"errors"
	"fmt"
)

// Kind distinguishes the categories of error this package raises.
// Rather than distinct exception types per failure mode, Go code
// tests these with errors.Is/errors.As against a single Error type.
type Kind int

const (
	// KindOther is an unclassified error (formatted message only).
	KindOther Kind = iota

	// KindInvalidDescriptor is raised by the factory or writer for
	// an unknown or out-of-range descriptor byte.
	KindInvalidDescriptor

	// KindEOF marks a normal end of stream at a record boundary.
	// It is not an error at that point; mid-record truncation is
	// instead reported as KindCorrupt.
	KindEOF

	// KindRegNotFound is raised by a read of an unregistered
	// register.
	KindRegNotFound

	// KindProtocol marks a header or writer-ordering protocol
	// violation: these are programmer errors, not
	// data errors.
	KindProtocol

	// KindCorrupt marks malformed on-disk data: a truncated record,
	// an inconsistent chunk trailer, an incompatible version, etc.
	KindCorrupt
)

func (k Kind) String() string {
	switch k {
	case KindInvalidDescriptor:
		return "invalid descriptor"
	case KindEOF:
		return "eof"
	case KindRegNotFound:
		return "register not found"
	case KindProtocol:
		return "protocol violation"
	case KindCorrupt:
		return "corrupt trace"
	default:
		return "error"
	}
}

// Error is the single error type used throughout the stf packages. It
// carries a formatted message and a Kind so callers can
// errors.As/errors.Is to distinguish error categories.
type Error struct {
	Kind Kind
	Msg  string
	Err  error // wrapped cause, if any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("stf: %s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("stf: %s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func errf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func wrapf(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// RegNotFoundf builds a KindRegNotFound error.
func RegNotFoundf(format string, args ...interface{}) *Error {
	return errf(KindRegNotFound, format, args...)
}

// Protocolf builds a KindProtocol error: a header or writer-ordering
// violation.
func Protocolf(format string, args ...interface{}) *Error {
	return errf(KindProtocol, format, args...)
}

// WrapProtocol builds a KindProtocol error wrapping err, used when an
// EOF arrives somewhere the header/writer protocol requires more data.
func WrapProtocol(err error, format string, args ...interface{}) *Error {
	return wrapf(KindProtocol, err, format, args...)
}

// IsEOF reports whether err is (or wraps) a clean end-of-stream
// condition as raised by record decoding at a record boundary.
func IsEOF(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindEOF
}
