// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stfio

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// Container identifies which concrete transport a Stream was opened
// over, as determined by filename suffix.
type Container int

const (
	ContainerPlain Container = iota
	ContainerGzip
	ContainerXZ
	ContainerShell
	ContainerChunked
	ContainerStdio
)

// Opened bundles a Stream with the resources needed to Close it.
type Opened struct {
	*Stream
	Container Container

	// WriteMarker and ReadMarker are the marker-crossing notification
	// targets for this stream (see WriteMarkerSink/ReadMarkerSink):
	// the chunked container's own ChunkedWriter/ChunkedReader for
	// ContainerChunked, or the embedded Stream itself for every other
	// container (which has no separate chunk bookkeeping to do).
	// stfproto.WriterState and stfinst.Materialiser should be wired to
	// whichever of these matches their direction via SetMarkerSink so
	// that chunk flushing/seeking actually happens.
	WriteMarker WriteMarkerSink
	ReadMarker  ReadMarkerSink

	closer func() error
}

// Close releases any process or file resources backing the stream.
// For piped streams this waits for the child process; for chunked
// streams (write side) this flushes the final chunk and backpatches
// the trailer (see ChunkedWriter.Close).
func (o *Opened) Close() error {
	unregister(o)
	if o.closer != nil {
		return o.closer()
	}
	return nil
}

// containerForPath selects a container from a file's suffix.
func containerForPath(path string) Container {
	switch {
	case path == "-":
		return ContainerStdio
	case strings.HasSuffix(path, ".zstf"):
		return ContainerChunked
	case strings.HasSuffix(path, ".stf.gz"):
		return ContainerGzip
	case strings.HasSuffix(path, ".stf.xz"):
		return ContainerXZ
	case strings.HasSuffix(path, ".sh"):
		return ContainerShell
	default:
		return ContainerPlain
	}
}

// Open opens path for the given mode, dispatching on its suffix to a
// plain file, a piped external (de)compressor, or a chunked ZSTD
// stream. The returned Opened is registered in the process-wide
// open-stream registry, whose members CloseAllOpenStreams closes.
func Open(path string, mode Mode) (*Opened, error) {
	c := containerForPath(path)

	var o *Opened
	var err error
	switch c {
	case ContainerStdio:
		o, err = openStdio(mode)
	case ContainerChunked:
		o, err = openChunked(path, mode)
	case ContainerGzip:
		o, err = openPiped(path, mode, "gzip", "-1")
	case ContainerXZ:
		o, err = openPiped(path, mode, "xz", "-1")
	case ContainerShell:
		if mode != ModeRead {
			return nil, fmt.Errorf("stfio: %s: .sh containers are read-only", path)
		}
		o, err = openShell(path)
	default:
		o, err = openPlain(path, mode)
	}
	if err != nil {
		return nil, err
	}
	o.Container = c
	if o.WriteMarker == nil {
		o.WriteMarker = o.Stream
	}
	if o.ReadMarker == nil {
		o.ReadMarker = o.Stream
	}
	register(o)
	return o, nil
}

func openStdio(mode Mode) (*Opened, error) {
	if mode == ModeRead {
		return &Opened{Stream: NewReadStream(os.Stdin)}, nil
	}
	return &Opened{Stream: NewWriteStream(os.Stdout)}, nil
}

func openPlain(path string, mode Mode) (*Opened, error) {
	if mode == ModeRead {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		return &Opened{Stream: NewReadStream(f), closer: f.Close}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &Opened{Stream: NewWriteStream(f), closer: f.Close}, nil
}

// --- process-wide open-stream registry ---
//
// Exists only so that a chunked writer's trailer gets flushed on an
// abnormal exit. Every Opened stream registers itself here and
// CloseAllOpenStreams closes whatever is still open. No exit handler is
// installed: nothing in this package calls CloseAllOpenStreams.

var (
	registryMu   sync.Mutex
	registryOpen = map[*Opened]struct{}{}
)

func register(o *Opened) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registryOpen[o] = struct{}{}
}

func unregister(o *Opened) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(registryOpen, o)
}

// CloseAllOpenStreams closes every still-registered stream. Callers
// that install their own process-exit handling (e.g. via
// os/signal.Notify) should invoke this before terminating so that
// compressed traces do not truncate; it is not installed
// automatically because Go programs have no implicit atexit hook.
func CloseAllOpenStreams() {
	registryMu.Lock()
	open := make([]*Opened, 0, len(registryOpen))
	for o := range registryOpen {
		open = append(open, o)
	}
	registryMu.Unlock()
	for _, o := range open {
		_ = o.Close()
	}
}

var _ io.Closer = (*Opened)(nil)
