// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stfio

import (
	"fmt"
	"os"
	"os/exec"
)

// openPiped wraps a byte stream over a child decompressor/compressor
// process ("gzip -dc <path>", "xz -dc <path>", or the
// compression-level parameterised symmetric write commands). level is
// only consulted on the write side.
func openPiped(path string, mode Mode, tool string, level string) (*Opened, error) {
	if mode == ModeRead {
		return openPipedRead(tool, "-dc", path)
	}
	return openPipedWrite(tool, level, path)
}

func openPipedRead(tool string, args ...string) (*Opened, error) {
	cmd := exec.Command(tool, args...)
	cmd.Stderr = os.Stderr
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("stfio: starting %s: %w", tool, err)
	}
	return &Opened{
		Stream: NewReadStream(out),
		closer: cmd.Wait,
	}, nil
}

func openPipedWrite(tool string, level string, path string) (*Opened, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	cmd := exec.Command(tool, "-c", level)
	cmd.Stdout = f
	cmd.Stderr = os.Stderr
	in, err := cmd.StdinPipe()
	if err != nil {
		f.Close()
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		f.Close()
		return nil, fmt.Errorf("stfio: starting %s: %w", tool, err)
	}
	return &Opened{
		Stream: NewWriteStream(in),
		closer: func() error {
			cerr := in.Close()
			werr := cmd.Wait()
			ferr := f.Close()
			if cerr != nil {
				return cerr
			}
			if werr != nil {
				return werr
			}
			return ferr
		},
	}, nil
}

// openShell opens a read-only stream piped through "sh <path>", used
// for the legacy ".sh" container.
func openShell(path string) (*Opened, error) {
	return openPipedRead("sh", path)
}
