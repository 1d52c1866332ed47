// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stfproto

import (
	"bytes"
	"testing"

	"github.com/stf-trace/stf"
	"github.com/stf-trace/stf/stfio"
)

func writeBasicHeader(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	ws := stfio.NewWriteStream(&buf)
	hw, err := NewHeaderWriter(ws)
	if err != nil {
		t.Fatalf("NewHeaderWriter: %v", err)
	}
	hw.SetISA(stf.ISARISCV)
	hw.SetIEM(stf.IEMRV64)
	hw.AddTraceInfo(&stf.TraceInfo{Gen: stf.GenDromajo, Major: 1, Minor: 2, MinorMinor: 0, Comment: "Trace from Dromajo"})
	hw.SetFeatures(stf.FeatureRV64 | stf.FeaturePhysicalAddress)
	hw.SetForcePC(0x1000)
	if err := hw.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	return &buf
}

func TestHeaderRoundTrip(t *testing.T) {
	buf := writeBasicHeader(t)
	rs := stfio.NewReadStream(buf)
	hdr, err := ReadHeader(rs)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if hdr.ISA != stf.ISARISCV || hdr.IEM != stf.IEMRV64 || hdr.ForcePC != 0x1000 {
		t.Errorf("got %+v", hdr)
	}
	if len(hdr.TraceInfos) != 1 || hdr.TraceInfos[0].Gen != stf.GenDromajo {
		t.Errorf("trace info: got %+v", hdr.TraceInfos)
	}
	if hdr.Features&stf.FeatureRV64 == 0 {
		t.Errorf("missing RV64 feature")
	}
}

func TestHeaderRejectsBadIdentifier(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("XXX")
	rs := stfio.NewReadStream(&buf)
	_, err := ReadHeader(rs)
	e, ok := err.(*stf.Error)
	if !ok || e.Kind != stf.KindProtocol {
		t.Fatalf("got %v, want protocol error", err)
	}
}

func TestHeaderRejectsIncompatibleVersion(t *testing.T) {
	var buf bytes.Buffer
	ws := stfio.NewWriteStream(&buf)
	stf.NewIdentifier().Pack(ws)
	(&stf.Version{Major: stf.CurrentMajor + 1, Minor: 0}).Pack(ws)
	rs := stfio.NewReadStream(&buf)
	_, err := ReadHeader(rs)
	if err == nil {
		t.Fatal("expected incompatible version error")
	}
}

func TestHeaderFeatureRequiresTraceInfo(t *testing.T) {
	var buf bytes.Buffer
	ws := stfio.NewWriteStream(&buf)
	hw, err := NewHeaderWriter(ws)
	if err != nil {
		t.Fatal(err)
	}
	hw.SetISA(stf.ISARISCV)
	hw.SetIEM(stf.IEMRV64)
	hw.SetForcePC(0)
	hw.SetFeatures(stf.FeatureRV64)
	if err := hw.Finalize(); err == nil {
		t.Fatal("expected error: TraceInfoFeature without TraceInfo")
	}
}
