// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stfreg

import (
	"errors"
	"testing"

	"github.com/stf-trace/stf"
)

func TestFFLAGSFRMComposeThroughFCSR(t *testing.T) {
	b := NewRISCVBank(stf.IEMRV64)
	fflags := RegisterKey{Class: stf.RegClassCSR, Num: csrFFLAGS}
	frm := RegisterKey{Class: stf.RegClassCSR, Num: csrFRM}
	fcsr := RegisterKey{Class: stf.RegClassCSR, Num: csrFCSR}

	if !b.Update(fflags, 0x1f) {
		t.Fatal("update fflags failed")
	}
	got, err := b.Read(fcsr)
	if err != nil {
		t.Fatal(err)
	}
	if got != 0x1f {
		t.Errorf("fcsr after fflags update = 0x%x, want 0x1f", got)
	}

	if !b.Update(fcsr, 0xff) {
		t.Fatal("update fcsr failed")
	}
	gotFRM, err := b.Read(frm)
	if err != nil {
		t.Fatal(err)
	}
	if gotFRM != 0x7 {
		t.Errorf("frm after fcsr=0xff = 0x%x, want 0x7 (top 3 bits)", gotFRM)
	}
}

func TestRV32CounterHighHalf(t *testing.T) {
	b := NewRISCVBank(stf.IEMRV32)
	cycle := RegisterKey{Class: stf.RegClassCSR, Num: csrCYCLE}
	cycleh := RegisterKey{Class: stf.RegClassCSR, Num: csrCYCLEH}

	b.Update(cycle, 0x1_0000_0002)
	got, err := b.Read(cycleh)
	if err != nil {
		t.Fatal(err)
	}
	if got != 1 {
		t.Errorf("cycleh = %d, want 1", got)
	}
}

func TestRV64NoHighHalfAlias(t *testing.T) {
	b := NewRISCVBank(stf.IEMRV64)
	cycleh := RegisterKey{Class: stf.RegClassCSR, Num: csrCYCLEH}
	_, err := b.Read(cycleh)
	if err == nil {
		t.Fatal("expected read of unregistered CYCLEH on RV64 to fail")
	}
	var stfErr *stf.Error
	if !errors.As(err, &stfErr) || stfErr.Kind != stf.KindRegNotFound {
		t.Fatalf("expected KindRegNotFound, got %v", err)
	}
}

func TestUnknownCSRName(t *testing.T) {
	b := NewRISCVBank(stf.IEMRV64)
	k := RegisterKey{Class: stf.RegClassCSR, Num: 0x999}
	if got, want := b.Name(k), "REG_CSR_UNK_999"; got != want {
		t.Errorf("Name = %q, want %q", got, want)
	}
}

func TestUpdateUnregisteredNonCSRIgnored(t *testing.T) {
	b := NewRISCVBank(stf.IEMRV64)
	k := RegisterKey{Class: stf.RegClassVector, Num: 9999}
	if b.Update(k, 1) {
		t.Fatal("expected Update of unregistered vector register to return false")
	}
	if _, err := b.Read(k); err == nil {
		t.Fatal("expected Read of unregistered vector register to error")
	}
}

func TestReadUnregisteredIntegerErrors(t *testing.T) {
	b := newBank() // empty bank, x0 not defined
	_, err := b.Read(RegisterKey{Class: stf.RegClassInteger, Num: 0})
	if err == nil {
		t.Fatal("expected error reading unregistered register")
	}
	e, ok := err.(*stf.Error)
	if !ok || e.Kind != stf.KindRegNotFound {
		t.Fatalf("got %v, want KindRegNotFound", err)
	}
}
