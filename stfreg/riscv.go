// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stfreg

import (
	"fmt"

	"github.com/stf-trace/stf"
)

// NewRISCVBank constructs the register bank for a RISC-V trace: x0-x31, f0-f31, the privileged CSRs, PMP configuration and
// address CSRs, the counters and (when iem is RV32) their mapped high
// halves, and FFLAGS/FRM mapped inside FCSR.
//
// Field widths and shifts follow the RISC-V privileged architecture's
// bit layout for FCSR, and standard RV32 counter/counterh pairing.
func NewRISCVBank(iem stf.IEM) *Bank {
	b := newBank()

	for i := 0; i < 32; i++ {
		b.defineSimple(intReg(i), fmt.Sprintf("x%d", i))
	}
	for i := 0; i < 32; i++ {
		b.defineSimple(fpReg(i), fmt.Sprintf("f%d", i))
	}

	for name, num := range riscvCSRs {
		b.defineSimple(csrReg(num), name)
	}

	fcsr := csrReg(csrFCSR)
	b.defineSimple(fcsr, "fcsr")
	// FFLAGS occupies FCSR[4:0], FRM occupies FCSR[7:5].
	b.defineMapped(csrReg(csrFFLAGS), "fflags", fcsr, 0x1f, 0)
	b.defineMapped(csrReg(csrFRM), "frm", fcsr, 0x7, 5)

	addCounter := func(name string, num, numH uint32) {
		k := csrReg(num)
		b.defineSimple(k, name)
		if iem == stf.IEMRV32 {
			b.defineMapped(csrReg(numH), name+"h", k, 0xFFFFFFFF, 32)
		}
	}
	addCounter("cycle", csrCYCLE, csrCYCLEH)
	addCounter("time", csrTIME, csrTIMEH)
	addCounter("instret", csrINSTRET, csrINSTRETH)
	addCounter("mcycle", csrMCYCLE, csrMCYCLEH)
	addCounter("minstret", csrMINSTRET, csrMINSTRETH)

	return b
}

func intReg(num int) RegisterKey  { return RegisterKey{Class: stf.RegClassInteger, Num: uint16(num)} }
func fpReg(num int) RegisterKey   { return RegisterKey{Class: stf.RegClassFloat, Num: uint16(num)} }
func csrReg(num uint32) RegisterKey { return RegisterKey{Class: stf.RegClassCSR, Num: uint16(num)} }

// A representative subset of the RISC-V privileged CSR space; the full CSR
// address map is architecturally defined and can be extended here
// without touching the bank machinery.
const (
	csrFFLAGS   = 0x001
	csrFRM      = 0x002
	csrFCSR     = 0x003
	csrCYCLE    = 0xc00
	csrTIME     = 0xc01
	csrINSTRET  = 0xc02
	csrCYCLEH   = 0xc80
	csrTIMEH    = 0xc81
	csrINSTRETH = 0xc82
	csrMCYCLE    = 0xb00
	csrMINSTRET  = 0xb02
	csrMCYCLEH   = 0xb80
	csrMINSTRETH = 0xb82
)

var riscvCSRs = map[string]uint32{
	"sstatus":    0x100,
	"sie":        0x104,
	"stvec":      0x105,
	"scounteren": 0x106,
	"sscratch":   0x140,
	"sepc":       0x141,
	"scause":     0x142,
	"stval":      0x143,
	"sip":        0x144,
	"satp":       0x180,
	"mstatus":    0x300,
	"misa":       0x301,
	"medeleg":    0x302,
	"mideleg":    0x303,
	"mie":        0x304,
	"mtvec":      0x305,
	"mcounteren": 0x306,
	"mscratch":   0x340,
	"mepc":       0x341,
	"mcause":     0x342,
	"mtval":      0x343,
	"mip":        0x344,
	"pmpcfg0":    0x3a0,
	"pmpaddr0":   0x3b0,
	"mvendorid":  0xf11,
	"marchid":    0xf12,
	"mimpid":     0xf13,
	"mhartid":    0xf14,
	"hstatus":    0x600,
	"hedeleg":    0x602,
	"hideleg":    0x603,
	"hie":        0x604,
	"htval":      0x643,
	"hip":        0x644,
	"vsstatus":   0x200,
	"vstvec":     0x205,
	"vsepc":      0x241,
	"vscause":    0x242,
	"vstval":     0x243,
	"vsatp":      0x280,
}
