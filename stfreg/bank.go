// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package stfreg implements the architectural register state bank: a
// sparse map of register number to current value, with support for
// registers that are themselves bit-field views into a wider parent
// register (FFLAGS/FRM inside FCSR, the RV32 high halves of the
// 64-bit counters).
package stfreg

import (
	"fmt"

	"github.com/stf-trace/stf"
)

// regDef describes one register's storage: either its own value
// ("simple"), or a (parent, mask, shift) view into another register's
// value ("mapped").
type regDef struct {
	name    string
	mapped  bool
	parent  RegisterKey
	mask    uint64
	shift   uint
}

// Bank is a register state bank for one (ISA, IEM) combination.
type Bank struct {
	defs map[RegisterKey]*regDef
	vals map[RegisterKey]uint64 // backing storage; mapped registers read/write their parent's entry
}

// RegisterKey names a register within a class.
type RegisterKey struct {
	Class stf.RegisterClass
	Num   uint16
}

func newBank() *Bank {
	return &Bank{
		defs: make(map[RegisterKey]*regDef),
		vals: make(map[RegisterKey]uint64),
	}
}

// defineSimple registers a plain scalar register.
func (b *Bank) defineSimple(k RegisterKey, name string) {
	b.defs[k] = &regDef{name: name}
	b.vals[k] = 0
}

// defineMapped registers k as a bit-field view of parent: value :=
// (parent >> shift) & mask on read, and
// parent := (parent &^ (mask << shift)) | ((value & mask) << shift)
// on write.
func (b *Bank) defineMapped(k RegisterKey, name string, parent RegisterKey, mask uint64, shift uint) {
	if _, ok := b.defs[parent]; !ok {
		panic(fmt.Sprintf("stfreg: mapped register %s has undefined parent %v", name, parent))
	}
	b.defs[k] = &regDef{name: name, mapped: true, parent: parent, mask: mask, shift: shift}
}

// Name returns the human-readable name of k, or a generated
// "REG_CSR_UNK_<hex>" name for an unregistered CSR.
func (b *Bank) Name(k RegisterKey) string {
	if d, ok := b.defs[k]; ok {
		return d.name
	}
	if k.Class == stf.RegClassCSR {
		return fmt.Sprintf("REG_CSR_UNK_%x", k.Num)
	}
	return fmt.Sprintf("REG_%s_%d", k.Class, k.Num)
}

// Read returns the current value of k. Reading an unregistered
// register raises KindRegNotFound.
func (b *Bank) Read(k RegisterKey) (uint64, error) {
	d, ok := b.defs[k]
	if !ok {
		return 0, stf.RegNotFoundf("register %s not found", b.Name(k))
	}
	if !d.mapped {
		return b.vals[k], nil
	}
	return (b.vals[d.parent] >> d.shift) & d.mask, nil
}

// Update sets k's value. Updating an unregistered non-CSR register is
// silently ignored and returns false; an unregistered CSR
// is implicitly registered as a simple scalar, matching "unknown-but-
// legal CSR numbers are permitted".
func (b *Bank) Update(k RegisterKey, value uint64) bool {
	d, ok := b.defs[k]
	if !ok {
		if k.Class != stf.RegClassCSR {
			return false
		}
		b.defineSimple(k, b.Name(k))
		b.vals[k] = value
		return true
	}
	if !d.mapped {
		b.vals[k] = value
		return true
	}
	pv := b.vals[d.parent]
	pv = (pv &^ (d.mask << d.shift)) | ((value & d.mask) << d.shift)
	b.vals[d.parent] = pv
	return true
}
