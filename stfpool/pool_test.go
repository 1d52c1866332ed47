// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stfpool

import (
	"io"
	"testing"

	"github.com/stf-trace/stf"
	"github.com/stf-trace/stf/stfio"
)

// countingInst is a minimal stf.Record used to tell pooled instances
// apart by identity and to report under a caller-chosen descriptor.
type countingInst struct {
	id   int
	desc stf.Descriptor
}

func (c *countingInst) Descriptor() stf.Descriptor  { return c.desc }
func (c *countingInst) Pack(s *stfio.Stream) error   { return nil }
func (c *countingInst) Unpack(s *stfio.Stream) error { return nil }
func (c *countingInst) Format(w io.Writer) error     { return nil }

func TestGetUnregisteredReturnsNil(t *testing.T) {
	p := New()
	if rec := p.Get(stf.DescriptorInstReg); rec != nil {
		t.Errorf("got %v, want nil for unregistered descriptor", rec)
	}
}

func TestGetPutRoundTripReusesInstance(t *testing.T) {
	p := New()
	n := 0
	p.Register(stf.DescriptorInstReg, func() stf.Record {
		n++
		return &countingInst{id: n, desc: stf.DescriptorInstReg}
	})

	rec := p.Get(stf.DescriptorInstReg)
	got, ok := rec.(*countingInst)
	if !ok {
		t.Fatalf("got %T, want *countingInst", rec)
	}
	if got.id != 1 {
		t.Fatalf("got id %d, want 1 (fresh construction)", got.id)
	}

	p.Put(got)
	rec2 := p.Get(stf.DescriptorInstReg)
	got2, ok := rec2.(*countingInst)
	if !ok {
		t.Fatalf("got %T, want *countingInst", rec2)
	}
	if got2 != got {
		t.Errorf("expected Get to return the same instance Put back, got different pointer")
	}
	if n != 1 {
		t.Errorf("constructor called %d times, want 1 (second Get should have been a pool hit)", n)
	}
}

func TestGetMissFallsBackToConstructor(t *testing.T) {
	p := New()
	n := 0
	p.Register(stf.DescriptorInstReg, func() stf.Record {
		n++
		return &countingInst{id: n, desc: stf.DescriptorInstReg}
	})

	first := p.Get(stf.DescriptorInstReg)
	second := p.Get(stf.DescriptorInstReg)
	if first == second {
		t.Fatal("expected distinct instances when pool is empty on both Gets")
	}
	if n != 2 {
		t.Errorf("constructor called %d times, want 2", n)
	}
}

func TestPutBeyondMaxIsDropped(t *testing.T) {
	p := New()
	p.max = 2
	p.Register(stf.DescriptorInstReg, func() stf.Record {
		return &countingInst{desc: stf.DescriptorInstReg}
	})

	// Put 3 distinct instances; the pool bound is 2, so the 3rd is
	// dropped rather than retained.
	a := &countingInst{id: 100, desc: stf.DescriptorInstReg}
	b := &countingInst{id: 101, desc: stf.DescriptorInstReg}
	c := &countingInst{id: 102, desc: stf.DescriptorInstReg}
	p.Put(a)
	p.Put(b)
	p.Put(c)

	if got := len(p.free[stf.DescriptorInstReg]); got != 2 {
		t.Fatalf("free list length = %d, want 2 (bounded by max)", got)
	}

	// Draining Get calls should only surface the two retained
	// instances (LIFO order: b then a), never c.
	first := p.Get(stf.DescriptorInstReg)
	second := p.Get(stf.DescriptorInstReg)
	if first == c || second == c {
		t.Error("Get returned the instance that should have been dropped by Put")
	}
}

func TestPoolIsolatesDescriptors(t *testing.T) {
	p := New()
	p.Register(stf.DescriptorInstReg, func() stf.Record {
		return &countingInst{id: 1, desc: stf.DescriptorInstReg}
	})
	p.Register(stf.DescriptorInstOpcode16, func() stf.Record {
		return &countingInst{id: 2, desc: stf.DescriptorInstOpcode16}
	})

	regRec := p.Get(stf.DescriptorInstReg)
	opRec := p.Get(stf.DescriptorInstOpcode16)
	p.Put(regRec)
	p.Put(opRec)

	if got := len(p.free[stf.DescriptorInstReg]); got != 1 {
		t.Errorf("DescriptorInstReg free list length = %d, want 1", got)
	}
	if got := len(p.free[stf.DescriptorInstOpcode16]); got != 1 {
		t.Errorf("DescriptorInstOpcode16 free list length = %d, want 1", got)
	}
}
