// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package stfpool implements a per-descriptor bounded object pool for
// Record instances. It is a plain mutex-guarded map rather than
// sync.Pool: sync.Pool's contents can be collected at any GC cycle,
// which would make the pool's effectiveness depend on GC timing; a
// bounded free list per descriptor gives predictable reuse for the
// hot record types (InstReg, InstMemAccess/Content) at the cost of
// holding onto up to max records per type indefinitely (see
// DESIGN.md).
package stfpool

import (
	"sync"

	"github.com/stf-trace/stf"
)

// defaultMax is the default per-variant free-list bound.
const defaultMax = 3072

// Pool is a bounded, per-descriptor free list of Record instances.
type Pool struct {
	mu      sync.Mutex
	max     int
	free    map[stf.Descriptor][]stf.Record
	newFunc map[stf.Descriptor]func() stf.Record
}

// New returns an empty pool. Register must be called once per
// variant the caller intends to pool before Get is used for it.
func New() *Pool {
	return &Pool{
		max:     defaultMax,
		free:    make(map[stf.Descriptor][]stf.Record),
		newFunc: make(map[stf.Descriptor]func() stf.Record),
	}
}

// Register associates a constructor with d, enabling Get/Put for it.
func (p *Pool) Register(d stf.Descriptor, ctor func() stf.Record) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.newFunc[d] = ctor
}

// Get returns a pooled instance of d's record type, allocating a
// fresh one on a pool miss.
func (p *Pool) Get(d stf.Descriptor) stf.Record {
	p.mu.Lock()
	if n := len(p.free[d]); n > 0 {
		rec := p.free[d][n-1]
		p.free[d] = p.free[d][:n-1]
		p.mu.Unlock()
		return rec
	}
	ctor := p.newFunc[d]
	p.mu.Unlock()
	if ctor == nil {
		return nil
	}
	return ctor()
}

// Put returns rec to its variant's free list; if the list is already
// at its bound, rec is dropped for the GC to collect.
func (p *Pool) Put(rec stf.Record) {
	d := rec.Descriptor()
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free[d]) >= p.max {
		return
	}
	p.free[d] = append(p.free[d], rec)
}
