// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command stfdump prints the contents of an STF trace.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/stf-trace/stf"
	"github.com/stf-trace/stf/stfinst"
	"github.com/stf-trace/stf/stfio"
	"github.com/stf-trace/stf/stfproto"
)

func main() {
	var (
		flagInput    = flag.String("i", "trace.zstf", "input trace `file`")
		flagUserOnly = flag.Bool("user-only", false, "materialise only user-mode instructions")
		flagCount    = flag.Int("n", -1, "stop after `n` instructions (-1 for all)")
	)
	flag.Parse()
	if flag.NArg() > 0 {
		flag.Usage()
		os.Exit(1)
	}

	o, err := stfio.Open(*flagInput, stfio.ModeRead)
	if err != nil {
		log.Fatal(err)
	}
	defer o.Close()

	hdr, err := stfproto.ReadHeader(o.Stream)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("isa=%s iem=%s force_pc=0x%x features=0x%x\n", hdr.ISA, hdr.IEM, hdr.ForcePC, uint64(hdr.Features))
	for _, ti := range hdr.TraceInfos {
		fmt.Printf("  trace_info: %s %d.%d.%d %q\n", ti.Gen, ti.Major, ti.Minor, ti.MinorMinor, ti.Comment)
	}

	cfg := stfinst.Config{UserModeOnly: *flagUserOnly}
	m := stfinst.New(o.Stream, hdr.ISA, hdr.IEM, hdr.ForcePC, cfg)
	m.SetMarkerSink(o.ReadMarker)
	if hdr.ProcessID != nil {
		m.SetProcessID(hdr.ProcessID.TGID, hdr.ProcessID.TID, hdr.ProcessID.ASID)
	}

	for i := 0; *flagCount < 0 || i < *flagCount; i++ {
		in, err := m.Next()
		if err != nil {
			if stf.IsEOF(err) {
				break
			}
			log.Fatal(err)
		}
		fmt.Printf("%08x: opcode=%08x srcs=%d dests=%d mem_r=%d mem_w=%d\n",
			in.PC, in.Opcode, len(in.SourceRegs), len(in.DestRegs), len(in.MemReads), len(in.MemWrites))
	}
}
