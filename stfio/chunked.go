// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stfio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/klauspost/compress/zstd"
)

// Chunked-stream wire format:
//
//	MAGIC("ZSTF") | marker_records_per_chunk:u64 | end_of_last_chunk_offset:u64
//	| zstd chunk 0 | zstd chunk 1 | ... | zstd chunk N
//	| chunk_index: [{file_offset:i64, start_pc:u64, uncompressed_size:u64}, ...]

const (
	chunkMagic      = "ZSTF"
	chunkHeaderSize = 4 + 8 + 8
	indexEntrySize  = 8 + 8 + 8

	// defaultChunkSize is the default number of marker records per
	// chunk when the caller doesn't specify one.
	defaultChunkSize = 10000

	// defaultBlockSize is the default block-size seed for in-memory
	// buffers. 4KiB is a reasonable OS-independent default; we
	// don't query the real block size since Go has no portable
	// statfs.
	defaultBlockSize = 4096
)

type chunkIndexEntry struct {
	FileOffset       int64
	StartPC          uint64
	UncompressedSize uint64
}

// singleThreaded reports whether STF_SINGLE_THREADED selects the
// inline (non-async) decompression variant.
func singleThreaded() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("STF_SINGLE_THREADED")))
	switch v {
	case "1", "true":
		return true
	case "", "0", "false":
		return false
	default:
		// Validated against the allowed set {0,1,true,false};
		// anything else falls back to the default (async).
		return false
	}
}

// ===== Write path =====

// ChunkedWriter buffers records until a marker record crosses the
// configured chunk size,
// at which point the buffer is handed off (by value swap) to a single
// background compression goroutine so the caller can keep filling a
// new buffer without waiting.
type ChunkedWriter struct {
	file      *os.File
	chunkSize uint64 // marker records per chunk

	mu          sync.Mutex // protects file writes + index (the "critical section")
	buf         *bytes.Buffer
	bufMarkers  uint64
	curStartPC  uint64 // PC of the first instruction in the chunk currently being assembled
	nextOffset  int64
	index       []chunkIndexEntry
	compressWG  sync.WaitGroup
	compressErr error

	sigCh    chan os.Signal
	sigDone  chan struct{}
	warnSink io.Writer

	closed bool
}

// NewChunkedWriter creates path and returns a writer with the given
// chunk size (in marker records); chunkSize <= 0 selects
// defaultChunkSize.
func NewChunkedWriter(path string, chunkSize int) (*ChunkedWriter, error) {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	var hdr [chunkHeaderSize]byte
	copy(hdr[:4], chunkMagic)
	binary.LittleEndian.PutUint64(hdr[4:12], uint64(chunkSize))
	binary.LittleEndian.PutUint64(hdr[12:20], 0) // backpatched at Close
	if _, err := f.Write(hdr[:]); err != nil {
		f.Close()
		return nil, err
	}
	w := &ChunkedWriter{
		file:       f,
		chunkSize:  uint64(chunkSize),
		buf:        bytes.NewBuffer(make([]byte, 0, defaultBlockSize)),
		nextOffset: chunkHeaderSize,
		warnSink:   os.Stderr,
	}
	w.maskFatalSignals()
	return w, nil
}

// maskFatalSignals starts a goroutine that, on SIGINT/SIGTERM/SIGABRT,
// waits for any in-flight critical section to finish (by taking the
// same mutex) before letting the process die, so that partial trailer
// metadata is never left on disk. Go cannot mask SIGSEGV the way
// POSIX sigprocmask can (it's handled by the runtime), so that signal
// is not handled here; everything else in the fatal set is.
func (w *ChunkedWriter) maskFatalSignals() {
	w.sigCh = make(chan os.Signal, 1)
	w.sigDone = make(chan struct{})
	signal.Notify(w.sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGABRT)
	go func() {
		select {
		case sig := <-w.sigCh:
			w.mu.Lock()
			_ = w.finishPending(true)
			w.mu.Unlock()
			signal.Stop(w.sigCh)
			fmt.Fprintf(w.warnSink, "stfio: caught %v, flushed chunked trailer before exit\n", sig)
			os.Exit(1)
		case <-w.sigDone:
		}
	}()
}

// Write implements io.Writer, appending to the buffer for the chunk
// currently being assembled.
func (w *ChunkedWriter) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

// StartPCSetter is implemented by a sink that needs to know the PC of
// the very first instruction it will ever see, seeded once from the
// header's ForcePC before any body record is written.
type StartPCSetter interface {
	SetStartPC(pc uint64)
}

// SetStartPC seeds the PC of the first instruction in the chunk
// currently being assembled (chunk 0). Later chunks get their
// curStartPC from the PC tracker at the moment they're opened, via
// Marker's nextChunkStartPC.
func (w *ChunkedWriter) SetStartPC(pc uint64) {
	w.mu.Lock()
	w.curStartPC = pc
	w.mu.Unlock()
}

// Marker implements WriteMarkerSink. It must be called immediately
// after a marker record (InstOpcode16/32) is written to the stream
// returned by Stream() -- stfproto.WriterState does this via
// SetMarkerSink. nextChunkStartPC is the PC the *next* (not yet
// started) chunk's first instruction will have, taken from the
// writer's PC tracker; it is only consumed if this marker triggers a
// chunk flush, to seed curStartPC for the chunk that starts now.
func (w *ChunkedWriter) Marker(nextChunkStartPC uint64) error {
	w.bufMarkers++
	if w.bufMarkers < w.chunkSize {
		return nil
	}
	return w.flush(nextChunkStartPC)
}

// flush hands the current buffer to the (serialised) background
// compression step and starts a fresh buffer.
func (w *ChunkedWriter) flush(nextChunkStartPC uint64) error {
	w.mu.Lock()
	if w.compressErr != nil {
		err := w.compressErr
		w.mu.Unlock()
		return err
	}
	pending := w.buf
	pendingMarkers := w.bufMarkers
	startPC := w.curStartPC
	w.buf = bytes.NewBuffer(make([]byte, 0, pending.Cap()*2))
	w.bufMarkers = 0
	w.curStartPC = nextChunkStartPC
	w.mu.Unlock()

	w.compressWG.Wait() // chunks are appended in submission order
	w.compressWG.Add(1)
	go w.compressChunk(pending, pendingMarkers, startPC)
	return nil
}

func (w *ChunkedWriter) compressChunk(raw *bytes.Buffer, markers uint64, startPC uint64) {
	defer w.compressWG.Done()
	if raw.Len() == 0 {
		return
	}

	var out bytes.Buffer
	enc, err := zstd.NewWriter(&out)
	if err != nil {
		w.setErr(err)
		return
	}
	if _, err := enc.Write(raw.Bytes()); err != nil {
		enc.Close()
		w.setErr(err)
		return
	}
	if err := enc.Close(); err != nil {
		w.setErr(err)
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	offset := w.nextOffset
	if _, err := w.file.WriteAt(out.Bytes(), offset); err != nil {
		w.compressErr = err
		return
	}
	w.nextOffset = offset + int64(out.Len())
	w.index = append(w.index, chunkIndexEntry{
		FileOffset:       offset,
		StartPC:          startPC,
		UncompressedSize: uint64(raw.Len()),
	})
	_ = markers // kept per-entry implicitly via chunkSize; recorded for symmetry with the reader
	w.backpatchLocked()
}

func (w *ChunkedWriter) setErr(err error) {
	w.mu.Lock()
	if w.compressErr == nil {
		w.compressErr = err
	}
	w.mu.Unlock()
}

// backpatchLocked rewrites end_of_last_chunk_offset; caller holds w.mu.
func (w *ChunkedWriter) backpatchLocked() {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(w.nextOffset))
	_, _ = w.file.WriteAt(b[:], 12)
}

// finishPending compresses the in-progress buffer as the final chunk.
// When no marker has been written since the last flush (bufMarkers is
// zero), the buffered bytes are discarded instead and a warning is
// printed to warnSink, never returned as an error. A buffer holding at
// least one marker is compressed whole, including any bytes written
// after its last marker. Caller holds w.mu except when invoked from
// Close (which takes it itself) -- see call sites.
func (w *ChunkedWriter) finishPending(fromSignal bool) error {
	if w.buf.Len() == 0 {
		return nil
	}
	if w.bufMarkers == 0 {
		fmt.Fprintf(w.warnSink, "stfio: discarding %d buffered bytes that do not end on a marker boundary\n", w.buf.Len())
		w.buf.Reset()
		return nil
	}
	pending := w.buf
	markers := w.bufMarkers
	startPC := w.curStartPC
	w.buf = bytes.NewBuffer(nil)
	w.bufMarkers = 0
	if fromSignal {
		// Already holding w.mu; compressChunk also locks it, so
		// compress synchronously here instead of spawning.
		w.mu.Unlock()
		w.compressWG.Wait()
		w.compressWG.Add(1)
		w.compressChunk(pending, markers, startPC)
		w.mu.Lock()
		return w.compressErr
	}
	w.compressWG.Wait()
	w.compressWG.Add(1)
	w.compressChunk(pending, markers, startPC)
	return w.compressErr
}

// Stream returns a Stream whose writes append to the chunk currently
// being assembled.
func (w *ChunkedWriter) Stream() *Stream {
	return NewWriteStream(w)
}

// Close flushes any final partial chunk, writes the chunk index, and
// backpatches end_of_last_chunk_offset.
func (w *ChunkedWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	close(w.sigDone)
	signal.Stop(w.sigCh)

	if err := w.finishPending(false); err != nil {
		return err
	}
	w.compressWG.Wait() // a chunk handed off by flush may still be compressing

	w.mu.Lock()
	defer w.mu.Unlock()

	idxOffset := w.nextOffset
	idxBuf := make([]byte, 0, len(w.index)*indexEntrySize)
	for _, e := range w.index {
		var b [indexEntrySize]byte
		binary.LittleEndian.PutUint64(b[0:8], uint64(e.FileOffset))
		binary.LittleEndian.PutUint64(b[8:16], e.StartPC)
		binary.LittleEndian.PutUint64(b[16:24], e.UncompressedSize)
		idxBuf = append(idxBuf, b[:]...)
	}
	if _, err := w.file.WriteAt(idxBuf, idxOffset); err != nil {
		return err
	}
	w.backpatchLocked()
	return w.file.Close()
}

// ===== Read path =====

// ChunkedReader opens a chunked-compressed trace: on open it reads the
// trailing chunk index, then decompresses chunks either synchronously
// or with one chunk of asynchronous read-ahead (selected by the
// STF_SINGLE_THREADED environment variable).
type ChunkedReader struct {
	file      *os.File
	chunkSize uint64
	index     []chunkIndexEntry

	single bool

	curChunk  int
	curData   []byte
	curPos    int
	curMarker uint64 // markers consumed within the current chunk

	nextCh chan nextChunkResult
}

type nextChunkResult struct {
	data []byte
	err  error
}

// openChunked opens a .zstf file for the given mode.
func openChunked(path string, mode Mode) (*Opened, error) {
	if mode == ModeWrite {
		w, err := NewChunkedWriter(path, 0)
		if err != nil {
			return nil, err
		}
		return &Opened{Stream: w.Stream(), closer: w.Close, WriteMarker: w}, nil
	}
	r, err := NewChunkedReader(path)
	if err != nil {
		return nil, err
	}
	return &Opened{Stream: r.Stream(), closer: r.Close, ReadMarker: r}, nil
}

var (
	_ WriteMarkerSink = (*ChunkedWriter)(nil)
	_ ReadMarkerSink  = (*ChunkedReader)(nil)
	_ StartPCSetter   = (*ChunkedWriter)(nil)
)

// NewChunkedReader opens path, validates the header and chunk index,
// and prepares to decompress from chunk 0.
func NewChunkedReader(path string) (*ChunkedReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	var hdr [chunkHeaderSize]byte
	if _, err := io.ReadFull(f, hdr[:]); err != nil {
		f.Close()
		return nil, fmt.Errorf("stfio: %s: reading chunked header: %w", path, err)
	}
	if string(hdr[:4]) != chunkMagic {
		f.Close()
		return nil, fmt.Errorf("stfio: %s: bad magic %q, not a chunked STF file", path, hdr[:4])
	}
	chunkSize := binary.LittleEndian.Uint64(hdr[4:12])
	endOfLast := binary.LittleEndian.Uint64(hdr[12:20])

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if endOfLast == 0 || int64(endOfLast) > fi.Size() {
		f.Close()
		return nil, fmt.Errorf("stfio: %s: corrupt end-of-last-chunk offset %d (file size %d)", path, endOfLast, fi.Size())
	}

	idxBytes := fi.Size() - int64(endOfLast)
	if idxBytes < 0 || idxBytes%indexEntrySize != 0 {
		f.Close()
		return nil, fmt.Errorf("stfio: %s: corrupt chunk index size %d", path, idxBytes)
	}
	nEntries := int(idxBytes / indexEntrySize)
	idxRaw := make([]byte, idxBytes)
	if _, err := f.ReadAt(idxRaw, int64(endOfLast)); err != nil {
		f.Close()
		return nil, err
	}
	index := make([]chunkIndexEntry, nEntries)
	for i := range index {
		b := idxRaw[i*indexEntrySize:]
		index[i] = chunkIndexEntry{
			FileOffset:       int64(binary.LittleEndian.Uint64(b[0:8])),
			StartPC:          binary.LittleEndian.Uint64(b[8:16]),
			UncompressedSize: binary.LittleEndian.Uint64(b[16:24]),
		}
	}

	r := &ChunkedReader{
		file:      f,
		chunkSize: chunkSize,
		index:     index,
		single:    singleThreaded(),
		curChunk:  -1,
	}
	if err := r.advanceChunk(); err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func (r *ChunkedReader) decompressChunk(i int) ([]byte, error) {
	if i < 0 || i >= len(r.index) {
		return nil, io.EOF
	}
	start := r.index[i].FileOffset
	var end int64
	if i+1 < len(r.index) {
		end = r.index[i+1].FileOffset
	} else {
		// The last frame ends where the trailing chunk index begins.
		fi, err := r.file.Stat()
		if err != nil {
			return nil, err
		}
		end = fi.Size() - int64(len(r.index))*indexEntrySize
	}
	sr := io.NewSectionReader(r.file, start, end-start)
	dec, err := zstd.NewReader(sr)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	out, err := io.ReadAll(dec)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// advanceChunk loads r.curChunk+1 as the active chunk, using
// read-ahead if one is already in flight (async mode) or decompressing
// inline (single-threaded mode).
func (r *ChunkedReader) advanceChunk() error {
	next := r.curChunk + 1
	if next >= len(r.index) {
		r.curData = nil
		return io.EOF
	}

	var data []byte
	var err error
	if r.single {
		data, err = r.decompressChunk(next)
	} else {
		if r.nextCh == nil {
			data, err = r.decompressChunk(next)
		} else {
			res := <-r.nextCh
			data, err = res.data, res.err
		}
	}
	if err != nil {
		return err
	}

	r.curChunk = next
	r.curData = data
	r.curPos = 0
	r.curMarker = 0

	if !r.single && next+1 < len(r.index) {
		ch := make(chan nextChunkResult, 1)
		r.nextCh = ch
		go func(idx int) {
			d, e := r.decompressChunk(idx)
			ch <- nextChunkResult{d, e}
		}(next + 1)
	} else {
		r.nextCh = nil
	}
	return nil
}

// Read implements io.Reader over the logical decompressed record
// stream, transparently crossing chunk boundaries.
func (r *ChunkedReader) Read(p []byte) (int, error) {
	if r.curPos >= len(r.curData) {
		if err := r.advanceChunk(); err != nil {
			return 0, err
		}
	}
	n := copy(p, r.curData[r.curPos:])
	r.curPos += n
	return n, nil
}

// Stream returns a Stream that reads from the logical, chunk-crossing
// record stream.
func (r *ChunkedReader) Stream() *Stream {
	return NewReadStream(r)
}

// MarkerCrossed implements ReadMarkerSink. The consumer (the
// instruction materialiser, via SetMarkerSink) calls it every time it
// consumes a marker record; it counts the markers consumed within the
// current chunk. Read moves on to the next chunk when the current
// chunk's bytes run out, independent of this count.
func (r *ChunkedReader) MarkerCrossed() {
	r.curMarker++
}

// ChunkSize implements Seeker's ChunkSize, reporting the number of
// marker records per chunk so a caller of Seek can compute how many
// records to consume forward from the chunk boundary it lands on.
func (r *ChunkedReader) ChunkSize() uint64 { return r.chunkSize }

// Seek repositions to the N'th marker record (instruction) by jumping
// to its containing chunk and decompressing from there. forcePC, if
// non-nil, is invoked with the target chunk's start_pc so the
// caller's PC tracker can be corrected; the caller is then
// responsible for consuming N mod chunkSize records forward from the
// returned chunk start (stfinst.Window.SeekTo does this, using
// ChunkSize).
func (r *ChunkedReader) Seek(n uint64, forcePC func(pc uint64)) error {
	chunkIdx := int(n / r.chunkSize)
	if chunkIdx >= len(r.index) {
		return fmt.Errorf("stfio: seek to marker %d is past the last chunk", n)
	}
	r.curChunk = chunkIdx - 1
	r.nextCh = nil
	if err := r.advanceChunk(); err != nil {
		return err
	}
	if forcePC != nil {
		forcePC(r.index[chunkIdx].StartPC)
	}
	return nil
}

// Close releases the underlying file.
func (r *ChunkedReader) Close() error {
	return r.file.Close()
}
