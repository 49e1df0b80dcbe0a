// Copyright ©2025 The bamix Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bam

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/seqio/bamix/bgzf"
)

// fixedRemainder is the length of the fixed portion of a BAM record
// following the block_size field.
const fixedRemainder = 32

// Reader implements BAM container reading. A Reader owns a single
// BGZF stream position; iterators created over a shared Reader
// serialize their stream access under the Reader's lock, each
// restoring its own saved position before reading.
type Reader struct {
	bg *bgzf.Reader
	h  *Header

	// mu serializes seek+read pairs between direct reads and
	// iterators sharing this Reader.
	mu sync.Mutex

	omit int

	// scratch is the reused record decode buffer. Payload slices of
	// records returned by Read alias it.
	scratch []byte
	lenBuf  [4]byte

	lastChunk bgzf.Chunk

	// cur is the expected stream position of the next sequential
	// read and dataStart the position of the first record.
	cur       bgzf.Offset
	dataStart bgzf.Offset
}

// NewReader returns a new Reader for the BAM stream r, decoding the
// container header before returning. The returned Reader should be
// closed after use to avoid leaking resources.
func NewReader(r io.Reader) (*Reader, error) {
	bg, err := bgzf.NewReader(r)
	if err != nil {
		return nil, err
	}
	h, _ := NewHeader(nil, nil)
	br := &Reader{
		bg: bg,
		h:  h,
	}
	err = br.h.DecodeBinary(br.bg)
	if err != nil {
		return nil, err
	}
	br.dataStart = bg.Tell()
	br.cur = br.dataStart
	br.lastChunk = bgzf.Chunk{Begin: br.dataStart, End: br.dataStart}
	return br, nil
}

// newRecordReader returns a Reader over r reusing an already decoded
// header. The stream is left at its first block; the caller is
// expected to seek before reading.
func newRecordReader(r io.Reader, h *Header) (*Reader, error) {
	bg, err := bgzf.NewReader(r)
	if err != nil {
		return nil, err
	}
	return &Reader{bg: bg, h: h, cur: bg.Tell()}, nil
}

// Header returns the Header held by the Reader.
func (br *Reader) Header() *Header { return br.h }

// None, AuxTags and AllVariableLengthData are values taken by the
// Reader Omit method.
const (
	None                  = iota // Omit no field data from the record.
	AuxTags                      // Omit auxiliary tag data.
	AllVariableLengthData        // Omit sequence, quality and auxiliary data.
)

// Omit specifies what portions of each Record to omit populating
// during reads. Omitted data is still consumed from the stream.
func (br *Reader) Omit(o int) { br.omit = o }

// Read returns the next Record in the sequential BAM stream. The
// returned Record's payload aliases the Reader's internal buffer and
// is valid only until the next read; use Record.Clone to retain it.
//
// If an iterator sharing this Reader has moved the stream position
// since the last sequential read, Read returns ErrCursorMoved and the
// sequential position must be re-established with Seek or Reset.
func (br *Reader) Read() (*Record, error) {
	br.mu.Lock()
	defer br.mu.Unlock()
	if br.bg.Tell() != br.cur {
		return nil, ErrCursorMoved
	}
	rec, err := br.readRecord()
	if err != nil {
		return nil, err
	}
	br.cur = br.bg.Tell()
	return rec, nil
}

// Seek positions the sequential stream at the given virtual offset.
func (br *Reader) Seek(off bgzf.Offset) error {
	br.mu.Lock()
	defer br.mu.Unlock()
	err := br.bg.Seek(off)
	if err != nil {
		return err
	}
	br.cur = off
	br.lastChunk = bgzf.Chunk{Begin: off, End: off}
	return nil
}

// Reset positions the sequential stream at the first record of the
// container.
func (br *Reader) Reset() error {
	return br.Seek(br.dataStart)
}

// LastChunk returns the virtual offset chunk of the last read record.
// It is only valid after a read returning a nil error.
func (br *Reader) LastChunk() bgzf.Chunk {
	br.mu.Lock()
	defer br.mu.Unlock()
	return br.lastChunk
}

// Close closes the Reader. The underlying io.Reader is not closed.
func (br *Reader) Close() error {
	return br.bg.Close()
}

// readRecord decodes one record from the current stream position. The
// caller must hold mu. Any failure other than a clean io.EOF leaves
// the stream position undefined and is fatal to the iteration that
// encountered it.
func (br *Reader) readRecord() (*Record, error) {
	tx := br.bg.Begin()
	_, err := io.ReadFull(br.bg, br.lenBuf[:])
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("bam: invalid record: short block size: %v", err)
	}
	size := int(int32(binary.LittleEndian.Uint32(br.lenBuf[:])))
	if size < fixedRemainder {
		return nil, errors.New("bam: invalid record: block size out of range")
	}
	if cap(br.scratch) < size {
		br.scratch = make([]byte, size)
	}
	br.scratch = br.scratch[:size]
	_, err = io.ReadFull(br.bg, br.scratch)
	if err != nil {
		return nil, fmt.Errorf("bam: truncated record: %v", err)
	}
	br.lastChunk = tx.End()
	return br.decodeRecord(br.scratch)
}

// decodeRecord decodes the BAM record layout described in the SAM
// specification section 4.2.
func (br *Reader) decodeRecord(data []byte) (*Record, error) {
	b := &buffer{data: data}

	var rec Record
	refID := int(b.readInt32())
	rec.Pos = int(b.readInt32())
	nLen := int(b.readUint8())
	rec.MapQ = b.readUint8()
	b.discard(2) // Stored bin, recomputed on demand.
	nCigar := int(b.readUint16())
	rec.Flags = Flags(b.readUint16())
	lSeq := int(b.readInt32())
	nextRefID := int(b.readInt32())
	rec.MatePos = int(b.readInt32())
	rec.TempLen = int(b.readInt32())

	if nLen < 1 {
		return nil, errors.New("bam: invalid record: empty read name")
	}
	name := b.bytes(nLen)
	if name == nil || name[nLen-1] != 0 {
		return nil, errors.New("bam: invalid record: malformed read name")
	}
	rec.Name = string(name[:nLen-1])

	cb := b.bytes(nCigar * 4)
	if cb == nil {
		return nil, errors.New("bam: invalid record: truncated cigar")
	}
	rec.Cigar = readCigarOps(cb)

	if lSeq < 0 {
		return nil, errors.New("bam: invalid record: negative sequence length")
	}
	rec.SeqLen = lSeq
	if br.omit < AllVariableLengthData {
		rec.Seq = b.bytes((lSeq + 1) >> 1)
		rec.Qual = b.bytes(lSeq)
		if rec.Seq == nil || rec.Qual == nil {
			return nil, errors.New("bam: invalid record: truncated sequence data")
		}
		if br.omit < AuxTags {
			rec.Aux = b.bytes(b.len())
		}
	}

	refs := len(br.h.Refs())
	if refID != -1 {
		if refID < -1 || refID >= refs {
			return nil, errors.New("bam: reference id out of range")
		}
		rec.Ref = br.h.Refs()[refID]
	}
	if nextRefID != -1 {
		if nextRefID < -1 || nextRefID >= refs {
			return nil, errors.New("bam: mate reference id out of range")
		}
		if nextRefID == refID {
			rec.MateRef = rec.Ref
		} else {
			rec.MateRef = br.h.Refs()[nextRefID]
		}
	}

	return &rec, nil
}

// len(cb) must be a multiple of 4.
func readCigarOps(cb []byte) []CigarOp {
	if len(cb) == 0 {
		return nil
	}
	co := make([]CigarOp, len(cb)/4)
	for i := range co {
		co[i] = CigarOp(binary.LittleEndian.Uint32(cb[i*4 : (i+1)*4]))
	}
	return co
}

// buffer is a light-weight bounds-checked read buffer. A short read
// is reported by a nil return from bytes rather than a panic so that
// corrupt records surface as decode errors.
type buffer struct {
	off  int
	data []byte
}

func (b *buffer) bytes(n int) []byte {
	if n < 0 || b.off+n > len(b.data) {
		b.off = len(b.data)
		return nil
	}
	s := b.off
	b.off += n
	return b.data[s:b.off]
}

func (b *buffer) len() int {
	return len(b.data) - b.off
}

func (b *buffer) discard(n int) {
	b.off += n
	if b.off > len(b.data) {
		b.off = len(b.data)
	}
}

func (b *buffer) readUint8() uint8 {
	s := b.bytes(1)
	if s == nil {
		return 0
	}
	return s[0]
}

func (b *buffer) readUint16() uint16 {
	s := b.bytes(2)
	if s == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(s)
}

func (b *buffer) readInt32() int32 {
	s := b.bytes(4)
	if s == nil {
		return 0
	}
	return int32(binary.LittleEndian.Uint32(s))
}
