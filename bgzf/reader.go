// Copyright ©2025 The bamix Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bgzf

import (
	"bufio"
	"bytes"
	"compress/flate"
	"compress/gzip"
	"io"
)

// Reader implements sequential and virtual-offset addressed reading of
// BGZF data. All decompression is performed synchronously on the
// goroutine calling Read or Seek.
//
// A Reader holds a single decompressed block at a time; concurrent use
// of one Reader must be serialized by the caller.
type Reader struct {
	gzip.Header
	r io.Reader

	cr *countReader
	gz *gzip.Reader

	// base is the file offset of the gzip member holding
	// the current block.
	base int64

	// data is the decompressed current block and off the
	// read position within it.
	data []byte
	off  int

	blockBuf [MaxBlockSize]byte

	// chunk spans the data delivered by the last Read call.
	chunk Chunk

	err error
}

// NewReader returns a Reader for the BGZF stream r. The first block is
// decompressed before NewReader returns so that framing errors surface
// at open rather than at first read.
func NewReader(r io.Reader) (*Reader, error) {
	cr := makeReader(r)
	gz, err := gzip.NewReader(cr)
	if err != nil {
		return nil, err
	}
	size := expectedMemberSize(gz.Header)
	if size < 0 {
		return nil, ErrNoBlockSize
	}
	bg := &Reader{
		Header: gz.Header,
		r:      r,
		cr:     cr,
		gz:     gz,
	}
	err = bg.fill()
	if err != nil {
		return nil, err
	}
	if cr.n != int64(size) {
		return nil, ErrBlockSizeMismatch
	}
	return bg, nil
}

// fill decompresses the current gzip member into the block buffer.
func (bg *Reader) fill() error {
	bg.gz.Multistream(false)
	var n int
	for {
		m, err := bg.gz.Read(bg.blockBuf[n:])
		n += m
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if n == len(bg.blockBuf) {
			// The buffer is full but the member has not
			// terminated, so its payload cannot be a legal
			// BGZF block.
			return ErrBlockOverflow
		}
	}
	bg.data = bg.blockBuf[:n]
	bg.off = 0
	return nil
}

// nextBlock advances to the gzip member following the current block.
// It returns io.EOF at a clean end of stream.
func (bg *Reader) nextBlock() error {
	bg.base = bg.cr.n
	err := bg.gz.Reset(bg.cr)
	if err != nil {
		return err
	}
	size := expectedMemberSize(bg.gz.Header)
	if size < 0 {
		return ErrNoBlockSize
	}
	bg.Header = bg.gz.Header
	err = bg.fill()
	if err != nil {
		return err
	}
	if bg.cr.n-bg.base != int64(size) {
		return ErrBlockSizeMismatch
	}
	return nil
}

func (bg *Reader) tell() Offset {
	return Offset{File: bg.base, Block: uint16(bg.off)}
}

// Tell returns the virtual offset of the next byte to be read.
func (bg *Reader) Tell() Offset { return bg.tell() }

// BlockLen returns the number of decompressed bytes held in the
// current block.
func (bg *Reader) BlockLen() int { return len(bg.data) }

// LastChunk returns the virtual offset chunk spanning the data
// delivered by the last call to Read.
func (bg *Reader) LastChunk() Chunk { return bg.chunk }

// Read satisfies the io.Reader interface.
func (bg *Reader) Read(p []byte) (int, error) {
	if bg.err != nil {
		return 0, bg.err
	}
	for bg.off == len(bg.data) {
		bg.err = bg.nextBlock()
		if bg.err != nil {
			return 0, bg.err
		}
	}
	bg.chunk = Chunk{Begin: bg.tell(), End: bg.tell()}
	var n int
	for n < len(p) && bg.err == nil {
		if bg.off == len(bg.data) {
			bg.err = bg.nextBlock()
			continue
		}
		m := copy(p[n:], bg.data[bg.off:])
		n += m
		bg.off += m
		bg.chunk.End = bg.tell()
	}
	if n > 0 && bg.err == io.EOF {
		return n, nil
	}
	return n, bg.err
}

// Seek positions the Reader at the given virtual offset. Seeking is
// only available when the Reader was constructed from an
// io.ReadSeeker. A successful Seek clears any previous read error,
// including io.EOF.
func (bg *Reader) Seek(off Offset) error {
	rs, ok := bg.r.(io.ReadSeeker)
	if !ok {
		return ErrNotASeeker
	}
	_, err := rs.Seek(off.File, io.SeekStart)
	if err != nil {
		bg.err = err
		return err
	}
	bg.cr.reset(rs, off.File)
	bg.err = nil
	bg.data = bg.data[:0]
	err = bg.nextBlock()
	if err != nil {
		bg.err = err
		return err
	}
	if int(off.Block) > len(bg.data) {
		bg.err = ErrInvalidOffset
		return bg.err
	}
	bg.off = int(off.Block)
	bg.chunk = Chunk{Begin: off, End: off}
	return nil
}

// Tx is an open read transaction spanning one or more Read calls.
type Tx struct {
	begin Offset
	r     *Reader
}

// Begin starts a read transaction at the position of the next byte to
// be delivered. If the current block is exhausted the next block is
// loaded so that the transaction begins at the byte's true virtual
// offset.
func (bg *Reader) Begin() Tx {
	for bg.err == nil && bg.off == len(bg.data) {
		bg.err = bg.nextBlock()
	}
	return Tx{begin: bg.tell(), r: bg}
}

// End closes the transaction, returning the chunk covering all bytes
// read since Begin.
func (t Tx) End() Chunk {
	return Chunk{Begin: t.begin, End: t.r.tell()}
}

// Close closes the Reader. The underlying io.Reader is not closed.
func (bg *Reader) Close() error {
	return bg.gz.Close()
}

// expectedMemberSize returns the size of the BGZF member declared by
// the BC extra field of h, or -1 if the field is absent or malformed.
func expectedMemberSize(h gzip.Header) int {
	i := bytes.Index(h.Extra, bgzfExtraPrefix)
	if i < 0 || i+5 >= len(h.Extra) {
		return -1
	}
	return (int(h.Extra[i+4]) | int(h.Extra[i+5])<<8) + 1
}

type reseter interface {
	Reset(io.Reader)
}

// countReader tracks the logical stream offset of the bytes it has
// delivered, independent of any buffering in the wrapped reader.
type countReader struct {
	r flate.Reader
	n int64
}

func makeReader(r io.Reader) *countReader {
	switch r := r.(type) {
	case *countReader:
		panic("bgzf: illegal use of internal type")
	case flate.Reader:
		return &countReader{r: r}
	default:
		return &countReader{r: bufio.NewReader(r)}
	}
}

func (r *countReader) reset(rd io.Reader, off int64) {
	switch cr := r.r.(type) {
	case reseter:
		cr.Reset(rd)
	default:
		// rd is the reader we already hold, repositioned
		// by the caller.
	}
	r.n = off
}

func (r *countReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	r.n += int64(n)
	return n, err
}

func (r *countReader) ReadByte() (byte, error) {
	b, err := r.r.ReadByte()
	if err == nil {
		r.n++
	}
	return b, err
}
