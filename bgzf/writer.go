// Copyright ©2025 The bamix Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bgzf

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"encoding/binary"
	"hash/crc32"
	"io"
)

// Writer implements BGZF writing. Data is buffered into blocks of at
// most BlockSize uncompressed bytes, each emitted as an independent
// gzip member carrying the BC extra field required for virtual-offset
// addressing. Closing the Writer appends the BGZF magic EOF block.
type Writer struct {
	w     io.Writer
	level int

	pending bytes.Buffer
	body    bytes.Buffer
	fw      *flate.Writer

	err    error
	closed bool
}

// NewWriter returns a Writer writing BGZF to w at the default
// compression level.
func NewWriter(w io.Writer) *Writer {
	bw, _ := NewWriterLevel(w, gzip.DefaultCompression)
	return bw
}

// NewWriterLevel returns a Writer writing BGZF to w at the given
// compression level. Valid levels are described in the compress/flate
// documentation.
func NewWriterLevel(w io.Writer, level int) (*Writer, error) {
	fw, err := flate.NewWriter(io.Discard, level)
	if err != nil {
		return nil, err
	}
	return &Writer{w: w, level: level, fw: fw}, nil
}

// Write buffers p, flushing completed blocks as they fill. It satisfies
// the io.Writer interface.
func (bw *Writer) Write(p []byte) (int, error) {
	if bw.closed {
		return 0, ErrClosed
	}
	if bw.err != nil {
		return 0, bw.err
	}
	var n int
	for len(p) > 0 {
		room := BlockSize - bw.pending.Len()
		if room == 0 {
			bw.err = bw.writeBlock()
			if bw.err != nil {
				return n, bw.err
			}
			continue
		}
		if room > len(p) {
			room = len(p)
		}
		bw.pending.Write(p[:room])
		p = p[room:]
		n += room
	}
	return n, nil
}

// Flush ends the current block, writing any buffered data. Flush
// establishes a block boundary, so the next written byte begins a new
// block addressable by a virtual offset with a zero intra-block part.
func (bw *Writer) Flush() error {
	if bw.closed {
		return ErrClosed
	}
	if bw.err != nil {
		return bw.err
	}
	if bw.pending.Len() == 0 {
		return nil
	}
	bw.err = bw.writeBlock()
	return bw.err
}

// Close flushes buffered data, writes the magic EOF block and marks the
// Writer closed. The underlying io.Writer is not closed.
func (bw *Writer) Close() error {
	if bw.closed {
		return nil
	}
	err := bw.Flush()
	if err != nil {
		return err
	}
	bw.closed = true
	_, bw.err = io.WriteString(bw.w, magicBlock)
	return bw.err
}

// writeBlock emits the pending data as a single BGZF block. The member
// is assembled by hand because the BC extra field declares the
// compressed member size, which is only known after compression.
func (bw *Writer) writeBlock() error {
	data := bw.pending.Bytes()

	bw.body.Reset()
	bw.fw.Reset(&bw.body)
	_, err := bw.fw.Write(data)
	if err != nil {
		return err
	}
	err = bw.fw.Close()
	if err != nil {
		return err
	}

	size := bw.body.Len() + frameSize
	if size > MaxBlockSize {
		return ErrBlockOverflow
	}

	var head [18]byte
	head[0] = 0x1f // gzip magic.
	head[1] = 0x8b
	head[2] = 8    // CM deflate.
	head[3] = 0x04 // FLG FEXTRA.
	head[9] = 0xff // OS unknown.
	head[10] = 6   // XLEN.
	copy(head[12:16], bgzfExtraPrefix)
	binary.LittleEndian.PutUint16(head[16:], uint16(size-1))
	_, err = bw.w.Write(head[:])
	if err != nil {
		return err
	}
	_, err = bw.w.Write(bw.body.Bytes())
	if err != nil {
		return err
	}

	var foot [8]byte
	binary.LittleEndian.PutUint32(foot[:4], crc32.ChecksumIEEE(data))
	binary.LittleEndian.PutUint32(foot[4:], uint32(len(data)))
	_, err = bw.w.Write(foot[:])
	if err != nil {
		return err
	}

	bw.pending.Reset()
	return nil
}
