// Copyright ©2025 The bamix Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bam

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/seqio/bamix/bgzf"
)

// Writer implements BAM container writing.
type Writer struct {
	h *Header

	bg  *bgzf.Writer
	buf []byte
}

// NewWriter returns a Writer to the given io.Writer carrying the
// given header. The header block is flushed so that alignment data
// starts on a fresh BGZF block.
func NewWriter(w io.Writer, h *Header) (*Writer, error) {
	return NewWriterLevel(w, h, -1)
}

// NewWriterLevel returns a Writer using the given compression level.
func NewWriterLevel(w io.Writer, h *Header, level int) (*Writer, error) {
	bg, err := bgzf.NewWriterLevel(w, level)
	if err != nil {
		return nil, err
	}
	bw := &Writer{h: h, bg: bg}
	err = h.EncodeBinary(bw.bg)
	if err != nil {
		return nil, err
	}
	err = bw.bg.Flush()
	if err != nil {
		return nil, err
	}
	return bw, nil
}

// Write writes r to the BAM stream.
func (bw *Writer) Write(r *Record) error {
	if len(r.Name) == 0 || len(r.Name) > 254 {
		return errors.New("bam: name absent or too long")
	}
	if len(r.Seq) != (r.SeqLen+1)>>1 {
		return errors.New("bam: sequence length mismatch")
	}
	if len(r.Qual) != 0 && len(r.Qual) != r.SeqLen {
		return errors.New("bam: quality length mismatch")
	}
	bin := r.Bin()
	if bin < 0 {
		return errors.New("bam: record position out of range")
	}

	recLen := fixedRemainder +
		len(r.Name) + 1 +
		len(r.Cigar)*4 +
		len(r.Seq) +
		r.SeqLen +
		len(r.Aux)
	bw.buf = bw.buf[:0]

	bw.putInt32(int32(recLen))
	bw.putInt32(int32(r.RefID()))
	bw.putInt32(int32(r.Pos))
	bw.buf = append(bw.buf, byte(len(r.Name)+1))
	bw.buf = append(bw.buf, r.MapQ)
	bw.putUint16(uint16(bin))
	bw.putUint16(uint16(len(r.Cigar)))
	bw.putUint16(uint16(r.Flags))
	bw.putInt32(int32(r.SeqLen))
	bw.putInt32(int32(r.MateRef.ID()))
	bw.putInt32(int32(r.MatePos))
	bw.putInt32(int32(r.TempLen))
	bw.buf = append(bw.buf, r.Name...)
	bw.buf = append(bw.buf, 0)
	for _, co := range r.Cigar {
		bw.putUint32(uint32(co))
	}
	bw.buf = append(bw.buf, r.Seq...)
	if len(r.Qual) == 0 {
		for i := 0; i < r.SeqLen; i++ {
			bw.buf = append(bw.buf, 0xff)
		}
	} else {
		bw.buf = append(bw.buf, r.Qual...)
	}
	bw.buf = append(bw.buf, r.Aux...)

	_, err := bw.bg.Write(bw.buf)
	return err
}

func (bw *Writer) putInt32(v int32) {
	bw.buf = binary.LittleEndian.AppendUint32(bw.buf, uint32(v))
}

func (bw *Writer) putUint32(v uint32) {
	bw.buf = binary.LittleEndian.AppendUint32(bw.buf, v)
}

func (bw *Writer) putUint16(v uint16) {
	bw.buf = binary.LittleEndian.AppendUint16(bw.buf, v)
}

// Flush completes the current BGZF block. Subsequent records start a
// new block.
func (bw *Writer) Flush() error {
	return bw.bg.Flush()
}

// Close flushes any buffered data and writes the terminating empty
// BGZF block. The underlying io.Writer is not closed.
func (bw *Writer) Close() error {
	return bw.bg.Close()
}
