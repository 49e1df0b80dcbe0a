// Copyright ©2025 The bamix Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bgzf implements BGZF format reading and writing, as required by
// virtual-offset random access into block compressed alignment data. The
// BGZF format is described in the SAM specification.
//
// http://samtools.github.io/hts-specs/SAMv1.pdf
package bgzf

import (
	"errors"
	"os"
)

const (
	// BlockSize is the maximum number of uncompressed bytes
	// stored in a single BGZF block.
	BlockSize = 0x0ff00

	// MaxBlockSize is the maximum size of a compressed BGZF block.
	MaxBlockSize = 0x10000
)

const (
	bgzfExtra = "BC\x02\x00\x00\x00"
	frameSize = 18 + 8 // Fixed gzip member header and footer length.

	// magicBlock is the empty BGZF block marking the end of a file.
	magicBlock = "\x1f\x8b\x08\x04\x00\x00\x00\x00\x00\xff\x06\x00\x42\x43\x02\x00\x1b\x00\x03\x00\x00\x00\x00\x00\x00\x00\x00\x00"
)

var bgzfExtraPrefix = []byte(bgzfExtra[:4])

var (
	// ErrClosed is returned by operations on a closed Writer.
	ErrClosed = errors.New("bgzf: use of closed writer")

	// ErrBlockOverflow is returned when a block exceeds MaxBlockSize
	// after compression.
	ErrBlockOverflow = errors.New("bgzf: block overflow")

	// ErrNoBlockSize is returned when a gzip member lacks the BGZF
	// BC extra field declaring its compressed size.
	ErrNoBlockSize = errors.New("bgzf: could not determine block size")

	// ErrNotASeeker is returned by Reader.Seek when the underlying
	// stream does not support seeking.
	ErrNotASeeker = errors.New("bgzf: not a seeker")

	// ErrBlockSizeMismatch is returned when a block's compressed
	// extent disagrees with the size declared in its header.
	ErrBlockSizeMismatch = errors.New("bgzf: unexpected block size")

	// ErrInvalidOffset is returned by Reader.Seek when the intra-block
	// part of a virtual offset lies outside the addressed block.
	ErrInvalidOffset = errors.New("bgzf: invalid virtual offset")

	// ErrWrongFileType is returned by HasEOF when the file is not
	// a regular file.
	ErrWrongFileType = errors.New("bgzf: file is a directory")
)

// HasEOF checks the given file for the presence of the BGZF magic EOF
// block. A false return with a nil error indicates the file is likely
// truncated.
func HasEOF(f *os.File) (bool, error) {
	fi, err := f.Stat()
	if err != nil {
		return false, err
	}
	if fi.IsDir() {
		return false, ErrWrongFileType
	}
	if fi.Size() < int64(len(magicBlock)) {
		return false, nil
	}
	b := make([]byte, len(magicBlock))
	_, err = f.ReadAt(b, fi.Size()-int64(len(magicBlock)))
	if err != nil {
		return false, err
	}
	for i := range b {
		if b[i] != magicBlock[i] {
			return false, nil
		}
	}
	return true, nil
}

// Offset is a BGZF virtual offset: the file offset of the start of a
// compressed block paired with an offset into that block's decompressed
// data.
type Offset struct {
	File  int64
	Block uint16
}

// Chunk is a half-open range of virtual offsets, [Begin,End).
type Chunk struct {
	Begin Offset
	End   Offset
}

// VOffset returns the composite 64-bit virtual offset for o, ordering
// offsets first by file position and then by intra-block position.
func VOffset(o Offset) int64 {
	return o.File<<16 | int64(o.Block)
}
