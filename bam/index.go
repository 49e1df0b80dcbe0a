// Copyright ©2025 The bamix Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bam

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/seqio/bamix/bgzf"
	"github.com/seqio/bamix/internal/index"
)

var baiMagic = [4]byte{'B', 'A', 'I', 0x1}

// Index is a BAI index for a BAM container.
type Index struct {
	idx index.Index
}

// NumRefs returns the number of references covered by the index.
func (i *Index) NumRefs() int {
	return len(i.idx.Refs)
}

// ReferenceStats holds the pseudo-bin statistics of a reference.
type ReferenceStats struct {
	// Chunk is the span of compressed data holding records placed
	// on the reference.
	Chunk bgzf.Chunk

	// Mapped and Unmapped are the counts of mapped and placed
	// unmapped reads on the reference.
	Mapped, Unmapped uint64
}

// ReferenceStats returns the statistics of the given reference and
// whether the index holds them.
func (i *Index) ReferenceStats(id int) (stats ReferenceStats, ok bool) {
	if id < 0 || id >= len(i.idx.Refs) {
		return ReferenceStats{}, false
	}
	s := i.idx.Refs[id].Stats
	if s == nil {
		return ReferenceStats{}, false
	}
	return ReferenceStats{Chunk: s.Chunk, Mapped: s.Mapped, Unmapped: s.Unmapped}, true
}

// Unmapped returns the number of unplaced unmapped reads and whether
// the count is held by the index.
func (i *Index) Unmapped() (n uint64, ok bool) {
	if i.idx.Unmapped == nil {
		return 0, false
	}
	return *i.idx.Unmapped, true
}

// Add records the given record as being located at the given chunk.
// Records must be added in the container's sort order.
func (i *Index) Add(r *Record, c bgzf.Chunk) error {
	return i.idx.Add(r, uint32(r.Bin()), c, r.placed(), r.mapped())
}

// Chunks returns the set of candidate chunks for records overlapping
// the interval [beg,end) of the given reference. A nil chunk slice
// with a nil error indicates the query is valid but cannot match any
// record.
//
// Chunks returns ErrNoReference for a negative reference id,
// ErrInvalidRegion for a malformed interval and ErrInvalidIndex when
// the stored index data for the reference failed validation.
func (i *Index) Chunks(rid, beg, end int) ([]bgzf.Chunk, error) {
	chunks, err := i.idx.Chunks(rid, beg, end)
	switch {
	case err == nil:
		return chunks, nil
	case errors.Is(err, index.ErrNoReference):
		return nil, ErrNoReference
	case errors.Is(err, index.ErrInvalid):
		return nil, ErrInvalidRegion
	case errors.Is(err, index.ErrRefMalformed):
		return nil, ErrInvalidIndex
	}
	return nil, err
}

// MergeChunks applies the given MergeStrategy to all bins of the
// index.
func (i *Index) MergeChunks(s MergeStrategy) {
	i.idx.MergeChunks(s)
}

// unmappedStart returns the virtual offset at which the trailing run
// of unplaced records starts: the highest chunk end recorded in the
// per-reference statistics, or the zero offset if no reference holds
// statistics.
func (i *Index) unmappedStart() bgzf.Offset {
	var last bgzf.Offset
	for _, r := range i.idx.Refs {
		if r.Stats == nil {
			continue
		}
		if bgzf.VOffset(r.Stats.Chunk.End) > bgzf.VOffset(last) {
			last = r.Stats.Chunk.End
		}
	}
	return last
}

// MergeStrategy represents a chunk merging strategy.
type MergeStrategy = index.MergeStrategy

var (
	// Identity leaves the chunk list unaltered.
	Identity = index.Identity

	// Adjacent merges contiguous chunks.
	Adjacent = index.Adjacent

	// Squash merges all chunks into a single span.
	Squash = index.Squash
)

// CompressorStrategy returns a MergeStrategy that merges chunks whose
// uncompressed starts are within near bytes in the compressed stream.
func CompressorStrategy(near int64) MergeStrategy {
	return index.CompressorStrategy(near)
}

// NewIndexFor builds a BAI index over the remaining records of r,
// which must be coordinate sorted. The reader is left at the end of
// its stream.
func NewIndexFor(r *Reader) (*Index, error) {
	var bai Index
	for {
		rec, err := r.Read()
		if err == io.EOF {
			return &bai, nil
		}
		if err != nil {
			return nil, err
		}
		err = bai.Add(rec, r.LastChunk())
		if err != nil {
			return nil, err
		}
	}
}

// ReadIndex reads the BAI index from r.
//
// References whose stored data fails structural validation are marked
// unusable; queries against them return ErrInvalidIndex while other
// references remain resolvable.
func ReadIndex(r io.Reader) (*Index, error) {
	var magic [4]byte
	err := binary.Read(r, binary.LittleEndian, &magic)
	if err != nil {
		return nil, err
	}
	if magic != baiMagic {
		return nil, ErrInvalidMagic
	}

	var bai Index
	bai.idx, err = index.ReadIndex(r, "bam")
	if err != nil {
		return nil, err
	}
	return &bai, nil
}

// WriteIndex writes the BAI index to w.
func WriteIndex(w io.Writer, idx *Index) error {
	err := binary.Write(w, binary.LittleEndian, baiMagic)
	if err != nil {
		return err
	}
	return index.WriteIndex(w, &idx.idx, "bam")
}
