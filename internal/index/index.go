// Copyright ©2025 The bamix Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package index provides the coordinate binning index shared by the BAI
// read, write and resolution paths. The scheme is the hierarchical
// binning described in the SAM specification section 5: coordinates in
// [0,2^29) map to the smallest bin enclosing an interval across six
// levels, with a 16 kbp linear index recording the lowest virtual
// offset intersecting each tile.
package index

import (
	"errors"
	"sort"

	"github.com/seqio/bamix/bgzf"
)

const (
	// TileWidth is the length of the linear index tiling.
	TileWidth = 0x4000

	// StatsDummyBin is the bin number of the reference statistics
	// pseudo-bin.
	StatsDummyBin = 0x924a
)

var (
	// ErrNoReference is returned by Chunks for a negative
	// reference id.
	ErrNoReference = errors.New("index: no reference")

	// ErrInvalid is returned by Chunks for a malformed coordinate
	// interval.
	ErrInvalid = errors.New("index: invalid interval")

	// ErrRefMalformed is returned by Chunks for a reference whose
	// stored index data failed structural validation. Other
	// references of the same Index remain usable.
	ErrRefMalformed = errors.New("index: reference index malformed")

	errAddOutOfRange = errors.New("index: attempt to add record outside indexable range")
	errRefOrder      = errors.New("index: attempt to add record out of reference ID sort order")
	errPosOrder      = errors.New("index: attempt to add record out of position sort order")
)

// Index is a coordinate based index over a BGZF compressed container.
type Index struct {
	Refs       []RefIndex
	Unmapped   *uint64
	IsSorted   bool
	LastRecord int
}

// RefIndex is the index of a single reference.
type RefIndex struct {
	Bins      []Bin
	Stats     *ReferenceStats
	Intervals []bgzf.Offset

	// Malformed marks a reference whose stored data failed
	// validation; resolution against it is refused.
	Malformed bool
}

// Bin is an index bin.
type Bin struct {
	Bin    uint32
	Chunks []bgzf.Chunk
}

// ReferenceStats holds mapping statistics for a genomic reference.
type ReferenceStats struct {
	// Chunk is the span of the indexed BGZF data holding
	// records placed on the reference.
	Chunk bgzf.Chunk

	// Mapped and Unmapped are the counts of mapped and unmapped
	// placed reads.
	Mapped   uint64
	Unmapped uint64
}

// Record wraps types that may be indexed by an Index.
type Record interface {
	RefID() int
	Start() int
	End() int
}

// Add records r as located at chunk c. Records must be added in
// non-decreasing reference id and position order.
func (i *Index) Add(r Record, bin uint32, c bgzf.Chunk, placed, mapped bool) error {
	if !ValidPos(r.Start()) || !ValidPos(r.End()) {
		return errAddOutOfRange
	}

	if i.Unmapped == nil {
		i.Unmapped = new(uint64)
	}
	if !placed {
		*i.Unmapped++
		return nil
	}

	rid := r.RefID()
	switch {
	case rid < len(i.Refs)-1:
		return errRefOrder
	case rid == len(i.Refs):
		i.Refs = append(i.Refs, RefIndex{})
		i.LastRecord = 0
	case rid > len(i.Refs):
		refs := make([]RefIndex, rid+1)
		copy(refs, i.Refs)
		i.Refs = refs
		i.LastRecord = 0
	}
	ref := &i.Refs[rid]

	// Record bin information, extending the last chunk of the bin
	// when the new chunk abuts or overlaps it.
	for b, bb := range ref.Bins {
		if bb.Bin == bin {
			for k, chunk := range ref.Bins[b].Chunks {
				if bgzf.VOffset(chunk.End) > bgzf.VOffset(c.Begin) {
					ref.Bins[b].Chunks[k].End = c.End
					goto found
				}
			}
			ref.Bins[b].Chunks = append(ref.Bins[b].Chunks, c)
			goto found
		}
	}
	i.IsSorted = false
	ref.Bins = append(ref.Bins, Bin{
		Bin:    bin,
		Chunks: []bgzf.Chunk{c},
	})
found:

	// Record linear index tile information. Each tile overlapped by
	// the record holds the lowest chunk begin offset of any record
	// reaching it; records arrive position sorted, so the first
	// offset stored in a tile is the minimum.
	biv := r.Start() / TileWidth
	if r.Start() < i.LastRecord {
		return errPosOrder
	}
	i.LastRecord = r.Start()
	eiv := (r.End() - 1) / TileWidth
	if eiv >= len(ref.Intervals) {
		intvs := make([]bgzf.Offset, eiv+1)
		copy(intvs, ref.Intervals)
		ref.Intervals = intvs
	}
	for iv := biv; iv <= eiv; iv++ {
		if isZero(ref.Intervals[iv]) {
			ref.Intervals[iv] = c.Begin
		}
	}

	// Record reference statistics.
	if ref.Stats == nil {
		ref.Stats = &ReferenceStats{
			Chunk: c,
		}
	} else {
		ref.Stats.Chunk.End = c.End
	}
	if mapped {
		ref.Stats.Mapped++
	} else {
		ref.Stats.Unmapped++
	}

	return nil
}

// Chunks returns the ordered, merged chunk list for the interval
// [beg,end) on the reference with id rid. A nil chunk list with a nil
// error reports that the index holds no data for the interval; this is
// distinct from resolution failure, which returns a non-nil error.
func (i *Index) Chunks(rid, beg, end int) ([]bgzf.Chunk, error) {
	if rid < 0 {
		return nil, ErrNoReference
	}
	if beg < 0 || end < beg {
		return nil, ErrInvalid
	}
	if end > maxPos {
		end = maxPos
	}
	if rid >= len(i.Refs) || beg == end {
		return nil, nil
	}
	if i.Refs[rid].Malformed {
		return nil, ErrRefMalformed
	}
	i.sort()
	ref := i.Refs[rid]

	iv := beg / TileWidth
	if iv >= len(ref.Intervals) {
		return nil, nil
	}

	// Collect candidate chunks according to the scheme described in
	// the SAM spec under section 5 Indexing BAM. Candidates are
	// pruned using the linear index: a chunk wholly before the
	// lowest offset intersecting the query's tiles cannot hold an
	// overlapping record. All tiles from the left end of the query
	// are checked, not only the tile containing beg, since the left
	// end of the query region may have no alignments at all.
	var chunks []bgzf.Chunk
	for _, b := range OverlappingBinsFor(beg, end) {
		c := sort.Search(len(ref.Bins), func(i int) bool { return ref.Bins[i].Bin >= b })
		if c < len(ref.Bins) && ref.Bins[c].Bin == b {
			for _, chunk := range ref.Bins[c].Chunks {
				chunkEndOffset := bgzf.VOffset(chunk.End)
				for j, tile := range ref.Intervals[iv:] {
					// A zero tile is unset; no record ends
					// within it.
					if isZero(tile) {
						continue
					}
					tbeg := (j + iv) * TileWidth
					tend := tbeg + TileWidth
					if tend >= beg && tbeg <= end && chunkEndOffset > bgzf.VOffset(tile) {
						chunks = append(chunks, chunk)
						break
					}
				}
			}
		}
	}

	if !sort.IsSorted(byBeginOffset(chunks)) {
		sort.Sort(byBeginOffset(chunks))
	}

	// Coalesce overlapping and adjacent chunks so a linear scan
	// never decompresses the same block twice.
	return Adjacent(chunks), nil
}

// sort orders bins and chunks for binary search. Intervals are
// positional tiles, possibly with unset gaps, and are never reordered.
func (i *Index) sort() {
	if !i.IsSorted {
		for _, ref := range i.Refs {
			sort.Sort(byBinNumber(ref.Bins))
			for _, bin := range ref.Bins {
				sort.Sort(byBeginOffset(bin.Chunks))
			}
		}
		i.IsSorted = true
	}
}

// Validate marks references holding structurally inconsistent data as
// malformed. Validation failure of one reference does not disturb the
// others.
func (i *Index) Validate() {
	for r := range i.Refs {
		ref := &i.Refs[r]
		for _, bin := range ref.Bins {
			for _, c := range bin.Chunks {
				if bgzf.VOffset(c.End) < bgzf.VOffset(c.Begin) {
					ref.Malformed = true
				}
			}
		}
	}
}

// MergeStrategy determines how adjacent chunks are combined.
type MergeStrategy func([]bgzf.Chunk) []bgzf.Chunk

var (
	// Identity leaves the chunk list unaltered.
	Identity MergeStrategy = identity

	// Adjacent merges overlapping and contiguous chunks.
	Adjacent MergeStrategy = adjacent

	// Squash merges all chunks into a single chunk.
	Squash MergeStrategy = squash
)

// CompressorStrategy returns a MergeStrategy that merges chunks whose
// compressed block starts lie within near bytes of each other.
func CompressorStrategy(near int64) MergeStrategy {
	return func(chunks []bgzf.Chunk) []bgzf.Chunk {
		if len(chunks) == 0 {
			return nil
		}
		for c := 1; c < len(chunks); c++ {
			left := chunks[c-1]
			right := &chunks[c]
			if left.End.File+near >= right.Begin.File {
				right.Begin = left.Begin
				if bgzf.VOffset(left.End) > bgzf.VOffset(right.End) {
					right.End = left.End
				}
				chunks = append(chunks[:c-1], chunks[c:]...)
				c--
			}
		}
		return chunks
	}
}

func identity(chunks []bgzf.Chunk) []bgzf.Chunk { return chunks }

func adjacent(chunks []bgzf.Chunk) []bgzf.Chunk {
	if len(chunks) == 0 {
		return nil
	}
	for c := 1; c < len(chunks); c++ {
		left := chunks[c-1]
		right := &chunks[c]
		leftEnd := bgzf.VOffset(left.End)
		if leftEnd >= bgzf.VOffset(right.Begin) {
			right.Begin = left.Begin
			if leftEnd > bgzf.VOffset(right.End) {
				right.End = left.End
			}
			chunks = append(chunks[:c-1], chunks[c:]...)
			c--
		}
	}
	return chunks
}

func squash(chunks []bgzf.Chunk) []bgzf.Chunk {
	if len(chunks) == 0 {
		return nil
	}
	left := chunks[0].Begin
	right := chunks[0].End
	for _, c := range chunks[1:] {
		if bgzf.VOffset(c.End) > bgzf.VOffset(right) {
			right = c.End
		}
	}
	return []bgzf.Chunk{{Begin: left, End: right}}
}

// MergeChunks applies the given MergeStrategy to all bins in the Index.
func (i *Index) MergeChunks(s MergeStrategy) {
	if s == nil {
		return
	}
	for _, ref := range i.Refs {
		for b, bin := range ref.Bins {
			if !sort.IsSorted(byBeginOffset(bin.Chunks)) {
				sort.Sort(byBeginOffset(bin.Chunks))
			}
			ref.Bins[b].Chunks = s(bin.Chunks)
			if !sort.IsSorted(byBeginOffset(bin.Chunks)) {
				sort.Sort(byBeginOffset(bin.Chunks))
			}
		}
	}
}

const (
	indexWordBits = 29
	nextBinShift  = 3

	maxPos = 1<<indexWordBits - 1
)

// ValidPos returns whether the given position is in the valid range
// for indexing, [-1, 1<<29-1). Positions are 0-based.
func ValidPos(i int) bool { return -1 <= i && i <= maxPos-1 }

const (
	level0 = uint32(((1 << (iota * nextBinShift)) - 1) / 7)
	level1
	level2
	level3
	level4
	level5
)

const (
	level0Shift = indexWordBits - (iota * nextBinShift)
	level1Shift
	level2Shift
	level3Shift
	level4Shift
	level5Shift
)

// BinFor returns the bin number for an interval covering [beg,end)
// (zero-based, half-closed-half-open).
func BinFor(beg, end int) uint32 {
	end--
	switch {
	case beg>>level5Shift == end>>level5Shift:
		return level5 + uint32(beg>>level5Shift)
	case beg>>level4Shift == end>>level4Shift:
		return level4 + uint32(beg>>level4Shift)
	case beg>>level3Shift == end>>level3Shift:
		return level3 + uint32(beg>>level3Shift)
	case beg>>level2Shift == end>>level2Shift:
		return level2 + uint32(beg>>level2Shift)
	case beg>>level1Shift == end>>level1Shift:
		return level1 + uint32(beg>>level1Shift)
	}
	return level0
}

// OverlappingBinsFor returns the bin numbers for all bins overlapping
// an interval covering [beg,end) (zero-based, half-closed-half-open).
func OverlappingBinsFor(beg, end int) []uint32 {
	end--
	list := []uint32{level0}
	for _, r := range []struct {
		offset, shift uint32
	}{
		{level1, level1Shift},
		{level2, level2Shift},
		{level3, level3Shift},
		{level4, level4Shift},
		{level5, level5Shift},
	} {
		for k := r.offset + uint32(beg>>r.shift); k <= r.offset+uint32(end>>r.shift); k++ {
			list = append(list, k)
		}
	}
	return list
}

// MakeOffset converts a 64-bit composite virtual offset to its
// structured form.
func MakeOffset(vOff uint64) bgzf.Offset {
	return bgzf.Offset{
		File:  int64(vOff >> 16),
		Block: uint16(vOff),
	}
}

func isZero(o bgzf.Offset) bool {
	return o == bgzf.Offset{}
}

type byBinNumber []Bin

func (b byBinNumber) Len() int           { return len(b) }
func (b byBinNumber) Less(i, j int) bool { return b[i].Bin < b[j].Bin }
func (b byBinNumber) Swap(i, j int)      { b[i], b[j] = b[j], b[i] }

type byBeginOffset []bgzf.Chunk

func (c byBeginOffset) Len() int           { return len(c) }
func (c byBeginOffset) Less(i, j int) bool { return bgzf.VOffset(c[i].Begin) < bgzf.VOffset(c[j].Begin) }
func (c byBeginOffset) Swap(i, j int)      { c[i], c[j] = c[j], c[i] }

