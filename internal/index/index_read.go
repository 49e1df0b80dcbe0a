// Copyright ©2025 The bamix Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package index

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/seqio/bamix/bgzf"
)

// errMalformed marks structural inconsistencies in stored index data:
// impossible counts or a broken statistics pseudo-bin. The enclosing
// stream cannot be resynchronized past such a point, but references
// parsed before it remain valid.
var errMalformed = errors.New("structurally malformed")

// ReadIndex reads the body of a coordinate index from r. The magic
// number identifying the concrete format is expected to have been
// consumed by the caller; typ names the format in errors.
//
// A structural inconsistency inside one reference quarantines that
// reference and all following it, since the remainder of the stream
// cannot be located, but does not discard references already read.
func ReadIndex(r io.Reader, typ string) (Index, error) {
	var (
		idx Index
		n   int32
	)
	err := binary.Read(r, binary.LittleEndian, &n)
	if err != nil {
		return idx, err
	}
	if n < 0 {
		return idx, fmt.Errorf("%s: invalid reference count: %w", typ, errMalformed)
	}
	idx.Refs = make([]RefIndex, n)
	for i := range idx.Refs {
		err = readRef(r, typ, &idx.Refs[i])
		if err != nil {
			if errors.Is(err, errMalformed) {
				for j := i; j < len(idx.Refs); j++ {
					idx.Refs[j] = RefIndex{Malformed: true}
				}
				idx.IsSorted = true
				return idx, nil
			}
			return idx, err
		}
	}
	var nUnmapped uint64
	err = binary.Read(r, binary.LittleEndian, &nUnmapped)
	if err == nil {
		idx.Unmapped = &nUnmapped
	} else if err != io.EOF {
		return idx, err
	}
	idx.IsSorted = true
	idx.Validate()
	return idx, nil
}

func readRef(r io.Reader, typ string, ref *RefIndex) error {
	var err error
	ref.Bins, ref.Stats, err = readBins(r, typ)
	if err != nil {
		return err
	}
	ref.Intervals, err = readIntervals(r, typ)
	return err
}

func readBins(r io.Reader, typ string) ([]Bin, *ReferenceStats, error) {
	var n int32
	err := binary.Read(r, binary.LittleEndian, &n)
	if err != nil {
		return nil, nil, err
	}
	if n == 0 {
		return nil, nil, nil
	}
	if n < 0 {
		return nil, nil, fmt.Errorf("%s: invalid bin count: %w", typ, errMalformed)
	}
	var stats *ReferenceStats
	bins := make([]Bin, n)
	for i := 0; i < len(bins); i++ {
		err = binary.Read(r, binary.LittleEndian, &bins[i].Bin)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: failed to read bin number: %v", typ, err)
		}
		err = binary.Read(r, binary.LittleEndian, &n)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: failed to read bin count: %v", typ, err)
		}
		if bins[i].Bin == StatsDummyBin {
			if n != 2 {
				return nil, nil, fmt.Errorf("%s: malformed dummy bin header: %w", typ, errMalformed)
			}
			stats, err = readStats(r, typ)
			if err != nil {
				return nil, nil, err
			}
			bins = bins[:len(bins)-1]
			i--
			continue
		}
		bins[i].Chunks, err = readChunks(r, typ, n)
		if err != nil {
			return nil, nil, err
		}
	}
	if !sort.IsSorted(byBinNumber(bins)) {
		sort.Sort(byBinNumber(bins))
	}
	return bins, stats, nil
}

func readChunks(r io.Reader, typ string, n int32) ([]bgzf.Chunk, error) {
	if n == 0 {
		return nil, nil
	}
	if n < 0 {
		return nil, fmt.Errorf("%s: invalid chunk count: %w", typ, errMalformed)
	}
	var (
		vOff uint64
		err  error
	)
	chunks := make([]bgzf.Chunk, n)
	for i := range chunks {
		err = binary.Read(r, binary.LittleEndian, &vOff)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to read chunk begin virtual offset: %v", typ, err)
		}
		chunks[i].Begin = MakeOffset(vOff)
		err = binary.Read(r, binary.LittleEndian, &vOff)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to read chunk end virtual offset: %v", typ, err)
		}
		chunks[i].End = MakeOffset(vOff)
	}
	if !sort.IsSorted(byBeginOffset(chunks)) {
		sort.Sort(byBeginOffset(chunks))
	}
	return chunks, nil
}

func readStats(r io.Reader, typ string) (*ReferenceStats, error) {
	var (
		vOff  uint64
		stats ReferenceStats
		err   error
	)
	err = binary.Read(r, binary.LittleEndian, &vOff)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read index stats chunk begin virtual offset: %v", typ, err)
	}
	stats.Chunk.Begin = MakeOffset(vOff)
	err = binary.Read(r, binary.LittleEndian, &vOff)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read index stats chunk end virtual offset: %v", typ, err)
	}
	stats.Chunk.End = MakeOffset(vOff)
	err = binary.Read(r, binary.LittleEndian, &stats.Mapped)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read index stats mapped count: %v", typ, err)
	}
	err = binary.Read(r, binary.LittleEndian, &stats.Unmapped)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read index stats unmapped count: %v", typ, err)
	}
	return &stats, nil
}

func readIntervals(r io.Reader, typ string) ([]bgzf.Offset, error) {
	var n int32
	err := binary.Read(r, binary.LittleEndian, &n)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	if n < 0 {
		return nil, fmt.Errorf("%s: invalid interval count: %w", typ, errMalformed)
	}
	var vOff uint64
	offsets := make([]bgzf.Offset, n)
	for i := range offsets {
		err := binary.Read(r, binary.LittleEndian, &vOff)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to read tile interval virtual offset: %v", typ, err)
		}
		offsets[i] = MakeOffset(vOff)
	}
	return offsets, nil
}
