// Copyright ©2025 The bamix Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bam

import (
	"fmt"

	"github.com/seqio/bamix/internal/index"
)

// Record is a single alignment record. The sequence, quality and
// auxiliary tag data are carried as raw BAM-encoded payload; the fields
// needed for interval resolution are decoded.
//
// Records produced by a Reader alias the Reader's internal buffer and
// are only valid until the next read; use Clone to retain one.
type Record struct {
	Name    string
	Ref     *Reference
	Pos     int
	MapQ    uint8
	Flags   Flags
	Cigar   Cigar
	MateRef *Reference
	MatePos int
	TempLen int

	// SeqLen is the length of the read sequence. Seq holds the
	// 4-bit packed bases, Qual the per-base qualities and Aux the
	// undecoded auxiliary tag block.
	SeqLen int
	Seq    []byte
	Qual   []byte
	Aux    []byte
}

// RefID returns the reference ID of the Record, -1 when unplaced.
func (r *Record) RefID() int { return r.Ref.ID() }

// Start returns the lower-coordinate end of the alignment.
func (r *Record) Start() int { return r.Pos }

// End returns the highest reference-consuming coordinate end of the
// alignment. A placed record with no reference-consuming operations is
// given unit length so that it remains addressable by interval queries.
func (r *Record) End() int {
	pos := r.Pos
	end := pos
	for _, co := range r.Cigar {
		pos += co.Len() * co.Type().Consumes().Reference
		if pos > end {
			end = pos
		}
	}
	if end == r.Pos && r.placed() {
		return r.Pos + 1
	}
	return end
}

// Overlaps returns whether the alignment interval of r intersects the
// half-open coordinate interval [beg,end).
func (r *Record) Overlaps(beg, end int) bool {
	return r.Start() < end && r.End() > beg
}

// Bin returns the index bin of the Record.
func (r *Record) Bin() int {
	if r.Flags&Unmapped != 0 {
		return 4680 // BinFor(-1, 0)
	}
	end := r.End()
	if !index.ValidPos(r.Pos) || !index.ValidPos(end) {
		return -1
	}
	return int(index.BinFor(r.Pos, end))
}

// placed returns whether the record has a genomic placement.
func (r *Record) placed() bool {
	return r.Ref != nil && r.Pos != -1
}

// mapped returns whether the record is flagged as mapped.
func (r *Record) mapped() bool {
	return r.Flags&Unmapped == 0
}

// Clone returns a deep copy of r whose payload does not alias any
// reader buffer.
func (r *Record) Clone() *Record {
	c := *r
	c.Cigar = append(Cigar(nil), r.Cigar...)
	c.Seq = append([]byte(nil), r.Seq...)
	c.Qual = append([]byte(nil), r.Qual...)
	c.Aux = append([]byte(nil), r.Aux...)
	return &c
}

// String returns a summary representation of the Record.
func (r *Record) String() string {
	return fmt.Sprintf("%s %v %s:%d..%d %d %v",
		r.Name,
		r.Flags,
		r.Ref.Name(),
		r.Pos,
		r.End(),
		r.MapQ,
		r.Cigar,
	)
}
