// Copyright ©2025 The bamix Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bam

import (
	"io"

	"github.com/seqio/bamix/bgzf"
)

// unmappedEnd is the sentinel chunk end used when iterating the
// trailing run of unplaced records. It is far beyond any real file
// offset, so iteration runs to the end of the stream.
var unmappedEnd = bgzf.Offset{File: 1 << 46}

// Iterator wraps a Reader to provide a convenient loop interface for
// reading records, optionally restricted to the candidate chunks of an
// index query. Successive calls to the Next method step through the
// records; iteration stops unrecoverably at the end of the selection
// or at the first error.
//
// Iterators sharing a Reader may interleave freely. Each Next call
// restores the iterator's own stream position before reading, so a
// seek performed by another iterator or by the Reader between calls
// does not disturb the iteration.
type Iterator struct {
	r *Reader

	// ownReader marks a Reader created for this Iterator alone,
	// closed by Close. f is the parent when the Iterator was
	// created by a File.
	ownReader bool
	f         *File

	q      *Query
	chunks []bgzf.Chunk
	ci     int

	// pos is the iterator's saved stream position, restored under
	// the Reader's lock before each read.
	pos bgzf.Offset

	rec    *Record
	err    error
	closed bool
}

// NewIterator returns an Iterator over the given candidate chunks of
// r. An empty chunk set yields an immediately exhausted iterator.
func NewIterator(r *Reader, chunks []bgzf.Chunk) (*Iterator, error) {
	it := &Iterator{r: r, chunks: chunks}
	if len(chunks) == 0 {
		it.err = io.EOF
		return it, nil
	}
	it.pos = chunks[0].Begin
	return it, nil
}

// NewQueryIterator returns an Iterator over the records of r selected
// by q through the given index. Records are yielded only if their
// alignment interval overlaps the query interval.
//
// A query that is well formed but cannot match any record yields an
// exhausted iterator and no error. NewQueryIterator returns ErrNoIndex
// if idx is nil.
func NewQueryIterator(r *Reader, idx *Index, q Query) (*Iterator, error) {
	chunks, nq, err := resolveQuery(r.h, idx, r.dataStart, q)
	if err != nil {
		return nil, err
	}
	it, err := NewIterator(r, chunks)
	if err != nil {
		return nil, err
	}
	it.q = &nq
	return it, nil
}

// resolveQuery validates q against h and maps it to candidate chunks.
// dataStart is the fallback start of record data for unplaced-record
// queries against an index holding no reference statistics.
func resolveQuery(h *Header, idx *Index, dataStart bgzf.Offset, q Query) ([]bgzf.Chunk, Query, error) {
	if idx == nil {
		return nil, Query{}, ErrNoIndex
	}
	nq, err := NewQuery(h, q.RefID, q.Start, q.End)
	if err != nil {
		return nil, Query{}, err
	}
	if nq.RefID == RefUnmapped {
		begin := idx.unmappedStart()
		if isZeroOffset(begin) {
			begin = dataStart
		}
		return []bgzf.Chunk{{Begin: begin, End: unmappedEnd}}, nq, nil
	}
	chunks, err := idx.Chunks(nq.RefID, nq.Start, nq.End)
	if err != nil {
		return nil, Query{}, err
	}
	return chunks, nq, nil
}

func isZeroOffset(o bgzf.Offset) bool { return o == bgzf.Offset{} }

// Next advances the Iterator past the next matching record, which will
// then be available through the Record method. It returns false when
// the iteration stops, either by reaching the end of the selection or
// an error. After Next returns false, the Error method will return any
// error that occurred during iteration.
func (it *Iterator) Next() bool {
	if it.err != nil || it.closed {
		return false
	}
	if it.f != nil && it.f.isClosed() {
		it.err = ErrClosed
		return false
	}

	it.r.mu.Lock()
	defer it.r.mu.Unlock()
	for {
		if bgzf.VOffset(it.pos) >= bgzf.VOffset(it.chunks[it.ci].End) {
			it.ci++
			if it.ci == len(it.chunks) {
				it.err = io.EOF
				return false
			}
			it.pos = it.chunks[it.ci].Begin
		}
		if it.r.bg.Tell() != it.pos {
			err := it.r.bg.Seek(it.pos)
			if err != nil {
				it.err = err
				return false
			}
		}

		rec, err := it.r.readRecord()
		if err != nil {
			it.err = err
			return false
		}
		it.pos = it.r.bg.Tell()

		if it.q == nil {
			it.rec = rec
			return true
		}
		if it.q.RefID == RefUnmapped {
			if rec.Ref == nil {
				it.rec = rec
				return true
			}
			continue
		}

		// Records are coordinate sorted, so the first record at or
		// beyond the query boundary ends the iteration.
		rid := rec.RefID()
		switch {
		case rid < it.q.RefID:
			continue
		case rid > it.q.RefID, rec.Start() >= it.q.End:
			it.err = io.EOF
			return false
		}
		if rec.Overlaps(it.q.Start, it.q.End) {
			it.rec = rec
			return true
		}
	}
}

// Record returns the record most recently yielded by Next. The record
// payload aliases the Reader's buffer and is valid only until the
// Reader next reads; use Record.Clone to retain it.
func (it *Iterator) Record() *Record { return it.rec }

// Error returns the error that stopped the iteration, or nil if the
// selection was cleanly exhausted.
func (it *Iterator) Error() error {
	if it.err == io.EOF {
		return nil
	}
	return it.err
}

// Close releases the Iterator. Iterators over a Reader owned by a File
// close their private stream; shared Readers are left open.
func (it *Iterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	it.rec = nil
	if it.ownReader {
		return it.r.Close()
	}
	return nil
}
