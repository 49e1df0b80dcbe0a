// Copyright ©2025 The bamix Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bam

import (
	"bytes"
	"errors"

	"gopkg.in/check.v1"

	"github.com/seqio/bamix/bgzf"
)

func (f *fixture) query(c *check.C, r *Reader, rid, beg, end int) *Iterator {
	it, err := NewQueryIterator(r, f.idx, Query{RefID: rid, Start: beg, End: end})
	c.Assert(err, check.IsNil)
	return it
}

func (s *S) TestQueryWholeReference(c *check.C) {
	f := buildContainer(c)
	r := f.reader(c)
	defer r.Close()

	it := f.query(c, r, 0, 0, 2000000)
	c.Check(names(c, it), check.DeepEquals, []string{"a1", "a2", "a3"})

	it = f.query(c, r, 1, 0, 1000000)
	c.Check(names(c, it), check.DeepEquals, []string{"b1"})
}

func (s *S) TestQueryOverlapOnly(c *check.C) {
	f := buildContainer(c)
	r := f.reader(c)
	defer r.Close()

	// a1 spans [100,200), a2 spans [16000,16500).
	for _, t := range []struct {
		beg, end int
		want     []string
	}{
		{150, 160, []string{"a1"}},
		{199, 200, []string{"a1"}},
		{200, 300, nil},
		{0, 100, nil},
		{0, 101, []string{"a1"}},
		{16384, 16385, []string{"a2"}},
		{16500, 17000, nil},
		{100, 16001, []string{"a1", "a2"}},
	} {
		it := f.query(c, r, 0, t.beg, t.end)
		c.Check(names(c, it), check.DeepEquals, t.want,
			check.Commentf("query [%d,%d)", t.beg, t.end))
	}
}

func (s *S) TestQueryNoData(c *check.C) {
	f := buildContainer(c)
	r := f.reader(c)
	defer r.Close()

	// A well formed query with no possible match exhausts cleanly.
	it := f.query(c, r, 0, 1900000, 2000000)
	c.Check(names(c, it), check.IsNil)

	// Reference in the header but absent from the index.
	it = f.query(c, r, 2, 0, 1000)
	c.Check(names(c, it), check.IsNil)

	// Empty interval.
	it = f.query(c, r, 0, 150, 150)
	c.Check(names(c, it), check.IsNil)
}

func (s *S) TestQueryErrors(c *check.C) {
	f := buildContainer(c)
	r := f.reader(c)
	defer r.Close()

	_, err := NewQueryIterator(r, f.idx, Query{RefID: 7, Start: 0, End: 100})
	c.Check(errors.Is(err, ErrNoReference), check.Equals, true)

	_, err = NewQueryIterator(r, f.idx, Query{RefID: 0, Start: 500, End: 100})
	c.Check(errors.Is(err, ErrInvalidRegion), check.Equals, true)

	_, err = NewQueryIterator(r, nil, Query{RefID: 0, Start: 0, End: 100})
	c.Check(errors.Is(err, ErrNoIndex), check.Equals, true)
}

func (s *S) TestQueryMalformedIndex(c *check.C) {
	f := buildContainer(c)
	r := f.reader(c)
	defer r.Close()

	f.idx.idx.Refs[0].Malformed = true
	_, err := NewQueryIterator(r, f.idx, Query{RefID: 0, Start: 0, End: 100})
	c.Check(errors.Is(err, ErrInvalidIndex), check.Equals, true)

	// Other references of the same index stay resolvable.
	it := f.query(c, r, 1, 0, 1000000)
	c.Check(names(c, it), check.DeepEquals, []string{"b1"})
}

func (s *S) TestQueryUnmapped(c *check.C) {
	f := buildContainer(c)
	r := f.reader(c)
	defer r.Close()

	it := f.query(c, r, RefUnmapped, 0, 0)
	c.Check(names(c, it), check.DeepEquals, []string{"u1", "u2"})
}

func (s *S) TestRequeryDeterminism(c *check.C) {
	f := buildContainer(c)
	r := f.reader(c)
	defer r.Close()

	first := names(c, f.query(c, r, 0, 0, 2000000))
	second := names(c, f.query(c, r, 0, 0, 2000000))
	c.Check(second, check.DeepEquals, first)
}

func (s *S) TestInterleavedSharedReader(c *check.C) {
	f := buildContainer(c)
	r := f.reader(c)
	defer r.Close()

	it1 := f.query(c, r, 0, 0, 2000000)
	it2 := f.query(c, r, 1, 0, 1000000)

	// Alternating advances must not disturb each other's position.
	c.Assert(it1.Next(), check.Equals, true)
	c.Check(it1.Record().Name, check.Equals, "a1")
	c.Assert(it2.Next(), check.Equals, true)
	c.Check(it2.Record().Name, check.Equals, "b1")
	c.Assert(it1.Next(), check.Equals, true)
	c.Check(it1.Record().Name, check.Equals, "a2")
	c.Check(it2.Next(), check.Equals, false)
	c.Check(it2.Error(), check.IsNil)
	c.Assert(it1.Next(), check.Equals, true)
	c.Check(it1.Record().Name, check.Equals, "a3")
	c.Check(it1.Next(), check.Equals, false)
	c.Check(it1.Error(), check.IsNil)
}

func (s *S) TestCursorMoved(c *check.C) {
	f := buildContainer(c)
	r := f.reader(c)
	defer r.Close()

	rec, err := r.Read()
	c.Assert(err, check.IsNil)
	c.Check(rec.Name, check.Equals, "a1")

	// An iterator read moves the shared stream, so the sequential
	// cursor must be re-established before reading on.
	it := f.query(c, r, 1, 0, 1000000)
	c.Assert(it.Next(), check.Equals, true)

	_, err = r.Read()
	c.Check(err, check.Equals, ErrCursorMoved)

	err = r.Reset()
	c.Assert(err, check.IsNil)
	rec, err = r.Read()
	c.Assert(err, check.IsNil)
	c.Check(rec.Name, check.Equals, "a1")
}

func (s *S) TestIteratorClose(c *check.C) {
	f := buildContainer(c)
	r := f.reader(c)
	defer r.Close()

	it := f.query(c, r, 0, 0, 2000000)
	c.Assert(it.Next(), check.Equals, true)
	c.Assert(it.Close(), check.IsNil)
	c.Check(it.Next(), check.Equals, false)
	c.Check(it.Record(), check.IsNil)

	// Closing an iterator over a shared Reader leaves the Reader
	// usable.
	it = f.query(c, r, 0, 0, 2000000)
	c.Check(names(c, it), check.DeepEquals, []string{"a1", "a2", "a3"})
}

func (s *S) TestIteratorDecodeFailure(c *check.C) {
	f := buildContainer(c)

	// Replace the terminal marker with a block whose record declares
	// a block size below the fixed record remainder.
	data := append([]byte(nil), f.data[:len(f.data)-28]...)
	var bad bytes.Buffer
	bw := bgzf.NewWriter(&bad)
	_, err := bw.Write([]byte{5, 0, 0, 0})
	c.Assert(err, check.IsNil)
	c.Assert(bw.Flush(), check.IsNil)
	data = append(data, bad.Bytes()...)

	r, err := NewReader(bytes.NewReader(data))
	c.Assert(err, check.IsNil)
	defer r.Close()

	it, err := NewIterator(r, []bgzf.Chunk{{Begin: r.dataStart, End: unmappedEnd}})
	c.Assert(err, check.IsNil)

	var got []string
	for it.Next() {
		got = append(got, it.Record().Clone().Name)
	}
	// Records yielded before the corrupt one are retained.
	c.Check(got, check.DeepEquals, []string{"a1", "a2", "a3", "b1", "u1", "u2"})
	c.Check(it.Error(), check.ErrorMatches, ".*block size out of range")

	// The failure is sticky.
	c.Check(it.Next(), check.Equals, false)
	c.Check(it.Error(), check.ErrorMatches, ".*block size out of range")
}

func (s *S) TestMidScanCloseLeavesOthersUndisturbed(c *check.C) {
	f := buildContainer(c)
	r := f.reader(c)
	defer r.Close()

	it1 := f.query(c, r, 0, 0, 2000000)
	it2 := f.query(c, r, 0, 0, 2000000)

	c.Assert(it1.Next(), check.Equals, true)
	c.Assert(it2.Next(), check.Equals, true)
	c.Assert(it1.Close(), check.IsNil)

	c.Assert(it2.Next(), check.Equals, true)
	c.Check(it2.Record().Name, check.Equals, "a2")
	c.Assert(it2.Next(), check.Equals, true)
	c.Check(it2.Record().Name, check.Equals, "a3")
	c.Check(it2.Next(), check.Equals, false)
	c.Check(it2.Error(), check.IsNil)
}
