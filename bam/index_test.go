// Copyright ©2025 The bamix Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bam

import (
	"bytes"

	"gopkg.in/check.v1"

	"github.com/seqio/bamix/bgzf"
)

func (s *S) TestIndexStats(c *check.C) {
	f := buildContainer(c)

	c.Check(f.idx.NumRefs(), check.Equals, 2)

	stats, ok := f.idx.ReferenceStats(0)
	c.Assert(ok, check.Equals, true)
	c.Check(stats.Mapped, check.Equals, uint64(3))
	c.Check(stats.Unmapped, check.Equals, uint64(0))
	c.Check(bgzf.VOffset(stats.Chunk.End) > bgzf.VOffset(stats.Chunk.Begin), check.Equals, true)

	stats, ok = f.idx.ReferenceStats(1)
	c.Assert(ok, check.Equals, true)
	c.Check(stats.Mapped, check.Equals, uint64(1))

	_, ok = f.idx.ReferenceStats(5)
	c.Check(ok, check.Equals, false)

	n, ok := f.idx.Unmapped()
	c.Assert(ok, check.Equals, true)
	c.Check(n, check.Equals, uint64(2))
}

func (s *S) TestIndexChunksErrors(c *check.C) {
	f := buildContainer(c)

	_, err := f.idx.Chunks(-5, 0, 100)
	c.Check(err, check.Equals, ErrNoReference)

	_, err = f.idx.Chunks(0, -1, 100)
	c.Check(err, check.Equals, ErrInvalidRegion)
	_, err = f.idx.Chunks(0, 100, 50)
	c.Check(err, check.Equals, ErrInvalidRegion)

	f.idx.idx.Refs[1].Malformed = true
	_, err = f.idx.Chunks(1, 0, 100)
	c.Check(err, check.Equals, ErrInvalidIndex)
}

func (s *S) TestIndexRoundTrip(c *check.C) {
	f := buildContainer(c)

	var buf bytes.Buffer
	err := WriteIndex(&buf, f.idx)
	c.Assert(err, check.IsNil)

	got, err := ReadIndex(bytes.NewReader(buf.Bytes()))
	c.Assert(err, check.IsNil)
	c.Check(got.idx.Refs, check.DeepEquals, f.idx.idx.Refs)

	n, ok := got.Unmapped()
	c.Assert(ok, check.Equals, true)
	c.Check(n, check.Equals, uint64(2))

	// The round-tripped index resolves queries identically.
	want, err := f.idx.Chunks(0, 0, 2000000)
	c.Assert(err, check.IsNil)
	chunks, err := got.Chunks(0, 0, 2000000)
	c.Assert(err, check.IsNil)
	c.Check(chunks, check.DeepEquals, want)
}

func (s *S) TestReadIndexBadMagic(c *check.C) {
	_, err := ReadIndex(bytes.NewReader([]byte("CSI\x01\x00\x00\x00\x00")))
	c.Check(err, check.Equals, ErrInvalidMagic)
}

func (s *S) TestIndexAddUnsorted(c *check.C) {
	f := buildContainer(c)

	var idx Index
	err := idx.Add(alignedRec("x1", f.chr1, 1000, 100), bgzf.Chunk{})
	c.Assert(err, check.IsNil)
	err = idx.Add(alignedRec("x2", f.chr1, 500, 100), bgzf.Chunk{})
	c.Check(err, check.NotNil)
}
