// Copyright ©2025 The bamix Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bam

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/check.v1"
)

// writeFiles materializes the fixture container and its index in a
// temporary directory, ensuring the index is not older than the
// container.
func writeFiles(c *check.C, f *fixture) (bamPath, baiPath string) {
	dir := c.MkDir()
	bamPath = filepath.Join(dir, "test.bam")
	baiPath = bamPath + ".bai"

	err := os.WriteFile(bamPath, f.data, 0o644)
	c.Assert(err, check.IsNil)

	w, err := os.Create(baiPath)
	c.Assert(err, check.IsNil)
	err = WriteIndex(w, f.idx)
	c.Assert(err, check.IsNil)
	c.Assert(w.Close(), check.IsNil)

	now := time.Now()
	c.Assert(os.Chtimes(bamPath, now, now), check.IsNil)
	c.Assert(os.Chtimes(baiPath, now, now), check.IsNil)
	return bamPath, baiPath
}

func (s *S) TestOpenFetch(c *check.C) {
	f := buildContainer(c)
	bamPath, _ := writeFiles(c, f)

	bf, err := Open(bamPath)
	c.Assert(err, check.IsNil)
	defer bf.Close()

	c.Check(bf.HasEOF(), check.Equals, true)
	c.Assert(bf.Header().Refs(), check.HasLen, 3)

	c.Assert(bf.LoadIndex(), check.IsNil)
	c.Assert(bf.Index(), check.NotNil)

	it, err := bf.FetchRegion("chr1:101-16,500")
	c.Assert(err, check.IsNil)
	defer it.Close()
	c.Check(names(c, it), check.DeepEquals, []string{"a1", "a2"})

	it, err = bf.Fetch(Query{RefID: RefUnmapped})
	c.Assert(err, check.IsNil)
	defer it.Close()
	c.Check(names(c, it), check.DeepEquals, []string{"u1", "u2"})
}

func (s *S) TestFetchWithoutIndex(c *check.C) {
	f := buildContainer(c)
	bamPath, baiPath := writeFiles(c, f)
	c.Assert(os.Remove(baiPath), check.IsNil)

	bf, err := Open(bamPath)
	c.Assert(err, check.IsNil)
	defer bf.Close()

	err = bf.LoadIndex()
	c.Check(errors.Is(err, ErrNoIndex), check.Equals, true)
	_, err = bf.Fetch(Query{RefID: 0, Start: 0, End: 100})
	c.Check(errors.Is(err, ErrNoIndex), check.Equals, true)
}

func (s *S) TestIndependentIterators(c *check.C) {
	f := buildContainer(c)
	bamPath, _ := writeFiles(c, f)

	bf, err := Open(bamPath)
	c.Assert(err, check.IsNil)
	defer bf.Close()
	c.Assert(bf.LoadIndex(), check.IsNil)

	it1, err := bf.Fetch(Query{RefID: 0, Start: 0, End: 2000000})
	c.Assert(err, check.IsNil)
	defer it1.Close()
	it2, err := bf.Fetch(Query{RefID: 0, Start: 0, End: 2000000})
	c.Assert(err, check.IsNil)
	defer it2.Close()

	// The iterators have private streams; interleaving them in any
	// order yields the same sequences.
	var got1, got2 []string
	for it1.Next() {
		got1 = append(got1, it1.Record().Name)
		if it2.Next() {
			got2 = append(got2, it2.Record().Name)
		}
	}
	c.Check(it1.Error(), check.IsNil)
	c.Check(got1, check.DeepEquals, []string{"a1", "a2", "a3"})
	c.Check(got2, check.DeepEquals, []string{"a1", "a2", "a3"})
}

func (s *S) TestSequentialCursorUndisturbed(c *check.C) {
	f := buildContainer(c)
	bamPath, _ := writeFiles(c, f)

	bf, err := Open(bamPath)
	c.Assert(err, check.IsNil)
	defer bf.Close()
	c.Assert(bf.LoadIndex(), check.IsNil)

	rec, err := bf.Read()
	c.Assert(err, check.IsNil)
	c.Check(rec.Name, check.Equals, "a1")

	// A Fetch iterator reads through its own stream, so the
	// sequential cursor keeps its position.
	it, err := bf.Fetch(Query{RefID: 1, Start: 0, End: 1000000})
	c.Assert(err, check.IsNil)
	c.Check(names(c, it), check.DeepEquals, []string{"b1"})
	it.Close()

	rec, err = bf.Read()
	c.Assert(err, check.IsNil)
	c.Check(rec.Name, check.Equals, "a2")

	c.Assert(bf.Reset(), check.IsNil)
	rec, err = bf.Read()
	c.Assert(err, check.IsNil)
	c.Check(rec.Name, check.Equals, "a1")
}

func (s *S) TestStaleIndex(c *check.C) {
	f := buildContainer(c)
	bamPath, baiPath := writeFiles(c, f)

	past := time.Now().Add(-time.Hour)
	c.Assert(os.Chtimes(baiPath, past, past), check.IsNil)

	bf, err := Open(bamPath)
	c.Assert(err, check.IsNil)
	defer bf.Close()

	err = bf.LoadIndex()
	c.Check(errors.Is(err, ErrStaleIndex), check.Equals, true)
}

func (s *S) TestAlternateIndexName(c *check.C) {
	f := buildContainer(c)
	bamPath, baiPath := writeFiles(c, f)

	// Accept in.bai as well as in.bam.bai.
	alt := bamPath[:len(bamPath)-len(".bam")] + ".bai"
	c.Assert(os.Rename(baiPath, alt), check.IsNil)
	now := time.Now()
	c.Assert(os.Chtimes(alt, now, now), check.IsNil)

	bf, err := Open(bamPath)
	c.Assert(err, check.IsNil)
	defer bf.Close()
	c.Assert(bf.LoadIndex(), check.IsNil)
}

func (s *S) TestClosedFile(c *check.C) {
	f := buildContainer(c)
	bamPath, _ := writeFiles(c, f)

	bf, err := Open(bamPath)
	c.Assert(err, check.IsNil)
	c.Assert(bf.LoadIndex(), check.IsNil)

	it, err := bf.Fetch(Query{RefID: 0, Start: 0, End: 2000000})
	c.Assert(err, check.IsNil)

	c.Assert(bf.Close(), check.IsNil)

	// An iterator outliving its File stops with ErrClosed.
	c.Check(it.Next(), check.Equals, false)
	c.Check(it.Error(), check.Equals, ErrClosed)

	_, err = bf.Fetch(Query{RefID: 0, Start: 0, End: 2000000})
	c.Check(err, check.Equals, ErrClosed)
	_, err = bf.Read()
	c.Check(err, check.Equals, ErrClosed)
}

func (s *S) TestTruncatedFile(c *check.C) {
	f := buildContainer(c)

	dir := c.MkDir()
	path := filepath.Join(dir, "trunc.bam")
	// Drop the terminal marker block.
	err := os.WriteFile(path, f.data[:len(f.data)-28], 0o644)
	c.Assert(err, check.IsNil)

	bf, err := Open(path)
	c.Assert(err, check.IsNil)
	defer bf.Close()
	c.Check(bf.HasEOF(), check.Equals, false)
}
