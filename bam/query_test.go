// Copyright ©2025 The bamix Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bam

import (
	"errors"

	"gopkg.in/check.v1"
)

func (s *S) TestNewQuery(c *check.C) {
	f := buildContainer(c)

	q, err := NewQuery(f.h, 0, 100, 200)
	c.Assert(err, check.IsNil)
	c.Check(q, check.Equals, Query{RefID: 0, Start: 100, End: 200})

	// Ends beyond the indexable range are clamped.
	q, err = NewQuery(f.h, 0, 0, 1<<40)
	c.Assert(err, check.IsNil)
	c.Check(q.End, check.Equals, 1<<29-1)

	// The unmapped sentinel ignores coordinates.
	q, err = NewQuery(f.h, RefUnmapped, 100, 200)
	c.Assert(err, check.IsNil)
	c.Check(q, check.Equals, Query{RefID: RefUnmapped})

	_, err = NewQuery(f.h, 3, 0, 100)
	c.Check(errors.Is(err, ErrNoReference), check.Equals, true)
	_, err = NewQuery(f.h, -2, 0, 100)
	c.Check(errors.Is(err, ErrNoReference), check.Equals, true)

	_, err = NewQuery(f.h, 0, -5, 100)
	c.Check(errors.Is(err, ErrInvalidRegion), check.Equals, true)
	_, err = NewQuery(f.h, 0, 200, 100)
	c.Check(errors.Is(err, ErrInvalidRegion), check.Equals, true)
}

func (s *S) TestParseRegion(c *check.C) {
	f := buildContainer(c)

	for _, t := range []struct {
		region string
		want   Query
	}{
		{"chr1", Query{RefID: 0, Start: 0, End: 2000000}},
		{"chr2", Query{RefID: 1, Start: 0, End: 1000000}},
		{"chr1:16,001-16,500", Query{RefID: 0, Start: 16000, End: 16500}},
		{"chr1:101-200", Query{RefID: 0, Start: 100, End: 200}},
		{"chr2:501", Query{RefID: 1, Start: 500, End: 1000000}},
		{"*", Query{RefID: RefUnmapped}},
		// A name containing a colon resolves whole before being
		// split.
		{"HLA:1", Query{RefID: 2, Start: 0, End: 1000}},
	} {
		q, err := ParseRegion(f.h, t.region)
		c.Assert(err, check.IsNil, check.Commentf("region %q", t.region))
		c.Check(q, check.Equals, t.want, check.Commentf("region %q", t.region))
	}
}

func (s *S) TestParseRegionErrors(c *check.C) {
	f := buildContainer(c)

	for _, t := range []struct {
		region string
		want   error
	}{
		{"", ErrInvalidRegion},
		{"chrM", ErrNoReference},
		{"chrM:1-100", ErrNoReference},
		{"chr1:0", ErrInvalidRegion},
		{"chr1:abc", ErrInvalidRegion},
		{"chr1:100-abc", ErrInvalidRegion},
		{"chr1:200-100", ErrInvalidRegion},
	} {
		_, err := ParseRegion(f.h, t.region)
		c.Check(errors.Is(err, t.want), check.Equals, true,
			check.Commentf("region %q got %v", t.region, err))
	}
}
