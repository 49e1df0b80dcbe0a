// Copyright ©2025 The bamix Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bam

import (
	"fmt"
	"strconv"
	"strings"
)

// maxEnd is the exclusive upper bound of the indexable coordinate
// range. Query ends beyond it are clamped.
const maxEnd = 1<<29 - 1

// RefUnmapped is the query reference id selecting the trailing run of
// unplaced unmapped records.
const RefUnmapped = -1

// Query is a resolved genomic interval query: a reference id and a
// half-open zero-based coordinate interval.
type Query struct {
	RefID int
	Start int
	End   int
}

// NewQuery returns a Query against h for the interval [beg,end) of
// the given reference id. The id RefUnmapped selects unplaced
// unmapped records and ignores the coordinates. Ends beyond the
// indexable range are clamped, so whole-reference queries may pass a
// large end.
func NewQuery(h *Header, rid, beg, end int) (Query, error) {
	if rid == RefUnmapped {
		return Query{RefID: RefUnmapped}, nil
	}
	if rid < 0 || rid >= len(h.Refs()) {
		return Query{}, fmt.Errorf("bam: query reference id %d: %w", rid, ErrNoReference)
	}
	if end > maxEnd {
		end = maxEnd
	}
	if beg < 0 || end < beg {
		return Query{}, fmt.Errorf("bam: query interval %d-%d: %w", beg, end, ErrInvalidRegion)
	}
	return Query{RefID: rid, Start: beg, End: end}, nil
}

// ParseRegion resolves a samtools-style region string against h.
//
// The forms accepted are "ref" for a whole reference, "ref:beg" for
// the suffix of a reference and "ref:beg-end" for an interval, with
// one-based inclusive coordinates that may carry comma separators.
// The string "*" selects unplaced unmapped records. A name containing
// a colon is tried whole before being split at its last colon.
func ParseRegion(h *Header, region string) (Query, error) {
	if region == "*" {
		return Query{RefID: RefUnmapped}, nil
	}
	if region == "" {
		return Query{}, fmt.Errorf("bam: empty region: %w", ErrInvalidRegion)
	}

	if r := h.Ref(region); r != nil {
		return NewQuery(h, r.ID(), 0, r.Len())
	}

	colon := strings.LastIndex(region, ":")
	if colon < 0 {
		return Query{}, fmt.Errorf("bam: region reference %q: %w", region, ErrNoReference)
	}
	name, coords := region[:colon], region[colon+1:]
	r := h.Ref(name)
	if r == nil {
		return Query{}, fmt.Errorf("bam: region reference %q: %w", name, ErrNoReference)
	}

	var begText, endText string
	if dash := strings.Index(coords, "-"); dash < 0 {
		begText = coords
	} else {
		begText, endText = coords[:dash], coords[dash+1:]
	}

	beg, err := parseCoord(begText)
	if err != nil {
		return Query{}, fmt.Errorf("bam: region %q: %w", region, ErrInvalidRegion)
	}
	end := r.Len()
	if endText != "" {
		end, err = parseCoord(endText)
		if err != nil {
			return Query{}, fmt.Errorf("bam: region %q: %w", region, ErrInvalidRegion)
		}
	}
	if beg < 1 {
		return Query{}, fmt.Errorf("bam: region %q: %w", region, ErrInvalidRegion)
	}

	// One-based inclusive to zero-based half-open.
	return NewQuery(h, r.ID(), beg-1, end)
}

func parseCoord(s string) (int, error) {
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0, strconv.ErrSyntax
	}
	return strconv.Atoi(s)
}
