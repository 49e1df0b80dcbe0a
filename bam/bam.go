// Copyright ©2025 The bamix Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bam implements BAM container reading with indexed random
// access iteration over genomic intervals. The BAM and BAI formats are
// described in the SAM specification.
//
// http://samtools.github.io/hts-specs/SAMv1.pdf
//
// A container is opened with Open or NewReader, its BAI index loaded
// with File.LoadIndex or ReadIndex, and interval queries resolved to
// record iterators with File.Fetch or NewQueryIterator. A query that
// matches no records yields an exhausted iterator, never an error;
// failures to open, resolve or decode are always reported to the
// caller.
package bam

import "errors"

var (
	// ErrInvalidMagic is returned when a BAM or BAI stream does not
	// begin with the expected format magic.
	ErrInvalidMagic = errors.New("bam: magic number mismatch")

	// ErrNoReference is returned for queries naming a reference
	// absent from the container's sequence table. An absent
	// reference is a failed query, distinct from a known reference
	// holding no records.
	ErrNoReference = errors.New("bam: reference not found")

	// ErrInvalidRegion is returned for queries whose coordinate
	// interval is malformed or outside the indexable range.
	ErrInvalidRegion = errors.New("bam: invalid region")

	// ErrInvalidIndex is returned when stored index data is
	// structurally unusable for the queried reference.
	ErrInvalidIndex = errors.New("bam: invalid index")

	// ErrStaleIndex is returned by LoadIndex when the index file is
	// older than the data file it describes.
	ErrStaleIndex = errors.New("bam: index older than data")

	// ErrNoIndex is returned by Fetch when no index has been loaded
	// for the container.
	ErrNoIndex = errors.New("bam: no index loaded")

	// ErrClosed is returned by operations on a closed File and by
	// iterators derived from it.
	ErrClosed = errors.New("bam: use of closed container")

	// ErrCursorMoved is returned by Read when the stream position
	// has been moved by an iterator sharing the Reader. A direct
	// sequential read must be re-established with Seek or Reset
	// before it can continue.
	ErrCursorMoved = errors.New("bam: stream cursor moved, seek required")
)
