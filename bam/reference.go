// Copyright ©2025 The bamix Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bam

import (
	"errors"
	"fmt"
)

// Reference is a mapping reference in a container's sequence table.
type Reference struct {
	id   int32
	name string
	lRef int32
}

// NewReference returns a new Reference with the given name and length.
// Length must be in [1, 1<<31) according to the SAM specification.
func NewReference(name string, length int) (*Reference, error) {
	if name == "" {
		return nil, errors.New("bam: no reference name provided")
	}
	if length < 1 || int64(length) >= 1<<31 {
		return nil, errors.New("bam: reference length out of range")
	}
	return &Reference{
		id:   -1, // Assigned by a Header when added.
		name: name,
		lRef: int32(length),
	}, nil
}

// ID returns the header ID of the Reference. A nil Reference has ID -1.
func (r *Reference) ID() int {
	if r == nil {
		return -1
	}
	return int(r.id)
}

// Name returns the reference name. A nil Reference is named "*".
func (r *Reference) Name() string {
	if r == nil {
		return "*"
	}
	return r.name
}

// Len returns the length of the reference sequence. A nil Reference
// has length -1.
func (r *Reference) Len() int {
	if r == nil {
		return -1
	}
	return int(r.lRef)
}

// String returns the @SQ header line for the Reference.
func (r *Reference) String() string {
	return fmt.Sprintf("@SQ\tSN:%s\tLN:%d", r.Name(), r.Len())
}
