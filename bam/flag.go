// Copyright ©2025 The bamix Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bam

// Flags is the bit set of SAM flags held by a Record.
type Flags uint16

const (
	Paired        Flags = 1 << iota // The read is paired in sequencing.
	ProperPair                      // The read is mapped in a proper pair.
	Unmapped                        // The read itself is unmapped.
	MateUnmapped                    // The mate is unmapped.
	Reverse                         // The read is mapped to the reverse strand.
	MateReverse                     // The mate is mapped to the reverse strand.
	Read1                           // The read is the first in a pair.
	Read2                           // The read is the second in a pair.
	Secondary                       // The alignment is not primary.
	QCFail                          // The read fails platform quality checks.
	Duplicate                       // The read is a PCR or optical duplicate.
	Supplementary                   // The alignment is supplementary.
)

const flagChars = "pPuUrR12sfdS"

// String returns the compact character representation of f.
func (f Flags) String() string {
	b := make([]byte, len(flagChars))
	for i := range b {
		if f&(1<<uint(i)) != 0 {
			b[i] = flagChars[i]
		} else {
			b[i] = '-'
		}
	}
	return string(b)
}
