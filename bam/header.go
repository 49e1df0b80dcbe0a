// Copyright ©2025 The bamix Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bam

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var bamMagic = [4]byte{'B', 'A', 'M', 0x1}

var errDupReference = errors.New("bam: duplicate reference name")

// Header holds the file-level metadata of a BAM container: the
// verbatim SAM header text and the reference sequence table used to
// resolve symbolic region queries.
type Header struct {
	text []byte

	refs     []*Reference
	seenRefs map[string]int32
}

// NewHeader returns a new Header holding the given SAM header text and
// references. The text is retained verbatim and is not reconciled with
// the reference table.
func NewHeader(text []byte, refs []*Reference) (*Header, error) {
	h := &Header{
		text:     text,
		seenRefs: make(map[string]int32),
	}
	for _, r := range refs {
		err := h.AddReference(r)
		if err != nil {
			return nil, err
		}
	}
	return h, nil
}

// Text returns the SAM header text held by the Header. The returned
// slice should not be altered.
func (h *Header) Text() []byte { return h.text }

// Refs returns the Header's reference table. The returned slice should
// not be altered.
func (h *Header) Refs() []*Reference { return h.refs }

// Ref returns the reference with the given name, or nil if the name is
// not in the sequence table.
func (h *Header) Ref(name string) *Reference {
	id, ok := h.seenRefs[name]
	if !ok {
		return nil
	}
	return h.refs[id]
}

// AddReference adds r to the Header, assigning its id.
func (h *Header) AddReference(r *Reference) error {
	if _, dup := h.seenRefs[r.name]; dup {
		return errDupReference
	}
	r.id = int32(len(h.refs))
	h.seenRefs[r.name] = r.id
	h.refs = append(h.refs, r)
	return nil
}

// DecodeBinary reads a binary BAM header from r as described in the
// SAM specification section 4.2.
func (h *Header) DecodeBinary(r io.Reader) error {
	var magic [4]byte
	err := binary.Read(r, binary.LittleEndian, &magic)
	if err != nil {
		return err
	}
	if magic != bamMagic {
		return ErrInvalidMagic
	}
	var lText int32
	err = binary.Read(r, binary.LittleEndian, &lText)
	if err != nil {
		return err
	}
	if lText < 0 {
		return errors.New("bam: invalid header text length")
	}
	text := make([]byte, lText)
	_, err = io.ReadFull(r, text)
	if err != nil {
		return fmt.Errorf("bam: truncated header: %v", err)
	}
	h.text = text
	var nRef int32
	err = binary.Read(r, binary.LittleEndian, &nRef)
	if err != nil {
		return err
	}
	if nRef < 0 {
		return errors.New("bam: invalid reference count")
	}
	return h.readRefRecords(r, nRef)
}

func (h *Header) readRefRecords(r io.Reader, n int32) error {
	var lName int32
	for i := int32(0); i < n; i++ {
		err := binary.Read(r, binary.LittleEndian, &lName)
		if err != nil {
			return err
		}
		if lName < 1 {
			return errors.New("bam: invalid reference name length")
		}
		name := make([]byte, lName)
		_, err = io.ReadFull(r, name)
		if err != nil {
			return fmt.Errorf("bam: truncated reference name: %v", err)
		}
		if name[len(name)-1] != 0 {
			return errors.New("bam: reference name not null terminated")
		}
		ref := &Reference{name: string(name[:len(name)-1])}
		err = binary.Read(r, binary.LittleEndian, &ref.lRef)
		if err != nil {
			return err
		}
		err = h.AddReference(ref)
		if err != nil {
			return err
		}
	}
	return nil
}

// EncodeBinary writes the binary encoding of the Header to w.
func (h *Header) EncodeBinary(w io.Writer) error {
	err := binary.Write(w, binary.LittleEndian, bamMagic)
	if err != nil {
		return err
	}
	err = binary.Write(w, binary.LittleEndian, int32(len(h.text)))
	if err != nil {
		return err
	}
	_, err = w.Write(h.text)
	if err != nil {
		return err
	}
	err = binary.Write(w, binary.LittleEndian, int32(len(h.refs)))
	if err != nil {
		return err
	}
	for _, r := range h.refs {
		name := append([]byte(r.name), 0)
		err = binary.Write(w, binary.LittleEndian, int32(len(name)))
		if err != nil {
			return err
		}
		_, err = w.Write(name)
		if err != nil {
			return err
		}
		err = binary.Write(w, binary.LittleEndian, r.lRef)
		if err != nil {
			return err
		}
	}
	return nil
}
