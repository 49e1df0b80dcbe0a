// Copyright ©2025 The bamix Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bam

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/exp/mmap"

	"github.com/seqio/bamix/bgzf"
)

// File is a random access BAM container backed by a memory mapped
// file. Iterators obtained from Fetch each read through a private
// decompression stream, so concurrent iterations do not contend for
// a shared cursor.
type File struct {
	path string

	ra   *mmap.ReaderAt
	size int64

	// seq is the File's sequential read cursor, also holding the
	// decoded header.
	seq *Reader

	idx *Index

	hasEOF bool

	mu     sync.Mutex
	closed bool
}

// Open opens the BAM file at the given path. The container header is
// decoded before returning. Open does not load an index; use
// LoadIndex or LoadIndexFile before calling Fetch.
func Open(path string) (*File, error) {
	hasEOF, err := fileHasEOF(path)
	if err != nil {
		return nil, err
	}
	ra, err := mmap.Open(path)
	if err != nil {
		return nil, err
	}
	f := &File{
		path:   path,
		ra:     ra,
		size:   int64(ra.Len()),
		hasEOF: hasEOF,
	}
	f.seq, err = NewReader(f.section())
	if err != nil {
		ra.Close()
		return nil, err
	}
	return f, nil
}

func fileHasEOF(path string) (bool, error) {
	fh, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer fh.Close()
	return bgzf.HasEOF(fh)
}

func (f *File) section() io.ReadSeeker {
	return io.NewSectionReader(f.ra, 0, f.size)
}

// Header returns the decoded container header.
func (f *File) Header() *Header { return f.seq.Header() }

// Index returns the loaded index, or nil if none has been loaded.
func (f *File) Index() *Index { return f.idx }

// HasEOF returns whether the container ends with the BGZF magic
// terminal block. A missing terminal block usually indicates a
// truncated file.
func (f *File) HasEOF() bool { return f.hasEOF }

// LoadIndex loads the companion BAI index of the file, looking for
// the container path with ".bai" appended and then for the path with
// its ".bam" extension replaced by ".bai". An index older than the
// container is refused with ErrStaleIndex.
func (f *File) LoadIndex() error {
	paths := []string{f.path + ".bai"}
	if strings.HasSuffix(f.path, ".bam") {
		paths = append(paths, strings.TrimSuffix(f.path, ".bam")+".bai")
	}
	for _, p := range paths {
		err := f.LoadIndexFile(p)
		if err == nil {
			return nil
		}
		if !os.IsNotExist(err) {
			return err
		}
	}
	return fmt.Errorf("bam: no index for %s: %w", f.path, ErrNoIndex)
}

// LoadIndexFile loads the BAI index at the given path. The index is
// refused with ErrStaleIndex if it is older than the container.
func (f *File) LoadIndexFile(path string) error {
	ih, err := os.Open(path)
	if err != nil {
		return err
	}
	defer ih.Close()

	ist, err := ih.Stat()
	if err != nil {
		return err
	}
	bst, err := os.Stat(f.path)
	if err != nil {
		return err
	}
	if ist.ModTime().Before(bst.ModTime()) {
		return fmt.Errorf("bam: index %s predates %s: %w", path, f.path, ErrStaleIndex)
	}

	idx, err := ReadIndex(ih)
	if err != nil {
		return err
	}
	f.idx = idx
	return nil
}

// SetIndex sets the index used by Fetch, replacing any loaded index.
func (f *File) SetIndex(idx *Index) { f.idx = idx }

// Fetch returns an Iterator over the records selected by q. The
// iterator reads through its own decompression stream and is
// independent of other iterators and of the File's sequential cursor.
//
// Fetch returns ErrNoIndex if no index has been loaded and ErrClosed
// if the File has been closed.
func (f *File) Fetch(q Query) (*Iterator, error) {
	if f.isClosed() {
		return nil, ErrClosed
	}
	chunks, nq, err := resolveQuery(f.Header(), f.idx, f.seq.dataStart, q)
	if err != nil {
		return nil, err
	}
	r, err := newRecordReader(f.section(), f.Header())
	if err != nil {
		return nil, err
	}
	it, err := NewIterator(r, chunks)
	if err != nil {
		r.Close()
		return nil, err
	}
	it.q = &nq
	it.ownReader = true
	it.f = f
	return it, nil
}

// FetchRegion returns an Iterator over the records selected by the
// samtools-style region string s. See ParseRegion for the accepted
// forms.
func (f *File) FetchRegion(s string) (*Iterator, error) {
	q, err := ParseRegion(f.Header(), s)
	if err != nil {
		return nil, err
	}
	return f.Fetch(q)
}

// Read returns the next record of the File's sequential cursor. The
// cursor is unaffected by Fetch iterators.
func (f *File) Read() (*Record, error) {
	if f.isClosed() {
		return nil, ErrClosed
	}
	return f.seq.Read()
}

// Reset rewinds the sequential cursor to the first record.
func (f *File) Reset() error {
	if f.isClosed() {
		return ErrClosed
	}
	return f.seq.Reset()
}

// Close releases the File. Iterators still open on the File stop with
// ErrClosed on their next advance.
func (f *File) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	f.mu.Unlock()

	err := f.seq.Close()
	cerr := f.ra.Close()
	if err == nil {
		err = cerr
	}
	return err
}

func (f *File) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
