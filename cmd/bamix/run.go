// Copyright ©2025 The bamix Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/seqio/bamix/bam"
	"github.com/seqio/bamix/bgzf"
)

// buildIndex reads the whole container sequentially and writes the
// companion BAI next to it.
func buildIndex(log *logrus.Logger, path string) error {
	fh, err := os.Open(path)
	if err != nil {
		return err
	}
	defer fh.Close()
	if ok, _ := bgzf.HasEOF(fh); !ok {
		log.Warnf("%s has no terminal block marker, file may be truncated", path)
	}

	r, err := bam.NewReader(fh)
	if err != nil {
		return err
	}
	defer r.Close()
	idx, err := bam.NewIndexFor(r)
	if err != nil {
		return fmt.Errorf("indexing %s: %w", path, err)
	}

	out := path + ".bai"
	w, err := os.Create(out)
	if err != nil {
		return err
	}
	err = bam.WriteIndex(w, idx)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(out)
		return err
	}
	log.Debugf("wrote %s", out)
	return nil
}

// scanRegion applies visit to each record selected by the region
// string, or to every record when the region is empty, and returns
// the number of records seen.
func scanRegion(log *logrus.Logger, path, region string, visit func(fmt.Stringer)) (int, error) {
	f, err := bam.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	if !f.HasEOF() {
		log.Warnf("%s has no terminal block marker, file may be truncated", path)
	}

	var n int
	if region == "" {
		for {
			rec, err := f.Read()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return n, err
			}
			n++
			if visit != nil {
				visit(rec)
			}
		}
		return n, nil
	}

	err = f.LoadIndex()
	if err != nil {
		return 0, err
	}
	it, err := f.FetchRegion(region)
	if err != nil {
		return 0, err
	}
	defer it.Close()
	for it.Next() {
		n++
		if visit != nil {
			visit(it.Record())
		}
	}
	return n, it.Error()
}
