// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package hapreduce

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/arvados/hapreduce/haplo"
	"github.com/biogo/biogo/alphabet"
	"github.com/biogo/biogo/io/seqio/fasta"
	"github.com/biogo/biogo/seq/linear"
	"github.com/klauspost/pgzip"
)

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

// outputFile is a buffered writer for a file or stdout. Close flushes
// and closes each layer, outermost first.
type outputFile struct {
	*bufio.Writer
	closers []io.Closer
}

func (of *outputFile) Close() error {
	err := of.Writer.Flush()
	for _, c := range of.closers {
		if e := c.Close(); err == nil {
			err = e
		}
	}
	return err
}

// createOutput opens fnm for writing ("-" means stdout). If fnm ends
// with ".gz", the output is gzip-compressed.
func createOutput(fnm string, stdout io.Writer) (*outputFile, error) {
	if fnm == "-" || fnm == "" {
		return &outputFile{Writer: bufio.NewWriter(stdout)}, nil
	}
	f, err := os.OpenFile(fnm, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0666)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(fnm, ".gz") {
		return &outputFile{Writer: bufio.NewWriterSize(f, 4*1024*1024), closers: []io.Closer{f}}, nil
	}
	gzw := pgzip.NewWriter(f)
	return &outputFile{Writer: bufio.NewWriterSize(gzw, 4*1024*1024), closers: []io.Closer{gzw, f}}, nil
}

// writeFasta writes one FASTA record per sequence. If width > 0,
// sequence lines are wrapped at width characters.
func writeFasta(w io.Writer, width int, names []string, seqs []string) error {
	for i, name := range names {
		wid := width
		if wid <= 0 {
			wid = len(seqs[i])
			if wid < 1 {
				wid = 1
			}
		}
		fw := fasta.NewWriter(w, wid)
		_, err := fw.Write(linear.NewSeq(name, alphabet.BytesToLetters([]byte(seqs[i])), alphabet.DNAgapped))
		if err != nil {
			return err
		}
	}
	return nil
}

// writeRecords writes assembled records as FASTA.
func writeRecords(w io.Writer, width int, recs []haplo.Record) error {
	names := make([]string, len(recs))
	seqs := make([]string, len(recs))
	for i, rec := range recs {
		names[i] = rec.Header()
		seqs[i] = rec.Sequence
	}
	return writeFasta(w, width, names, seqs)
}
