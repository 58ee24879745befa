// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package hapreduce

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/arvados/hapreduce/haplo"
	"github.com/biogo/biogo/alphabet"
	"github.com/biogo/biogo/io/seqio"
	"github.com/biogo/biogo/io/seqio/fasta"
	"github.com/biogo/biogo/seq/linear"
	log "github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
)

// ErrMissingColumn is returned when a location sheet has no column
// with the requested name.
var ErrMissingColumn = errors.New("missing column")

// listEntry is one line of a hap-info list file:
//
//	>uniq_17_4<TAB>f_287241_ZpDL_Dapo_R1f,f_458536_ZpDL_XkB_R1f
type listEntry struct {
	Label string
	Reads []string
}

// readList parses a hap-info list. Lines that don't have exactly two
// tab-separated fields are skipped and counted.
func readList(rdr io.Reader) (ents []listEntry, malformed int, err error) {
	scanner := bufio.NewScanner(rdr)
	scanner.Buffer(make([]byte, 64*1024), 1<<30)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 2 {
			malformed++
			continue
		}
		label := strings.TrimPrefix(strings.TrimSpace(fields[0]), ">")
		if label == "" {
			malformed++
			continue
		}
		var reads []string
		for _, read := range strings.Split(fields[1], ",") {
			if read = strings.TrimSpace(read); read != "" {
				reads = append(reads, read)
			}
		}
		ents = append(ents, listEntry{Label: label, Reads: reads})
	}
	return ents, malformed, scanner.Err()
}

// readHapInfo parses a hap-info list into index pairs.
func readHapInfo(rdr io.Reader) (pairs []haplo.Pair, malformed int, err error) {
	ents, malformed, err := readList(rdr)
	if err != nil {
		return nil, malformed, err
	}
	for _, ent := range ents {
		id, err := haplo.ParseID(ent.Label)
		if err != nil {
			malformed++
			continue
		}
		pairs = append(pairs, haplo.Pair{Haplotype: id, Reads: ent.Reads})
	}
	return pairs, malformed, nil
}

// readSequences reads labelled sequences from FASTA or, if the first
// non-blank character is not '>', from "label<TAB>sequence" lines.
func readSequences(rdr io.Reader) (ents []haplo.Entry, malformed int, err error) {
	bufr := bufio.NewReader(rdr)
	for {
		b, err := bufr.Peek(1)
		if err == io.EOF {
			return nil, 0, nil
		} else if err != nil {
			return nil, 0, err
		}
		if b[0] == ' ' || b[0] == '\t' || b[0] == '\r' || b[0] == '\n' {
			bufr.ReadByte()
			continue
		}
		if b[0] == '>' {
			ents, err = readFasta(bufr)
			return ents, 0, err
		}
		return readTabSequences(bufr)
	}
}

func readFasta(rdr io.Reader) ([]haplo.Entry, error) {
	var ents []haplo.Entry
	scanner := seqio.NewScanner(fasta.NewReader(rdr, linear.NewSeq("", nil, alphabet.DNAgapped)))
	for scanner.Next() {
		seq := scanner.Seq().(*linear.Seq)
		ents = append(ents, haplo.Entry{
			Label:    seq.Name(),
			Sequence: string(alphabet.LettersToBytes(seq.Seq)),
		})
	}
	if err := scanner.Error(); err != nil {
		return nil, fmt.Errorf("fasta: %w", err)
	}
	return ents, nil
}

func readTabSequences(rdr io.Reader) (ents []haplo.Entry, malformed int, err error) {
	scanner := bufio.NewScanner(rdr)
	scanner.Buffer(make([]byte, 64*1024), 1<<30)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 2 {
			malformed++
			continue
		}
		ents = append(ents, haplo.Entry{
			Label:    strings.TrimSpace(fields[0]),
			Sequence: strings.TrimSpace(fields[1]),
		})
	}
	return ents, malformed, scanner.Err()
}

// mergedGroup collects the records of a merged FASTA file that share
// a haplotype label.
type mergedGroup struct {
	Label    string
	Reads    []string
	Sequence string
}

// readMerged reads a FASTA file whose headers are "readID,label" and
// groups the records by label, in order of first appearance. The
// first sequence seen for a label is kept. A header without a comma is
// both read ID and label.
func readMerged(rdr io.Reader) ([]*mergedGroup, error) {
	ents, err := readFasta(rdr)
	if err != nil {
		return nil, err
	}
	var groups []*mergedGroup
	bylabel := map[string]*mergedGroup{}
	for _, ent := range ents {
		read, label := ent.Label, ent.Label
		if i := strings.LastIndexByte(ent.Label, ','); i >= 0 {
			read, label = ent.Label[:i], ent.Label[i+1:]
		}
		grp := bylabel[label]
		if grp == nil {
			grp = &mergedGroup{Label: label, Sequence: ent.Sequence}
			bylabel[label] = grp
			groups = append(groups, grp)
		} else if grp.Sequence != ent.Sequence {
			log.Debugf("%s: sequence differs from first record for %s, ignoring", read, label)
		}
		grp.Reads = append(grp.Reads, read)
	}
	return groups, nil
}

// readLocations returns the values in the named column of a location
// sheet (.xlsx, .tsv, or CSV), excluding the header row. If column is
// empty, the first column is used.
func readLocations(fnm, column string) ([]string, error) {
	var rows [][]string
	if strings.HasSuffix(strings.ToLower(fnm), ".xlsx") {
		f, err := zopen(fnm)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		xl, err := excelize.OpenReader(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fnm, err)
		}
		defer xl.Close()
		sheets := xl.GetSheetList()
		if len(sheets) == 0 {
			return nil, nil
		}
		rows, err = xl.GetRows(sheets[0])
		if err != nil {
			return nil, fmt.Errorf("%s: %s: %w", fnm, sheets[0], err)
		}
	} else {
		f, err := zopen(fnm)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r := csv.NewReader(f)
		r.FieldsPerRecord = -1
		r.LazyQuotes = true
		if strings.HasSuffix(strings.TrimSuffix(strings.ToLower(fnm), ".gz"), ".tsv") {
			r.Comma = '\t'
		}
		rows, err = r.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fnm, err)
		}
	}
	return columnValues(fnm, rows, column)
}

func columnValues(fnm string, rows [][]string, column string) ([]string, error) {
	if len(rows) == 0 {
		log.Warnf("%s: no header row, no locations", fnm)
		return nil, nil
	}
	col := 0
	if column != "" {
		col = -1
		for i, name := range rows[0] {
			name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
			if name == column {
				col = i
				break
			}
		}
		if col < 0 {
			return nil, fmt.Errorf("%s: %w %q in header row %q", fnm, ErrMissingColumn, column, rows[0])
		}
	}
	var values []string
	for _, row := range rows[1:] {
		if len(row) > col {
			values = append(values, row[col])
		}
	}
	return values, nil
}
