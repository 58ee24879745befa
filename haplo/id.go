// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

// Package haplo reduces per-location haplotype observations to a
// fixed-size representative set.
//
// An Index counts reads per (location, haplotype), a Store holds one
// sequence per haplotype, a Catalog lists the locations to process, a
// Reducer computes each location's Allocation, and Assemble turns
// allocations into sorted output Records.
package haplo

import (
	"errors"
	"strconv"
	"strings"
)

// ErrMalformedRecord indicates an input line or label that lacks the
// expected fields. Callers skip such records and keep going.
var ErrMalformedRecord = errors.New("malformed record")

// ID identifies a haplotype, e.g., "17" for the label "uniq_17_4".
type ID string

// ParseID extracts the haplotype ID from a label: the second
// underscore-separated field of the part following the last comma,
// ignoring a leading '>'.
//
//	uniq_17_4                   => 17
//	>uniq_17_4                  => 17
//	f_287241_ZpDL_Dapo,uniq_9_1 => 9
func ParseID(label string) (ID, error) {
	label = strings.TrimSpace(strings.TrimPrefix(label, ">"))
	if i := strings.LastIndexByte(label, ','); i >= 0 {
		label = label[i+1:]
	}
	fields := strings.SplitN(label, "_", 3)
	if len(fields) < 2 || fields[1] == "" {
		return "", ErrMalformedRecord
	}
	return ID(fields[1]), nil
}

// LocationOf returns the sampling location encoded in a read ID (the
// fourth underscore-separated field), e.g., "Dapo" for
// "f_287241_ZpDL_Dapo_R1f".
func LocationOf(readID string) (string, bool) {
	fields := strings.SplitN(readID, "_", 5)
	if len(fields) < 4 {
		return "", false
	}
	return fields[3], true
}

// Less orders IDs numerically when both are integers. Integers sort
// before anything else; non-integers sort lexicographically.
func (id ID) Less(other ID) bool {
	a, aerr := strconv.Atoi(string(id))
	b, berr := strconv.Atoi(string(other))
	switch {
	case aerr == nil && berr == nil:
		if a != b {
			return a < b
		}
		return id < other
	case aerr == nil:
		return true
	case berr == nil:
		return false
	default:
		return id < other
	}
}
