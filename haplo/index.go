// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package haplo

import "sort"

// Pair is one hap-info line: a haplotype and the read IDs that were
// collapsed into it.
type Pair struct {
	Haplotype ID
	Reads     []string
}

// Index counts observed reads per (location, haplotype).
type Index struct {
	haplotypes []ID
	seen       map[ID]bool
	counts     map[string]map[ID]int
	dropped    int
}

func NewIndex() *Index {
	return &Index{
		seen:   map[ID]bool{},
		counts: map[string]map[ID]int{},
	}
}

// BuildIndex returns an Index of all reads in pairs.
func BuildIndex(pairs []Pair) *Index {
	idx := NewIndex()
	for _, p := range pairs {
		idx.Add(p.Haplotype, p.Reads)
	}
	return idx
}

// Add counts each read under its location. A read ID that does not
// encode a location is ignored. The haplotype is remembered even if
// none of its reads are usable.
func (idx *Index) Add(hap ID, reads []string) {
	if !idx.seen[hap] {
		idx.seen[hap] = true
		idx.haplotypes = append(idx.haplotypes, hap)
	}
	for _, read := range reads {
		loc, ok := LocationOf(read)
		if !ok {
			idx.dropped++
			continue
		}
		m := idx.counts[loc]
		if m == nil {
			m = map[ID]int{}
			idx.counts[loc] = m
		}
		m[hap]++
	}
}

// Haplotypes returns all haplotypes in the order they were first
// added. The caller must not modify the returned slice.
func (idx *Index) Haplotypes() []ID {
	return idx.haplotypes
}

func (idx *Index) Count(loc string, hap ID) int {
	return idx.counts[loc][hap]
}

// Counts returns the per-haplotype counts at loc. The caller must not
// modify the returned map.
func (idx *Index) Counts(loc string) map[ID]int {
	return idx.counts[loc]
}

// Total returns the number of reads observed at loc.
func (idx *Index) Total(loc string) int {
	total := 0
	for _, n := range idx.counts[loc] {
		total += n
	}
	return total
}

// Locations returns the sorted list of locations that have at least
// one read.
func (idx *Index) Locations() []string {
	locs := make([]string, 0, len(idx.counts))
	for loc := range idx.counts {
		locs = append(locs, loc)
	}
	sort.Strings(locs)
	return locs
}

// Dropped returns the number of reads whose IDs had no location field.
func (idx *Index) Dropped() int {
	return idx.dropped
}
