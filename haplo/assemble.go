// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package haplo

import (
	"fmt"
	"sort"
)

// Record is one copy of a haplotype sequence in the reduced output.
type Record struct {
	Location  string
	Haplotype ID
	Replicate int
	Sequence  string
}

// Header returns the FASTA label for the record, e.g., "Dapo_17_0".
func (rec Record) Header() string {
	return fmt.Sprintf("%s_%s_%d", rec.Location, rec.Haplotype, rec.Replicate)
}

// Less orders records by location, then haplotype ID (numerically),
// then replicate index.
func (rec Record) Less(other Record) bool {
	if rec.Location != other.Location {
		return rec.Location < other.Location
	}
	if rec.Haplotype != other.Haplotype {
		return rec.Haplotype.Less(other.Haplotype)
	}
	return rec.Replicate < other.Replicate
}

// Assemble expands allocations into output records, one per kept copy,
// sorted with SortRecords. Haplotypes that have no sequence in store
// are left out of the output and returned (once each, sorted) as
// unresolved.
func Assemble(allocs []Allocation, store *Store) (recs []Record, unresolved []ID) {
	missing := map[ID]bool{}
	for _, alloc := range allocs {
		for _, s := range alloc.Shares {
			seq, ok := store.Get(s.Haplotype)
			if !ok {
				if s.Keep > 0 && !missing[s.Haplotype] {
					missing[s.Haplotype] = true
					unresolved = append(unresolved, s.Haplotype)
				}
				continue
			}
			for i := 0; i < s.Keep; i++ {
				recs = append(recs, Record{
					Location:  alloc.Location,
					Haplotype: s.Haplotype,
					Replicate: i,
					Sequence:  seq,
				})
			}
		}
	}
	SortRecords(recs)
	sort.Slice(unresolved, func(i, j int) bool { return unresolved[i].Less(unresolved[j]) })
	return
}

// SortRecords sorts recs in output order (see Record.Less).
func SortRecords(recs []Record) {
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Less(recs[j]) })
}
