// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package haplo

// Share is the number of copies of a haplotype kept at one location.
type Share struct {
	Haplotype ID
	Observed  int // reads of this haplotype at the location
	Keep      int
}

// Allocation lists the haplotypes kept at one location, in the order
// the reducer selected them.
type Allocation struct {
	Location string
	Shares   []Share
}

// Total returns the number of copies kept at the location. This can
// exceed the reducer's target by less than the largest share.
func (alloc Allocation) Total() int {
	total := 0
	for _, s := range alloc.Shares {
		total += s.Keep
	}
	return total
}

// Keep returns the number of copies of hap kept at the location.
func (alloc Allocation) Keep(hap ID) int {
	for _, s := range alloc.Shares {
		if s.Haplotype == hap {
			return s.Keep
		}
	}
	return 0
}

// Map returns the allocation as haplotype => keep count.
func (alloc Allocation) Map() map[ID]int {
	m := make(map[ID]int, len(alloc.Shares))
	for _, s := range alloc.Shares {
		m[s.Haplotype] = s.Keep
	}
	return m
}

// Reducer scales each location's haplotype counts down to about
// Target copies.
type Reducer struct {
	Target int

	// Compute shares as int(float64(count)/float64(total)*Target)
	// instead of exact integer division. Results differ slightly
	// for some inputs (e.g., 29/100*100 truncates to 28); this matches
	// the arithmetic of the legacy reduce_hap_size.py script.
	FloatShares bool
}

// ShareOf returns the truncated share of Target for count reads out of
// total. total must be positive.
func (r Reducer) ShareOf(count, total int) int {
	if r.FloatShares {
		return int(float64(count) / float64(total) * float64(r.Target))
	}
	return count * r.Target / total
}

// Reduce computes the allocation for one location. order lists every
// known haplotype (ties between equal shares go to the one listed
// first); counts gives the reads observed at this location.
//
// Each haplotype's share is its truncated proportion of Target. Shares
// that truncate to zero are dropped. The remaining candidates are
// taken largest first until the running total reaches Target or
// candidates run out, so the last one taken can overshoot Target.
func (r Reducer) Reduce(location string, order []ID, counts map[ID]int) Allocation {
	alloc := Allocation{Location: location}
	total := 0
	for _, hap := range order {
		total += counts[hap]
	}
	if total == 0 {
		return alloc
	}

	var candidates []Share
	for _, hap := range order {
		n := counts[hap]
		if n <= 0 {
			continue
		}
		if keep := r.ShareOf(n, total); keep > 0 {
			candidates = append(candidates, Share{Haplotype: hap, Observed: n, Keep: keep})
		}
	}

	for sum := 0; len(candidates) > 0 && sum < r.Target; {
		best := 0
		for i, c := range candidates {
			if c.Keep > candidates[best].Keep {
				best = i
			}
		}
		sum += candidates[best].Keep
		alloc.Shares = append(alloc.Shares, candidates[best])
		candidates = append(candidates[:best], candidates[best+1:]...)
	}
	return alloc
}

// ReduceAll returns one allocation per catalog location, in catalog
// order. Locations that appear in idx but not in cat are ignored.
func (r Reducer) ReduceAll(cat Catalog, idx *Index) []Allocation {
	allocs := make([]Allocation, 0, len(cat))
	for _, loc := range cat {
		allocs = append(allocs, r.Reduce(loc, idx.Haplotypes(), idx.Counts(loc)))
	}
	return allocs
}
