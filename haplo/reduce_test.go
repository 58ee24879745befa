// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package haplo

import (
	"fmt"
	"math/rand"

	"gopkg.in/check.v1"
)

type reduceSuite struct{}

var _ = check.Suite(&reduceSuite{})

func (s *reduceSuite) TestSingleHaplotype(c *check.C) {
	order := []ID{"17", "4"}
	alloc := Reducer{Target: 10}.Reduce("Dapo", order, map[ID]int{"17": 4})
	c.Check(alloc.Map(), check.DeepEquals, map[ID]int{"17": 10})
	c.Check(alloc.Total(), check.Equals, 10)
}

func (s *reduceSuite) TestPoolExhausted(c *check.C) {
	alloc := Reducer{Target: 10}.Reduce("Dapo", []ID{"1", "2"}, map[ID]int{"1": 3, "2": 1})
	c.Check(alloc.Shares, check.DeepEquals, []Share{
		{Haplotype: "1", Observed: 3, Keep: 7},
		{Haplotype: "2", Observed: 1, Keep: 2},
	})
	c.Check(alloc.Total(), check.Equals, 9)
}

func (s *reduceSuite) TestEmptyLocation(c *check.C) {
	alloc := Reducer{Target: 10}.Reduce("Nowhere", []ID{"1", "2"}, nil)
	c.Check(alloc.Shares, check.HasLen, 0)
	c.Check(alloc.Map(), check.DeepEquals, map[ID]int{})
	alloc = Reducer{Target: 10}.Reduce("Nowhere", nil, map[ID]int{"1": 5})
	c.Check(alloc.Shares, check.HasLen, 0)
}

func (s *reduceSuite) TestZeroSharesDropped(c *check.C) {
	// 1/20*10 truncates to 0, so haplotype 3 never appears even
	// though the kept total is below target.
	alloc := Reducer{Target: 10}.Reduce("L", []ID{"1", "2", "3"}, map[ID]int{"1": 10, "2": 9, "3": 1})
	c.Check(alloc.Map(), check.DeepEquals, map[ID]int{"1": 5, "2": 4})
	c.Check(alloc.Total(), check.Equals, 9)
}

func (s *reduceSuite) TestSelectionOrder(c *check.C) {
	// larger shares are taken first regardless of input order
	alloc := Reducer{Target: 8}.Reduce("L", []ID{"a", "b"}, map[ID]int{"a": 1, "b": 3})
	c.Check(alloc.Shares, check.DeepEquals, []Share{
		{"b", 3, 6},
		{"a", 1, 2},
	})

	alloc = Reducer{Target: 10}.Reduce("L", []ID{"1", "2", "3", "4"}, map[ID]int{"1": 4, "2": 4, "3": 1, "4": 1})
	c.Check(alloc.Shares, check.DeepEquals, []Share{
		{"1", 4, 4},
		{"2", 4, 4},
		{"3", 1, 1},
		{"4", 1, 1},
	})
	c.Check(alloc.Total(), check.Equals, 10)

	// 15/6 truncates to 2 for each
	alloc = Reducer{Target: 5}.Reduce("L", []ID{"1", "2"}, map[ID]int{"1": 3, "2": 3})
	c.Check(alloc.Total(), check.Equals, 4)
	alloc = Reducer{Target: 3}.Reduce("L", []ID{"1", "2"}, map[ID]int{"1": 5, "2": 5})
	c.Check(alloc.Total(), check.Equals, 2)

	alloc = Reducer{Target: 8}.Reduce("L", []ID{"x", "y", "z"}, map[ID]int{"x": 6, "y": 2, "z": 2})
	c.Check(alloc.Shares, check.DeepEquals, []Share{
		{"x", 6, 4},
		{"y", 2, 1},
		{"z", 2, 1},
	})
	alloc = Reducer{Target: 10}.Reduce("L", []ID{"x", "y", "z"}, map[ID]int{"x": 12, "y": 4, "z": 4})
	c.Check(alloc.Shares, check.DeepEquals, []Share{
		{"x", 12, 6},
		{"y", 4, 2},
		{"z", 4, 2},
	})
	// shares 7, 1, 0
	alloc = Reducer{Target: 10}.Reduce("L", []ID{"x", "y", "z"}, map[ID]int{"x": 8, "y": 2, "z": 1})
	c.Check(alloc.Map(), check.DeepEquals, map[ID]int{"x": 7, "y": 1})

	alloc = Reducer{Target: 0}.Reduce("L", []ID{"x"}, map[ID]int{"x": 8})
	c.Check(alloc.Shares, check.HasLen, 0)
}

func (s *reduceSuite) TestTieBreakFirstSeen(c *check.C) {
	counts := map[ID]int{"5": 2, "3": 2, "9": 2, "1": 2, "7": 2}
	alloc := Reducer{Target: 4}.Reduce("L", []ID{"9", "3", "7", "5", "1"}, counts)
	// each share is 2/10*4 = 0 => nothing
	c.Check(alloc.Shares, check.HasLen, 0)

	alloc = Reducer{Target: 10}.Reduce("L", []ID{"9", "3", "7", "5", "1"}, counts)
	c.Check(alloc.Shares, check.DeepEquals, []Share{
		{"9", 2, 2}, {"3", 2, 2}, {"7", 2, 2}, {"5", 2, 2}, {"1", 2, 2},
	})

	// ties are taken in first-seen order, not ID order
	alloc = Reducer{Target: 4}.Reduce("L", []ID{"9", "3", "7"}, map[ID]int{"9": 1, "3": 1, "7": 1})
	c.Check(alloc.Shares, check.DeepEquals, []Share{
		{"9", 1, 1}, {"3", 1, 1}, {"7", 1, 1},
	})
	alloc = Reducer{Target: 6}.Reduce("L", []ID{"9", "3", "7", "2"}, map[ID]int{"9": 3, "3": 3, "7": 3, "2": 3})
	// shares 1 each (3/12*6=1.5), total 4 < 6
	c.Check(alloc.Total(), check.Equals, 4)
	alloc = Reducer{Target: 2}.Reduce("L", []ID{"9", "3", "7", "2"}, map[ID]int{"9": 10, "3": 10, "7": 1, "2": 1})
	// shares 0,0,0,0: 10/22*2 = 0
	c.Check(alloc.Shares, check.HasLen, 0)
	alloc = Reducer{Target: 3}.Reduce("L", []ID{"9", "3", "7"}, map[ID]int{"9": 10, "3": 10, "7": 10})
	c.Check(alloc.Shares, check.DeepEquals, []Share{
		{"9", 10, 1}, {"3", 10, 1}, {"7", 10, 1},
	})
	alloc = Reducer{Target: 2}.Reduce("L", []ID{"3", "9"}, map[ID]int{"9": 10, "3": 10})
	c.Check(alloc.Shares, check.DeepEquals, []Share{{"3", 10, 1}, {"9", 10, 1}})
	alloc = Reducer{Target: 1}.Reduce("L", []ID{"3", "9"}, map[ID]int{"9": 10, "3": 10})
	c.Check(alloc.Shares, check.HasLen, 0)
	alloc = Reducer{Target: 3}.Reduce("L", []ID{"9", "3"}, map[ID]int{"9": 10, "3": 10})
	// shares 1,1; after 9 (sum 1) and 3 (sum 2) pool exhausted
	c.Check(alloc.Shares, check.DeepEquals, []Share{{"9", 10, 1}, {"3", 10, 1}})
}

func (s *reduceSuite) TestFloatShares(c *check.C) {
	counts := map[ID]int{"1": 29, "2": 71}
	alloc := Reducer{Target: 100}.Reduce("L", []ID{"1", "2"}, counts)
	c.Check(alloc.Map(), check.DeepEquals, map[ID]int{"1": 29, "2": 71})
	alloc = Reducer{Target: 100, FloatShares: true}.Reduce("L", []ID{"1", "2"}, counts)
	// 29.0/100*100 == 28.999999999999996
	c.Check(alloc.Map(), check.DeepEquals, map[ID]int{"1": 28, "2": 71})
}

func (s *reduceSuite) TestReduceAll(c *check.C) {
	idx := BuildIndex([]Pair{
		{"17", []string{"f_1_ZpDL_Dapo_R1f", "f_2_ZpDL_Dapo_R1f", "f_3_ZpDL_Dapo_R1f", "f_4_ZpDL_Dapo_R2f"}},
		{"4", []string{"f_5_ZpDL_XkB_R1f"}},
	})
	allocs := Reducer{Target: 10}.ReduceAll(Catalog{"Bie", "Dapo"}, idx)
	c.Assert(allocs, check.HasLen, 2)
	c.Check(allocs[0].Location, check.Equals, "Bie")
	c.Check(allocs[0].Shares, check.HasLen, 0)
	c.Check(allocs[1].Location, check.Equals, "Dapo")
	c.Check(allocs[1].Map(), check.DeepEquals, map[ID]int{"17": 10})

	c.Check(Reducer{Target: 10}.ReduceAll(nil, idx), check.HasLen, 0)
}

// Random inputs: realized totals stay within one share of target,
// every kept haplotype was observed, and results are repeatable.
func (s *reduceSuite) TestProperties(c *check.C) {
	rnd := rand.New(rand.NewSource(1))
	for trial := 0; trial < 2000; trial++ {
		nhaps := rnd.Intn(30)
		order := make([]ID, nhaps)
		counts := map[ID]int{}
		for i := range order {
			order[i] = ID(fmt.Sprint(rnd.Intn(1000)))
			if rnd.Intn(4) > 0 {
				counts[order[i]] += rnd.Intn(50)
			}
		}
		target := rnd.Intn(60)
		for _, float := range []bool{false, true} {
			r := Reducer{Target: target, FloatShares: float}
			alloc := r.Reduce("L", order, counts)
			again := r.Reduce("L", order, counts)
			c.Check(again, check.DeepEquals, alloc)

			total := 0
			for _, h := range order {
				total += counts[h]
			}
			if total == 0 {
				c.Check(alloc.Shares, check.HasLen, 0)
				continue
			}
			maxShare := 0
			for _, h := range order {
				if sh := r.ShareOf(counts[h], total); sh > maxShare {
					maxShare = sh
				}
			}
			c.Check(alloc.Total() <= target+maxShare, check.Equals, true, check.Commentf("trial %d", trial))
			c.Check(alloc.Total() >= 0, check.Equals, true)
			for i, sh := range alloc.Shares {
				c.Check(counts[sh.Haplotype] > 0, check.Equals, true)
				c.Check(sh.Keep > 0, check.Equals, true)
				if i > 0 {
					c.Check(sh.Keep <= alloc.Shares[i-1].Keep, check.Equals, true)
				}
			}
		}
	}
}
