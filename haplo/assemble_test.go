// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package haplo

import (
	"math/rand"

	"gopkg.in/check.v1"
)

type assembleSuite struct{}

var _ = check.Suite(&assembleSuite{})

func (s *assembleSuite) TestAssemble(c *check.C) {
	store := NewStore()
	store.Put("17", "acgt-ACGT")
	store.Put("4", "tttt")
	store.Put("10", "gggg")
	allocs := []Allocation{
		{Location: "XkB", Shares: []Share{{"10", 5, 2}, {"4", 3, 1}}},
		{Location: "Dapo", Shares: []Share{{"17", 4, 2}, {"99", 1, 1}}},
		{Location: "Bie"},
	}
	recs, unresolved := Assemble(allocs, store)
	c.Check(unresolved, check.DeepEquals, []ID{"99"})
	c.Check(recs, check.DeepEquals, []Record{
		{"Dapo", "17", 0, "acgt-ACGT"},
		{"Dapo", "17", 1, "acgt-ACGT"},
		{"XkB", "4", 0, "tttt"},
		{"XkB", "10", 0, "gggg"},
		{"XkB", "10", 1, "gggg"},
	})
	c.Check(recs[0].Header(), check.Equals, "Dapo_17_0")
	c.Check(recs[4].Header(), check.Equals, "XkB_10_1")
}

func (s *assembleSuite) TestUnresolvedOnly(c *check.C) {
	allocs := []Allocation{
		{Location: "A", Shares: []Share{{"3", 1, 4}}},
		{Location: "B", Shares: []Share{{"3", 1, 1}, {"2", 1, 1}}},
	}
	recs, unresolved := Assemble(allocs, NewStore())
	c.Check(recs, check.HasLen, 0)
	c.Check(unresolved, check.DeepEquals, []ID{"2", "3"})
}

func (s *assembleSuite) TestNoLocations(c *check.C) {
	store, _ := BuildStore([]Entry{{"uniq_1_1", "aaaa"}})
	idx := BuildIndex([]Pair{{"1", []string{"f_1_x_Dapo_R1"}}})
	allocs := Reducer{Target: 30}.ReduceAll(NewCatalog(nil, nil), idx)
	recs, unresolved := Assemble(allocs, store)
	c.Check(recs, check.HasLen, 0)
	c.Check(unresolved, check.HasLen, 0)
}

func (s *assembleSuite) TestSortIdempotent(c *check.C) {
	var recs []Record
	for _, loc := range []string{"b", "a", "c"} {
		for _, hap := range []ID{"10", "2", "1", "x"} {
			for i := 0; i < 3; i++ {
				recs = append(recs, Record{Location: loc, Haplotype: hap, Replicate: i})
			}
		}
	}
	rand.New(rand.NewSource(2)).Shuffle(len(recs), func(i, j int) { recs[i], recs[j] = recs[j], recs[i] })
	SortRecords(recs)
	for i := 1; i < len(recs); i++ {
		c.Check(recs[i].Less(recs[i-1]), check.Equals, false)
	}
	c.Check(recs[0], check.Equals, Record{Location: "a", Haplotype: "1", Replicate: 0})
	c.Check(recs[3].Haplotype, check.Equals, ID("2"))
	c.Check(recs[6].Haplotype, check.Equals, ID("10"))
	c.Check(recs[9].Haplotype, check.Equals, ID("x"))

	again := append([]Record(nil), recs...)
	SortRecords(again)
	c.Check(again, check.DeepEquals, recs)
}
