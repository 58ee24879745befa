// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package hapreduce

import (
	"errors"
	"flag"
	"os"
	"strings"

	"github.com/arvados/hapreduce/haplo"
	"github.com/xuri/excelize/v2"
	"gopkg.in/check.v1"
)

type inputSuite struct{}

var _ = check.Suite(&inputSuite{})

func (s *inputSuite) TestReadList(c *check.C) {
	ents, malformed, err := readList(strings.NewReader(">uniq_1_2\tf_1_x_A_R1,f_2_x_B_R1\r\n\n" +
		"uniq_2_0\t\n" +
		"no tab here\n" +
		"too\tmany\ttabs\n" +
		"\t f_3_x_A_R1 \n"))
	c.Assert(err, check.IsNil)
	c.Check(malformed, check.Equals, 3)
	c.Check(ents, check.DeepEquals, []listEntry{
		{Label: "uniq_1_2", Reads: []string{"f_1_x_A_R1", "f_2_x_B_R1"}},
		{Label: "uniq_2_0"},
	})

	pairs, malformed, err := readHapInfo(strings.NewReader("uniq_1_2\tf_1_x_A_R1\nnounderscore\tf_2_x_A_R1\n"))
	c.Assert(err, check.IsNil)
	c.Check(malformed, check.Equals, 1)
	c.Check(pairs, check.DeepEquals, []haplo.Pair{{Haplotype: "1", Reads: []string{"f_1_x_A_R1"}}})
}

func (s *inputSuite) TestReadSequences(c *check.C) {
	for _, trial := range []struct {
		input     string
		malformed int
	}{
		{"\n\n>uniq_1_1\nACGT\nAC\n>uniq_2_1\nG\n>uniq_3_1 description\nTT\n", 0},
		{"uniq_1_1\tACGTAC\nuniq_2_1\tG\n\nbogus\nuniq_3_1\tTT\r\n", 1},
	} {
		ents, malformed, err := readSequences(strings.NewReader(trial.input))
		c.Assert(err, check.IsNil)
		c.Check(malformed, check.Equals, trial.malformed)
		c.Check(ents, check.DeepEquals, []haplo.Entry{
			{Label: "uniq_1_1", Sequence: "ACGTAC"},
			{Label: "uniq_2_1", Sequence: "G"},
			{Label: "uniq_3_1", Sequence: "TT"},
		}, check.Commentf("%q", trial.input))
	}

	ents, malformed, err := readSequences(strings.NewReader(" \n"))
	c.Check(err, check.IsNil)
	c.Check(malformed, check.Equals, 0)
	c.Check(ents, check.HasLen, 0)
}

func (s *inputSuite) TestReadMerged(c *check.C) {
	groups, err := readMerged(strings.NewReader(">r1,uniq_1_2\nACGT\n>r2,uniq_2_1\nTTTT\n>r,3,uniq_1_2\nGGGG\n>uniq_4_1\nCC\n"))
	c.Assert(err, check.IsNil)
	c.Check(groups, check.DeepEquals, []*mergedGroup{
		{Label: "uniq_1_2", Reads: []string{"r1", "r,3"}, Sequence: "ACGT"},
		{Label: "uniq_2_1", Reads: []string{"r2"}, Sequence: "TTTT"},
		{Label: "uniq_4_1", Reads: []string{"uniq_4_1"}, Sequence: "CC"},
	})
}

func (s *inputSuite) TestReadLocationsCSV(c *check.C) {
	values, err := readLocations("testdata/locations.csv", "eDNA_ID")
	c.Assert(err, check.IsNil)
	c.Check(values, check.DeepEquals, []string{"Dapo", "XkB", " Bie ", "Empty", "Dapo"})

	values, err = readLocations("testdata/locations.csv", "")
	c.Assert(err, check.IsNil)
	c.Check(values, check.DeepEquals, []string{"A", "B", "C", "D", "E"})

	_, err = readLocations("testdata/locations.csv", "Location")
	c.Check(errors.Is(err, ErrMissingColumn), check.Equals, true)

	tmpdir := c.MkDir()
	err = os.WriteFile(tmpdir+"/bom.tsv", []byte("\ufeffeDNA_ID\tnote\nDapo\tx\n\nshort\n"), 0666)
	c.Assert(err, check.IsNil)
	values, err = readLocations(tmpdir+"/bom.tsv", "eDNA_ID")
	c.Assert(err, check.IsNil)
	c.Check(values, check.DeepEquals, []string{"Dapo", "short"})
	values, err = readLocations(tmpdir+"/bom.tsv", "note")
	c.Assert(err, check.IsNil)
	c.Check(values, check.DeepEquals, []string{"x"})

	// suffix match ignores case
	err = os.WriteFile(tmpdir+"/Sample.TSV", []byte("eDNA_ID\tnote\nDapo,1\tx\n"), 0666)
	c.Assert(err, check.IsNil)
	values, err = readLocations(tmpdir+"/Sample.TSV", "eDNA_ID")
	c.Assert(err, check.IsNil)
	c.Check(values, check.DeepEquals, []string{"Dapo,1"})
}

func (s *inputSuite) TestReadLocationsXLSX(c *check.C) {
	tmpdir := c.MkDir()
	xl := excelize.NewFile()
	for cell, value := range map[string]string{
		"A1": "Site", "B1": "eDNA_ID",
		"A2": "a", "B2": "XkB",
		"A3": "b", "B3": "Dapo ",
		"A4": "c",
		"A5": "d", "B5": "Bie",
	} {
		c.Assert(xl.SetCellValue("Sheet1", cell, value), check.IsNil)
	}
	c.Assert(xl.SaveAs(tmpdir+"/Sample_info.xlsx"), check.IsNil)

	values, err := readLocations(tmpdir+"/Sample_info.xlsx", "eDNA_ID")
	c.Assert(err, check.IsNil)
	c.Check(haplo.NewCatalog(values, nil), check.DeepEquals, haplo.Catalog{"Bie", "Dapo", "XkB"})

	_, err = readLocations(tmpdir+"/Sample_info.xlsx", "eDNA")
	c.Check(errors.Is(err, ErrMissingColumn), check.Equals, true)
	c.Check(err, check.ErrorMatches, `.*Sample_info.xlsx: missing column "eDNA" in header row \["Site" "eDNA_ID"\]`)
}

func (s *inputSuite) TestLoadConfigFile(c *check.C) {
	tmpdir := c.MkDir()
	err := os.WriteFile(tmpdir+"/conf.toml", []byte(`
size = 7
float-shares = true
strip-prefixes = ["a_", "b_"]
location-column = "x"
`), 0666)
	c.Assert(err, check.IsNil)

	load := func(fnm string, args ...string) (*inputArgs, error) {
		var ia inputArgs
		flags := flag.NewFlagSet("", flag.ContinueOnError)
		ia.Flags(flags)
		c.Assert(flags.Parse(args), check.IsNil)
		return &ia, loadConfigFile(flags, fnm)
	}
	ia, err := load(tmpdir+"/conf.toml", "-location-column=y")
	c.Assert(err, check.IsNil)
	c.Check(ia.Size, check.Equals, 7)
	c.Check(ia.FloatShares, check.Equals, true)
	c.Check(ia.prefixes(), check.DeepEquals, []string{"a_", "b_"})
	c.Check(ia.LocationColumn, check.Equals, "y")

	err = os.WriteFile(tmpdir+"/bad.toml", []byte("size = \"seven\"\n"), 0666)
	c.Assert(err, check.IsNil)
	_, err = load(tmpdir + "/bad.toml")
	c.Check(err, check.ErrorMatches, `.*bad.toml: size: .*`)

	err = os.WriteFile(tmpdir+"/nested.toml", []byte("[size]\nx = 1\n"), 0666)
	c.Assert(err, check.IsNil)
	_, err = load(tmpdir + "/nested.toml")
	c.Check(err, check.ErrorMatches, `.*unsupported value type.*`)
}
