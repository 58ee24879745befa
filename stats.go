// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package hapreduce

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"

	"github.com/arvados/hapreduce/haplo"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

type statscmd struct {
	inputArgs
	commonArgs
	outputFilename string
}

type locationStats struct {
	Location   string
	Reads      int // reads observed at this location
	Haplotypes int // distinct haplotypes observed
	Candidates int // haplotypes with a nonzero share
	Kept       int // haplotypes selected
	Copies     int // total copies selected
	Overshoot  int // copies beyond the target size
	// Hellinger distance between the observed and selected
	// haplotype proportions (absent if nothing was selected)
	Hellinger *float64 `json:",omitempty"`
}

type statsReport struct {
	Target       int
	Locations    []locationStats
	Uncatalogued []string // locations with reads, but not in the location sheet
	DroppedReads int      // reads with no location field
	Sequences    int
	Unresolved   []haplo.ID // selected haplotypes with no sequence
}

func (cmd *statscmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	return exitCode(cmd.run(prog, args, stdin, stdout, stderr), stderr)
}

func (cmd *statscmd) run(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	cmd.commonArgs.Flags(flags)
	cmd.inputArgs.Flags(flags)
	flags.StringVar(&cmd.outputFilename, "o", "-", "output `file`")
	if err := parseFlags(flags, args); err != nil {
		return err
	}
	if err := cmd.commonArgs.Setup(flags); err != nil {
		return err
	}
	if err := cmd.inputArgs.Check(); err != nil {
		return usageError{err}
	}

	if !cmd.runLocal {
		if cmd.outputFilename != "-" {
			return errors.New("cannot specify output file in container mode: not implemented")
		}
		runner := cmd.commonArgs.Runner("stats")
		err := runner.TranslatePaths(cmd.inputArgs.Paths()...)
		if err != nil {
			return err
		}
		runner.Args = append(runner.Args, cmd.inputArgs.Args()...)
		runner.Args = append(runner.Args, "-o", "/mnt/output/stats.json")
		output, err := runner.Run()
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, output+"/stats.json")
		return nil
	}

	ds, err := cmd.inputArgs.Load()
	if err != nil {
		return err
	}
	out, err := createOutput(cmd.outputFilename, stdout)
	if err != nil {
		return err
	}
	defer out.Close()
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	err = enc.Encode(ds.report())
	if err != nil {
		return err
	}
	return out.Close()
}

func (ds *dataset) report() statsReport {
	allocs := ds.Allocations()
	_, unresolved := haplo.Assemble(allocs, ds.store)
	rep := statsReport{
		Target:       ds.reducer.Target,
		Locations:    make([]locationStats, 0, len(allocs)),
		Uncatalogued: []string{},
		DroppedReads: ds.index.Dropped(),
		Sequences:    ds.store.Len(),
		Unresolved:   unresolved,
	}
	if rep.Unresolved == nil {
		rep.Unresolved = []haplo.ID{}
	}
	for _, loc := range ds.index.Locations() {
		if !ds.catalog.Contains(loc) {
			rep.Uncatalogued = append(rep.Uncatalogued, loc)
		}
	}
	for _, alloc := range allocs {
		rep.Locations = append(rep.Locations, ds.locationStats(alloc))
	}
	return rep
}

func (ds *dataset) locationStats(alloc haplo.Allocation) locationStats {
	counts := ds.index.Counts(alloc.Location)
	ls := locationStats{
		Location: alloc.Location,
		Reads:    ds.index.Total(alloc.Location),
		Kept:     len(alloc.Shares),
		Copies:   alloc.Total(),
	}
	if ls.Copies > ds.reducer.Target {
		ls.Overshoot = ls.Copies - ds.reducer.Target
	}
	if ls.Reads == 0 {
		return ls
	}
	kept := alloc.Map()
	var observed, selected []float64
	for _, hap := range ds.index.Haplotypes() {
		n := counts[hap]
		if n == 0 {
			continue
		}
		ls.Haplotypes++
		if ds.reducer.ShareOf(n, ls.Reads) > 0 {
			ls.Candidates++
		}
		observed = append(observed, float64(n))
		selected = append(selected, float64(kept[hap]))
	}
	if ls.Copies > 0 {
		floats.Scale(1/floats.Sum(observed), observed)
		floats.Scale(1/floats.Sum(selected), selected)
		h := stat.Hellinger(observed, selected)
		if math.IsNaN(h) {
			// identical distributions, off by rounding error
			h = 0
		}
		ls.Hellinger = &h
	}
	return ls
}
