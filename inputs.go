// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package hapreduce

import (
	"errors"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"strings"

	"git.arvados.org/arvados.git/sdk/go/arvados"
	"github.com/arvados/hapreduce/haplo"
	log "github.com/sirupsen/logrus"
)

// commonArgs are the flags every command accepts.
type commonArgs struct {
	pprof       string
	loglevel    string
	config      string
	runLocal    bool
	projectUUID string
	priority    int
}

func (ca *commonArgs) Flags(flags *flag.FlagSet) {
	flags.StringVar(&ca.pprof, "pprof", "", "serve Go profile data at http://`[addr]:port`")
	flags.StringVar(&ca.loglevel, "loglevel", "info", "logging threshold (trace, debug, info, warn, error, fatal, or panic)")
	flags.StringVar(&ca.config, "config", "", "read default flag values from TOML `file`")
	flags.BoolVar(&ca.runLocal, "local", true, "run on local host (-local=false: run in an arvados container)")
	flags.StringVar(&ca.projectUUID, "project", "", "project `UUID` for containers and output data")
	flags.IntVar(&ca.priority, "priority", 500, "container request priority")
}

// Setup applies the config file (if any), then the log level and
// profiling flags. Call it after flags.Parse.
func (ca *commonArgs) Setup(flags *flag.FlagSet) error {
	if ca.config != "" {
		err := loadConfigFile(flags, ca.config)
		if err != nil {
			return err
		}
	}
	lvl, err := log.ParseLevel(ca.loglevel)
	if err != nil {
		return err
	}
	log.SetLevel(lvl)
	if ca.pprof != "" {
		go func() {
			log.Println(http.ListenAndServe(ca.pprof, nil))
		}()
	}
	return nil
}

// Runner returns a container runner for the named subcommand, with
// the common flags already forwarded.
func (ca *commonArgs) Runner(name string) *arvadosContainerRunner {
	return &arvadosContainerRunner{
		Name:        "hapreduce " + name,
		Client:      arvados.NewClientFromEnv(),
		ProjectUUID: ca.projectUUID,
		RAM:         8000000000,
		VCPUs:       1,
		Priority:    ca.priority,
		Args:        []string{name, "-local=true", "-loglevel=" + ca.loglevel},
	}
}

// inputArgs are the flags that select the data a reduction runs on.
type inputArgs struct {
	HapInfo        string
	Haplotypes     string
	Merged         string
	Locations      string
	LocationColumn string
	StripPrefixes  string
	Size           int
	FloatShares    bool
}

func (ia *inputArgs) Flags(flags *flag.FlagSet) {
	flags.StringVar(&ia.HapInfo, "hap-info", "", "haplotype list `file` (label<TAB>read,read,...)")
	flags.StringVar(&ia.Haplotypes, "haplotypes", "", "haplotype sequence `file` (FASTA or label<TAB>sequence)")
	flags.StringVar(&ia.Merged, "merged", "", "merged FASTA `file` with read,label headers (instead of -hap-info and -haplotypes)")
	flags.StringVar(&ia.Locations, "locations", "", "location sheet `file` (.csv, .tsv, or .xlsx)")
	flags.StringVar(&ia.LocationColumn, "location-column", "eDNA_ID", "location column `name` in the header row (empty: first column)")
	flags.StringVar(&ia.StripPrefixes, "strip-prefixes", "", "comma-separated `prefixes`: only keep location values with one of these prefixes, and remove it")
	flags.IntVar(&ia.Size, "size", 0, "target number of haplotype copies per location")
	flags.BoolVar(&ia.FloatShares, "float-shares", false, "compute shares with floating point arithmetic like the legacy script")
}

// Check returns an error describing a usage problem, if any.
func (ia *inputArgs) Check() error {
	if ia.Size <= 0 {
		return errors.New("-size must be a positive integer")
	}
	if ia.Locations == "" {
		return errors.New("-locations is required")
	}
	if ia.Merged != "" {
		if ia.HapInfo != "" || ia.Haplotypes != "" {
			return errors.New("-merged cannot be combined with -hap-info or -haplotypes")
		}
	} else if ia.HapInfo == "" || ia.Haplotypes == "" {
		return errors.New("either -merged, or both -hap-info and -haplotypes, must be given")
	}
	return nil
}

// Paths returns pointers to the input filename fields, for
// translating to container mounts.
func (ia *inputArgs) Paths() []*string {
	return []*string{&ia.HapInfo, &ia.Haplotypes, &ia.Merged, &ia.Locations}
}

// Args returns the command line flags that reproduce ia.
func (ia *inputArgs) Args() []string {
	args := []string{
		"-locations=" + ia.Locations,
		"-location-column=" + ia.LocationColumn,
		"-strip-prefixes=" + ia.StripPrefixes,
		fmt.Sprintf("-size=%d", ia.Size),
		fmt.Sprintf("-float-shares=%v", ia.FloatShares),
	}
	if ia.Merged != "" {
		return append(args, "-merged="+ia.Merged)
	}
	return append(args, "-hap-info="+ia.HapInfo, "-haplotypes="+ia.Haplotypes)
}

func (ia *inputArgs) prefixes() []string {
	var prefixes []string
	for _, p := range strings.Split(ia.StripPrefixes, ",") {
		if p = strings.TrimSpace(p); p != "" {
			prefixes = append(prefixes, p)
		}
	}
	return prefixes
}

// dataset is everything a reduction needs, loaded into memory.
type dataset struct {
	index   *haplo.Index
	store   *haplo.Store
	catalog haplo.Catalog
	reducer haplo.Reducer
}

// Allocations runs the reducer over every catalog location.
func (ds *dataset) Allocations() []haplo.Allocation {
	allocs := ds.reducer.ReduceAll(ds.catalog, ds.index)
	for _, alloc := range allocs {
		if len(alloc.Shares) == 0 {
			log.Debugf("%s: no haplotypes allocated", alloc.Location)
		}
	}
	return allocs
}

// Load reads the location sheet, then the haplotype inputs. A missing
// location column is reported before the other inputs are read.
func (ia *inputArgs) Load() (*dataset, error) {
	values, err := readLocations(ia.Locations, ia.LocationColumn)
	if err != nil {
		return nil, err
	}
	ds := &dataset{
		catalog: haplo.NewCatalog(values, ia.prefixes()),
		reducer: haplo.Reducer{Target: ia.Size, FloatShares: ia.FloatShares},
	}
	log.Infof("%s: %d locations", ia.Locations, len(ds.catalog))

	if ia.Merged != "" {
		err = ds.loadMerged(ia.Merged)
	} else {
		err = ds.loadSeparate(ia.HapInfo, ia.Haplotypes)
	}
	if err != nil {
		return nil, err
	}
	if n := ds.index.Dropped(); n > 0 {
		log.Warnf("%d reads with no location field were ignored", n)
	}
	if n := ds.store.Replaced(); n > 0 {
		log.Warnf("%d duplicate haplotype sequences replaced earlier ones", n)
	}
	return ds, nil
}

func (ds *dataset) loadSeparate(hapInfo, haplotypes string) error {
	f, err := zopen(hapInfo)
	if err != nil {
		return err
	}
	defer f.Close()
	pairs, malformed, err := readHapInfo(f)
	if err != nil {
		return fmt.Errorf("%s: %w", hapInfo, err)
	}
	warnMalformed(hapInfo, malformed)
	ds.index = haplo.BuildIndex(pairs)
	log.Infof("%s: %d haplotypes", hapInfo, len(ds.index.Haplotypes()))

	f, err = zopen(haplotypes)
	if err != nil {
		return err
	}
	defer f.Close()
	ents, malformed, err := readSequences(f)
	if err != nil {
		return fmt.Errorf("%s: %w", haplotypes, err)
	}
	var bad []string
	ds.store, bad = haplo.BuildStore(ents)
	warnMalformed(haplotypes, malformed+len(bad))
	log.Infof("%s: %d sequences", haplotypes, ds.store.Len())
	return nil
}

func (ds *dataset) loadMerged(merged string) error {
	f, err := zopen(merged)
	if err != nil {
		return err
	}
	defer f.Close()
	groups, err := readMerged(f)
	if err != nil {
		return fmt.Errorf("%s: %w", merged, err)
	}
	ds.index = haplo.NewIndex()
	ds.store = haplo.NewStore()
	malformed := 0
	for _, grp := range groups {
		id, err := haplo.ParseID(grp.Label)
		if err != nil {
			malformed++
			continue
		}
		ds.index.Add(id, grp.Reads)
		ds.store.Put(id, grp.Sequence)
	}
	warnMalformed(merged, malformed)
	log.Infof("%s: %d haplotypes", merged, len(ds.index.Haplotypes()))
	return nil
}

func warnMalformed(fnm string, n int) {
	if n > 0 {
		log.Warnf("%s: skipped %d malformed records (%s)", fnm, n, haplo.ErrMalformedRecord)
	}
}
