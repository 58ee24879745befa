// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package hapreduce

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/kshedden/gonpy"
	log "github.com/sirupsen/logrus"
)

// exportNumpy writes the location x haplotype observation and
// allocation matrices.
type exportNumpy struct {
	inputArgs
	commonArgs
	outputDir string
}

func (cmd *exportNumpy) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	return exitCode(cmd.run(prog, args, stdin, stdout, stderr), stderr)
}

func (cmd *exportNumpy) run(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	cmd.commonArgs.Flags(flags)
	cmd.inputArgs.Flags(flags)
	flags.StringVar(&cmd.outputDir, "output-dir", "./out", "output `directory`")
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
		runner := cmd.commonArgs.Runner("export-numpy")
		err := runner.TranslatePaths(cmd.inputArgs.Paths()...)
		if err != nil {
			return err
		}
		runner.Args = append(runner.Args, cmd.inputArgs.Args()...)
		runner.Args = append(runner.Args, "-output-dir", "/mnt/output")
		output, err := runner.Run()
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, output)
		return nil
	}

	ds, err := cmd.inputArgs.Load()
	if err != nil {
		return err
	}
	err = os.MkdirAll(cmd.outputDir, 0777)
	if err != nil {
		return err
	}

	haps := ds.index.Haplotypes()
	rows, cols := len(ds.catalog), len(haps)
	counts := make([]int32, rows*cols)
	alloc := make([]int32, rows*cols)
	for row, a := range ds.Allocations() {
		obs := ds.index.Counts(a.Location)
		keep := a.Map()
		for col, hap := range haps {
			counts[row*cols+col] = int32(obs[hap])
			alloc[row*cols+col] = int32(keep[hap])
		}
	}
	if err = writeNumpyInt32(cmd.outputDir+"/counts.npy", counts, rows, cols); err != nil {
		return err
	}
	if err = writeNumpyInt32(cmd.outputDir+"/allocation.npy", alloc, rows, cols); err != nil {
		return err
	}

	labels := make([]string, cols)
	for i, hap := range haps {
		labels[i] = string(hap)
	}
	if err = writeLabels(cmd.outputDir+"/haplotypes.csv", labels); err != nil {
		return err
	}
	return writeLabels(cmd.outputDir+"/locations.csv", ds.catalog)
}

func writeNumpyInt32(fnm string, out []int32, rows, cols int) error {
	output, err := os.Create(fnm)
	if err != nil {
		return err
	}
	defer output.Close()
	bufw := bufio.NewWriter(output)
	npw, err := gonpy.NewWriter(nopCloser{bufw})
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"filename": fnm,
		"rows":     rows,
		"cols":     cols,
	}).Infof("writing numpy: %s", fnm)
	npw.Shape = []int{rows, cols}
	err = npw.WriteInt32(out)
	if err != nil {
		return err
	}
	err = bufw.Flush()
	if err != nil {
		return err
	}
	return output.Close()
}

// writeLabels writes "index,label" lines, one per matrix row or
// column.
func writeLabels(fnm string, labels []string) error {
	f, err := os.Create(fnm)
	if err != nil {
		return err
	}
	defer f.Close()
	bufw := bufio.NewWriter(f)
	for i, label := range labels {
		fmt.Fprintf(bufw, "%d,%q\n", i, label)
	}
	err = bufw.Flush()
	if err != nil {
		return err
	}
	return f.Close()
}
