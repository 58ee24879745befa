// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package hapreduce

import (
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/arvados/hapreduce/haplo"
	log "github.com/sirupsen/logrus"
)

type reducecmd struct {
	inputArgs
	commonArgs
	outputFilename string
	wrap           int
}

func (cmd *reducecmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	return exitCode(cmd.run(prog, args, stdin, stdout, stderr), stderr)
}

func (cmd *reducecmd) run(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	cmd.commonArgs.Flags(flags)
	cmd.inputArgs.Flags(flags)
	flags.StringVar(&cmd.outputFilename, "o", "-", "output `file` (.gz suffix: compress)")
	flags.IntVar(&cmd.wrap, "wrap", 0, "wrap sequence lines at `width` characters (0: don't wrap)")
	if err := parseFlags(flags, args); err != nil {
		return err
	}
	if err := cmd.commonArgs.Setup(flags); err != nil {
		return err
	}
	if err := cmd.inputArgs.Check(); err != nil {
		return usageError{err}
	}
	if cmd.wrap < 0 {
		return usageError{errors.New("-wrap must not be negative")}
	}

	if !cmd.runLocal {
		if cmd.outputFilename != "-" {
			return errors.New("cannot specify output file in container mode: not implemented")
		}
		runner := cmd.commonArgs.Runner("reduce")
		err := runner.TranslatePaths(cmd.inputArgs.Paths()...)
		if err != nil {
			return err
		}
		runner.Args = append(runner.Args, cmd.inputArgs.Args()...)
		runner.Args = append(runner.Args, fmt.Sprintf("-wrap=%d", cmd.wrap), "-o", "/mnt/output/reduced.fa")
		output, err := runner.Run()
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, output+"/reduced.fa")
		return nil
	}

	ds, err := cmd.inputArgs.Load()
	if err != nil {
		return err
	}
	recs, unresolved := haplo.Assemble(ds.Allocations(), ds.store)
	if len(unresolved) > 0 {
		log.Warnf("%d allocated haplotypes have no sequence and were skipped: %v", len(unresolved), unresolved)
	}

	out, err := createOutput(cmd.outputFilename, stdout)
	if err != nil {
		return err
	}
	defer out.Close()
	err = writeRecords(out, cmd.wrap, recs)
	if err != nil {
		return err
	}
	err = out.Close()
	if err != nil {
		return err
	}
	log.Infof("wrote %d sequences for %d locations", len(recs), len(ds.catalog))
	return nil
}
