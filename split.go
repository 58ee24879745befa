// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package hapreduce

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	log "github.com/sirupsen/logrus"
)

// splitcmd converts a merged FASTA file (headers "read,label") into a
// de-duplicated haplotype FASTA file and a hap-info list.
type splitcmd struct {
	commonArgs
	inputFilename string
	fastaFilename string
	listFilename  string
	wrap          int
}

func (cmd *splitcmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	return exitCode(cmd.run(prog, args, stdin, stdout, stderr), stderr)
}

func (cmd *splitcmd) run(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	cmd.commonArgs.Flags(flags)
	flags.StringVar(&cmd.inputFilename, "i", "-", "merged FASTA input `file`")
	flags.StringVar(&cmd.fastaFilename, "o-fasta", "asv.fa", "haplotype FASTA output `file`")
	flags.StringVar(&cmd.listFilename, "o-list", "asv.list", "hap-info list output `file`")
	flags.IntVar(&cmd.wrap, "wrap", 60, "wrap sequence lines at `width` characters (0: don't wrap)")
	if err := parseFlags(flags, args); err != nil {
		return err
	}
	if err := cmd.commonArgs.Setup(flags); err != nil {
		return err
	}
	if cmd.wrap < 0 {
		return usageError{errors.New("-wrap must not be negative")}
	}
	if cmd.fastaFilename == "-" && cmd.listFilename == "-" {
		return usageError{errors.New("-o-fasta and -o-list cannot both be stdout")}
	}

	if !cmd.runLocal {
		runner := cmd.commonArgs.Runner("split")
		err := runner.TranslatePaths(&cmd.inputFilename)
		if err != nil {
			return err
		}
		runner.Args = append(runner.Args, "-i", cmd.inputFilename, fmt.Sprintf("-wrap=%d", cmd.wrap),
			"-o-fasta", "/mnt/output/asv.fa", "-o-list", "/mnt/output/asv.list")
		output, err := runner.Run()
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, output+"/asv.fa")
		fmt.Fprintln(stdout, output+"/asv.list")
		return nil
	}

	var input io.ReadCloser
	if cmd.inputFilename == "-" {
		input = io.NopCloser(stdin)
	} else {
		var err error
		input, err = zopen(cmd.inputFilename)
		if err != nil {
			return err
		}
	}
	defer input.Close()
	groups, err := readMerged(input)
	if err != nil {
		return fmt.Errorf("%s: %w", cmd.inputFilename, err)
	}

	fasta, err := createOutput(cmd.fastaFilename, stdout)
	if err != nil {
		return err
	}
	defer fasta.Close()
	list, err := createOutput(cmd.listFilename, stdout)
	if err != nil {
		return err
	}
	defer list.Close()

	names := make([]string, len(groups))
	seqs := make([]string, len(groups))
	reads := 0
	for i, grp := range groups {
		names[i] = grp.Label
		seqs[i] = grp.Sequence
		reads += len(grp.Reads)
		_, err = fmt.Fprintf(list, ">%s\t%s\n", grp.Label, strings.Join(grp.Reads, ","))
		if err != nil {
			return err
		}
	}
	err = writeFasta(fasta, cmd.wrap, names, seqs)
	if err != nil {
		return err
	}
	if err = fasta.Close(); err != nil {
		return err
	}
	if err = list.Close(); err != nil {
		return err
	}
	log.Infof("split %d reads into %d haplotypes", reads, len(groups))
	return nil
}
