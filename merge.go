// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package hapreduce

import (
	"errors"
	"flag"
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"
)

// mergelistcmd is the inverse of splitcmd: it expands a haplotype
// FASTA file and a hap-info list into one "read,label" record per
// read.
type mergelistcmd struct {
	commonArgs
	fastaFilename  string
	listFilename   string
	outputFilename string
	wrap           int
}

func (cmd *mergelistcmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	return exitCode(cmd.run(prog, args, stdin, stdout, stderr), stderr)
}

func (cmd *mergelistcmd) run(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	cmd.commonArgs.Flags(flags)
	flags.StringVar(&cmd.fastaFilename, "fasta", "", "haplotype FASTA (or label<TAB>sequence) input `file`")
	flags.StringVar(&cmd.listFilename, "list", "", "hap-info list input `file`")
	flags.StringVar(&cmd.outputFilename, "o", "-", "output `file` (.gz suffix: compress)")
	flags.IntVar(&cmd.wrap, "wrap", 0, "wrap sequence lines at `width` characters (0: don't wrap)")
	if err := parseFlags(flags, args); err != nil {
		return err
	}
	if err := cmd.commonArgs.Setup(flags); err != nil {
		return err
	}
	if cmd.fastaFilename == "" || cmd.listFilename == "" {
		return usageError{errors.New("-fasta and -list are required")}
	}
	if cmd.wrap < 0 {
		return usageError{errors.New("-wrap must not be negative")}
	}

	if !cmd.runLocal {
		if cmd.outputFilename != "-" {
			return errors.New("cannot specify output file in container mode: not implemented")
		}
		runner := cmd.commonArgs.Runner("merge-list")
		err := runner.TranslatePaths(&cmd.fastaFilename, &cmd.listFilename)
		if err != nil {
			return err
		}
		runner.Args = append(runner.Args, "-fasta", cmd.fastaFilename, "-list", cmd.listFilename,
			fmt.Sprintf("-wrap=%d", cmd.wrap), "-o", "/mnt/output/merged.fa")
		output, err := runner.Run()
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, output+"/merged.fa")
		return nil
	}

	f, err := zopen(cmd.fastaFilename)
	if err != nil {
		return err
	}
	defer f.Close()
	ents, malformed, err := readSequences(f)
	if err != nil {
		return fmt.Errorf("%s: %w", cmd.fastaFilename, err)
	}
	warnMalformed(cmd.fastaFilename, malformed)
	seqs := make(map[string]string, len(ents))
	for _, ent := range ents {
		if _, dup := seqs[ent.Label]; !dup {
			seqs[ent.Label] = ent.Sequence
		}
	}

	f, err = zopen(cmd.listFilename)
	if err != nil {
		return err
	}
	defer f.Close()
	list, malformed, err := readList(f)
	if err != nil {
		return fmt.Errorf("%s: %w", cmd.listFilename, err)
	}
	warnMalformed(cmd.listFilename, malformed)
	list = dedupLabels(list)

	var names, outseqs []string
	for _, ent := range list {
		seq, ok := seqs[ent.Label]
		if !ok {
			log.Warnf("%s: label %q not found in %s, skipping %d reads", cmd.listFilename, ent.Label, cmd.fastaFilename, len(ent.Reads))
			continue
		}
		for _, read := range ent.Reads {
			names = append(names, read+","+ent.Label)
			outseqs = append(outseqs, seq)
		}
	}

	out, err := createOutput(cmd.outputFilename, stdout)
	if err != nil {
		return err
	}
	defer out.Close()
	err = writeFasta(out, cmd.wrap, names, outseqs)
	if err != nil {
		return err
	}
	if err = out.Close(); err != nil {
		return err
	}
	log.Infof("wrote %d reads", len(names))
	return nil
}

// dedupLabels returns one entry per label. When a label appears on
// more than one line, the last line's reads replace the earlier ones,
// in the position where the label first appeared.
func dedupLabels(list []listEntry) []listEntry {
	seen := make(map[string]int, len(list))
	out := list[:0:0]
	for _, ent := range list {
		if i, ok := seen[ent.Label]; ok {
			log.Warnf("duplicate label %q in list, replacing %d reads with %d", ent.Label, len(out[i].Reads), len(ent.Reads))
			out[i] = ent
			continue
		}
		seen[ent.Label] = len(out)
		out = append(out, ent)
	}
	return out
}
