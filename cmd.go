// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

// Package hapreduce implements the hapreduce command line tool, which
// shrinks per-location haplotype sets to a representative sample for
// haplotype network plotting.
package hapreduce

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/exec"

	"git.arvados.org/arvados.git/lib/cmd"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

var (
	handler = cmd.Multi(map[string]cmd.Handler{
		"version":   cmd.Version,
		"-version":  cmd.Version,
		"--version": cmd.Version,

		"reduce":       &reducecmd{},
		"split":        &splitcmd{},
		"merge-list":   &mergelistcmd{},
		"stats":        &statscmd{},
		"export-numpy": &exportNumpy{},

		"build-docker-image": &buildDockerImage{docker: "docker"},
	})
)

func Main() {
	if !isatty.IsTerminal(os.Stderr.Fd()) {
		logrus.StandardLogger().Formatter = &logrus.TextFormatter{DisableTimestamp: true}
	}
	os.Exit(handler.RunCommand(os.Args[0], os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// runtimeImage is the docker image containers run in. The hapreduce
// binary itself is mounted from a collection.
const runtimeImage = "hapreduce-runtime"

type buildDockerImage struct {
	docker string // docker executable
}

func (cmd *buildDockerImage) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	if err := parseFlags(flags, args); err != nil {
		return exitCode(err, stderr)
	}
	tmpdir, err := os.MkdirTemp("", "")
	if err != nil {
		fmt.Fprint(stderr, err)
		return 1
	}
	defer os.RemoveAll(tmpdir)
	err = os.WriteFile(tmpdir+"/Dockerfile", []byte(`FROM debian:bookworm-slim
RUN DEBIAN_FRONTEND=noninteractive \
  apt-get update && \
  apt-get install -y --no-install-recommends ca-certificates && \
  apt-get clean
`), 0644)
	if err != nil {
		fmt.Fprint(stderr, err)
		return 1
	}
	docker := exec.Command(cmd.docker, "build", "--tag="+runtimeImage, tmpdir)
	docker.Stdout = stdout
	docker.Stderr = stderr
	err = docker.Run()
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return 1
	}
	fmt.Fprintf(stderr, "built and tagged new docker image, %s\n", runtimeImage)
	return 0
}

// usageError indicates a problem with the command line. Commands exit
// 2 instead of 1 for these.
type usageError struct {
	error
}

// parseFlags parses args, and rejects leftover positional arguments.
// It returns flag.ErrHelp if -help was given.
func parseFlags(flags *flag.FlagSet, args []string) error {
	err := flags.Parse(args)
	if err == flag.ErrHelp {
		return err
	} else if err != nil {
		return usageError{err}
	} else if flags.NArg() > 0 {
		return usageError{fmt.Errorf("errant command line arguments after parsed flags: %v", flags.Args())}
	}
	return nil
}

// exitCode prints err (if any) and returns the corresponding exit
// code.
func exitCode(err error, stderr io.Writer) int {
	var uerr usageError
	switch {
	case err == nil, err == flag.ErrHelp:
		return 0
	case errors.As(err, &uerr):
		fmt.Fprintf(stderr, "%s\n", err)
		return 2
	default:
		fmt.Fprintf(stderr, "%s\n", err)
		return 1
	}
}
