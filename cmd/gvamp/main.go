// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Command gvamp runs the distributed numeric core of the gVAMP solver
// on a process group. Each subcommand is a job that is run once on
// every rank of the group:
//
//	gvamp [flags] simulate -mt Mt -n N -vars v1,v2 -probs p1,p2 -snr s -seed s -out prefix
//	gvamp [flags] norm -mt Mt -in file
//	gvamp [flags] partition -mt Mt
//
// Use gvamp -system-help for a description of the systems that can
// host a group.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/ADepope/gVAMP/group"
	"github.com/ADepope/gVAMP/vampcmd"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: gvamp [flags] <command> [arguments]

The commands are:

	simulate    simulate a signal from a spike-and-slab prior
	norm        compute the squared norm of a vector file
	partition   print the partition of markers across ranks

Registered jobs: %s

Flags:
`, strings.Join(group.Jobs(), ", "))
	flag.PrintDefaults()
	os.Exit(2)
}

func main() {
	flag.Usage = usage
	vampcmd.Main(func(runner group.Runner, args []string) error {
		if len(args) == 0 {
			flag.Usage()
		}
		return runner.Run(context.Background(), args[0], args[1:]...)
	})
}
