// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Vampcheck is a binary used to verify the group-wide invariants of
// gvamp's numeric core on a live process group.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/ADepope/gVAMP/vampconfig"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/must"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `usage: vampcheck [-wait] [check args...]

Command vampcheck runs consistency checks of the gvamp numeric core on
a process group configured by the gvamp profile. It is distributed as a
separate binary as it may launch external clusters.

Available checks are:

	partition
		Partitions tile the global marker range on every rank.
	allreduce
		Every rank receives bit-identical reduction results.
	streams
		Ranks draw distinct, reproducible random streams.
	all
		Run all of the above (the default).
`)
		flag.PrintDefaults()
		os.Exit(2)
	}

	wait := flag.Bool("wait", false, "don't exit after completion")
	log.AddFlags()
	runner, shutdown := vampconfig.Parse()

	cmd, args := "all", []string(nil)
	if flag.NArg() > 0 {
		cmd, args = flag.Arg(0), flag.Args()[1:]
	}
	var checks []string
	switch cmd {
	default:
		fmt.Fprintf(os.Stderr, "unknown check %s\n", cmd)
		flag.Usage()
	case "partition", "allreduce", "streams":
		checks = []string{cmd}
	case "all":
		checks = []string{"partition", "allreduce", "streams"}
	}
	ctx := context.Background()
	var err error
	for _, check := range checks {
		if err = runner.Run(ctx, "check."+check, args...); err != nil {
			break
		}
		log.Printf("check %s: ok", check)
	}
	shutdown()
	if *wait {
		if err != nil {
			log.Printf("finished with error %v: waiting", err)
		} else {
			log.Print("done: waiting")
		}
		<-make(chan struct{})
	}
	must.Nil(err, cmd)
	fmt.Println("ok")
}
