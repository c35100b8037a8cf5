// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package vampcmd provides utilities for implementing gvamp command
// line tools. The main entry point, vampcmd.Main, forms a process
// group according to a common set of flags, and then invokes the
// user's driver code.
//
// A vampcmd tool follows this form:
//
//	func init() {
//		group.Register("myjob", myJob)
//	}
//
//	func main() {
//		vampcmd.Main(func(runner group.Runner, args []string) error {
//			return runner.Run(context.Background(), "myjob", args...)
//		})
//	}
//
// Jobs must be registered during initialization, since the processes
// hosting remote ranks run the same binary and must know the same jobs.
package vampcmd

import (
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof" // Exposed on the local diagnostic web server.
	"os"
	"sort"
	"strings"

	"github.com/ADepope/gVAMP/group"
	"github.com/ADepope/gVAMP/vampflags"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/file/s3file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/status"
)

func init() {
	file.RegisterImplementation("s3", func() file.Implementation {
		return s3file.NewImplementation(
			s3file.NewDefaultProvider(session.Options{}), s3file.Options{})
	})
}

// Main is a convenient entry point for a vampcmd. Main does not return;
// it should be called after other initialization is performed. Main
// parses (global) flags, and forms a group accordingly. Main then
// invokes the provided func with a runner for the group, along with
// the unparsed arguments.
//
// Main starts a diagnostic web server (default address :3333), using
// http.DefaultServeMux, which includes pprof handlers as well as
// bigmachine's aggregated pprof handlers when ranks are hosted by
// bigmachine.
//
// Main shuts down the group and terminates the program after the user
// func returns. If it returns with an error, it is reported and the
// process exits with code 1, otherwise it exits successfully.
func Main(main func(runner group.Runner, args []string) error) {
	var fl vampflags.Flags
	vampflags.RegisterFlags(flag.CommandLine, &fl, "")
	log.AddFlags()
	flag.Parse()
	runner, err := Init(fl)
	if err != nil {
		log.Fatal(err)
	}
	err = main(runner, flag.Args())
	runner.Shutdown()
	if err != nil {
		log.Fatal(err)
	}
	os.Exit(0)
}

// Init returns the runner specified by the supplied flags, and
// arranges for its status to be displayed.
func Init(bf vampflags.Flags) (group.Runner, error) {
	if bf.SystemHelp {
		providers, profiles := vampflags.ProvidersAndProfiles()
		sort.Strings(providers)
		wr := bf.Output()
		str := []string{}
		fmt.Fprintf(wr, "%s\n\n", vampflags.SystemHelpLong)
		fmt.Fprintf(wr, "The available providers are: %v\n",
			strings.Join(providers, ", "))
		for k, v := range profiles {
			str = append(str, fmt.Sprintf("%v is shorthand for: %v\n", k, v))
		}
		sort.Strings(str)
		for _, s := range str {
			wr.Write([]byte(s))
		}
		os.Exit(0)
	}
	runner, err := bf.Runner()
	if err != nil {
		return nil, err
	}
	log.Printf("system %s: %d ranks", bf.System.String(), bf.NumRanks())
	DisplayStatus(bf, runner)
	return runner, nil
}

// DisplayStatus arranges for the group's status to be displayed on the
// console and/or a web page depending on the flags specified on the
// command line. The web page is hosted at /debug/status on
// http.DefaultServeMux.
func DisplayStatus(bf vampflags.Flags, runner group.Runner) {
	var st status.Status
	if r, ok := runner.(interface{ SetStatus(*status.Status) }); ok {
		r.SetStatus(&st)
	}
	if bf.ConsoleStatus {
		var console status.Reporter
		go console.Go(os.Stdout, &st)
	}
	if len(bf.HTTPAddress.Address) > 0 {
		if r, ok := runner.(interface{ HandleDebug(*http.ServeMux) }); ok {
			r.HandleDebug(http.DefaultServeMux)
		}
		http.Handle("/debug/status", status.Handler(&st))
		go func() {
			log.Printf("HTTP Status at: %v\n", bf.HTTPAddress)
			err := http.ListenAndServe(bf.HTTPAddress.Address, nil)
			if err != nil {
				log.Error.Printf("Failed to start HTTP at: %v: %v\n", bf.HTTPAddress, err)
			}
		}()
	}
}
