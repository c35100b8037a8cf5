// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package vampconfig provides a mechanism to form a gvamp process
// group from a shared configuration. Vampconfig uses the
// configuration mechanism in package
// github.com/grailbio/base/config, and reads a default profile from
// $HOME/.gvamp/config. For example, the following profile hosts 16
// ranks on EC2:
//
//	param gvamp (
//		ranks = 16
//		system = bigmachine/ec2system
//	)
package vampconfig

import (
	"flag"
	"os"

	"github.com/ADepope/gVAMP/group"
	"github.com/grailbio/base/config"
	"github.com/grailbio/base/must"

	// Used to provide ec2system.System bigmachines.
	_ "github.com/grailbio/bigmachine/ec2system"
)

// Path determines the location of the gvamp profile read by Parse.
var Path = os.ExpandEnv("$HOME/.gvamp/config")

// Parse registers configuration flags and calls flag.Parse. It reads
// gvamp configuration from Path defined in this package. Parse returns
// the runner configured by the profile and any flags provided, and a
// function that shuts it down. Parse panics if the runner cannot be
// created.
func Parse() (runner group.Runner, shutdown func()) {
	config.RegisterFlags("", Path)
	flag.Parse()
	must.Nil(config.ProcessFlags())
	config.Must("gvamp", &runner)
	return runner, runner.Shutdown
}
