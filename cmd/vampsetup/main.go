// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Command vampsetup prepares an AWS account for running gvamp groups
// on EC2, and records the resulting configuration in the gvamp profile
// read by package vampconfig.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/ADepope/gVAMP/vampconfig"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/grailbio/base/config"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/must"

	// Brought in so the written profile shows the AWS defaults.
	_ "github.com/grailbio/base/config/aws"
)

func usage(flags *flag.FlagSet) {
	fmt.Fprint(os.Stderr, `usage: vampsetup [-securitygroup name] [-instance type] [-ranks n]

Command vampsetup sets up a security group so that gvamp ranks can run
on AWS EC2. Once complete, the resulting configuration is written to
the gvamp profile at `, vampconfig.Path, `. If a profile already exists,
it is modified in place.

The security group is tagged with the name "gvamp"; if a previously set
up security group exists, it is reused. It allows all traffic within
the default VPC, all outbound traffic, and inbound SSH and HTTPS
connections.

The flags are:
`)
	flags.PrintDefaults()
	os.Exit(2)
}

func main() {
	log.AddFlags()
	must.Func = log.Fatal
	var (
		flags         = flag.NewFlagSet("vampsetup", flag.ExitOnError)
		securityGroup = flags.String("securitygroup", "gvamp", "name of the security group to set up")
		instance      = flags.String("instance", "r5.2xlarge", "EC2 instance type hosting each rank")
		ranks         = flags.Int("ranks", 4, "default number of ranks")
	)
	flags.Usage = func() { usage(flags) }
	must.Nil(flags.Parse(os.Args[1:]))
	if flags.NArg() != 0 {
		flags.Usage()
	}

	profile := config.New()
	f, err := os.Open(vampconfig.Path)
	if err == nil {
		must.Nil(profile.Parse(f))
		must.Nil(f.Close())
	} else {
		must.True(os.IsNotExist(err), err)
	}
	if region, ok := profile.Get("aws/env.region"); ok && len(region) > 0 {
		must.Nil(profile.Set("bigmachine/ec2system.default-region", strings.Trim(region, `"`)))
	}
	var sg string
	if v, ok := profile.Get("bigmachine/ec2system.security-group"); ok && v != `""` {
		log.Print("ec2 security group ", v, " already configured")
	} else {
		sess, err := session.NewSession()
		must.Nil(err, "setting up AWS session")
		sg, err = setupSecurityGroup(ec2.New(sess), *securityGroup)
		must.Nil(err, "setting up security group")
	}
	must.Nil(configure(profile, sg, *instance, *ranks))

	var buf bytes.Buffer
	must.Nil(profile.PrintTo(&buf))
	must.Nil(os.MkdirAll(filepath.Dir(vampconfig.Path), 0777))
	tmp := vampconfig.Path + ".vampsetup"
	must.Nil(ioutil.WriteFile(tmp, buf.Bytes(), 0666))
	must.Nil(os.Rename(tmp, vampconfig.Path))
	log.Print("wrote configuration to ", vampconfig.Path)
}

// configure points the gvamp instance of the profile at EC2. An empty
// security group leaves the profile's security group unchanged.
func configure(profile *config.Profile, securityGroup, instance string, ranks int) error {
	if securityGroup != "" {
		if err := profile.Set("bigmachine/ec2system.security-group", securityGroup); err != nil {
			return err
		}
	}
	if err := profile.Set("bigmachine/ec2system.instance", instance); err != nil {
		return err
	}
	if err := profile.Set("gvamp.system", "bigmachine/ec2system"); err != nil {
		return err
	}
	return profile.Set("gvamp.ranks", fmt.Sprint(ranks))
}
