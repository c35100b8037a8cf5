// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package vampflags provides flag support for use by gvamp command
// line applications: the flags select the system that hosts a
// group's ranks, and the number of ranks.
package vampflags

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/user"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/ADepope/gVAMP/group"
	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/bigmachine"
	"github.com/grailbio/bigmachine/ec2system"
)

var (
	mu        sync.Mutex
	providers = map[string]Provider{} // protected by mu
	profiles  = map[string]string{}   // protected by mu
)

// Provider represents a system that can host the ranks of a group,
// configured by setting options via Set.
type Provider interface {
	// Name returns the name of a provider instance.
	Name() string
	// Set sets one or more options for the system to be provided. The
	// options may be specified as key=val.
	Set(string) error
	// Runner returns a group runner for groups of n ranks hosted by
	// the system as configured by the currently set options.
	Runner(n int) group.Runner

	// DefaultRanks returns the default number of ranks to use for
	// this provider.
	DefaultRanks() int
}

// RegisterSystemProvider registers a 'system' provider, ie. any
// service that can host the ranks of a group.
func RegisterSystemProvider(name string, provider Provider) {
	mu.Lock()
	defer mu.Unlock()
	if _, present := providers[name]; present {
		log.Panicf("system %s is already registered", name)
	}
	providers[name] = provider
}

// RegisterSystemProfile registers a system 'profile' which
// is a named shorthand for a system and any associated options.
// For example an application that registers a profile of:
//   vampflags.RegisterSystemProfile("gwas-large", "ec2:instance=r5.12xlarge")
// can accept
//   --system=gwas-large
// as a synonym for
//   --system=ec2:instance=r5.12xlarge
func RegisterSystemProfile(name, profile string) {
	mu.Lock()
	defer mu.Unlock()
	if _, present := providers[name]; present {
		log.Panicf("profile %s is already used as a provider name", name)
	}
	if _, present := profiles[name]; present {
		log.Panicf("profile %s is already registered", name)
	}
	profiles[name] = profile
}

// ProvidersAndProfiles returns the supported providers and profiles.
func ProvidersAndProfiles() ([]string, map[string]string) {
	mu.Lock()
	defer mu.Unlock()
	prv := make([]string, 0, len(providers))
	for k := range providers {
		prv = append(prv, k)
	}
	prf := make(map[string]string, len(profiles))
	for k, v := range profiles {
		prf[k] = v
	}
	return prv, prf
}

// Internal hosts every rank in the current process.
type Internal struct{}

// Name implements Provider.Name.
func (i *Internal) Name() string {
	return "internal"
}

// Set implements Provider.Set.
func (i *Internal) Set(_ string) error {
	return fmt.Errorf("the internal system provider does not support any configuration")
}

// Runner implements Provider.Runner.
func (i *Internal) Runner(n int) group.Runner {
	return group.NewLocal(n)
}

// DefaultRanks implements Provider.DefaultRanks.
func (i *Internal) DefaultRanks() int {
	return runtime.GOMAXPROCS(0)
}

// Local hosts each rank in a separate process on the local machine.
type Local struct{}

// Name implements Provider.Name.
func (l *Local) Name() string {
	return "local"
}

// Set implements Provider.Set.
func (l *Local) Set(_ string) error {
	return fmt.Errorf("the local system provider does not support any configuration")
}

// Runner implements Provider.Runner.
func (l *Local) Runner(n int) group.Runner {
	return group.NewBigmachine(bigmachine.Local, n)
}

// DefaultRanks implements Provider.DefaultRanks.
func (l *Local) DefaultRanks() int {
	return 2
}

// EC2 hosts each rank on an AWS EC2 instance. Options set on the
// provider are applied directly to the ec2system.System that hosts the
// group.
type EC2 struct {
	system *ec2system.System
}

// Name implements Provider.Name.
func (ec2 *EC2) Name() string {
	return "EC2"
}

// Set implements Provider.Set.
func (ec2 *EC2) Set(v string) error {
	parts := strings.Split(v, "=")
	if len(parts) != 2 {
		return fmt.Errorf("not in key=val format %q", v)
	}
	key, val := parts[0], parts[1]
	sys := ec2.System()
	switch key {
	case "dataspace", "rootsize":
		n, err := strconv.ParseUint(val, 10, 32)
		if err != nil {
			return fmt.Errorf("not an int: %v", val)
		}
		if key == "dataspace" {
			sys.Dataspace = uint(n)
		} else {
			sys.Diskspace = uint(n)
		}
	case "instance":
		sys.InstanceType = val
	case "profile":
		sys.InstanceProfile = val
	case "ondemand":
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("not a bool: %v", val)
		}
		sys.OnDemand = b
	default:
		return fmt.Errorf("unsupported option: %v", key)
	}
	return nil
}

// DefaultRanks implements Provider.DefaultRanks.
func (ec2 *EC2) DefaultRanks() int {
	return 4
}

// System returns the EC2 system as configured by the options set so
// far. Instances are tagged with the current user's name.
func (ec2 *EC2) System() *ec2system.System {
	if ec2.system == nil {
		ec2.system = &ec2system.System{Username: "unknown"}
		if u, err := user.Current(); err == nil {
			ec2.system.Username = u.Username
		} else {
			log.Printf("ec2: get current user: %v", err)
		}
	}
	return ec2.system
}

// Runner implements Provider.Runner.
func (ec2 *EC2) Runner(n int) group.Runner {
	return group.NewBigmachine(ec2.System(), n)
}

func init() {
	RegisterSystemProvider("local", &Local{})
	RegisterSystemProvider("internal", &Internal{})
	RegisterSystemProvider("ec2", &EC2{})
}

// SystemHelpShort is a short explanation of the allowed SystemFlags values.
func SystemHelpShort(prefix string) string {
	const format = `a gvamp system is specified as follows: {local,internal,ec2:[key=val,],name}, use -%s for more information.`
	return fmt.Sprintf(format, prefix+"system-help")
}

// SystemHelpLong is a complete explanation of the allowed SystemFlags values.
const SystemHelpLong = `A gvamp system is specified as follows:

<system-type>:<options> where options is [key=value,]+

Each rank of a group is hosted by the system. The currently supported
system types and their options are as follows:

internal: every rank runs in the current process, the default.
local: each rank runs in a separate process on the same machine.
ec2: each rank runs on an AWS EC2 instance. The supported options are:
	instance=<AWS instance type> - the AWS instance type, e.g. m4.xlarge
	dataspace=<number> - size of the data volume in GiB, typically /mnt/data.
	rootsize=<number> - size of the root volume in GiB.
	ondemand - true to use on-demand rather than spot instances
	profile - the aws instance profile to use instead of a default

In addition, an application may register 'profiles' that are shorthand
for the above, eg. "gwas-large" can be configured as a synonym for
ec2:instance=r5.12xlarge,dataspace=200.
`

// SystemFlag represents a flag that can be used to specify the system
// hosting a group.
type SystemFlag struct {
	Provider  Provider
	Options   []string
	Specified bool
}

// String implements flag.Value.String
func (sys *SystemFlag) String() string {
	if sys.Provider == nil {
		return ""
	}
	if len(sys.Options) == 0 {
		return sys.Provider.Name()
	}
	return fmt.Sprintf("%v:%v", sys.Provider.Name(), strings.Join(sys.Options, ","))
}

// Set implements flag.Value.Set
func (sys *SystemFlag) Set(v string) error {
	parse := func(s string) (name string, options []string) {
		parts := strings.SplitN(s, ":", 2)
		name = parts[0]
		if len(parts) > 1 {
			options = strings.Split(parts[1], ",")
		}
		return
	}

	name, options := parse(v)
	mu.Lock()
	if profile, ok := profiles[name]; ok {
		var profileOptions []string
		name, profileOptions = parse(profile)
		options = append(profileOptions, options...)
	}
	provider, ok := providers[name]
	mu.Unlock()
	if !ok {
		return fmt.Errorf("unsupported system or profile type: %v", name)
	}
	for _, opt := range options {
		if err := provider.Set(opt); err != nil {
			return err
		}
	}
	sys.Options = options
	sys.Provider = provider
	sys.Specified = true
	return nil
}

// Get implements flag.Value.Get
func (sys *SystemFlag) Get() interface{} {
	return sys.String()
}

// Flags represents all of the flags that can be used to configure
// a gvamp command.
type Flags struct {
	System        SystemFlag
	SystemHelp    bool
	HTTPAddress   cmdutil.NetworkAddressFlag
	ConsoleStatus bool
	Ranks         int
	fs            *flag.FlagSet
}

// Output returns an appropriate io.Writer for printing out help/usage
// messages as per the underlying flag.Flagset.
func (bf *Flags) Output() io.Writer {
	if bf.fs == nil {
		return os.Stderr
	}
	if wr := bf.fs.Output(); wr != nil {
		return wr
	}
	return os.Stderr
}

// RegisterFlags registers the gvamp command line flags with the supplied
// flag set. The flag names will be prefixed with the supplied prefix.
func RegisterFlags(fs *flag.FlagSet, bf *Flags, prefix string) {
	RegisterFlagsWithDefaults(fs, bf, prefix, Defaults{
		System:        "internal",
		HTTPAddress:   ":3333",
		ConsoleStatus: false,
		Ranks:         0,
	})
}

// NumRanks returns the number of ranks requested by the flags, or the
// system's default if none was.
func (bf *Flags) NumRanks() int {
	if bf.Ranks > 0 {
		return bf.Ranks
	}
	return bf.System.Provider.DefaultRanks()
}

// Runner returns the group runner specified by the flag values.
func (bf *Flags) Runner() (group.Runner, error) {
	if bf.System.Provider == nil {
		return nil, fmt.Errorf("no system specified")
	}
	if bf.Ranks < 0 {
		return nil, fmt.Errorf("invalid number of ranks %d", bf.Ranks)
	}
	return bf.System.Provider.Runner(bf.NumRanks()), nil
}

// Defaults represents default values for the supported flags.
type Defaults struct {
	System        string
	HTTPAddress   string
	ConsoleStatus bool
	Ranks         int
}

// RegisterFlagsWithDefaults registers the gvamp command line flags with
// the supplied flag set and defaults. The flag names will be prefixed with the
// supplied prefix.
func RegisterFlagsWithDefaults(fs *flag.FlagSet, bf *Flags, prefix string, defaults Defaults) {
	fs.Var(&bf.System, prefix+"system", SystemHelpShort(prefix))
	bf.System.Set(defaults.System)
	bf.System.Specified = false
	fs.Var(&bf.HTTPAddress, prefix+"http", "address of http status server")
	bf.HTTPAddress.Set(defaults.HTTPAddress)
	bf.HTTPAddress.Specified = false
	fs.BoolVar(&bf.ConsoleStatus, prefix+"console-status", defaults.ConsoleStatus, "print status to stdout")
	fs.IntVar(&bf.Ranks, prefix+"ranks", defaults.Ranks, "number of ranks in the group, 0 requests an appropriate default for the system")
	fs.BoolVar(&bf.SystemHelp, prefix+"system-help", false, "provide help on system providers and profiles")
	bf.fs = fs
}
