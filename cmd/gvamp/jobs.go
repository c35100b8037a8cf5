// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"io/ioutil"

	"github.com/ADepope/gVAMP/group"
	"github.com/ADepope/gVAMP/guard"
	"github.com/ADepope/gVAMP/linalg"
	"github.com/ADepope/gVAMP/noise"
	"github.com/ADepope/gVAMP/partition"
	"github.com/ADepope/gVAMP/prior"
	"github.com/ADepope/gVAMP/stats"
	"github.com/ADepope/gVAMP/vecio"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
)

func init() {
	group.Register("simulate", simulate)
	group.Register("norm", norm)
	group.Register("partition", divide)
}

// parse parses a job's arguments. Every rank parses the same
// arguments, so a parse error is reported by all of them.
func parse(flags *flag.FlagSet, args []string) error {
	flags.SetOutput(ioutil.Discard)
	if err := flags.Parse(args); err != nil {
		return errors.E(errors.Invalid, flags.Name(), err)
	}
	if flags.NArg() != 0 {
		return errors.E(errors.Invalid, fmt.Sprintf("%s: unexpected arguments %v", flags.Name(), flags.Args()))
	}
	return nil
}

// markers checks the total number of markers: the solver indexes
// markers with 32-bit integers.
func markers(mt int) error {
	_, err := guard.Int32(mt)
	return err
}

func simulate(ctx context.Context, comm group.Comm, args []string) error {
	var (
		flags = flag.NewFlagSet("simulate", flag.ContinueOnError)
		mt    = flags.Int("mt", 10000, "total number of markers")
		n     = flags.Int("n", 1000, "number of samples")
		vars  = flags.String("vars", "0,0.0001", "comma-separated variances of the prior's components")
		probs = flags.String("probs", "0.99,0.01", "comma-separated weights of the prior's components")
		snr   = flags.Float64("snr", 1, "signal-to-noise ratio")
		seed  = flags.Uint64("seed", 1, "random seed; each rank derives its own stream from it")
		out   = flags.String("out", "", "if set, each rank writes its slice of the signal to prefix-rrrr-of-nnnn")
	)
	if err := parse(flags, args); err != nil {
		return err
	}
	if err := markers(*mt); err != nil {
		return err
	}
	var (
		m   prior.Mixture
		err error
	)
	if m.Vars, err = prior.ParseList(*vars); err != nil {
		return err
	}
	if m.Probs, err = prior.ParseList(*probs); err != nil {
		return err
	}
	if err = m.Validate(); err != nil {
		return err
	}
	gamw, err := noise.Precision(*snr, m, *mt, *n)
	if err != nil {
		return err
	}
	p, err := partition.Divide(comm, *mt)
	if err != nil {
		return err
	}
	sampler := prior.NewSampler(prior.SeedFor(*seed, comm.Rank()))
	sampler.Count(comm.Stats().Int("draws"))
	signal, err := sampler.Simulate(m, p.M)
	if err != nil {
		return err
	}
	if *out != "" {
		path := vecio.ShardPath(*out, comm.Rank(), comm.Size())
		if err := vecio.Write(ctx, path, signal); err != nil {
			return err
		}
		comm.Stats().Int("written").Add(int64(len(signal)))
		log.Printf("rank %d: wrote %d values to %s", comm.Rank(), len(signal), path)
	}
	norm2, err := linalg.Norm2(ctx, comm, signal, true)
	if err != nil {
		return err
	}
	if comm.Rank() == 0 {
		log.Printf("simulated %d markers from prior %s: |x|^2 = %g (expected %g), noise precision = %g",
			*mt, m, norm2, float64(*mt)*m.ExpectedVariance(), gamw)
	}
	return nil
}

func norm(ctx context.Context, comm group.Comm, args []string) error {
	var (
		flags = flag.NewFlagSet("norm", flag.ContinueOnError)
		mt    = flags.Int("mt", 0, "total number of markers in the file")
		in    = flags.String("in", "", "vector file shared by all ranks")
	)
	if err := parse(flags, args); err != nil {
		return err
	}
	if *in == "" {
		return errors.E(errors.Invalid, "norm: missing flag -in")
	}
	if err := markers(*mt); err != nil {
		return err
	}
	p, err := partition.Divide(comm, *mt)
	if err != nil {
		return err
	}
	vec, err := vecio.Read(ctx, *in, p.S, p.M)
	if err != nil {
		return err
	}
	comm.Stats().Int("read").Add(int64(len(vec)))
	norm2, err := linalg.Norm2(ctx, comm, vec, true)
	if err != nil {
		return err
	}
	log.Printf("rank %d: [%d, %d): mean %g, stdev %g", comm.Rank(), p.S, p.End(), stats.Mean(vec), stats.PopStdDev(vec))
	if comm.Rank() == 0 {
		log.Printf("%s: |x|^2 = %g over %d markers", *in, norm2, *mt)
	}
	return nil
}

func divide(ctx context.Context, comm group.Comm, args []string) error {
	var (
		flags = flag.NewFlagSet("partition", flag.ContinueOnError)
		mt    = flags.Int("mt", 0, "total number of markers")
	)
	if err := parse(flags, args); err != nil {
		return err
	}
	if err := markers(*mt); err != nil {
		return err
	}
	_, err := partition.Divide(comm, *mt)
	return err
}
