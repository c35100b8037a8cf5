// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/ADepope/gVAMP/group"
	"github.com/ADepope/gVAMP/linalg"
	"github.com/ADepope/gVAMP/partition"
	"github.com/ADepope/gVAMP/prior"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
)

func init() {
	group.Register("check.partition", checkPartition)
	group.Register("check.allreduce", checkAllReduce)
	group.Register("check.streams", checkStreams)
}

// bcast returns rank root's value of x on every rank. Adding zeros is
// exact, so the result is bit-identical to root's x.
func bcast(ctx context.Context, comm group.Comm, root int, x float64) (float64, error) {
	if comm.Rank() != root {
		x = 0
	}
	return comm.AllReduceSum(ctx, x)
}

// agree fails on every rank unless all ranks report ok. Every rank
// must call agree, even those that have already found an error.
func agree(ctx context.Context, comm group.Comm, ok bool, what string) error {
	var bad float64
	if !ok {
		bad = 1
	}
	nbad, err := comm.AllReduceSum(ctx, bad)
	if err != nil {
		return err
	}
	if nbad != 0 {
		return errors.E(fmt.Sprintf("%s: failed on %g of %d ranks", what, nbad, comm.Size()))
	}
	return nil
}

func checkPartition(ctx context.Context, comm group.Comm, args []string) error {
	var (
		flags = flag.NewFlagSet("partition", flag.ContinueOnError)
		mt    = flags.Int("mt", 1000003, "total number of markers")
	)
	if err := flags.Parse(args); err != nil {
		return err
	}
	p, err := partition.Divide(comm, *mt)
	if err != nil {
		return err
	}
	// Gather every rank's size and check that this rank's partition
	// starts where its predecessors' end.
	var (
		start   int
		min     = *mt
		max     int
		covered int
	)
	for r := 0; r < comm.Size(); r++ {
		m, err := bcast(ctx, comm, r, float64(p.M))
		if err != nil {
			return err
		}
		if r < comm.Rank() {
			start += int(m)
		}
		if int(m) < min {
			min = int(m)
		}
		if int(m) > max {
			max = int(m)
		}
		covered += int(m)
	}
	ok := true
	if start != p.S {
		log.Error.Printf("rank %d: partition starts at %d, predecessors end at %d", comm.Rank(), p.S, start)
		ok = false
	}
	if covered != *mt || max-min > 1 {
		log.Error.Printf("rank %d: partitions cover %d of %d markers, sizes %d to %d", comm.Rank(), covered, *mt, min, max)
		ok = false
	}
	return agree(ctx, comm, ok, "partition")
}

func checkAllReduce(ctx context.Context, comm group.Comm, args []string) error {
	var (
		flags  = flag.NewFlagSet("allreduce", flag.ContinueOnError)
		rounds = flags.Int("rounds", 100, "number of reductions")
		n      = flags.Int("n", 100000, "local vector length")
	)
	if err := flags.Parse(args); err != nil {
		return err
	}
	var (
		sampler = prior.NewSampler(prior.SeedFor(1, comm.Rank()))
		m       = prior.Mixture{Vars: []float64{0, 1e-4, 1}, Probs: []float64{0.5, 0.3, 0.2}}
		ok      = true
	)
	sampler.Count(comm.Stats().Int("draws"))
	for i := 0; i < *rounds; i++ {
		u, err := sampler.Simulate(m, *n)
		if err != nil {
			return err
		}
		sum, err := linalg.Norm2(ctx, comm, u, true)
		if err != nil {
			return err
		}
		root, err := bcast(ctx, comm, 0, sum)
		if err != nil {
			return err
		}
		if sum != root {
			log.Error.Printf("rank %d: reduction %d: got %v, rank 0 got %v", comm.Rank(), i, sum, root)
			ok = false
		}
	}
	return agree(ctx, comm, ok, "allreduce")
}

func checkStreams(ctx context.Context, comm group.Comm, args []string) error {
	var (
		flags = flag.NewFlagSet("streams", flag.ContinueOnError)
		seed  = flags.Uint64("seed", 1, "run seed")
		n     = flags.Int("n", 16, "draws per rank")
	)
	if err := flags.Parse(args); err != nil {
		return err
	}
	m := prior.Mixture{Vars: []float64{1}, Probs: []float64{1}}
	draw := func() ([]float64, error) {
		return prior.NewSampler(prior.SeedFor(*seed, comm.Rank())).Simulate(m, *n)
	}
	first, err := draw()
	if err != nil {
		return err
	}
	again, err := draw()
	if err != nil {
		return err
	}
	ok := true
	for i := range first {
		if first[i] != again[i] {
			log.Error.Printf("rank %d: stream is not reproducible at draw %d", comm.Rank(), i)
			ok = false
			break
		}
	}
	// Compare each rank's stream with every other rank's.
	for r := 0; r < comm.Size(); r++ {
		same := true
		for i := range first {
			x, err := bcast(ctx, comm, r, first[i])
			if err != nil {
				return err
			}
			if x != first[i] {
				same = false
			}
		}
		if r != comm.Rank() && same {
			log.Error.Printf("rank %d: stream is identical to rank %d's", comm.Rank(), r)
			ok = false
		}
	}
	return agree(ctx, comm, ok, "streams")
}
