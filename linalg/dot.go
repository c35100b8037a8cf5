// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package linalg implements the reductions used by the solver's
// gradient and convergence computations: inner products and squared
// norms over vectors that are distributed across the ranks of a
// process group.
//
// The local part of a reduction is split into fixed-size chunks that
// are summed concurrently. Chunk boundaries depend only on the vector
// length and partial sums are combined in chunk order, so a local
// reduction is bit-for-bit reproducible regardless of GOMAXPROCS.
package linalg

import (
	"context"
	"fmt"

	"github.com/ADepope/gVAMP/group"
	"github.com/ADepope/gVAMP/guard"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/traverse"
	"gonum.org/v1/gonum/floats"
)

// chunkSize is the number of elements summed by a single goroutine in a
// local reduction.
const chunkSize = 1 << 16

// chunkDot computes the inner product of one chunk.
var chunkDot = floats.Dot

// Dot returns the inner product of u and v. If global is true, Dot is
// a collective: the local inner products of all ranks are summed and
// every rank receives the same value. Otherwise the caller's local
// inner product is returned.
//
// Vectors of different lengths are a validation error; since a rank
// that returns early from a collective desynchronizes its group, the
// error is fatal when global is true.
func Dot(ctx context.Context, comm group.Comm, u, v []float64, global bool) (float64, error) {
	if len(u) != len(v) {
		err := errors.E(errors.Invalid, fmt.Sprintf("linalg.Dot: vector lengths %d and %d differ", len(u), len(v)))
		if global {
			err = guard.E(err)
		}
		return 0, err
	}
	local, err := localDot(u, v)
	if err != nil {
		return 0, guard.E("linalg.Dot: local reduction", err)
	}
	if !global {
		return local, nil
	}
	sum, err := comm.AllReduceSum(ctx, local)
	if err != nil {
		return 0, guard.Collective(err)
	}
	return sum, nil
}

// Norm2 returns the squared Euclidean norm of u. The global argument
// is interpreted as in Dot.
func Norm2(ctx context.Context, comm group.Comm, u []float64, global bool) (float64, error) {
	return Dot(ctx, comm, u, u, global)
}

// localDot computes the inner product of u and v, which must have the
// same length. A panic in any chunk is propagated to the caller.
func localDot(u, v []float64) (float64, error) {
	n := len(u)
	if n <= chunkSize {
		return chunkDot(u, v), nil
	}
	nchunk := (n + chunkSize - 1) / chunkSize
	partial := make([]float64, nchunk)
	err := traverse.Each(nchunk, func(i int) error {
		start, end := i*chunkSize, (i+1)*chunkSize
		if end > n {
			end = n
		}
		partial[i] = chunkDot(u[start:end], v[start:end])
		return nil
	})
	if err != nil {
		return 0, err
	}
	var sum float64
	for _, p := range partial {
		sum += p
	}
	return sum, nil
}
