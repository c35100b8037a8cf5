// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package linalg

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/ADepope/gVAMP/group"
	"github.com/ADepope/gVAMP/guard"
	"github.com/ADepope/gVAMP/partition"
	"github.com/grailbio/base/errors"
)

func randVec(r *rand.Rand, n int) []float64 {
	vec := make([]float64, n)
	for i := range vec {
		vec[i] = r.NormFloat64()
	}
	return vec
}

func naiveDot(u, v []float64) float64 {
	var sum float64
	for i := range u {
		sum += u[i] * v[i]
	}
	return sum
}

func TestDotLocal(t *testing.T) {
	ctx := context.Background()
	r := rand.New(rand.NewSource(1))
	for _, n := range []int{0, 1, 10, chunkSize, chunkSize + 1, 3*chunkSize + 17} {
		u, v := randVec(r, n), randVec(r, n)
		got, err := Dot(ctx, nil, u, v, false)
		if err != nil {
			t.Fatal(err)
		}
		if want := naiveDot(u, v); math.Abs(got-want) > 1e-9*math.Max(1, math.Abs(want)) {
			t.Errorf("n=%d: got %v, want %v", n, got, want)
		}
		norm, err := Norm2(ctx, nil, u, false)
		if err != nil {
			t.Fatal(err)
		}
		uu, err := Dot(ctx, nil, u, u, false)
		if err != nil {
			t.Fatal(err)
		}
		if norm != uu {
			t.Errorf("n=%d: Norm2 %v differs from Dot(u, u) %v", n, norm, uu)
		}
	}
}

func TestDotReproducible(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	n := 5*chunkSize + 3
	u, v := randVec(r, n), randVec(r, n)
	first, err := localDot(u, v)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		got, err := localDot(u, v)
		if err != nil {
			t.Fatal(err)
		}
		if got != first {
			t.Fatalf("got %v, want bit-identical %v", got, first)
		}
	}
}

// TestChunkPanic checks that a failing chunk is never dropped from a
// local reduction: Dot must not return a partial sum.
func TestChunkPanic(t *testing.T) {
	defer func(fn func(u, v []float64) float64) { chunkDot = fn }(chunkDot)
	chunkDot = func(u, v []float64) float64 { panic("bad chunk") }
	u := make([]float64, 3*chunkSize+1)
	defer func() {
		if e := recover(); e == nil {
			t.Error("expected the chunk panic to propagate")
		}
	}()
	sum, err := Norm2(context.Background(), nil, u, false)
	t.Errorf("Norm2 returned %v, %v after a chunk panicked", sum, err)
}

func TestSignFlip(t *testing.T) {
	const n = 1000
	u, v := make([]float64, n), make([]float64, n)
	for i := range u {
		u[i] = 1
		v[i] = -1
	}
	got, err := Dot(context.Background(), nil, u, v, false)
	if err != nil {
		t.Fatal(err)
	}
	if want := -float64(n); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestNormConstant(t *testing.T) {
	const (
		n = 2*chunkSize + 5
		c = 0.5
	)
	u := make([]float64, n)
	for i := range u {
		u[i] = c
	}
	got, err := Norm2(context.Background(), nil, u, false)
	if err != nil {
		t.Fatal(err)
	}
	if want := n * c * c; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestLengthMismatch(t *testing.T) {
	ctx := context.Background()
	_, err := Dot(ctx, nil, []float64{1, 2}, []float64{1}, false)
	if !errors.Is(errors.Invalid, err) {
		t.Errorf("got %v, want invalid", err)
	}
	if guard.IsFatal(err) {
		t.Errorf("local mismatch should not be fatal: %v", err)
	}
	comms := group.Comms(1)
	_, err = Dot(ctx, comms[0], []float64{1, 2}, []float64{1}, true)
	if !guard.IsFatal(err) {
		t.Errorf("got %v, want fatal", err)
	}
}

// TestDistributed splits vectors across groups of various sizes and
// checks that the global reduction agrees with the single-process
// inner product, and that every rank receives the identical value.
func TestDistributed(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	const mt = 100003
	u, v := randVec(r, mt), randVec(r, mt)
	want := naiveDot(u, v)
	for _, nranks := range []int{1, 2, 3, 8, 13} {
		comms := group.Comms(nranks)
		results := make([]float64, nranks)
		errs := make([]error, nranks)
		var wg sync.WaitGroup
		for i, comm := range comms {
			i, comm := i, comm
			wg.Add(1)
			go func() {
				defer wg.Done()
				p, err := partition.Divide(comm, mt)
				if err != nil {
					errs[i] = err
					return
				}
				results[i], errs[i] = Dot(context.Background(), comm, u[p.S:p.End()], v[p.S:p.End()], true)
			}()
		}
		wg.Wait()
		for i, err := range errs {
			if err != nil {
				t.Fatalf("nranks=%d rank %d: %v", nranks, i, err)
			}
		}
		for i, got := range results {
			if got != results[0] {
				t.Errorf("nranks=%d: rank %d got %v, rank 0 got %v", nranks, i, got, results[0])
			}
		}
		if got := results[0]; math.Abs(got-want) > 1e-8*math.Max(1, math.Abs(want)) {
			t.Errorf("nranks=%d: got %v, want %v", nranks, got, want)
		}
	}
}

func TestCollectiveFailure(t *testing.T) {
	comms := group.Comms(2)
	comms[0].Abort(context.Background(), errors.E("test abort"))
	_, err := Norm2(context.Background(), comms[1], []float64{1, 2, 3}, true)
	if !guard.IsFatal(err) {
		t.Errorf("got %v, want fatal", err)
	}
}
