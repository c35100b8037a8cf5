// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package group

import (
	"context"
	"fmt"
	"sync"

	"github.com/ADepope/gVAMP/guard"
	"github.com/grailbio/base/sync/ctxsync"
)

// A reducer is the rendezvous point of a group's sum reductions.
// Contributions are keyed by a per-rank sequence number, so that the
// i-th call of every rank joins round i. Once all ranks have
// contributed to a round, the contributions are summed in rank order:
// the result does not depend on the order of arrival.
type reducer struct {
	size int

	mu     sync.Mutex
	cond   *ctxsync.Cond
	rounds map[uint64]*round
	err    error
}

type round struct {
	parts []float64
	have  []bool
	n     int
	sum   float64
	done  bool
	// read counts the ranks that have collected the result.
	read int
}

func newReducer(size int) *reducer {
	r := &reducer{size: size, rounds: make(map[uint64]*round)}
	r.cond = ctxsync.NewCond(&r.mu)
	return r
}

// Sum contributes x on behalf of rank to round seq, and returns the
// round's total once every rank has contributed.
func (r *reducer) Sum(ctx context.Context, seq uint64, rank int, x float64) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return 0, r.err
	}
	if rank < 0 || rank >= r.size {
		return 0, guard.Fatalf("rank %d outside of group of size %d", rank, r.size)
	}
	rd := r.rounds[seq]
	if rd == nil {
		rd = &round{
			parts: make([]float64, r.size),
			have:  make([]bool, r.size),
		}
		r.rounds[seq] = rd
	}
	if rd.have[rank] {
		return 0, guard.Fatalf("rank %d contributed twice to reduction %d", rank, seq)
	}
	rd.parts[rank] = x
	rd.have[rank] = true
	rd.n++
	if rd.n == r.size {
		for _, part := range rd.parts {
			rd.sum += part
		}
		rd.done = true
		r.cond.Broadcast()
	}
	for !rd.done && r.err == nil {
		if err := r.cond.Wait(ctx); err != nil {
			return 0, err
		}
	}
	if r.err != nil {
		return 0, r.err
	}
	rd.read++
	if rd.read == r.size {
		delete(r.rounds, seq)
	}
	return rd.sum, nil
}

// Abort fails all pending and future reductions with a fatal error
// derived from err. Only the first abort is recorded.
func (r *reducer) Abort(err error) {
	r.mu.Lock()
	switch {
	case r.err != nil:
	case err == nil:
		r.err = guard.E(fmt.Sprintf("group of %d aborted", r.size))
	default:
		r.err = guard.E(fmt.Sprintf("group of %d aborted", r.size), err)
	}
	r.cond.Broadcast()
	r.mu.Unlock()
}

// Pending returns the number of reductions that have not yet been
// collected by every rank.
func (r *reducer) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rounds)
}
