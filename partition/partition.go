// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package partition divides a global range of markers among the ranks
// of a process group. Partitions are contiguous and non-overlapping,
// and tile [0, Mt) in rank order; their sizes differ by at most one,
// with the remainder assigned to the lowest ranks.
package partition

import (
	"fmt"

	"github.com/ADepope/gVAMP/guard"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
)

// A Partition is a rank's share of a global range of Mt markers: the
// M markers starting at offset S.
type Partition struct {
	Rank int
	Mt   int
	M    int
	S    int
}

// End returns the (exclusive) end offset of the partition.
func (p Partition) End() int { return p.S + p.M }

func (p Partition) String() string {
	return fmt.Sprintf("rank %d: [%d, %d) of %d", p.Rank, p.S, p.End(), p.Mt)
}

// Group is the part of a process group that determines partitions.
type Group interface {
	Rank() int
	Size() int
}

// Divide returns the calling rank's partition of mt markers, and logs
// it.
func Divide(g Group, mt int) (Partition, error) {
	parts, err := All(g.Size(), mt)
	if err != nil {
		return Partition{}, err
	}
	rank := g.Rank()
	if rank < 0 || rank >= len(parts) {
		return Partition{}, errors.E(errors.Invalid, fmt.Sprintf("partition: rank %d outside of group of size %d", rank, len(parts)))
	}
	p := parts[rank]
	log.Printf("rank %4d has %d markers over tot Mt = %d, max Mm = %d, starting at S = %d",
		p.Rank, p.M, p.Mt, parts[0].M, p.S)
	return p, nil
}

// Of returns the partition of mt markers for the provided rank in a
// group of nranks.
func Of(rank, nranks, mt int) (Partition, error) {
	parts, err := All(nranks, mt)
	if err != nil {
		return Partition{}, err
	}
	if rank < 0 || rank >= nranks {
		return Partition{}, errors.E(errors.Invalid, fmt.Sprintf("partition: rank %d outside of group of size %d", rank, nranks))
	}
	return parts[rank], nil
}

// All returns the partitions of mt markers for every rank of a group
// of nranks, in rank order. A layout that does not cover mt exactly is
// a fatal error.
func All(nranks, mt int) ([]Partition, error) {
	if nranks < 1 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("partition: %d ranks", nranks))
	}
	if mt < 0 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("partition: %d markers", mt))
	}
	var (
		size  = mt / nranks
		modu  = mt % nranks
		parts = make([]Partition, nranks)
		cum   int
	)
	for i := range parts {
		m := size
		if i < modu {
			m++
		}
		parts[i] = Partition{Rank: i, Mt: mt, M: m, S: cum}
		cum += m
	}
	if cum != mt {
		return nil, guard.Fatalf("partition: %d ranks cover %d markers, want %d", nranks, cum, mt)
	}
	return parts, nil
}
