// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package group implements the process-group runtime consumed by the
// numeric layer: each participant (a rank) sees the group through a
// Comm, which reports its rank and the group size and provides a
// blocking, group-wide sum reduction.
//
// Groups are formed by a Runner, which runs a registered Job once on
// every rank. Two runners are provided: Local forms a group of
// goroutines inside the current process, and Bigmachine forms a group
// of bigmachine machines, one rank per machine.
//
// Jobs must be registered before a runner is created, and must be
// registered in every process that may host a rank. Registering jobs
// during package initialization provides this by default:
//
//	func init() {
//		group.Register("simulate", simulate)
//	}
package group

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ADepope/gVAMP/stats"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
)

// Comm is a rank's view of its process group. Rank and Size are fixed
// for the lifetime of the group.
//
// AllReduceSum is a collective: every rank must call it the same
// number of times and in the same order. The i-th call on each rank
// contributes to the i-th reduction; it blocks until every rank has
// contributed and then returns the same combined value to all of
// them. A Comm is not safe for concurrent use.
type Comm interface {
	// Rank returns the zero-based rank of the caller.
	Rank() int
	// Size returns the number of ranks in the group.
	Size() int
	// AllReduceSum returns the sum of x over all ranks.
	AllReduceSum(ctx context.Context, x float64) (float64, error)
	// Abort poisons the group: every pending and future collective on
	// every rank fails with a fatal error.
	Abort(ctx context.Context, err error)
	// Stats returns the rank's counters.
	Stats() *stats.Map
}

// A Job is run once on every rank of a group.
type Job func(ctx context.Context, comm Comm, args []string) error

// A Runner forms a process group and runs jobs on it.
type Runner interface {
	// Run runs the named job on every rank and returns once all ranks
	// have finished. If any rank fails, the group is aborted and the
	// first failure is returned.
	Run(ctx context.Context, job string, args ...string) error
	// Shutdown releases the resources held by the group.
	Shutdown()
}

var (
	mu   sync.Mutex
	jobs = map[string]Job{}
)

// Register registers a job under the provided name. Register panics if
// the name is already in use.
func Register(name string, job Job) {
	mu.Lock()
	defer mu.Unlock()
	if jobs[name] != nil {
		log.Panicf("job %s is already registered", name)
	}
	jobs[name] = job
}

// Jobs returns the names of all registered jobs, sorted.
func Jobs() []string {
	mu.Lock()
	defer mu.Unlock()
	names := make([]string, 0, len(jobs))
	for name := range jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookup(name string) (Job, error) {
	mu.Lock()
	job := jobs[name]
	mu.Unlock()
	if job == nil {
		return nil, errors.E(errors.NotExist, fmt.Sprintf("job %s", name))
	}
	return job, nil
}
