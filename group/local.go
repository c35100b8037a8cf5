// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package group

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/ADepope/gVAMP/guard"
	"github.com/ADepope/gVAMP/stats"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/status"
	"golang.org/x/sync/errgroup"
)

// Local is a Runner that forms its group inside the current process:
// each rank is a goroutine, and collectives rendezvous in memory.
type Local struct {
	n      int
	status *status.Group
}

// NewLocal returns a runner for in-process groups of n ranks.
func NewLocal(n int) *Local {
	if n <= 0 {
		panic("group.NewLocal: n <= 0")
	}
	return &Local{n: n}
}

// SetStatus arranges for the progress of each rank to be reported to
// the provided status object.
func (l *Local) SetStatus(s *status.Status) {
	if s != nil {
		l.status = s.Group("ranks")
	}
}

// Run implements Runner.
func (l *Local) Run(ctx context.Context, name string, args ...string) error {
	job, err := lookup(name)
	if err != nil {
		return err
	}
	var (
		comms = Comms(l.n)
		once  sync.Once
		cause error
		g     errgroup.Group
		total = make(stats.Values)
		mu    sync.Mutex
	)
	for _, comm := range comms {
		comm := comm
		var task *status.Task
		if l.status != nil {
			task = l.status.Startf("%s: rank %d", name, comm.Rank())
		}
		g.Go(func() error {
			err := runJob(ctx, job, comm, args)
			if task != nil {
				if err != nil {
					task.Printf("failed: %v", err)
				}
				task.Done()
			}
			if err != nil {
				once.Do(func() {
					cause = err
					comm.Abort(ctx, err)
				})
			}
			mu.Lock()
			comm.Stats().AddAll(total)
			mu.Unlock()
			return err
		})
	}
	_ = g.Wait()
	log.Printf("job %s (%d ranks): %s", name, l.n, total)
	return cause
}

// Shutdown implements Runner.
func (*Local) Shutdown() {}

// Comms returns the communicators of a fresh in-process group of n
// ranks. Comms[i] has rank i.
func Comms(n int) []Comm {
	red := newReducer(n)
	comms := make([]Comm, n)
	for i := range comms {
		comms[i] = &localComm{rank: i, reducer: red, stats: stats.NewMap()}
	}
	return comms
}

type localComm struct {
	rank    int
	reducer *reducer
	seq     uint64
	stats   *stats.Map
}

func (c *localComm) Rank() int { return c.rank }

func (c *localComm) Size() int { return c.reducer.size }

func (c *localComm) Stats() *stats.Map { return c.stats }

func (c *localComm) AllReduceSum(ctx context.Context, x float64) (float64, error) {
	seq := c.seq
	c.seq++
	c.stats.Int("allreduce").Add(1)
	return c.reducer.Sum(ctx, seq, c.rank, x)
}

func (c *localComm) Abort(ctx context.Context, err error) {
	c.reducer.Abort(err)
}

// runJob runs job on comm, converting panics into fatal errors.
func runJob(ctx context.Context, job Job, comm Comm, args []string) (err error) {
	defer func() {
		if e := recover(); e != nil {
			stack := debug.Stack()
			err = fmt.Errorf("panic on rank %d: %v\n%s", comm.Rank(), e, string(stack))
			err = errors.E(err, errors.Fatal)
		}
		if err != nil {
			log.Error.Printf("rank %d of %d: %v", comm.Rank(), comm.Size(), err)
		}
	}()
	if err := job(ctx, comm, args); err != nil {
		return err
	}
	return nil
}

var _ guard.Aborter = (*localComm)(nil)
