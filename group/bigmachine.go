// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package group

import (
	"context"
	"encoding/gob"
	"fmt"
	"net/http"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/ADepope/gVAMP/guard"
	"github.com/ADepope/gVAMP/stats"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/status"
	"github.com/grailbio/bigmachine"
	"golang.org/x/sync/errgroup"
)

func init() {
	gob.Register(&worker{})
	gob.Register(&reducerService{})
}

// Bigmachine is a Runner whose ranks are bigmachine machines, one rank
// per machine. The machines are started on the first call to Run and
// reused by subsequent runs; machine 0 hosts the group's reducer.
//
// A fatal failure on any rank aborts the run's reductions, so that
// blocked ranks return, and then shuts down every machine: the runner
// cannot be used again.
type Bigmachine struct {
	n      int
	b      *bigmachine.B
	params []bigmachine.Param
	status *status.Group

	nextRun uint64

	once     sync.Once
	machines []*bigmachine.Machine
	err      error

	mu      sync.Mutex
	aborted error

	shutdown sync.Once
}

// NewBigmachine starts bigmachine with the provided system and returns
// a runner for groups of n ranks. If any params are provided, they are
// applied to each machine. As with bigmachine.Start, NewBigmachine
// does not return when called from a worker process.
func NewBigmachine(system bigmachine.System, n int, params ...bigmachine.Param) *Bigmachine {
	if n <= 0 {
		panic("group.NewBigmachine: n <= 0")
	}
	return &Bigmachine{
		n:      n,
		b:      bigmachine.Start(system),
		params: params,
	}
}

// SetStatus arranges for machine status to be reported to the
// provided status object.
func (m *Bigmachine) SetStatus(s *status.Status) {
	if s != nil {
		m.status = s.Group("ranks")
	}
}

// HandleDebug registers bigmachine's diagnostic handlers, including
// the aggregated pprof handlers of all machines, on the provided mux.
func (m *Bigmachine) HandleDebug(mux *http.ServeMux) {
	m.b.HandleDebug(mux)
}

// Run implements Runner.
func (m *Bigmachine) Run(ctx context.Context, name string, args ...string) error {
	if _, err := lookup(name); err != nil {
		return err
	}
	m.mu.Lock()
	aborted := m.aborted
	m.mu.Unlock()
	if aborted != nil {
		return guard.E("group was aborted", aborted)
	}
	machines, err := m.start(ctx)
	if err != nil {
		return err
	}
	var (
		run   = atomic.AddUint64(&m.nextRun, 1)
		root  = machines[0]
		once  sync.Once
		cause error
		g     errgroup.Group
		mu    sync.Mutex
		total = make(stats.Values)
	)
	for rank := range machines {
		rank, machine := rank, machines[rank]
		g.Go(func() error {
			req := runRequest{
				Run:  run,
				Job:  name,
				Args: args,
				Rank: rank,
				Size: len(machines),
				Root: root.Addr,
			}
			var vals stats.Values
			err := machine.Call(ctx, "Rank.Run", req, &vals)
			if err != nil {
				log.Error.Printf("rank %d (%s): %v", rank, machine.Addr, err)
				once.Do(func() {
					cause = err
					m.abort(ctx, root, run, err)
				})
				return err
			}
			mu.Lock()
			for k, v := range vals {
				total[k] += v
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	log.Printf("job %s (%d ranks): %s", name, len(machines), total)
	if cause == nil {
		if err := root.Call(ctx, "Reducer.Release", run, nil); err != nil {
			log.Error.Printf("release run %d: %v", run, err)
		}
	}
	return cause
}

// Shutdown implements Runner. It may be called more than once.
func (m *Bigmachine) Shutdown() {
	m.shutdown.Do(m.b.Shutdown)
}

// abort poisons the run's reducer so that blocked ranks return, and
// then shuts down the group's machines.
func (m *Bigmachine) abort(ctx context.Context, root *bigmachine.Machine, run uint64, err error) {
	log.Error.Printf("*FATAL*: aborting group of %d: %v", m.n, err)
	req := abortRequest{Run: run, Size: m.n, Message: err.Error()}
	if err := root.Call(ctx, "Reducer.Abort", req, nil); err != nil {
		log.Error.Printf("abort run %d: %v", run, err)
	}
	m.mu.Lock()
	m.aborted = err
	m.mu.Unlock()
	m.Shutdown()
}

// start starts the group's machines. All n machines must be running
// for the group to form.
func (m *Bigmachine) start(ctx context.Context) ([]*bigmachine.Machine, error) {
	m.once.Do(func() {
		params := append([]bigmachine.Param{bigmachine.Services{
			"Rank":    &worker{},
			"Reducer": &reducerService{},
		}}, m.params...)
		log.Printf("starting %d bigmachines", m.n)
		machines, err := m.b.Start(ctx, m.n, params...)
		if err != nil {
			m.err = err
			return
		}
		g, _ := errgroup.WithContext(ctx)
		for i := range machines {
			i, mach := i, machines[i]
			var task *status.Task
			if m.status != nil {
				task = m.status.Start()
				task.Print("waiting for machine to boot")
			}
			g.Go(func() error {
				<-mach.Wait(bigmachine.Running)
				if err := mach.Err(); err != nil {
					log.Printf("machine %s failed to start: %v", mach.Addr, err)
					if task != nil {
						task.Printf("failed to start: %v", err)
						task.Done()
					}
					return errors.E(errors.Unavailable, fmt.Sprintf("rank %d", i), err)
				}
				if task != nil {
					task.Title(fmt.Sprintf("rank %d: %s", i, mach.Addr))
					task.Print("running")
				}
				log.Printf("rank %d: machine %v is ready", i, mach.Addr)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			m.err = err
			return
		}
		m.machines = machines
	})
	return m.machines, m.err
}

type runRequest struct {
	Run  uint64
	Job  string
	Args []string
	Rank int
	Size int
	// Root is the address of the machine hosting the reducer.
	Root string
}

type sumRequest struct {
	Run   uint64
	Seq   uint64
	Rank  int
	Size  int
	Value float64
}

type abortRequest struct {
	Run     uint64
	Size    int
	Message string
}

// A worker is the bigmachine service that runs a job on behalf of
// one rank.
type worker struct {
	// Exported just satisfies gob's persnickety nature: we need at least
	// one exported field.
	Exported struct{}

	b *bigmachine.B
}

func (w *worker) Init(b *bigmachine.B) error {
	w.b = b
	return nil
}

// Run runs the requested job with a communicator for the requested
// rank, and replies with the rank's counters.
func (w *worker) Run(ctx context.Context, req runRequest, reply *stats.Values) error {
	job, err := lookup(req.Job)
	if err != nil {
		return errors.E(errors.Fatal, err)
	}
	comm := &remoteComm{
		b:        w.b,
		run:      req.Run,
		rank:     req.Rank,
		size:     req.Size,
		rootAddr: req.Root,
		stats:    stats.NewMap(),
	}
	err = runJob(ctx, job, comm, req.Args)
	vals := make(stats.Values)
	comm.stats.AddAll(vals)
	*reply = vals
	return err
}

// remoteComm is the communicator of a rank hosted by a worker. Its
// reductions are calls to the reducer service on the root machine.
type remoteComm struct {
	b        *bigmachine.B
	run      uint64
	rank     int
	size     int
	rootAddr string
	root     *bigmachine.Machine
	seq      uint64
	stats    *stats.Map
}

func (c *remoteComm) Rank() int { return c.rank }

func (c *remoteComm) Size() int { return c.size }

func (c *remoteComm) Stats() *stats.Map { return c.stats }

func (c *remoteComm) dial(ctx context.Context) (*bigmachine.Machine, error) {
	if c.root != nil {
		return c.root, nil
	}
	root, err := c.b.Dial(ctx, c.rootAddr)
	if err != nil {
		return nil, err
	}
	c.root = root
	return root, nil
}

func (c *remoteComm) AllReduceSum(ctx context.Context, x float64) (float64, error) {
	req := sumRequest{Run: c.run, Seq: c.seq, Rank: c.rank, Size: c.size, Value: x}
	c.seq++
	c.stats.Int("allreduce").Add(1)
	root, err := c.dial(ctx)
	if err != nil {
		return 0, err
	}
	var sum float64
	if err := root.Call(ctx, "Reducer.Sum", req, &sum); err != nil {
		return 0, err
	}
	log.Debug.Printf("rank %d: reduction %d = %g", c.rank, req.Seq, sum)
	return sum, nil
}

func (c *remoteComm) Abort(ctx context.Context, err error) {
	root, derr := c.dial(ctx)
	if derr != nil {
		log.Error.Printf("rank %d: abort: %v", c.rank, derr)
		return
	}
	req := abortRequest{Run: c.run, Size: c.size, Message: err.Error()}
	if err := root.Call(ctx, "Reducer.Abort", req, nil); err != nil {
		log.Error.Printf("rank %d: abort: %v", c.rank, err)
	}
}

// ReducerService hosts the reducers of a group's runs. Only the
// instance on the root machine is used.
type reducerService struct {
	Exported struct{}

	mu   sync.Mutex
	runs map[uint64]*reducer
}

func (r *reducerService) Init(b *bigmachine.B) error {
	r.runs = make(map[uint64]*reducer)
	return nil
}

func (r *reducerService) get(run uint64, size int) *reducer {
	r.mu.Lock()
	defer r.mu.Unlock()
	red := r.runs[run]
	if red == nil {
		red = newReducer(size)
		r.runs[run] = red
	}
	return red
}

// Sum contributes a rank's value to a reduction and replies with the
// group-wide sum.
func (r *reducerService) Sum(ctx context.Context, req sumRequest, sum *float64) (err error) {
	defer func() {
		if e := recover(); e != nil {
			err = errors.E(errors.Fatal, fmt.Errorf("reducer panic: %v\n%s", e, debug.Stack()))
		}
	}()
	red := r.get(req.Run, req.Size)
	if red.size != req.Size {
		return guard.Fatalf("rank %d reports group size %d, reducer has %d", req.Rank, req.Size, red.size)
	}
	*sum, err = red.Sum(ctx, req.Seq, req.Rank, req.Value)
	return err
}

// Abort aborts a run's reductions.
func (r *reducerService) Abort(ctx context.Context, req abortRequest, _ *struct{}) error {
	r.get(req.Run, req.Size).Abort(errors.E(req.Message))
	return nil
}

// Release discards the state of a completed run.
func (r *reducerService) Release(ctx context.Context, run uint64, _ *struct{}) error {
	r.mu.Lock()
	delete(r.runs, run)
	r.mu.Unlock()
	return nil
}
