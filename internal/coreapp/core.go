// Package coreapp wires the Arrival Generator, Pending Queue, Queue
// Manager, Worker Pool, Monitor, Oracle client, and the Slot/Duplication
// registries into a single runnable Core. No process-wide state is kept;
// every dependency is threaded through explicitly so a process can run
// more than one Core (e.g. in tests) without interference.
package coreapp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/accelcore/dispatch/internal/accelerator"
	"github.com/accelcore/dispatch/internal/arrival"
	"github.com/accelcore/dispatch/internal/config"
	"github.com/accelcore/dispatch/internal/dispatch"
	"github.com/accelcore/dispatch/internal/kernels"
	"github.com/accelcore/dispatch/internal/monitor"
	"github.com/accelcore/dispatch/internal/oracle"
	"github.com/accelcore/dispatch/internal/policy"
	"github.com/accelcore/dispatch/internal/task"
	"github.com/accelcore/dispatch/internal/telemetry"
	"github.com/accelcore/dispatch/internal/workerpool"
	"github.com/accelcore/dispatch/internal/workload"
)

// Core is one fully wired instance of the dispatch system.
type Core struct {
	cfg *config.Config

	Slots   *task.SlotRegistry
	Dup     *task.DuplicationRegistry
	Pending *task.PendingQueue
	History *task.HistoricalLog
	Online  *task.OnlineEventQueues
	Service *dispatch.ServiceState

	Pool       *workerpool.Pool
	QueueMgr   *dispatch.QueueManager
	Generator  *arrival.Generator
	Monitor    *monitor.Monitor
	oracleConn *oracle.Client
	fatal      chan error
}

// Deps supplies the external collaborators a real deployment backs with
// hardware and a test backs with fakes.
type Deps struct {
	Device  accelerator.Device
	Kernels kernels.Registry
	Telem   telemetry.Driver
	CPU     monitor.CPUSampler
	Plan    *workload.Plan // pre-loaded plan, so callers control file I/O
	Sink    *os.File       // observation-record sink; Core does not own closing it
}

// New constructs a Core from cfg and deps, dialing the Oracle and loading
// the scheduling policy. It does not start any goroutines.
func New(cfg *config.Config, deps Deps) (*Core, error) {
	oc, err := oracle.Dial(cfg.Oracle.TrainingSocketPath, cfg.Oracle.PredictionSocketPath, len(kernels.All), cfg.Board.PowerWidth)
	if err != nil {
		return nil, fmt.Errorf("coreapp: dial oracle: %w", err)
	}

	var sink io.Writer
	if deps.Sink != nil {
		sink = deps.Sink
	}
	return newCore(cfg, oc, deps, sink)
}

// newForTest builds a Core from an already-established Oracle client
// (e.g. one dialed over net.Pipe in a test) and an arbitrary observation
// sink, bypassing New's filesystem-socket dial. Used only by this
// package's own tests.
func newForTest(cfg *config.Config, oc *oracle.Client, deps Deps, sink io.Writer) (*Core, error) {
	return newCore(cfg, oc, deps, sink)
}

func newCore(cfg *config.Config, oc *oracle.Client, deps Deps, sink io.Writer) (*Core, error) {
	pol, err := policy.New(cfg.Policy.Name, cfg.Policy.CandidateDepth, len(kernels.All), oc, oc)
	if err != nil {
		oc.Close()
		return nil, fmt.Errorf("coreapp: build policy: %w", err)
	}

	slots := task.NewSlotRegistry(cfg.Board.NumSlots)
	dup := task.NewDuplicationRegistry()
	pending := task.NewPendingQueue()
	hist := task.NewHistoricalLog()
	online := task.NewOnlineEventQueues(cfg.Board.NumSlots)
	svc := dispatch.NewServiceState()

	pool := workerpool.New(cfg.Board.NumSlots + cfg.Board.PoolHeadroom)
	fatal := make(chan error, cfg.Board.NumSlots+cfg.Board.PoolHeadroom)

	worker := &dispatch.WorkerRoutine{
		Device:  deps.Device,
		Kernels: deps.Kernels,
		Slots:   slots,
		Dup:     dup,
		Online:  online,
		Service: svc,
		Fatal:   fatal,
	}

	qm := &dispatch.QueueManager{
		Pending: pending,
		Slots:   slots,
		Dup:     dup,
		History: hist,
		Policy:  pol,
		Service: svc,
		Pool:    pool,
		Worker:  worker,
		Fatal:   fatal,
	}
	qm.WorkloadEnd = func(int) {
		if err := oc.WorkloadBoundary(); err != nil {
			logrus.Warnf("coreapp: workload boundary notify: %v", err)
		}
	}
	if deps.CPU != nil {
		qm.CPU = func() policy.CPUUsage {
			u := deps.CPU()
			return policy.CPUUsage{User: u.User, Kernel: u.Kernel, Idle: u.Idle}
		}
	}

	gen := arrival.New(deps.Plan, pending, svc)
	gen.CUChoices = cfg.Board.CUChoices

	mon := monitor.New(monitor.Config{
		TickPeriod:              cfg.Monitor.TickPeriod(),
		MeasurementsPerTraining: cfg.Monitor.MeasurementsPerTraining,
		ObservationsPerWindow:   cfg.Monitor.ObservationsPerWindow,
		NumSlots:                cfg.Board.NumSlots,
	}, deps.Telem, online, svc, oc, sink, deps.CPU)

	return &Core{
		cfg:        cfg,
		Slots:      slots,
		Dup:        dup,
		Pending:    pending,
		History:    hist,
		Online:     online,
		Service:    svc,
		Pool:       pool,
		QueueMgr:   qm,
		Generator:  gen,
		Monitor:    mon,
		oracleConn: oc,
		fatal:      fatal,
	}, nil
}

// Run starts the Arrival Generator, Queue Manager, and Monitor
// concurrently and blocks until every one of numWorkloads replays of the
// plan has drained, or ctx is otherwise done. The Worker Pool, Monitor,
// and Oracle connection are created once and span every workload; the
// Queue Manager frames a workload-boundary marker after each workload, and
// the Oracle shutdown message goes out exactly once, from the deferred
// Close after the last workload. The first non-nil error from any
// goroutine is returned; the rest are logged.
func (c *Core) Run(ctx context.Context, numWorkloads int) error {
	defer c.Pool.Shutdown()
	defer c.oracleConn.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	reportErr := func(err error) {
		if err == nil {
			return
		}
		errOnce.Do(func() { firstErr = err })
		cancel()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		reportErr(c.Generator.Run(ctx, numWorkloads))
	}()

	// A worker-reported accelerator.FatalError means the design does not
	// recover individual accelerators: treat it exactly like an Oracle
	// protocol error and bring the whole Core down.
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case err := <-c.fatal:
			reportErr(err)
		case <-ctx.Done():
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		c.QueueMgr.Run(ctx, numWorkloads, c.Pool)
		// The Queue Manager returning means the last workload drained
		// (or the service was already stopped): bring the Monitor and
		// the rest of the Core down.
		c.Service.Stop()
		logrus.Info("coreapp: all workloads drained, shutting down")
		cancel()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := c.Monitor.Run(ctx); err != nil && ctx.Err() == nil {
			reportErr(err)
		}
	}()

	// The Queue Manager and Service's condition variable only observe
	// Service.Stop(), not ctx directly, so a cancellation originating
	// from an error elsewhere must also unblock them.
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		c.Service.Stop()
	}()

	wg.Wait()
	if firstErr != nil && !errors.Is(firstErr, context.Canceled) {
		return firstErr
	}
	return nil
}

// Dump writes the Historical Log to w.
func (c *Core) Dump(w io.Writer) error {
	return c.History.WriteDump(w)
}
