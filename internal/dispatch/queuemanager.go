package dispatch

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/accelcore/dispatch/internal/policy"
	"github.com/accelcore/dispatch/internal/task"
	"github.com/accelcore/dispatch/internal/workerpool"
)

// Submitter hands a fully reserved Task off for execution without
// queueing; implemented by *workerpool.Pool.
type Submitter interface {
	Dispatch(ctx context.Context, fn func()) error
}

// QueueManager runs the Idle -> Selecting -> Reserving -> Submitting loop
// that pulls Tasks out of the Pending Queue and onto the accelerator, and
// the Terminal path that drains in-flight work once the workload is
// exhausted.
type QueueManager struct {
	Pending *task.PendingQueue
	Slots   *task.SlotRegistry
	Dup     *task.DuplicationRegistry
	History *task.HistoricalLog
	Policy  policy.Policy
	Service *ServiceState
	Pool    Submitter
	Worker  *WorkerRoutine

	// CPU is consulted at Selecting time so model-assisted policies see a
	// fresh usage snapshot for every decision, not a stale one captured at
	// startup.
	CPU func() policy.CPUUsage

	// Fatal receives the error when the Worker Pool rejects a hand-off.
	// The pool is sized to preclude that, so a rejection means the system
	// is misconfigured and the run must come down. Nil disables reporting.
	Fatal chan<- error

	// WorkloadEnd, if set, is invoked after each workload's in-flight set
	// drains (e.g. to frame the Oracle's workload-boundary marker on the
	// shared training channel).
	WorkloadEnd func(workload int)

	lastTrainGen int
}

// resettable is implemented by policies that cache Oracle-advised
// decisions across Select calls (currently only CSA); the Queue Manager
// invalidates the cache whenever the phase machine crosses TRAIN.
type resettable interface {
	Reset()
}

// Run drives numWorkloads successive workloads through the dispatch loop
// on this same Queue Manager: the pool, registries, and policy persist
// across workloads, and only the per-workload pending/plan state resets
// between them. It returns after the last workload drains, or early if
// ctx is done or Service is stopped.
func (qm *QueueManager) Run(ctx context.Context, numWorkloads int, pool *workerpool.Pool) {
	for w := 1; w <= numWorkloads; w++ {
		if !qm.runWorkload(ctx, pool) {
			return
		}
		logrus.Infof("dispatch: workload %d/%d drained", w, numWorkloads)
		if qm.WorkloadEnd != nil {
			qm.WorkloadEnd(w)
		}
	}
}

// runWorkload is one pass of the Idle -> Selecting -> Reserving ->
// Submitting loop, ending in the Terminal state: once the plan is
// exhausted and every queued Task handed off, drain the in-flight set,
// clear the Pending Queue, and raise workload_finished so the Arrival
// Generator may start the next plan. Returns false on shutdown.
func (qm *QueueManager) runWorkload(ctx context.Context, pool *workerpool.Pool) bool {
	for {
		if ctx.Err() != nil {
			return false
		}
		switch qm.Service.WaitEvent(qm.Slots.FreeSlots) {
		case EventStopped:
			return false
		case EventWorkloadDrained:
			if err := pool.WaitIdle(ctx); err != nil {
				return false
			}
			qm.Pending.Clear()
			qm.Service.SetPlanExhausted(false)
			qm.Service.SetWorkloadFinished(true)
			return true
		case EventDispatch:
			qm.invalidateOnTrainCrossing()
			qm.dispatchOne(ctx)
		}
	}
}

// invalidateOnTrainCrossing resets a cache-backed policy's pending
// recommendations the first time this Queue Manager observes that the
// phase machine has entered TRAIN since the last check.
func (qm *QueueManager) invalidateOnTrainCrossing() {
	gen := qm.Service.TrainGeneration()
	if gen == qm.lastTrainGen {
		return
	}
	qm.lastTrainGen = gen
	if r, ok := qm.Policy.(resettable); ok {
		r.Reset()
	}
}

// dispatchOne performs one Selecting -> Reserving -> Submitting cycle. A
// failure at Selecting or Reserving is not fatal: the Task stays in (or is
// returned to) the Pending Queue and the next WaitEvent cycle will retry
// once conditions change.
func (qm *QueueManager) dispatchOne(ctx context.Context) {
	free := qm.Slots.FreeSlots()
	dup := qm.Dup.Snapshot()
	cpu := policy.CPUUsage{}
	if qm.CPU != nil {
		cpu = qm.CPU()
	}

	t, err := qm.Policy.Select(qm.Pending, free, dup, cpu)
	if err != nil {
		// Nothing eligible right now; dispatch_possible was already
		// consumed by WaitEvent, so the loop blocks again until
		// something changes.
		return
	}

	bitmap, err := qm.Slots.Reserve(t.CU)
	if err != nil {
		// Lost a race against another reservation between the free-slot
		// check and Reserve; return the Task to the queue and retry on
		// the next signal.
		qm.Pending.Enqueue(t)
		qm.Service.RaiseDispatchPossible()
		logrus.Debugf("dispatch: reserve raced for task %d, requeued", t.OrdinalID)
		return
	}
	t.SlotBitmap = bitmap
	qm.Dup.Increment(t.KernelID)

	ref := qm.History.Append(t)
	if err := qm.Pool.Dispatch(ctx, func() { qm.Worker.Run(ctx, ref) }); err != nil {
		// The pool is sized to the service population, so a rejected
		// hand-off is fatal, not retryable.
		logrus.Errorf("dispatch: pool rejected task %d: %v", t.OrdinalID, err)
		qm.Slots.Release(bitmap)
		qm.Dup.Decrement(t.KernelID)
		t.SlotBitmap = 0
		if qm.Fatal != nil {
			select {
			case qm.Fatal <- err:
			default:
			}
		}
	}
	// Decremented only after the hand-off attempt, so pending_count == 0
	// implies every accepted Task has reached a worker.
	qm.Service.DecPending()
}

