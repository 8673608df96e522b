package dispatch

import (
	"context"
	"math/bits"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/accelcore/dispatch/internal/accelerator"
	"github.com/accelcore/dispatch/internal/kernels"
	"github.com/accelcore/dispatch/internal/task"
)

// WorkerRoutine is the per-Task accelerator lifecycle the Worker Pool
// invokes for every dispatched Task: load, allocate, marshal, execute,
// wait, demarshal, free, unload, then release resources and wake the
// Queue Manager.
type WorkerRoutine struct {
	Device  accelerator.Device
	Kernels kernels.Registry
	Slots   *task.SlotRegistry
	Dup     *task.DuplicationRegistry
	Online  *task.OnlineEventQueues
	Service *ServiceState

	// Fatal receives every accelerator.FatalError the routine encounters.
	// A load/execute/wait/free/unload failure is fatal to the whole
	// process, not just the Task: the design does not recover individual
	// accelerators. Must be buffered deeply enough that a send
	// never blocks a worker (one slot per concurrent worker is enough);
	// nil disables fatal reporting (used by tests that don't care).
	Fatal chan<- error
}

// fatal logs and, if Fatal is set, reports an accelerator.FatalError for
// the given Task and stage without blocking the worker.
func (w *WorkerRoutine) fatal(t *task.Task, stage string, err error) {
	fe := &accelerator.FatalError{OrdinalID: t.OrdinalID, Stage: stage, Err: err}
	logrus.Errorf("worker: %v", fe)
	if w.Fatal == nil {
		return
	}
	select {
	case w.Fatal <- fe:
	default:
	}
}

// occupiedSlots returns the ascending slot indices set in bitmap.
func occupiedSlots(bitmap uint64) []int {
	out := make([]int, 0, bits.OnesCount64(bitmap))
	for bitmap != 0 {
		i := bits.TrailingZeros64(bitmap)
		out = append(out, i)
		bitmap &^= 1 << uint(i)
	}
	return out
}

// Run executes t to completion on the accelerator. It is meant to be
// handed to the Worker Pool as a zero-argument closure: Run does not
// return until the Task has fully finished, released its slots, and
// notified the Queue Manager that dispatch may be possible again.
func (w *WorkerRoutine) Run(ctx context.Context, t *task.Task) {
	slots := occupiedSlots(t.SlotBitmap)
	name := kernels.Name(t.KernelID)

	dataset, err := w.Kernels.Dataset(t.KernelID)
	if err != nil {
		logrus.Errorf("worker: dataset lookup for task %d kernel %d: %v", t.OrdinalID, t.KernelID, err)
		w.release(t)
		return
	}

	t.MeasuredPreExec = time.Now()

	type slotBuffers struct {
		slot int
		bufs []accelerator.Buffer
	}
	allocated := make([]slotBuffers, 0, len(slots))

	for _, slot := range slots {
		if err := w.Device.Load(slot, name); err != nil {
			w.fatal(t, "load", err)
			w.release(t)
			return
		}
		bufs, err := w.Device.Allocate(slot, name, kernels.NumArgPorts)
		if err != nil {
			w.fatal(t, "allocate", err)
			w.release(t)
			return
		}
		if len(bufs) > 0 {
			if err := w.Device.Marshal(bufs[0], dataset.Input, t.NumExecutions); err != nil {
				w.fatal(t, "marshal", err)
				w.release(t)
				return
			}
		}
		allocated = append(allocated, slotBuffers{slot: slot, bufs: bufs})
	}

	t.MeasuredArrival = time.Now()
	w.Online.EnqueueOccupied(t)

	for _, a := range allocated {
		if err := w.Device.Execute(a.slot, a.bufs); err != nil {
			w.fatal(t, "execute", err)
			w.release(t)
			return
		}
	}

	var lastOutput []byte
	for _, a := range allocated {
		if err := w.Device.Wait(ctx, a.slot); err != nil {
			w.fatal(t, "wait", err)
		}
		if len(a.bufs) > 1 {
			out, err := w.Device.Demarshal(a.bufs[1])
			if err != nil {
				w.fatal(t, "demarshal", err)
			} else {
				lastOutput = out
			}
		}
	}
	t.MeasuredFinish = time.Now()
	t.MeasuredPostExec = time.Now()
	t.Passed = w.Kernels.Validate(t.KernelID, lastOutput)

	for _, a := range allocated {
		for _, buf := range a.bufs {
			if err := w.Device.Free(buf); err != nil {
				w.fatal(t, "free", err)
			}
		}
		if err := w.Device.Unload(a.slot); err != nil {
			w.fatal(t, "unload", err)
		}
	}

	w.release(t)
}

// release returns t's slots and duplication accounting and wakes the
// Queue Manager; called on both the success and failure paths so a worker
// error never leaks a slot.
func (w *WorkerRoutine) release(t *task.Task) {
	w.Slots.Release(t.SlotBitmap)
	w.Dup.Decrement(t.KernelID)
	t.SlotBitmap = 0
	w.Service.RaiseDispatchPossible()
}
