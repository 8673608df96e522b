// Package task defines the Task record and the shared registries (slots,
// duplication) that the dispatch core, the worker pool, and the monitor all
// consult. Types here carry no synchronization of their own beyond what is
// documented per-type; callers are expected to hold the documented mutex.
package task

import (
	"math"
	"math/bits"
	"time"
)

// KernelID identifies one of the known accelerator kernel bodies. The kernel
// bodies themselves (BFS, SpMV, KMP, kNN, NW, Merge, Stencil2D/3D, Strided
// FFT, AES, Queue-BFS) are out of scope for this package; it only needs a
// stable, small integer tag for duplication accounting and wire framing.
type KernelID int32

// sentinelTime marks a measured timestamp that has not happened yet. Tasks
// are constructed with every measured field set to this value; it orders
// past every real timestamp, so comparisons treat an unmeasured time as
// infinitely far in the future.
var sentinelTime = time.Unix(1<<62, 0)

// IsSentinel reports whether t is the "not yet measured" sentinel.
func IsSentinel(t time.Time) bool {
	return t.Equal(sentinelTime)
}

// Task is one unit of dispatchable work: a single accelerator kernel
// invocation requested at a given compute-unit width.
type Task struct {
	// OrdinalID is monotonic within a workload, assigned by the Arrival
	// Generator at construction time.
	OrdinalID int64
	// KernelID is one of the known kernel tags.
	KernelID KernelID
	// CU is the requested compute-unit count; must be in [1, NSlots].
	CU int
	// NumExecutions is how many times the accelerator should repeat the
	// kernel body per dispatch (plan entry's num_executions).
	NumExecutions int32

	// InterArrivalMS is the plan's inter-arrival delay that produced this
	// Task, recorded for diagnostics.
	InterArrivalMS float32
	// CreationEpoch is when the Arrival Generator constructed the Task.
	CreationEpoch time.Time
	// CommandedArrival is the absolute wall-clock instant the plan
	// prescribed for this Task's arrival.
	CommandedArrival time.Time

	// MeasuredArrival is stamped by the worker when the kernel is handed
	// to the accelerator (sentinel until then).
	MeasuredArrival time.Time
	// MeasuredFinish is stamped by the worker when execution completes
	// (sentinel until then).
	MeasuredFinish time.Time
	// MeasuredPreExec/MeasuredPostExec bracket the worker's orchestration
	// call, independent of the accelerator's own arrival/finish stamps.
	MeasuredPreExec  time.Time
	MeasuredPostExec time.Time

	// SlotBitmap has one bit set for every slot this Task currently
	// occupies. Zero before dispatch and after completion; exactly CU
	// bits set while executing.
	SlotBitmap uint64

	// Passed records the per-kernel validation predicate's verdict. Valid
	// only once MeasuredFinish is set.
	Passed bool
}

// NewTask constructs a Task with every measured timestamp initialized to
// the "not yet happened" sentinel.
func NewTask(ordinal int64, kid KernelID, cu int, numExecutions int32, interArrivalMS float32, commandedArrival time.Time) *Task {
	return &Task{
		OrdinalID:        ordinal,
		KernelID:         kid,
		CU:               cu,
		NumExecutions:    numExecutions,
		InterArrivalMS:   interArrivalMS,
		CreationEpoch:    time.Now(),
		CommandedArrival: commandedArrival,
		MeasuredArrival:  sentinelTime,
		MeasuredFinish:   sentinelTime,
		MeasuredPreExec:  sentinelTime,
		MeasuredPostExec: sentinelTime,
	}
}

// Arrived reports whether MeasuredArrival has been stamped.
func (t *Task) Arrived() bool { return !IsSentinel(t.MeasuredArrival) }

// Finished reports whether MeasuredFinish has been stamped.
func (t *Task) Finished() bool { return !IsSentinel(t.MeasuredFinish) }

// OccupiedSlots returns the count of bits set in SlotBitmap, which must
// equal CU for the duration the Task is in flight.
func (t *Task) OccupiedSlots() int {
	return bits.OnesCount64(t.SlotBitmap)
}

// ArrivalSlipMS returns how late (positive) or early (negative) the
// measured arrival was relative to the commanded arrival, in milliseconds.
// Logged only; never treated as an error.
func (t *Task) ArrivalSlipMS() float64 {
	if IsSentinel(t.MeasuredArrival) {
		return math.NaN()
	}
	return t.MeasuredArrival.Sub(t.CommandedArrival).Seconds() * 1000
}
