// Package observation implements the per-window telemetry record the
// Monitor emits and its wire framing to a downstream
// sink.
package observation

import (
	"time"

	"github.com/accelcore/dispatch/internal/task"
)

// CPUUsage is the (user, kernel, idle) percentage snapshot captured at
// window start.
type CPUUsage struct {
	User, Kernel, Idle float32
}

// KernelEvent is one (kernel_id, arrival, finish) tuple for a Task that
// overlapped the window on a given slot.
type KernelEvent struct {
	KernelID task.KernelID
	Arrival  time.Time
	Finish   time.Time
}

// SlotTimeline is the ordered list of kernel events observed on one slot
// during the window.
type SlotTimeline []KernelEvent

// Record is the observation emitted once per monitor window.
type Record struct {
	WindowStart time.Time
	WindowEnd   time.Time
	CPU         CPUUsage
	Power       []PowerSample
	Traces      []TraceSample
	// Slots holds one timeline per slot, indexed by slot number.
	Slots []SlotTimeline
}

// PowerSample mirrors telemetry.PowerSample without importing the
// telemetry package, keeping the wire format package dependency-free.
type PowerSample struct {
	Value        float32
	ElapsedCycle uint64
}

// TraceSample is one opaque 64-bit trace event.
type TraceSample uint64

// NumSlots returns how many per-slot timelines the record carries.
func (r Record) NumSlots() int { return len(r.Slots) }
