// Package policy implements the Queue Manager's pluggable scheduling
// strategies: FIFO, SJF, LIF, and CSA. Each strategy
// consumes the Pending Queue plus live constraints and either dequeues a
// Task ready for reservation or reports ErrNoEligible.
package policy

import (
	"errors"

	"github.com/accelcore/dispatch/internal/oracle"
	"github.com/accelcore/dispatch/internal/task"
)

// ErrNoEligible is returned when no candidate in the queue can be
// dispatched under the current constraints.
var ErrNoEligible = errors.New("policy: no eligible task")

// CPUUsage is the live (user, kernel, idle) snapshot threaded into
// model-assisted policies' prediction features.
type CPUUsage struct {
	User, Kernel, Idle float32
}

// Predictor is the subset of the Oracle prediction channel the SJF/LIF
// policies need.
type Predictor interface {
	Predict(f oracle.Features) (oracle.Prediction, error)
}

// Scheduler is the subset of the Oracle prediction channel the CSA policy
// needs.
type Scheduler interface {
	Schedule(f oracle.Features) (oracle.Decision, error)
}

// Policy selects the next Task to dispatch from pq, given the live
// free-slot count, a duplication snapshot, and current CPU usage. On
// success the returned Task has already been removed from pq.
type Policy interface {
	Select(pq *task.PendingQueue, freeSlots int, dup map[task.KernelID]int, cpu CPUUsage) (*task.Task, error)
	// Name identifies the policy for logging and config.
	Name() string
}

// occupancyBytes renders a duplication snapshot as the per-kernel
// occupancy byte array the Oracle wire protocol expects,
// with extra optionally marking one additional kernel occupied (used by
// LIF's "interaction" query, which asks what happens if the candidate were
// added to the current mix).
func occupancyBytes(numKernels int, dup map[task.KernelID]int, extra task.KernelID, markExtra bool) []byte {
	occ := make([]byte, numKernels)
	for kid, n := range dup {
		if int(kid) >= 0 && int(kid) < numKernels && n > 0 {
			occ[kid] = 1
		}
	}
	if markExtra && int(extra) >= 0 && int(extra) < numKernels {
		occ[extra] = 1
	}
	return occ
}
