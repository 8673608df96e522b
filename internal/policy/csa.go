package policy

import (
	"sync"

	"github.com/accelcore/dispatch/internal/oracle"
	"github.com/accelcore/dispatch/internal/task"
)

// CSA (Crow Search Algorithm, model-assisted batch) queries the Oracle
// once for a per-kernel CU recommendation over up to K currently
// executable Tasks of distinct kernel identifiers, then dispatches the
// recommendations one at a time on successive Select calls without
// re-querying, until the cache is exhausted or invalidated.
type CSA struct {
	K          int
	NumKernels int
	Scheduler  Scheduler

	mu      sync.Mutex
	pending []task.KernelID // recommended kernels not yet dispatched, in query order
	cuFor   map[task.KernelID]byte
}

func (c *CSA) Name() string { return "csa" }

// Reset invalidates the cached recommendation. The Queue Manager calls it
// whenever the phase machine crosses TRAIN; a change in the running kernel
// mix does not invalidate the cache.
func (c *CSA) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = nil
	c.cuFor = nil
}

func (c *CSA) Select(pq *task.PendingQueue, freeSlots int, dup map[task.KernelID]int, cpu CPUUsage) (*task.Task, error) {
	c.mu.Lock()
	if len(c.pending) == 0 {
		if err := c.refillLocked(pq, freeSlots, dup, cpu); err != nil {
			c.mu.Unlock()
			return nil, err
		}
	}
	if len(c.pending) == 0 {
		c.mu.Unlock()
		return nil, ErrNoEligible
	}
	kid := c.pending[0]
	cu := c.cuFor[kid]
	c.pending = c.pending[1:]
	c.mu.Unlock()

	// Find the queue position of the first pending Task with this kernel
	// identifier and dispatch it with CU overwritten by the Oracle's
	// recommendation.
	t, err := c.dequeueKernel(pq, kid, cu)
	if err != nil {
		// A racing worker made the recommendation temporarily
		// unservable; put it back so the next Select retries it instead
		// of skipping ahead in the Oracle's ordering.
		c.mu.Lock()
		c.pending = append([]task.KernelID{kid}, c.pending...)
		c.mu.Unlock()
		return nil, err
	}
	return t, nil
}

// refillLocked must be called with c.mu held. It queries the Oracle for a
// fresh recommendation over the current distinct-kernel candidate set and
// populates c.pending/c.cuFor in query order.
func (c *CSA) refillLocked(pq *task.PendingQueue, freeSlots int, dup map[task.KernelID]int, cpu CPUUsage) error {
	seen := make(map[task.KernelID]bool)
	var order []task.KernelID
	for pos := 0; pos < 1<<20; pos++ {
		t, err := pq.PeekAt(pos)
		if err != nil {
			break
		}
		if t.CU > freeSlots || dup[t.KernelID] != 0 {
			continue
		}
		if !seen[t.KernelID] {
			seen[t.KernelID] = true
			order = append(order, t.KernelID)
			if len(order) == c.K {
				break
			}
		}
	}
	if len(order) == 0 {
		return nil
	}

	occ := make([]byte, c.NumKernels)
	for _, kid := range order {
		if int(kid) < c.NumKernels {
			occ[kid] = 1
		}
	}
	decision, err := c.Scheduler.Schedule(oracle.Features{
		User: cpu.User, Kernel: cpu.Kernel, Idle: cpu.Idle, Occupancy: occ,
	})
	if err != nil {
		return err
	}

	c.cuFor = make(map[task.KernelID]byte, len(order))
	c.pending = nil
	for _, kid := range order {
		var cu byte
		if int(kid) < len(decision.PerKernelCU) {
			cu = decision.PerKernelCU[kid]
		}
		if cu == 0 {
			continue
		}
		c.cuFor[kid] = cu
		c.pending = append(c.pending, kid)
	}
	return nil
}

// dequeueKernel removes and returns the first pending Task carrying kid,
// with its CU overwritten to cu. Returns
// ErrNoEligible if a racing worker made it no longer executable.
func (c *CSA) dequeueKernel(pq *task.PendingQueue, kid task.KernelID, cu byte) (*task.Task, error) {
	for pos := 0; pos < 1<<20; pos++ {
		t, err := pq.PeekAt(pos)
		if err != nil {
			break
		}
		if t.KernelID == kid {
			dequeued, err := pq.DequeueAt(pos)
			if err != nil {
				return nil, ErrNoEligible
			}
			dequeued.CU = int(cu)
			return dequeued, nil
		}
	}
	return nil, ErrNoEligible
}
