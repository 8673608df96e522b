package policy

import "github.com/accelcore/dispatch/internal/task"

// FIFO returns the head Task if it is executable, else the first Task
// whose CU fits and whose kernel has no in-flight duplicate. This is the
// default behavior of task.PendingQueue.DequeueFirstExecutable, so FIFO is a thin named wrapper rather than independent logic.
type FIFO struct{}

func (FIFO) Name() string { return "fifo" }

func (FIFO) Select(pq *task.PendingQueue, freeSlots int, dup map[task.KernelID]int, _ CPUUsage) (*task.Task, error) {
	t, err := pq.DequeueFirstExecutable(freeSlots, dup)
	if err != nil {
		return nil, ErrNoEligible
	}
	return t, nil
}
