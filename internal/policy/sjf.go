package policy

import (
	"github.com/accelcore/dispatch/internal/oracle"
	"github.com/accelcore/dispatch/internal/task"
)

// SJF (Shortest Job First, model-assisted) asks the Oracle to predict
// per-Task wall-time under the currently-running mix, over up to K
// executable candidates, and dequeues the one with minimum predicted
// total time.
type SJF struct {
	K          int
	NumKernels int
	Predictor  Predictor
}

func (s *SJF) Name() string { return "sjf" }

func (s *SJF) Select(pq *task.PendingQueue, freeSlots int, dup map[task.KernelID]int, cpu CPUUsage) (*task.Task, error) {
	candidates := pq.PeekExecutable(s.K, freeSlots, dup)
	if len(candidates) == 0 {
		return nil, ErrNoEligible
	}

	bestIdx := -1
	var bestScore float32
	for i, c := range candidates {
		occ := occupancyBytes(s.NumKernels, dup, c.Task.KernelID, false)
		pred, err := s.Predictor.Predict(oracle.Features{
			User: cpu.User, Kernel: cpu.Kernel, Idle: cpu.Idle,
			Main:      byte(c.Task.KernelID),
			Occupancy: occ,
		})
		if err != nil {
			return nil, err
		}
		score := oracle.ClampPrediction(pred.Time) * float32(c.Task.NumExecutions)
		if bestIdx == -1 || score < bestScore {
			bestIdx = i
			bestScore = score
		}
	}

	chosen := candidates[bestIdx]
	t, err := pq.DequeueAt(chosen.Pos)
	if err != nil {
		// A racing worker consumed the slot between the scan and the
		// dequeue; the Queue Manager reattempts on the next signal.
		return nil, ErrNoEligible
	}
	return t, nil
}
