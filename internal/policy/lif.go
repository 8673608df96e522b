package policy

import (
	"github.com/accelcore/dispatch/internal/oracle"
	"github.com/accelcore/dispatch/internal/task"
)

// LIF (Least Interaction First, model-assisted) asks the Oracle for each
// candidate's alone-time and interaction-time, and dequeues the one with
// the smallest relative slowdown (t_int - t_alone) / t_alone.
type LIF struct {
	K          int
	NumKernels int
	Predictor  Predictor
}

func (l *LIF) Name() string { return "lif" }

func (l *LIF) Select(pq *task.PendingQueue, freeSlots int, dup map[task.KernelID]int, cpu CPUUsage) (*task.Task, error) {
	candidates := pq.PeekExecutable(l.K, freeSlots, dup)
	if len(candidates) == 0 {
		return nil, ErrNoEligible
	}

	bestIdx := -1
	var bestScore float32
	for i, c := range candidates {
		aloneOcc := occupancyBytes(l.NumKernels, nil, c.Task.KernelID, false)
		alonePred, err := l.Predictor.Predict(oracle.Features{
			User: cpu.User, Kernel: cpu.Kernel, Idle: cpu.Idle,
			Main: byte(c.Task.KernelID), Occupancy: aloneOcc,
		})
		if err != nil {
			return nil, err
		}
		intOcc := occupancyBytes(l.NumKernels, dup, c.Task.KernelID, true)
		intPred, err := l.Predictor.Predict(oracle.Features{
			User: cpu.User, Kernel: cpu.Kernel, Idle: cpu.Idle,
			Main: byte(c.Task.KernelID), Occupancy: intOcc,
		})
		if err != nil {
			return nil, err
		}

		tAlone := oracle.ClampPrediction(alonePred.Time)
		tInt := oracle.ClampPrediction(intPred.Time)

		var score float32
		switch {
		case tAlone == 0 && tInt == 0:
			score = 0
		case tAlone == 0:
			score = float32(1e9) // undefined ratio; treat as maximally interacted
		default:
			score = (tInt - tAlone) / tAlone
		}

		if bestIdx == -1 || score < bestScore {
			bestIdx = i
			bestScore = score
		}
	}

	chosen := candidates[bestIdx]
	t, err := pq.DequeueAt(chosen.Pos)
	if err != nil {
		return nil, ErrNoEligible
	}
	return t, nil
}
