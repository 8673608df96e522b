package arrival

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/accelcore/dispatch/internal/dispatch"
	"github.com/accelcore/dispatch/internal/task"
	"github.com/accelcore/dispatch/internal/workload"
)

// runGenerator starts g.Run in a goroutine and returns a channel carrying
// its result. The caller raises workload_finished (as the Queue Manager
// would) to let the generator advance past each replay.
func runGenerator(t *testing.T, g *Generator, numWorkloads int) chan error {
	t.Helper()
	out := make(chan error, 1)
	go func() { out <- g.Run(context.Background(), numWorkloads) }()
	return out
}

func waitPendingLen(t *testing.T, pending *task.PendingQueue, want int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for pending.Len() != want {
		if time.Now().After(deadline) {
			t.Fatalf("pending.Len() = %d, want %d", pending.Len(), want)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestGenerator_RunEnqueuesEveryEntryThenWaitsForWorkloadFinished(t *testing.T) {
	plan := &workload.Plan{Entries: []workload.Entry{
		{InterArrivalMS: 1, KernelID: 2, NumExecutions: 1},
		{InterArrivalMS: 1, KernelID: 3, NumExecutions: 2},
	}}
	pending := task.NewPendingQueue()
	svc := dispatch.NewServiceState()
	g := New(plan, pending, svc)
	g.StartDelay = 10 * time.Millisecond

	start := time.Now()
	done := runGenerator(t, g, 1)

	waitPendingLen(t, pending, 2)
	if time.Since(start) < g.StartDelay {
		t.Fatal("expected the configured start delay before the first arrival")
	}
	first, err := pending.PeekAt(0)
	if err != nil {
		t.Fatalf("PeekAt(0): %v", err)
	}
	if first.KernelID != 2 || first.OrdinalID != 1 {
		t.Fatalf("unexpected first task: %+v", first)
	}

	// The plan is exhausted but the workload is not finished: Run must
	// still be blocked.
	select {
	case err := <-done:
		t.Fatalf("Run returned %v before workload_finished was raised", err)
	case <-time.After(20 * time.Millisecond):
	}

	svc.SetWorkloadFinished(true)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after workload_finished")
	}
}

func TestGenerator_ReplaysPlanOncePerWorkload(t *testing.T) {
	plan := &workload.Plan{Entries: []workload.Entry{
		{InterArrivalMS: 0, KernelID: 1, NumExecutions: 1},
		{InterArrivalMS: 0, KernelID: 2, NumExecutions: 1},
	}}
	pending := task.NewPendingQueue()
	svc := dispatch.NewServiceState()
	g := New(plan, pending, svc)
	g.StartDelay = time.Millisecond

	done := runGenerator(t, g, 2)

	waitPendingLen(t, pending, 2)
	pending.Clear()
	svc.SetWorkloadFinished(true)

	waitPendingLen(t, pending, 2)
	svc.SetWorkloadFinished(true)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after the second workload")
	}

	// Ordinals keep counting across workloads.
	first, err := pending.PeekAt(0)
	if err != nil {
		t.Fatalf("PeekAt(0): %v", err)
	}
	if first.OrdinalID != 3 {
		t.Fatalf("second workload's first ordinal = %d, want 3", first.OrdinalID)
	}
}

func TestGenerator_StopUnblocksRun(t *testing.T) {
	plan := &workload.Plan{Entries: []workload.Entry{{InterArrivalMS: 0, KernelID: 1, NumExecutions: 1}}}
	pending := task.NewPendingQueue()
	svc := dispatch.NewServiceState()
	g := New(plan, pending, svc)
	g.StartDelay = time.Millisecond

	done := runGenerator(t, g, 3)
	waitPendingLen(t, pending, 1)

	svc.Stop()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

func TestGenerator_DefaultCUIsOne(t *testing.T) {
	plan := &workload.Plan{Entries: []workload.Entry{{InterArrivalMS: 0, KernelID: 1, NumExecutions: 1}}}
	pending := task.NewPendingQueue()
	svc := dispatch.NewServiceState()
	g := New(plan, pending, svc)
	g.StartDelay = time.Millisecond

	done := runGenerator(t, g, 1)
	waitPendingLen(t, pending, 1)
	svc.SetWorkloadFinished(true)
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	tk, err := pending.PeekAt(0)
	if err != nil {
		t.Fatalf("PeekAt(0): %v", err)
	}
	if tk.CU != 1 {
		t.Fatalf("CU = %d, want 1 with no CUChoices configured", tk.CU)
	}
}

func TestGenerator_SamplesCUFromChoices(t *testing.T) {
	plan := &workload.Plan{Entries: make([]workload.Entry, 20)}
	for i := range plan.Entries {
		plan.Entries[i] = workload.Entry{InterArrivalMS: 0, KernelID: 1, NumExecutions: 1}
	}
	pending := task.NewPendingQueue()
	svc := dispatch.NewServiceState()
	g := New(plan, pending, svc)
	g.StartDelay = time.Millisecond
	g.CUChoices = []int{1, 2, 4, 8}
	g.Rand = rand.New(rand.NewSource(1))

	done := runGenerator(t, g, 1)
	waitPendingLen(t, pending, 20)
	svc.SetWorkloadFinished(true)
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	seen := map[int]bool{}
	for i := 0; i < pending.Len(); i++ {
		tk, err := pending.PeekAt(i)
		if err != nil {
			t.Fatalf("PeekAt(%d): %v", i, err)
		}
		seen[tk.CU] = true
		allowed := false
		for _, c := range g.CUChoices {
			if tk.CU == c {
				allowed = true
			}
		}
		if !allowed {
			t.Fatalf("task %d got CU=%d, not in %v", tk.OrdinalID, tk.CU, g.CUChoices)
		}
	}
	if len(seen) < 2 {
		t.Fatalf("expected multiple distinct CU values sampled across 20 tasks, got %v", seen)
	}
}
