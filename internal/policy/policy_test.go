package policy

import (
	"testing"
	"time"

	"github.com/accelcore/dispatch/internal/oracle"
	"github.com/accelcore/dispatch/internal/task"
)

func mkTask(ordinal int64, kid task.KernelID, cu int, numExec int32) *task.Task {
	return task.NewTask(ordinal, kid, cu, numExec, 0, time.Now())
}

func TestFIFO_MatchesDequeueFirstExecutable(t *testing.T) {
	pq := task.NewPendingQueue()
	a := mkTask(1, 1, 1, 1)
	pq.Enqueue(a)

	p := FIFO{}
	got, err := p.Select(pq, 4, map[task.KernelID]int{}, CPUUsage{})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got != a {
		t.Fatalf("got %v, want a", got)
	}
}

func TestFIFO_NoEligibleWhenEmpty(t *testing.T) {
	pq := task.NewPendingQueue()
	p := FIFO{}
	if _, err := p.Select(pq, 4, nil, CPUUsage{}); err != ErrNoEligible {
		t.Fatalf("err = %v, want ErrNoEligible", err)
	}
}

// fakePredictor returns a fixed per-kernel time, ignoring occupancy, so
// tests can assert deterministic ranking.
type fakePredictor struct {
	timeByKernel map[task.KernelID]float32
	// interactionDelta is added to the alone-time for LIF's interaction
	// query (keyed by whether occupancy has any bit set besides Main).
	interactionDelta map[task.KernelID]float32
}

func (f *fakePredictor) Predict(feat oracle.Features) (oracle.Prediction, error) {
	kid := task.KernelID(feat.Main)
	base := f.timeByKernel[kid]
	interacting := false
	for i, occ := range feat.Occupancy {
		if task.KernelID(i) != kid && occ != 0 {
			interacting = true
		}
	}
	if interacting {
		base += f.interactionDelta[kid]
	}
	return oracle.Prediction{Time: base}, nil
}

func TestSJF_PicksMinimumPredictedTotalTime(t *testing.T) {
	pq := task.NewPendingQueue()
	slow := mkTask(1, 1, 1, 1)  // predicted time 10
	fast := mkTask(2, 2, 1, 1)  // predicted time 2
	pq.Enqueue(slow)
	pq.Enqueue(fast)

	pred := &fakePredictor{timeByKernel: map[task.KernelID]float32{1: 10, 2: 2}}
	p := &SJF{K: 5, NumKernels: 8, Predictor: pred}

	got, err := p.Select(pq, 4, map[task.KernelID]int{}, CPUUsage{})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got != fast {
		t.Fatalf("got ordinal %d, want fast (ordinal 2)", got.OrdinalID)
	}
}

func TestSJF_ScoresMultiplyByNumExecutions(t *testing.T) {
	pq := task.NewPendingQueue()
	// Equal per-run time, but a has more repeats, so b should win.
	a := mkTask(1, 1, 1, 10)
	b := mkTask(2, 2, 1, 1)
	pq.Enqueue(a)
	pq.Enqueue(b)

	pred := &fakePredictor{timeByKernel: map[task.KernelID]float32{1: 1, 2: 1}}
	p := &SJF{K: 5, NumKernels: 8, Predictor: pred}

	got, err := p.Select(pq, 4, map[task.KernelID]int{}, CPUUsage{})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got != b {
		t.Fatalf("got ordinal %d, want b (ordinal 2)", got.OrdinalID)
	}
}

func TestLIF_PicksLeastRelativeSlowdown(t *testing.T) {
	pq := task.NewPendingQueue()
	a := mkTask(1, 1, 1, 1) // alone=10, +5 interacting -> ratio 0.5
	b := mkTask(2, 2, 1, 1) // alone=10, +1 interacting -> ratio 0.1
	pq.Enqueue(a)
	pq.Enqueue(b)

	pred := &fakePredictor{
		timeByKernel:     map[task.KernelID]float32{1: 10, 2: 10},
		interactionDelta: map[task.KernelID]float32{1: 5, 2: 1},
	}
	p := &LIF{K: 5, NumKernels: 8, Predictor: pred}
	dup := map[task.KernelID]int{9: 1} // some other kernel already running, forces "interacting" occupancy

	got, err := p.Select(pq, 4, dup, CPUUsage{})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got != b {
		t.Fatalf("got ordinal %d, want b (least relative slowdown)", got.OrdinalID)
	}
}

// fakeScheduler returns a fixed decision map regardless of the query.
type fakeScheduler struct {
	decision map[task.KernelID]byte
	calls    int
}

func (f *fakeScheduler) Schedule(feat oracle.Features) (oracle.Decision, error) {
	f.calls++
	out := make([]byte, 16)
	for k, v := range f.decision {
		out[k] = v
	}
	return oracle.Decision{PerKernelCU: out}, nil
}

func TestCSA_CachesAcrossCallsUntilExhausted(t *testing.T) {
	pq := task.NewPendingQueue()
	kmp := mkTask(1, 2, 1, 1) // kernel 2 = KMP in this test's vocabulary
	knn := mkTask(2, 3, 1, 1) // kernel 3 = KNN
	pq.Enqueue(kmp)
	pq.Enqueue(knn)

	sched := &fakeScheduler{decision: map[task.KernelID]byte{2: 2, 3: 1}}
	p := &CSA{K: 5, NumKernels: 16, Scheduler: sched}

	first, err := p.Select(pq, 4, map[task.KernelID]int{}, CPUUsage{})
	if err != nil {
		t.Fatalf("Select #1: %v", err)
	}
	if first.KernelID != 2 || first.CU != 2 {
		t.Fatalf("first = {kernel %d cu %d}, want {2 2}", first.KernelID, first.CU)
	}

	second, err := p.Select(pq, 4, map[task.KernelID]int{}, CPUUsage{})
	if err != nil {
		t.Fatalf("Select #2: %v", err)
	}
	if second.KernelID != 3 || second.CU != 1 {
		t.Fatalf("second = {kernel %d cu %d}, want {3 1}", second.KernelID, second.CU)
	}

	if sched.calls != 1 {
		t.Fatalf("Scheduler called %d times, want 1 (cache should serve the second Select)", sched.calls)
	}
}

func TestCSA_ResetInvalidatesCache(t *testing.T) {
	pq := task.NewPendingQueue()
	kmp := mkTask(1, 2, 1, 1)
	knn := mkTask(2, 3, 1, 1)
	pq.Enqueue(kmp)
	pq.Enqueue(knn)

	// The first query recommends both kernels, so KNN is still cached
	// when Reset is called.
	sched := &fakeScheduler{decision: map[task.KernelID]byte{2: 1, 3: 1}}
	p := &CSA{K: 5, NumKernels: 16, Scheduler: sched}

	if _, err := p.Select(pq, 4, map[task.KernelID]int{}, CPUUsage{}); err != nil {
		t.Fatalf("Select #1: %v", err)
	}
	p.Reset()

	sched.decision = map[task.KernelID]byte{3: 1}

	got, err := p.Select(pq, 4, map[task.KernelID]int{}, CPUUsage{})
	if err != nil {
		t.Fatalf("Select after reset: %v", err)
	}
	if got.KernelID != 3 {
		t.Fatalf("got kernel %d, want 3 (fresh query after reset)", got.KernelID)
	}
	if sched.calls != 2 {
		t.Fatalf("Scheduler called %d times, want 2 (reset forces requery)", sched.calls)
	}
}
