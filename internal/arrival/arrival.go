// Package arrival implements the Arrival Generator: it replays a
// workload.Plan onto the Pending Queue on the wall-clock schedule the plan
// prescribes, once per workload, pausing on the workload_finished
// condition between replays.
package arrival

import (
	"context"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/accelcore/dispatch/internal/dispatch"
	"github.com/accelcore/dispatch/internal/task"
	"github.com/accelcore/dispatch/internal/workload"
)

// DefaultStartDelay is how long after Run begins the first Task is
// scheduled to arrive, giving the rest of the core time to finish its own
// startup.
const DefaultStartDelay = 2 * time.Second

// Generator replays a workload.Plan into a Pending Queue.
type Generator struct {
	Plan       *workload.Plan
	Pending    *task.PendingQueue
	Service    *dispatch.ServiceState
	StartDelay time.Duration

	// CUChoices is the board-specific discrete set of compute-unit
	// widths a newly arrived Task may be assigned, sampled uniformly per
	// Task. The plan files themselves carry no compute-unit field. A nil
	// or empty slice degrades to every Task being single-CU.
	CUChoices []int
	// Rand is consulted for CU sampling; defaults to a source seeded at
	// construction time so repeated runs aren't bit-for-bit identical.
	// Tests can fix it for deterministic assignment.
	Rand *rand.Rand

	nextOrdinal int64
}

// New constructs a Generator that will assign ordinals starting at 1 and
// begin replay after DefaultStartDelay.
func New(plan *workload.Plan, pending *task.PendingQueue, svc *dispatch.ServiceState) *Generator {
	return &Generator{
		Plan:        plan,
		Pending:     pending,
		Service:     svc,
		StartDelay:  DefaultStartDelay,
		nextOrdinal: 1,
		Rand:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// pickCU samples one compute-unit width from CUChoices, defaulting to 1
// when the generator carries no choice set.
func (g *Generator) pickCU() int {
	if len(g.CUChoices) == 0 {
		return 1
	}
	return g.CUChoices[g.Rand.Intn(len(g.CUChoices))]
}

// Run replays the plan numWorkloads times. After emitting all of a
// workload's entries it marks the plan exhausted and waits on the
// workload_finished condition — raised by the Queue Manager once the
// in-flight set drains — before starting the next replay, so successive
// workloads never interleave. Returns when every workload has been
// replayed, the service stops, or ctx is done.
func (g *Generator) Run(ctx context.Context, numWorkloads int) error {
	for w := 0; w < numWorkloads; w++ {
		if err := g.replay(ctx); err != nil {
			return err
		}
		g.Service.SetPlanExhausted(true)
		if !g.Service.WaitWorkloadFinished() {
			return nil
		}
	}
	return nil
}

// replay emits every plan entry in order, sleeping between arrivals for
// the entry's inter-arrival delay measured from the previous commanded
// arrival, not from when the previous sleep happened to return — so a
// late wakeup does not push every subsequent arrival later by the same
// amount.
func (g *Generator) replay(ctx context.Context) error {
	base := time.Now().Add(g.StartDelay)
	cursor := base

	for _, entry := range g.Plan.Entries {
		cursor = cursor.Add(time.Duration(entry.InterArrivalMS * float32(time.Millisecond)))

		if err := sleepUntil(ctx, cursor); err != nil {
			return err
		}

		t := task.NewTask(g.nextOrdinal, entry.KernelID, g.pickCU(), entry.NumExecutions, entry.InterArrivalMS, cursor)
		g.nextOrdinal++

		slip := time.Since(cursor)
		if slip > time.Millisecond {
			logrus.Debugf("arrival: task %d enqueued %v late", t.OrdinalID, slip)
		}

		g.Pending.Enqueue(t)
		g.Service.IncPending()
	}
	return nil
}

func sleepUntil(ctx context.Context, t time.Time) error {
	d := time.Until(t)
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
