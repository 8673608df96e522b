// Package dispatch implements the Queue Manager dispatch loop and the
// per-Task worker routine it hands to the Worker Pool. ServiceState is the
// Phase Controller: the single mutex and condition variable multiplexing
// pending_count, dispatch_possible, phase, and workload_finished — the
// only mutex held across a condition-variable wait anywhere in this
// dispatch path.
package dispatch

import "sync"

// Phase is the system-wide mode controlling whether dispatch proceeds.
type Phase int

const (
	PhaseExecute Phase = iota
	PhaseTrain
)

func (p Phase) String() string {
	if p == PhaseTrain {
		return "TRAIN"
	}
	return "EXECUTE"
}

// ServiceState holds every predicate the Queue Manager's Idle state waits
// on, guarded by one mutex.
type ServiceState struct {
	mu   sync.Mutex
	cond *sync.Cond

	pendingCount     int
	dispatchPossible bool
	phase            Phase
	planExhausted    bool
	workloadFinished bool
	stopped          bool
	trainGeneration  int
}

// ServiceEvent is what a WaitEvent call observed: work to dispatch, the
// current workload fully handed off, or shutdown.
type ServiceEvent int

const (
	EventStopped ServiceEvent = iota
	EventDispatch
	EventWorkloadDrained
)

// NewServiceState creates a ServiceState in phase EXECUTE with no pending
// work.
func NewServiceState() *ServiceState {
	s := &ServiceState{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// IncPending raises pending_count and the dispatch_possible hint, then
// wakes anyone waiting.
func (s *ServiceState) IncPending() {
	s.mu.Lock()
	s.pendingCount++
	s.dispatchPossible = true
	s.mu.Unlock()
	s.cond.Broadcast()
}

// DecPending lowers pending_count, waking anyone waiting for the queue to
// drain.
func (s *ServiceState) DecPending() {
	s.mu.Lock()
	s.pendingCount--
	s.mu.Unlock()
	s.cond.Broadcast()
}

// SetPlanExhausted marks (or clears, between workloads) the Arrival
// Generator's "no more entries in this plan" flag and wakes waiters.
func (s *ServiceState) SetPlanExhausted(v bool) {
	s.mu.Lock()
	s.planExhausted = v
	s.mu.Unlock()
	s.cond.Broadcast()
}

// RaiseDispatchPossible sets the monotone hint and wakes waiters, used by
// the Worker Pool on task completion.
func (s *ServiceState) RaiseDispatchPossible() {
	s.mu.Lock()
	s.dispatchPossible = true
	s.mu.Unlock()
	s.cond.Broadcast()
}

// SetPhase transitions the phase and wakes waiters. Every transition into
// TRAIN bumps trainGeneration, which the Queue Manager polls to know when
// a model-assisted policy's cached decisions must be invalidated: the CSA
// policy's cache is invalidated whenever the phase machine crosses into
// TRAIN.
func (s *ServiceState) SetPhase(p Phase) {
	s.mu.Lock()
	s.phase = p
	if p == PhaseTrain {
		s.trainGeneration++
	}
	s.mu.Unlock()
	s.cond.Broadcast()
}

// TrainGeneration returns how many times the phase has entered TRAIN so
// far.
func (s *ServiceState) TrainGeneration() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trainGeneration
}

// CurrentPhase returns the live phase.
func (s *ServiceState) CurrentPhase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// SetWorkloadFinished raises or clears the workload_finished condition.
// Raised by the Queue Manager's Terminal state after the in-flight set
// drains; consumed by the Arrival Generator before the next plan replay.
func (s *ServiceState) SetWorkloadFinished(v bool) {
	s.mu.Lock()
	s.workloadFinished = v
	s.mu.Unlock()
	s.cond.Broadcast()
}

// WaitWorkloadFinished blocks until the workload_finished condition is
// raised, consumes it, and returns true; returns false if the state was
// stopped while waiting.
func (s *ServiceState) WaitWorkloadFinished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for !s.workloadFinished && !s.stopped {
		s.cond.Wait()
	}
	if s.stopped {
		return false
	}
	s.workloadFinished = false
	return true
}

// WaitEvent blocks in the Idle state until one of the multiplexed
// predicates fires, in priority order: shutdown; the current plan
// exhausted with every queued Task handed off (the Terminal transition);
// or work dispatchable (pending_count > 0, dispatch_possible raised, a
// free slot, phase EXECUTE — on which dispatch_possible is consumed).
// freeSlots is invoked while holding the service mutex but itself
// acquires only the Slot Registry's own mutex momentarily, never held
// across this wait.
func (s *ServiceState) WaitEvent(freeSlots func() int) ServiceEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if s.stopped {
			return EventStopped
		}
		if s.planExhausted && s.pendingCount == 0 {
			return EventWorkloadDrained
		}
		if s.pendingCount > 0 && s.dispatchPossible && freeSlots() > 0 && s.phase == PhaseExecute {
			s.dispatchPossible = false
			return EventDispatch
		}
		s.cond.Wait()
	}
}

// Stop wakes every waiter so the Queue Manager and anyone waiting on
// workload completion can observe shutdown and exit.
func (s *ServiceState) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.cond.Broadcast()
}
