package task

import (
	"errors"
	"sync"
)

// ErrNotFound is returned by the selective dequeue operations when no
// element in the queue satisfies the requested predicate.
var ErrNotFound = errors.New("task: not found")

// PendingQueue is a FIFO of Tasks awaiting dispatch, backed by a slice:
// enqueue is O(1) amortized, the selective scans are O(size). One mutex
// guards every operation; ordering within the queue is strict arrival
// order, and policies reorder only at dispatch, never by reinsertion.
type PendingQueue struct {
	mu    sync.Mutex
	tasks []*Task
}

// NewPendingQueue creates an empty queue.
func NewPendingQueue() *PendingQueue {
	return &PendingQueue{}
}

// Enqueue appends t to the tail of the queue.
func (q *PendingQueue) Enqueue(t *Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, t)
}

// Len returns the current queue size.
func (q *PendingQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// IsEmpty reports whether the queue holds no Tasks.
func (q *PendingQueue) IsEmpty() bool {
	return q.Len() == 0
}

// Clear removes every Task from the queue, as at the end of a workload.
func (q *PendingQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = nil
}

// PeekAt returns a non-destructive copy of the Task pointer at position
// pos (head == 0), used by scheduling policies to evaluate candidates
// without removing them. Returns ErrNotFound if pos is out of range.
func (q *PendingQueue) PeekAt(pos int) (*Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if pos < 0 || pos >= len(q.tasks) {
		return nil, ErrNotFound
	}
	return q.tasks[pos], nil
}

// PeekExecutable returns up to k Tasks (in queue order) whose CU fits
// within freeSlots and whose kernel has no in-flight duplicate, for use by
// the model-assisted policies' candidate scan. Each result
// also carries its queue position so the caller can DequeueAt it later.
type Candidate struct {
	Task *Task
	Pos  int
}

func (q *PendingQueue) PeekExecutable(k, freeSlots int, dup map[KernelID]int) []Candidate {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Candidate, 0, k)
	for i, t := range q.tasks {
		if len(out) == k {
			break
		}
		if t.CU <= freeSlots && dup[t.KernelID] == 0 {
			out = append(out, Candidate{Task: t, Pos: i})
		}
	}
	return out
}

// DequeueFirstExecutable removes and returns the first Task whose CU is at
// most freeSlots and whose kernel identifier has zero in-flight duplicates.
// Scans from the head; returns ErrNotFound on an empty queue and
// ErrNotFound again after a full scan finds nothing eligible.
func (q *PendingQueue) DequeueFirstExecutable(freeSlots int, dup map[KernelID]int) (*Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return nil, ErrNotFound
	}
	for i, t := range q.tasks {
		if t.CU <= freeSlots && dup[t.KernelID] == 0 {
			q.tasks = append(q.tasks[:i:i], q.tasks[i+1:]...)
			return t, nil
		}
	}
	return nil, ErrNotFound
}

// DequeueAt removes and returns the Task at position pos (head == 0), used
// by the advanced scheduling policies to pull a non-head selection.
// Returns ErrNotFound if pos is out of range.
func (q *PendingQueue) DequeueAt(pos int) (*Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if pos < 0 || pos >= len(q.tasks) {
		return nil, ErrNotFound
	}
	t := q.tasks[pos]
	q.tasks = append(q.tasks[:pos:pos], q.tasks[pos+1:]...)
	return t, nil
}
