package task

import "sync"

// OnlineEventQueues holds one FIFO per slot of non-owning references to the
// Task currently executing there, so no window's classification pass ever
// copies Task data: the Historical Log is the single owner, and these
// queues hold plain *Task references into it.
//
// A Task occupying cu > 1 slots is enqueued into cu distinct per-slot
// queues simultaneously. Each slot queue has its own mutex, held only for
// enqueue/dequeue/re-enqueue.
type OnlineEventQueues struct {
	mus    []sync.Mutex
	queues [][]*Task
}

// NewOnlineEventQueues creates nSlots empty queues.
func NewOnlineEventQueues(nSlots int) *OnlineEventQueues {
	return &OnlineEventQueues{
		mus:    make([]sync.Mutex, nSlots),
		queues: make([][]*Task, nSlots),
	}
}

// Enqueue records t as currently executing in slot.
func (o *OnlineEventQueues) Enqueue(slot int, t *Task) {
	o.mus[slot].Lock()
	defer o.mus[slot].Unlock()
	o.queues[slot] = append(o.queues[slot], t)
}

// EnqueueOccupied enqueues t into every slot its SlotBitmap marks occupied,
// the fan-out form used at dispatch time.
func (o *OnlineEventQueues) EnqueueOccupied(t *Task) {
	for slot := range o.queues {
		if t.SlotBitmap&(1<<uint(slot)) != 0 {
			o.Enqueue(slot, t)
		}
	}
}

// Drain removes and returns every reference currently queued for slot, in
// FIFO order, leaving the queue empty. Used by the Monitor's window
// classification step, which re-enqueues whichever
// of these it decides to keep.
func (o *OnlineEventQueues) Drain(slot int) []*Task {
	o.mus[slot].Lock()
	defer o.mus[slot].Unlock()
	drained := o.queues[slot]
	o.queues[slot] = nil
	return drained
}

// Requeue appends kept, in order, back onto slot's queue. Must be called
// with a list produced by Drain on the same slot to preserve original
// relative order.
func (o *OnlineEventQueues) Requeue(slot int, kept []*Task) {
	if len(kept) == 0 {
		return
	}
	o.mus[slot].Lock()
	defer o.mus[slot].Unlock()
	o.queues[slot] = append(o.queues[slot], kept...)
}

// NumSlots returns how many per-slot queues exist.
func (o *OnlineEventQueues) NumSlots() int { return len(o.queues) }
