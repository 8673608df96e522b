package task

import (
	"bufio"
	"encoding/binary"
	"io"
	"sort"
	"sync"
	"time"
)

// HistoricalLog is the append-only store of completed (and in-flight, once
// submitted) Tasks, consumed for the final dump. It is
// the single owner of Task records once they leave the Pending Queue;
// Online-Event Queues below hold only non-owning references into it.
type HistoricalLog struct {
	mu    sync.Mutex
	tasks []*Task
}

// NewHistoricalLog creates an empty log.
func NewHistoricalLog() *HistoricalLog {
	return &HistoricalLog{}
}

// Append records t and returns the stable reference the Queue Manager hands
// to the Worker Pool.
func (h *HistoricalLog) Append(t *Task) *Task {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tasks = append(h.tasks, t)
	return t
}

// Len returns the number of recorded Tasks.
func (h *HistoricalLog) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.tasks)
}

// Snapshot returns the recorded Tasks in the order they were appended,
// i.e. dispatch order.
func (h *HistoricalLog) Snapshot() []*Task {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*Task, len(h.tasks))
	copy(out, h.tasks)
	return out
}

// taskRecord is the on-disk layout for one dumped Task: fixed-width,
// little-endian, one record concatenated after another.
type taskRecord struct {
	OrdinalID         int64
	KernelID          int32
	CU                int32
	NumExecutions     int32
	_                 int32 // padding to keep 8-byte alignment for the timestamps
	CommandedUnixNS   int64
	MeasuredArrivalNS int64
	MeasuredFinishNS  int64
	Passed            int32
	_                 int32
}

// WriteDump writes every recorded Task to w as a concatenation of
// fixed-size records, in arrival order. The log itself records dispatch
// order, which the model-assisted policies are free to permute, so the
// dump sorts by ordinal.
func (h *HistoricalLog) WriteDump(w io.Writer) error {
	h.mu.Lock()
	tasks := make([]*Task, len(h.tasks))
	copy(tasks, h.tasks)
	h.mu.Unlock()

	sort.Slice(tasks, func(i, j int) bool { return tasks[i].OrdinalID < tasks[j].OrdinalID })

	bw := bufio.NewWriter(w)
	for _, t := range tasks {
		rec := taskRecord{
			OrdinalID:         t.OrdinalID,
			KernelID:          int32(t.KernelID),
			CU:                int32(t.CU),
			NumExecutions:     t.NumExecutions,
			CommandedUnixNS:   t.CommandedArrival.UnixNano(),
			MeasuredArrivalNS: nanosOrSentinel(t.MeasuredArrival),
			MeasuredFinishNS:  nanosOrSentinel(t.MeasuredFinish),
		}
		if t.Passed {
			rec.Passed = 1
		}
		if err := binary.Write(bw, binary.LittleEndian, rec); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func nanosOrSentinel(t time.Time) int64 {
	if IsSentinel(t) {
		return -1
	}
	return t.UnixNano()
}
