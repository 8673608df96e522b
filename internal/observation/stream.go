package observation

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/accelcore/dispatch/internal/task"
)

// wireTimespec is the on-wire layout of a timespec: seconds and
// nanoseconds, both little-endian int64.
type wireTimespec struct {
	Sec  int64
	Nsec int64
}

func toWireTime(t time.Time) wireTimespec {
	return wireTimespec{Sec: t.Unix(), Nsec: int64(t.Nanosecond())}
}

func fromWireTime(w wireTimespec) time.Time {
	return time.Unix(w.Sec, w.Nsec).UTC()
}

// recordMarkOpen/recordMarkClose are the i32 sentinels wrapping each
// slot's kernel-event list: 1 before each event, 0 terminating the slot.
const (
	recordMarkOpen  int32 = 1
	recordMarkClose int32 = 0
)

// Encode writes r to w as: CPU usage, window bounds, power sample count
// and samples, trace sample count and samples, slot count, then for each
// slot a run of {record_mark=1, kernel_event} pairs terminated by
// record_mark=0.
func Encode(w io.Writer, r Record) error {
	bw := bufio.NewWriter(w)

	for _, v := range [3]float32{r.CPU.User, r.CPU.Kernel, r.CPU.Idle} {
		if err := binary.Write(bw, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	if err := binary.Write(bw, binary.LittleEndian, toWireTime(r.WindowStart)); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, toWireTime(r.WindowEnd)); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, int32(len(r.Power))); err != nil {
		return err
	}
	for _, p := range r.Power {
		if err := binary.Write(bw, binary.LittleEndian, p); err != nil {
			return err
		}
	}
	if err := binary.Write(bw, binary.LittleEndian, int32(len(r.Traces))); err != nil {
		return err
	}
	for _, tr := range r.Traces {
		if err := binary.Write(bw, binary.LittleEndian, uint64(tr)); err != nil {
			return err
		}
	}

	if err := binary.Write(bw, binary.LittleEndian, int32(len(r.Slots))); err != nil {
		return err
	}

	for _, timeline := range r.Slots {
		for _, ev := range timeline {
			if err := binary.Write(bw, binary.LittleEndian, recordMarkOpen); err != nil {
				return err
			}
			if err := binary.Write(bw, binary.LittleEndian, int32(ev.KernelID)); err != nil {
				return err
			}
			if err := binary.Write(bw, binary.LittleEndian, toWireTime(ev.Arrival)); err != nil {
				return err
			}
			if err := binary.Write(bw, binary.LittleEndian, toWireTime(ev.Finish)); err != nil {
				return err
			}
		}
		if err := binary.Write(bw, binary.LittleEndian, recordMarkClose); err != nil {
			return err
		}
	}

	return bw.Flush()
}

// Decode reads one Record back from r, the inverse of Encode.
func Decode(r io.Reader) (Record, error) {
	var rec Record
	var user, kernel, idle float32
	for _, p := range []*float32{&user, &kernel, &idle} {
		if err := binary.Read(r, binary.LittleEndian, p); err != nil {
			return Record{}, err
		}
	}
	rec.CPU = CPUUsage{User: user, Kernel: kernel, Idle: idle}

	var start, end wireTimespec
	if err := binary.Read(r, binary.LittleEndian, &start); err != nil {
		return Record{}, err
	}
	if err := binary.Read(r, binary.LittleEndian, &end); err != nil {
		return Record{}, err
	}
	rec.WindowStart = fromWireTime(start)
	rec.WindowEnd = fromWireTime(end)

	var nPower int32
	if err := binary.Read(r, binary.LittleEndian, &nPower); err != nil {
		return Record{}, err
	}
	if nPower < 0 {
		return Record{}, fmt.Errorf("observation: negative power sample count %d", nPower)
	}
	rec.Power = make([]PowerSample, nPower)
	for i := range rec.Power {
		if err := binary.Read(r, binary.LittleEndian, &rec.Power[i]); err != nil {
			return Record{}, err
		}
	}

	var nTraces int32
	if err := binary.Read(r, binary.LittleEndian, &nTraces); err != nil {
		return Record{}, err
	}
	if nTraces < 0 {
		return Record{}, fmt.Errorf("observation: negative trace sample count %d", nTraces)
	}
	rec.Traces = make([]TraceSample, nTraces)
	for i := range rec.Traces {
		var v uint64
		if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
			return Record{}, err
		}
		rec.Traces[i] = TraceSample(v)
	}

	var nSlots int32
	if err := binary.Read(r, binary.LittleEndian, &nSlots); err != nil {
		return Record{}, err
	}
	if nSlots < 0 {
		return Record{}, fmt.Errorf("observation: negative slot count %d", nSlots)
	}
	rec.Slots = make([]SlotTimeline, nSlots)

	for slot := 0; slot < int(nSlots); slot++ {
		var timeline SlotTimeline
		for {
			var mark int32
			if err := binary.Read(r, binary.LittleEndian, &mark); err != nil {
				return Record{}, err
			}
			if mark == recordMarkClose {
				break
			}
			var kid int32
			if err := binary.Read(r, binary.LittleEndian, &kid); err != nil {
				return Record{}, err
			}
			var arr, fin wireTimespec
			if err := binary.Read(r, binary.LittleEndian, &arr); err != nil {
				return Record{}, err
			}
			if err := binary.Read(r, binary.LittleEndian, &fin); err != nil {
				return Record{}, err
			}
			timeline = append(timeline, KernelEvent{
				KernelID: task.KernelID(kid),
				Arrival:  fromWireTime(arr),
				Finish:   fromWireTime(fin),
			})
		}
		rec.Slots[slot] = timeline
	}

	return rec, nil
}
