package monitor

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/accelcore/dispatch/internal/dispatch"
	"github.com/accelcore/dispatch/internal/observation"
	"github.com/accelcore/dispatch/internal/oracle"
	"github.com/accelcore/dispatch/internal/task"
	"github.com/accelcore/dispatch/internal/telemetry"
)

// pipeOracle wires an oracle.Client to an in-process server goroutine that
// always acks a handshake and answers every train command with a fixed
// idle-observation count, mirroring how client_test.go exercises the
// wire protocol without a real socket path.
func pipeOracle(t *testing.T, idleObs int32) *oracle.Client {
	t.Helper()
	trainClient, trainServer := net.Pipe()
	predClient, predServer := net.Pipe()
	t.Cleanup(func() {
		trainServer.Close()
		predServer.Close()
	})

	go func() {
		buf := make([]byte, 4)
		for {
			if _, err := trainServer.Read(buf); err != nil {
				return
			}
			reply := make([]byte, 4)
			reply[0] = byte(idleObs)
			reply[1] = byte(idleObs >> 8)
			reply[2] = byte(idleObs >> 16)
			reply[3] = byte(idleObs >> 24)
			if _, err := trainServer.Write(reply); err != nil {
				return
			}
		}
	}()

	return oracle.NewClient(trainClient, predClient, 1, 1)
}

func TestMonitor_SampleWindowEmitsRecordAndRequeuesInFlight(t *testing.T) {
	online := task.NewOnlineEventQueues(1)
	svc := dispatch.NewServiceState()
	oc := pipeOracle(t, 0)

	windowStart := time.Now().Add(-50 * time.Millisecond)

	// Finished inside the window: emitted once, not kept.
	finished := task.NewTask(1, 3, 1, 1, 0, time.Now())
	finished.MeasuredArrival = windowStart.Add(-20 * time.Millisecond)
	finished.MeasuredFinish = windowStart.Add(10 * time.Millisecond)
	online.Enqueue(0, finished)

	// Still running at window end: emitted and kept for the next window.
	running := task.NewTask(2, 4, 1, 1, 0, time.Now())
	running.MeasuredArrival = windowStart.Add(5 * time.Millisecond)
	online.Enqueue(0, running)

	// Finished before the window even opened: neither emitted nor kept.
	stale := task.NewTask(3, 5, 1, 1, 0, time.Now())
	stale.MeasuredArrival = windowStart.Add(-30 * time.Millisecond)
	stale.MeasuredFinish = windowStart.Add(-10 * time.Millisecond)
	online.Enqueue(0, stale)

	var sink bytes.Buffer
	cfg := Config{
		TickPeriod:              10 * time.Millisecond,
		MeasurementsPerTraining: 100,
		ObservationsPerWindow:   1.72,
		NumSlots:                1,
	}
	m := New(cfg, telemetry.NewFake(), online, svc, oc, &sink, func() observation.CPUUsage { return observation.CPUUsage{} })

	if err := m.sampleWindow(context.Background(), windowStart); err != nil {
		t.Fatalf("sampleWindow: %v", err)
	}

	rec, err := observation.Decode(&sink)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if rec.NumSlots() != 1 || len(rec.Slots[0]) != 2 {
		t.Fatalf("unexpected record shape: %+v", rec)
	}
	if rec.Slots[0][0].KernelID != 3 || rec.Slots[0][1].KernelID != 4 {
		t.Fatalf("unexpected timeline kernels: %+v", rec.Slots[0])
	}

	remaining := online.Drain(0)
	if len(remaining) != 1 || remaining[0] != running {
		t.Fatalf("expected only the still-running Task requeued, got %v", remaining)
	}
}

func TestMonitor_LongRunningTaskEmittedAcrossConsecutiveWindows(t *testing.T) {
	online := task.NewOnlineEventQueues(1)
	svc := dispatch.NewServiceState()
	oc := pipeOracle(t, 0)

	long := task.NewTask(1, 6, 1, 1, 0, time.Now())
	long.MeasuredArrival = time.Now().Add(-time.Second)
	online.Enqueue(0, long)

	var sink bytes.Buffer
	cfg := Config{
		TickPeriod:              10 * time.Millisecond,
		MeasurementsPerTraining: 100,
		ObservationsPerWindow:   1.72,
		NumSlots:                1,
	}
	m := New(cfg, telemetry.NewFake(), online, svc, oc, &sink, func() observation.CPUUsage { return observation.CPUUsage{} })

	for window := 0; window < 2; window++ {
		if err := m.sampleWindow(context.Background(), time.Now().Add(-time.Millisecond)); err != nil {
			t.Fatalf("sampleWindow #%d: %v", window, err)
		}
		rec, err := observation.Decode(&sink)
		if err != nil {
			t.Fatalf("Decode #%d: %v", window, err)
		}
		if len(rec.Slots[0]) != 1 || rec.Slots[0][0].KernelID != 6 {
			t.Fatalf("window %d: expected the running task emitted, got %+v", window, rec.Slots[0])
		}
	}

	remaining := online.Drain(0)
	if len(remaining) != 1 || remaining[0] != long {
		t.Fatal("expected the still-running task kept in its slot queue after both windows")
	}
}

func TestMonitor_TrainingPhaseTogglesPhaseAndReturnsToExecute(t *testing.T) {
	online := task.NewOnlineEventQueues(1)
	svc := dispatch.NewServiceState()
	oc := pipeOracle(t, 5)

	var sink bytes.Buffer
	cfg := Config{MeasurementsPerTraining: 1, ObservationsPerWindow: 1.72, NumSlots: 1}
	m := New(cfg, telemetry.NewFake(), online, svc, oc, &sink, func() observation.CPUUsage { return observation.CPUUsage{} })

	idleObs, err := m.runTrainingPhase()
	if err != nil {
		t.Fatalf("runTrainingPhase: %v", err)
	}
	if idleObs != 5 {
		t.Fatalf("idleObs = %d, want 5", idleObs)
	}
	if svc.CurrentPhase() != dispatch.PhaseExecute {
		t.Fatalf("phase = %v, want EXECUTE after training completes", svc.CurrentPhase())
	}
}

func TestIdleObservationsToDuration(t *testing.T) {
	d := idleObservationsToDuration(172, 1.72, 10*time.Millisecond)
	if d != time.Second {
		t.Fatalf("d = %v, want 1s", d)
	}
	if got := idleObservationsToDuration(0, 1.72, 10*time.Millisecond); got != 0 {
		t.Fatalf("zero idleObs should give zero duration, got %v", got)
	}
}
