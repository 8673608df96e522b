// Package monitor implements the Monitor Thread and its embedded Phase
// Controller: a periodic loop that snapshots CPU usage, arms and reads
// back the telemetry driver, classifies the per-slot Online-Event Queues
// into a window observation record, and periodically hands a batch of
// those observations to the Oracle for training, flipping the shared
// ServiceState's phase to TRAIN for the duration.
package monitor

import (
	"context"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/accelcore/dispatch/internal/dispatch"
	"github.com/accelcore/dispatch/internal/observation"
	"github.com/accelcore/dispatch/internal/oracle"
	"github.com/accelcore/dispatch/internal/task"
	"github.com/accelcore/dispatch/internal/telemetry"
)

// Config fixes the Monitor's tick cadence and training schedule.
type Config struct {
	// TickPeriod is the nominal interval between window boundaries.
	TickPeriod time.Duration
	// MeasurementsPerTraining is how many windows accumulate before the
	// Monitor hands a training batch to the Oracle and flips to TRAIN.
	MeasurementsPerTraining int
	// ObservationsPerWindow is the empirical average count of
	// observations the Oracle consumes per idle-training window; it
	// scales the idle-observation count the Oracle returns into a sleep
	// duration while resyncing the tick schedule. Measured against the
	// reference board at roughly 1.72 and left configurable since it is
	// board-dependent.
	ObservationsPerWindow float64
	NumSlots              int
}

// CPUSampler returns the current CPU usage snapshot. Implemented by the
// host OS's own accounting in a real deployment; tests supply a fixed
// value.
type CPUSampler func() observation.CPUUsage

// Monitor is the periodic window-sampling loop.
type Monitor struct {
	cfg    Config
	driver telemetry.Driver
	online *task.OnlineEventQueues
	svc    *dispatch.ServiceState
	oracle *oracle.Client
	sink   io.Writer
	cpu    CPUSampler

	measurements int
}

// New constructs a Monitor. sink receives the wire-encoded Record for
// every window, in order.
func New(cfg Config, driver telemetry.Driver, online *task.OnlineEventQueues, svc *dispatch.ServiceState, oc *oracle.Client, sink io.Writer, cpu CPUSampler) *Monitor {
	return &Monitor{
		cfg:    cfg,
		driver: driver,
		online: online,
		svc:    svc,
		oracle: oc,
		sink:   sink,
		cpu:    cpu,
	}
}

// Run drives the window loop on an absolute wall-clock schedule until ctx
// is done. It returns the first fatal error encountered; transient
// telemetry errors are handled internally via Reconfigure and logged.
func (m *Monitor) Run(ctx context.Context) error {
	defer func() {
		if err := m.driver.Clean(); err != nil {
			logrus.Warnf("monitor: telemetry clean: %v", err)
		}
	}()

	start := time.Now()
	tick := 0

	for {
		nextTick := start.Add(time.Duration(tick) * m.cfg.TickPeriod)
		if err := sleepUntil(ctx, nextTick); err != nil {
			return err
		}
		tick++

		windowStart := time.Now()
		if err := m.sampleWindow(ctx, windowStart); err != nil {
			return err
		}

		m.measurements++
		if m.measurements >= m.cfg.MeasurementsPerTraining {
			idleObs, err := m.runTrainingPhase()
			if err != nil {
				return err
			}
			m.measurements = 0
			idleSleep := idleObservationsToDuration(idleObs, m.cfg.ObservationsPerWindow, m.cfg.TickPeriod)
			if idleSleep > 0 {
				select {
				case <-time.After(idleSleep):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			// Resync the tick schedule off real time rather than letting
			// drift accumulate across the idle sleep.
			start = time.Now()
			tick = 0
		}
	}
}

// idleObservationsToDuration converts an Oracle-advised idle-observation
// count into a sleep duration using the empirical observations-per-window
// factor.
func idleObservationsToDuration(idleObs int32, obsPerWindow float64, period time.Duration) time.Duration {
	if idleObs <= 0 || obsPerWindow <= 0 {
		return 0
	}
	windows := float64(idleObs) / obsPerWindow
	return time.Duration(windows * float64(period))
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

// sampleWindow arms telemetry, waits for the capture interrupt, reads it
// back, classifies the Online-Event Queues, and emits the resulting
// Record to the sink.
func (m *Monitor) sampleWindow(ctx context.Context, windowStart time.Time) error {
	if err := m.armWithRetry(ctx); err != nil {
		return err
	}
	if err := m.driver.Wait(ctx); err != nil {
		return err
	}
	win, err := m.driver.Read()
	if err != nil {
		return err
	}

	windowEnd := time.Now()
	rec := observation.Record{
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		CPU:         m.cpu(),
		Slots:       make([]observation.SlotTimeline, m.cfg.NumSlots),
	}
	for _, p := range win.Power {
		rec.Power = append(rec.Power, observation.PowerSample{Value: p.Value, ElapsedCycle: p.ElapsedCycle})
	}
	for _, tr := range win.Traces {
		rec.Traces = append(rec.Traces, observation.TraceSample(tr))
	}

	for slot := 0; slot < m.cfg.NumSlots; slot++ {
		rec.Slots[slot] = m.classifySlot(slot, windowStart, windowEnd)
	}

	if err := observation.Encode(m.sink, rec); err != nil {
		logrus.Warnf("monitor: encode observation record: %v", err)
	}
	return nil
}

// classifySlot drains slot's Online-Event Queue and applies the overlap
// rule to each referenced Task, with the not-yet-measured sentinel
// ordering past every real timestamp:
//   - emit into this window's timeline if the Task's execution interval
//     overlaps the window (finish after window start, arrival before
//     window end);
//   - keep in the slot queue if the Task has not finished by window end,
//     or has not started at all (arrival and finish both still sentinel).
//
// Kept Tasks are re-enqueued in their original order.
func (m *Monitor) classifySlot(slot int, windowStart, windowEnd time.Time) observation.SlotTimeline {
	drained := m.online.Drain(slot)
	if len(drained) == 0 {
		return nil
	}

	var timeline observation.SlotTimeline
	var keep []*task.Task
	for _, t := range drained {
		arrival, finish := t.MeasuredArrival, t.MeasuredFinish
		if finish.After(windowStart) && arrival.Before(windowEnd) {
			timeline = append(timeline, observation.KernelEvent{
				KernelID: t.KernelID,
				Arrival:  arrival,
				Finish:   finish,
			})
		}
		if finish.After(windowEnd) || arrival.Equal(finish) {
			keep = append(keep, t)
		}
	}
	m.online.Requeue(slot, keep)
	return timeline
}

// armWithRetry arms the telemetry driver, reconfiguring and retrying once
// on a transient power-sampling error before giving up.
func (m *Monitor) armWithRetry(ctx context.Context) error {
	err := m.driver.Start(ctx)
	if err == nil {
		return nil
	}
	logrus.Warnf("monitor: telemetry arm failed, reconfiguring: %v", err)
	if rErr := m.driver.Reconfigure(); rErr != nil {
		return rErr
	}
	return m.driver.Start(ctx)
}

// runTrainingPhase flips the phase to TRAIN, hands the accumulated window
// count to the Oracle for a train-or-test pass of its own choosing, and
// flips back to EXECUTE. It returns the Oracle's advised idle-observation
// count.
func (m *Monitor) runTrainingPhase() (int32, error) {
	m.svc.SetPhase(dispatch.PhaseTrain)
	defer m.svc.SetPhase(dispatch.PhaseExecute)

	idleObs, err := m.oracle.Operate(uint32(m.cfg.MeasurementsPerTraining))
	if err != nil {
		return 0, err
	}
	return idleObs, nil
}
