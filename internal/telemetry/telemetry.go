// Package telemetry describes the contract the Monitor uses to drive the
// monitoring hardware driver. The driver itself (power/trace sampling
// hardware) is an external collaborator out of scope for this module;
// this package fixes the interface plus a fake implementation for tests.
package telemetry

import "context"

// PowerSample is one opaque power reading with its elapsed cycle count.
type PowerSample struct {
	Value        float32
	ElapsedCycle uint64
}

// TraceSample is one opaque 64-bit trace event.
type TraceSample uint64

// Window is the raw per-tick telemetry payload the Monitor reads back after
// arming and waiting on the driver.
type Window struct {
	Power  []PowerSample
	Traces []TraceSample
}

// Driver is the contract the Monitor consumes from the monitoring hardware
// driver: start/wait/read/clean.
type Driver interface {
	// Start arms telemetry capture for the next window.
	Start(ctx context.Context) error
	// Wait blocks until the armed capture's completion interrupt fires.
	Wait(ctx context.Context) error
	// Read copies back the power and trace samples captured since Start.
	Read() (Window, error)
	// Reconfigure adjusts the telemetry reference voltage. The Monitor
	// calls it after a single failed Start and then retries Start once; no
	// count of power-sampling errors is kept. It does not invalidate the
	// in-progress window.
	Reconfigure() error
	// Clean releases driver resources at shutdown.
	Clean() error
}

// Fake is an in-memory Driver used by tests. It always reports a single
// zero-valued power sample and trace sample per window, and never errors.
type Fake struct {
	ReconfigureCount int
}

func NewFake() *Fake { return &Fake{} }

func (f *Fake) Start(ctx context.Context) error { return nil }
func (f *Fake) Wait(ctx context.Context) error  { return nil }
func (f *Fake) Read() (Window, error) {
	return Window{
		Power:  []PowerSample{{Value: 0, ElapsedCycle: 0}},
		Traces: []TraceSample{0},
	}, nil
}
func (f *Fake) Reconfigure() error { f.ReconfigureCount++; return nil }
func (f *Fake) Clean() error       { return nil }
