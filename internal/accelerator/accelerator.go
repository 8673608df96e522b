// Package accelerator describes the contract the dispatch core uses to
// drive the low-level accelerator control library. The library itself
// (bitstream load/allocate/execute/wait/free/unload) is an external
// collaborator out of scope for this module; this package
// only fixes the interface the Worker Pool calls against, plus a fake
// implementation for tests.
package accelerator

import (
	"context"
	"fmt"
)

// Buffer is an opaque handle to one allocated input/output argument port.
type Buffer interface{}

// Device is the contract the core consumes from the accelerator control
// library for a single reconfiguration slot. Every method corresponds to
// one step of the per-task worker routine: load, allocate, marshal,
// execute, wait, demarshal, free, unload.
type Device interface {
	// Load installs the named kernel's bitstream into slot.
	Load(slot int, kernelName string) error
	// Allocate reserves one buffer per argument port for kernelName and
	// returns the handles in port order.
	Allocate(slot int, kernelName string, numPorts int) ([]Buffer, error)
	// Marshal writes the byte-for-byte input representation into buf,
	// repeated once per replicated execution.
	Marshal(buf Buffer, input []byte, numExecutions int32) error
	// Execute starts the kernel on slot using the allocated buffers.
	Execute(slot int, buffers []Buffer) error
	// Wait blocks until the kernel started by Execute completes, or ctx
	// is done.
	Wait(ctx context.Context, slot int) error
	// Demarshal reads the output representation out of buf.
	Demarshal(buf Buffer) ([]byte, error)
	// Free releases a previously allocated buffer.
	Free(buf Buffer) error
	// Unload removes the bitstream from slot.
	Unload(slot int) error
}

// FatalError wraps an accelerator failure with the ordinal id of the Task
// that triggered it, so the failure can be traced back to a specific
// submission.
type FatalError struct {
	OrdinalID int64
	Stage     string
	Err       error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("accelerator: task %d failed at %s: %v", e.OrdinalID, e.Stage, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }
