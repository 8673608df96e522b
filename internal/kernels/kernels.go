// Package kernels names the fixed set of accelerator kernel bodies the core
// dispatches by identifier. The kernel bodies themselves (the actual
// BFS/SpMV/KMP/kNN/NW/Merge/Stencil/Strided-FFT/AES/Queue-BFS compute
// routines) are out of scope for this module — this package
// only supplies the stable tag table and the reference-dataset contract the
// Worker Pool invokes by name.
package kernels

import "github.com/accelcore/dispatch/internal/task"

// Kernel tags, matching the MachSuite-derived accelerator bodies.
const (
	BFS task.KernelID = iota
	SpMV
	KMP
	KNN
	NW
	Merge
	Stencil2D
	Stencil3D
	StridedFFT
	AES
	QueueBFS
)

// All enumerates every known kernel tag in ascending identifier order.
var All = []task.KernelID{BFS, SpMV, KMP, KNN, NW, Merge, Stencil2D, Stencil3D, StridedFFT, AES, QueueBFS}

// names gives each tag a human-readable label, used for logging and for
// the accelerator.Device.Load bitstream name.
var names = map[task.KernelID]string{
	BFS:        "bfs",
	SpMV:       "spmv",
	KMP:        "kmp",
	KNN:        "knn",
	NW:         "nw",
	Merge:      "merge",
	Stencil2D:  "stencil2d",
	Stencil3D:  "stencil3d",
	StridedFFT: "strided",
	AES:        "aes",
	QueueBFS:   "queue_bfs",
}

// Name returns the bitstream/logging name for a kernel tag, or "unknown"
// if kid is not one of the known tags.
func Name(kid task.KernelID) string {
	if n, ok := names[kid]; ok {
		return n
	}
	return "unknown"
}

// NumArgPorts is how many input/output buffer ports a kernel invocation
// allocates, one per argument port. All kernels in
// this dataset use a fixed input/output pair.
const NumArgPorts = 2

// ReferenceDataset is the per-kernel preloaded input/expected-output pair a
// worker deep-copies before dispatch and validates
// against after demarshal. The actual byte layouts
// are produced by the out-of-scope kernel input/reference/check file
// readers; this struct only fixes the shape the core consumes.
type ReferenceDataset struct {
	Input     []byte
	Reference []byte
}

// Registry supplies the ReferenceDataset for each kernel tag and the
// pass/fail validation predicate. A real deployment backs this with the
// external binary dataset readers; FakeRegistry below backs
// it with synthetic data for tests.
type Registry interface {
	Dataset(kid task.KernelID) (ReferenceDataset, error)
	// Validate reports whether output matches the expected reference for
	// kid.
	Validate(kid task.KernelID, output []byte) bool
}

// FakeRegistry returns a fixed, identical input/reference pair for every
// kernel and validates by exact byte equality, i.e. a worker that faithfully
// echoes its input always passes. Used by tests and by Fake accelerator
// runs.
type FakeRegistry struct {
	Payload []byte
}

// NewFakeRegistry creates a registry whose every kernel shares payload as
// both input and reference.
func NewFakeRegistry(payload []byte) *FakeRegistry {
	if payload == nil {
		payload = []byte{0xAA, 0xBB, 0xCC, 0xDD}
	}
	return &FakeRegistry{Payload: payload}
}

func (r *FakeRegistry) Dataset(kid task.KernelID) (ReferenceDataset, error) {
	return ReferenceDataset{
		Input:     append([]byte(nil), r.Payload...),
		Reference: append([]byte(nil), r.Payload...),
	}, nil
}

func (r *FakeRegistry) Validate(_ task.KernelID, output []byte) bool {
	if len(output) != len(r.Payload) {
		return false
	}
	for i := range output {
		if output[i] != r.Payload[i] {
			return false
		}
	}
	return true
}
