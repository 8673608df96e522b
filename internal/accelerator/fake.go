package accelerator

import (
	"context"
	"sync"
)

// fakeBuffer is the Buffer implementation used by Fake.
type fakeBuffer struct {
	data []byte
}

// Fake is an in-memory Device used by tests and by runs without real
// hardware. Execute copies the marshalled input port straight to the
// output port, so a kernel validated by byte equality against its own
// input always passes.
type Fake struct {
	mu     sync.Mutex
	loaded map[int]string
}

// NewFake creates a Device with every slot initially unloaded.
func NewFake() *Fake {
	return &Fake{loaded: make(map[int]string)}
}

func (f *Fake) Load(slot int, kernelName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loaded[slot] = kernelName
	return nil
}

func (f *Fake) Allocate(_ int, _ string, numPorts int) ([]Buffer, error) {
	bufs := make([]Buffer, numPorts)
	for i := range bufs {
		bufs[i] = &fakeBuffer{}
	}
	return bufs, nil
}

func (f *Fake) Marshal(buf Buffer, input []byte, numExecutions int32) error {
	fb := buf.(*fakeBuffer)
	fb.data = append([]byte(nil), input...)
	return nil
}

func (f *Fake) Execute(_ int, buffers []Buffer) error {
	if len(buffers) >= 2 {
		in, inOK := buffers[0].(*fakeBuffer)
		out, outOK := buffers[1].(*fakeBuffer)
		if inOK && outOK {
			out.data = append([]byte(nil), in.data...)
		}
	}
	return nil
}

func (f *Fake) Wait(ctx context.Context, _ int) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

func (f *Fake) Demarshal(buf Buffer) ([]byte, error) {
	fb := buf.(*fakeBuffer)
	return fb.data, nil
}

func (f *Fake) Free(_ Buffer) error { return nil }

func (f *Fake) Unload(slot int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.loaded, slot)
	return nil
}
