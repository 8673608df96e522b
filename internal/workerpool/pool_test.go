package workerpool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestPool_DispatchRunsJob(t *testing.T) {
	p := New(2)
	defer p.Shutdown()

	var ran int32
	done := make(chan struct{})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := p.Dispatch(ctx, func() {
		atomic.StoreInt32(&ran, 1)
		close(done)
	}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("job never ran")
	}
	if atomic.LoadInt32(&ran) != 1 {
		t.Fatal("job did not set ran flag")
	}
}

func TestPool_IsIdleAllAndWaitIdle(t *testing.T) {
	p := New(1)
	defer p.Shutdown()

	release := make(chan struct{})
	ctx := context.Background()
	if err := p.Dispatch(ctx, func() { <-release }); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	// The hand-off ack is sent only after the worker marks itself busy,
	// so a returned Dispatch means the pool is observably not idle.
	if p.IsIdleAll() {
		t.Fatal("expected pool to be busy while job is blocked")
	}

	close(release)

	waitCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.WaitIdle(waitCtx); err != nil {
		t.Fatalf("WaitIdle: %v", err)
	}
	if !p.IsIdleAll() {
		t.Fatal("expected pool idle after job released")
	}
}

func TestPool_DispatchConcurrentUsesDistinctWorkers(t *testing.T) {
	p := New(3)
	defer p.Shutdown()

	started := make(chan struct{}, 3)
	release := make(chan struct{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := p.Dispatch(ctx, func() {
			started <- struct{}{}
			<-release
		}); err != nil {
			t.Fatalf("Dispatch #%d: %v", i, err)
		}
	}

	for i := 0; i < 3; i++ {
		select {
		case <-started:
		case <-time.After(time.Second):
			t.Fatal("not all 3 concurrent jobs started")
		}
	}
	close(release)
}
