package resilience_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/felixgeelhaar/agent-phoenix/domain/tool"
	"github.com/felixgeelhaar/agent-phoenix/infrastructure/executor"
	"github.com/felixgeelhaar/agent-phoenix/infrastructure/resilience"
)

type fakeExecutor struct {
	calls  atomic.Int32
	active atomic.Int32
	peak   atomic.Int32
	fail   int32
	delay  time.Duration
}

func (f *fakeExecutor) Execute(ctx context.Context, req executor.Request) (tool.Result, error) {
	n := f.calls.Add(1)
	cur := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		p := f.peak.Load()
		if cur <= p || f.peak.CompareAndSwap(p, cur) {
			break
		}
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return tool.Result{}, ctx.Err()
		}
	}
	if n <= f.fail {
		return tool.Result{}, tool.ErrToolExecution
	}
	return tool.TextResult("ok"), nil
}

func req(name string, idempotent bool) executor.Request {
	d := tool.Descriptor{Name: name}
	d.Metadata.Annotations.Idempotent = idempotent
	return executor.Request{Descriptor: d}
}

func TestExecutor_RetriesIdempotentOnly(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("idempotent", func(t *testing.T) {
		t.Parallel()
		f := &fakeExecutor{fail: 2}
		e := resilience.NewExecutor(f, resilience.WithRetryAttempts(3), resilience.WithRetryDelay(time.Millisecond))
		res, err := e.Execute(ctx, req("a", true))
		if err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		if res.Text() != "ok" || f.calls.Load() != 3 {
			t.Errorf("result = %q after %d calls", res.Text(), f.calls.Load())
		}
	})

	t.Run("not idempotent", func(t *testing.T) {
		t.Parallel()
		f := &fakeExecutor{fail: 2}
		e := resilience.NewExecutor(f, resilience.WithRetryAttempts(3), resilience.WithRetryDelay(time.Millisecond))
		if _, err := e.Execute(ctx, req("a", false)); !errors.Is(err, tool.ErrToolExecution) {
			t.Fatalf("Execute() error = %v, want ErrToolExecution", err)
		}
		if f.calls.Load() != 1 {
			t.Errorf("calls = %d, want 1", f.calls.Load())
		}
	})
}

func TestExecutor_Timeout(t *testing.T) {
	t.Parallel()

	f := &fakeExecutor{delay: time.Second}
	e := resilience.NewExecutor(f, resilience.WithTimeout(50*time.Millisecond))
	start := time.Now()
	if _, err := e.Execute(context.Background(), req("slow", false)); err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Errorf("timeout not applied, took %v", time.Since(start))
	}
}

func TestExecutor_BoundsConcurrency(t *testing.T) {
	t.Parallel()

	f := &fakeExecutor{delay: 20 * time.Millisecond}
	e := resilience.NewExecutor(f, resilience.WithMaxConcurrent(2))

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = e.Execute(context.Background(), req("busy", false))
		}()
	}
	wg.Wait()

	if p := f.peak.Load(); p > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", p)
	}
}

func TestExecutor_BreakerIsPerTool(t *testing.T) {
	t.Parallel()

	f := &fakeExecutor{fail: 1000}
	e := resilience.NewExecutor(f, resilience.WithCircuitBreakerThreshold(2))
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, _ = e.Execute(ctx, req("broken", false))
	}
	if e.CircuitBreakerState("broken") == e.CircuitBreakerState("healthy") {
		t.Error("failures of one tool should not affect another tool's breaker")
	}
}
