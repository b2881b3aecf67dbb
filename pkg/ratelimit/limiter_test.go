package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestLimiter(maxConcurrent int, delay time.Duration) *Limiter {
	return New(Config{MaxConcurrent: maxConcurrent, Delay: delay}, zerolog.Nop())
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.MaxConcurrent != 2 {
		t.Errorf("MaxConcurrent = %d, want 2", cfg.MaxConcurrent)
	}
	if cfg.Delay != 500*time.Millisecond {
		t.Errorf("Delay = %v, want 500ms", cfg.Delay)
	}
}

func TestNew_Defaults(t *testing.T) {
	l := New(Config{MaxConcurrent: 0, Delay: -time.Second}, zerolog.Nop())

	if l.maxConcurrent != DefaultMaxConcurrent {
		t.Errorf("maxConcurrent = %d, want %d", l.maxConcurrent, DefaultMaxConcurrent)
	}
	if l.delay != 0 {
		t.Errorf("delay = %v, want 0", l.delay)
	}
}

func TestDo_PassesThroughResult(t *testing.T) {
	l := newTestLimiter(2, 0)

	got, err := Do(context.Background(), l, func(context.Context) (string, error) {
		return "C17168", nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if got != "C17168" {
		t.Errorf("Do() = %q, want %q", got, "C17168")
	}
}

func TestDo_PassesThroughError(t *testing.T) {
	l := newTestLimiter(2, 0)
	boom := errors.New("upstream exploded")

	_, err := Do(context.Background(), l, func(context.Context) (int, error) {
		return 0, boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("Do() error = %v, want %v", err, boom)
	}
}

func TestSubmit_ConcurrencyCap(t *testing.T) {
	const (
		tasks   = 5
		opDur   = 40 * time.Millisecond
		delay   = 30 * time.Millisecond
		maxConc = 2
	)
	l := newTestLimiter(maxConc, delay)

	var inFlight, peak int32
	task := func(context.Context) (any, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(opDur)
		atomic.AddInt32(&inFlight, -1)
		return nil, nil
	}

	start := time.Now()
	results := make([]<-chan Result, tasks)
	for i := range results {
		results[i] = l.Submit(context.Background(), task)
	}
	for _, ch := range results {
		<-ch
	}
	elapsed := time.Since(start)

	if peak > maxConc {
		t.Errorf("peak in-flight = %d, want <= %d", peak, maxConc)
	}

	// One slot runs three of the five tasks with two pacing delays between them.
	minElapsed := 3*opDur + 2*delay
	if elapsed < minElapsed {
		t.Errorf("elapsed = %v, want >= %v", elapsed, minElapsed)
	}
}

func TestSubmit_FIFOAdmission(t *testing.T) {
	l := newTestLimiter(1, 0)

	var mu sync.Mutex
	var order []int
	release := make(chan struct{})

	first := l.Submit(context.Background(), func(context.Context) (any, error) {
		<-release
		return nil, nil
	})

	var chans []<-chan Result
	for i := 0; i < 5; i++ {
		i := i
		chans = append(chans, l.Submit(context.Background(), func(context.Context) (any, error) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil, nil
		}))
	}

	close(release)
	<-first
	for _, ch := range chans {
		<-ch
	}

	for i, v := range order {
		if v != i {
			t.Fatalf("admission order = %v, want ascending", order)
		}
	}
}

func TestSubmit_DelayAfterCompletion(t *testing.T) {
	const delay = 60 * time.Millisecond
	l := newTestLimiter(1, delay)

	var firstDone, secondStart time.Time
	a := l.Submit(context.Background(), func(context.Context) (any, error) {
		firstDone = time.Now()
		return nil, errors.New("failures are paced too")
	})
	b := l.Submit(context.Background(), func(context.Context) (any, error) {
		secondStart = time.Now()
		return nil, nil
	})
	<-a
	<-b

	if gap := secondStart.Sub(firstDone); gap < delay {
		t.Errorf("gap between tasks = %v, want >= %v", gap, delay)
	}
}

func TestClear_RejectsQueued(t *testing.T) {
	l := newTestLimiter(1, 0)
	release := make(chan struct{})

	running := l.Submit(context.Background(), func(context.Context) (any, error) {
		<-release
		return "done", nil
	})

	var ran int32
	queued := make([]<-chan Result, 3)
	for i := range queued {
		queued[i] = l.Submit(context.Background(), func(context.Context) (any, error) {
			atomic.AddInt32(&ran, 1)
			return nil, nil
		})
	}

	waitFor(t, func() bool { return l.RunningCount() == 1 && l.PendingCount() == 3 })

	if n := l.Clear(); n != 3 {
		t.Errorf("Clear() = %d, want 3", n)
	}
	if l.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d after Clear, want 0", l.PendingCount())
	}

	for i, ch := range queued {
		res := <-ch
		if !errors.Is(res.Err, ErrCleared) {
			t.Errorf("queued[%d] error = %v, want ErrCleared", i, res.Err)
		}
	}

	close(release)
	res := <-running
	if res.Err != nil || res.Value != "done" {
		t.Errorf("running task result = %+v, want done", res)
	}
	if atomic.LoadInt32(&ran) != 0 {
		t.Error("cleared tasks should never run")
	}
}

func TestSubmit_CancelledBeforeAdmission(t *testing.T) {
	l := newTestLimiter(1, 0)
	release := make(chan struct{})
	blocker := l.Submit(context.Background(), func(context.Context) (any, error) {
		<-release
		return nil, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	var ran int32
	ch := l.Submit(ctx, func(context.Context) (any, error) {
		atomic.AddInt32(&ran, 1)
		return nil, nil
	})
	cancel()
	close(release)
	<-blocker

	res := <-ch
	if !errors.Is(res.Err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", res.Err)
	}
	if atomic.LoadInt32(&ran) != 0 {
		t.Error("task with cancelled context should not run")
	}
}

func TestDo_ContextDoneWhileQueued(t *testing.T) {
	l := newTestLimiter(1, 0)
	release := make(chan struct{})
	defer close(release)
	l.Submit(context.Background(), func(context.Context) (any, error) {
		<-release
		return nil, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := Do(ctx, l, func(context.Context) (int, error) { return 1, nil })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Do() error = %v, want DeadlineExceeded", err)
	}
}

func TestSubmit_PanicBecomesError(t *testing.T) {
	l := newTestLimiter(1, 0)

	res := <-l.Submit(context.Background(), func(context.Context) (any, error) {
		panic("bad task")
	})
	if res.Err == nil {
		t.Fatal("expected error from panicking task")
	}

	// The slot must be released for the next task.
	got, err := Do(context.Background(), l, func(context.Context) (int, error) { return 7, nil })
	if err != nil || got != 7 {
		t.Errorf("Do() after panic = %d, %v", got, err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
