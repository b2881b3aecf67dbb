package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for the task queue.
var (
	limiterPendingTasks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bom_limiter_pending_tasks",
		Help: "Number of tasks waiting for a free limiter slot",
	})

	limiterRunningTasks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bom_limiter_running_tasks",
		Help: "Number of tasks currently running inside the limiter",
	})

	limiterQueueWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bom_limiter_queue_wait_seconds",
		Help:    "Time tasks spent queued before admission",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
	})

	limiterClearedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bom_limiter_cleared_tasks_total",
		Help: "Total number of queued tasks discarded by Clear",
	})
)

// ErrCleared settles tasks that were discarded by Clear before they started.
var ErrCleared = errors.New("task cleared from rate limiter queue")

// Task is a unit of work run by the limiter.
type Task func(ctx context.Context) (any, error)

// Result is the outcome of a Task, passed through unchanged.
type Result struct {
	Value any
	Err   error
}

type job struct {
	ctx      context.Context
	task     Task
	done     chan Result
	queuedAt time.Time
}

// Limiter is a FIFO task queue with a concurrency cap and post-completion pacing.
// It is safe for concurrent use. One Limiter is meant to be shared by every
// caller that talks to the same upstream.
type Limiter struct {
	maxConcurrent int
	delay         time.Duration
	logger        zerolog.Logger

	mu      sync.Mutex
	queue   []*job
	running int
}

// New creates a limiter.
func New(cfg Config, logger zerolog.Logger) *Limiter {
	cfg = cfg.withDefaults()
	return &Limiter{
		maxConcurrent: cfg.MaxConcurrent,
		delay:         cfg.Delay,
		logger:        logger,
	}
}

// Submit queues task and returns a channel that receives exactly one Result.
//
// The task runs with ctx. If ctx is already done when the task reaches the head
// of the queue, the task is not run and the Result carries ctx.Err().
func (l *Limiter) Submit(ctx context.Context, task Task) <-chan Result {
	j := &job{
		ctx:      ctx,
		task:     task,
		done:     make(chan Result, 1),
		queuedAt: time.Now(),
	}

	l.mu.Lock()
	l.queue = append(l.queue, j)
	limiterPendingTasks.Inc()
	l.dispatchLocked()
	l.mu.Unlock()

	return j.done
}

// Do submits fn and waits for its result. It returns early with ctx.Err() if ctx
// is done first; the queued task is then skipped at admission.
func Do[T any](ctx context.Context, l *Limiter, fn func(context.Context) (T, error)) (T, error) {
	ch := l.Submit(ctx, func(ctx context.Context) (any, error) {
		v, err := fn(ctx)
		return v, err
	})

	var zero T
	select {
	case res := <-ch:
		v, _ := res.Value.(T)
		if res.Err != nil {
			return v, res.Err
		}
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Clear discards every queued task that has not started yet and settles each
// with ErrCleared. Running tasks are not affected. It returns the number of
// discarded tasks.
func (l *Limiter) Clear() int {
	l.mu.Lock()
	dropped := l.queue
	l.queue = nil
	limiterPendingTasks.Sub(float64(len(dropped)))
	l.mu.Unlock()

	for _, j := range dropped {
		j.done <- Result{Err: ErrCleared}
	}

	if len(dropped) > 0 {
		limiterClearedTotal.Add(float64(len(dropped)))
		l.logger.Debug().Int("cleared", len(dropped)).Msg("Cleared queued tasks")
	}
	return len(dropped)
}

// PendingCount returns the number of queued tasks not yet started.
func (l *Limiter) PendingCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// RunningCount returns the number of occupied slots. A slot stays occupied
// during the pacing delay that follows its task.
func (l *Limiter) RunningCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// dispatchLocked admits queued tasks while slots are free. l.mu must be held.
func (l *Limiter) dispatchLocked() {
	for l.running < l.maxConcurrent && len(l.queue) > 0 {
		j := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		limiterPendingTasks.Dec()

		if err := j.ctx.Err(); err != nil {
			j.done <- Result{Err: err}
			continue
		}

		l.running++
		limiterRunningTasks.Inc()
		limiterQueueWaitSeconds.Observe(time.Since(j.queuedAt).Seconds())
		go l.run(j)
	}
}

func (l *Limiter) run(j *job) {
	j.done <- l.execute(j)

	if l.delay > 0 {
		time.Sleep(l.delay)
	}

	l.mu.Lock()
	l.running--
	limiterRunningTasks.Dec()
	l.dispatchLocked()
	l.mu.Unlock()
}

func (l *Limiter) execute(j *job) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error().Interface("panic", r).Msg("Limiter task panicked")
			res = Result{Err: fmt.Errorf("task panicked: %v", r)}
		}
	}()

	v, err := j.task(j.ctx)
	return Result{Value: v, Err: err}
}
