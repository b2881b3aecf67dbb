package fetch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/bom-enricher/pkg/bom"
	"github.com/Sternrassler/bom-enricher/pkg/client"
	"github.com/Sternrassler/bom-enricher/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for enrichment runs.
var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bom_fetch_runs_total",
		Help: "Total enrichment runs by result",
	}, []string{"result"})

	partsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bom_fetch_parts_total",
		Help: "Total part numbers processed by enrichment runs, by outcome",
	}, []string{"outcome"})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bom_fetch_run_duration_seconds",
		Help:    "Enrichment run duration in seconds",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})
)

// ErrAlreadyRunning is returned by Run while another run is active.
var ErrAlreadyRunning = errors.New("fetch run already in progress")

// PartFetcher looks up one part number. *client.Client implements it.
type PartFetcher interface {
	Fetch(ctx context.Context, partNumber string) (*bom.PartInfo, error)
}

// QueueClearer discards queued lookups. *ratelimit.Limiter implements it.
type QueueClearer interface {
	Clear() int
}

// Rows is the part of the row store a run reads and writes. *store.Store
// implements it.
type Rows interface {
	PendingPartNumbers() []string
	SetStatus(partNumber string, status bom.Status, msg string) int
	ApplyEnrichment(partNumber string, info *bom.PartInfo) int
	ResetErrors() int
}

// Progress reports the lookup a run is currently working on.
type Progress struct {
	Current    int    `json:"current"`
	Total      int    `json:"total"`
	PartNumber string `json:"partNumber"`
}

// Summary describes a finished run.
type Summary struct {
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Cancelled int           `json:"cancelled"`
	Stopped   bool          `json:"stopped"`
	Duration  time.Duration `json:"duration"`
}

// Config holds orchestrator dependencies.
type Config struct {
	Rows    Rows
	Fetcher PartFetcher

	// Queue is cleared by Stop. Optional.
	Queue QueueClearer

	Logger zerolog.Logger

	// OnProgress, when set, is called before every lookup. It runs on the
	// run's goroutine and must not block.
	OnProgress func(Progress)
}

// Orchestrator runs at most one enrichment run at a time.
type Orchestrator struct {
	rows       Rows
	fetcher    PartFetcher
	queue      QueueClearer
	logger     zerolog.Logger
	onProgress func(Progress)

	mu       sync.Mutex
	running  bool
	stopped  bool
	stop     chan struct{}
	done     chan struct{}
	progress *Progress
}

// New creates an orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Rows == nil {
		return nil, fmt.Errorf("row store is required")
	}
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("part fetcher is required")
	}

	return &Orchestrator{
		rows:       cfg.Rows,
		fetcher:    cfg.Fetcher,
		queue:      cfg.Queue,
		logger:     cfg.Logger.With().Str("component", "fetch").Logger(),
		onProgress: cfg.OnProgress,
	}, nil
}

// Run performs one enrichment run and blocks until it ends.
//
// It returns ErrAlreadyRunning, without touching any row, if a run is active,
// and an empty Summary if nothing is pending. Lookup failures are recorded on
// the rows and never returned.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	pns, stop, err := o.begin()
	if err != nil || len(pns) == 0 {
		return Summary{}, err
	}
	return o.execute(ctx, pns, stop), nil
}

// Start launches a run in the background. It returns false if a run is
// already active or nothing is pending.
func (o *Orchestrator) Start(ctx context.Context) bool {
	pns, stop, err := o.begin()
	if err != nil || len(pns) == 0 {
		return false
	}
	go o.execute(ctx, pns, stop)
	return true
}

// Stop asks the active run to end and discards queued lookups. It does not
// wait: a lookup already in flight may still land after Stop returns.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running || o.stopped {
		o.mu.Unlock()
		return
	}
	o.stopped = true
	close(o.stop)
	o.mu.Unlock()

	o.logger.Info().Msg("Stopping enrichment run")
	if o.queue != nil {
		o.queue.Clear()
	}
}

// Wait blocks until the active run, if any, has ended.
func (o *Orchestrator) Wait() {
	o.mu.Lock()
	done := o.done
	running := o.running
	o.mu.Unlock()

	if running {
		<-done
	}
}

// RetryErrors moves every errored row back to pending. It does not start a run.
func (o *Orchestrator) RetryErrors() int {
	n := o.rows.ResetErrors()
	if n > 0 {
		o.logger.Info().Int("rows", n).Msg("Reset errored rows to pending")
	}
	return n
}

// Running reports whether a run is active.
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// Progress returns the current lookup of the active run. ok is false when no
// run is active.
func (o *Orchestrator) Progress() (p Progress, ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.progress == nil {
		return Progress{}, false
	}
	return *o.progress, true
}

// begin claims the orchestrator and snapshots the pending part numbers.
func (o *Orchestrator) begin() ([]string, <-chan struct{}, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running {
		return nil, nil, ErrAlreadyRunning
	}

	pns := o.rows.PendingPartNumbers()
	if len(pns) == 0 {
		return nil, nil, nil
	}

	o.running = true
	o.stopped = false
	o.stop = make(chan struct{})
	o.done = make(chan struct{})
	return pns, o.stop, nil
}

func (o *Orchestrator) execute(ctx context.Context, pns []string, stop <-chan struct{}) Summary {
	start := time.Now()
	summary := Summary{Total: len(pns)}

	defer func() {
		o.mu.Lock()
		o.running = false
		o.progress = nil
		close(o.done)
		o.mu.Unlock()
	}()

	for _, pn := range pns {
		o.rows.SetStatus(pn, bom.StatusLoading, "")
	}

	o.logger.Info().Int("part_numbers", len(pns)).Msg("Starting enrichment run")

	// Lookups run detached from ctx so cancellation never interrupts one
	// that has started.
	fetchCtx := context.WithoutCancel(ctx)

	for i, pn := range pns {
		if cancelled(ctx, stop) {
			for _, rest := range pns[i:] {
				o.rows.SetStatus(rest, bom.StatusPending, "")
			}
			summary.Cancelled += len(pns) - i
			summary.Stopped = true
			partsTotal.WithLabelValues("cancelled").Add(float64(len(pns) - i))
			break
		}

		o.setProgress(Progress{Current: i + 1, Total: len(pns), PartNumber: pn})

		info, err := o.fetcher.Fetch(fetchCtx, pn)
		switch {
		case err == nil:
			o.rows.ApplyEnrichment(pn, info)
			summary.Succeeded++
			partsTotal.WithLabelValues("success").Inc()

		case errors.Is(err, ratelimit.ErrCleared):
			o.rows.SetStatus(pn, bom.StatusPending, "")
			summary.Cancelled++
			partsTotal.WithLabelValues("cancelled").Inc()

		default:
			o.rows.SetStatus(pn, bom.StatusError, errorMessage(err))
			summary.Failed++
			partsTotal.WithLabelValues("error").Inc()
			o.logger.Debug().Err(err).Str("part_number", pn).Msg("Lookup failed")
		}
	}

	summary.Duration = time.Since(start)
	runDuration.Observe(summary.Duration.Seconds())

	result := "completed"
	if summary.Stopped {
		result = "cancelled"
	}
	runsTotal.WithLabelValues(result).Inc()

	o.logger.Info().
		Str("result", result).
		Int("total", summary.Total).
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Int("cancelled", summary.Cancelled).
		Dur("duration", summary.Duration).
		Msg("Enrichment run finished")

	return summary
}

func (o *Orchestrator) setProgress(p Progress) {
	o.mu.Lock()
	o.progress = &p
	o.mu.Unlock()

	if o.onProgress != nil {
		o.onProgress(p)
	}
}

func cancelled(ctx context.Context, stop <-chan struct{}) bool {
	select {
	case <-ctx.Done():
		return true
	case <-stop:
		return true
	default:
		return false
	}
}

// errorMessage returns the text shown on an errored row.
func errorMessage(err error) string {
	var pe *client.PartError
	if errors.As(err, &pe) && pe.Message != "" {
		return pe.Message
	}
	return err.Error()
}
