package fetch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/bom-enricher/pkg/bom"
	"github.com/Sternrassler/bom-enricher/pkg/catalog"
	"github.com/Sternrassler/bom-enricher/pkg/client"
	"github.com/Sternrassler/bom-enricher/pkg/ratelimit"
	"github.com/Sternrassler/bom-enricher/pkg/store"
	"github.com/rs/zerolog"
)

// fakeFetcher records calls and answers with fn.
type fakeFetcher struct {
	mu    sync.Mutex
	calls []string
	fn    func(pn string) (*bom.PartInfo, error)
}

func (f *fakeFetcher) Fetch(_ context.Context, pn string) (*bom.PartInfo, error) {
	f.mu.Lock()
	f.calls = append(f.calls, pn)
	f.mu.Unlock()

	if f.fn == nil {
		return &bom.PartInfo{PartNumber: pn}, nil
	}
	return f.fn(pn)
}

func (f *fakeFetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeQueue struct {
	mu      sync.Mutex
	cleared int
}

func (q *fakeQueue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cleared++
	return 0
}

func loadStore(t *testing.T, pns ...string) *store.Store {
	t.Helper()
	s := store.New(zerolog.Nop())
	items := make([]bom.Item, len(pns))
	for i, pn := range pns {
		items[i] = bom.Item{Designator: fmt.Sprintf("R%d", i+1), PartNumber: pn, Quantity: 1}
	}
	s.Load(items)
	return s
}

func newTestOrchestrator(t *testing.T, rows Rows, f PartFetcher, q QueueClearer) *Orchestrator {
	t.Helper()
	o, err := New(Config{Rows: rows, Fetcher: f, Queue: q, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return o
}

func statuses(s *store.Store) map[string]bom.Status {
	out := make(map[string]bom.Status)
	for _, r := range s.Rows() {
		out[r.PartNumber] = r.Status
	}
	return out
}

func TestNew_Validation(t *testing.T) {
	s := loadStore(t)
	f := &fakeFetcher{}

	if _, err := New(Config{Fetcher: f}); err == nil {
		t.Error("expected error without rows")
	}
	if _, err := New(Config{Rows: s}); err == nil {
		t.Error("expected error without fetcher")
	}
	if _, err := New(Config{Rows: s, Fetcher: f}); err != nil {
		t.Errorf("queue should be optional, got %v", err)
	}
}

func TestRun_AllSucceed(t *testing.T) {
	s := loadStore(t, "C1", "C2", "C1", "", "C3")
	f := &fakeFetcher{}
	o := newTestOrchestrator(t, s, f, nil)

	summary, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := f.Calls(); len(got) != 3 || got[0] != "C1" || got[1] != "C2" || got[2] != "C3" {
		t.Errorf("fetch calls = %v, want [C1 C2 C3]", got)
	}
	if summary.Total != 3 || summary.Succeeded != 3 || summary.Stopped {
		t.Errorf("summary = %+v", summary)
	}

	c := s.Counts()
	if c.Success != 4 || c.Skipped != 1 {
		t.Errorf("Counts() = %+v, want 4 success 1 skipped", c)
	}
	if o.Running() {
		t.Error("Running() should be false after Run returns")
	}
}

func TestRun_EmptyIsNoOp(t *testing.T) {
	s := loadStore(t, "", "bad")
	f := &fakeFetcher{}
	o := newTestOrchestrator(t, s, f, nil)

	summary, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary != (Summary{}) {
		t.Errorf("summary = %+v, want empty", summary)
	}
	if len(f.Calls()) != 0 {
		t.Error("no lookups expected")
	}
	if o.Start(context.Background()) {
		t.Error("Start() = true with nothing pending")
	}
}

func TestRun_MarksLoading(t *testing.T) {
	s := loadStore(t, "C1", "C2")
	var seen map[string]bom.Status
	f := &fakeFetcher{fn: func(pn string) (*bom.PartInfo, error) {
		if pn == "C1" {
			seen = statuses(s)
		}
		return &bom.PartInfo{PartNumber: pn}, nil
	}}
	o := newTestOrchestrator(t, s, f, nil)

	if _, err := o.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if seen["C1"] != bom.StatusLoading || seen["C2"] != bom.StatusLoading {
		t.Errorf("statuses during run = %v, want both loading", seen)
	}
}

func TestRun_ErrorsStayOnRows(t *testing.T) {
	s := loadStore(t, "C1", "C2", "C3")
	f := &fakeFetcher{fn: func(pn string) (*bom.PartInfo, error) {
		switch pn {
		case "C1":
			return nil, &client.PartError{PartNumber: pn, Kind: client.KindNotFound, StatusCode: 404, Message: "Part not found"}
		case "C2":
			return nil, errors.New("connection refused")
		}
		return &bom.PartInfo{PartNumber: pn}, nil
	}}
	o := newTestOrchestrator(t, s, f, nil)

	summary, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v, lookup failures must not escape", err)
	}
	if summary.Failed != 2 || summary.Succeeded != 1 {
		t.Errorf("summary = %+v, want 2 failed 1 succeeded", summary)
	}

	rows := s.Rows()
	want := []struct {
		status bom.Status
		msg    string
	}{
		{bom.StatusError, "Part not found"},
		{bom.StatusError, "connection refused"},
		{bom.StatusSuccess, ""},
	}
	for i, w := range want {
		if rows[i].Status != w.status || rows[i].ErrorMessage != w.msg {
			t.Errorf("rows[%d] = %s %q, want %s %q", i, rows[i].Status, rows[i].ErrorMessage, w.status, w.msg)
		}
	}
}

func TestRun_StopDuringFirstLookup(t *testing.T) {
	s := loadStore(t, "C1", "C2", "C3")
	q := &fakeQueue{}
	var o *Orchestrator
	f := &fakeFetcher{fn: func(pn string) (*bom.PartInfo, error) {
		if pn == "C1" {
			o.Stop()
		}
		return &bom.PartInfo{PartNumber: pn}, nil
	}}
	o = newTestOrchestrator(t, s, f, q)

	summary, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	got := statuses(s)
	if got["C1"] != bom.StatusSuccess {
		t.Errorf("C1 = %s, want success (in-flight result applied)", got["C1"])
	}
	if got["C2"] != bom.StatusPending || got["C3"] != bom.StatusPending {
		t.Errorf("C2, C3 = %s, %s, want pending", got["C2"], got["C3"])
	}
	if calls := f.Calls(); len(calls) != 1 {
		t.Errorf("fetch calls = %v, want only C1", calls)
	}
	if !summary.Stopped || summary.Cancelled != 2 || summary.Succeeded != 1 {
		t.Errorf("summary = %+v", summary)
	}
	if q.cleared != 1 {
		t.Errorf("queue cleared %d times, want 1", q.cleared)
	}
}

func TestRun_ContextCancelled(t *testing.T) {
	s := loadStore(t, "C1", "C2")
	f := &fakeFetcher{}
	o := newTestOrchestrator(t, s, f, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := o.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v, cancellation is not an error", err)
	}
	if len(f.Calls()) != 0 {
		t.Errorf("fetch calls = %v, want none", f.Calls())
	}
	if summary.Cancelled != 2 {
		t.Errorf("Cancelled = %d, want 2", summary.Cancelled)
	}
	if c := s.Counts(); c.Pending != 2 {
		t.Errorf("Pending = %d, want 2", c.Pending)
	}
}

func TestRun_ClearedLookupGoesBackToPending(t *testing.T) {
	s := loadStore(t, "C1", "C2")
	f := &fakeFetcher{fn: func(pn string) (*bom.PartInfo, error) {
		if pn == "C1" {
			return nil, fmt.Errorf("lookup %s: %w", pn, ratelimit.ErrCleared)
		}
		return &bom.PartInfo{PartNumber: pn}, nil
	}}
	o := newTestOrchestrator(t, s, f, nil)

	if _, err := o.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	got := statuses(s)
	if got["C1"] != bom.StatusPending {
		t.Errorf("C1 = %s, want pending", got["C1"])
	}
	if got["C2"] != bom.StatusSuccess {
		t.Errorf("C2 = %s, want success", got["C2"])
	}
}

func TestRun_AlreadyRunning(t *testing.T) {
	s := loadStore(t, "C1", "C2")
	release := make(chan struct{})
	started := make(chan struct{})
	f := &fakeFetcher{fn: func(pn string) (*bom.PartInfo, error) {
		if pn == "C1" {
			close(started)
			<-release
		}
		return &bom.PartInfo{PartNumber: pn}, nil
	}}
	o := newTestOrchestrator(t, s, f, nil)

	if !o.Start(context.Background()) {
		t.Fatal("Start() = false, want true")
	}
	<-started

	before := s.Rows()
	if _, err := o.Run(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("Run() error = %v, want ErrAlreadyRunning", err)
	}
	if o.Start(context.Background()) {
		t.Error("second Start() = true, want false")
	}
	after := s.Rows()
	for i := range before {
		if before[i].Status != after[i].Status {
			t.Errorf("rejected run changed row %d: %s -> %s", i, before[i].Status, after[i].Status)
		}
	}

	close(release)
	o.Wait()

	if o.Running() {
		t.Error("Running() = true after Wait")
	}
	if c := s.Counts(); c.Success != 2 {
		t.Errorf("Success = %d, want 2", c.Success)
	}
}

func TestRun_Progress(t *testing.T) {
	s := loadStore(t, "C1", "C2", "C3")

	var mu sync.Mutex
	var reported []Progress
	var o *Orchestrator
	var insideOK bool

	f := &fakeFetcher{fn: func(pn string) (*bom.PartInfo, error) {
		if pn == "C2" {
			p, ok := o.Progress()
			insideOK = ok && p.Current == 2 && p.PartNumber == "C2"
		}
		return &bom.PartInfo{PartNumber: pn}, nil
	}}

	var err error
	o, err = New(Config{
		Rows:    s,
		Fetcher: f,
		Logger:  zerolog.Nop(),
		OnProgress: func(p Progress) {
			mu.Lock()
			reported = append(reported, p)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, err := o.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []Progress{
		{Current: 1, Total: 3, PartNumber: "C1"},
		{Current: 2, Total: 3, PartNumber: "C2"},
		{Current: 3, Total: 3, PartNumber: "C3"},
	}
	if len(reported) != len(want) {
		t.Fatalf("reported %d progress updates, want %d", len(reported), len(want))
	}
	for i := range want {
		if reported[i] != want[i] {
			t.Errorf("progress[%d] = %+v, want %+v", i, reported[i], want[i])
		}
	}
	if !insideOK {
		t.Error("Progress() during the run did not report the current lookup")
	}
	if _, ok := o.Progress(); ok {
		t.Error("Progress() should be cleared after the run")
	}
}

func TestRetryErrors(t *testing.T) {
	s := loadStore(t, "C1", "C2", "C3")
	f := &fakeFetcher{fn: func(pn string) (*bom.PartInfo, error) {
		if pn == "C3" {
			return &bom.PartInfo{PartNumber: pn}, nil
		}
		return nil, errors.New("upstream down")
	}}
	o := newTestOrchestrator(t, s, f, nil)

	if _, err := o.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if n := o.RetryErrors(); n != 2 {
		t.Errorf("RetryErrors() = %d, want 2", n)
	}
	if o.Running() {
		t.Error("RetryErrors must not start a run")
	}

	got := statuses(s)
	if got["C1"] != bom.StatusPending || got["C2"] != bom.StatusPending || got["C3"] != bom.StatusSuccess {
		t.Errorf("statuses = %v", got)
	}

	f.fn = nil
	summary, _ := o.Run(context.Background())
	if summary.Total != 2 || summary.Succeeded != 2 {
		t.Errorf("retry run summary = %+v, want 2 succeeded", summary)
	}
}

func TestRun_WithRateLimitedClient(t *testing.T) {
	s := loadStore(t, "C1", "C2", "C3")
	limiter := ratelimit.New(ratelimit.Config{MaxConcurrent: 2, Delay: 5 * time.Millisecond}, zerolog.Nop())

	var mu sync.Mutex
	var order []string
	src := catalog.SourceFunc(func(_ context.Context, pn string) (*bom.PartInfo, error) {
		mu.Lock()
		order = append(order, pn)
		mu.Unlock()
		return &bom.PartInfo{PartNumber: pn, Prices: []bom.PriceTier{{MinQty: 1, Price: 0.5}}}, nil
	})
	c, err := client.New(src, limiter, zerolog.Nop())
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}

	o := newTestOrchestrator(t, s, c, limiter)
	if _, err := o.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(order) != 3 || order[0] != "C1" || order[2] != "C3" {
		t.Errorf("lookup order = %v, want snapshot order", order)
	}
	if got := s.TotalCost(); got != 1.5 {
		t.Errorf("TotalCost() = %v, want 1.5", got)
	}
}
