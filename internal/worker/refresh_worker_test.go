package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"v4v/internal/core"
	"v4v/internal/services"
)

type fakeRefresher struct {
	mu       sync.Mutex
	calls    int
	err      error
	result   services.FetchResult
	deadline bool
	block    chan struct{}
	started  chan struct{}
}

func (f *fakeRefresher) Refresh(ctx context.Context) (services.FetchResult, error) {
	f.mu.Lock()
	f.calls++
	_, f.deadline = ctx.Deadline()
	block, started := f.block, f.started
	f.mu.Unlock()

	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return services.FetchResult{}, ctx.Err()
		}
	}
	return f.result, f.err
}

func (f *fakeRefresher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestNewRefreshWorker_InvalidSchedule(t *testing.T) {
	for _, schedule := range []string{"", "every hour", "61 * * * *"} {
		if _, err := NewRefreshWorker(&fakeRefresher{}, schedule, 0, nil); err == nil {
			t.Errorf("schedule %q: expected error", schedule)
		}
	}
}

func TestRunOnce_RecordsResult(t *testing.T) {
	f := &fakeRefresher{result: services.FetchResult{
		Transactions: []core.Transaction{{PaymentHash: "a"}, {PaymentHash: "b"}},
		NewCount:     2,
		Batches:      1,
		Warning:      "stopped early",
	}}
	w, err := NewRefreshWorker(f, "*/30 * * * *", time.Minute, nil)
	if err != nil {
		t.Fatalf("NewRefreshWorker: %v", err)
	}

	res, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if res.NewCount != 2 {
		t.Fatalf("NewCount=%d", res.NewCount)
	}
	if !f.deadline {
		t.Fatalf("expected the refresh context to carry the timeout")
	}

	s := w.Stats()
	if s.Runs != 1 || s.Failures != 0 || s.LastNewCount != 2 || s.LastWarning != "stopped early" {
		t.Fatalf("stats=%+v", s)
	}
	if s.LastRun.IsZero() {
		t.Fatalf("LastRun not recorded")
	}
}

func TestRunOnce_Failure(t *testing.T) {
	boom := errors.New("relay down")
	f := &fakeRefresher{err: boom}
	w, err := NewRefreshWorker(f, "@hourly", 0, nil)
	if err != nil {
		t.Fatalf("NewRefreshWorker: %v", err)
	}

	if _, err := w.RunOnce(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("err=%v", err)
	}
	if f.deadline {
		t.Fatalf("no timeout configured, context should have no deadline")
	}

	s := w.Stats()
	if s.Runs != 1 || s.Failures != 1 || s.LastError != "relay down" {
		t.Fatalf("stats=%+v", s)
	}

	f.mu.Lock()
	f.err = nil
	f.mu.Unlock()
	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("second RunOnce: %v", err)
	}
	if s := w.Stats(); s.LastError != "" || s.Runs != 2 || s.Failures != 1 {
		t.Fatalf("stats after recovery=%+v", s)
	}
}

func TestScheduledRunsSkipWhileBusy(t *testing.T) {
	f := &fakeRefresher{block: make(chan struct{}), started: make(chan struct{}, 1)}
	w, err := NewRefreshWorker(f, "@every 1s", 0, nil)
	if err != nil {
		t.Fatalf("NewRefreshWorker: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	select {
	case <-f.started:
	case <-time.After(5 * time.Second):
		t.Fatalf("scheduled refresh never ran")
	}

	deadline := time.Now().Add(5 * time.Second)
	for w.Stats().Skipped == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("expected a skipped tick while the first run was blocked")
		}
		time.Sleep(50 * time.Millisecond)
	}
	if got := f.Calls(); got != 1 {
		t.Fatalf("calls=%d want 1 while busy", got)
	}

	close(f.block)
	select {
	case <-w.Stop().Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("Stop did not wait for the running job")
	}
	if s := w.Stats(); s.Runs < 1 {
		t.Fatalf("stats=%+v", s)
	}
}

func TestStopCancelsViaContext(t *testing.T) {
	f := &fakeRefresher{block: make(chan struct{}), started: make(chan struct{}, 1)}
	w, err := NewRefreshWorker(f, "@every 1s", 0, nil)
	if err != nil {
		t.Fatalf("NewRefreshWorker: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)
	select {
	case <-f.started:
	case <-time.After(5 * time.Second):
		t.Fatalf("scheduled refresh never ran")
	}

	cancel()
	select {
	case <-w.Stop().Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("cancelled run did not return")
	}
	if s := w.Stats(); s.Failures < 1 || s.LastError != context.Canceled.Error() {
		t.Fatalf("stats=%+v", s)
	}
}
