package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"v4v/internal/log"
	"v4v/internal/services"
)

// Refresher runs one live fetch. services.ReportService satisfies it.
type Refresher interface {
	Refresh(ctx context.Context) (services.FetchResult, error)
}

// Stats describes what the worker has done since it started.
type Stats struct {
	Runs         int
	Failures     int
	Skipped      int
	LastRun      time.Time
	LastNewCount int
	LastWarning  string
	LastError    string
	NextRun      time.Time
}

// RefreshWorker keeps the transaction snapshot warm by fetching on a cron
// schedule. A run that is still going when the next tick fires causes that
// tick to be skipped.
type RefreshWorker struct {
	refresher Refresher
	schedule  string
	timeout   time.Duration
	logger    *log.Logger

	cron    *cron.Cron
	entryID cron.EntryID
	now     func() time.Time

	mu    sync.Mutex
	base  context.Context
	stats Stats
}

// NewRefreshWorker parses schedule (standard five-field cron or a descriptor
// such as "@every 30m") and prepares the worker. Runs are bounded by timeout
// when it is positive.
func NewRefreshWorker(refresher Refresher, schedule string, timeout time.Duration, logger *log.Logger) (*RefreshWorker, error) {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentWorker)

	w := &RefreshWorker{
		refresher: refresher,
		schedule:  schedule,
		timeout:   timeout,
		logger:    logger,
		now:       time.Now,
		base:      context.Background(),
	}

	cl := cronLogger{logger: logger, skipped: w.recordSkip}
	w.cron = cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	id, err := w.cron.AddFunc(schedule, w.runScheduled)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}
	w.entryID = id
	return w, nil
}

// Start begins scheduling. Scheduled runs derive their context from ctx, so
// cancelling it aborts an in-flight fetch.
func (w *RefreshWorker) Start(ctx context.Context) {
	w.mu.Lock()
	w.base = ctx
	w.mu.Unlock()

	w.cron.Start()
	w.logger.Info("Refresh worker started",
		log.FieldOperation, log.OpStartup,
		"schedule", w.schedule,
		"next_run", w.cron.Entry(w.entryID).Next.Format(time.RFC3339))
}

// Stop halts scheduling and returns a context that is done once any running
// fetch has returned.
func (w *RefreshWorker) Stop() context.Context {
	ctx := w.cron.Stop()
	w.logger.Info("Refresh worker stopped", log.FieldOperation, log.OpShutdown)
	return ctx
}

// RunOnce performs a single fetch immediately, outside the schedule.
func (w *RefreshWorker) RunOnce(ctx context.Context) (services.FetchResult, error) {
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	start := w.now()
	res, err := w.refresher.Refresh(ctx)
	elapsed := w.now().Sub(start)

	w.mu.Lock()
	w.stats.Runs++
	w.stats.LastRun = start
	if err != nil {
		w.stats.Failures++
		w.stats.LastError = err.Error()
	} else {
		w.stats.LastError = ""
		w.stats.LastNewCount = res.NewCount
		w.stats.LastWarning = res.Warning
	}
	w.mu.Unlock()

	if err != nil {
		w.logger.ErrorContext(ctx, "Scheduled refresh failed",
			log.FieldOperation, log.OpFetch,
			log.FieldError, err,
			log.FieldDuration, elapsed.Milliseconds())
		return res, err
	}

	fields := []any{
		log.FieldOperation, log.OpFetch,
		log.FieldNewCount, res.NewCount,
		log.FieldTotalCount, len(res.Transactions),
		"batches", res.Batches,
		log.FieldDuration, elapsed.Milliseconds(),
	}
	if res.Degraded() {
		w.logger.WarnContext(ctx, "Refresh completed with partial data", append(fields, "warning", res.Warning)...)
	} else {
		w.logger.InfoContext(ctx, "Refresh completed", fields...)
	}
	return res, nil
}

// Stats returns a copy of the run counters.
func (w *RefreshWorker) Stats() Stats {
	w.mu.Lock()
	s := w.stats
	w.mu.Unlock()
	s.NextRun = w.cron.Entry(w.entryID).Next
	return s
}

func (w *RefreshWorker) runScheduled() {
	w.mu.Lock()
	ctx := w.base
	w.mu.Unlock()
	_, _ = w.RunOnce(ctx)
}

func (w *RefreshWorker) recordSkip() {
	w.mu.Lock()
	w.stats.Skipped++
	w.mu.Unlock()
}

// cronLogger routes cron's own messages into the structured logger.
type cronLogger struct {
	logger  *log.Logger
	skipped func()
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	if msg == "skip" && l.skipped != nil {
		l.skipped()
		l.logger.Warn("Previous refresh still running, skipping tick")
		return
	}
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, log.FieldError, err)...)
}
