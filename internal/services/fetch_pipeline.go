package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"v4v/internal/cache"
	"v4v/internal/core"
	"v4v/internal/log"
	"v4v/internal/wallet"
)

// ErrWalletUnreachable is returned when the wallet kept timing out and there
// is neither cached nor freshly fetched data to fall back on.
var ErrWalletUnreachable = errors.New("wallet unreachable")

// FetchConfig holds configuration for the fetch pipeline
type FetchConfig struct {
	// BatchSize is the page size requested from the wallet (default: 10)
	BatchSize int

	// BatchDelay is the pause between consecutive pages (default: 300ms)
	BatchDelay time.Duration

	// MaxBatches caps the number of pages per fetch (default: 20)
	MaxBatches int

	// MaxRetries is the number of retries per page on transient errors (default: 2)
	MaxRetries int

	// RetryBackoff is multiplied by the attempt number between retries (default: 2s)
	RetryBackoff time.Duration

	// IgnoreCache pages the full history instead of stopping at the cache horizon.
	// Cached entries are still merged behind the fetched ones.
	IgnoreCache bool

	// CachedOnly returns the snapshot without contacting the wallet.
	CachedOnly bool

	// Progress, when set, receives the running count of new transactions after
	// every page. Sends never block; a full channel drops the update.
	Progress chan<- int
}

// DefaultFetchConfig returns sensible defaults
func DefaultFetchConfig() FetchConfig {
	return FetchConfig{
		BatchSize:    10,
		BatchDelay:   300 * time.Millisecond,
		MaxBatches:   20,
		MaxRetries:   2,
		RetryBackoff: 2 * time.Second,
	}
}

// FetchResult is the outcome of one fetch cycle.
type FetchResult struct {
	// Transactions is the merged, deduplicated list, newest first.
	Transactions []core.Transaction
	// NewCount is how many transactions were newer than the cache horizon.
	NewCount int
	// Batches is the number of pages successfully read from the wallet.
	Batches int
	// Warning is set when paging stopped early because the wallet kept timing out.
	Warning string
}

// Degraded reports whether the result was assembled from partial data.
func (r FetchResult) Degraded() bool {
	return r.Warning != ""
}

// FetchOutcome is delivered by Stream once the fetch has finished.
type FetchOutcome struct {
	Result FetchResult
	Err    error
}

// FetchPipeline pages through the wallet newest first until it reaches
// transactions it already has, then merges them into the snapshot cache.
type FetchPipeline struct {
	config FetchConfig
	opener wallet.Opener
	cache  *cache.TransactionCache
	logger *log.Logger

	// sleep waits for d or until ctx is done.
	sleep func(ctx context.Context, d time.Duration) error

	// Fetches against the same snapshot must not overlap.
	mu sync.Mutex
}

// NewFetchPipeline creates a pipeline. Zero or negative sizes fall back to
// the defaults; zero delays are kept.
func NewFetchPipeline(config FetchConfig, opener wallet.Opener, txCache *cache.TransactionCache, logger *log.Logger) *FetchPipeline {
	defaults := DefaultFetchConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.MaxBatches <= 0 {
		config.MaxBatches = defaults.MaxBatches
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.BatchDelay < 0 {
		config.BatchDelay = 0
	}
	if config.RetryBackoff < 0 {
		config.RetryBackoff = 0
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &FetchPipeline{
		config: config,
		opener: opener,
		cache:  txCache,
		logger: logger.WithComponent(log.ComponentFetch),
		sleep:  sleepContext,
	}
}

// Config returns the effective configuration.
func (p *FetchPipeline) Config() FetchConfig {
	return p.config
}

// Fetch runs one incremental fetch and returns the merged transaction list.
// The snapshot is rewritten after every completed fetch, including degraded
// ones; a cancelled fetch leaves it untouched.
func (p *FetchPipeline) Fetch(ctx context.Context) (FetchResult, error) {
	return p.fetch(ctx, p.config.Progress)
}

// Stream runs Fetch in the background. The progress channel is closed when the
// fetch ends, after which the single outcome is delivered.
func (p *FetchPipeline) Stream(ctx context.Context) (<-chan int, <-chan FetchOutcome) {
	progress := make(chan int, p.config.MaxBatches+1)
	outcome := make(chan FetchOutcome, 1)
	go func() {
		res, err := p.fetch(ctx, progress)
		close(progress)
		outcome <- FetchOutcome{Result: res, Err: err}
		close(outcome)
	}()
	return progress, outcome
}

// Cached returns the snapshot without contacting the wallet.
func (p *FetchPipeline) Cached() FetchResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cached()
}

func (p *FetchPipeline) cached() FetchResult {
	txs := p.cache.Load()
	core.SortByTimestampDesc(txs)
	p.logger.Debug("Using cached transactions only", log.FieldCachedCount, len(txs))
	return FetchResult{Transactions: txs}
}

func (p *FetchPipeline) fetch(ctx context.Context, progress chan<- int) (FetchResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.config.CachedOnly {
		return p.cached(), nil
	}

	start := time.Now()
	cached := p.cache.Load()

	horizon := core.LatestTimestamp(cached)
	if p.config.IgnoreCache {
		horizon = 0
	}

	fresh, batches, warning, err := p.page(ctx, horizon, len(cached) > 0, progress)
	if err != nil {
		return FetchResult{}, err
	}

	merged := make([]core.Transaction, 0, len(fresh)+len(cached))
	merged = append(merged, fresh...)
	merged = append(merged, cached...)
	merged = core.Dedupe(merged)
	core.SortByTimestampDesc(merged)

	p.cache.Save(merged)

	fields := log.NewFields().
		WithOperation(log.OpFetch).
		WithFetch(len(fresh), len(merged), batches)
	fields[log.FieldCachedCount] = len(cached)
	fields[log.FieldDuration] = time.Since(start).Milliseconds()
	if warning != "" {
		p.logger.Warn("Fetch completed with partial data", append(fields.ToSlice(), "warning", warning)...)
	} else {
		p.logger.Info("Fetch completed", fields.ToSlice()...)
	}

	return FetchResult{
		Transactions: merged,
		NewCount:     len(fresh),
		Batches:      batches,
		Warning:      warning,
	}, nil
}

// page reads batches until the cache horizon, the end of the history or the
// batch cap. It returns the transactions newer than horizon in fetch order.
func (p *FetchPipeline) page(ctx context.Context, horizon int64, haveCached bool, progress chan<- int) (fresh []core.Transaction, batches int, warning string, err error) {
	client, err := p.opener.Open(ctx)
	if err != nil {
		return nil, 0, "", fmt.Errorf("open wallet: %w", err)
	}
	defer func() {
		if cerr := client.Close(); cerr != nil {
			p.logger.Warn("Failed to close wallet session", log.FieldError, cerr)
		}
	}()

	size := p.config.BatchSize
	for batch := 0; batch < p.config.MaxBatches; batch++ {
		if batch > 0 {
			if err := p.sleep(ctx, p.config.BatchDelay); err != nil {
				return nil, batches, "", err
			}
		}

		offset := batch * size
		txs, err := p.list(ctx, client, offset)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, batches, "", ctxErr
			}
			if !wallet.IsTransient(err) {
				return nil, batches, "", fmt.Errorf("list transactions at offset %d: %w", offset, err)
			}
			if len(fresh) == 0 && !haveCached {
				return nil, batches, "", fmt.Errorf("%w: %v", ErrWalletUnreachable, err)
			}
			warning = fmt.Sprintf("wallet stopped responding at offset %d, showing %d new and cached transactions: %v", offset, len(fresh), err)
			break
		}
		batches++

		oldest := int64(math.MaxInt64)
		for _, tx := range txs {
			ts, _ := tx.Timestamp()
			if ts > horizon {
				fresh = append(fresh, tx)
			}
			if ts < oldest {
				oldest = ts
			}
		}
		notify(progress, len(fresh))

		p.logger.Debug("Batch fetched",
			log.FieldBatch, batch+1,
			log.FieldOffset, offset,
			log.FieldTotalCount, len(txs),
			log.FieldNewCount, len(fresh))

		if len(txs) == 0 || oldest <= horizon || len(txs) < size {
			break
		}
	}
	return fresh, batches, warning, nil
}

// list requests one page, retrying transient failures with linear backoff.
func (p *FetchPipeline) list(ctx context.Context, client wallet.Client, offset int) ([]core.Transaction, error) {
	params := wallet.ListParams{Type: wallet.TypeIncoming, Limit: p.config.BatchSize, Offset: offset}
	for attempt := 1; ; attempt++ {
		txs, err := client.ListTransactions(ctx, params)
		if err == nil {
			return txs, nil
		}
		if ctx.Err() != nil || !wallet.IsTransient(err) || attempt > p.config.MaxRetries {
			return nil, err
		}

		backoff := time.Duration(attempt) * p.config.RetryBackoff
		p.logger.Warn("Wallet request failed, retrying",
			log.FieldOffset, offset,
			log.FieldAttempt, attempt,
			"backoff_ms", backoff.Milliseconds(),
			log.FieldError, err)
		if err := p.sleep(ctx, backoff); err != nil {
			return nil, err
		}
	}
}

func notify(ch chan<- int, n int) {
	if ch == nil {
		return
	}
	select {
	case ch <- n:
	default:
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
