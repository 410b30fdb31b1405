package services

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"v4v/internal/core"
	"v4v/internal/log"
	"v4v/internal/report"
)

// TransactionFetcher is the part of FetchPipeline the report service uses.
type TransactionFetcher interface {
	Fetch(ctx context.Context) (FetchResult, error)
	Cached() FetchResult
}

// PriceFetcher returns the BTC/USD price or nil when unavailable.
type PriceFetcher interface {
	FetchPrice(ctx context.Context) *float64
}

// TitleFetcher returns slug to title mappings. It never fails; an empty map
// means no titles are known.
type TitleFetcher interface {
	FetchTitles(ctx context.Context, site string) map[string]string
}

// UpdatePublisher announces a completed live fetch.
type UpdatePublisher interface {
	PublishReportUpdated(ctx context.Context, site string, summary core.Summary, newCount int, warning string) error
}

// Exporter writes a finished report somewhere durable. txs is the merged
// transaction list the report was built from. The returned reference
// identifies the written export.
type Exporter interface {
	Name() string
	Export(ctx context.Context, txs []core.Transaction, rep *report.Report) (string, error)
}

// ReportRequest selects the report contents and whether the wallet is contacted.
type ReportRequest struct {
	report.Options
	// Offline builds the report from the snapshot only.
	Offline bool
}

// ReportService orchestrates fetch, price and title lookups into reports.
type ReportService struct {
	site      string
	fetcher   TransactionFetcher
	price     PriceFetcher
	titles    TitleFetcher
	publisher UpdatePublisher
	logger    *log.Logger
	now       func() time.Time
}

// NewReportService creates a report service. price and titles may be nil.
func NewReportService(site string, fetcher TransactionFetcher, price PriceFetcher, titles TitleFetcher, logger *log.Logger) *ReportService {
	if logger == nil {
		logger = log.Discard()
	}
	return &ReportService{
		site:    site,
		fetcher: fetcher,
		price:   price,
		titles:  titles,
		logger:  logger.WithComponent(log.ComponentReport),
		now:     time.Now,
	}
}

// WithPublisher enables update events after every live fetch.
func (s *ReportService) WithPublisher(p UpdatePublisher) *ReportService {
	s.publisher = p
	return s
}

// Site returns the site the service reports on.
func (s *ReportService) Site() string {
	return s.site
}

// Generate builds a report. The wallet fetch, price lookup and title lookup
// run concurrently; only a failed fetch fails the report.
func (s *ReportService) Generate(ctx context.Context, req ReportRequest) (*report.Report, error) {
	rep, _, err := s.build(ctx, req)
	return rep, err
}

// Export builds a report and hands it to every exporter in turn. It stops at
// the first exporter that fails.
func (s *ReportService) Export(ctx context.Context, req ReportRequest, exporters ...Exporter) (map[string]string, error) {
	rep, res, err := s.build(ctx, req)
	if err != nil {
		return nil, err
	}

	refs := make(map[string]string, len(exporters))
	for _, e := range exporters {
		ref, err := e.Export(ctx, res.Transactions, rep)
		if err != nil {
			return refs, fmt.Errorf("export to %s: %w", e.Name(), err)
		}
		refs[e.Name()] = ref
		s.logger.Info("Report exported",
			log.FieldOperation, log.OpExport,
			"target", e.Name(),
			"ref", ref)
	}
	return refs, nil
}

func (s *ReportService) build(ctx context.Context, req ReportRequest) (*report.Report, FetchResult, error) {
	var (
		res      FetchResult
		btcPrice *float64
		titleMap map[string]string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if req.Offline {
			res = s.fetcher.Cached()
			return nil
		}
		r, err := s.fetchLive(gctx)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if s.price != nil {
		g.Go(func() error {
			btcPrice = s.price.FetchPrice(gctx)
			return nil
		})
	}
	if s.titles != nil {
		g.Go(func() error {
			titleMap = s.titles.FetchTitles(gctx, s.site)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, FetchResult{}, err
	}

	rep := report.Build(s.site, res.Transactions, btcPrice, titleMap, req.Options, s.now())
	rep.NewCount = res.NewCount
	rep.Warning = res.Warning

	s.logger.Debug("Report generated",
		log.FieldOperation, log.OpRender,
		log.FieldTotalCount, rep.Summary.Count,
		log.FieldTotalSats, rep.Summary.TotalSats)
	return rep, res, nil
}

// Refresh runs a live fetch without building a report.
func (s *ReportService) Refresh(ctx context.Context) (FetchResult, error) {
	return s.fetchLive(ctx)
}

func (s *ReportService) fetchLive(ctx context.Context) (FetchResult, error) {
	res, err := s.fetcher.Fetch(ctx)
	if err != nil {
		return FetchResult{}, fmt.Errorf("fetch transactions: %w", err)
	}
	s.publish(ctx, res)
	return res, nil
}

func (s *ReportService) publish(ctx context.Context, res FetchResult) {
	if s.publisher == nil {
		return
	}
	attr := core.NewAttributor(s.site)
	summary := core.BuildSummary(attr.Filter(res.Transactions), nil, attr)
	if err := s.publisher.PublishReportUpdated(ctx, s.site, summary, res.NewCount, res.Warning); err != nil {
		// The snapshot is already saved; a lost event is recovered on the next fetch.
		s.logger.Error("Failed to publish report update",
			log.NewFields().WithOperation(log.OpPublish).WithError(err).ToSlice()...)
	}
}
