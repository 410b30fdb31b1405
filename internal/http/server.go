package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"strconv"
	"sync"
	"time"

	"v4v/internal/cache"
	"v4v/internal/log"
	"v4v/internal/middleware/ratelimit"
	"v4v/internal/middleware/security"
	"v4v/internal/middleware/trace"
	"v4v/internal/report"
	"v4v/internal/services"
	appweb "v4v/web"
)

// ReportSource produces reports for the dashboard. services.ReportService
// implements it.
type ReportSource interface {
	Site() string
	Generate(ctx context.Context, req services.ReportRequest) (*report.Report, error)
	Refresh(ctx context.Context) (services.FetchResult, error)
}

// Config holds dashboard server settings.
type Config struct {
	Addr string

	// CacheTTL bounds how long a rendered report is reused (default: 1m).
	CacheTTL time.Duration
	// CacheSize is the number of distinct report variants kept (default: 64).
	CacheSize int

	// RefreshLimit rate-limits POST /api/refresh per client.
	RefreshLimit ratelimit.Config

	// RefreshTimeout bounds a dashboard-triggered wallet fetch (default: 5m).
	RefreshTimeout time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Addr:           ":8081",
		CacheTTL:       time.Minute,
		CacheSize:      64,
		RefreshLimit:   ratelimit.DefaultConfig(),
		RefreshTimeout: 5 * time.Minute,
	}
}

// Server wraps http.Server with the dashboard routes and their caches.
type Server struct {
	http.Server

	config    Config
	source    ReportSource
	templates *template.Template
	logger    *log.Logger

	reports  *cache.LRUCache[*report.Report]
	caches   *cache.Manager
	limiter  *ratelimit.Limiter
	resolver *security.ClientIPResolver
	tracer   *trace.Middleware

	started      time.Time
	shutdownOnce sync.Once
}

// NewServer configures routes and templates, returning a ready-to-run server.
func NewServer(config Config, source ReportSource, logger *log.Logger) *Server {
	defaults := DefaultConfig()
	if config.CacheTTL <= 0 {
		config.CacheTTL = defaults.CacheTTL
	}
	if config.CacheSize <= 0 {
		config.CacheSize = defaults.CacheSize
	}
	if config.RefreshTimeout <= 0 {
		config.RefreshTimeout = defaults.RefreshTimeout
	}
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	s := &Server{
		config:   config,
		source:   source,
		logger:   logger,
		reports:  cache.NewLRUCache[*report.Report](config.CacheSize, config.CacheTTL),
		caches:   cache.NewManager(logger),
		limiter:  ratelimit.NewLimiter(config.RefreshLimit),
		resolver: security.NewClientIPResolver(),
		started:  time.Now(),
	}
	s.tracer = trace.NewMiddleware(logger, s.resolver.ClientIP)
	s.caches.Register(s.reports)
	s.caches.StartCleanup(10 * time.Minute)

	t, err := template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		logger.Warn("Failed parsing templates", log.FieldError, err)
	}
	s.templates = t

	mux := http.NewServeMux()
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /api/summary", s.handleSummary)
	mux.HandleFunc("GET /api/essays", s.handleEssays)
	mux.HandleFunc("GET /api/periods", s.handlePeriods)
	mux.HandleFunc("GET /api/compare", s.handleCompare)
	mux.Handle("POST /api/refresh", s.limiter.Middleware(s.resolver.ClientIP, s.handleRateLimited)(http.HandlerFunc(s.handleRefresh)))

	var handler http.Handler = mux
	handler = security.Headers(security.DefaultHeadersConfig())(handler)
	handler = s.tracer.Middleware(handler)
	handler = log.RequestIDMiddleware(trace.RequestID)(handler)
	handler = log.Middleware(logger)(handler)

	s.Server = http.Server{
		Addr:              config.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Shutdown stops the background cleanup and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// cachedReport returns the snapshot-only report for opts, building it on a miss.
func (s *Server) cachedReport(ctx context.Context, opts report.Options) (*report.Report, error) {
	key := reportKey(opts)
	if rep, ok := s.reports.Get(key); ok {
		log.FromContext(ctx).DebugContext(ctx, "Report cache hit", "key", key)
		return rep, nil
	}

	rep, err := s.source.Generate(ctx, services.ReportRequest{Options: opts, Offline: true})
	if err != nil {
		return nil, err
	}
	s.reports.Set(key, rep)
	return rep, nil
}

func reportKey(opts report.Options) string {
	since := int64(0)
	if !opts.Since.IsZero() {
		since = opts.Since.Unix()
	}
	return string(opts.Granularity) + "|" + string(opts.Sort) + "|" + strconv.FormatInt(since, 10) + "|" + strconv.Itoa(opts.Top)
}
