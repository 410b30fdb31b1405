package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"v4v/internal/core"
	"v4v/internal/log"
	"v4v/internal/report"
	"v4v/internal/services"
)

type summaryResponse struct {
	Site        string       `json:"site"`
	GeneratedAt time.Time    `json:"generated_at"`
	Since       *time.Time   `json:"since,omitempty"`
	Summary     core.Summary `json:"summary"`
}

type essaysResponse struct {
	Sort   core.SortMode     `json:"sort"`
	Essays []report.EssayRow `json:"essays"`
}

type periodsResponse struct {
	Granularity core.Granularity    `json:"granularity"`
	Periods     []core.PeriodBucket `json:"periods"`
}

type compareResponse struct {
	Granularity core.Granularity `json:"granularity"`
	Comparison  *core.Comparison `json:"comparison"`
	Reason      string           `json:"reason,omitempty"`
}

type refreshResponse struct {
	NewCount int    `json:"new_count"`
	Total    int    `json:"total"`
	Batches  int    `json:"batches"`
	Warning  string `json:"warning,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

// handleReady checks the templates and that a snapshot report can be built.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := map[string]any{}

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status = http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	if _, err := s.cachedReport(ctx, report.Options{}); err != nil {
		checks["reports"] = "failed: " + err.Error()
		status = http.StatusServiceUnavailable
	} else {
		checks["reports"] = "ok"
	}

	checks["cache"] = map[string]any{"entries": s.reports.Size()}
	checks["rate_limiter"] = map[string]any{
		"active_clients": s.limiter.ActiveClients(),
		"rejected":       s.limiter.Rejected(),
	}
	m := s.tracer.GetMetrics()
	checks["requests"] = map[string]any{"total": m.TotalRequests, "failed": m.FailedRequests}

	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}
	writeJSON(w, status, map[string]any{
		"status":    state,
		"site":      s.source.Site(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if s.templates == nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Templates not loaded", log.FieldPath, r.URL.Path)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}

	opts, err := parseOptions(r, time.Now())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rep, err := s.cachedReport(r.Context(), opts)
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Report build failed", log.FieldError, err)
		http.Error(w, "report unavailable", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, "dashboard.html", rep); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Dashboard template execution failed", log.FieldError, err)
	}
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	rep, ok := s.reportFor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, summaryResponse{
		Site:        rep.Site,
		GeneratedAt: rep.GeneratedAt,
		Since:       rep.Since,
		Summary:     rep.Summary,
	})
}

func (s *Server) handleEssays(w http.ResponseWriter, r *http.Request) {
	rep, ok := s.reportFor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, essaysResponse{Sort: rep.Sort, Essays: rep.Essays})
}

func (s *Server) handlePeriods(w http.ResponseWriter, r *http.Request) {
	rep, ok := s.reportFor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, periodsResponse{Granularity: rep.Granularity, Periods: rep.Periods})
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	rep, ok := s.reportFor(w, r)
	if !ok {
		return
	}
	resp := compareResponse{Granularity: rep.Granularity, Comparison: rep.Comparison}
	if rep.Comparison == nil {
		resp.Reason = core.ErrInsufficientData.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleRefresh runs a live wallet fetch and drops every cached report.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	logger := log.FromContext(r.Context())

	ctx, cancel := context.WithTimeout(r.Context(), s.config.RefreshTimeout)
	defer cancel()

	res, err := s.source.Refresh(ctx)
	if err != nil {
		logger.ErrorContext(r.Context(), "Dashboard refresh failed",
			log.FieldOperation, log.OpFetch,
			log.FieldError, err)
		status := http.StatusBadGateway
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		} else if errors.Is(err, services.ErrWalletUnreachable) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err.Error())
		return
	}

	s.reports.Purge()
	logger.InfoContext(r.Context(), "Dashboard refresh completed",
		log.FieldOperation, log.OpFetch,
		log.FieldNewCount, res.NewCount,
		log.FieldTotalCount, len(res.Transactions))

	writeJSON(w, http.StatusOK, refreshResponse{
		NewCount: res.NewCount,
		Total:    len(res.Transactions),
		Batches:  res.Batches,
		Warning:  res.Warning,
	})
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.resolver.ClientIP(r),
		log.FieldPath, r.URL.Path)
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, "rate limit exceeded, try again later")
}

// reportFor parses the query and returns the cached report, writing the
// error response itself when it fails.
func (s *Server) reportFor(w http.ResponseWriter, r *http.Request) (*report.Report, bool) {
	opts, err := parseOptions(r, time.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	rep, err := s.cachedReport(r.Context(), opts)
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Report build failed",
			log.FieldOperation, log.OpRender,
			log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "report unavailable")
		return nil, false
	}
	return rep, true
}
