package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"markin/internal/dashboard"
	applog "markin/internal/log"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	limits := s.rateLimiter.GetMetrics()
	requests := s.traceMiddleware.GetMetrics()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
		"metrics": map[string]any{
			"requests_total":      requests.TotalRequests,
			"last_duration_us":    requests.LastDurationUs,
			"rate_limited_total":  limits.TotalHits,
			"rate_limit_clients":  limits.ClientCount,
			"suspicious_requests": s.securityDetector.SuspiciousRequests(),
		},
	})
}

// handleReady checks local prerequisites only. It never calls the stats
// service: every upstream call is a page view's one fetch.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := "ready"
	code := http.StatusOK
	checks := map[string]string{"templates": "ok", "fetcher": "ok"}

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status, code = "not_ready", http.StatusServiceUnavailable
	}
	if s.fetcher == nil {
		checks["fetcher"] = "not_configured"
		status, code = "not_ready", http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleIndex renders the page shell in the Loading state. The browser then
// requests /ui/dashboard, which is where the page view's fetch happens.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	page := newDashboardPage(dashboard.Loading(), s.now().Year(), dashboard.SkeletonBars(nil))
	s.render(w, r, "index.html", page)
}

// handleDashboardContent runs one page view to its terminal state and
// renders it. Fetch failures render the Error state with status 200.
func (s *Server) handleDashboardContent(w http.ResponseWriter, r *http.Request) {
	st, ok := s.loadView(r)
	if !ok {
		return
	}
	st.Model = s.sanitizer.Model(st.Model)
	s.render(w, r, "dashboard.html", newDashboardPage(st, s.now().Year(), nil))
}

func (s *Server) handleDashboardAPI(w http.ResponseWriter, r *http.Request) {
	st, ok := s.loadView(r)
	if !ok {
		return
	}
	st.Model = s.sanitizer.Model(st.Model)
	writeJSON(w, http.StatusOK, st)
}

// handleRateLimited answers an over-limit page view with the Error state
// so the page keeps its full layout. No stats fetch is made.
func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	st := dashboard.Failed(dashboard.ReasonServerUnreachable)
	if strings.HasPrefix(r.URL.Path, "/api/") {
		writeJSON(w, http.StatusTooManyRequests, st)
		return
	}
	s.renderStatus(w, r, http.StatusTooManyRequests, "dashboard.html", newDashboardPage(st, s.now().Year(), nil))
}

// loadView mounts a view for the lifetime of the request. When the client
// goes away first the view is unmounted, its result discarded and nothing
// is written.
func (s *Server) loadView(r *http.Request) (dashboard.State, bool) {
	logger := applog.FromContext(r.Context()).WithComponent(applog.ComponentDashboard)

	st, err := dashboard.Load(r.Context(), s.fetcher, s.viewOpts...)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded), errors.Is(err, dashboard.ErrUnmounted):
		logger.DebugContext(r.Context(), "Page view ended before stats resolved", applog.FieldError, err)
		return st, false
	default:
		logger.ErrorContext(r.Context(), "Page view failed", applog.FieldError, err)
		return st, false
	}

	if st.Phase == dashboard.PhaseError {
		logger.WarnContext(r.Context(), "Dashboard rendered in error state",
			applog.FieldPhase, st.Phase.String(),
			"reason", string(st.Reason))
	}
	return st, true
}

// render executes the template into a buffer first so a failing template
// yields a clean 500 instead of a half-written page.
func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data any) {
	s.renderStatus(w, r, http.StatusOK, name, data)
}

func (s *Server) renderStatus(w http.ResponseWriter, r *http.Request, code int, name string, data any) {
	if s.templates == nil {
		s.logger.ErrorContext(r.Context(), "Templates not loaded", applog.FieldPath, r.URL.Path)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		s.logger.ErrorContext(r.Context(), "Template execution failed",
			applog.FieldError, err,
			applog.FieldOperation, applog.OpRender,
			"template", name)
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	_, _ = buf.WriteTo(w)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
