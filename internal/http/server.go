package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"markin/internal/dashboard"
	applog "markin/internal/log"
	"markin/internal/middleware/ratelimit"
	"markin/internal/middleware/security"
	"markin/internal/middleware/trace"
	"markin/internal/stats"
	appweb "markin/web"
)

// Options configures a Server. Fetcher is required.
type Options struct {
	Addr               string
	Fetcher            stats.Fetcher
	Logger             *applog.Logger
	RateLimitPerMinute int
	// ViewOptions are applied to every dashboard view the server mounts.
	ViewOptions []dashboard.Option
	// Now is the clock used for the chart subtitle year.
	Now func() time.Time
}

type Server struct {
	http.Server
	templates *template.Template
	fetcher   stats.Fetcher
	viewOpts  []dashboard.Option
	sanitizer *dashboard.Sanitizer
	logger    *applog.Logger
	now       func() time.Time
	started   time.Time

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer parses the embedded templates and wires the routes, returning
// a ready-to-run server.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	s := &Server{
		fetcher:          opts.Fetcher,
		viewOpts:         opts.ViewOptions,
		sanitizer:        dashboard.NewSanitizer(),
		logger:           logger.WithComponent(applog.ComponentHTTP),
		now:              now,
		started:          time.Now(),
		rateLimiter:      ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		securityDetector: security.NewDetector(),
	}
	s.traceMiddleware = trace.NewMiddleware(logger, s.securityDetector.ExtractClientIP)

	t, err := template.ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		s.logger.Error("Failed parsing templates", applog.FieldError, err)
	}
	s.templates = t

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           s.routes(logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes(logger *applog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer,
		s.traceMiddleware.Middleware,
		applog.Middleware(logger),
		applog.RequestIDMiddleware(func(r *http.Request) string { return trace.GetRequestID(r.Context()) }),
		s.securityDetector.Middleware(logger),
		security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware,
	)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		r.With(security.StaticAssetMiddleware(3600)).Handle("/static/*", static)
	} else {
		s.logger.Warn("Failed to mount embedded static FS", applog.FieldError, err)
	}

	r.Group(func(r chi.Router) {
		r.Use(security.NoStore)
		r.Get("/", s.handleIndex)

		// Each of these requests is one dashboard page view and costs one
		// upstream fetch, so they share the rate limit.
		r.Group(func(r chi.Router) {
			r.Use(s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, s.handleRateLimited))
			r.Get("/ui/dashboard", s.handleDashboardContent)
			r.Get("/api/dashboard", s.handleDashboardAPI)
		})
	})

	return r
}

// Shutdown stops background goroutines and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}
