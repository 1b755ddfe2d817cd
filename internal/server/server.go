package server

import (
	"context"
	"database/sql"
	"io/fs"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"csr-intake/internal/intake"
)

// BuildInfo is reported by the liveness probe.
type BuildInfo struct {
	Version string
	Commit  string
}

// Submitter processes one form submission to a terminal outcome.
type Submitter interface {
	Process(ctx context.Context, sub intake.Submission) intake.Outcome
}

type Config struct {
	Addr  string // e.g. ":5000"
	Build BuildInfo

	// MaxUploadBytes caps the whole request body of a submission.
	MaxUploadBytes int64
	// SessionSecret signs flash cookies.
	SessionSecret string
	// SecureCookies marks cookies Secure and enables HSTS.
	SecureCookies bool

	Submitter Submitter
	DB        *sql.DB
	Logger    *zap.Logger
}

type Server struct {
	cfg        Config
	logger     *zap.Logger
	flashes    flashCodec
	metrics    *metrics
	handler    http.Handler
	httpServer *http.Server
}

func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	s := &Server{
		cfg:     cfg,
		logger:  cfg.Logger,
		flashes: newFlashCodec(cfg.SessionSecret, cfg.SecureCookies),
		metrics: newMetrics(cfg.DB),
	}

	staticFiles, err := fs.Sub(assets, "static")
	if err != nil {
		// The embedded tree is fixed at build time.
		panic(err)
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.metrics.middleware)
	r.Use(securityHeadersMiddleware(cfg.SecureCookies))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5, "text/html", "text/css"))

	r.Get("/", s.indexHandler)
	r.Post("/submit_csr", s.submitHandler)
	r.Get("/healthz", s.handleLive)
	r.Get("/readyz", s.handleReady)
	r.Handle("/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticFiles))))

	s.handler = r
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.httpServer.Serve(ln)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
