package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pfrederiksen/apod-api/internal/apod"
	"github.com/pfrederiksen/apod-api/internal/logger"
	"github.com/pfrederiksen/apod-api/internal/scraper"
)

const (
	ServiceName    = "apod-api"
	DefaultAddr    = ":8080"
	defaultTimeout = 60 * time.Second
)

// Fetcher is the scraping capability the handlers depend on
type Fetcher interface {
	Fetch(ctx context.Context, opts apod.Options) ([]*apod.APOD, error)
	FetchPartial(ctx context.Context, opts apod.Options) []scraper.Outcome
}

// Options configures the HTTP server
type Options struct {
	Addr            string
	Debug           bool
	Version         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	Logger          *logger.Logger
	Metrics         *logger.Metrics
}

func (o *Options) setDefaults() {
	if o.Addr == "" {
		o.Addr = DefaultAddr
	}
	if o.Version == "" {
		o.Version = "dev"
	}
	if o.ReadTimeout == 0 {
		o.ReadTimeout = 10 * time.Second
	}
	// A week request makes seven upstream calls; leave room for the slowest one
	if o.WriteTimeout == 0 {
		o.WriteTimeout = defaultTimeout
	}
	if o.IdleTimeout == 0 {
		o.IdleTimeout = defaultTimeout
	}
	if o.ShutdownTimeout == 0 {
		o.ShutdownTimeout = 10 * time.Second
	}
	if o.Logger == nil {
		o.Logger = logger.Default()
	}
	if o.Metrics == nil {
		o.Metrics = logger.DefaultMetrics()
	}
}

// Server is the HTTP front end for a Fetcher
type Server struct {
	router  *gin.Engine
	http    *http.Server
	fetcher Fetcher
	log     *logger.Logger
	metrics *logger.Metrics
	opts    Options
	started time.Time
}

// New builds the router and http.Server. Nothing listens until Start.
func New(fetcher Fetcher, opts Options) *Server {
	opts.setDefaults()

	if opts.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	log := opts.Logger.With(logger.Fields{"component": "http"})

	router := gin.New()
	router.Use(RecoveryMiddleware(log))
	router.Use(RequestIDMiddleware())
	router.Use(LoggerMiddleware(log, opts.Metrics))

	s := &Server{
		router:  router,
		fetcher: fetcher,
		log:     log,
		metrics: opts.Metrics,
		opts:    opts,
		started: time.Now(),
	}
	s.routes()

	s.http = &http.Server{
		Addr:         opts.Addr,
		Handler:      router,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		IdleTimeout:  opts.IdleTimeout,
	}

	return s
}

func (s *Server) routes() {
	s.router.GET("/", s.handleRoot)
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/debug/metrics", s.handleMetrics)
	s.router.GET("/apod", s.handleWeek)
	s.router.GET("/apod/:date", s.handleDay)
}

// Handler returns the router for use with httptest
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the configured listen address
func (s *Server) Addr() string {
	return s.http.Addr
}

// Start serves HTTP until Shutdown is called. It blocks.
func (s *Server) Start() error {
	s.log.Info("Starting HTTP server", logger.Fields{
		"address": s.http.Addr,
		"service": ServiceName,
		"version": s.opts.Version,
	})

	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and waits up to ShutdownTimeout for in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down HTTP server", logger.Fields{"address": s.http.Addr})

	ctx, cancel := context.WithTimeout(ctx, s.opts.ShutdownTimeout)
	defer cancel()

	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
