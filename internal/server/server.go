// Package server exposes the execution session over HTTP: one route per
// capability, with all execution failures converted to in-band payload
// fields before they leave the process.
package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rgbkrk/honchkrow/internal/display"
	"github.com/rgbkrk/honchkrow/internal/kernel"
	"github.com/rgbkrk/honchkrow/internal/logger"
	"github.com/rgbkrk/honchkrow/internal/monitoring"
	"github.com/rgbkrk/honchkrow/internal/store"
)

// Server serves the kernel session API
type Server struct {
	addr     string
	baseURL  string
	origin   string
	session  kernel.Session
	images   store.ImageStore
	rewriter *display.Rewriter
	metrics  *monitoring.Metrics
	logger   *logger.Logger

	// Precomputed so repeated manifest fetches are byte-identical
	manifestJSON []byte
	openapiJSON  []byte

	server   *http.Server
	serverMu sync.RWMutex

	done  chan struct{}
	ready chan struct{}
}

// Config holds server configuration
type Config struct {
	// Addr is the listen address, e.g. ":8000"
	Addr string

	// BaseURL is the public URL advertised in the manifest and image
	// links; empty produces relative image links
	BaseURL string

	// AllowedOrigin is the CORS origin permitted to call the API
	AllowedOrigin string

	Session kernel.Session
	Images  store.ImageStore
	Metrics *monitoring.Metrics

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// NewServer creates a new server instance
func NewServer(cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8000"
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.Metrics == nil {
		cfg.Metrics = monitoring.NewMetrics()
	}

	srvLogger := logger.GetDefault()
	if srvLogger == nil {
		srvLogger = logger.New("info", "text", "server")
	} else {
		srvLogger = srvLogger.WithComponent("server")
	}

	images := cfg.Images
	if images == nil {
		images = store.NewMemory()
	}
	instrumented := store.NewInstrumented(images, cfg.Metrics)

	s := &Server{
		addr:     cfg.Addr,
		baseURL:  cfg.BaseURL,
		origin:   cfg.AllowedOrigin,
		session:  cfg.Session,
		images:   instrumented,
		rewriter: display.NewRewriter(instrumented, cfg.BaseURL),
		metrics:  cfg.Metrics,
		logger:   srvLogger,
		done:     make(chan struct{}),
		ready:    make(chan struct{}),
	}
	s.manifestJSON = buildManifest(cfg.BaseURL)
	s.openapiJSON = buildOpenAPI(cfg.BaseURL)

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.withLogging(s.withCORS(s.routes())),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the full middleware-wrapped handler; used by tests
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	// Plugin discovery and schema
	mux.HandleFunc("/.well-known/ai-plugin.json", s.handleManifest)
	mux.HandleFunc("/openapi.json", s.handleOpenAPI)
	mux.HandleFunc("/logo.png", s.handleLogo)

	// Kernel session API
	mux.HandleFunc("/api/run_cell", s.handleRunCell)
	mux.HandleFunc("/api/variable/", s.handleVariable)
	mux.HandleFunc("/images/", s.handleImage)

	// Operational endpoints
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/stats", s.handleStats)

	return mux
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	close(s.ready)

	s.logger.Info("Starting kernel server", logger.Fields{
		"address": s.addr,
	})
	return s.server.ListenAndServe()
}

// Ready returns a channel that is closed when the server is about to
// accept connections
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Stop gracefully shuts down the server
func (s *Server) Stop(ctx context.Context) error {
	close(s.done)

	s.logger.Info("Shutting down kernel server", logger.Fields{})
	return s.server.Shutdown(ctx)
}

// Middleware: withLogging tags each request with an ID and logs it
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := uuid.New().String()
		w.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(w, r)

		s.logger.Debug("HTTP request", logger.Fields{
			"request_id": requestID,
			"method":     r.Method,
			"path":       r.URL.Path,
			"duration":   time.Since(start).String(),
		})
	})
}

// Middleware: withCORS allows the configured agent origin to call the API
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", s.origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
