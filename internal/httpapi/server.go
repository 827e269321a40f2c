// Package httpapi serves the benchmark control API, the live metrics streams
// and the demo record endpoints over HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/torosent/kvscope/internal/bench"
	"github.com/torosent/kvscope/internal/metrics"
	"github.com/torosent/kvscope/internal/promexport"
	"github.com/torosent/kvscope/internal/publish"
	"github.com/torosent/kvscope/internal/sse"
	"github.com/torosent/kvscope/internal/store"
	"github.com/torosent/kvscope/internal/websocket"
	"github.com/torosent/kvscope/internal/workload"
)

// Options wires the server to the benchmark core.
type Options struct {
	Orchestrator *bench.Orchestrator
	Publisher    *publish.Publisher
	Generator    *workload.Generator
	Store        store.Store

	// OpTimeout bounds each demo endpoint's store call. Zero means none.
	OpTimeout time.Duration

	// Tracer wraps every request in a server span. Nil disables tracing.
	Tracer trace.Tracer
	// Propagate extracts W3C trace context from incoming requests.
	Propagate bool

	// KeepAlive is the idle interval between SSE keep-alive comments.
	KeepAlive time.Duration
	WebSocket websocket.ServerConfig

	Logger *zap.Logger
}

// Server holds the handlers. Build it with New and mount Handler.
type Server struct {
	opts    Options
	agg     *metrics.Aggregator
	metrics http.Handler
	logger  *zap.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

// New validates opts and prepares the Prometheus handler.
func New(opts Options) (*Server, error) {
	if opts.Orchestrator == nil {
		return nil, errors.New("httpapi: orchestrator is required")
	}
	if opts.Publisher == nil {
		return nil, errors.New("httpapi: publisher is required")
	}
	if opts.Generator == nil {
		return nil, errors.New("httpapi: generator is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = sse.DefaultKeepAlive
	}

	s := &Server{
		opts:   opts,
		agg:    opts.Orchestrator.Aggregator(),
		logger: opts.Logger,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	popts := promexport.Options{
		Running: func() bool { return opts.Orchestrator.Status().Running },
	}
	if pr, ok := opts.Store.(store.PoolReporter); ok {
		popts.Pool = pr.PoolStats
	}
	h, err := promexport.Handler(promexport.NewCollector(s.agg, popts))
	if err != nil {
		return nil, fmt.Errorf("httpapi: prometheus handler: %w", err)
	}
	s.metrics = h
	return s, nil
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	if s.opts.Tracer != nil {
		r.Use(s.traceRequests)
	}

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", s.metrics)

	r.Route("/api", func(r chi.Router) {
		// Streams are long-lived; response timing only applies to the rest.
		r.Get("/metrics/stream", s.handleMetricsStream)
		r.Get("/metrics/ws", s.handleMetricsWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(responseTiming)

			r.Get("/metrics", s.handleMetrics)

			r.Post("/benchmark/start", s.handleStart)
			r.Post("/benchmark/stop", s.handleStop)
			r.Get("/benchmark/status", s.handleStatus)

			r.Get("/users/{id}", s.handleGetUser)
			r.Post("/users", s.handleCreateUser)
			r.Get("/products/{id}", s.handleGetProduct)
			r.Get("/sessions/{id}", s.handleGetSession)
			r.Post("/sessions", s.handleCreateSession)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

// ListenAndServe serves Handler on addr until ctx ends, then drains open
// requests for up to shutdownTimeout. Open streams end when their request
// context is cancelled by the shutdown.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln, shutdownTimeout)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener, shutdownTimeout time.Duration) error {
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	// Streams never finish on their own, so end them before draining.
	cancelBase()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.opts.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.opts.Store.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// withRNG runs fn with the server's random source held.
func (s *Server) withRNG(fn func(rng *rand.Rand)) {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	fn(s.rng)
}
