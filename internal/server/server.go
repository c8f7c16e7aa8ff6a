// Package server exposes the orchestrator to content surfaces over HTTP and
// to listeners over a unix socket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/five82/jpdict/internal/flatdict"
	"github.com/five82/jpdict/internal/indicator"
	"github.com/five82/jpdict/internal/port"
	"github.com/five82/jpdict/internal/protocol"
)

const (
	shutdownTimeout = 5 * time.Second
	maxRequestBody  = 1 << 20
)

// Runtime is the orchestrator as seen by the transport.
type Runtime interface {
	// HandleRuntime answers a validated runtime request. A nil result is
	// encoded as JSON null.
	HandleRuntime(ctx context.Context, req protocol.RuntimeRequest) (any, error)
	// Toggle is the action button click.
	Toggle(ctx context.Context) error
	// Indicator returns what the action button currently shows.
	Indicator() indicator.Applied
	// ServeListener runs one listener connection until it disconnects.
	ServeListener(ctx context.Context, conn net.Conn)
}

// Options configures a Server.
type Options struct {
	Runtime    Runtime
	HTTPBind   string
	SocketPath string
	// Gatherer backs /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// Server owns the HTTP listener and the listener socket.
type Server struct {
	runtime    Runtime
	httpBind   string
	socketPath string
	gatherer   prometheus.Gatherer
	logger     *slog.Logger
}

// New creates a Server.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		runtime:    opts.Runtime,
		httpBind:   opts.HTTPBind,
		socketPath: opts.SocketPath,
		gatherer:   gatherer,
		logger:     logger,
	}
}

// Serve listens on both endpoints and blocks until ctx is cancelled or one of
// them fails.
func (s *Server) Serve(ctx context.Context) error {
	httpLn, err := net.Listen("tcp", s.httpBind)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.httpBind, err)
	}
	sockLn, err := port.Listen(s.socketPath)
	if err != nil {
		_ = httpLn.Close()
		return err
	}
	s.logger.Info("serving", "http", httpLn.Addr().String(), "socket", s.socketPath)

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Handler: s.Handler(),
		BaseContext: func(net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg.Go(func() error {
		if err := srv.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		return port.Accept(egctx, sockLn, s.runtime.ServeListener)
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.logger.Debug("shutting down http server")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.Recoverer,
		s.logRequests,
	)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	r.Post("/runtime", s.handleRuntime)
	r.Post("/toggle", s.handleToggle)
	r.Get("/indicator", s.handleIndicator)
	return r
}

func (s *Server) handleRuntime(w http.ResponseWriter, r *http.Request) {
	var req protocol.RuntimeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := s.runtime.HandleRuntime(r.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, flatdict.ErrNotLoaded) {
			status = http.StatusServiceUnavailable
		}
		s.logger.Warn("runtime request failed", "type", req.Type, "error", err)
		writeError(w, err.Error(), status)
		return
	}
	writeJSON(w, result, http.StatusOK)
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	if err := s.runtime.Toggle(r.Context()); err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleIndicator(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.runtime.Indicator(), http.StatusOK)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func writeJSON(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, map[string]string{"error": message}, status)
}
