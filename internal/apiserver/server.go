// Package apiserver serves the versioned envelope API over HTTP.
//
// One endpoint accepts a request envelope and answers with a response
// envelope under the same version tag. Envelopes addressed to the local
// machine run here; remote targets are refused with 422 until remote
// execution exists.
package apiserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/colony-launcher/colony/internal/helperserver"
	"github.com/colony-launcher/colony/internal/journal"
	"github.com/colony-launcher/colony/internal/observability"
	"github.com/colony-launcher/colony/internal/singularity"
	"github.com/colony-launcher/colony/internal/supervisor"
)

const (
	// PathAPI is the envelope endpoint.
	PathAPI = "/api"
	// PathHealth answers liveness probes.
	PathHealth = "/health"

	// DefaultBodyLimit caps request envelopes.
	DefaultBodyLimit = 32 << 10

	wait = 15 * time.Second
)

// Options configures a Server.
type Options struct {
	Addr      string
	BodyLimit int64
	// Origins are the browser origins allowed by CORS.
	Origins []string

	Supervisor *supervisor.Supervisor
	Host       singularity.Host
	// Journal records every envelope when set.
	Journal *journal.Journal
	// DownloadDir receives DownloadData results.
	DownloadDir string

	Client *http.Client
	Logger *slog.Logger
}

// Server is the envelope API server.
type Server struct {
	opts   Options
	logger *slog.Logger
	sup    *supervisor.Supervisor
	client *http.Client

	// baseCtx outlives single requests; background downloads use it.
	baseCtx context.Context
	cancel  context.CancelFunc

	terminate chan struct{}
	stopOnce  sync.Once
}

// New returns a server that is not yet listening.
func New(opts Options) *Server {
	if opts.BodyLimit <= 0 {
		opts.BodyLimit = DefaultBodyLimit
	}

	sup := opts.Supervisor
	if sup == nil {
		sup = supervisor.New(supervisor.Options{Logger: opts.Logger})
	}

	client := opts.Client
	if client == nil {
		client = observability.HTTPClient(0)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		opts:      opts,
		logger:    observability.Component(opts.Logger, "apiserver"),
		sup:       sup,
		client:    client,
		baseCtx:   ctx,
		cancel:    cancel,
		terminate: make(chan struct{}),
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc(PathHealth, s.Health).Methods(http.MethodGet)
	router.HandleFunc(PathAPI, s.API).Methods(http.MethodPost, http.MethodGet)
	router.Use(s.loggingMiddleware)

	// CORS wraps the router so preflights reach it before method matching.
	return observability.HTTPHandler(helperserver.CORS(s.opts.Origins...)(router), "apiserver")
}

// Terminated is closed once a Terminate operation was served.
func (s *Server) Terminated() <-chan struct{} {
	return s.terminate
}

// ListenAndServe serves until ctx ends or a Terminate operation arrives, then
// shuts down gracefully and kills every job it started.
func (s *Server) ListenAndServe(ctx context.Context) error {
	defer s.cancel()
	defer s.sup.Shutdown()

	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.opts.Addr, err)
	}

	httpserver := &http.Server{
		Handler:      s.Handler(),
		WriteTimeout: wait,
		ReadTimeout:  wait,
	}

	serveErr := make(chan error, 1)

	go func() {
		s.logger.Info("listening", slog.String("addr", ln.Addr().String()))
		serveErr <- httpserver.Serve(ln)
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}

		return nil
	case <-ctx.Done():
	case <-s.terminate:
		s.logger.Info("terminate requested")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()

	if err := httpserver.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	return nil
}

func (s *Server) requestTerminate() {
	s.stopOnce.Do(func() { close(s.terminate) })
}

// Health answers liveness probes.
func (s *Server) Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.logger.Debug("request",
			slog.String("method", r.Method),
			slog.String("uri", r.RequestURI),
			slog.Int64("content_length", r.ContentLength),
			slog.String("remote", r.RemoteAddr),
		)
		next.ServeHTTP(w, r)
	})
}
