// Package helperserver runs the loopback HTTP server that lets the browser
// front end open host file dialogs and hand back a saved configuration.
package helperserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/colony-launcher/colony/internal/observability"
)

const (
	// DefaultPort is the helper's loopback port.
	DefaultPort = 20311
	// DefaultFrontendPort is the port of the front-end web tool whose origin
	// may call the helper.
	DefaultFrontendPort = 9283
	// DefaultBodyLimit caps configuration uploads.
	DefaultBodyLimit = 32 << 10

	bindAttempts  = 10
	bindBackoff   = 100 * time.Millisecond
	terminateWait = 2 * time.Second
	shutdownWait  = 5 * time.Second
	banner        = "The web server is up and running."
)

// ErrAlreadyStarted is returned by a second Start.
var ErrAlreadyStarted = errors.New("helper server already started")

// Options configures a Server.
type Options struct {
	Host         string
	Port         int
	FrontendPort int
	BodyLimit    int64

	Picker Picker
	// StartDir is where dialogs open.
	StartDir string
	// Translate maps a picked host path into the form the front end expects.
	Translate func(string) string
	// OnConfiguration is called with the saved path after a configuration
	// upload is written to disk.
	OnConfiguration func(path string)

	Logger *slog.Logger
	Client *http.Client
}

func (o *Options) applyDefaults() {
	if o.Host == "" {
		o.Host = "127.0.0.1"
	}

	if o.Port == 0 {
		o.Port = DefaultPort
	}

	if o.FrontendPort == 0 {
		o.FrontendPort = DefaultFrontendPort
	}

	if o.BodyLimit <= 0 {
		o.BodyLimit = DefaultBodyLimit
	}

	if o.Picker == nil {
		o.Picker = NoPicker{}
	}

	if o.Translate == nil {
		o.Translate = func(p string) string { return p }
	}

	if o.Client == nil {
		o.Client = observability.HTTPClient(terminateWait)
	}
}

// Server is a single-instance helper server.
type Server struct {
	opts   Options
	logger *slog.Logger

	mu   sync.Mutex
	srv  *http.Server
	addr net.Addr
	done chan struct{}
}

// New returns a server that is not yet listening.
func New(opts Options) *Server {
	opts.applyDefaults()

	return &Server{
		opts:   opts,
		logger: observability.Component(opts.Logger, "helperserver"),
		done:   make(chan struct{}),
	}
}

// Handler returns the routed handler without binding a socket.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Use(CORS(FrontendOrigins(s.opts.FrontendPort)...))

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, banner)
	})

	for _, route := range []struct {
		names []string
		h     http.HandlerFunc
	}{
		{[]string{"/choose-file", "/choosefile"}, s.chooseFile},
		{[]string{"/choose-files", "/choosefiles"}, s.chooseFiles},
		{[]string{"/choose-directory", "/choosedirectory"}, s.chooseDirectory},
		{[]string{"/choose-directories", "/choosedirectories"}, s.chooseDirectories},
	} {
		for _, name := range route.names {
			r.Get(name, route.h)
			r.Get(name+"/{rid}/{name}", route.h)
		}
	}

	r.Post("/config/json", s.saveConfiguration)
	r.Get("/terminate", s.terminate)

	return observability.HTTPHandler(r, "helperserver")
}

// Start asks any previous instance to exit, binds the port, and serves in the
// background. It returns the bound port.
func (s *Server) Start(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.srv != nil {
		return 0, ErrAlreadyStarted
	}

	s.requestTerminate(ctx, s.opts.Port)
	s.requestTerminate(ctx, s.opts.FrontendPort)

	ln, err := s.listen(ctx)
	if err != nil {
		return 0, err
	}

	s.addr = ln.Addr()
	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      0, // dialogs block until the user answers
	}

	go func() {
		defer close(s.done)

		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("helper server stopped", slog.String("error", err.Error()))
		}
	}()

	port := ln.Addr().(*net.TCPAddr).Port
	s.logger.Info("helper server listening", slog.Int("port", port))

	return port, nil
}

func (s *Server) listen(ctx context.Context) (net.Listener, error) {
	addr := net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))

	var lc net.ListenConfig

	var lastErr error

	for range bindAttempts {
		ln, err := lc.Listen(ctx, "tcp", addr)
		if err == nil {
			return ln, nil
		}

		lastErr = err

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(bindBackoff):
		}
	}

	return nil, fmt.Errorf("bind %s: %w", addr, lastErr)
}

// requestTerminate is best effort; nothing may be listening.
func (s *Server) requestTerminate(ctx context.Context, port int) {
	url := fmt.Sprintf("http://%s/terminate", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return
	}

	resp, err := s.opts.Client.Do(req)
	if err != nil {
		s.logger.Debug("no instance to terminate", slog.Int("port", port))
		return
	}

	_ = resp.Body.Close()
	s.logger.Info("asked previous instance to terminate", slog.Int("port", port))
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.addr
}

// Done is closed once the server stops serving.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown helper server: %w", err)
	}

	return nil
}

func (s *Server) terminate(w http.ResponseWriter, _ *http.Request) {
	_, _ = io.WriteString(w, "terminating")

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownWait)
		defer cancel()

		if err := s.Stop(ctx); err != nil {
			s.logger.Warn("terminate", slog.String("error", err.Error()))
		}
	}()
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		s.logger.Debug("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("elapsed", time.Since(start)),
		)
	})
}

func (s *Server) chooseFile(w http.ResponseWriter, r *http.Request) {
	path, ok, err := s.opts.Picker.PickFile(r.Context(), s.opts.StartDir)
	s.writeOne(w, r, path, ok, err)
}

func (s *Server) chooseDirectory(w http.ResponseWriter, r *http.Request) {
	path, ok, err := s.opts.Picker.PickDirectory(r.Context(), s.opts.StartDir)
	s.writeOne(w, r, path, ok, err)
}

func (s *Server) chooseFiles(w http.ResponseWriter, r *http.Request) {
	paths, ok, err := s.opts.Picker.PickFiles(r.Context(), s.opts.StartDir)
	s.writeMany(w, r, paths, ok, err)
}

func (s *Server) chooseDirectories(w http.ResponseWriter, r *http.Request) {
	paths, ok, err := s.opts.Picker.PickDirectories(r.Context(), s.opts.StartDir)
	s.writeMany(w, r, paths, ok, err)
}

func (s *Server) writeOne(w http.ResponseWriter, r *http.Request, path string, ok bool, err error) {
	if err != nil {
		s.dialogFailed(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	if !ok {
		return
	}

	_, _ = io.WriteString(w, s.opts.Translate(path))
}

func (s *Server) writeMany(w http.ResponseWriter, r *http.Request, paths []string, ok bool, err error) {
	if err != nil {
		s.dialogFailed(w, r, err)
		return
	}

	out := make([]string, 0, len(paths))
	if ok {
		for _, p := range paths {
			out = append(out, s.opts.Translate(p))
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func (s *Server) dialogFailed(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("file dialog failed",
		slog.String("path", r.URL.Path),
		slog.String("rid", chi.URLParam(r, "rid")),
		slog.String("error", err.Error()),
	)
	http.Error(w, "file dialog failed", http.StatusInternalServerError)
}

func (s *Server) saveConfiguration(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.opts.BodyLimit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "configuration too large", http.StatusRequestEntityTooLarge)
			return
		}

		http.Error(w, "read body", http.StatusBadRequest)

		return
	}

	if !json.Valid(body) {
		http.Error(w, "configuration is not JSON", http.StatusBadRequest)
		return
	}

	path, ok, err := s.opts.Picker.SaveFile(r.Context(), s.opts.StartDir, "configuration.json")
	if err != nil {
		s.dialogFailed(w, r, err)
		return
	}

	if !ok {
		s.logger.Info("configuration save cancelled")
		_, _ = io.WriteString(w, "cancelled")

		return
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		s.logger.Error("save configuration", slog.String("error", err.Error()))
		http.Error(w, "save configuration", http.StatusInternalServerError)

		return
	}

	if err := os.WriteFile(path, body, 0o644); err != nil {
		s.logger.Error("save configuration", slog.String("error", err.Error()))
		http.Error(w, "save configuration", http.StatusInternalServerError)

		return
	}

	s.logger.Info("configuration saved", slog.String("path", path))

	if s.opts.OnConfiguration != nil {
		s.opts.OnConfiguration(path)
	}

	_, _ = io.WriteString(w, "response")
}
