// Package server implements the puppeteerd HTTP server: the REST API and
// the SSE event stream.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/GoCodeAlone/puppeteer/events"
	"github.com/GoCodeAlone/puppeteer/memory"
	"github.com/GoCodeAlone/puppeteer/server/api"
	"github.com/GoCodeAlone/puppeteer/server/ws"
)

const defaultAddr = ":3000"

// Deps are the collaborators the server exposes.
type Deps struct {
	Board  api.Board
	Loops  api.Loops
	Memory memory.Store
	Bus    events.Bus
}

// Server is the puppeteerd HTTP server.
type Server struct {
	addr    string
	mux     *http.ServeMux
	httpSrv *http.Server
	hub     *ws.Hub
	detach  func()
	logger  *slog.Logger
}

// New creates a Server listening on addr and registers every route.
func New(addr string, deps Deps, ver string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = defaultAddr
	}
	if deps.Bus == nil {
		deps.Bus = events.Discard
	}
	s := &Server{
		addr:   addr,
		mux:    http.NewServeMux(),
		hub:    ws.NewHub(logger),
		logger: logger,
	}
	s.detach = s.hub.Attach(deps.Bus)

	h := &api.Handlers{
		Board:   deps.Board,
		Loops:   deps.Loops,
		Memory:  deps.Memory,
		Bus:     deps.Bus,
		Logger:  logger,
		Version: ver,
	}
	h.RegisterRoutes(s.mux)
	s.mux.HandleFunc("GET /events", s.hub.ServeSSE)

	base, cancel := context.WithCancel(context.Background())
	s.httpSrv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return base },
	}
	// SSE streams only end when their request context does.
	s.httpSrv.RegisterOnShutdown(cancel)
	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.logRequests(s.mux) }

// Start listens on the configured address and serves until Stop.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Stop. It returns nil after a
// graceful shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("server listening", slog.String("addr", ln.Addr().String()))
	if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop detaches from the event bus and gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.detach()
	return s.httpSrv.Shutdown(ctx)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("elapsed", time.Since(start)))
	})
}
