// Package web provides an HTTP status server for the growlight daemon.
package web

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/sweeney/growlight/internal/metrics"
	"github.com/sweeney/growlight/internal/scheduler"
	"github.com/sweeney/growlight/internal/status"
	"github.com/sweeney/growlight/internal/update"
)

// DefaultMaxImageBytes bounds an uploaded firmware image.
const DefaultMaxImageBytes = 64 << 20

// HeaderImageSHA256 carries the optional hex SHA-256 of an uploaded image.
const HeaderImageSHA256 = "X-Image-SHA256"

// Options are the optional parts of the server. Nil fields disable the
// corresponding endpoint.
type Options struct {
	Metrics       *metrics.Metrics
	Updater       *update.Updater
	MaxImageBytes int64
	Logger        zerolog.Logger
}

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	opts       Options
	logger     zerolog.Logger
}

// New creates a Server that reads state from the given tracker.
func New(addr string, tracker *status.Tracker, opts Options) *Server {
	if opts.MaxImageBytes <= 0 {
		opts.MaxImageBytes = DefaultMaxImageBytes
	}
	s := &Server{
		tracker: tracker,
		opts:    opts,
		logger:  opts.Logger.With().Str("component", "http").Logger(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/", s.handleIndex)
	r.Get("/index.html", s.handleIndex)
	r.Get("/index.json", s.handleJSON)
	r.Get("/healthz", s.handleHealth)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}
	if opts.Updater != nil {
		r.Post("/update", s.handleUpdate)
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the router. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap); err != nil {
		s.logger.Error().Err(err).Msg("render index")
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

// handleHealth reports healthy once the scheduler has armed the alarms.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if snap.Phase != string(scheduler.PhaseScheduled) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("not scheduled\n"))
		return
	}
	w.Write([]byte("ok\n"))
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	_, password, ok := r.BasicAuth()
	if !ok || s.opts.Updater.Authorize(password) != nil {
		s.countUpdate("unauthorized")
		w.Header().Set("WWW-Authenticate", `Basic realm="growlight update"`)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	body := http.MaxBytesReader(w, r.Body, s.opts.MaxImageBytes)
	err := s.opts.Updater.Apply(r.Context(), body, r.Header.Get(HeaderImageSHA256))

	var tooLarge *http.MaxBytesError
	switch {
	case err == nil:
		s.countUpdate("ok")
		w.Write([]byte("installed, restarting\n"))
		return
	case errors.As(err, &tooLarge):
		s.countUpdate("too_large")
		http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
	case errors.Is(err, update.ErrBusy):
		s.countUpdate("busy")
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, update.ErrChecksum), errors.Is(err, update.ErrNotExecutable):
		s.countUpdate("rejected")
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		s.countUpdate("error")
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
	s.logger.Warn().Err(err).Msg("update failed")
}

func (s *Server) countUpdate(result string) {
	if s.opts.Metrics != nil {
		s.opts.Metrics.Updates.WithLabelValues(result).Inc()
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Msg("request")
	})
}
