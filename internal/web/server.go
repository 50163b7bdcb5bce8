// Package web provides an HTTP status server for the relay-sensor daemon.
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/relay-sensor/internal/dispatch"
	"github.com/sweeney/relay-sensor/internal/status"
)

// ErrBadRelayState is returned by RelayFunc for states it does not know.
var ErrBadRelayState = errors.New("web: relay state must be ON, OFF or TOGGLE")

// RelayFunc applies a relay request ("ON", "OFF" or "TOGGLE").
type RelayFunc func(state string) error

// Options configures optional endpoints.
type Options struct {
	// Gatherer serves /metrics when set.
	Gatherer prometheus.Gatherer
	// Relay enables POST /relay/{state} when set.
	Relay RelayFunc
	// WSInterval is the snapshot period on /ws.
	WSInterval time.Duration
	Logger     *slog.Logger
}

// DefaultWSInterval is the default snapshot period on /ws.
const DefaultWSInterval = time.Second

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	opts       Options
	logger     *slog.Logger
	done       chan struct{}
}

// New creates a Server that reads state from the given tracker.
func New(addr string, tracker *status.Tracker, opts Options) *Server {
	if opts.WSInterval <= 0 {
		opts.WSInterval = DefaultWSInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		tracker: tracker,
		opts:    opts,
		logger:  logger.With("component", "web"),
		done:    make(chan struct{}),
	}

	r := chi.NewRouter()
	r.Get("/", s.handleIndex)
	r.Get("/index.html", s.handleIndex)
	r.Get("/index.json", s.handleJSON)
	r.Get("/ws", s.handleWS)
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	if opts.Relay != nil {
		r.Post("/relay/{state}", s.handleRelay)
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Handler returns the router, for mounting under httptest.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown ends open snapshot streams and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap, s.opts.Relay != nil); err != nil {
		s.logger.Error("render index", "err", err)
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleRelay(w http.ResponseWriter, r *http.Request) {
	state := strings.ToUpper(chi.URLParam(r, "state"))
	err := s.opts.Relay(state)
	switch {
	case err == nil && isFormPost(r):
		http.Redirect(w, r, "/", http.StatusSeeOther)
	case err == nil:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		fmt.Fprintf(w, `{"relay":%q,"queued":true}`, state)
	case errors.Is(err, ErrBadRelayState):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, dispatch.ErrQueueFull):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		s.logger.Error("relay request", "state", state, "err", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// isFormPost reports whether the request came from the index page form.
func isFormPost(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return strings.HasPrefix(ct, "application/x-www-form-urlencoded") ||
		strings.HasPrefix(ct, "multipart/form-data")
}
