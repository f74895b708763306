// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package observability serves metrics, health probes and a module status
// listing over HTTP.
package observability

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"
)

// ReadinessChecker reports whether the plugin directory has been loaded.
type ReadinessChecker func() bool

// Registration adds collectors to the server's registry.
type Registration func(prometheus.Registerer)

// ModuleStatus is one entry of the /plugins listing.
type ModuleStatus struct {
	Name      string    `json:"name"`
	Version   string    `json:"version"`
	Type      string    `json:"type"`
	State     string    `json:"state"`
	ID        string    `json:"id"`
	LoadedAt  time.Time `json:"loaded_at"`
	Commands  []string  `json:"commands,omitempty"`
	Listeners int       `json:"listeners"`
}

// ModuleLister snapshots the registered modules.
type ModuleLister func() []ModuleStatus

// Metrics holds the collectors the server owns.
type Metrics struct {
	BuildInfo *prometheus.GaugeVec
	Ready     prometheus.GaugeFunc
}

// NewMetrics creates and registers the server's own metrics.
func NewMetrics(reg prometheus.Registerer, isReady ReadinessChecker) *Metrics {
	m := &Metrics{
		BuildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "plugman_build_info",
				Help: "Build information; the value is always 1",
			},
			[]string{"version", "commit"},
		),
		Ready: prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "plugman_ready",
				Help: "1 when the readiness probe passes, 0 otherwise",
			},
			func() float64 {
				if ready(isReady) {
					return 1
				}
				return 0
			},
		),
	}
	reg.MustRegister(m.BuildInfo, m.Ready)
	return m
}

// SetBuildInfo publishes the running version.
func (m *Metrics) SetBuildInfo(version, commit string) {
	m.BuildInfo.WithLabelValues(version, commit).Set(1)
}

func ready(isReady ReadinessChecker) bool {
	return isReady == nil || isReady()
}

// Option configures a Server.
type Option func(*Server)

// WithRegistrations adds component collectors to the server's registry.
func WithRegistrations(regs ...Registration) Option {
	return func(s *Server) {
		for _, register := range regs {
			register(s.registry)
		}
	}
}

// WithModules serves the listing at /plugins. Without it the path is 404.
func WithModules(list ModuleLister) Option {
	return func(s *Server) { s.modules = list }
}

// Server serves /metrics, /healthz/liveness, /healthz/readiness and
// optionally /plugins.
type Server struct {
	addr       string
	registry   *prometheus.Registry
	metrics    *Metrics
	isReady    ReadinessChecker
	modules    ModuleLister
	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// NewServer creates a server for addr ("host:port"; port 0 picks one) with a
// private registry holding the Go and process collectors.
func NewServer(addr string, isReady ReadinessChecker, opts ...Option) *Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s := &Server{
		addr:     addr,
		registry: registry,
		metrics:  NewMetrics(registry, isReady),
		isReady:  isReady,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry returns the server's metrics registry.
func (s *Server) Registry() *prometheus.Registry { return s.registry }

// Metrics returns the server's own metrics.
func (s *Server) Metrics() *Metrics { return s.metrics }

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("GET /healthz/liveness", func(w http.ResponseWriter, _ *http.Request) {
		writeText(w, http.StatusOK, "ok")
	})
	mux.HandleFunc("GET /healthz/readiness", func(w http.ResponseWriter, _ *http.Request) {
		if ready(s.isReady) {
			writeText(w, http.StatusOK, "ok")
			return
		}
		writeText(w, http.StatusServiceUnavailable, "not ready")
	})
	if s.modules != nil {
		mux.HandleFunc("GET /plugins", s.handleModules)
	}
	return mux
}

// Start listens and serves in the background. The returned channel reports
// a serve failure and is closed once the server stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("observability server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	srv := &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = srv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := srv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("observability server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	slog.Info("observability server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop shuts the server down. Stopping a stopped server is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.With("operation", "shutdown observability server").Wrap(err)
		}
	}
	slog.Info("observability server stopped")
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) handleModules(w http.ResponseWriter, _ *http.Request) {
	statuses := s.modules()
	if statuses == nil {
		statuses = []ModuleStatus{}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(statuses); err != nil {
		slog.Debug("module listing write failed", "error", err)
	}
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	//nolint:errcheck // the client may have gone away
	w.Write([]byte(body + "\n"))
}
