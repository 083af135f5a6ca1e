package controlapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pktforge/tgen/pkg/portmgr"
	"github.com/pktforge/tgen/pkg/statsexport"
	"github.com/pktforge/tgen/pkg/statsmon"
)

// Config configures the control API server.
type Config struct {
	Addr string
	Mgr  *portmgr.Manager
	Mon  *statsmon.Monitor
}

// Server is the HTTP control-plane server: port/stream CRUD, transmit and
// capture control, stats and link state reads, plus a Prometheus /metrics
// endpoint, adapted from the teacher's pkg/api.Server.
type Server struct {
	httpServer *http.Server
	mgr        *portmgr.Manager
	mon        *statsmon.Monitor
	captures   *captureRegistry
	startTime  time.Time
}

// NewServer builds a Server and wires its route table.
func NewServer(cfg Config) *Server {
	s := &Server{
		mgr:       cfg.Mgr,
		mon:       cfg.Mon,
		captures:  newCaptureRegistry(),
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.healthHandler)

	registry := prometheus.NewRegistry()
	registry.MustRegister(statsexport.New(s.mon, s.mgr.Ports()))
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("GET /api/v1/ports", s.listPortsHandler)
	mux.HandleFunc("GET /api/v1/ports/{id}", s.portHandler)
	mux.HandleFunc("GET /api/v1/ports/{id}/link", s.linkStateHandler)
	mux.HandleFunc("GET /api/v1/ports/{id}/stats", s.statsHandler)

	mux.HandleFunc("POST /api/v1/ports/{id}/streams", s.addStreamHandler)
	mux.HandleFunc("DELETE /api/v1/ports/{id}/streams", s.clearStreamsHandler)

	mux.HandleFunc("POST /api/v1/ports/{id}/transmit/start", s.startTransmitHandler)
	mux.HandleFunc("POST /api/v1/ports/{id}/transmit/stop", s.stopTransmitHandler)
	mux.HandleFunc("GET /api/v1/ports/{id}/transmit", s.isTransmitOnHandler)

	mux.HandleFunc("POST /api/v1/ports/{id}/capture/start", s.startCaptureHandler)
	mux.HandleFunc("POST /api/v1/ports/{id}/capture/stop", s.stopCaptureHandler)
	mux.HandleFunc("GET /api/v1/ports/{id}/capture/data", s.captureDataHandler)

	s.httpServer = &http.Server{
		Addr:    cfg.Addr,
		Handler: mux,
	}
	return s
}

// Run starts the HTTP server and blocks until ctx is cancelled, then shuts
// it down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("control API server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}
