package metrics

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server serves /metrics for Prometheus scraping and /health for probes.
type Server struct {
	server *http.Server
	log    *zap.SugaredLogger
}

// NewServer creates a metrics HTTP server listening on addr.
func NewServer(addr string, gatherer prometheus.Gatherer, log *zap.SugaredLogger) *Server {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		EnableOpenMetrics:   true,
		MaxRequestsInFlight: 10,
		Timeout:             30 * time.Second,
		ErrorHandling:       promhttp.ContinueOnError,
	}))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK\n"))
	})

	return &Server{
		log: log,
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadTimeout:       30 * time.Second,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
	}
}

// Start listens on the configured address and blocks until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		s.log.Errorw("Metrics server failed to listen", "addr", s.server.Addr, "error", err)
		return err
	}
	return s.Serve(ln)
}

// Serve serves on ln and blocks until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.log.Infow("Starting metrics server", "addr", ln.Addr().String())

	if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
		s.log.Errorw("Metrics server failed", "error", err)
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		s.log.Errorw("Metrics server shutdown failed", "error", err)
		return err
	}

	s.log.Infow("Metrics server stopped")
	return nil
}
