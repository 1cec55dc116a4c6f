package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/percolator-ci/percolator/metrics"
)

const (
	DefaultHealthzAddr = "0.0.0.0:8080"
	DefaultMetricsAddr = "0.0.0.0:7300"
)

// Service hosts the harness's sidecar HTTP endpoints: a healthz probe
// and a Prometheus metrics server. Both run for the lifetime of the
// process, independent of individual test runs.
type Service struct {
	log     *slog.Logger
	Healthz *HealthzServer
	Metrics *MetricsServer
}

func New(log *slog.Logger) *Service {
	s := &Service{
		log:     log,
		Healthz: &HealthzServer{},
		Metrics: &MetricsServer{},
	}
	return s
}

func (s *Service) Start(ctx context.Context, healthzAddr, metricsAddr string) {
	s.log.Info("service starting")

	go func() {
		s.log.Info("starting healthz server", "addr", healthzAddr)
		if err := s.Healthz.Start(ctx, healthzAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("error starting healthz server", "err", err)
			metrics.RecordErrorDetails("error starting healthz server", err)
		}
	}()

	go func() {
		s.log.Info("starting metrics server", "addr", metricsAddr)
		if err := s.Metrics.Start(ctx, metricsAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("error starting metrics server", "err", err)
			metrics.RecordErrorDetails("error starting metrics server", err)
		}
	}()

	s.log.Info("service started")
}

func (s *Service) Shutdown() {
	s.log.Info("service shutting down")

	_ = s.Healthz.Shutdown()
	s.log.Info("healthz stopped")

	_ = s.Metrics.Shutdown()
	s.log.Info("metrics stopped")

	s.log.Info("service stopped")
}
