package server

import (
	"go.uber.org/zap"

	"github.com/iamBelugaa/kvs/internal/metrics"
	"github.com/iamBelugaa/kvs/internal/threadpool"
)

type Option func(*Server)

// WithPool runs connections on pool. The caller keeps ownership of pool and
// must shut it down after Run returns.
func WithPool(pool threadpool.Pool) Option {
	return func(s *Server) {
		s.pool = pool
	}
}

func WithLogger(log *zap.SugaredLogger) Option {
	return func(s *Server) {
		s.log = log
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}
