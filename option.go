package gorrpay

import (
	"github.com/gorrillazz/gorrpay/logger"
	"github.com/gorrillazz/gorrpay/metrics"
	"github.com/gorrillazz/gorrpay/store"
)

type Option func(*Service)

// WithLogger overrides the default zap logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// WithMetrics overrides the metrics recorder.
func WithMetrics(r metrics.Recorder) Option {
	return func(s *Service) {
		s.metrics = r
	}
}

// WithStore overrides the default in-memory intent store, e.g. with a
// store.BoltStore for persistence across restarts.
func WithStore(st store.IntentStore) Option {
	return func(s *Service) {
		s.store = st
	}
}
