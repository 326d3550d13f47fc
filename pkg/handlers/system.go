package handlers

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hxrts/aura-sub001/pkg/aerr"
)

// SystemHandler backs the system effect: slog-routed logging, a process
// config map, health, and a counter snapshot for metrics.
type SystemHandler struct {
	mu      sync.RWMutex
	logger  *slog.Logger
	config  map[string]string
	metrics map[string]float64
}

// NewSystemHandler returns a handler logging through the given logger
// (slog.Default when nil).
func NewSystemHandler(logger *slog.Logger) *SystemHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SystemHandler{
		logger:  logger,
		config:  make(map[string]string),
		metrics: make(map[string]float64),
	}
}

func (s *SystemHandler) Log(ctx context.Context, level, component, message string) error {
	return s.LogWithContext(ctx, level, component, message, nil)
}

func (s *SystemHandler) LogWithContext(ctx context.Context, level, component, message string, fields map[string]string) error {
	attrs := make([]any, 0, 2+2*len(fields))
	attrs = append(attrs, "component", component)
	for k, v := range fields {
		attrs = append(attrs, k, v)
	}
	switch level {
	case "ERROR":
		s.logger.ErrorContext(ctx, message, attrs...)
	case "WARN":
		s.logger.WarnContext(ctx, message, attrs...)
	case "DEBUG":
		s.logger.DebugContext(ctx, message, attrs...)
	default:
		s.logger.InfoContext(ctx, message, attrs...)
	}
	s.mu.Lock()
	s.metrics["log."+level]++
	s.mu.Unlock()
	return nil
}

func (s *SystemHandler) SetConfig(ctx context.Context, key, value string) error {
	if key == "" {
		return aerr.Internal("empty config key")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config[key] = value
	return nil
}

func (s *SystemHandler) GetConfig(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.config[key]
	if !ok {
		return "", aerr.Storage("config key %q not set", key)
	}
	return v, nil
}

func (s *SystemHandler) HealthCheck(ctx context.Context) (bool, error) { return true, nil }

func (s *SystemHandler) Metrics(ctx context.Context) (map[string]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]float64, len(s.metrics))
	for k, v := range s.metrics {
		out[k] = v
	}
	return out, nil
}

// Count bumps a named metric counter, reported by Metrics.
func (s *SystemHandler) Count(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics[name]++
}
