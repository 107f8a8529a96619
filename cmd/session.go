// File: cmd/session.go
package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/nullvane/argus-cli/internal/config"
	"github.com/nullvane/argus-cli/internal/console"
	"github.com/nullvane/argus-cli/internal/metrics"
	"github.com/nullvane/argus-cli/internal/observability"
	"github.com/nullvane/argus-cli/internal/persist"
	"github.com/nullvane/argus-cli/internal/platform"
)

// session wires the console to its concrete dependencies for one command
// invocation: platform client, snapshot store, metrics collector, logger.
type session struct {
	console   *console.Console
	snapshots *persist.Store
	collector metrics.Collector
	logger    *zap.Logger

	metricsSrv *http.Server
}

// newSession builds the dependency graph from the loaded configuration.
func newSession(ctx context.Context, cfg *config.Config) (*session, error) {
	logger := observability.GetLogger()

	var collector metrics.Collector = &metrics.NopCollector{}
	if cfg.Metrics.Enabled {
		collector = metrics.NewPrometheusCollector(&metrics.PrometheusConfig{
			Namespace:              "",
			RegisterConsoleMetrics: true,
		})
	}

	client, err := platform.NewClient(platform.Options{
		BaseURL:        cfg.Platform.BaseURL,
		APIKey:         cfg.Platform.APIKey,
		RequestTimeout: cfg.Platform.RequestTimeout,
		RateLimit:      cfg.Platform.RateLimit,
		RateBurst:      cfg.Platform.RateBurst,
		Logger:         logger,
		Metrics:        collector,
	})
	if err != nil {
		return nil, fmt.Errorf("building platform client: %w", err)
	}

	dbPath, err := cfg.Storage.ResolvePath()
	if err != nil {
		return nil, fmt.Errorf("resolving snapshot path: %w", err)
	}
	snapshots, err := persist.Open(persist.Options{
		Path:             dbPath,
		CompressionLevel: cfg.Storage.CompressionLevel,
		Logger:           logger,
		Metrics:          collector,
	})
	if err != nil {
		return nil, fmt.Errorf("opening snapshot store: %w", err)
	}

	c, err := console.New(ctx, console.Options{
		Pipeline:  client,
		Snapshots: snapshots,
		Logger:    logger,
		Metrics:   collector,
	})
	if err != nil {
		snapshots.Close()
		return nil, fmt.Errorf("building console: %w", err)
	}

	return &session{
		console:   c,
		snapshots: snapshots,
		collector: collector,
		logger:    logger,
	}, nil
}

// serveMetrics exposes the Prometheus handler for long-lived commands.
// No-op when metrics are disabled.
func (s *session) serveMetrics(cfg *config.Config) {
	if !cfg.Metrics.Enabled {
		return
	}

	s.metricsSrv = &http.Server{
		Addr:    cfg.Metrics.ListenAddr,
		Handler: s.collector.Handler(),
	}
	go func() {
		if err := s.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Warn("Metrics endpoint failed.", zap.Error(err))
		}
	}()
	s.logger.Info("Metrics endpoint listening.", zap.String("addr", cfg.Metrics.ListenAddr))
}

// close tears the session down in reverse dependency order.
func (s *session) close() {
	if s.metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = s.metricsSrv.Shutdown(shutdownCtx)
		cancel()
	}
	s.console.Close()
	if err := s.snapshots.Close(); err != nil {
		s.logger.Warn("Snapshot store close failed.", zap.Error(err))
	}
}
