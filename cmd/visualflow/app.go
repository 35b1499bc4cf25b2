package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/visualflow/config"
	"github.com/BaSui01/visualflow/consistency"
	"github.com/BaSui01/visualflow/internal/database"
	"github.com/BaSui01/visualflow/internal/metrics"
	"github.com/BaSui01/visualflow/internal/telemetry"
	"github.com/BaSui01/visualflow/llm/image"
	"github.com/BaSui01/visualflow/llm/vision"
	"github.com/BaSui01/visualflow/session"
	"github.com/BaSui01/visualflow/status"
	"github.com/BaSui01/visualflow/storage"
)

// =============================================================================
// 🧩 运行时组件装配
// =============================================================================

// app holds the components shared by the agent subcommands.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	store     storage.ObjectStore
	pool      *database.PoolManager
	sessions  *session.Repository
	states    *consistency.StateStore
	reporter  *status.Reporter
	collector *metrics.Collector
	otel      *telemetry.Providers
	extractor *consistency.StyleExtractor
	replicate image.Provider
	gemini    image.Provider
}

// newApp wires every component from configuration. A missing database only
// disables session lookups.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	otelProviders, err := telemetry.Init(ctx, cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	a.otel = otelProviders

	a.collector = metrics.NewCollector(cfg.Metrics.Namespace, nil, logger)

	store, err := storage.NewStore(ctx, storageConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create object store: %w", err)
	}
	a.store = store
	a.states = consistency.NewStateStore(store, logger)

	pool, err := database.Open(cfg.Database, logger)
	if err != nil {
		logger.Warn("database not available, session lookups disabled", zap.Error(err))
	} else {
		a.pool = pool
		a.sessions = session.NewRepository(pool, logger)
	}

	sinks := []status.Sink{status.NewStorageSink(store)}
	if cfg.Orchestrator.StatusURL != "" {
		sinks = append(sinks, status.NewWebsocketSink(cfg.Orchestrator.StatusURL, cfg.Orchestrator.WriteTimeout, logger))
	}
	a.reporter = status.NewReporter(logger, sinks...)

	extractorOpts := []consistency.ExtractorOption{consistency.WithExtractorRecorder(a.collector)}
	if or := cfg.Providers.OpenRouter; or.APIKey != "" {
		extractorOpts = append(extractorOpts, consistency.WithVisionAnalyzer(vision.NewOpenRouterAnalyzer(vision.OpenRouterConfig{
			APIKey:  or.APIKey,
			BaseURL: or.BaseURL,
			Model:   or.Model,
			Timeout: or.Timeout,
		}, logger)))
	}
	a.extractor = consistency.NewStyleExtractor(nil, logger, extractorOpts...)

	if rc := cfg.Providers.Replicate; rc.APIToken != "" {
		a.replicate = image.NewReplicateProvider(replicateConfig(rc, rc.Model))
	}
	if gc := cfg.Providers.Gemini; gc.APIKey != "" {
		a.gemini = image.NewGeminiProvider(image.GeminiConfig{
			APIKey:  gc.APIKey,
			BaseURL: gc.BaseURL,
			Model:   gc.Model,
			Timeout: gc.Timeout,
		})
	}
	return a, nil
}

func storageConfig(cfg *config.Config) storage.Config {
	return storage.Config{
		Type:          storage.StoreType(cfg.Storage.Type),
		BasePath:      cfg.Storage.BasePath,
		PublicBaseURL: cfg.Storage.PublicBaseURL,
		SigningSecret: cfg.Storage.SigningSecret,
		KeyPrefix:     cfg.Storage.KeyPrefix,
		ObjectTTL:     cfg.Storage.ObjectTTL,
		Redis: storage.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
			TLS:      cfg.Redis.TLS,
		},
	}
}

func replicateConfig(rc config.ReplicateConfig, model string) image.ReplicateConfig {
	return image.ReplicateConfig{
		APIToken:     rc.APIToken,
		BaseURL:      rc.BaseURL,
		Model:        model,
		Timeout:      rc.Timeout,
		PollInterval: rc.PollInterval,
	}
}

// findSession loads a session, failing when no database is configured.
func (a *app) findSession(ctx context.Context, sessionID, userID string) (*session.VideoSession, error) {
	if a.sessions == nil {
		return nil, fmt.Errorf("database not configured: %w", session.ErrSessionNotFound)
	}
	return a.sessions.Find(ctx, sessionID, userID)
}

// close flushes metrics and releases connections.
func (a *app) close(ctx context.Context, job string) {
	if a.cfg.Metrics.Enabled {
		if err := a.collector.Push(ctx, a.cfg.Metrics.PushgatewayURL, job); err != nil {
			a.logger.Warn("failed to push metrics", zap.Error(err))
		}
	}
	if err := a.reporter.Close(); err != nil {
		a.logger.Warn("failed to close status reporter", zap.Error(err))
	}
	if a.pool != nil {
		if err := a.pool.Close(); err != nil {
			a.logger.Warn("failed to close database", zap.Error(err))
		}
	}
	if closer, ok := a.store.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
	if err := a.otel.Shutdown(ctx); err != nil {
		a.logger.Warn("failed to shut down telemetry", zap.Error(err))
	}
}
