// =============================================================================
// 📦 VisualFlow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Log:          DefaultLogConfig(),
		Storage:      DefaultStorageConfig(),
		Redis:        DefaultRedisConfig(),
		Database:     DefaultDatabaseConfig(),
		Providers:    DefaultProvidersConfig(),
		Batch:        DefaultBatchConfig(),
		Orchestrator: DefaultOrchestratorConfig(),
		Telemetry:    DefaultTelemetryConfig(),
		Metrics:      DefaultMetricsConfig(),
		Server:       DefaultServerConfig(),
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultStorageConfig 返回默认对象存储配置
func DefaultStorageConfig() StorageConfig {
	return StorageConfig{
		Type:          "file",
		BasePath:      "./data/objects",
		PublicBaseURL: "http://localhost:8080/objects",
		KeyPrefix:     "visualflow:",
		PresignTTL:    24 * time.Hour,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:     "localhost:6379",
		DB:       0,
		PoolSize: 10,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "postgres",
		Host:            "localhost",
		Port:            5432,
		User:            "visualflow",
		Name:            "visualflow",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultProvidersConfig 返回默认服务商配置
func DefaultProvidersConfig() ProvidersConfig {
	return ProvidersConfig{
		Replicate: ReplicateConfig{
			BaseURL:      "https://api.replicate.com",
			Model:        "flux-1.1-pro",
			Timeout:      120 * time.Second,
			PollInterval: 2 * time.Second,
		},
		Gemini: GeminiConfig{
			BaseURL: "https://generativelanguage.googleapis.com",
			Model:   "gemini-2.5-flash-image",
			Timeout: 120 * time.Second,
		},
		OpenRouter: OpenRouterConfig{
			BaseURL: "https://openrouter.ai/api/v1",
			Model:   "google/gemini-2.0-flash-exp:free",
			Timeout: 60 * time.Second,
		},
	}
}

// DefaultBatchConfig 返回默认批量生成配置
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		Model:          "flux-schnell",
		ImagesPerPart:  2,
		MaxConcurrency: 8,
		RateInterval:   200 * time.Millisecond,
	}
}

// DefaultOrchestratorConfig 返回默认编排器配置
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		WriteTimeout: 10 * time.Second,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "visualflow",
		SampleRate:   0.1,
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   true,
		Namespace: "visualflow",
	}
}

// DefaultServerConfig 返回默认对象下载服务配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            ":8080",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    60 * time.Second,
		ShutdownTimeout: 15 * time.Second,
	}
}
