package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BaSui01/visualflow/internal/tlsutil"
)

// StoreType selects an ObjectStore backend.
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeFile   StoreType = "file"
	StoreTypeRedis  StoreType = "redis"
)

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
	// TLS enables the hardened client TLS config.
	TLS bool
}

// Config configures NewStore.
type Config struct {
	Type StoreType
	// BasePath is the root directory of the file backend.
	BasePath string
	// PublicBaseURL prefixes presigned URLs.
	PublicBaseURL string
	// SigningSecret signs download tokens. Presigning is disabled when empty.
	SigningSecret string
	KeyPrefix     string
	ObjectTTL     time.Duration
	Redis         RedisConfig
}

// NewStore builds the configured backend.
func NewStore(ctx context.Context, cfg Config) (ObjectStore, error) {
	var signer *URLSigner
	if cfg.SigningSecret != "" {
		s, err := NewURLSigner(cfg.PublicBaseURL, cfg.SigningSecret)
		if err != nil {
			return nil, err
		}
		signer = s
	}

	switch cfg.Type {
	case StoreTypeMemory, "":
		return NewMemoryStore(signer), nil
	case StoreTypeFile:
		if cfg.BasePath == "" {
			return nil, fmt.Errorf("file store requires a base path")
		}
		return NewFileStore(cfg.BasePath, signer)
	case StoreTypeRedis:
		opts := &redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		}
		if cfg.Redis.TLS {
			opts.TLSConfig = tlsutil.DefaultTLSConfig()
		}
		client := redis.NewClient(opts)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		return NewRedisStore(client, RedisStoreOptions{
			KeyPrefix: cfg.KeyPrefix,
			TTL:       cfg.ObjectTTL,
			Signer:    signer,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
