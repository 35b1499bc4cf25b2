package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	fieldData        = "data"
	fieldContentType = "content_type"
)

// RedisStore stores each object as a hash holding the payload and its
// content type.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
	signer    *URLSigner
}

// RedisStoreOptions configures a RedisStore.
type RedisStoreOptions struct {
	KeyPrefix string
	// TTL expires objects after the given duration. Zero keeps them forever.
	TTL    time.Duration
	Signer *URLSigner
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client redis.UniversalClient, opts RedisStoreOptions) *RedisStore {
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = "visualflow:"
	}
	return &RedisStore{
		client:    client,
		keyPrefix: prefix + "object:",
		ttl:       opts.TTL,
		signer:    opts.Signer,
	}
}

func (s *RedisStore) objectKey(key string) string {
	return s.keyPrefix + key
}

func (s *RedisStore) GetObject(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.GetObjectWithType(ctx, key)
	if err != nil {
		return nil, err
	}
	return obj.Data, nil
}

func (s *RedisStore) GetObjectWithType(ctx context.Context, key string) (*Object, error) {
	vals, err := s.client.HMGet(ctx, s.objectKey(key), fieldData, fieldContentType).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s: %w", key, err)
	}
	if len(vals) != 2 || vals[0] == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	data, ok := vals[0].(string)
	if !ok {
		return nil, fmt.Errorf("unexpected payload type %T for %s", vals[0], key)
	}
	contentType, _ := vals[1].(string)
	return &Object{Data: []byte(data), ContentType: contentType}, nil
}

func (s *RedisStore) PutObject(ctx context.Context, key string, data []byte, contentType string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	rk := s.objectKey(key)

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, rk)
		pipe.HSet(ctx, rk, fieldData, data, fieldContentType, contentType)
		if s.ttl > 0 {
			pipe.Expire(ctx, rk, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) DeleteObject(ctx context.Context, key string) error {
	n, err := s.client.Del(ctx, s.objectKey(key)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return nil
}

func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.objectKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check object %s: %w", key, err)
	}
	return n > 0, nil
}

func (s *RedisStore) PresignURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if s.signer == nil {
		return "", errors.New("presign: no url signer configured")
	}
	ok, err := s.Exists(ctx, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return s.signer.Sign(key, ttl)
}

// Ping checks the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
