package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps objects in process memory. Useful for tests and local runs.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]Object
	signer  *URLSigner
}

// NewMemoryStore creates an empty store. signer may be nil, in which case
// PresignURL fails.
func NewMemoryStore(signer *URLSigner) *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]Object),
		signer:  signer,
	}
}

func (s *MemoryStore) GetObject(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.GetObjectWithType(ctx, key)
	if err != nil {
		return nil, err
	}
	return obj.Data, nil
}

func (s *MemoryStore) GetObjectWithType(ctx context.Context, key string) (*Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return &Object{Data: append([]byte(nil), obj.Data...), ContentType: obj.ContentType}, nil
}

func (s *MemoryStore) PutObject(ctx context.Context, key string, data []byte, contentType string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.objects[key] = Object{Data: append([]byte(nil), data...), ContentType: contentType}
	return nil
}

func (s *MemoryStore) DeleteObject(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.objects[key]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	delete(s.objects, key)
	return nil
}

func (s *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.objects[key]
	return ok, nil
}

func (s *MemoryStore) PresignURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if s.signer == nil {
		return "", fmt.Errorf("presign %s: no url signer configured", key)
	}
	ok, _ := s.Exists(ctx, key)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return s.signer.Sign(key, ttl)
}

// Keys returns all keys with the given prefix in lexical order.
func (s *MemoryStore) Keys(prefix string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
