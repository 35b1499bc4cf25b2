package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const contentTypeSuffix = ".content-type"

// FileStore stores objects under a base directory. The content type of each
// object is kept in a sidecar file.
type FileStore struct {
	basePath string
	signer   *URLSigner
}

// NewFileStore creates the base directory if needed.
func NewFileStore(basePath string, signer *URLSigner) (*FileStore, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base path: %w", err)
	}
	return &FileStore{basePath: basePath, signer: signer}, nil
}

func (s *FileStore) path(key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	if strings.HasSuffix(key, contentTypeSuffix) {
		return "", fmt.Errorf("%w: reserved suffix in %q", ErrInvalidKey, key)
	}
	return filepath.Join(s.basePath, filepath.FromSlash(key)), nil
}

func (s *FileStore) GetObject(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.GetObjectWithType(ctx, key)
	if err != nil {
		return nil, err
	}
	return obj.Data, nil
}

func (s *FileStore) GetObjectWithType(ctx context.Context, key string) (*Object, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", key, err)
	}

	contentType := "application/octet-stream"
	if ct, err := os.ReadFile(p + contentTypeSuffix); err == nil && len(ct) > 0 {
		contentType = string(ct)
	}
	return &Object{Data: data, ContentType: contentType}, nil
}

func (s *FileStore) PutObject(ctx context.Context, key string, data []byte, contentType string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("failed to create object dir: %w", err)
	}

	// 先写临时文件再重命名，保证整对象替换
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write object %s: %w", key, err)
	}
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to commit object %s: %w", key, err)
	}
	if err := os.WriteFile(p+contentTypeSuffix, []byte(contentType), 0o644); err != nil {
		return fmt.Errorf("failed to write content type for %s: %w", key, err)
	}
	return nil
}

func (s *FileStore) DeleteObject(ctx context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}
	_ = os.Remove(p + contentTypeSuffix)
	return nil
}

func (s *FileStore) Exists(ctx context.Context, key string) (bool, error) {
	p, err := s.path(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

func (s *FileStore) PresignURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if s.signer == nil {
		return "", fmt.Errorf("presign %s: no url signer configured", key)
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
