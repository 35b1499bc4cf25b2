package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
)

// 存储层错误
var (
	// ErrNotFound 对象不存在
	ErrNotFound = errors.New("object not found")

	// ErrInvalidKey 对象键为空或包含非法路径
	ErrInvalidKey = errors.New("invalid object key")
)

// DefaultPresignTTL is the lifetime of presigned download URLs.
const DefaultPresignTTL = 24 * time.Hour

// ObjectStore stores blobs by key.
type ObjectStore interface {
	// GetObject returns ErrNotFound when the key does not exist.
	GetObject(ctx context.Context, key string) ([]byte, error)
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
	DeleteObject(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	// PresignURL returns a URL that downloads the object until ttl elapses.
	PresignURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Object is a stored blob with its content type.
type Object struct {
	Data        []byte
	ContentType string
}

// ContentTypeGetter is implemented by stores that remember content types.
type ContentTypeGetter interface {
	GetObjectWithType(ctx context.Context, key string) (*Object, error)
}

// SessionKey builds users/{userID}/{sessionID}/{parts...}.
func SessionKey(userID, sessionID string, parts ...string) string {
	elems := append([]string{"users", userID, sessionID}, parts...)
	return strings.Join(elems, "/")
}

// AgentKey builds users/{userID}/{sessionID}/agent{n}/{name}.
func AgentKey(userID, sessionID string, agentNumber int, name string) string {
	return SessionKey(userID, sessionID, fmt.Sprintf("agent%d", agentNumber), name)
}

// ValidateKey rejects empty keys and keys escaping the store root.
func ValidateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	clean := path.Clean(key)
	if clean != key || clean == "." || strings.HasPrefix(clean, "../") || clean == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

func resolveTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultPresignTTL
	}
	return ttl
}
