package storage

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken 下载令牌无效或已过期
var ErrInvalidToken = errors.New("invalid download token")

const tokenIssuer = "visualflow-storage"

// URLSigner issues and verifies expiring download URLs. Tokens are HS256 JWTs
// whose subject is the object key.
type URLSigner struct {
	baseURL string
	secret  []byte
	now     func() time.Time
}

// NewURLSigner creates a signer. baseURL is the public prefix under which the
// object handler is mounted.
func NewURLSigner(baseURL, secret string) (*URLSigner, error) {
	if secret == "" {
		return nil, errors.New("url signer secret is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	return &URLSigner{
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  []byte(secret),
		now:     time.Now,
	}, nil
}

// Sign returns the download URL for key valid for ttl.
func (s *URLSigner) Sign(key string, ttl time.Duration) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	now := s.now()
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   key,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(resolveTTL(ttl))),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign download token: %w", err)
	}

	escaped := make([]string, 0)
	for _, part := range strings.Split(key, "/") {
		escaped = append(escaped, url.PathEscape(part))
	}
	return fmt.Sprintf("%s/%s?token=%s", s.baseURL, strings.Join(escaped, "/"), url.QueryEscape(token)), nil
}

// Verify checks that token grants access to key.
func (s *URLSigner) Verify(key, token string) error {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{},
		func(t *jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject != key {
		return fmt.Errorf("%w: token does not grant %q", ErrInvalidToken, key)
	}
	return nil
}
