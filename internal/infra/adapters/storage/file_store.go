package storage

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"invoice-intel/internal/domain"
	"invoice-intel/internal/domain/ports/adapter"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.ObjectStore = (*FileStore)(nil)

// FileStore is a durable object store on the local filesystem. Artifact keys
// map to paths under root; a sidecar file records the content type. Read
// access from outside goes through HMAC-signed presigned URLs redeemed by
// the admin API.
type FileStore struct {
	root    string
	baseURL string
	signKey []byte
}

func NewFileStore(root, baseURL, signKey string) (*FileStore, error) {
	if root == "" {
		return nil, fmt.Errorf("file store: empty root")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("file store: create root: %w", err)
	}
	return &FileStore{
		root:    root,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		signKey: []byte(signKey),
	}, nil
}

func (s *FileStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	p, err := s.pathFor(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("file store put %s: %w", key, err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", fmt.Errorf("file store put %s: %w", key, err)
	}
	if contentType != "" {
		if err := os.WriteFile(p+".mime", []byte(contentType), 0o644); err != nil {
			return "", fmt.Errorf("file store put %s: %w", key, err)
		}
	}
	return key, nil
}

func (s *FileStore) Get(ctx context.Context, key string) ([]byte, string, error) {
	p, err := s.pathFor(key)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", domain.ErrNotFound
		}
		return nil, "", fmt.Errorf("file store get %s: %w", key, err)
	}
	contentType := "application/octet-stream"
	if mb, err := os.ReadFile(p + ".mime"); err == nil && len(mb) > 0 {
		contentType = string(mb)
	}
	return data, contentType, nil
}

// PresignedReadURL returns a time-limited URL for a stored artifact. The key
// travels inside an HS256-signed token so the download endpoint needs no
// database lookup to authorize it.
func (s *FileStore) PresignedReadURL(key string, ttl time.Duration) (string, error) {
	if _, err := s.pathFor(key); err != nil {
		return "", err
	}
	claims := jwt.RegisteredClaims{
		Subject:   key,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signKey)
	if err != nil {
		return "", fmt.Errorf("file store presign %s: %w", key, err)
	}
	return fmt.Sprintf("%s/files?token=%s", s.baseURL, url.QueryEscape(tok)), nil
}

// ParseReadToken validates a presigned token and returns the artifact key.
func (s *FileStore) ParseReadToken(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.signKey, nil
	})
	if err != nil {
		return "", err
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", domain.ErrInvalidArgument
	}
	return claims.Subject, nil
}

func (s *FileStore) pathFor(key string) (string, error) {
	clean := path.Clean("/" + key)
	if clean == "/" || strings.Contains(clean, "..") {
		return "", fmt.Errorf("file store: invalid key %q: %w", key, domain.ErrInvalidArgument)
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}
