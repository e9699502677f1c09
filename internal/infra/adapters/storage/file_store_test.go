package storage

import (
	"context"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"invoice-intel/internal/domain"
)

func newStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(t.TempDir(), "http://api.test", "test-sign-key")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func TestFileStore_PutGetRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newStore(t)
	key := "shops/shop1/invoices/J1/original.pdf"

	got, err := s.Put(ctx, key, []byte("pdf bytes"), "application/pdf")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if got != key {
		t.Fatalf("put must return the key, got %q", got)
	}

	data, contentType, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(data) != "pdf bytes" {
		t.Fatalf("bytes mismatch: %q", data)
	}
	if contentType != "application/pdf" {
		t.Fatalf("content type lost: %q", contentType)
	}
}

func TestFileStore_GetMissing(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	if _, _, err := s.Get(context.Background(), "shops/x/invoices/y/original.pdf"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestFileStore_KeysCannotEscapeRoot(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	root := t.TempDir()
	s, err := NewFileStore(root, "http://api.test", "test-sign-key")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	if _, err := s.Put(ctx, "", []byte("x"), ""); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("empty key must be rejected, got %v", err)
	}

	// Traversal segments are cleaned against the root, never above it.
	if _, err := s.Put(ctx, "../escape.txt", []byte("x"), ""); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "escape.txt")); err != nil {
		t.Fatalf("cleaned key must land inside the root: %v", err)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(root), "escape.txt")); err == nil {
		t.Fatal("key escaped the store root")
	}
}

func TestFileStore_PresignedRoundTrip(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	key := "shops/shop1/invoices/J1/processed.json"

	signed, err := s.PresignedReadURL(key, time.Minute)
	if err != nil {
		t.Fatalf("presign: %v", err)
	}
	if !strings.HasPrefix(signed, "http://api.test/files?token=") {
		t.Fatalf("unexpected url shape %q", signed)
	}

	u, err := url.Parse(signed)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	gotKey, err := s.ParseReadToken(u.Query().Get("token"))
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if gotKey != key {
		t.Fatalf("want key %q, got %q", key, gotKey)
	}
}

func TestFileStore_ExpiredTokenRejected(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	signed, err := s.PresignedReadURL("shops/shop1/invoices/J1/original.pdf", -time.Minute)
	if err != nil {
		t.Fatalf("presign: %v", err)
	}
	u, _ := url.Parse(signed)
	if _, err := s.ParseReadToken(u.Query().Get("token")); err == nil {
		t.Fatal("expired token must be rejected")
	}
}

func TestFileStore_ForeignKeyTokenRejected(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	other, err := NewFileStore(t.TempDir(), "http://api.test", "different-key")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	signed, err := other.PresignedReadURL("shops/shop1/invoices/J1/original.pdf", time.Minute)
	if err != nil {
		t.Fatalf("presign: %v", err)
	}
	u, _ := url.Parse(signed)
	if _, err := s.ParseReadToken(u.Query().Get("token")); err == nil {
		t.Fatal("token signed with a different key must be rejected")
	}
}
