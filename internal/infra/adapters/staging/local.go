package staging

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"invoice-intel/internal/config"
	"invoice-intel/internal/domain"
	"invoice-intel/internal/domain/ports/adapter"
)

var _ adapter.Staging = (*LocalStaging)(nil)

// LocalStaging implements the staging area over a local directory tree.
// File and folder references are paths relative to the root, so the same
// three-level root/shopId/kind hierarchy applies as with the drive variant.
type LocalStaging struct {
	root string
	cfg  *config.StagingConfig
}

func NewLocalStaging(cfg *config.StagingConfig) (*LocalStaging, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("local staging: empty root")
	}
	if err := os.MkdirAll(cfg.Root, 0o755); err != nil {
		return nil, fmt.Errorf("local staging: create root: %w", err)
	}
	return &LocalStaging{root: cfg.Root, cfg: cfg}, nil
}

func (s *LocalStaging) Fetch(ctx context.Context, fileID string) ([]byte, string, string, error) {
	p, err := s.abs(fileID)
	if err != nil {
		return nil, "", "", err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", "", fmt.Errorf("local staging fetch %s: %w", fileID, domain.ErrNotFound)
		}
		return nil, "", "", fmt.Errorf("local staging fetch %s: %w", fileID, err)
	}
	name := filepath.Base(p)
	mimeType := mime.TypeByExtension(filepath.Ext(name))
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	return data, mimeType, name, nil
}

func (s *LocalStaging) Move(ctx context.Context, fileID, destFolderID string) error {
	src, err := s.abs(fileID)
	if err != nil {
		return err
	}
	destDir, err := s.abs(destFolderID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("local staging move %s: %w", fileID, err)
	}
	if err := os.Rename(src, filepath.Join(destDir, filepath.Base(src))); err != nil {
		return fmt.Errorf("local staging move %s: %w", fileID, err)
	}
	return nil
}

func (s *LocalStaging) ResolveFolder(ctx context.Context, shopID string, kind adapter.FolderKind) (string, error) {
	if ref := s.cfg.FolderFor(shopID, string(kind)); ref != "" {
		return ref, nil
	}
	rel := filepath.ToSlash(filepath.Join(shopID, string(kind)))
	p, err := s.abs(rel)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(p, 0o755); err != nil {
		return "", fmt.Errorf("local staging resolve %s/%s: %w", shopID, kind, err)
	}
	return rel, nil
}

func (s *LocalStaging) ListFolder(ctx context.Context, folderID string) ([]adapter.StagedFile, error) {
	p, err := s.abs(folderID)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("local staging list %s: %w", folderID, err)
	}
	out := make([]adapter.StagedFile, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, adapter.StagedFile{
			ID:         filepath.ToSlash(filepath.Join(folderID, e.Name())),
			Name:       e.Name(),
			MimeType:   mime.TypeByExtension(filepath.Ext(e.Name())),
			Size:       info.Size(),
			ModifiedAt: info.ModTime(),
		})
	}
	return out, nil
}

func (s *LocalStaging) abs(ref string) (string, error) {
	clean := filepath.Clean("/" + filepath.ToSlash(ref))
	if strings.Contains(clean, "..") {
		return "", fmt.Errorf("local staging: invalid ref %q: %w", ref, domain.ErrInvalidArgument)
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}
