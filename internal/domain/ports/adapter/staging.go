package adapter

import (
	"context"
	"time"
)

type FolderKind string

const (
	FolderUnprocessed FolderKind = "unprocessed"
	FolderProcessed   FolderKind = "processed"
	FolderFailed      FolderKind = "failed"
)

type StagedFile struct {
	ID         string
	Name       string
	MimeType   string
	Size       int64
	ModifiedAt time.Time
}

// Staging is the source-file staging area: a hierarchical folder tree with
// move semantics (root/shopId/kind).
type Staging interface {
	// Fetch returns the raw bytes, detected mime type and display name of a
	// staged file.
	Fetch(ctx context.Context, fileID string) (data []byte, mimeType, name string, err error)

	// Move relocates a file into the destination folder.
	Move(ctx context.Context, fileID, destFolderID string) error

	// ResolveFolder returns the folder reference for (shop, kind), reading a
	// pre-provisioned mapping first and lazily creating the three-level
	// hierarchy when no mapping exists.
	ResolveFolder(ctx context.Context, shopID string, kind FolderKind) (string, error)

	// ListFolder enumerates the files directly inside a folder.
	ListFolder(ctx context.Context, folderID string) ([]StagedFile, error)
}
