package staging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"invoice-intel/internal/config"
	"invoice-intel/internal/domain"
	"invoice-intel/internal/domain/ports/adapter"
)

var _ adapter.Staging = (*DriveStaging)(nil)

const folderMimeType = "application/vnd.google-apps.folder"

// DriveStaging implements the staging area against the Google Drive v3 REST
// API. Folder resolution consults the configured (shop, kind) mapping first
// and falls back to discovery, lazily creating the root/shopId/kind
// hierarchy when it does not exist yet.
type DriveStaging struct {
	base   string
	token  string
	root   string
	cfg    *config.StagingConfig
	client *http.Client
}

func NewDriveStaging(cfg *config.StagingConfig) (*DriveStaging, error) {
	if cfg.Drive.AccessToken == "" {
		return nil, fmt.Errorf("drive staging: empty access token")
	}
	if cfg.Drive.RootFolder == "" {
		return nil, fmt.Errorf("drive staging: empty root folder")
	}
	return &DriveStaging{
		base:   strings.TrimSuffix(cfg.Drive.BaseURL, "/"),
		token:  cfg.Drive.AccessToken,
		root:   cfg.Drive.RootFolder,
		cfg:    cfg,
		client: &http.Client{Timeout: 60 * time.Second},
	}, nil
}

type driveFile struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	MimeType     string   `json:"mimeType"`
	Size         string   `json:"size"`
	ModifiedTime string   `json:"modifiedTime"`
	Parents      []string `json:"parents"`
}

func (d *DriveStaging) Fetch(ctx context.Context, fileID string) ([]byte, string, string, error) {
	var meta driveFile
	if err := d.getJSON(ctx, fmt.Sprintf("/files/%s?fields=id,name,mimeType", url.PathEscape(fileID)), &meta); err != nil {
		return nil, "", "", fmt.Errorf("drive fetch metadata %s: %w", fileID, err)
	}

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/files/%s?alt=media", d.base, url.PathEscape(fileID)), nil)
	resp, err := d.do(req)
	if err != nil {
		return nil, "", "", fmt.Errorf("drive fetch %s: %w", fileID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, "", "", fmt.Errorf("drive fetch %s: %w", fileID, domain.ErrNotFound)
	}
	if resp.StatusCode >= 300 {
		return nil, "", "", fmt.Errorf("drive fetch %s: http %d", fileID, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", "", fmt.Errorf("drive fetch %s: %w", fileID, err)
	}
	mimeType := meta.MimeType
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	return data, mimeType, meta.Name, nil
}

func (d *DriveStaging) Move(ctx context.Context, fileID, destFolderID string) error {
	var meta driveFile
	if err := d.getJSON(ctx, fmt.Sprintf("/files/%s?fields=parents", url.PathEscape(fileID)), &meta); err != nil {
		return fmt.Errorf("drive move %s: %w", fileID, err)
	}

	q := url.Values{"addParents": {destFolderID}}
	if len(meta.Parents) > 0 {
		q.Set("removeParents", strings.Join(meta.Parents, ","))
	}
	req, _ := http.NewRequestWithContext(ctx, http.MethodPatch,
		fmt.Sprintf("%s/files/%s?%s", d.base, url.PathEscape(fileID), q.Encode()),
		strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	resp, err := d.do(req)
	if err != nil {
		return fmt.Errorf("drive move %s: %w", fileID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("drive move %s: http %d", fileID, resp.StatusCode)
	}
	return nil
}

func (d *DriveStaging) ResolveFolder(ctx context.Context, shopID string, kind adapter.FolderKind) (string, error) {
	if id := d.cfg.FolderFor(shopID, string(kind)); id != "" {
		return id, nil
	}
	shopFolder, err := d.findOrCreateFolder(ctx, d.root, shopID)
	if err != nil {
		return "", fmt.Errorf("drive resolve %s/%s: %w", shopID, kind, err)
	}
	kindFolder, err := d.findOrCreateFolder(ctx, shopFolder, string(kind))
	if err != nil {
		return "", fmt.Errorf("drive resolve %s/%s: %w", shopID, kind, err)
	}
	return kindFolder, nil
}

func (d *DriveStaging) ListFolder(ctx context.Context, folderID string) ([]adapter.StagedFile, error) {
	q := url.Values{
		"q":      {fmt.Sprintf("'%s' in parents and trashed = false", folderID)},
		"fields": {"files(id,name,mimeType,size,modifiedTime)"},
	}
	var payload struct {
		Files []driveFile `json:"files"`
	}
	if err := d.getJSON(ctx, "/files?"+q.Encode(), &payload); err != nil {
		return nil, fmt.Errorf("drive list %s: %w", folderID, err)
	}

	out := make([]adapter.StagedFile, 0, len(payload.Files))
	for _, f := range payload.Files {
		if f.MimeType == folderMimeType {
			continue
		}
		size, _ := strconv.ParseInt(f.Size, 10, 64)
		modified, _ := time.Parse(time.RFC3339, f.ModifiedTime)
		out = append(out, adapter.StagedFile{
			ID:         f.ID,
			Name:       f.Name,
			MimeType:   f.MimeType,
			Size:       size,
			ModifiedAt: modified,
		})
	}
	return out, nil
}

func (d *DriveStaging) findOrCreateFolder(ctx context.Context, parentID, name string) (string, error) {
	q := url.Values{
		"q": {fmt.Sprintf("'%s' in parents and name = '%s' and mimeType = '%s' and trashed = false",
			parentID, strings.ReplaceAll(name, "'", `\'`), folderMimeType)},
		"fields": {"files(id,name)"},
	}
	var payload struct {
		Files []driveFile `json:"files"`
	}
	if err := d.getJSON(ctx, "/files?"+q.Encode(), &payload); err != nil {
		return "", err
	}
	if len(payload.Files) > 0 {
		return payload.Files[0].ID, nil
	}

	body, _ := json.Marshal(map[string]interface{}{
		"name":     name,
		"mimeType": folderMimeType,
		"parents":  []string{parentID},
	})
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, d.base+"/files?fields=id", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := d.do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("create folder %q: http %d", name, resp.StatusCode)
	}
	var created driveFile
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", err
	}
	return created.ID, nil
}

func (d *DriveStaging) getJSON(ctx context.Context, path string, out interface{}) error {
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, d.base+path, nil)
	resp, err := d.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return domain.ErrNotFound
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("drive http %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (d *DriveStaging) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("Authorization", "Bearer "+d.token)
	return d.client.Do(req)
}
