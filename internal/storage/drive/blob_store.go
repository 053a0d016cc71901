// Package drive archives camera frames in a Google Drive folder.
package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Config names the destination folder. CredentialsFile is optional; when it
// is empty Application Default Credentials are used.
type Config struct {
	FolderID        string
	CredentialsFile string
}

// BlobStore uploads frames as files in a single Drive folder.
type BlobStore struct {
	service  *drive.Service
	folderID string
}

// NewService builds a Drive client limited to files created by this app.
func NewService(ctx context.Context, cfg Config, extra ...option.ClientOption) (*drive.Service, error) {
	opts := []option.ClientOption{option.WithScopes(drive.DriveFileScope)}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	opts = append(opts, extra...)
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	return svc, nil
}

// New creates a Drive-backed archive.
func New(service *drive.Service, cfg Config) (*BlobStore, error) {
	if service == nil {
		return nil, errors.New("drive service is required")
	}
	if strings.TrimSpace(cfg.FolderID) == "" {
		return nil, errors.New("drive folder id is required")
	}
	return &BlobStore{service: service, folderID: cfg.FolderID}, nil
}

// PutObject creates a file named after the last element of name inside the
// folder and returns a drive:// URI carrying the new file ID. Drive folders
// are flat, so any directory part of name is dropped.
func (s *BlobStore) PutObject(ctx context.Context, name string, contentType string, r io.Reader) (string, error) {
	base := path.Base(strings.TrimSpace(name))
	if base == "" || base == "." || base == "/" {
		return "", errors.New("object name is required")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	file, err := s.service.Files.Create(&drive.File{
		Name:     base,
		Parents:  []string{s.folderID},
		MimeType: contentType,
	}).
		Media(r, googleapi.ContentType(contentType)).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("upload to drive: %w", err)
	}
	return fmt.Sprintf("drive://%s/%s", s.folderID, file.Id), nil
}
