// Package ingest receives multipart file uploads, spools them to local disk,
// and hands them to the remote object store.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/vendora/media/internal/storage"
)

// StoredObject describes a file that has been pushed to the remote store.
type StoredObject struct {
	Key         string
	URL         string
	Size        int64
	ContentType string
}

// Adapter translates a spooled local file into a remotely stored,
// URL-addressable object.
type Adapter struct {
	store storage.Storage
}

// NewAdapter creates an Adapter backed by the given object store.
func NewAdapter(store storage.Storage) *Adapter {
	return &Adapter{store: store}
}

// Store uploads the file at localPath into the folder derived from category
// and returns the stored object. The local file is removed before Store
// returns, whether the upload succeeded or not.
func (a *Adapter) Store(ctx context.Context, localPath, category string) (*StoredObject, error) {
	if localPath == "" {
		return nil, errors.New("local path is empty")
	}
	info, err := os.Stat(localPath)
	if err != nil {
		return nil, fmt.Errorf("stat local file: %w", err)
	}

	defer func() {
		if err := os.Remove(localPath); err != nil && !os.IsNotExist(err) {
			log.Printf("ingest: failed to remove temp file %s: %v", localPath, err)
		}
	}()

	category = strings.ToLower(strings.TrimSpace(category))
	if category == "" {
		return nil, errors.New("category is required")
	}

	f, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("open local file: %w", err)
	}
	defer f.Close()

	name := filepath.Base(localPath)
	key := category + "/" + uniqueName(name)
	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	url, err := a.store.Upload(ctx, key, f, info.Size(), contentType)
	if err != nil {
		return nil, fmt.Errorf("store %q: %w", key, err)
	}

	return &StoredObject{
		Key:         key,
		URL:         url,
		Size:        info.Size(),
		ContentType: contentType,
	}, nil
}

// Remove deletes a previously stored object from the remote store.
func (a *Adapter) Remove(ctx context.Context, key string) error {
	return a.store.Delete(ctx, key)
}

// uniqueName appends a short random suffix so concurrent uploads of files
// with identical names never collide under the same category.
func uniqueName(name string) string {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	return fmt.Sprintf("%s-%s%s", base, uuid.NewString()[:8], ext)
}
