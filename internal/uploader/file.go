// Package uploader implements the client-side upload queue: it validates
// candidate files, uploads them to the ingestion endpoint one at a time,
// retries transient failures, and reports per-item progress.
package uploader

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
)

// File is the binary payload reference tracked by a queue item. Open must
// return a fresh reader on every call so retries can replay the content.
type File struct {
	Name        string
	Size        int64
	ContentType string
	Open        func() (io.ReadCloser, error)
}

// FileFromPath builds a File backed by a file on disk.
func FileFromPath(path string) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return File{}, fmt.Errorf("stat %s: %w", path, err)
	}
	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return File{
		Name:        filepath.Base(path),
		Size:        info.Size(),
		ContentType: contentType,
		Open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}, nil
}

// FileFromBytes builds a File backed by an in-memory payload.
func FileFromBytes(name, contentType string, data []byte) File {
	return File{
		Name:        name,
		Size:        int64(len(data)),
		ContentType: contentType,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}
