package ingest

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultMaxUploadBytes caps the total multipart request body.
const DefaultMaxUploadBytes = 5 << 20

// fileField is the only multipart file field the endpoint accepts.
const fileField = "file"

// allowedExtensions is the closed set of file types the endpoint ingests.
var allowedExtensions = map[string]bool{
	".jpeg": true, ".jpg": true, ".png": true, ".gif": true, ".webp": true,
	".mp4": true, ".avi": true, ".mov": true, ".wmv": true, ".flv": true, ".mkv": true,
}

// LimitError is a transport-level constraint violation: oversized body,
// unexpected field, or disallowed file type. Always mapped to 400.
type LimitError struct {
	msg string
}

func (e *LimitError) Error() string { return e.msg }

// parseUpload enforces the transport-level constraints and extracts the file
// header and category field. A nil *multipart.FileHeader with a nil error
// means no file field was present; that is an application-level concern.
func parseUpload(w http.ResponseWriter, r *http.Request, maxBytes int64) (*multipart.FileHeader, string, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	if err := r.ParseMultipartForm(maxBytes); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) || strings.Contains(err.Error(), "request body too large") {
			return nil, "", &LimitError{fmt.Sprintf("file too large: limit is %d MB", maxBytes>>20)}
		}
		return nil, "", &LimitError{"invalid multipart form data"}
	}

	var fh *multipart.FileHeader
	for name, headers := range r.MultipartForm.File {
		if name != fileField {
			return nil, "", &LimitError{fmt.Sprintf("unexpected field %q", name)}
		}
		if len(headers) > 1 {
			return nil, "", &LimitError{"only one file may be uploaded per request"}
		}
		fh = headers[0]
	}

	if fh != nil {
		ext := strings.ToLower(filepath.Ext(fh.Filename))
		if !allowedExtensions[ext] {
			return nil, "", &LimitError{fmt.Sprintf("file type %q is not allowed", ext)}
		}
	}

	return fh, r.FormValue("category"), nil
}

// spoolToDisk writes the uploaded file into dir under an epoch-millisecond
// prefixed name and returns its path. dir is created on demand.
func spoolToDisk(fh *multipart.FileHeader, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}

	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open uploaded file: %w", err)
	}
	defer src.Close()

	name := fmt.Sprintf("%d-%s", time.Now().UnixMilli(), filepath.Base(fh.Filename))
	path := filepath.Join(dir, name)

	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close temp file: %w", err)
	}

	return path, nil
}
