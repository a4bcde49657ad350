package uploader

import (
	"fmt"
	"strings"
)

// Kind is the closed category of upload, governing validation rules and the
// label used in notifications.
type Kind string

const (
	KindThumbnail       Kind = "thumbnail"
	KindAdditionalImage Kind = "additional-image"
	KindVideo           Kind = "video"
)

// Label returns the human-readable form used in notifications.
func (k Kind) Label() string {
	return strings.ReplaceAll(string(k), "-", " ")
}

// Size ceilings in megabytes. These are distinct policy constants, not one
// global limit.
const (
	DefaultImageMaxSizeMB = 10
	VideoMaxSizeMB        = 150
)

// ValidationError is a pre-network rejection of a candidate file. It is
// never retried and never reaches the server.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// Validate checks a candidate file against the policy for its kind.
// maxSizeMB overrides the default ceiling; zero or negative selects the
// kind's default. For videos the 150 MB ceiling is a floor that a smaller
// override cannot lower. Validate is synchronous and side-effect-free.
func Validate(f File, kind Kind, maxSizeMB int) error {
	if f.Open == nil {
		return &ValidationError{Reason: "no file selected"}
	}

	limit := maxSizeMB
	if limit <= 0 {
		limit = DefaultImageMaxSizeMB
		if kind == KindVideo {
			limit = VideoMaxSizeMB
		}
	}

	switch kind {
	case KindThumbnail, KindAdditionalImage:
		if !strings.HasPrefix(f.ContentType, "image/") {
			return &ValidationError{Reason: "please select an image file"}
		}
	case KindVideo:
		if !strings.HasPrefix(f.ContentType, "video/") {
			return &ValidationError{Reason: "please select a video file"}
		}
		if limit < VideoMaxSizeMB {
			limit = VideoMaxSizeMB
		}
	default:
		return &ValidationError{Reason: fmt.Sprintf("unknown upload kind %q", kind)}
	}

	if f.Size > int64(limit)<<20 {
		return &ValidationError{Reason: fmt.Sprintf("file is too large: limit is %d MB", limit)}
	}

	return nil
}
