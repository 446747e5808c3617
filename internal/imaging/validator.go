package imaging

import (
	"errors"
	"fmt"
)

// DefaultMaxBytes is the upload ceiling applied when no override is configured.
const DefaultMaxBytes = 5 << 20

var (
	// ErrInvalidType indicates the declared MIME type is not an accepted image format.
	ErrInvalidType = errors.New("unsupported image type")
	// ErrTooLarge indicates the submission exceeds the configured size ceiling.
	ErrTooLarge = errors.New("image exceeds size limit")
)

// Submission is a raw user-selected file awaiting the screening pipeline.
type Submission struct {
	Raw      []byte
	MimeType string
	Size     int64
}

var acceptedTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/gif":  {},
}

// Validate checks a submission against the type and size policy. It performs
// no decoding and has no side effects.
func Validate(sub Submission, maxBytes int64) error {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if _, ok := acceptedTypes[sub.MimeType]; !ok {
		return fmt.Errorf("%w: %s", ErrInvalidType, sub.MimeType)
	}
	if sub.Size > maxBytes {
		return fmt.Errorf("%w: %d bytes (limit %d)", ErrTooLarge, sub.Size, maxBytes)
	}
	return nil
}
