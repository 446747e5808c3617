package imaging

import (
	"errors"
	"testing"
)

func TestValidateAcceptsSupportedTypes(t *testing.T) {
	for _, mime := range []string{"image/jpeg", "image/png", "image/gif"} {
		sub := Submission{MimeType: mime, Size: 1024}
		if err := Validate(sub, DefaultMaxBytes); err != nil {
			t.Fatalf("expected %s to validate, got %v", mime, err)
		}
	}
}

func TestValidateRejectsUnsupportedTypes(t *testing.T) {
	for _, mime := range []string{"text/plain", "application/pdf", "image/webp", "image/bmp", ""} {
		sub := Submission{MimeType: mime, Size: 1024}
		err := Validate(sub, DefaultMaxBytes)
		if !errors.Is(err, ErrInvalidType) {
			t.Fatalf("expected ErrInvalidType for %q, got %v", mime, err)
		}
	}
}

func TestValidateRejectsOversizedUpload(t *testing.T) {
	sub := Submission{MimeType: "image/png", Size: DefaultMaxBytes + 1}
	err := Validate(sub, DefaultMaxBytes)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

func TestValidateAcceptsFileAtLimit(t *testing.T) {
	sub := Submission{MimeType: "image/jpeg", Size: DefaultMaxBytes}
	if err := Validate(sub, DefaultMaxBytes); err != nil {
		t.Fatalf("expected file at limit to validate, got %v", err)
	}
}

func TestValidateOversizedBeatsValidType(t *testing.T) {
	// Size policy applies even when the type is unsupported; type is checked
	// first so the more specific failure wins.
	sub := Submission{MimeType: "text/plain", Size: DefaultMaxBytes + 1}
	err := Validate(sub, DefaultMaxBytes)
	if !errors.Is(err, ErrInvalidType) {
		t.Fatalf("expected ErrInvalidType, got %v", err)
	}
}
