package pipeline

import (
	"context"
	"errors"

	"github.com/example/anemiascan/internal/imaging"
	"github.com/example/anemiascan/internal/inference"
)

// ErrorKind classifies a screening failure for the presentation collaborator.
type ErrorKind string

const (
	KindInvalidType   ErrorKind = "invalid_type"
	KindTooLarge      ErrorKind = "too_large"
	KindDecode        ErrorKind = "decode_error"
	KindLoad          ErrorKind = "load_error"
	KindModelNotReady ErrorKind = "model_not_ready"
	KindInference     ErrorKind = "inference_error"
	KindStore         ErrorKind = "store_error"
	KindSuperseded    ErrorKind = "superseded"
	KindCanceled      ErrorKind = "canceled"
)

// Sentinel outcomes the orchestrator wraps into its returned errors.
var (
	// ErrSuperseded marks a run whose result was dropped because a newer
	// submission for the same session claimed the result slot first.
	ErrSuperseded = errors.New("submission superseded")
	// ErrStore marks a persistence failure after a valid result was computed.
	ErrStore = errors.New("store failed")
)

var userMessages = map[ErrorKind]string{
	KindInvalidType:   "Please choose a JPEG, PNG, or GIF image.",
	KindTooLarge:      "The selected image is larger than 5 MiB.",
	KindDecode:        "The selected file could not be read as an image.",
	KindLoad:          "The screening model failed to load. Please reload and try again.",
	KindModelNotReady: "The screening model is still preparing. Please try again shortly.",
	KindInference:     "The screening could not be completed for this image.",
	KindStore:         "Your result could not be saved, but it is shown below.",
	KindSuperseded:    "A newer image was submitted; this screening was discarded.",
	KindCanceled:      "The screening was canceled.",
}

// MessageFor returns the user-facing text for an error kind.
func MessageFor(kind ErrorKind) string {
	if msg, ok := userMessages[kind]; ok {
		return msg
	}
	return "The screening could not be completed."
}

// Classify maps a pipeline error to its kind.
func Classify(err error) ErrorKind {
	switch {
	case errors.Is(err, imaging.ErrInvalidType):
		return KindInvalidType
	case errors.Is(err, imaging.ErrTooLarge):
		return KindTooLarge
	case errors.Is(err, imaging.ErrDecode):
		return KindDecode
	case errors.Is(err, inference.ErrLoad):
		return KindLoad
	case errors.Is(err, inference.ErrModelNotReady):
		return KindModelNotReady
	case errors.Is(err, inference.ErrInference):
		return KindInference
	case errors.Is(err, ErrStore):
		return KindStore
	case errors.Is(err, ErrSuperseded):
		return KindSuperseded
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindInference
	}
}
