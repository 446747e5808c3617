package inference

import (
	"context"
	"errors"
)

// Model geometry for the conjunctiva classifier.
const (
	InputSize  = 224
	Channels   = 3
	NumClasses = 2
)

var (
	// ErrLoad indicates the model artifact could not be fetched or opened.
	ErrLoad = errors.New("model load failed")
	// ErrModelNotReady indicates an inference was attempted before the model
	// reached the ready state. The orchestrator gates on readiness, so this
	// surfacing is a contract violation rather than a user-facing condition.
	ErrModelNotReady = errors.New("model not ready")
	// ErrInference indicates the forward pass failed.
	ErrInference = errors.New("inference failed")
)

// Tensor is a device- or host-allocated buffer that must be destroyed by its
// creator. Data exposes the underlying float32 storage.
type Tensor interface {
	Data() []float32
	Destroy() error
}

// Backend abstracts the classifier runtime. Implementations own sessions and
// tensor allocation; callers own destroying every tensor they create.
type Backend interface {
	NewInputTensor(shape []int64, data []float32) (Tensor, error)
	NewOutputTensor(shape []int64) (Tensor, error)
	Run(ctx context.Context, input, output Tensor) error
	Close() error
}

// Source abstracts retrieval and construction of a classifier backend from a
// local or remote model artifact.
type Source interface {
	Fetch(ctx context.Context) (Backend, error)
}
