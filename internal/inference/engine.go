package inference

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/example/anemiascan/internal/imaging"
)

// Engine converts a decoded pixel buffer into the model's tensor shape, runs
// the forward pass, and destroys every intermediate tensor on all exit paths.
type Engine struct {
	lifecycle *Lifecycle
	logger    *zap.Logger
}

// NewEngine constructs an inference engine gated on the given lifecycle.
func NewEngine(lifecycle *Lifecycle, logger *zap.Logger) *Engine {
	return &Engine{
		lifecycle: lifecycle,
		logger:    logger.Named("inference_engine"),
	}
}

// Infer runs a single forward pass and returns the class probability vector.
// The decoded image is not retained; all tensors allocated here are destroyed
// before returning, whether the pass succeeds or fails.
func (e *Engine) Infer(ctx context.Context, decoded *imaging.Decoded) ([]float32, error) {
	backend, err := e.lifecycle.Backend()
	if err != nil {
		return nil, err
	}

	data := Preprocess(decoded.Pixels)

	input, err := backend.NewInputTensor(InputShape(), data)
	if err != nil {
		return nil, fmt.Errorf("%w: input tensor: %v", ErrInference, err)
	}
	defer func() {
		if derr := input.Destroy(); derr != nil {
			e.logger.Warn("failed to destroy input tensor", zap.Error(derr))
		}
	}()

	output, err := backend.NewOutputTensor(OutputShape())
	if err != nil {
		return nil, fmt.Errorf("%w: output tensor: %v", ErrInference, err)
	}
	defer func() {
		if derr := output.Destroy(); derr != nil {
			e.logger.Warn("failed to destroy output tensor", zap.Error(derr))
		}
	}()

	if err := backend.Run(ctx, input, output); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInference, err)
	}

	raw := output.Data()
	if len(raw) < NumClasses {
		return nil, fmt.Errorf("%w: output has %d values, want %d", ErrInference, len(raw), NumClasses)
	}

	// Copy out before the deferred destroys release the backing storage.
	vector := make([]float32, NumClasses)
	copy(vector, raw[:NumClasses])
	return vector, nil
}
