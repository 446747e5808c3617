package inference

import (
	"context"
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

var ortInit sync.Once

// ONNXSource loads the classifier from a local ONNX artifact.
type ONNXSource struct {
	ModelPath  string
	InputName  string
	OutputName string
	Logger     *zap.Logger
}

// Fetch initializes the ONNX runtime once per process and opens a session
// for the configured model artifact.
func (s *ONNXSource) Fetch(ctx context.Context) (Backend, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var initErr error
	ortInit.Do(func() {
		initErr = ort.InitializeEnvironment()
	})
	if initErr != nil {
		return nil, fmt.Errorf("onnx environment: %w", initErr)
	}

	if _, err := os.Stat(s.ModelPath); err != nil {
		return nil, fmt.Errorf("model artifact: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(
		s.ModelPath,
		[]string{s.InputName},
		[]string{s.OutputName},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("onnx session: %w", err)
	}

	if s.Logger != nil {
		s.Logger.Info("onnx session created", zap.String("model_path", s.ModelPath))
	}
	return &onnxBackend{session: session}, nil
}

type onnxBackend struct {
	session *ort.DynamicAdvancedSession
}

func (b *onnxBackend) NewInputTensor(shape []int64, data []float32) (Tensor, error) {
	t, err := ort.NewTensor(ort.NewShape(shape...), data)
	if err != nil {
		return nil, err
	}
	return &onnxTensor{t: t}, nil
}

func (b *onnxBackend) NewOutputTensor(shape []int64) (Tensor, error) {
	t, err := ort.NewEmptyTensor[float32](ort.NewShape(shape...))
	if err != nil {
		return nil, err
	}
	return &onnxTensor{t: t}, nil
}

// Run executes the forward pass. Tensors passed here always originate from
// this backend, so the assertions cannot fail in practice.
func (b *onnxBackend) Run(ctx context.Context, input, output Tensor) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	in, ok := input.(*onnxTensor)
	if !ok {
		return fmt.Errorf("foreign input tensor %T", input)
	}
	out, ok := output.(*onnxTensor)
	if !ok {
		return fmt.Errorf("foreign output tensor %T", output)
	}
	return b.session.Run([]ort.ArbitraryTensor{in.t}, []ort.ArbitraryTensor{out.t})
}

func (b *onnxBackend) Close() error {
	return b.session.Destroy()
}

type onnxTensor struct {
	t *ort.Tensor[float32]
}

func (t *onnxTensor) Data() []float32 {
	return t.t.GetData()
}

func (t *onnxTensor) Destroy() error {
	return t.t.Destroy()
}
