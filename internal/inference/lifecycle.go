package inference

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/example/anemiascan/internal/logging"
)

// State describes where the model is in its load lifecycle. Transitions are
// monotonic toward Ready except that a Failed load may be retried.
type State int32

const (
	StateUnloaded State = iota
	StateLoading
	StateReady
	StateFailed
)

// String implements fmt.Stringer for log output.
func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// loadAttempt carries the outcome of one load. err is written before done is
// closed and never mutated afterwards, so waiters holding an attempt read the
// outcome of the load they actually waited on, even if a retry has already
// started a newer attempt.
type loadAttempt struct {
	done chan struct{}
	err  error
}

// Lifecycle manages one-time asynchronous loading of the classifier backend
// and exposes a readiness gate. The loaded backend is shared read-only by
// all subsequent inference calls.
type Lifecycle struct {
	source Source
	logger *zap.Logger

	mu      sync.Mutex
	state   State
	backend Backend
	attempt *loadAttempt
}

// NewLifecycle constructs an unloaded lifecycle around the given source.
func NewLifecycle(source Source, logger *zap.Logger) *Lifecycle {
	return &Lifecycle{
		source: source,
		logger: logger.Named("model_lifecycle"),
		state:  StateUnloaded,
	}
}

// EnsureLoaded is idempotent: if the model is ready it returns immediately;
// if a load is in flight the caller waits for its resolution; otherwise it
// performs the load itself. Concurrent callers never trigger duplicate
// fetches. A call made after a failed load starts a fresh attempt.
func (l *Lifecycle) EnsureLoaded(ctx context.Context) error {
	l.mu.Lock()
	switch l.state {
	case StateReady:
		l.mu.Unlock()
		return nil
	case StateLoading:
		attempt := l.attempt
		l.mu.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-attempt.done:
		}
		return attempt.err
	}

	attempt := &loadAttempt{done: make(chan struct{})}
	l.state = StateLoading
	l.attempt = attempt
	l.mu.Unlock()

	opLogger := logging.WithOperation(l.logger, "model.load", "")
	opLogger.Info("loading classifier")

	backend, err := l.source.Fetch(ctx)

	l.mu.Lock()
	if err != nil {
		l.state = StateFailed
		attempt.err = fmt.Errorf("%w: %v", ErrLoad, err)
		opLogger.Error("classifier load failed", zap.Error(err))
	} else {
		l.state = StateReady
		l.backend = backend
		opLogger.Info("classifier ready")
	}
	close(attempt.done)
	l.mu.Unlock()
	return attempt.err
}

// IsReady is a non-blocking readiness query used to gate submissions.
func (l *Lifecycle) IsReady() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state == StateReady
}

// State returns the current lifecycle state.
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Backend returns the loaded backend, or ErrModelNotReady if the lifecycle
// has not reached the ready state.
func (l *Lifecycle) Backend() (Backend, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateReady {
		return nil, fmt.Errorf("%w: state is %s", ErrModelNotReady, l.state)
	}
	return l.backend, nil
}

// LoadError returns the retained cause of a failed load, if any.
func (l *Lifecycle) LoadError() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateFailed || l.attempt == nil {
		return nil
	}
	return l.attempt.err
}

// Close releases the backend. Called only at process shutdown.
func (l *Lifecycle) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.backend == nil {
		return nil
	}
	err := l.backend.Close()
	l.backend = nil
	l.state = StateUnloaded
	return err
}
