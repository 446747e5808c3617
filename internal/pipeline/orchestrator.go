package pipeline

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/anemiascan/internal/imaging"
	"github.com/example/anemiascan/internal/inference"
	"github.com/example/anemiascan/internal/logging"
	"github.com/example/anemiascan/internal/scoring"
)

// Stage tracks a submission's progress through the pipeline.
type Stage int

const (
	StageIdle Stage = iota
	StageValidating
	StageDecoding
	StageAwaitingModel
	StageInferring
	StageInterpreting
	StageDone
	StageFailed
)

// String implements fmt.Stringer for log output.
func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageValidating:
		return "validating"
	case StageDecoding:
		return "decoding"
	case StageAwaitingModel:
		return "awaiting_model"
	case StageInferring:
		return "inferring"
	case StageInterpreting:
		return "interpreting"
	case StageDone:
		return "done"
	case StageFailed:
		return "failed"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// session serializes submissions for one user session and carries the
// supersession counter. A newer submission claims a higher token before
// queuing, so a superseded run completes silently.
type session struct {
	mu  sync.Mutex
	seq atomic.Uint64
}

func (s *session) current(token uint64) bool {
	return s.seq.Load() == token
}

// Orchestrator sequences validate, decode, model gate, infer, and interpret
// for each submission, surfacing exactly one terminal outcome.
type Orchestrator struct {
	lifecycle *inference.Lifecycle
	engine    *inference.Engine
	store     Store
	maxBytes  int64
	logger    *zap.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

// NewOrchestrator wires the pipeline components together.
func NewOrchestrator(lifecycle *inference.Lifecycle, engine *inference.Engine, store Store, maxBytes int64, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		lifecycle: lifecycle,
		engine:    engine,
		store:     store,
		maxBytes:  maxBytes,
		logger:    logger.Named("pipeline"),
		sessions:  make(map[string]*session),
	}
}

// ModelReady reports the lifecycle's non-blocking readiness gate.
func (o *Orchestrator) ModelReady() bool {
	return o.lifecycle.IsReady()
}

// Screen runs one submission through the pipeline. Submissions for the same
// session serialize behind each other; a submission superseded by a newer one
// completes without applying its presentation or store effects. On success
// the result and the stored record ID are returned; a store failure is
// surfaced alongside the still-valid result.
func (o *Orchestrator) Screen(ctx context.Context, sessionID, userID string, sub imaging.Submission, pres Presentation) (*scoring.Result, string, error) {
	sess := o.session(sessionID)
	token := sess.seq.Add(1)

	sess.mu.Lock()
	defer sess.mu.Unlock()

	submissionID := uuid.NewString()
	opLogger := logging.WithOperation(o.logger, "pipeline.screen", submissionID)

	stage := StageValidating
	if err := imaging.Validate(sub, o.maxBytes); err != nil {
		return nil, "", o.fail(sess, token, pres, opLogger, stage, submissionID, err)
	}

	stage = StageDecoding
	decoded, preview, err := imaging.Decode(ctx, sub.Raw)
	if err != nil {
		return nil, "", o.fail(sess, token, pres, opLogger, stage, submissionID, err)
	}
	o.apply(sess, token, func() { pres.ShowPreview(preview) })

	stage = StageAwaitingModel
	if err := o.lifecycle.EnsureLoaded(ctx); err != nil {
		o.apply(sess, token, func() { pres.SetModelReady(false) })
		return nil, "", o.fail(sess, token, pres, opLogger, stage, submissionID, err)
	}
	o.apply(sess, token, func() { pres.SetModelReady(true) })

	stage = StageInferring
	vector, err := o.engine.Infer(ctx, decoded)
	if err != nil {
		return nil, "", o.fail(sess, token, pres, opLogger, stage, submissionID, err)
	}

	stage = StageInterpreting
	result, err := scoring.Interpret(vector)
	if err != nil {
		return nil, "", o.fail(sess, token, pres, opLogger, stage, submissionID, fmt.Errorf("%w: %v", inference.ErrInference, err))
	}

	stage = StageDone
	opLogger.Info("screening complete",
		zap.String("stage", stage.String()),
		zap.String("risk_class", result.Class.String()),
		zap.Float64("confidence", result.Confidence),
		zap.Float64("estimated_hemoglobin", result.EstimatedHemoglobin),
	)

	if !sess.current(token) {
		opLogger.Info("submission superseded, dropping result")
		return &result, "", logging.NewOperationError("pipeline.screen", submissionID, ErrSuperseded)
	}
	pres.ShowResult(result)

	hash := sha1.Sum(sub.Raw)
	imageRef := hex.EncodeToString(hash[:])

	recordID, err := o.store.SaveSubmission(ctx, userID, imageRef, result)
	if err != nil {
		wrapped := logging.NewOperationError("pipeline.save_submission", submissionID, fmt.Errorf("%w: %v", ErrStore, err))
		opLogger.Error("failed to persist screening", zap.Error(wrapped))
		o.apply(sess, token, func() { pres.ShowError(KindStore, MessageFor(KindStore)) })
		return &result, "", wrapped
	}

	return &result, recordID, nil
}

// fail surfaces a typed failure to the presentation collaborator and leaves
// the model lifecycle untouched.
func (o *Orchestrator) fail(sess *session, token uint64, pres Presentation, opLogger *zap.Logger, stage Stage, submissionID string, err error) error {
	kind := Classify(err)
	opLogger.Warn("screening failed",
		zap.String("stage", stage.String()),
		zap.String("kind", string(kind)),
		zap.Error(err),
	)
	o.apply(sess, token, func() { pres.ShowError(kind, MessageFor(kind)) })
	return logging.NewOperationError("pipeline."+stage.String(), submissionID, err)
}

// apply runs a presentation effect only if the submission has not been
// superseded by a newer one for the same session.
func (o *Orchestrator) apply(sess *session, token uint64, fn func()) {
	if sess.current(token) {
		fn()
	}
}

func (o *Orchestrator) session(sessionID string) *session {
	o.mu.Lock()
	defer o.mu.Unlock()
	sess, ok := o.sessions[sessionID]
	if !ok {
		sess = &session{}
		o.sessions[sessionID] = sess
	}
	return sess
}
