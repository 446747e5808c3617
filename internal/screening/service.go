package screening

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/anemiascan/internal/logging"
	"github.com/example/anemiascan/internal/repository"
	"github.com/example/anemiascan/internal/scoring"
)

// Repository defines the persistence operations needed by the service.
type Repository interface {
	SaveRecord(ctx context.Context, record *repository.ScreeningRecord) error
	FindBySubmissionAndUser(ctx context.Context, submissionID, userID string) (*repository.ScreeningRecord, error)
	FindDuplicatesByHash(ctx context.Context, userID, hash, excludeSubmissionID string) ([]*repository.ScreeningRecord, error)
	AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error)
}

// Service persists and caches screening outcomes. It implements the
// pipeline's Store port.
type Service struct {
	repo           Repository
	cache          Cache
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

type cachedScreening struct {
	SubmissionID        string    `json:"submission_id"`
	UserID              string    `json:"user_id"`
	RiskClass           string    `json:"risk_class"`
	Confidence          float64   `json:"confidence"`
	EstimatedHemoglobin float64   `json:"estimated_hemoglobin"`
	Message             string    `json:"message"`
	Hash                string    `json:"sha1_hash"`
	CreatedAt           time.Time `json:"created_at"`
}

// DuplicateReport represents repeated screenings of the same image.
type DuplicateReport struct {
	Request    *repository.ScreeningRecord
	Duplicates []*repository.ScreeningRecord
}

// MetricsSummary represents aggregated screening insights.
type MetricsSummary struct {
	TotalScreenings   int64   `json:"total_screenings"`
	AtRiskScreenings  int64   `json:"at_risk_screenings"`
	AtRiskRate        float64 `json:"at_risk_rate"`
	AverageEstimate   float64 `json:"average_estimated_hemoglobin"`
	AverageConfidence float64 `json:"average_confidence"`
}

// NewService constructs a new screening service.
func NewService(repo Repository, cache Cache, logger *zap.Logger) *Service {
	return &Service{
		repo:           repo,
		cache:          cache,
		logger:         logger.Named("screening_service"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// SaveSubmission persists a completed screening and caches the outcome.
// Implements pipeline.Store.
func (s *Service) SaveSubmission(ctx context.Context, userID, imageRef string, result scoring.Result) (string, error) {
	submissionID := uuid.NewString()
	opLogger := logging.WithOperation(s.logger, "screening.save_submission", submissionID)

	cacheKey := fmt.Sprintf("screening:%s", submissionID)
	if err := s.withRedisRetry(ctx, submissionID, "cache.set.processing", func() error {
		return s.cache.Set(ctx, cacheKey, "processing", time.Minute)
	}); err != nil {
		opLogger.Error("failed to set processing flag", zap.Error(err))
		return "", err
	}

	record := &repository.ScreeningRecord{
		SubmissionID:        submissionID,
		UserID:              userID,
		RiskClass:           result.Class.String(),
		Confidence:          result.Confidence,
		EstimatedHemoglobin: result.EstimatedHemoglobin,
		ImageSHA1:           imageRef,
		Message:             result.Message,
		CreatedAt:           time.Now().UTC(),
	}
	if err := s.repo.SaveRecord(ctx, record); err != nil {
		wrapped := logging.NewOperationError("screening.save_record", submissionID, err)
		opLogger.Error("failed to persist screening record", zap.Error(wrapped))
		return "", wrapped
	}

	cached := cachedScreening{
		SubmissionID:        submissionID,
		UserID:              userID,
		RiskClass:           record.RiskClass,
		Confidence:          record.Confidence,
		EstimatedHemoglobin: record.EstimatedHemoglobin,
		Message:             record.Message,
		Hash:                record.ImageSHA1,
		CreatedAt:           record.CreatedAt,
	}

	serialized, err := json.Marshal(cached)
	if err != nil {
		opLogger.Error("failed to serialize screening result", zap.Error(err))
		return "", err
	}

	if err := s.withRedisRetry(ctx, submissionID, "cache.set.result", func() error {
		return s.cache.Set(ctx, cacheKey, string(serialized), 5*time.Minute)
	}); err != nil {
		opLogger.Error("failed to cache screening result", zap.Error(err))
		return "", err
	}

	return submissionID, nil
}

// GetResult retrieves a cached screening outcome or loads from persistence.
func (s *Service) GetResult(ctx context.Context, userID, submissionID string) (*repository.ScreeningRecord, error) {
	cacheKey := fmt.Sprintf("screening:%s", submissionID)
	if cached, err := s.withRedisGet(ctx, submissionID, "cache.get.result", cacheKey); err == nil {
		var payload cachedScreening
		if err := json.Unmarshal([]byte(cached), &payload); err != nil {
			logging.WithOperation(s.logger, "screening.get_result", submissionID).Warn("failed to decode cached result", zap.Error(err))
		} else if payload.SubmissionID != "" {
			return &repository.ScreeningRecord{
				SubmissionID:        payload.SubmissionID,
				UserID:              payload.UserID,
				RiskClass:           payload.RiskClass,
				Confidence:          payload.Confidence,
				EstimatedHemoglobin: payload.EstimatedHemoglobin,
				ImageSHA1:           payload.Hash,
				Message:             payload.Message,
				CreatedAt:           payload.CreatedAt,
			}, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		logging.WithOperation(s.logger, "screening.get_result", submissionID).Warn("failed to read cache", zap.Error(err))
	}

	return s.repo.FindBySubmissionAndUser(ctx, submissionID, userID)
}

// GetDuplicateReport builds a duplicate detection report for a submission.
func (s *Service) GetDuplicateReport(ctx context.Context, userID, submissionID string) (*DuplicateReport, error) {
	record, err := s.repo.FindBySubmissionAndUser(ctx, submissionID, userID)
	if err != nil {
		return nil, err
	}

	duplicates, err := s.repo.FindDuplicatesByHash(ctx, userID, record.ImageSHA1, record.SubmissionID)
	if err != nil {
		return nil, err
	}

	return &DuplicateReport{
		Request:    record,
		Duplicates: duplicates,
	}, nil
}

// GetMetricsSummary aggregates screening metrics from persisted records.
func (s *Service) GetMetricsSummary(ctx context.Context) (*MetricsSummary, error) {
	aggregation, err := s.repo.AggregateMetrics(ctx)
	if err != nil {
		return nil, err
	}

	summary := &MetricsSummary{
		TotalScreenings:   aggregation.TotalCount,
		AtRiskScreenings:  aggregation.AtRiskCount,
		AverageEstimate:   aggregation.AverageEstimate,
		AverageConfidence: aggregation.AverageScore,
	}

	if aggregation.TotalCount > 0 {
		summary.AtRiskRate = float64(aggregation.AtRiskCount) / float64(aggregation.TotalCount)
	}

	return summary, nil
}

func (s *Service) withRedisRetry(ctx context.Context, submissionID, operation string, fn func() error) error {
	if s.retryAttempts <= 1 {
		return logging.NewOperationError(operation, submissionID, fn())
	}

	backoff := s.initialBackoff
	opLogger := logging.WithOperation(s.logger, operation, submissionID)
	var err error
	for attempt := 0; attempt < s.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, submissionID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= s.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("redis operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if !isTransientError(err) || attempt == s.retryAttempts-1 {
			opLogger.Error("redis operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, submissionID, err)
		}

		opLogger.Warn("transient redis error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, submissionID, err)
}

func (s *Service) withRedisGet(ctx context.Context, submissionID, operation, cacheKey string) (string, error) {
	var result string
	err := s.withRedisRetry(ctx, submissionID, operation, func() error {
		value, err := s.cache.Get(ctx, cacheKey)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	if err != nil {
		return "", err
	}
	return result, nil
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}
