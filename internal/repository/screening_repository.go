package repository

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/anemiascan/internal/logging"
)

// ScreeningRecord represents a persisted screening outcome.
type ScreeningRecord struct {
	ID                  uint      `gorm:"primaryKey"`
	SubmissionID        string    `gorm:"column:submission_id;uniqueIndex;size:64"`
	UserID              string    `gorm:"column:user_id;index;size:64"`
	RiskClass           string    `gorm:"column:risk_class;size:16"`
	Confidence          float64   `gorm:"column:confidence"`
	EstimatedHemoglobin float64   `gorm:"column:estimated_hemoglobin"`
	ImageSHA1           string    `gorm:"column:image_sha1;index;size:40"`
	Message             string    `gorm:"column:message;type:text"`
	CreatedAt           time.Time `gorm:"column:created_at"`
}

// TableName overrides the default table name.
func (ScreeningRecord) TableName() string {
	return "screening_records"
}

// MetricsAggregation holds raw aggregates computed over screening records.
type MetricsAggregation struct {
	TotalCount      int64   `gorm:"column:total_count"`
	AtRiskCount     int64   `gorm:"column:at_risk_count"`
	AverageEstimate float64 `gorm:"column:average_estimate"`
	AverageScore    float64 `gorm:"column:average_score"`
}

// ScreeningRepository provides persistence APIs for screening records.
type ScreeningRepository struct {
	db             *gorm.DB
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewScreeningRepository creates a new repository instance.
func NewScreeningRepository(db *gorm.DB, logger *zap.Logger) *ScreeningRepository {
	return &ScreeningRepository{
		db:             db,
		logger:         logger.Named("screening_repository"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// AutoMigrate ensures the schema is available.
func (r *ScreeningRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&ScreeningRecord{})
}

// SaveRecord persists a screening record.
func (r *ScreeningRepository) SaveRecord(ctx context.Context, record *ScreeningRecord) error {
	return r.executeWithRetry(ctx, "repository.save_record", record.SubmissionID, func() error {
		return r.db.WithContext(ctx).Create(record).Error
	})
}

// FindBySubmissionAndUser retrieves a screening record matching the
// submission and owner.
func (r *ScreeningRepository) FindBySubmissionAndUser(ctx context.Context, submissionID, userID string) (*ScreeningRecord, error) {
	var record ScreeningRecord
	err := r.executeWithRetry(ctx, "repository.find_by_submission", submissionID, func() error {
		return r.db.WithContext(ctx).First(&record, "submission_id = ? AND user_id = ?", submissionID, userID).Error
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// FindDuplicatesByHash returns other screenings of the same image by the
// same user, excluding the given submission.
func (r *ScreeningRepository) FindDuplicatesByHash(ctx context.Context, userID, hash, excludeSubmissionID string) ([]*ScreeningRecord, error) {
	var records []*ScreeningRecord
	err := r.executeWithRetry(ctx, "repository.find_duplicates", excludeSubmissionID, func() error {
		return r.db.WithContext(ctx).
			Where("user_id = ? AND image_sha1 = ? AND submission_id <> ?", userID, hash, excludeSubmissionID).
			Order("created_at DESC").
			Find(&records).Error
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// AggregateMetrics computes summary aggregates over all screening records.
func (r *ScreeningRepository) AggregateMetrics(ctx context.Context) (*MetricsAggregation, error) {
	var aggregation MetricsAggregation
	err := r.executeWithRetry(ctx, "repository.aggregate_metrics", "", func() error {
		return r.db.WithContext(ctx).
			Model(&ScreeningRecord{}).
			Select(
				"COUNT(*) AS total_count, " +
					"COALESCE(SUM(CASE WHEN risk_class = 'at_risk' THEN 1 ELSE 0 END), 0) AS at_risk_count, " +
					"COALESCE(AVG(estimated_hemoglobin), 0) AS average_estimate, " +
					"COALESCE(AVG(confidence), 0) AS average_score",
			).
			Scan(&aggregation).Error
	})
	if err != nil {
		return nil, err
	}
	return &aggregation, nil
}

func (r *ScreeningRepository) executeWithRetry(ctx context.Context, operation, submissionID string, fn func() error) error {
	if r.retryAttempts <= 1 {
		return logging.NewOperationError(operation, submissionID, fn())
	}

	backoff := r.initialBackoff
	opLogger := logging.WithOperation(r.logger, operation, submissionID)
	var err error
	for attempt := 0; attempt < r.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, submissionID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= r.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("database operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if !isTransientError(err) || attempt == r.retryAttempts-1 {
			opLogger.Error("database operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, submissionID, err)
		}

		opLogger.Warn("transient database error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, submissionID, err)
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
