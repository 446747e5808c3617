package screening

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/example/anemiascan/internal/logging"
	"github.com/example/anemiascan/internal/repository"
	"github.com/example/anemiascan/internal/scoring"
)

type stubRepository struct {
	savedRecords []*repository.ScreeningRecord
	saveErr      error
	findRecord   *repository.ScreeningRecord
	findErr      error
	findCalls    int
	duplicates   []*repository.ScreeningRecord
	aggregation  *repository.MetricsAggregation
}

func (s *stubRepository) SaveRecord(ctx context.Context, record *repository.ScreeningRecord) error {
	s.savedRecords = append(s.savedRecords, record)
	return s.saveErr
}

func (s *stubRepository) FindBySubmissionAndUser(ctx context.Context, submissionID, userID string) (*repository.ScreeningRecord, error) {
	s.findCalls++
	if s.findErr != nil {
		return nil, s.findErr
	}
	if s.findRecord != nil {
		return s.findRecord, nil
	}
	return nil, errors.New("not found")
}

func (s *stubRepository) FindDuplicatesByHash(ctx context.Context, userID, hash, excludeSubmissionID string) ([]*repository.ScreeningRecord, error) {
	return s.duplicates, nil
}

func (s *stubRepository) AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error) {
	if s.aggregation != nil {
		return s.aggregation, nil
	}
	return &repository.MetricsAggregation{}, nil
}

type stubCache struct {
	setErrs   []error
	getErrs   []error
	getValues []string
	setKeys   []string
	getKeys   []string
}

func (s *stubCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	s.setKeys = append(s.setKeys, key)
	if len(s.setErrs) == 0 {
		return nil
	}
	err := s.setErrs[0]
	s.setErrs = s.setErrs[1:]
	return err
}

func (s *stubCache) Get(ctx context.Context, key string) (string, error) {
	s.getKeys = append(s.getKeys, key)
	var value string
	if len(s.getValues) > 0 {
		value = s.getValues[0]
		s.getValues = s.getValues[1:]
	}
	var err error
	if len(s.getErrs) > 0 {
		err = s.getErrs[0]
		s.getErrs = s.getErrs[1:]
	}
	return value, err
}

type transientRedisError struct{}

func (transientRedisError) Error() string   { return "redis transient" }
func (transientRedisError) Timeout() bool   { return true }
func (transientRedisError) Temporary() bool { return true }

func lowRiskResult() scoring.Result {
	return scoring.Result{
		Class:               scoring.LowRisk,
		Confidence:          0.9,
		EstimatedHemoglobin: 15.7,
		Message:             "No anemia risk indicated.",
	}
}

func TestSaveSubmissionPersistsAndCaches(t *testing.T) {
	cache := &stubCache{}
	repo := &stubRepository{}
	svc := NewService(repo, cache, zap.NewNop())

	submissionID, err := svc.SaveSubmission(context.Background(), "user-1", "abc123", lowRiskResult())
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if submissionID == "" {
		t.Fatal("expected a submission ID")
	}
	if len(repo.savedRecords) != 1 {
		t.Fatalf("expected one saved record, got %d", len(repo.savedRecords))
	}

	record := repo.savedRecords[0]
	if record.RiskClass != "low_risk" {
		t.Fatalf("unexpected risk class: %s", record.RiskClass)
	}
	if record.EstimatedHemoglobin != 15.7 {
		t.Fatalf("unexpected estimate: %f", record.EstimatedHemoglobin)
	}
	if record.ImageSHA1 != "abc123" {
		t.Fatalf("unexpected image ref: %s", record.ImageSHA1)
	}

	// Processing flag plus serialized result.
	if len(cache.setKeys) != 2 {
		t.Fatalf("expected 2 cache writes, got %d", len(cache.setKeys))
	}
	if cache.setKeys[0] != cache.setKeys[1] {
		t.Fatalf("expected both writes to target the same key, got %s and %s", cache.setKeys[0], cache.setKeys[1])
	}
}

func TestSaveSubmissionRetriesTransientRedisErrors(t *testing.T) {
	cache := &stubCache{setErrs: []error{transientRedisError{}}}
	repo := &stubRepository{}
	svc := NewService(repo, cache, zap.NewNop())

	if _, err := svc.SaveSubmission(context.Background(), "user-1", "abc123", lowRiskResult()); err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
	if len(cache.setKeys) < 3 {
		t.Fatalf("expected at least 3 cache set calls (retry + result), got %d", len(cache.setKeys))
	}
	if len(repo.savedRecords) != 1 {
		t.Fatalf("expected record to be saved, got %d entries", len(repo.savedRecords))
	}
}

func TestSaveSubmissionReturnsOperationErrorOnCacheFailure(t *testing.T) {
	cache := &stubCache{setErrs: []error{errors.New("boom")}}
	repo := &stubRepository{}
	svc := NewService(repo, cache, zap.NewNop())

	_, err := svc.SaveSubmission(context.Background(), "user-1", "abc123", lowRiskResult())
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var opErr *logging.OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected OperationError, got %T", err)
	}
	if opErr.Operation != "cache.set.processing" {
		t.Fatalf("unexpected operation: %s", opErr.Operation)
	}
}

func TestSaveSubmissionSurfacesRepositoryFailure(t *testing.T) {
	cache := &stubCache{}
	repo := &stubRepository{saveErr: errors.New("db down")}
	svc := NewService(repo, cache, zap.NewNop())

	_, err := svc.SaveSubmission(context.Background(), "user-1", "abc123", lowRiskResult())
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var opErr *logging.OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected OperationError, got %T", err)
	}
	if opErr.Operation != "screening.save_record" {
		t.Fatalf("unexpected operation: %s", opErr.Operation)
	}
}

func TestGetResultFallsBackToRepositoryOnCacheMiss(t *testing.T) {
	cache := &stubCache{getErrs: []error{redis.Nil}}
	expected := &repository.ScreeningRecord{SubmissionID: "sub", UserID: "user", RiskClass: "at_risk"}
	repo := &stubRepository{findRecord: expected}
	svc := NewService(repo, cache, zap.NewNop())

	record, err := svc.GetResult(context.Background(), "user", "sub")
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if record != expected {
		t.Fatalf("expected %+v, got %+v", expected, record)
	}
	if repo.findCalls != 1 {
		t.Fatalf("expected repository to be queried once, got %d", repo.findCalls)
	}
}

func TestGetResultUsesCachedPayload(t *testing.T) {
	cached := `{"submission_id":"sub","user_id":"user","risk_class":"low_risk","confidence":0.9,"estimated_hemoglobin":15.7,"message":"ok","sha1_hash":"abc"}`
	cache := &stubCache{getValues: []string{cached}}
	repo := &stubRepository{}
	svc := NewService(repo, cache, zap.NewNop())

	record, err := svc.GetResult(context.Background(), "user", "sub")
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if record.RiskClass != "low_risk" || record.EstimatedHemoglobin != 15.7 {
		t.Fatalf("unexpected cached record: %+v", record)
	}
	if repo.findCalls != 0 {
		t.Fatalf("expected no repository query on cache hit, got %d", repo.findCalls)
	}
}

func TestGetDuplicateReport(t *testing.T) {
	record := &repository.ScreeningRecord{SubmissionID: "sub", UserID: "user", ImageSHA1: "abc"}
	dup := &repository.ScreeningRecord{SubmissionID: "older", UserID: "user", ImageSHA1: "abc"}
	repo := &stubRepository{findRecord: record, duplicates: []*repository.ScreeningRecord{dup}}
	svc := NewService(repo, &stubCache{}, zap.NewNop())

	report, err := svc.GetDuplicateReport(context.Background(), "user", "sub")
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if report.Request != record {
		t.Fatalf("unexpected request record: %+v", report.Request)
	}
	if len(report.Duplicates) != 1 || report.Duplicates[0] != dup {
		t.Fatalf("unexpected duplicates: %+v", report.Duplicates)
	}
}

func TestGetMetricsSummaryComputesRate(t *testing.T) {
	repo := &stubRepository{aggregation: &repository.MetricsAggregation{
		TotalCount:      10,
		AtRiskCount:     4,
		AverageEstimate: 12.8,
		AverageScore:    0.84,
	}}
	svc := NewService(repo, &stubCache{}, zap.NewNop())

	summary, err := svc.GetMetricsSummary(context.Background())
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if summary.AtRiskRate != 0.4 {
		t.Fatalf("expected at-risk rate 0.4, got %f", summary.AtRiskRate)
	}
	if summary.TotalScreenings != 10 || summary.AtRiskScreenings != 4 {
		t.Fatalf("unexpected counts: %+v", summary)
	}
}
