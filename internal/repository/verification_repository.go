// Package repository persists an audit trail of completed verifications.
// The pipeline never reads it to make a decision; it exists for result
// retrieval and aggregate reporting.
package repository

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/id-verify/internal/logging"
)

// VerificationRecord represents a persisted verification outcome. Nullable
// flag columns stay NULL for document types where the aspect does not apply.
type VerificationRecord struct {
	ID                        uint      `gorm:"primaryKey"`
	RequestID                 string    `gorm:"column:request_id;uniqueIndex;size:64"`
	UserID                    string    `gorm:"column:user_id;index;size:64"`
	Name                      string    `gorm:"column:name;size:128"`
	DocumentType              string    `gorm:"column:document_type;size:16"`
	DocumentTypeMatched       bool      `gorm:"column:document_type_matched"`
	NameMatched               bool      `gorm:"column:name_matched"`
	DOBMatched                *bool     `gorm:"column:dob_matched"`
	IdentityCardNumberMatched *bool     `gorm:"column:identity_card_number_matched"`
	FaceMatched               bool      `gorm:"column:face_matched"`
	Verified                  bool      `gorm:"column:verified"`
	Confidence                float64   `gorm:"column:confidence"`
	Message                   string    `gorm:"column:message;type:text"`
	CreatedAt                 time.Time `gorm:"column:created_at"`
}

// TableName overrides the default table name.
func (VerificationRecord) TableName() string {
	return "verification_records"
}

// MetricsAggregation holds aggregate counters over all persisted records.
type MetricsAggregation struct {
	TotalCount        int64
	VerifiedCount     int64
	AverageConfidence float64
}

// VerificationRepository provides persistence APIs for verification records.
type VerificationRepository struct {
	db             *gorm.DB
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewVerificationRepository creates a new repository instance.
func NewVerificationRepository(db *gorm.DB, logger *zap.Logger) *VerificationRepository {
	return &VerificationRepository{
		db:             db,
		logger:         logger.Named("verification_repository"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// AutoMigrate ensures the schema is available.
func (r *VerificationRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&VerificationRecord{})
}

// SaveRecord persists a verification record.
func (r *VerificationRepository) SaveRecord(ctx context.Context, record *VerificationRecord) error {
	return r.executeWithRetry(ctx, "repository.save_record", record.RequestID, func() error {
		return r.db.WithContext(ctx).Create(record).Error
	})
}

// FindByRequestIDAndUser retrieves a record matching the request and owner.
func (r *VerificationRepository) FindByRequestIDAndUser(ctx context.Context, requestID, userID string) (*VerificationRecord, error) {
	var record VerificationRecord
	err := r.executeWithRetry(ctx, "repository.find_record", requestID, func() error {
		return r.db.WithContext(ctx).First(&record, "request_id = ? AND user_id = ?", requestID, userID).Error
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// AggregateMetrics computes aggregate counters across all records.
func (r *VerificationRepository) AggregateMetrics(ctx context.Context) (*MetricsAggregation, error) {
	var aggregation MetricsAggregation
	err := r.executeWithRetry(ctx, "repository.aggregate_metrics", "", func() error {
		return r.db.WithContext(ctx).
			Model(&VerificationRecord{}).
			Select(
				"COUNT(*) AS total_count",
				"COALESCE(SUM(CASE WHEN verified THEN 1 ELSE 0 END), 0) AS verified_count",
				"COALESCE(AVG(confidence), 0) AS average_confidence",
			).
			Scan(&aggregation).Error
	})
	if err != nil {
		return nil, err
	}
	return &aggregation, nil
}

// executeWithRetry retries transient database failures with capped backoff.
// Non-transient errors and exhausted attempts come back wrapped as an
// OperationError.
func (r *VerificationRepository) executeWithRetry(ctx context.Context, operation, requestID string, fn func() error) error {
	backoff := r.initialBackoff
	opLogger := logging.WithOperation(r.logger, operation, requestID)

	var err error
	for attempt := 0; attempt < r.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
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

		if !isRetryable(err) || attempt == r.retryAttempts-1 {
			return logging.NewOperationError(operation, requestID, err)
		}

		opLogger.Warn("transient database error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}
