package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/id-verify/internal/face"
	"github.com/example/id-verify/internal/fetcher"
	"github.com/example/id-verify/internal/logging"
	"github.com/example/id-verify/internal/repository"
)

// ErrPhotoUnavailable signals that the reference photo could not be
// retrieved; the boundary maps it to a caller-fault response.
var ErrPhotoUnavailable = errors.New("reference photo could not be retrieved")

// DocumentTypeError is returned when the document type gate fails. It carries
// the narrow two-field response shape the boundary emits as a 400.
type DocumentTypeError struct {
	DocumentType DocumentType
	Message      string
}

func (e *DocumentTypeError) Error() string {
	return e.Message
}

// FileFetcher retrieves remote resources into local handles and releases
// them. Release must be best-effort: it never reports failure.
type FileFetcher interface {
	Fetch(ctx context.Context, url string) (*fetcher.Handle, error)
	FetchMany(ctx context.Context, urls []string) []*fetcher.Handle
	Release(handle *fetcher.Handle)
	ReleaseMany(handles []*fetcher.Handle)
}

// TextExtractor produces the lowercased corpus for a set of handles.
type TextExtractor interface {
	CorpusFrom(ctx context.Context, handles []*fetcher.Handle) string
}

// FaceComparator matches a reference photo against candidate documents.
type FaceComparator interface {
	CompareAgainstSet(ctx context.Context, source *fetcher.Handle, candidates []*fetcher.Handle) face.MatchResult
}

// VerificationRepository defines the persistence operations needed by the
// use case.
type VerificationRepository interface {
	SaveRecord(ctx context.Context, record *repository.VerificationRecord) error
	FindByRequestIDAndUser(ctx context.Context, requestID, userID string) (*repository.VerificationRecord, error)
	AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error)
}

// Request is a validated verification request. The boundary has already
// normalized the document type and enforced field presence rules.
type Request struct {
	Name               string
	DOB                string
	IdentityCardNumber string
	PhotoURL           string
	IdentityURLs       []string
	Type               DocumentType
}

// Result aggregates the per-aspect match flags and the derived verdict.
// Pointer fields apply only to aadhaar/passport and stay nil for other
// document types.
type Result struct {
	DocumentTypeMatched           bool
	NameMatched                   bool
	DOBMatched                    *bool
	IdentityCardNumberMatched     *bool
	IdentityCardNumberFormatValid *bool
	FaceMatched                   bool
	Confidence                    float64
	Verified                      bool
	Message                       string
}

// VerificationUseCase orchestrates the verification pipeline together with
// persistence and result caching.
type VerificationUseCase struct {
	repo           VerificationRepository
	cache          Cache
	files          FileFetcher
	extractor      TextExtractor
	faces          FaceComparator
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

type cachedResult struct {
	RequestID                 string    `json:"request_id"`
	UserID                    string    `json:"user_id"`
	Name                      string    `json:"name"`
	DocumentType              string    `json:"document_type"`
	DocumentTypeMatched       bool      `json:"document_type_matched"`
	NameMatched               bool      `json:"name_matched"`
	DOBMatched                *bool     `json:"dob_matched,omitempty"`
	IdentityCardNumberMatched *bool     `json:"identity_card_number_matched,omitempty"`
	FaceMatched               bool      `json:"face_matched"`
	Verified                  bool      `json:"verified"`
	Confidence                float64   `json:"confidence"`
	Message                   string    `json:"message"`
	CreatedAt                 time.Time `json:"created_at"`
}

// NewVerificationUseCase constructs a new use case instance.
func NewVerificationUseCase(repo VerificationRepository, cache Cache, files FileFetcher, extractor TextExtractor, faces FaceComparator, logger *zap.Logger) *VerificationUseCase {
	return &VerificationUseCase{
		repo:           repo,
		cache:          cache,
		files:          files,
		extractor:      extractor,
		faces:          faces,
		logger:         logger.Named("verification_usecase"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// VerifyIdentity runs the verification pipeline for one request and records
// the outcome. It returns the generated request id alongside the result.
func (uc *VerificationUseCase) VerifyIdentity(ctx context.Context, userID string, req Request) (string, *Result, error) {
	requestID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.verify_identity", requestID)

	cacheKey := fmt.Sprintf("verification:%s", requestID)
	if err := uc.withRedisRetry(ctx, requestID, "cache.set.processing", func() error {
		return uc.cache.Set(ctx, cacheKey, "processing", time.Minute)
	}); err != nil {
		opLogger.Error("failed to set processing flag", zap.Error(err))
		return "", nil, err
	}

	result, err := uc.runPipeline(ctx, opLogger, req)
	if err != nil {
		return "", nil, err
	}

	record := buildRecord(requestID, userID, req, result)
	if err := uc.repo.SaveRecord(ctx, record); err != nil {
		wrapped := logging.NewOperationError("usecase.save_record", requestID, err)
		opLogger.Error("failed to persist verification record", zap.Error(wrapped))
		return "", nil, wrapped
	}

	serialized, err := json.Marshal(recordToCached(record))
	if err != nil {
		opLogger.Error("failed to serialize verification result", zap.Error(err))
		return "", nil, err
	}

	if err := uc.withRedisRetry(ctx, requestID, "cache.set.result", func() error {
		return uc.cache.Set(ctx, cacheKey, string(serialized), 5*time.Minute)
	}); err != nil {
		opLogger.Error("failed to cache verification result", zap.Error(err))
		return "", nil, err
	}

	return requestID, result, nil
}

// runPipeline executes the sequential verification phases. All fetched
// handles are released on every exit path, including errors; release
// failures are logged inside the fetcher and never surface here.
func (uc *VerificationUseCase) runPipeline(ctx context.Context, opLogger *zap.Logger, req Request) (*Result, error) {
	var (
		photo     *fetcher.Handle
		photoErr  error
		documents []*fetcher.Handle
	)

	// Photo and identity documents are independent downloads; fetch them
	// concurrently.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		photo, photoErr = uc.files.Fetch(ctx, req.PhotoURL)
	}()
	go func() {
		defer wg.Done()
		documents = uc.files.FetchMany(ctx, req.IdentityURLs)
	}()
	wg.Wait()

	defer func() {
		uc.files.Release(photo)
		uc.files.ReleaseMany(documents)
	}()

	if photoErr != nil {
		opLogger.Warn("reference photo fetch failed", zap.String("url", req.PhotoURL), zap.Error(photoErr))
		return nil, fmt.Errorf("%w: %v", ErrPhotoUnavailable, photoErr)
	}

	corpus := uc.extractor.CorpusFrom(ctx, documents)

	if !matchesDocumentType(req.Type, corpus) {
		opLogger.Info("document type gate failed", zap.String("document_type", string(req.Type)))
		return nil, &DocumentTypeError{DocumentType: req.Type, Message: typeGateMessage(req.Type)}
	}

	result := &Result{DocumentTypeMatched: true}
	result.NameMatched = matchesName(corpus, req.Name)

	if req.Type.RequiresIdentityFields() {
		dobMatched := matchesDOB(corpus, req.DOB)
		result.DOBMatched = &dobMatched

		formatValid := validIDNumberFormat(req.Type, req.IdentityCardNumber)
		result.IdentityCardNumberFormatValid = &formatValid

		// An invalid format short-circuits the match without a corpus search.
		idMatched := formatValid && matchesIDNumber(corpus, req.IdentityCardNumber)
		result.IdentityCardNumberMatched = &idMatched
	}

	match := uc.faces.CompareAgainstSet(ctx, photo, documents)
	result.FaceMatched = match.Matched
	result.Confidence = match.Confidence

	// nil (not applicable) passes only when the type legitimately carries no
	// DOB or card number, i.e. type other.
	result.Verified = result.DocumentTypeMatched && result.NameMatched && result.FaceMatched &&
		(req.Type == DocumentTypeOther || (isTrue(result.DOBMatched) && isTrue(result.IdentityCardNumberMatched)))
	result.Message = composeMessage(result)

	return result, nil
}

// composeMessage lists the failing-but-non-fatal aspects in order. The
// message is informational only and never gates the verdict.
func composeMessage(r *Result) string {
	var failed []string
	if !r.NameMatched {
		failed = append(failed, "name")
	}
	if r.DOBMatched != nil && !*r.DOBMatched {
		failed = append(failed, "date of birth")
	}
	if r.IdentityCardNumberMatched != nil && !*r.IdentityCardNumberMatched {
		failed = append(failed, "identity card number")
	}
	if !r.FaceMatched {
		failed = append(failed, "face")
	}
	if len(failed) == 0 {
		return "Verification complete"
	}
	return strings.Join(failed, ", ") + " did not match, but verification continued"
}

func isTrue(b *bool) bool {
	return b != nil && *b
}

func buildRecord(requestID, userID string, req Request, result *Result) *repository.VerificationRecord {
	return &repository.VerificationRecord{
		RequestID:                 requestID,
		UserID:                    userID,
		Name:                      req.Name,
		DocumentType:              string(req.Type),
		DocumentTypeMatched:       result.DocumentTypeMatched,
		NameMatched:               result.NameMatched,
		DOBMatched:                result.DOBMatched,
		IdentityCardNumberMatched: result.IdentityCardNumberMatched,
		FaceMatched:               result.FaceMatched,
		Verified:                  result.Verified,
		Confidence:                result.Confidence,
		Message:                   result.Message,
		CreatedAt:                 time.Now().UTC(),
	}
}

func recordToCached(record *repository.VerificationRecord) cachedResult {
	return cachedResult{
		RequestID:                 record.RequestID,
		UserID:                    record.UserID,
		Name:                      record.Name,
		DocumentType:              record.DocumentType,
		DocumentTypeMatched:       record.DocumentTypeMatched,
		NameMatched:               record.NameMatched,
		DOBMatched:                record.DOBMatched,
		IdentityCardNumberMatched: record.IdentityCardNumberMatched,
		FaceMatched:               record.FaceMatched,
		Verified:                  record.Verified,
		Confidence:                record.Confidence,
		Message:                   record.Message,
		CreatedAt:                 record.CreatedAt,
	}
}

func cachedToRecord(payload cachedResult) *repository.VerificationRecord {
	return &repository.VerificationRecord{
		RequestID:                 payload.RequestID,
		UserID:                    payload.UserID,
		Name:                      payload.Name,
		DocumentType:              payload.DocumentType,
		DocumentTypeMatched:       payload.DocumentTypeMatched,
		NameMatched:               payload.NameMatched,
		DOBMatched:                payload.DOBMatched,
		IdentityCardNumberMatched: payload.IdentityCardNumberMatched,
		FaceMatched:               payload.FaceMatched,
		Verified:                  payload.Verified,
		Confidence:                payload.Confidence,
		Message:                   payload.Message,
		CreatedAt:                 payload.CreatedAt,
	}
}

// GetResult retrieves a cached verification outcome or falls back to the
// persisted record.
func (uc *VerificationUseCase) GetResult(ctx context.Context, userID, requestID string) (*repository.VerificationRecord, error) {
	cacheKey := fmt.Sprintf("verification:%s", requestID)
	if cached, err := uc.withRedisGet(ctx, requestID, "cache.get.result", cacheKey); err == nil {
		var payload cachedResult
		if err := json.Unmarshal([]byte(cached), &payload); err != nil {
			logging.WithOperation(uc.logger, "usecase.get_result", requestID).Warn("failed to decode cached result", zap.Error(err))
		} else if payload.RequestID != "" {
			record := cachedToRecord(payload)
			if record.UserID == "" {
				record.UserID = userID
			}
			return record, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		logging.WithOperation(uc.logger, "usecase.get_result", requestID).Warn("failed to read cache", zap.Error(err))
	}

	return uc.repo.FindByRequestIDAndUser(ctx, requestID, userID)
}

func (uc *VerificationUseCase) withRedisRetry(ctx context.Context, requestID, operation string, fn func() error) error {
	if uc.retryAttempts <= 1 {
		err := fn()
		return logging.NewOperationError(operation, requestID, err)
	}

	backoff := uc.initialBackoff
	opLogger := logging.WithOperation(uc.logger, operation, requestID)
	var err error
	for attempt := 0; attempt < uc.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= uc.maxBackoff {
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

		if !isTransientError(err) || attempt == uc.retryAttempts-1 {
			opLogger.Error("redis operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, requestID, err)
		}

		opLogger.Warn("transient redis error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}

func (uc *VerificationUseCase) withRedisGet(ctx context.Context, requestID, operation, cacheKey string) (string, error) {
	var result string
	err := uc.withRedisRetry(ctx, requestID, operation, func() error {
		value, err := uc.cache.Get(ctx, cacheKey)
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
