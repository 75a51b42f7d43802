package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"storefront/internal/metrics"
	"storefront/internal/models"
	"storefront/internal/repositories"
	"storefront/internal/utils"
)

const (
	defaultCodeTTL     = 5 * time.Minute
	defaultMaxAttempts = 3
)

// OTPService is the ledger of one-time codes keyed by identifier+purpose.
type OTPService interface {
	Issue(ctx context.Context, identifier, purpose string) (*models.OneTimeCode, error)
	Verify(ctx context.Context, identifier, code, purpose string) error
	RunJanitor(ctx context.Context, every time.Duration)
}

type OTPOptions struct {
	TTL         time.Duration
	MaxAttempts int
	Retention   time.Duration
}

type otpService struct {
	repo repositories.OneTimeCodeRepository
	opts OTPOptions
	log  *zap.SugaredLogger

	now     func() time.Time
	newCode func() (string, error)
}

func NewOTPService(repo repositories.OneTimeCodeRepository, opts OTPOptions, log *zap.SugaredLogger) OTPService {
	if opts.TTL <= 0 {
		opts.TTL = defaultCodeTTL
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.Retention < opts.TTL {
		opts.Retention = 2 * opts.TTL
	}
	return &otpService{
		repo:    repo,
		opts:    opts,
		log:     log,
		now:     time.Now,
		newCode: utils.NewNumericCode,
	}
}

func validPurpose(p string) bool {
	return p == models.PurposeLogin || p == models.PurposeResetPassword
}

// Issue replaces whatever code exists for the key with a fresh one.
func (s *otpService) Issue(ctx context.Context, identifier, purpose string) (*models.OneTimeCode, error) {
	if identifier == "" {
		return nil, validationf("identifier is required")
	}
	if !validPurpose(purpose) {
		return nil, validationf("unknown purpose %q", purpose)
	}
	code, err := s.newCode()
	if err != nil {
		return nil, fmt.Errorf("generate code: %w", err)
	}
	now := s.now().UTC()
	rec := &models.OneTimeCode{
		ID:         uuid.NewString(),
		Identifier: identifier,
		Purpose:    purpose,
		Code:       code,
		ExpiresAt:  now.Add(s.opts.TTL),
		CreatedAt:  now,
	}
	if err := s.repo.Replace(ctx, rec); err != nil {
		return nil, err
	}
	metrics.OTPIssued.WithLabelValues(purpose).Inc()
	s.log.Infof("[otp][issue] identifier=%s purpose=%s expires_at=%s", maskIdentifier(identifier), purpose, rec.ExpiresAt.Format(time.RFC3339))
	return rec, nil
}

func (s *otpService) Verify(ctx context.Context, identifier, code, purpose string) (err error) {
	defer func() { metrics.OTPVerifications.WithLabelValues(verifyOutcome(err)).Inc() }()

	rec, err := s.repo.FindActive(ctx, identifier, purpose, s.now())
	if errors.Is(err, repositories.ErrNotFound) {
		return ErrCodeNotFound
	}
	if err != nil {
		return err
	}

	if rec.Attempts >= s.opts.MaxAttempts {
		s.exhaust(ctx, rec)
		return ErrAttemptsExceeded
	}

	attempts, err := s.repo.IncrementAttempts(ctx, rec.ID)
	if errors.Is(err, repositories.ErrNotFound) {
		// параллельный запрос успел использовать или удалить код
		return ErrCodeNotFound
	}
	if err != nil {
		return err
	}
	if attempts > s.opts.MaxAttempts {
		s.exhaust(ctx, rec)
		return ErrAttemptsExceeded
	}

	if subtle.ConstantTimeCompare([]byte(rec.Code), []byte(code)) != 1 {
		s.log.Infof("[otp][verify] mismatch identifier=%s purpose=%s attempts=%d", maskIdentifier(identifier), purpose, attempts)
		return ErrCodeMismatch
	}

	if err := s.repo.MarkUsed(ctx, rec.ID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrCodeNotFound
		}
		return err
	}
	s.log.Infof("[otp][verify] ok identifier=%s purpose=%s", maskIdentifier(identifier), purpose)
	return nil
}

func (s *otpService) exhaust(ctx context.Context, rec *models.OneTimeCode) {
	if err := s.repo.Delete(ctx, rec.ID); err != nil && !errors.Is(err, repositories.ErrNotFound) {
		s.log.Warnf("[otp][verify] delete exhausted code id=%s err=%v", rec.ID, err)
	}
}

// RunJanitor purges expired codes until ctx is done. Mongo removes them with
// TTL indexes as well, the sweep keeps both stores consistent.
func (s *otpService) RunJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := s.repo.PurgeExpired(ctx, s.now(), s.opts.Retention)
			if err != nil {
				if ctx.Err() == nil {
					s.log.Warnf("[otp][janitor] purge failed: %v", err)
				}
				continue
			}
			if n > 0 {
				s.log.Debugf("[otp][janitor] purged=%d", n)
			}
		}
	}
}

func verifyOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrCodeNotFound):
		return "not_found"
	case errors.Is(err, ErrAttemptsExceeded):
		return "exhausted"
	case errors.Is(err, ErrCodeMismatch):
		return "mismatch"
	default:
		return "error"
	}
}

// maskIdentifier keeps only the edges of an email or phone for logs.
func maskIdentifier(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + "****" + s[len(s)-2:]
}
