package services

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"storefront/internal/authz"
	"storefront/internal/metrics"
	"storefront/internal/models"
)

type LoginResult struct {
	Account   *models.Account
	Token     string
	ExpiresAt time.Time
}

// LoginService is the login guardian: it walks an attempt through
// resolve -> blocked -> lock -> secret and keeps the failure bookkeeping.
type LoginService struct {
	creds    CredentialService
	otp      OTPService
	throttle OTPThrottle
	sessions *SessionService
	policies *authz.Policies
	notify   Notifier
	log      *zap.SugaredLogger

	now func() time.Time
}

func NewLoginService(
	creds CredentialService,
	otp OTPService,
	throttle OTPThrottle,
	sessions *SessionService,
	policies *authz.Policies,
	notify Notifier,
	log *zap.SugaredLogger,
) *LoginService {
	if throttle == nil {
		throttle = NoThrottle()
	}
	return &LoginService{
		creds:    creds,
		otp:      otp,
		throttle: throttle,
		sessions: sessions,
		policies: policies,
		notify:   notify,
		log:      log,
		now:      time.Now,
	}
}

// Register always creates a plain user, privileged accounts come from the
// admin bootstrap only.
func (s *LoginService) Register(ctx context.Context, in NewAccount) (*LoginResult, error) {
	in.Role = models.RoleUser
	acc, err := s.creds.CreateAccount(ctx, in)
	if err != nil {
		return nil, err
	}
	s.notify.Welcome(acc)

	token, exp, err := s.sessions.Issue(acc.ID, acc.Role)
	if err != nil {
		return nil, err
	}
	s.log.Infof("[auth][register] id=%s", acc.ID)
	return &LoginResult{Account: acc, Token: token, ExpiresAt: exp}, nil
}

func (s *LoginService) Login(ctx context.Context, identifier, password string) (res *LoginResult, err error) {
	defer func() { metrics.LoginAttempts.WithLabelValues("password", loginOutcome(err)).Inc() }()

	acc, err := s.resolveForPassword(ctx, identifier, password)
	if err != nil {
		return nil, err
	}
	if err := s.CheckPassword(ctx, acc, password); err != nil {
		return nil, err
	}
	return s.complete(ctx, acc, false)
}

// AdminLogin runs the same checks but only lets admins through and puts the
// email into the token.
func (s *LoginService) AdminLogin(ctx context.Context, email, password string) (res *LoginResult, err error) {
	defer func() { metrics.LoginAttempts.WithLabelValues("admin", loginOutcome(err)).Inc() }()

	id, err := ParseIdentifier(email)
	if err != nil {
		return nil, err
	}
	if id.Kind != IdentifierEmail {
		return nil, validationf("admin login requires an email")
	}
	acc, err := s.resolveForPassword(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if err := s.CheckPassword(ctx, acc, password); err != nil {
		return nil, err
	}
	if !authz.IsAdmin(acc.Role) {
		s.log.Warnf("[auth][admin-login] non-admin id=%s", acc.ID)
		return nil, ErrForbidden
	}
	return s.complete(ctx, acc, true)
}

func (s *LoginService) resolveForPassword(ctx context.Context, identifier, password string) (*models.Account, error) {
	id, err := ParseIdentifier(identifier)
	if err != nil {
		return nil, err
	}
	acc, err := s.creds.Resolve(ctx, id)
	if errors.Is(err, ErrNotFound) {
		s.creds.VerifySecret(nil, password)
		return nil, ErrInvalidCredentials
	}
	return acc, err
}

// CheckPassword runs the blocked, lock and secret checks for acc and does the
// failure bookkeeping. Login and password change both go through it.
func (s *LoginService) CheckPassword(ctx context.Context, acc *models.Account, password string) error {
	if !acc.IsActive() {
		return ErrAccountBlocked
	}
	now := s.now()
	pol := s.policies.For(acc.Role)
	if rem := pol.LockedFor(loginState(acc), now); rem > 0 {
		return &LockedError{Until: *acc.LockUntil, Remaining: rem}
	}

	if s.creds.VerifySecret(acc, password) {
		return s.creds.ResetFailures(ctx, acc)
	}

	locked, err := s.creds.IncrementFailures(ctx, acc)
	if err != nil {
		return err
	}
	if locked {
		until := *acc.LockUntil
		metrics.AccountLocks.Inc()
		s.notify.AccountLocked(acc, until)
		s.log.Warnf("[auth][password] locked id=%s until=%s", acc.ID, until.Format(time.RFC3339))
		return &LockedError{Until: until, Remaining: until.Sub(now)}
	}
	s.log.Infof("[auth][password] bad password id=%s failures=%d", acc.ID, acc.FailedAttempts)
	return ErrInvalidCredentials
}

func (s *LoginService) complete(ctx context.Context, acc *models.Account, admin bool) (*LoginResult, error) {
	if err := s.creds.RecordLogin(ctx, acc); err != nil {
		return nil, err
	}
	var (
		token string
		exp   time.Time
		err   error
	)
	if admin {
		token, exp, err = s.sessions.IssueAdmin(acc.ID, acc.Role, acc.Email)
	} else {
		token, exp, err = s.sessions.Issue(acc.ID, acc.Role)
	}
	if err != nil {
		return nil, err
	}
	s.log.Infof("[auth][login] success id=%s role=%s", acc.ID, acc.Role)
	return &LoginResult{Account: acc, Token: token, ExpiresAt: exp}, nil
}

// RequestOTP answers the same way whether or not the identifier belongs to an
// account, a code is only issued and delivered for active ones.
func (s *LoginService) RequestOTP(ctx context.Context, identifier, purpose string) error {
	id, err := ParseIdentifier(identifier)
	if err != nil {
		return err
	}
	if !validPurpose(purpose) {
		return validationf("unknown purpose %q", purpose)
	}
	if err := s.throttle.Allow(ctx, id.Value, purpose); err != nil {
		return err
	}

	acc, err := s.creds.Resolve(ctx, id)
	if errors.Is(err, ErrNotFound) {
		s.log.Infof("[otp][request] unknown identifier=%s", maskIdentifier(id.Value))
		return nil
	}
	if err != nil {
		return err
	}
	if !acc.IsActive() {
		s.log.Infof("[otp][request] blocked id=%s", acc.ID)
		return nil
	}

	rec, err := s.otp.Issue(ctx, id.Value, purpose)
	if err != nil {
		return err
	}
	s.notify.OTPCode(id, purpose, rec.Code, rec.ExpiresAt.Sub(rec.CreatedAt))
	return nil
}

// LoginWithOTP replaces the secret check with a login code. Lock state and
// the failure counter are left alone.
func (s *LoginService) LoginWithOTP(ctx context.Context, identifier, code string) (res *LoginResult, err error) {
	defer func() { metrics.LoginAttempts.WithLabelValues("otp", loginOutcome(err)).Inc() }()

	id, err := ParseIdentifier(identifier)
	if err != nil {
		return nil, err
	}
	acc, err := s.creds.Resolve(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !acc.IsActive() {
		return nil, ErrAccountBlocked
	}
	if err := s.otp.Verify(ctx, id.Value, code, models.PurposeLogin); err != nil {
		return nil, err
	}
	return s.complete(ctx, acc, false)
}

func loginOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrAccountLocked):
		return "locked"
	case errors.Is(err, ErrAccountBlocked):
		return "blocked"
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrForbidden):
		return "rejected"
	case errors.Is(err, ErrCodeNotFound), errors.Is(err, ErrCodeMismatch), errors.Is(err, ErrAttemptsExceeded):
		return "bad_code"
	case errors.Is(err, ErrValidation):
		return "invalid"
	default:
		return "error"
	}
}
