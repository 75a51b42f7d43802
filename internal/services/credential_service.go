package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"storefront/internal/authz"
	"storefront/internal/models"
	"storefront/internal/repositories"
)

type NewAccount struct {
	Name     string
	Email    string
	Password string
	Phone    string
	DOB      *time.Time
	Gender   string
	Role     string
}

// CredentialService owns the persisted account records and their secrets.
type CredentialService interface {
	CreateAccount(ctx context.Context, in NewAccount) (*models.Account, error)
	EnsureAdmin(ctx context.Context, in NewAccount) (bool, error)
	Resolve(ctx context.Context, id Identifier) (*models.Account, error)
	GetByID(ctx context.Context, id string) (*models.Account, error)

	VerifySecret(a *models.Account, plaintext string) bool
	IncrementFailures(ctx context.Context, a *models.Account) (locked bool, err error)
	ResetFailures(ctx context.Context, a *models.Account) error
	SetPassword(ctx context.Context, a *models.Account, plaintext string) error
	RecordLogin(ctx context.Context, a *models.Account) error
}

type credentialService struct {
	repo     repositories.AccountRepository
	policies *authz.Policies
	cost     int
	log      *zap.SugaredLogger

	now func() time.Time
	// сравниваем с ним, когда аккаунт не найден, чтобы время ответа не отличалось
	dummyHash []byte
}

func NewCredentialService(repo repositories.AccountRepository, policies *authz.Policies, log *zap.SugaredLogger) CredentialService {
	return newCredentialService(repo, policies, bcrypt.DefaultCost, log)
}

func newCredentialService(repo repositories.AccountRepository, policies *authz.Policies, cost int, log *zap.SugaredLogger) *credentialService {
	dummy, err := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), cost)
	if err != nil {
		panic(fmt.Sprintf("bcrypt dummy hash: %v", err))
	}
	return &credentialService{
		repo:      repo,
		policies:  policies,
		cost:      cost,
		log:       log,
		now:       time.Now,
		dummyHash: dummy,
	}
}

func (s *credentialService) hash(plain string) (string, error) {
	if strings.TrimSpace(plain) == "" {
		return "", validationf("password is required")
	}
	if len(plain) > 72 {
		return "", validationf("password must be at most 72 bytes")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(plain), s.cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt generate: %w", err)
	}
	return string(h), nil
}

func (s *credentialService) CreateAccount(ctx context.Context, in NewAccount) (*models.Account, error) {
	email := NormalizeEmail(in.Email)
	phone := models.NormalizePhone(in.Phone)
	if strings.TrimSpace(in.Name) == "" {
		return nil, validationf("name is required")
	}
	if id, err := ParseIdentifier(email); err != nil || id.Kind != IdentifierEmail {
		return nil, validationf("invalid email")
	}
	if !models.PhonePattern.MatchString(phone) {
		return nil, validationf("invalid phone")
	}

	exists, err := s.repo.ExistsByEmailOrPhone(ctx, email, phone)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrConflict
	}

	hash, err := s.hash(in.Password)
	if err != nil {
		return nil, err
	}

	role := in.Role
	if role == "" {
		role = models.RoleUser
	}
	now := s.now().UTC()
	a := &models.Account{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(in.Name),
		Email:        email,
		Phone:        phone,
		PasswordHash: hash,
		DOB:          in.DOB,
		Gender:       in.Gender,
		Role:         role,
		Status:       models.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		// уникальные индексы: последняя линия защиты от гонки
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, ErrConflict
		}
		return nil, err
	}
	s.log.Infof("[credentials][create] id=%s role=%s", a.ID, a.Role)
	return a, nil
}

// EnsureAdmin creates the configured admin if no account uses its email yet.
func (s *credentialService) EnsureAdmin(ctx context.Context, in NewAccount) (bool, error) {
	_, err := s.repo.GetByEmail(ctx, NormalizeEmail(in.Email))
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return false, err
	}
	in.Role = models.RoleAdmin
	if _, err := s.CreateAccount(ctx, in); err != nil {
		return false, err
	}
	return true, nil
}

func (s *credentialService) Resolve(ctx context.Context, id Identifier) (*models.Account, error) {
	var (
		a   *models.Account
		err error
	)
	switch id.Kind {
	case IdentifierEmail:
		a, err = s.repo.GetByEmail(ctx, id.Value)
	case IdentifierPhone:
		a, err = s.repo.GetByPhone(ctx, id.Value)
	default:
		return nil, validationf("unknown identifier kind")
	}
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrNotFound
	}
	return a, err
}

func (s *credentialService) GetByID(ctx context.Context, id string) (*models.Account, error) {
	a, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrNotFound
	}
	return a, err
}

// VerifySecret always runs one bcrypt comparison, also for a nil account.
func (s *credentialService) VerifySecret(a *models.Account, plaintext string) bool {
	if a == nil || a.PasswordHash == "" {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(plaintext))
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(plaintext)) == nil
}

func loginState(a *models.Account) authz.LoginState {
	return authz.LoginState{FailedAttempts: a.FailedAttempts, LockUntil: a.LockUntil}
}

// IncrementFailures counts one failed attempt against the stored state, not
// the snapshot in a, so parallel failures all add up.
func (s *credentialService) IncrementFailures(ctx context.Context, a *models.Account) (bool, error) {
	pol := s.policies.For(a.Role)
	if !pol.Enforced {
		return false, nil
	}
	now := s.now()
	var locked bool
	next, err := s.repo.ModifyLoginState(ctx, a.ID, func(cur authz.LoginState) authz.LoginState {
		var st authz.LoginState
		st, locked = pol.RecordFailure(cur, now)
		return st
	})
	if errors.Is(err, repositories.ErrNotFound) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, err
	}
	a.FailedAttempts, a.LockUntil = next.FailedAttempts, next.LockUntil
	return locked, nil
}

func (s *credentialService) ResetFailures(ctx context.Context, a *models.Account) error {
	if a.FailedAttempts == 0 && a.LockUntil == nil {
		return nil
	}
	if err := s.repo.UpdateLoginState(ctx, a.ID, 0, nil); err != nil {
		return err
	}
	a.FailedAttempts, a.LockUntil = 0, nil
	return nil
}

func (s *credentialService) SetPassword(ctx context.Context, a *models.Account, plaintext string) error {
	hash, err := s.hash(plaintext)
	if err != nil {
		return err
	}
	if err := s.repo.UpdatePassword(ctx, a.ID, hash); err != nil {
		return err
	}
	a.PasswordHash = hash
	return nil
}

func (s *credentialService) RecordLogin(ctx context.Context, a *models.Account) error {
	now := s.now().UTC()
	if err := s.repo.UpdateLastLogin(ctx, a.ID, now); err != nil {
		return err
	}
	a.LastLogin = &now
	return nil
}
