package services

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"storefront/internal/models"
)

type PasswordResetService interface {
	ResetWithOTP(ctx context.Context, identifier, code, newPassword string) error
	ChangePassword(ctx context.Context, accountID, currentPassword, newPassword string) error
}

// PasswordChecker verifies a secret with lockout bookkeeping.
type PasswordChecker interface {
	CheckPassword(ctx context.Context, acc *models.Account, password string) error
}

type passwordResetService struct {
	creds   CredentialService
	otp     OTPService
	checker PasswordChecker
	log     *zap.SugaredLogger
}

func NewPasswordResetService(creds CredentialService, otp OTPService, checker PasswordChecker, log *zap.SugaredLogger) PasswordResetService {
	return &passwordResetService{creds: creds, otp: otp, checker: checker, log: log}
}

// ResetWithOTP sets a new password after a reset_password code checks out and
// lifts any password lock.
func (s *passwordResetService) ResetWithOTP(ctx context.Context, identifier, code, newPassword string) error {
	if len(newPassword) < 6 {
		return validationf("password must be at least 6 characters")
	}
	id, err := ParseIdentifier(identifier)
	if err != nil {
		return err
	}
	acc, err := s.creds.Resolve(ctx, id)
	if errors.Is(err, ErrNotFound) {
		// кодов для несуществующих аккаунтов не выдаём
		return ErrCodeNotFound
	}
	if err != nil {
		return err
	}
	if !acc.IsActive() {
		return ErrAccountBlocked
	}
	if err := s.otp.Verify(ctx, id.Value, code, models.PurposeResetPassword); err != nil {
		return err
	}
	if err := s.creds.SetPassword(ctx, acc, newPassword); err != nil {
		return err
	}
	if err := s.creds.ResetFailures(ctx, acc); err != nil {
		return err
	}
	s.log.Infof("[password-reset] done id=%s", acc.ID)
	return nil
}

// ChangePassword counts a wrong current password toward the lockout, the
// same as a failed login.
func (s *passwordResetService) ChangePassword(ctx context.Context, accountID, currentPassword, newPassword string) error {
	if len(newPassword) < 6 {
		return validationf("password must be at least 6 characters")
	}
	if currentPassword == newPassword {
		return validationf("new password must differ from the current one")
	}
	acc, err := s.creds.GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	// неверный текущий пароль считается как неудачный вход
	if err := s.checker.CheckPassword(ctx, acc, currentPassword); err != nil {
		return err
	}
	if err := s.creds.SetPassword(ctx, acc, newPassword); err != nil {
		return err
	}
	s.log.Infof("[password][change] id=%s", acc.ID)
	return nil
}
