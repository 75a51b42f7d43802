package services

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrConflict           = errors.New("email or phone already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountBlocked     = errors.New("account is blocked")
	ErrAccountLocked      = errors.New("account is locked")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")

	ErrCodeNotFound     = errors.New("no active code")
	ErrAttemptsExceeded = errors.New("too many attempts")
	ErrCodeMismatch     = errors.New("code invalid")
	ErrOTPThrottled     = errors.New("otp requested too often")
)

// LockedError is returned while a password lock is in force.
type LockedError struct {
	Until     time.Time
	Remaining time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account is locked due to repeated failed logins, try again in %s", humanDuration(e.Remaining))
}

func (e *LockedError) Is(target error) bool { return target == ErrAccountLocked }

// ThrottledError carries how long the caller should wait.
type ThrottledError struct {
	RetryAfter time.Duration
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("too many code requests, try again in %s", humanDuration(e.RetryAfter))
}

func (e *ThrottledError) Is(target error) bool { return target == ErrOTPThrottled }

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func humanDuration(d time.Duration) string {
	if d < time.Minute {
		secs := int(d.Round(time.Second) / time.Second)
		if secs < 1 {
			secs = 1
		}
		return fmt.Sprintf("%d seconds", secs)
	}
	d = d.Round(time.Minute)
	h, m := int(d/time.Hour), int((d%time.Hour)/time.Minute)
	switch {
	case h > 0 && m > 0:
		return fmt.Sprintf("%d hours %d minutes", h, m)
	case h > 0:
		return fmt.Sprintf("%d hours", h)
	default:
		return fmt.Sprintf("%d minutes", m)
	}
}
