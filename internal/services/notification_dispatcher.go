package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"storefront/internal/metrics"
	"storefront/internal/models"
)

// Notifier is what the login flows need from the outside world. Every call
// returns immediately, delivery failures are only logged.
type Notifier interface {
	OTPCode(id Identifier, purpose, code string, ttl time.Duration)
	Welcome(a *models.Account)
	AccountLocked(a *models.Account, until time.Time)
}

type AlertSender interface {
	NotifyAccountLocked(accountID, email string, until time.Time) error
}

type NotificationDispatcher struct {
	email   EmailService
	sms     SMSService
	alerts  AlertSender
	log     *zap.SugaredLogger
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewNotificationDispatcher(email EmailService, sms SMSService, alerts AlertSender, log *zap.SugaredLogger) *NotificationDispatcher {
	return &NotificationDispatcher{
		email:   email,
		sms:     sms,
		alerts:  alerts,
		log:     log,
		timeout: 30 * time.Second,
	}
}

// formatPurpose: "reset_password" -> "Password Reset". Caser не потокобезопасен,
// поэтому создаём на каждый вызов.
func formatPurpose(purpose string) string {
	caser := cases.Title(language.English)
	switch purpose {
	case models.PurposeLogin:
		return caser.String("sign-in")
	case models.PurposeResetPassword:
		return caser.String("password reset")
	default:
		return caser.String(strings.ReplaceAll(purpose, "_", " "))
	}
}

func (d *NotificationDispatcher) OTPCode(id Identifier, purpose, code string, ttl time.Duration) {
	title := formatPurpose(purpose)
	switch id.Kind {
	case IdentifierPhone:
		if d.sms == nil {
			d.log.Warnf("[notify][otp] sms disabled, code for %s not delivered", maskIdentifier(id.Value))
			return
		}
		d.goSend("sms_otp", func(ctx context.Context) error {
			return d.sms.SendOTP(ctx, id.Value, title, code, ttl)
		})
	case IdentifierEmail:
		if d.email == nil {
			d.log.Warnf("[notify][otp] email disabled, code for %s not delivered", maskIdentifier(id.Value))
			return
		}
		d.goSend("email_otp", func(context.Context) error {
			return d.email.SendOTPEmail(id.Value, title, code, ttl)
		})
	}
}

func (d *NotificationDispatcher) Welcome(a *models.Account) {
	if d.email == nil || a.Email == "" {
		return
	}
	email, name := a.Email, a.Name
	d.goSend("email_welcome", func(context.Context) error {
		return d.email.SendWelcomeEmail(email, name)
	})
}

func (d *NotificationDispatcher) AccountLocked(a *models.Account, until time.Time) {
	id, email, name := a.ID, a.Email, a.Name
	if d.email != nil && email != "" {
		d.goSend("email_lock", func(context.Context) error {
			return d.email.SendLockNoticeEmail(email, name, until)
		})
	}
	if d.alerts != nil {
		d.goSend("telegram_lock", func(context.Context) error {
			return d.alerts.NotifyAccountLocked(id, email, until)
		})
	}
}

// goSend runs fn in the background with its own timeout, detached from the
// request context.
func (d *NotificationDispatcher) goSend(kind string, fn func(ctx context.Context) error) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				metrics.NotificationsFailed.WithLabelValues(kind).Inc()
				d.log.Errorf("[notify][%s] panic: %v", kind, r)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			metrics.NotificationsFailed.WithLabelValues(kind).Inc()
			d.log.Warnf("[notify][%s] failed: %v", kind, err)
		}
	}()
}

// Wait blocks until in-flight notifications finish or ctx expires.
func (d *NotificationDispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
