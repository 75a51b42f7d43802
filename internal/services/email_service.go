package services

import (
	"fmt"
	"html"
	"time"

	"gopkg.in/gomail.v2"
)

type EmailService interface {
	SendWelcomeEmail(email, name string) error
	SendOTPEmail(email, purpose, code string, ttl time.Duration) error
	SendLockNoticeEmail(email, name string, until time.Time) error
}

type emailService struct {
	dialer *gomail.Dialer
	from   string
}

// NewEmailService returns nil when no SMTP host is configured, the
// dispatcher treats a nil sender as disabled.
func NewEmailService(smtpHost string, smtpPort int, smtpUser, smtpPassword, fromEmail string) EmailService {
	if smtpHost == "" {
		return nil
	}
	dialer := gomail.NewDialer(smtpHost, smtpPort, smtpUser, smtpPassword)
	return &emailService{
		dialer: dialer,
		from:   fromEmail,
	}
}

func (s *emailService) send(to, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)
	return s.dialer.DialAndSend(m)
}

func (s *emailService) SendWelcomeEmail(email, name string) error {
	body := fmt.Sprintf(`
		<h2>Welcome to Storefront, %s!</h2>
		<p>Your account has been successfully created.</p>
		<p>Best regards,<br>The Storefront Team</p>
	`, html.EscapeString(name))

	if err := s.send(email, "Welcome to Storefront!", body); err != nil {
		return fmt.Errorf("failed to send welcome email: %w", err)
	}
	return nil
}

func (s *emailService) SendOTPEmail(email, purpose, code string, ttl time.Duration) error {
	body := fmt.Sprintf(`
		<h3>%s code</h3>
		<p>Your one-time code: <strong>%s</strong></p>
		<p>It expires in %s. If you did not request it, you can ignore this email.</p>
	`, html.EscapeString(purpose), code, humanDuration(ttl))

	if err := s.send(email, purpose+" code", body); err != nil {
		return fmt.Errorf("failed to send code email: %w", err)
	}
	return nil
}

func (s *emailService) SendLockNoticeEmail(email, name string, until time.Time) error {
	body := fmt.Sprintf(`
		<h3>Your account is temporarily locked</h3>
		<p>Hello %s, we locked your account after several failed sign-in attempts.</p>
		<p>You can sign in again after %s (UTC) or sign in with a one-time code.</p>
	`, html.EscapeString(name), until.UTC().Format("2006-01-02 15:04"))

	if err := s.send(email, "Account locked", body); err != nil {
		return fmt.Errorf("failed to send lock notice: %w", err)
	}
	return nil
}
