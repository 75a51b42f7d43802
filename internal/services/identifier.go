package services

import (
	"net/mail"
	"strings"

	"storefront/internal/models"
)

type IdentifierKind int

const (
	IdentifierEmail IdentifierKind = iota + 1
	IdentifierPhone
)

type Identifier struct {
	Kind  IdentifierKind
	Value string
}

func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ParseIdentifier decides whether raw is an email or a phone number and
// returns its canonical form.
func ParseIdentifier(raw string) (Identifier, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Identifier{}, validationf("identifier is required")
	}
	if strings.Contains(raw, "@") {
		email := NormalizeEmail(raw)
		if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
			return Identifier{}, validationf("invalid email %q", raw)
		}
		return Identifier{Kind: IdentifierEmail, Value: email}, nil
	}
	phone := models.NormalizePhone(raw)
	if !models.PhonePattern.MatchString(phone) {
		return Identifier{}, validationf("invalid phone %q", raw)
	}
	return Identifier{Kind: IdentifierPhone, Value: phone}, nil
}
