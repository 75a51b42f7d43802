package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type Claims struct {
	ID    string `json:"id"`
	Role  string `json:"role"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

type SessionOptions struct {
	Secret   []byte
	Issuer   string
	UserTTL  time.Duration
	AdminTTL time.Duration
}

// SessionService signs and verifies bearer tokens. Nothing is persisted,
// expiry is the only way a token stops working.
type SessionService struct {
	opts SessionOptions
	now  func() time.Time
}

func NewSessionService(opts SessionOptions) *SessionService {
	if opts.UserTTL <= 0 {
		opts.UserTTL = 7 * 24 * time.Hour
	}
	if opts.AdminTTL <= 0 {
		opts.AdminTTL = opts.UserTTL
	}
	return &SessionService{opts: opts, now: time.Now}
}

// Issue mints a token carrying id and role.
func (s *SessionService) Issue(accountID, role string) (string, time.Time, error) {
	return s.sign(Claims{ID: accountID, Role: role}, s.opts.UserTTL)
}

// IssueAdmin additionally carries the email and uses the admin lifetime.
func (s *SessionService) IssueAdmin(accountID, role, email string) (string, time.Time, error) {
	return s.sign(Claims{ID: accountID, Role: role, Email: email}, s.opts.AdminTTL)
}

func (s *SessionService) sign(c Claims, ttl time.Duration) (string, time.Time, error) {
	if c.ID == "" {
		return "", time.Time{}, errors.New("session: empty account id")
	}
	now := s.now()
	exp := now.Add(ttl)
	c.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    s.opts.Issuer,
		Subject:   c.ID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.opts.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return tok, exp, nil
}

func (s *SessionService) Verify(token string) (*Claims, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.opts.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.opts.Issuer))
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.opts.Secret, nil
	}, opts...)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	default:
		return nil, ErrInvalidToken
	}
	if claims.ID == "" || claims.Role == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
