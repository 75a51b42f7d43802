package models

import (
	"regexp"
	"strings"
	"time"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"

	StatusActive  = "active"
	StatusBlocked = "blocked"
)

// PhonePattern accepts an optional leading + and 10-15 digits.
var PhonePattern = regexp.MustCompile(`^\+?[0-9]{10,15}$`)

// NormalizePhone drops spaces, dashes and brackets.
func NormalizePhone(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '\t':
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}

type Account struct {
	ID           string     `json:"id" bson:"_id"`
	Name         string     `json:"name" bson:"name"`
	Email        string     `json:"email" bson:"email"`
	Phone        string     `json:"phone" bson:"phone"`
	PasswordHash string     `json:"-" bson:"password_hash"` // не отдаём наружу
	DOB          *time.Time `json:"dob,omitempty" bson:"dob,omitempty"`
	Gender       string     `json:"gender,omitempty" bson:"gender,omitempty"`
	Role         string     `json:"role" bson:"role"`
	Status       string     `json:"status" bson:"status"`

	// lockout bookkeeping
	FailedAttempts int        `json:"-" bson:"failed_attempts"`
	LockUntil      *time.Time `json:"-" bson:"lock_until,omitempty"`
	LastLogin      *time.Time `json:"-" bson:"last_login,omitempty"`

	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

func (a *Account) IsActive() bool { return a.Status == StatusActive }

// AccountView is what leaves the API: never the secret.
type AccountView struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Email          string     `json:"email"`
	Phone          string     `json:"phone"`
	DOB            string     `json:"dob,omitempty"`
	Gender         string     `json:"gender,omitempty"`
	Role           string     `json:"role"`
	Status         string     `json:"status"`
	FailedAttempts int        `json:"failed_attempts,omitempty"`
	LockUntil      *time.Time `json:"lock_until,omitempty"`
	LastLogin      *time.Time `json:"last_login,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func (a *Account) View() *AccountView {
	v := &AccountView{
		ID:        a.ID,
		Name:      a.Name,
		Email:     a.Email,
		Phone:     a.Phone,
		Gender:    a.Gender,
		Role:      a.Role,
		Status:    a.Status,
		LastLogin: a.LastLogin,
		CreatedAt: a.CreatedAt,
	}
	if a.DOB != nil {
		v.DOB = a.DOB.Format(DateLayout)
	}
	return v
}

// AdminView additionally exposes lockout state.
func (a *Account) AdminView() *AccountView {
	v := a.View()
	v.FailedAttempts = a.FailedAttempts
	v.LockUntil = a.LockUntil
	return v
}

const DateLayout = "2006-01-02"

type AccountFilter struct {
	Role   string
	Status string
	Search string
	Limit  int
	Offset int
}
