package models

import "time"

const (
	PurposeLogin         = "login"
	PurposeResetPassword = "reset_password"
)

// OneTimeCode: одна активная запись на пару (identifier, purpose).
// Identifier: email или телефон, связь с Account только по значению.
type OneTimeCode struct {
	ID         string    `json:"id" bson:"_id"`
	Identifier string    `json:"identifier" bson:"identifier"`
	Purpose    string    `json:"purpose" bson:"purpose"`
	Code       string    `json:"-" bson:"code"`
	ExpiresAt  time.Time `json:"expires_at" bson:"expires_at"`
	Used       bool      `json:"used" bson:"used"`
	Attempts   int       `json:"attempts" bson:"attempts"`
	CreatedAt  time.Time `json:"created_at" bson:"created_at"`
}

func (c *OneTimeCode) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
