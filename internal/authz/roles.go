package authz

import (
	"time"

	"storefront/internal/models"
)

// LockoutPolicy describes how failed password logins are counted for a role.
type LockoutPolicy struct {
	Enforced     bool
	MaxFailures  int
	LockDuration time.Duration
}

// LoginState is the persisted failure bookkeeping of one account.
type LoginState struct {
	FailedAttempts int
	LockUntil      *time.Time
}

// Policies is the role -> policy table. Roles missing from the table get the
// user policy, so an unknown role is never exempt.
type Policies struct {
	byRole   map[string]LockoutPolicy
	fallback LockoutPolicy
}

func NewPolicies(maxFailures int, lockDuration time.Duration) *Policies {
	userPolicy := LockoutPolicy{Enforced: true, MaxFailures: maxFailures, LockDuration: lockDuration}
	return &Policies{
		byRole: map[string]LockoutPolicy{
			models.RoleUser:  userPolicy,
			models.RoleAdmin: {Enforced: false},
		},
		fallback: userPolicy,
	}
}

func (p *Policies) For(role string) LockoutPolicy {
	if pol, ok := p.byRole[role]; ok {
		return pol
	}
	return p.fallback
}

// LockedFor returns the remaining lock time, zero when not locked.
func (p LockoutPolicy) LockedFor(st LoginState, now time.Time) time.Duration {
	if !p.Enforced || st.LockUntil == nil {
		return 0
	}
	if d := st.LockUntil.Sub(now); d > 0 {
		return d
	}
	return 0
}

// RecordFailure returns the state after one more failed attempt and whether
// this attempt is the one that locked the account.
func (p LockoutPolicy) RecordFailure(st LoginState, now time.Time) (LoginState, bool) {
	if !p.Enforced {
		return st, false
	}
	next := LoginState{FailedAttempts: st.FailedAttempts + 1, LockUntil: st.LockUntil}
	// истёкшая блокировка: счётчик начинается заново
	if st.LockUntil != nil && !st.LockUntil.After(now) {
		next = LoginState{FailedAttempts: 1}
	}
	if next.FailedAttempts >= p.MaxFailures && next.LockUntil == nil {
		until := now.Add(p.LockDuration)
		next.LockUntil = &until
		return next, true
	}
	return next, false
}

// Reset is the state after a successful login.
func (p LockoutPolicy) Reset() LoginState {
	return LoginState{}
}

func IsAdmin(role string) bool {
	return role == models.RoleAdmin
}
