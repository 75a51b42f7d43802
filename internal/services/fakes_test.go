package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"storefront/internal/authz"
	"storefront/internal/models"
	"storefront/internal/repositories"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeAccountRepo struct {
	mu       sync.Mutex
	byID     map[string]*models.Account
	createFn func(a *models.Account) error
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{byID: map[string]*models.Account{}}
}

func (r *fakeAccountRepo) copyOf(a *models.Account) *models.Account {
	c := *a
	return &c
}

func (r *fakeAccountRepo) Create(_ context.Context, a *models.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createFn != nil {
		if err := r.createFn(a); err != nil {
			return err
		}
	}
	for _, x := range r.byID {
		if x.Email == a.Email || x.Phone == a.Phone {
			return repositories.ErrDuplicate
		}
	}
	r.byID[a.ID] = r.copyOf(a)
	return nil
}

func (r *fakeAccountRepo) find(match func(*models.Account) bool) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.byID {
		if match(a) {
			return r.copyOf(a), nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *fakeAccountRepo) GetByID(_ context.Context, id string) (*models.Account, error) {
	return r.find(func(a *models.Account) bool { return a.ID == id })
}

func (r *fakeAccountRepo) GetByEmail(_ context.Context, email string) (*models.Account, error) {
	return r.find(func(a *models.Account) bool { return a.Email == email })
}

func (r *fakeAccountRepo) GetByPhone(_ context.Context, phone string) (*models.Account, error) {
	return r.find(func(a *models.Account) bool { return a.Phone == phone })
}

func (r *fakeAccountRepo) ExistsByEmailOrPhone(_ context.Context, email, phone string) (bool, error) {
	_, err := r.find(func(a *models.Account) bool { return a.Email == email || a.Phone == phone })
	return err == nil, nil
}

func (r *fakeAccountRepo) List(_ context.Context, f models.AccountFilter) ([]*models.Account, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Account
	for _, a := range r.byID {
		if f.Role != "" && a.Role != f.Role {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		out = append(out, r.copyOf(a))
	}
	total := len(out)
	if f.Offset >= len(out) {
		return nil, total, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, total, nil
}

func (r *fakeAccountRepo) update(id string, fn func(a *models.Account)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return repositories.ErrNotFound
	}
	fn(a)
	return nil
}

func (r *fakeAccountRepo) UpdateLoginState(_ context.Context, id string, failed int, lockUntil *time.Time) error {
	return r.update(id, func(a *models.Account) { a.FailedAttempts, a.LockUntil = failed, lockUntil })
}

func (r *fakeAccountRepo) ModifyLoginState(_ context.Context, id string, fn repositories.LoginStateFunc) (authz.LoginState, error) {
	var next authz.LoginState
	err := r.update(id, func(a *models.Account) {
		next = fn(authz.LoginState{FailedAttempts: a.FailedAttempts, LockUntil: a.LockUntil})
		a.FailedAttempts, a.LockUntil = next.FailedAttempts, next.LockUntil
	})
	return next, err
}

func (r *fakeAccountRepo) UpdateLastLogin(_ context.Context, id string, at time.Time) error {
	return r.update(id, func(a *models.Account) { a.LastLogin = &at })
}

func (r *fakeAccountRepo) UpdatePassword(_ context.Context, id, hash string) error {
	return r.update(id, func(a *models.Account) { a.PasswordHash = hash })
}

func (r *fakeAccountRepo) UpdateStatus(_ context.Context, id, status string) error {
	return r.update(id, func(a *models.Account) { a.Status = status })
}

// stored returns the persisted copy.
func (r *fakeAccountRepo) stored(t *testing.T, id string) *models.Account {
	t.Helper()
	a, err := r.GetByID(context.Background(), id)
	require.NoError(t, err)
	return a
}

type fakeCodeRepo struct {
	mu    sync.Mutex
	codes map[string]*models.OneTimeCode
}

func newFakeCodeRepo() *fakeCodeRepo {
	return &fakeCodeRepo{codes: map[string]*models.OneTimeCode{}}
}

func (r *fakeCodeRepo) Replace(_ context.Context, c *models.OneTimeCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, x := range r.codes {
		if x.Identifier == c.Identifier && x.Purpose == c.Purpose {
			delete(r.codes, id)
		}
	}
	cp := *c
	r.codes[c.ID] = &cp
	return nil
}

func (r *fakeCodeRepo) FindActive(_ context.Context, identifier, purpose string, now time.Time) (*models.OneTimeCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, x := range r.codes {
		if x.Identifier == identifier && x.Purpose == purpose && !x.Used && now.Before(x.ExpiresAt) {
			cp := *x
			return &cp, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *fakeCodeRepo) IncrementAttempts(_ context.Context, id string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	x, ok := r.codes[id]
	if !ok || x.Used {
		return 0, repositories.ErrNotFound
	}
	x.Attempts++
	return x.Attempts, nil
}

func (r *fakeCodeRepo) MarkUsed(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	x, ok := r.codes[id]
	if !ok || x.Used {
		return repositories.ErrNotFound
	}
	x.Used = true
	return nil
}

func (r *fakeCodeRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.codes[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(r.codes, id)
	return nil
}

func (r *fakeCodeRepo) PurgeExpired(_ context.Context, now time.Time, retention time.Duration) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, x := range r.codes {
		if !now.Before(x.ExpiresAt) || !now.Before(x.CreatedAt.Add(retention)) {
			delete(r.codes, id)
			n++
		}
	}
	return n, nil
}

func (r *fakeCodeRepo) get(identifier, purpose string) *models.OneTimeCode {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, x := range r.codes {
		if x.Identifier == identifier && x.Purpose == purpose {
			cp := *x
			return &cp
		}
	}
	return nil
}

type sentOTP struct {
	Identifier Identifier
	Purpose    string
	Code       string
}

type fakeNotifier struct {
	mu      sync.Mutex
	otps    []sentOTP
	welcome []string
	locked  []string
}

func (n *fakeNotifier) OTPCode(id Identifier, purpose, code string, _ time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.otps = append(n.otps, sentOTP{Identifier: id, Purpose: purpose, Code: code})
}

func (n *fakeNotifier) Welcome(a *models.Account) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.welcome = append(n.welcome, a.ID)
}

func (n *fakeNotifier) AccountLocked(a *models.Account, _ time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.locked = append(n.locked, a.ID)
}

// env wires the services over in-memory repositories with one clock.
type env struct {
	clock    *testClock
	accounts *fakeAccountRepo
	codes    *fakeCodeRepo
	notifier *fakeNotifier
	creds    *credentialService
	otp      *otpService
	sessions *SessionService
	login    *LoginService
	nextCode string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	log := zap.NewNop().Sugar()
	e := &env{
		clock:    newTestClock(),
		accounts: newFakeAccountRepo(),
		codes:    newFakeCodeRepo(),
		notifier: &fakeNotifier{},
		nextCode: "123456",
	}
	policies := authz.NewPolicies(5, 2*time.Hour)

	e.creds = newCredentialService(e.accounts, policies, bcrypt.MinCost, log)
	e.creds.now = e.clock.Now

	e.otp = NewOTPService(e.codes, OTPOptions{TTL: 5 * time.Minute, MaxAttempts: 3, Retention: 10 * time.Minute}, log).(*otpService)
	e.otp.now = e.clock.Now
	e.otp.newCode = func() (string, error) { return e.nextCode, nil }

	e.sessions = NewSessionService(SessionOptions{
		Secret:   []byte("test-secret-0123456789"),
		Issuer:   "storefront-test",
		UserTTL:  7 * 24 * time.Hour,
		AdminTTL: 24 * time.Hour,
	})
	e.sessions.now = e.clock.Now

	e.login = NewLoginService(e.creds, e.otp, nil, e.sessions, policies, e.notifier, log)
	e.login.now = e.clock.Now
	return e
}

func (e *env) register(t *testing.T, name, email, phone, password, role string) *models.Account {
	t.Helper()
	a, err := e.creds.CreateAccount(context.Background(), NewAccount{
		Name: name, Email: email, Phone: phone, Password: password, Role: role,
	})
	require.NoError(t, err)
	return a
}
