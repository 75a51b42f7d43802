package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"storefront/internal/middleware"
	"storefront/internal/models"
	"storefront/internal/repositories"
	"storefront/internal/services"
)

const (
	aliceID = "6f1c2a0e-8a7b-4c43-9a51-0b8f5f6d2a11"
	rootID  = "0d9a3c56-2b3e-4f8e-8f7a-5c1f2e9b7d22"
)

type stubLogins struct {
	err        error
	res        *services.LoginResult
	gotAccount services.NewAccount
	gotArgs    []string
}

func (s *stubLogins) Register(_ context.Context, in services.NewAccount) (*services.LoginResult, error) {
	s.gotAccount = in
	return s.res, s.err
}

func (s *stubLogins) Login(_ context.Context, identifier, password string) (*services.LoginResult, error) {
	s.gotArgs = []string{identifier, password}
	return s.res, s.err
}

func (s *stubLogins) AdminLogin(_ context.Context, email, password string) (*services.LoginResult, error) {
	s.gotArgs = []string{email, password}
	return s.res, s.err
}

func (s *stubLogins) RequestOTP(_ context.Context, identifier, purpose string) error {
	s.gotArgs = []string{identifier, purpose}
	return s.err
}

func (s *stubLogins) LoginWithOTP(_ context.Context, identifier, code string) (*services.LoginResult, error) {
	s.gotArgs = []string{identifier, code}
	return s.res, s.err
}

type stubPasswords struct {
	err     error
	gotArgs []string
}

func (s *stubPasswords) ResetWithOTP(_ context.Context, identifier, code, newPassword string) error {
	s.gotArgs = []string{identifier, code, newPassword}
	return s.err
}

func (s *stubPasswords) ChangePassword(_ context.Context, accountID, current, next string) error {
	s.gotArgs = []string{accountID, current, next}
	return s.err
}

type stubAdmin struct {
	accounts map[string]*models.Account
	filter   models.AccountFilter
}

func (s *stubAdmin) List(_ context.Context, f models.AccountFilter) ([]*models.Account, int, error) {
	s.filter = f
	var out []*models.Account
	for _, a := range s.accounts {
		out = append(out, a)
	}
	return out, len(out), nil
}

func (s *stubAdmin) Get(_ context.Context, id string) (*models.Account, error) {
	if a, ok := s.accounts[id]; ok {
		return a, nil
	}
	return nil, services.ErrNotFound
}

func (s *stubAdmin) GetByID(ctx context.Context, id string) (*models.Account, error) {
	return s.Get(ctx, id)
}

func (s *stubAdmin) Block(ctx context.Context, actorID, id string) (*models.Account, error) {
	if actorID == id {
		return nil, services.ErrValidation
	}
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	a.Status = models.StatusBlocked
	return a, nil
}

func (s *stubAdmin) Unblock(ctx context.Context, id string) (*models.Account, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	a.Status = models.StatusActive
	return a, nil
}

func (s *stubAdmin) Unlock(ctx context.Context, id string) (*models.Account, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	a.FailedAttempts, a.LockUntil = 0, nil
	return a, nil
}

type testServer struct {
	router    *gin.Engine
	logins    *stubLogins
	passwords *stubPasswords
	admin     *stubAdmin
	sessions  *services.SessionService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := zap.NewNop().Sugar()

	alice := &models.Account{ID: aliceID, Name: "Alice", Email: "alice@x.com", Phone: "9876543210", Role: models.RoleUser, Status: models.StatusActive}
	root := &models.Account{ID: rootID, Name: "Root", Email: "root@x.com", Phone: "1000000000", Role: models.RoleAdmin, Status: models.StatusActive}

	ts := &testServer{
		logins:    &stubLogins{},
		passwords: &stubPasswords{},
		admin:     &stubAdmin{accounts: map[string]*models.Account{aliceID: alice, rootID: root}},
		sessions:  services.NewSessionService(services.SessionOptions{Secret: []byte("handlers-secret-0123"), UserTTL: time.Hour}),
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	carts := services.NewCartService(repositories.NewCartRepository(rdb, time.Hour))

	authH := NewAuthHandler(ts.logins, ts.passwords, log)
	adminH := NewAdminHandler(ts.admin, log)
	cartH := NewCartHandler(carts, log)

	r := gin.New()
	auth := middleware.Authenticate(ts.sessions, ts.admin, log)
	r.POST("/api/auth/register", authH.Register)
	r.POST("/api/auth/login", authH.Login)
	r.POST("/api/admin/login", authH.AdminLogin)
	r.POST("/api/auth/otp/request", authH.RequestOTP)
	r.POST("/api/auth/otp/login", authH.LoginWithOTP)
	r.POST("/api/auth/password/reset", authH.ResetPassword)
	r.GET("/api/auth/me", auth, authH.Me)
	r.PUT("/api/auth/password", auth, authH.ChangePassword)
	admin := r.Group("/api/admin", auth, middleware.RequireRoles(models.RoleAdmin))
	admin.GET("/accounts", adminH.List)
	admin.GET("/accounts/:id", adminH.Get)
	admin.POST("/accounts/:id/block", adminH.Block)
	admin.POST("/accounts/:id/unlock", adminH.Unlock)
	r.GET("/api/cart", auth, cartH.Get)
	r.POST("/api/cart/items", auth, cartH.AddItem)
	r.DELETE("/api/cart/items/:productId", auth, cartH.RemoveItem)
	ts.router = r
	return ts
}

func (ts *testServer) token(t *testing.T, id, role string) string {
	t.Helper()
	tok, _, err := ts.sessions.Issue(id, role)
	require.NoError(t, err)
	return tok
}

func (ts *testServer) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)

	var resp Response
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func loginResult() *services.LoginResult {
	return &services.LoginResult{
		Account:   &models.Account{ID: aliceID, Email: "alice@x.com", PasswordHash: "$2a$secret", Role: models.RoleUser, Status: models.StatusActive},
		Token:     "signed.jwt.token",
		ExpiresAt: time.Date(2024, 3, 8, 12, 0, 0, 0, time.UTC),
	}
}

func TestRegister(t *testing.T) {
	ts := newTestServer(t)
	ts.logins.res = loginResult()

	w, resp := ts.do(t, http.MethodPost, "/api/auth/register", "", gin.H{
		"name": "Alice", "email": "alice@x.com", "password": "secret1",
		"phone": "+7 (701) 234-56-78", "dob": "1990-05-17", "gender": "female",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, "signed.jwt.token", resp.Token)
	require.NotNil(t, resp.User)
	assert.Equal(t, aliceID, resp.User.ID)
	assert.NotContains(t, w.Body.String(), "$2a$secret")
	require.NotNil(t, ts.logins.gotAccount.DOB)
	assert.Equal(t, "1990-05-17", ts.logins.gotAccount.DOB.Format(models.DateLayout))
}

func TestRegisterValidation(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name    string
		body    gin.H
		message string
	}{
		{"missing email", gin.H{"name": "A", "password": "secret1", "phone": "9876543210"}, "email is required"},
		{"bad phone", gin.H{"name": "A", "email": "a@x.com", "password": "secret1", "phone": "12ab"}, "phone must be a valid phone number"},
		{"short password", gin.H{"name": "A", "email": "a@x.com", "password": "123", "phone": "9876543210"}, "password must be at least 6"},
		{"bad dob", gin.H{"name": "A", "email": "a@x.com", "password": "secret1", "phone": "9876543210", "dob": "17.05.1990"}, "dob must be a date"},
		{"bad gender", gin.H{"name": "A", "email": "a@x.com", "password": "secret1", "phone": "9876543210", "gender": "x"}, "gender must be one of"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := ts.do(t, http.MethodPost, "/api/auth/register", "", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "error", resp.Status)
			assert.Contains(t, resp.Message, tt.message)
		})
	}
}

func TestLoginErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"invalid credentials", services.ErrInvalidCredentials, http.StatusUnauthorized},
		{"blocked", services.ErrAccountBlocked, http.StatusForbidden},
		{"locked", &services.LockedError{Remaining: 2 * time.Hour}, http.StatusForbidden},
		{"conflict", services.ErrConflict, http.StatusConflict},
		{"validation", services.ErrValidation, http.StatusBadRequest},
		{"mismatch", services.ErrCodeMismatch, http.StatusBadRequest},
		{"exhausted", services.ErrAttemptsExceeded, http.StatusBadRequest},
		{"no code", services.ErrCodeNotFound, http.StatusBadRequest},
		{"forbidden", services.ErrForbidden, http.StatusForbidden},
		{"internal", assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.logins.err = tt.err
			w, resp := ts.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"identifier": "alice@x.com", "password": "x"})
			assert.Equal(t, tt.code, w.Code)
			assert.Equal(t, "error", resp.Status)
			assert.NotContains(t, resp.Message, assert.AnError.Error())
		})
	}
}

func TestInternalErrorLogsOperation(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.ErrorLevel)
	h := NewAuthHandler(&stubLogins{err: assert.AnError}, &stubPasswords{}, zap.New(core).Sugar())

	r := gin.New()
	r.POST("/api/auth/login", h.Login)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewBufferString(`{"identifier":"alice@x.com","password":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "[auth][login] internal error: "+assert.AnError.Error(), entries[0].Message)
}

func TestLockedMessageCarriesRemainingTime(t *testing.T) {
	ts := newTestServer(t)
	ts.logins.err = &services.LockedError{Remaining: 2 * time.Hour}
	w, resp := ts.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"identifier": "alice@x.com", "password": "x"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, resp.Message, "2 hours")
}

func TestOTPEndpoints(t *testing.T) {
	ts := newTestServer(t)

	w, resp := ts.do(t, http.MethodPost, "/api/auth/otp/request", "", gin.H{"identifier": "9876543210", "purpose": "login"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, []string{"9876543210", "login"}, ts.logins.gotArgs)

	w, _ = ts.do(t, http.MethodPost, "/api/auth/otp/request", "", gin.H{"identifier": "9876543210", "purpose": "signup"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	ts.logins.err = &services.ThrottledError{RetryAfter: 1500 * time.Millisecond}
	w, _ = ts.do(t, http.MethodPost, "/api/auth/otp/request", "", gin.H{"identifier": "9876543210", "purpose": "login"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "2", w.Header().Get("Retry-After"))

	ts.logins.err = nil
	ts.logins.res = loginResult()
	w, resp = ts.do(t, http.MethodPost, "/api/auth/otp/login", "", gin.H{"identifier": "9876543210", "code": "123456"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "signed.jwt.token", resp.Token)

	w, _ = ts.do(t, http.MethodPost, "/api/auth/otp/login", "", gin.H{"identifier": "9876543210", "code": "12ab56"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResetAndChangePassword(t *testing.T) {
	ts := newTestServer(t)

	w, _ := ts.do(t, http.MethodPost, "/api/auth/password/reset", "", gin.H{"identifier": "alice@x.com", "code": "123456", "new_password": "new-secret"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"alice@x.com", "123456", "new-secret"}, ts.passwords.gotArgs)

	w, _ = ts.do(t, http.MethodPut, "/api/auth/password", "", gin.H{"current_password": "a", "new_password": "new-secret"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = ts.do(t, http.MethodPut, "/api/auth/password", ts.token(t, aliceID, models.RoleUser), gin.H{"current_password": "old", "new_password": "new-secret"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{aliceID, "old", "new-secret"}, ts.passwords.gotArgs)

	ts.passwords.err = services.ErrInvalidCredentials
	w, _ = ts.do(t, http.MethodPut, "/api/auth/password", ts.token(t, aliceID, models.RoleUser), gin.H{"current_password": "bad", "new_password": "new-secret"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMe(t *testing.T) {
	ts := newTestServer(t)

	w, resp := ts.do(t, http.MethodGet, "/api/auth/me", ts.token(t, aliceID, models.RoleUser), nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, resp.User)
	assert.Equal(t, "alice@x.com", resp.User.Email)

	w, _ = ts.do(t, http.MethodGet, "/api/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminRoutes(t *testing.T) {
	ts := newTestServer(t)
	rootTok := ts.token(t, rootID, models.RoleAdmin)
	aliceTok := ts.token(t, aliceID, models.RoleUser)

	w, _ := ts.do(t, http.MethodGet, "/api/admin/accounts", aliceTok, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = ts.do(t, http.MethodGet, "/api/admin/accounts?role=user&limit=500&search=%20ali%20", rootTok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 100, ts.admin.filter.Limit)
	assert.Equal(t, "ali", ts.admin.filter.Search)
	assert.Equal(t, models.RoleUser, ts.admin.filter.Role)

	w, _ = ts.do(t, http.MethodGet, "/api/admin/accounts/not-a-uuid", rootTok, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = ts.do(t, http.MethodPost, "/api/admin/accounts/"+rootID+"/block", rootTok, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, resp := ts.do(t, http.MethodPost, "/api/admin/accounts/"+aliceID+"/block", rootTok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.StatusBlocked, resp.User.Status)

	// заблокированный пользователь теряет доступ со старым токеном
	w, _ = ts.do(t, http.MethodGet, "/api/auth/me", aliceTok, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCartRoutes(t *testing.T) {
	ts := newTestServer(t)
	tok := ts.token(t, aliceID, models.RoleUser)
	rootTok := ts.token(t, rootID, models.RoleAdmin)

	w, _ := ts.do(t, http.MethodPost, "/api/cart/items", tok, gin.H{"product_id": "sku-1", "quantity": 2})
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = ts.do(t, http.MethodPost, "/api/cart/items", tok, gin.H{"product_id": "sku-1", "quantity": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	type cartBody struct {
		Data models.Cart `json:"data"`
	}
	var mine, other cartBody
	w, _ = ts.do(t, http.MethodGet, "/api/cart", tok, nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &mine))
	assert.Equal(t, 2, mine.Data.Total)
	assert.Equal(t, aliceID, mine.Data.AccountID)

	w, _ = ts.do(t, http.MethodGet, "/api/cart", rootTok, nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &other))
	assert.Zero(t, other.Data.Total)

	w, _ = ts.do(t, http.MethodDelete, "/api/cart/items/sku-9", tok, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
