package repositories

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/authz"
	"storefront/internal/models"
)

var accountCols = []string{
	"id", "name", "email", "phone", "password_hash", "dob", "gender", "role", "status",
	"failed_attempts", "lock_until", "last_login", "created_at", "updated_at",
}

func newAccountMock(t *testing.T) (AccountRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewAccountRepository(db), mock
}

func TestAccountRepository_Create(t *testing.T) {
	repo, mock := newAccountMock(t)
	now := time.Now().UTC()
	a := &models.Account{
		ID: "a1", Name: "Alice", Email: "alice@x.com", Phone: "9876543210",
		PasswordHash: "hash", Role: models.RoleUser, Status: models.StatusActive, CreatedAt: now,
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO accounts")).
		WithArgs("a1", "Alice", "alice@x.com", "9876543210", "hash", nil, nil, "user", "active", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), a))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_CreateDuplicate(t *testing.T) {
	repo, mock := newAccountMock(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO accounts")).
		WillReturnError(&pq.Error{Code: pqUniqueViolation})

	err := repo.Create(context.Background(), &models.Account{ID: "a1"})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestAccountRepository_GetByEmail(t *testing.T) {
	repo, mock := newAccountMock(t)
	now := time.Now().UTC()
	lock := now.Add(time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta("FROM accounts WHERE email = $1")).
		WithArgs("alice@x.com").
		WillReturnRows(sqlmock.NewRows(accountCols).AddRow(
			"a1", "Alice", "alice@x.com", "9876543210", "hash", nil, "female", "user", "active",
			int64(3), lock, nil, now, now,
		))

	a, err := repo.GetByEmail(context.Background(), "alice@x.com")
	require.NoError(t, err)
	assert.Equal(t, "a1", a.ID)
	assert.Equal(t, "female", a.Gender)
	assert.Equal(t, 3, a.FailedAttempts)
	require.NotNil(t, a.LockUntil)
	assert.True(t, lock.Equal(*a.LockUntil))
	assert.Nil(t, a.LastLogin)
	assert.Nil(t, a.DOB)
}

func TestAccountRepository_GetNotFound(t *testing.T) {
	repo, mock := newAccountMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM accounts WHERE phone = $1")).
		WithArgs("000").
		WillReturnRows(sqlmock.NewRows(accountCols))

	_, err := repo.GetByPhone(context.Background(), "000")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAccountRepository_UpdateLoginState(t *testing.T) {
	repo, mock := newAccountMock(t)
	until := time.Now().Add(2 * time.Hour)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE accounts")).
		WithArgs(5, until, "a1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpdateLoginState(context.Background(), "a1", 5, &until))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE accounts")).
		WithArgs(0, nil, "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.UpdateLoginState(context.Background(), "missing", 0, nil), ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_ModifyLoginState(t *testing.T) {
	repo, mock := newAccountMock(t)
	until := time.Now().Add(2 * time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT failed_attempts, lock_until")).
		WithArgs("a1").
		WillReturnRows(sqlmock.NewRows([]string{"failed_attempts", "lock_until"}).AddRow(int64(4), nil))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE accounts")).
		WithArgs(5, until, "a1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	var seen authz.LoginState
	next, err := repo.ModifyLoginState(context.Background(), "a1", func(cur authz.LoginState) authz.LoginState {
		seen = cur
		return authz.LoginState{FailedAttempts: cur.FailedAttempts + 1, LockUntil: &until}
	})
	require.NoError(t, err)
	assert.Equal(t, 4, seen.FailedAttempts)
	assert.Nil(t, seen.LockUntil)
	assert.Equal(t, 5, next.FailedAttempts)
	assert.Equal(t, &until, next.LockUntil)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_ModifyLoginStateNotFound(t *testing.T) {
	repo, mock := newAccountMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT failed_attempts, lock_until")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"failed_attempts", "lock_until"}))
	mock.ExpectRollback()

	called := false
	_, err := repo.ModifyLoginState(context.Background(), "missing", func(cur authz.LoginState) authz.LoginState {
		called = true
		return cur
	})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, called)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_ListEscapesSearchWildcards(t *testing.T) {
	repo, mock := newAccountMock(t)
	like := `%50\%\_off%`

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM accounts WHERE (name ILIKE $1 OR email ILIKE $2 OR phone LIKE $3)")).
		WithArgs(like, like, like).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(0)))
	mock.ExpectQuery(regexp.QuoteMeta("FROM accounts WHERE (name ILIKE $1 OR email ILIKE $2 OR phone LIKE $3)")).
		WithArgs(like, like, like).
		WillReturnRows(sqlmock.NewRows(accountCols))

	list, total, err := repo.List(context.Background(), models.AccountFilter{Search: "50%_off"})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, list)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_ListWithFilters(t *testing.T) {
	repo, mock := newAccountMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM accounts WHERE role = $1 AND status = $2")).
		WithArgs("user", "blocked").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(1)))
	mock.ExpectQuery(`FROM accounts WHERE role = \$1 AND status = \$2 ORDER BY created_at DESC LIMIT 10 OFFSET 20`).
		WithArgs("user", "blocked").
		WillReturnRows(sqlmock.NewRows(accountCols).AddRow(
			"a1", "Alice", "alice@x.com", "9876543210", "hash", nil, nil, "user", "blocked",
			int64(0), nil, nil, now, now,
		))

	list, total, err := repo.List(context.Background(), models.AccountFilter{
		Role: "user", Status: "blocked", Limit: 10, Offset: 20,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, list, 1)
	assert.Equal(t, models.StatusBlocked, list[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}
