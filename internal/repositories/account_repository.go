package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"storefront/internal/authz"
	"storefront/internal/models"
)

type AccountRepository interface {
	Create(ctx context.Context, a *models.Account) error
	GetByID(ctx context.Context, id string) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	GetByPhone(ctx context.Context, phone string) (*models.Account, error)
	ExistsByEmailOrPhone(ctx context.Context, email, phone string) (bool, error)
	List(ctx context.Context, f models.AccountFilter) ([]*models.Account, int, error)

	UpdateLoginState(ctx context.Context, id string, failedAttempts int, lockUntil *time.Time) error
	ModifyLoginState(ctx context.Context, id string, fn LoginStateFunc) (authz.LoginState, error)
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	UpdatePassword(ctx context.Context, id, hash string) error
	UpdateStatus(ctx context.Context, id, status string) error
}

// LoginStateFunc derives the next failure bookkeeping from the stored one.
// It may be called more than once for a single ModifyLoginState.
type LoginStateFunc func(cur authz.LoginState) authz.LoginState

type accountRepository struct {
	DB *sql.DB
}

func NewAccountRepository(db *sql.DB) AccountRepository {
	return &accountRepository{DB: db}
}

const accountColumns = `id, name, email, phone, password_hash, dob, gender, role, status,
	failed_attempts, lock_until, last_login, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	a := &models.Account{}
	var (
		dob       sql.NullTime
		gender    sql.NullString
		lockUntil sql.NullTime
		lastLogin sql.NullTime
	)
	if err := row.Scan(
		&a.ID, &a.Name, &a.Email, &a.Phone, &a.PasswordHash, &dob, &gender, &a.Role, &a.Status,
		&a.FailedAttempts, &lockUntil, &lastLogin, &a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if dob.Valid {
		t := dob.Time
		a.DOB = &t
	}
	if gender.Valid {
		a.Gender = gender.String
	}
	if lockUntil.Valid {
		t := lockUntil.Time
		a.LockUntil = &t
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		a.LastLogin = &t
	}
	return a, nil
}

func (r *accountRepository) Create(ctx context.Context, a *models.Account) error {
	const q = `
		INSERT INTO accounts (
			id, name, email, phone, password_hash, dob, gender, role, status,
			failed_attempts, lock_until, last_login, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,0,NULL,NULL,$10,$10)
	`
	_, err := r.DB.ExecContext(ctx, q,
		a.ID, a.Name, a.Email, a.Phone, a.PasswordHash,
		a.DOB, nullString(a.Gender), a.Role, a.Status, a.CreatedAt,
	)
	if isDuplicate(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("account create: %w", err)
	}
	return nil
}

func (r *accountRepository) getOne(ctx context.Context, where string, arg any) (*models.Account, error) {
	q := `SELECT ` + accountColumns + ` FROM accounts WHERE ` + where
	a, err := scanAccount(r.DB.QueryRowContext(ctx, q, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("account get: %w", err)
	}
	return a, nil
}

func (r *accountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	return r.getOne(ctx, "id = $1", id)
}

func (r *accountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	return r.getOne(ctx, "email = $1", email)
}

func (r *accountRepository) GetByPhone(ctx context.Context, phone string) (*models.Account, error) {
	return r.getOne(ctx, "phone = $1", phone)
}

func (r *accountRepository) ExistsByEmailOrPhone(ctx context.Context, email, phone string) (bool, error) {
	var exists bool
	err := r.DB.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM accounts WHERE email = $1 OR phone = $2)`, email, phone,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("account exists: %w", err)
	}
	return exists, nil
}

// backslash is the default LIKE escape character in Postgres
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func accountFilter(b sq.SelectBuilder, f models.AccountFilter) sq.SelectBuilder {
	if f.Role != "" {
		b = b.Where(sq.Eq{"role": f.Role})
	}
	if f.Status != "" {
		b = b.Where(sq.Eq{"status": f.Status})
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		like := "%" + likeEscaper.Replace(s) + "%"
		b = b.Where(sq.Or{
			sq.ILike{"name": like},
			sq.ILike{"email": like},
			sq.Like{"phone": like},
		})
	}
	return b
}

func (r *accountRepository) List(ctx context.Context, f models.AccountFilter) ([]*models.Account, int, error) {
	psql := sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

	countSQL, countArgs, err := accountFilter(psql.Select("COUNT(*)").From("accounts"), f).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("account list: build count: %w", err)
	}
	var total int
	if err := r.DB.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("account list: count: %w", err)
	}

	sel := accountFilter(psql.Select(accountColumns).From("accounts"), f).OrderBy("created_at DESC")
	if f.Limit > 0 {
		sel = sel.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		sel = sel.Offset(uint64(f.Offset))
	}
	q, args, err := sel.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("account list: build: %w", err)
	}
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("account list: %w", err)
	}
	defer rows.Close()

	var res []*models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("account list: scan: %w", err)
		}
		res = append(res, a)
	}
	return res, total, rows.Err()
}

func (r *accountRepository) exec(ctx context.Context, op, q string, args ...any) error {
	res, err := r.DB.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("account %s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("account %s: %w", op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *accountRepository) UpdateLoginState(ctx context.Context, id string, failedAttempts int, lockUntil *time.Time) error {
	return r.exec(ctx, "update login state", `
		UPDATE accounts
		SET failed_attempts=$1, lock_until=$2, updated_at=NOW()
		WHERE id=$3
	`, failedAttempts, lockUntil, id)
}

// ModifyLoginState reads and rewrites the counters under a row lock, so
// concurrent failures are never lost.
func (r *accountRepository) ModifyLoginState(ctx context.Context, id string, fn LoginStateFunc) (authz.LoginState, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return authz.LoginState{}, fmt.Errorf("account modify login state: %w", err)
	}
	defer tx.Rollback()

	var (
		cur       authz.LoginState
		lockUntil sql.NullTime
	)
	err = tx.QueryRowContext(ctx, `
		SELECT failed_attempts, lock_until
		FROM accounts
		WHERE id=$1
		FOR UPDATE
	`, id).Scan(&cur.FailedAttempts, &lockUntil)
	if errors.Is(err, sql.ErrNoRows) {
		return authz.LoginState{}, ErrNotFound
	}
	if err != nil {
		return authz.LoginState{}, fmt.Errorf("account modify login state: %w", err)
	}
	if lockUntil.Valid {
		t := lockUntil.Time
		cur.LockUntil = &t
	}

	next := fn(cur)
	if _, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET failed_attempts=$1, lock_until=$2, updated_at=NOW()
		WHERE id=$3
	`, next.FailedAttempts, next.LockUntil, id); err != nil {
		return authz.LoginState{}, fmt.Errorf("account modify login state: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return authz.LoginState{}, fmt.Errorf("account modify login state: %w", err)
	}
	return next, nil
}

func (r *accountRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	return r.exec(ctx, "update last login",
		`UPDATE accounts SET last_login=$1, updated_at=NOW() WHERE id=$2`, at, id)
}

func (r *accountRepository) UpdatePassword(ctx context.Context, id, hash string) error {
	return r.exec(ctx, "update password",
		`UPDATE accounts SET password_hash=$1, updated_at=NOW() WHERE id=$2`, hash, id)
}

func (r *accountRepository) UpdateStatus(ctx context.Context, id, status string) error {
	return r.exec(ctx, "update status",
		`UPDATE accounts SET status=$1, updated_at=NOW() WHERE id=$2`, status, id)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
