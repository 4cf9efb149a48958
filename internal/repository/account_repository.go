package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/two-step-auth/internal/model"
)

const accountColumns = "id,email,username,password_hash,role,is_blocked,is_verified,created_at,updated_at"

// AccountRepo persists accounts in the 'accounts' table.
type AccountRepo struct{ DB *sql.DB }

func NewAccountRepo(db *sql.DB) *AccountRepo { return &AccountRepo{DB: db} }

// Create inserts an account and returns its ID.  The password must already
// be hashed by the caller.
func (r *AccountRepo) Create(ctx context.Context, email, username, passwordHash, role string) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	username = strings.TrimSpace(username)
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO accounts (email, username, password_hash, role) VALUES (?,?,?,?)",
		email, username, passwordHash, role)
	if err != nil {
		// MySQL 1062 = duplicate entry; the index name tells us which field.
		if msg := strings.ToLower(err.Error()); strings.Contains(msg, "1062") {
			if strings.Contains(msg, "username") {
				return 0, ErrUsernameExists
			}
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// FindByUsername fetches an account by exact username.
func (r *AccountRepo) FindByUsername(ctx context.Context, username string) (model.Account, error) {
	return r.scanOne(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE username=? LIMIT 1",
		strings.TrimSpace(username))
}

// FindByUsernameOrEmail fetches an account whose username or email matches
// the given value.  Login accepts either form of identifier.
func (r *AccountRepo) FindByUsernameOrEmail(ctx context.Context, value string) (model.Account, error) {
	value = strings.TrimSpace(value)
	return r.scanOne(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE username=? OR email=? LIMIT 1",
		value, strings.ToLower(value))
}

// FindByEmail fetches an account by normalized email.
func (r *AccountRepo) FindByEmail(ctx context.Context, email string) (model.Account, error) {
	return r.scanOne(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE email=? LIMIT 1",
		strings.ToLower(strings.TrimSpace(email)))
}

// SetVerified flips the is_verified flag.  Called once, after the first
// successful code validation.
func (r *AccountRepo) SetVerified(ctx context.Context, id uint64, verified bool) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE accounts SET is_verified=? WHERE id=?", verified, id)
	return err
}

func (r *AccountRepo) scanOne(ctx context.Context, query string, args ...any) (model.Account, error) {
	var a model.Account
	err := r.DB.QueryRowContext(ctx, query, args...).
		Scan(&a.ID, &a.Email, &a.Username, &a.PasswordHash, &a.Role,
			&a.IsBlocked, &a.IsVerified, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Account{}, ErrNotFound
	}
	return a, err
}
