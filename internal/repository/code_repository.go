package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/two-step-auth/internal/model"
)

// CodeRepo persists one-time validation codes in the 'validation_codes'
// table.  Rows are append-only except for the is_used flag; history is kept.
type CodeRepo struct{ DB *sql.DB }

func NewCodeRepo(db *sql.DB) *CodeRepo { return &CodeRepo{DB: db} }

// Create inserts a new code row and returns its ID.
func (r *CodeRepo) Create(ctx context.Context, accountID uint64, code string, expiresAt time.Time) (uint64, error) {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO validation_codes (account_id, code, expires_at) VALUES (?,?,?)",
		accountID, code, expiresAt)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// LatestByAccount returns the most recently created code for the account.
// created_at has microsecond precision; id breaks the tie for codes created
// inside the same microsecond, so the ordering always reflects insertion
// order within one account.
func (r *CodeRepo) LatestByAccount(ctx context.Context, accountID uint64) (model.ValidationCode, error) {
	var c model.ValidationCode
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,account_id,code,is_used,expires_at,created_at FROM validation_codes WHERE account_id=? ORDER BY created_at DESC, id DESC LIMIT 1",
		accountID).
		Scan(&c.ID, &c.AccountID, &c.Code, &c.Used, &c.ExpiresAt, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ValidationCode{}, ErrNotFound
	}
	return c, err
}

// MarkUsed sets is_used on a code that is still unused.  The is_used=0
// guard makes the flip single-winner: of two concurrent validation attempts
// only one sees RowsAffected==1, the other gets ErrConflict.
func (r *CodeRepo) MarkUsed(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE validation_codes SET is_used=1 WHERE id=? AND is_used=0", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}
