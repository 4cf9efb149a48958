package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/two-step-auth/internal/model"
)

// SessionRepo persists refresh sessions in the 'refresh_sessions' table,
// keyed by the opaque session_id carried in tokens.  The unique index on
// session_id backs up the probe-retry uniqueness check at creation time.
type SessionRepo struct{ DB *sql.DB }

func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{DB: db} }

// Create inserts a refresh session row.
func (r *SessionRepo) Create(ctx context.Context, s model.RefreshSession) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO refresh_sessions (session_id, account_id, token, is_locked, expires_at) VALUES (?,?,?,?,?)",
		s.SessionID, s.AccountID, s.Token, s.Locked, s.ExpiresAt)
	return err
}

// GetBySessionID fetches a session by its opaque identifier.
func (r *SessionRepo) GetBySessionID(ctx context.Context, sessionID string) (model.RefreshSession, error) {
	var s model.RefreshSession
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,session_id,account_id,token,is_locked,expires_at,created_at FROM refresh_sessions WHERE session_id=? LIMIT 1",
		sessionID).
		Scan(&s.ID, &s.SessionID, &s.AccountID, &s.Token, &s.Locked, &s.ExpiresAt, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.RefreshSession{}, ErrNotFound
	}
	return s, err
}

// ExistsBySessionID reports whether any session row carries the identifier.
// Used by the session-id uniqueness probe.
func (r *SessionRepo) ExistsBySessionID(ctx context.Context, sessionID string) (bool, error) {
	var one int
	err := r.DB.QueryRowContext(ctx,
		"SELECT 1 FROM refresh_sessions WHERE session_id=? LIMIT 1", sessionID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Renew rebinds an existing session row to a new owner, token and expiry,
// clearing the locked flag.  Used when a login re-enters a session id whose
// previous record is expired or locked; the unique index on session_id
// rules out inserting a second row.
func (r *SessionRepo) Renew(ctx context.Context, s model.RefreshSession) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_sessions SET account_id=?, token=?, is_locked=0, expires_at=? WHERE session_id=?",
		s.AccountID, s.Token, s.ExpiresAt, s.SessionID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateToken replaces the stored token for a session, but only if the row
// still holds the token the caller read.  A zero row count means a
// concurrent rotation won; the caller gets ErrConflict instead of silently
// losing that update.
func (r *SessionRepo) UpdateToken(ctx context.Context, sessionID, previousToken, newToken string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_sessions SET token=? WHERE session_id=? AND token=?",
		newToken, sessionID, previousToken)
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

// Lock marks a session locked.  Locked sessions refuse rotation until the
// account logs in again and a fresh session is created.
func (r *SessionRepo) Lock(ctx context.Context, sessionID string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_sessions SET is_locked=1 WHERE session_id=?", sessionID)
	return err
}

// DeleteExpiredBefore removes sessions whose expiry is older than the given
// cutoff.  Housekeeping only; correctness never depends on it because every
// read re-checks expiry.
func (r *SessionRepo) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM refresh_sessions WHERE expires_at < ?", cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
