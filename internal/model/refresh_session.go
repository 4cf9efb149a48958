package model

import "time"

// RefreshSession models a row in the `refresh_sessions` table.  One row
// anchors a chain of rotated access tokens: the session id appears in every
// token of the chain, and Token always holds the latest issued one.
//
// Fields:
//  ID        – primary key identifier.
//  SessionID – opaque identifier, unique across all sessions.
//  AccountID – owner of the session.
//  Token     – latest signed token issued for this session.
//  Locked    – a locked session refuses rotation until the user logs in again.
//  ExpiresAt – creation time plus the configured session TTL (days).
//  CreatedAt – timestamp of creation.
type RefreshSession struct {
	ID        uint64    // refresh_sessions.id
	SessionID string    // refresh_sessions.session_id
	AccountID uint64    // refresh_sessions.account_id
	Token     string    // refresh_sessions.token
	Locked    bool      // refresh_sessions.is_locked
	ExpiresAt time.Time // refresh_sessions.expires_at
	CreatedAt time.Time // refresh_sessions.created_at
}

// Live reports whether the session can still rotate tokens at the given
// instant: not locked and not past expiry.
func (s RefreshSession) Live(now time.Time) bool {
	return !s.Locked && s.ExpiresAt.After(now)
}
