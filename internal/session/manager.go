// Package session manages the server-side refresh-session records that let
// short-lived access tokens renew silently.  A session row is created when
// a one-time code is validated and lives for the configured number of days;
// every silent rotation rewrites the row's token.  A missing, locked or
// expired row ends the chain and forces a fresh login.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/iliyamo/two-step-auth/internal/config"
	"github.com/iliyamo/two-step-auth/internal/model"
	"github.com/iliyamo/two-step-auth/internal/repository"
	"github.com/iliyamo/two-step-auth/internal/token"
)

// ErrSessionInvalid is returned when a refresh is attempted against a
// session that is missing, locked or expired.  The caller must send the
// user back through login; the condition is never retried.
var ErrSessionInvalid = errors.New("session invalid")

// Store is the persistence surface the manager needs.  *repository.SessionRepo
// implements it; tests substitute an in-memory fake.
type Store interface {
	GetBySessionID(ctx context.Context, sessionID string) (model.RefreshSession, error)
	Create(ctx context.Context, s model.RefreshSession) error
	Renew(ctx context.Context, s model.RefreshSession) error
	UpdateToken(ctx context.Context, sessionID, previousToken, newToken string) error
	Lock(ctx context.Context, sessionID string) error
}

// Manager orchestrates refresh-session creation and rotation.
type Manager struct {
	store Store
	codec *token.Codec
	ttl   time.Duration
}

// NewManager builds a Manager.  The TTL comes from config, in days.
func NewManager(cfg config.Config, store Store, codec *token.Codec) *Manager {
	return &Manager{
		store: store,
		codec: codec,
		ttl:   time.Duration(cfg.SessionTTLDays) * 24 * time.Hour,
	}
}

// InitSession makes sure a live refresh session exists for the given
// session id.  If one already exists the call is a no-op, so re-validating
// a code within the same login is harmless.  If the id is unknown, or its
// record has expired or been locked, a pre_auth token bound to the id is
// issued and the record is written fresh.
func (m *Manager) InitSession(ctx context.Context, account model.Account, sessionID string) error {
	now := time.Now().UTC()

	existing, err := m.store.GetBySessionID(ctx, sessionID)
	if err == nil && existing.Live(now) {
		return nil
	}
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("lookup session %s: %w", sessionID, err)
	}

	signed, signErr := m.codec.Issue(account.Username, account.Roles(), m.codec.PreAuthScope(), sessionID)
	if signErr != nil {
		return signErr
	}
	record := model.RefreshSession{
		SessionID: sessionID,
		AccountID: account.ID,
		Token:     signed,
		ExpiresAt: now.Add(m.ttl),
	}

	if errors.Is(err, repository.ErrNotFound) {
		log.Printf("session: create refresh session for %s", account.Username)
		return m.store.Create(ctx, record)
	}
	// Dead record under this id: rebind it instead of inserting a duplicate.
	log.Printf("session: renew refresh session for %s", account.Username)
	return m.store.Renew(ctx, record)
}

// RefreshSession rotates an access token whose TTL has lapsed but whose
// session is still valid.  The input must carry a genuine signature; its
// expiry is irrelevant here.  On success the new token is persisted on the
// session row and returned.  The persistence step is optimistic: if another
// request rotated the same session in between, this call loses and reports
// ErrSessionInvalid rather than overwriting the winner.
func (m *Manager) RefreshSession(ctx context.Context, raw string) (string, error) {
	claims, err := m.codec.DecodeClaims(raw)
	if err != nil {
		return "", err
	}

	s, err := m.store.GetBySessionID(ctx, claims.SessionID)
	if errors.Is(err, repository.ErrNotFound) {
		return "", ErrSessionInvalid
	}
	if err != nil {
		return "", fmt.Errorf("lookup session %s: %w", claims.SessionID, err)
	}
	if !s.Live(time.Now().UTC()) {
		log.Printf("session: refuse refresh for %s (locked=%t)", claims.Subject, s.Locked)
		return "", ErrSessionInvalid
	}
	// Only the latest issued token may rotate.  A superseded token is
	// authentic but dead: honoring it would let a stolen old token keep
	// minting fresh ones forever.
	if s.Token != raw {
		log.Printf("session: stale token presented for %s", claims.Subject)
		return "", ErrSessionInvalid
	}

	rotated, err := m.codec.Rotate(raw)
	if err != nil {
		return "", err
	}
	if err := m.store.UpdateToken(ctx, s.SessionID, raw, rotated); err != nil {
		if errors.Is(err, repository.ErrConflict) || errors.Is(err, repository.ErrNotFound) {
			log.Printf("session: lost rotation race for %s", claims.Subject)
			return "", ErrSessionInvalid
		}
		return "", err
	}
	return rotated, nil
}

// Lock invalidates a session so no further rotations succeed on it.
// Logout uses this to kill the silent-refresh chain server-side.
func (m *Manager) Lock(ctx context.Context, sessionID string) error {
	return m.store.Lock(ctx, sessionID)
}

// Sweeper removes expired session rows.  *repository.SessionRepo implements it.
type Sweeper interface {
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// StartSweeper deletes expired session rows on the given interval until the
// context ends.  Housekeeping only; every read re-checks expiry, so a missed
// sweep never affects correctness.
func StartSweeper(ctx context.Context, store Sweeper, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := store.DeleteExpiredBefore(ctx, time.Now().UTC())
			if err != nil {
				log.Printf("session: sweep failed: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("session: sweep removed %d expired rows", n)
			}
		}
	}
}
