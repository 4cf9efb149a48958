// Package code issues and consumes the 6-digit one-time codes that gate the
// second authentication step.  Each send writes a brand-new code row; older
// codes are never touched and simply stop mattering, because validation
// only ever inspects the most recently created code for the account.
package code

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/iliyamo/two-step-auth/internal/model"
	"github.com/iliyamo/two-step-auth/internal/repository"
)

// ErrCodeNotFound is returned by Validate when the account has never been
// sent a code.  That is a caller bug (Send must come first), so it is
// surfaced as its own condition instead of a plain false.
var ErrCodeNotFound = errors.New("no validation code issued")

// Store is the persistence surface the manager needs.  *repository.CodeRepo
// implements it; tests substitute an in-memory fake.
type Store interface {
	Create(ctx context.Context, accountID uint64, code string, expiresAt time.Time) (uint64, error)
	LatestByAccount(ctx context.Context, accountID uint64) (model.ValidationCode, error)
	MarkUsed(ctx context.Context, id uint64) error
}

// Notifier delivers a code out-of-band.  Delivery failures are logged and
// swallowed: retrying belongs to whatever sits behind the notifier, and the
// user can always claim a fresh code.
type Notifier interface {
	SendCode(ctx context.Context, account model.Account, code string) error
}

// Manager generates, sends and validates one-time codes.
type Manager struct {
	store    Store
	notifier Notifier
}

func NewManager(store Store, notifier Notifier) *Manager {
	return &Manager{store: store, notifier: notifier}
}

// Send generates a fresh 6-digit code for the account, persists it with a
// 5-minute expiry and hands it to the notifier.  A new row is written on
// every call; nothing invalidates prior codes explicitly.
func (m *Manager) Send(ctx context.Context, account model.Account) error {
	value, err := generate()
	if err != nil {
		return fmt.Errorf("generate code: %w", err)
	}
	expires := time.Now().UTC().Add(model.CodeTTL)
	if _, err := m.store.Create(ctx, account.ID, value, expires); err != nil {
		return fmt.Errorf("persist code: %w", err)
	}
	if err := m.notifier.SendCode(ctx, account, value); err != nil {
		// The code is persisted and claimable again; do not fail the login.
		log.Printf("code: notify account %d failed: %v", account.ID, err)
	}
	log.Printf("code: new code sent to account %d", account.ID)
	return nil
}

// Validate checks the submitted code against the account's most recent one.
// It returns true exactly once per code: the value must match, the code
// must be unused and its expiry still in the future.  Mismatch, reuse and
// expiry all come back as a uniform false so callers cannot tell which
// check failed; the distinction is only logged server-side.
func (m *Manager) Validate(ctx context.Context, account model.Account, submitted string) (bool, error) {
	latest, err := m.store.LatestByAccount(ctx, account.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, ErrCodeNotFound
	}
	if err != nil {
		return false, fmt.Errorf("load latest code: %w", err)
	}

	match := subtle.ConstantTimeCompare([]byte(latest.Code), []byte(submitted)) == 1
	switch {
	case !match:
		log.Printf("code: mismatch for account %d", account.ID)
		return false, nil
	case latest.Used:
		log.Printf("code: reuse attempt for account %d", account.ID)
		return false, nil
	case latest.Expired(time.Now().UTC()):
		log.Printf("code: expired code for account %d", account.ID)
		return false, nil
	}

	if err := m.store.MarkUsed(ctx, latest.ID); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			// A concurrent attempt won the used flag; this one fails.
			log.Printf("code: concurrent validation lost for account %d", account.ID)
			return false, nil
		}
		return false, fmt.Errorf("mark code used: %w", err)
	}
	return true, nil
}

// generate draws a uniformly random number in [0, 1e6) and formats it with
// leading zeros.
func generate() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
