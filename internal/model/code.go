package model

import "time"

// CodeTTL is how long a one-time validation code stays usable after it is
// created.  Five minutes is a product decision, not a tunable.
const CodeTTL = 5 * time.Minute

// ValidationCode models a row in the `validation_codes` table.  A new row is
// written for every code sent; rows are never deleted, and only the most
// recently created row per account is ever consulted during validation.
//
// Fields:
//  ID        – primary key identifier.
//  AccountID – owner of the code.
//  Code      – the 6-digit numeric code, stored as text to keep leading zeros.
//  Used      – set exactly once, on successful validation.
//  ExpiresAt – creation time plus CodeTTL.
//  CreatedAt – timestamp of creation; orders codes within an account.
type ValidationCode struct {
	ID        uint64    // validation_codes.id
	AccountID uint64    // validation_codes.account_id
	Code      string    // validation_codes.code
	Used      bool      // validation_codes.is_used
	ExpiresAt time.Time // validation_codes.expires_at
	CreatedAt time.Time // validation_codes.created_at
}

// Expired reports whether the code is past its expiry at the given instant.
func (c ValidationCode) Expired(now time.Time) bool {
	return !c.ExpiresAt.After(now)
}
