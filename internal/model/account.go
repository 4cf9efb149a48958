package model

import "time"

// Account represents a registered user as stored in the `accounts` table.
// Accounts are the subject of every issued token; tokens reference them by
// username, not by id.  The json tags are omitted because these structs are
// used by the repository layer; handlers define their own response types.
//
// Fields:
//  ID           – primary key identifier of the account.
//  Email        – unique email address, lowercase.
//  Username     – unique login name; also the token subject claim.
//  PasswordHash – bcrypt hashed password.
//  Role         – role name stamped into the token roles claim (e.g. USER).
//  IsBlocked    – blocked accounts cannot log in or pass the auth gate.
//  IsVerified   – set the first time the account validates a one-time code.
//  CreatedAt    – timestamp of creation.
//  UpdatedAt    – timestamp of last update.
type Account struct {
	ID           uint64    // accounts.id
	Email        string    // accounts.email
	Username     string    // accounts.username
	PasswordHash string    // accounts.password_hash
	Role         string    // accounts.role
	IsBlocked    bool      // accounts.is_blocked
	IsVerified   bool      // accounts.is_verified
	CreatedAt    time.Time // accounts.created_at
	UpdatedAt    time.Time // accounts.updated_at
}

// Roles returns the role names carried into the token roles claim.  The
// schema stores a single role per account today; the claim is an array so
// the wire format does not change if that ever grows.
func (a Account) Roles() []string {
	if a.Role == "" {
		return nil
	}
	return []string{a.Role}
}
