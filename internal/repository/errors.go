// Package repository defines error types that are reused across multiple
// repositories.  These sentinel values let higher layers distinguish
// failure scenarios without depending on database/sql details: the service
// packages translate them into their own typed outcomes, and handlers map
// those to fixed HTTP responses.
package repository

import "errors"

// ErrNotFound is returned when a lookup matches no row.  Repositories
// translate sql.ErrNoRows into this sentinel so callers never import
// database/sql just to compare errors.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a guarded single-row update matched no row,
// meaning another writer got there first (a code already marked used, a
// session token rotated concurrently).  Callers treat the operation as
// lost, never retried.
var ErrConflict = errors.New("conflict")

// ErrEmailExists is returned when registration hits the unique email index.
var ErrEmailExists = errors.New("email already exists")

// ErrUsernameExists is returned when registration hits the unique username
// index.
var ErrUsernameExists = errors.New("username already exists")
