// Package queue defines message payloads exchanged over the message broker.
package queue

// CodeIssuedQueue is the durable queue carrying one-time-code deliveries to
// the mailer process.
const CodeIssuedQueue = "auth.code.issued"

// CodeIssuedEvent is published whenever a one-time validation code is
// generated for an account.  The consumer on the other side owns the actual
// email formatting and transport; this payload carries everything it needs
// without querying the primary database.
type CodeIssuedEvent struct {
	AccountID uint64 `json:"account_id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Code      string `json:"code"`
	IssuedAt  string `json:"issued_at"`
}
