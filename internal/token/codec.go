// Package token creates and parses the signed claims tokens that carry a
// login through the two authentication steps.  A token moves through two
// scopes: pre_auth right after a password login, auth once the emailed
// one-time code has been validated.  Rotation always produces a new token;
// claims are never mutated after signing.
//
// Signature verification and expiry are deliberately separate concerns
// here: Verify and DecodeClaims check the signature and issuer but not the
// expiry, so an expired-but-authentic token can still be decoded and
// silently rotated instead of rejected outright.
package token

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/iliyamo/two-step-auth/internal/config"
)

// ErrInvalidToken is returned when a token fails signature or issuer
// verification, or is structurally unusable.
var ErrInvalidToken = errors.New("invalid token")

// ErrSessionIDExhausted is returned when no unused session identifier could
// be found within the probe bound.  Random UUID collisions are effectively
// impossible, so hitting this means the session store is misbehaving; it is
// an operational alarm, not a normal error path.
var ErrSessionIDExhausted = errors.New("unable to generate unique session id")

// sessionIDAttempts bounds the uniqueness probe.  Kept deliberately low:
// repeated collisions must surface as a failure, not be absorbed by
// retrying forever.
const sessionIDAttempts = 10

// SessionProbe is the single store operation the codec needs: checking
// whether a candidate session identifier is already taken.
type SessionProbe interface {
	ExistsBySessionID(ctx context.Context, sessionID string) (bool, error)
}

// Claims is the decoded business view of a token.
type Claims struct {
	Subject   string    // account username
	Roles     []string  // role names
	Scope     string    // pre_auth or auth scope literal
	SessionID string    // opaque refresh-session identifier
	ExpiresAt time.Time // access-token expiry (not session expiry)
}

// Codec signs and parses tokens.  All fields are fixed at construction and
// never mutated, so a single Codec is safe for concurrent use.
type Codec struct {
	secret       []byte
	issuer       string
	preAuthScope string
	authScope    string
	claimRoles   string
	claimScope   string
	claimSession string
	accessTTL    time.Duration
	sessions     SessionProbe
}

// NewCodec builds a Codec from the application config.  The session probe
// is only consulted when issuing brand-new session identifiers.
func NewCodec(cfg config.Config, sessions SessionProbe) *Codec {
	return &Codec{
		secret:       []byte(cfg.JWTSecret),
		issuer:       cfg.JWTIssuer,
		preAuthScope: cfg.PreAuthScope,
		authScope:    cfg.AuthScope,
		claimRoles:   cfg.ClaimRoles,
		claimScope:   cfg.ClaimScope,
		claimSession: cfg.ClaimSession,
		accessTTL:    time.Duration(cfg.AccessTTLMin) * time.Minute,
		sessions:     sessions,
	}
}

// PreAuthScope returns the configured pre_auth scope literal.
func (c *Codec) PreAuthScope() string { return c.preAuthScope }

// AuthScope returns the configured auth scope literal.
func (c *Codec) AuthScope() string { return c.authScope }

// GenerateUniqueSessionID draws random identifiers and probes the session
// store until one is unused, giving up after a fixed number of attempts.
func (c *Codec) GenerateUniqueSessionID(ctx context.Context) (string, error) {
	for attempt := 1; attempt <= sessionIDAttempts; attempt++ {
		id := uuid.NewString()
		taken, err := c.sessions.ExistsBySessionID(ctx, id)
		if err != nil {
			return "", fmt.Errorf("probe session id: %w", err)
		}
		if !taken {
			return id, nil
		}
		log.Printf("token: session id collision on attempt %d", attempt)
	}
	return "", ErrSessionIDExhausted
}

// IssuePreAuth creates a pre_auth-scoped token for a fresh login, bound to
// a newly generated unique session identifier.
func (c *Codec) IssuePreAuth(ctx context.Context, subject string, roles []string) (string, error) {
	sessionID, err := c.GenerateUniqueSessionID(ctx)
	if err != nil {
		return "", err
	}
	return c.Issue(subject, roles, c.preAuthScope, sessionID)
}

// Issue signs a token with the given claims and a fresh access TTL.  Used
// directly when the session identifier already exists (session re-init);
// most callers go through IssuePreAuth, Upgrade or Rotate.
func (c *Codec) Issue(subject string, roles []string, scope, sessionID string) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"iss":          c.issuer,
		"sub":          subject,
		c.claimRoles:   roles,
		c.claimScope:   scope,
		c.claimSession: sessionID,
		"exp":          now.Add(c.accessTTL).Unix(),
		"iat":          now.Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(c.secret)
}

// Upgrade re-signs a verified token with scope forced to auth, keeping the
// subject, roles and session id.  This is the step that turns a
// code-validated login into a fully authenticated one.
func (c *Codec) Upgrade(raw string) (string, error) {
	cl, err := c.DecodeClaims(raw)
	if err != nil {
		return "", err
	}
	return c.Issue(cl.Subject, cl.Roles, c.authScope, cl.SessionID)
}

// Rotate re-signs a verified token with a fresh TTL, preserving its current
// scope.  Used for silent refresh of an authenticated token whose access
// TTL has lapsed while its session is still valid.
func (c *Codec) Rotate(raw string) (string, error) {
	cl, err := c.DecodeClaims(raw)
	if err != nil {
		return "", err
	}
	return c.Issue(cl.Subject, cl.Roles, cl.Scope, cl.SessionID)
}

// Verify reports whether the token's signature and issuer check out.
// Expiry is not considered; session validity is a separate step.
func (c *Codec) Verify(raw string) bool {
	_, err := c.DecodeClaims(raw)
	return err == nil
}

// DecodeClaims verifies the signature and issuer and returns the business
// claims.  Expiry is decoded but not enforced.  Any failure is reported as
// ErrInvalidToken; callers never learn which check tripped.
func (c *Codec) DecodeClaims(raw string) (Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		// Expiry is checked by the gate, not here; an expired token must
		// still decode so it can be rotated.
		jwt.WithoutClaimsValidation(),
	)
	tok, err := parser.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	})
	if err != nil || !tok.Valid {
		return Claims{}, ErrInvalidToken
	}
	mc, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, ErrInvalidToken
	}
	// WithoutClaimsValidation also skips the issuer check, so compare it
	// by hand.
	if iss, _ := mc["iss"].(string); iss != c.issuer {
		return Claims{}, ErrInvalidToken
	}
	cl, err := c.claimsFrom(mc)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}
	return cl, nil
}

// DecodeUnverified extracts claims without checking the signature.  Only
// the gate uses it, for the structural pass that decides whether a refresh
// should even be attempted; nothing downstream trusts its output until
// Verify has passed.
func (c *Codec) DecodeUnverified(raw string) (Claims, error) {
	tok, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return Claims{}, ErrInvalidToken
	}
	mc, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, ErrInvalidToken
	}
	cl, err := c.claimsFrom(mc)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}
	return cl, nil
}

func (c *Codec) claimsFrom(mc jwt.MapClaims) (Claims, error) {
	sub, _ := mc["sub"].(string)
	if sub == "" {
		return Claims{}, errors.New("missing subject")
	}
	scope, _ := mc[c.claimScope].(string)
	sessionID, _ := mc[c.claimSession].(string)
	var exp time.Time
	if t, err := mc.GetExpirationTime(); err == nil && t != nil {
		exp = t.Time
	}
	var roles []string
	if raw, ok := mc[c.claimRoles].([]interface{}); ok {
		for _, r := range raw {
			if s, ok := r.(string); ok {
				roles = append(roles, s)
			}
		}
	}
	return Claims{
		Subject:   sub,
		Roles:     roles,
		Scope:     scope,
		SessionID: sessionID,
		ExpiresAt: exp,
	}, nil
}
