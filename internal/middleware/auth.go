package middleware // middleware provides shared request processing for handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/two-step-auth/internal/cookie"
	"github.com/iliyamo/two-step-auth/internal/model"
	"github.com/iliyamo/two-step-auth/internal/repository"
	"github.com/iliyamo/two-step-auth/internal/session"
	"github.com/iliyamo/two-step-auth/internal/token"
)

// Scope selects which token scope a gate admits.  The same gate logic
// serves both cases; only the required scope literal differs.
type Scope int

const (
	// ScopePreAuth admits tokens issued right after a password login.
	// Only the code validation and claim endpoints sit behind it.
	ScopePreAuth Scope = iota
	// ScopeAuth admits fully authenticated tokens, i.e. logins that have
	// validated their one-time code.
	ScopeAuth
)

// AccountLookup resolves a token subject to an account.
// *repository.AccountRepo implements it.
type AccountLookup interface {
	FindByUsername(ctx context.Context, username string) (model.Account, error)
}

// Gate bundles everything the auth filter needs.  One Gate instance serves
// both scopes via RequireScope.
type Gate struct {
	codec    *token.Codec
	sessions *session.Manager
	accounts AccountLookup
	jar      *cookie.Jar
}

func NewGate(codec *token.Codec, sessions *session.Manager, accounts AccountLookup, jar *cookie.Jar) *Gate {
	return &Gate{codec: codec, sessions: sessions, accounts: accounts, jar: jar}
}

// RequireScope returns middleware enforcing the request-time token state
// machine.  Per request: read the cookie token, structurally decode it,
// check the scope, silently rotate it when its access TTL has lapsed (the
// one side-effecting step: a successful rotation writes a new cookie), then
// fully verify the signature, resolve the account and expose the identity
// to handlers via c.Get("username") / c.Get("roles") / c.Get("account").
//
// Failure mapping is deliberately coarse: everything except a signature
// failure is a plain 401, so callers cannot probe which internal check
// rejected them.  A signature failure on a structurally plausible token
// means tampering or corruption and is answered with 400.
func (g *Gate) RequireScope(scope Scope) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := g.jar.ReadToken(c)
			if !ok {
				return unauthorized(c)
			}

			claims, err := g.codec.DecodeUnverified(raw)
			if err != nil {
				return unauthorized(c)
			}
			if claims.SessionID == "" || claims.Scope != g.required(scope) {
				return unauthorized(c)
			}

			// Expired access token: try a silent refresh against the
			// session record before giving up.
			if !claims.ExpiresAt.After(time.Now().UTC()) {
				ctx := c.Request().Context()
				rotated, err := g.sessions.RefreshSession(ctx, raw)
				if err != nil {
					if !errors.Is(err, session.ErrSessionInvalid) && !errors.Is(err, token.ErrInvalidToken) {
						log.Printf("gate: refresh failed for %s: %v", claims.Subject, err)
					}
					return unauthorized(c)
				}
				raw = rotated
				g.jar.WriteToken(c, rotated)
				if claims, err = g.codec.DecodeUnverified(rotated); err != nil {
					return unauthorized(c)
				}
			}

			if !g.codec.Verify(raw) {
				return c.JSON(http.StatusBadRequest, echo.Map{"error": "cannot verify token"})
			}

			acct, err := g.accounts.FindByUsername(c.Request().Context(), claims.Subject)
			if err != nil {
				if !errors.Is(err, repository.ErrNotFound) {
					log.Printf("gate: account lookup failed for %s: %v", claims.Subject, err)
					return c.JSON(http.StatusInternalServerError, echo.Map{"error": "lookup failed"})
				}
				return unauthorized(c)
			}
			if acct.IsBlocked {
				return unauthorized(c)
			}

			c.Set("username", acct.Username)
			c.Set("roles", claims.Roles)
			c.Set("account", acct)
			return next(c)
		}
	}
}

func (g *Gate) required(scope Scope) string {
	if scope == ScopePreAuth {
		return g.codec.PreAuthScope()
	}
	return g.codec.AuthScope()
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
}
