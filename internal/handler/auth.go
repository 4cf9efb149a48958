package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/two-step-auth/internal/code"
	"github.com/iliyamo/two-step-auth/internal/config"
	"github.com/iliyamo/two-step-auth/internal/cookie"
	"github.com/iliyamo/two-step-auth/internal/repository"
	"github.com/iliyamo/two-step-auth/internal/session"
	"github.com/iliyamo/two-step-auth/internal/token"
	"github.com/iliyamo/two-step-auth/internal/utils"
)

// AuthHandler bundles dependencies for the registration and login endpoints.
type AuthHandler struct {
	Cfg      config.Config
	Accounts *repository.AccountRepo
	Codec    *token.Codec
	Sessions *session.Manager
	Codes    *code.Manager
	Jar      *cookie.Jar
}

func NewAuthHandler(cfg config.Config, accounts *repository.AccountRepo, codec *token.Codec,
	sessions *session.Manager, codes *code.Manager, jar *cookie.Jar) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Accounts: accounts, Codec: codec, Sessions: sessions, Codes: codes, Jar: jar}
}

// ----- DTOs -----

type registerReq struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}
type loginReq struct {
	Username string `json:"username"` // username or email
	Password string `json:"password"`
}

// Register creates an account.  No tokens are issued here; the client must
// log in afterwards and go through the code step like everyone else.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Username = strings.TrimSpace(req.Username)
	if req.Email == "" || req.Username == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/username/password required"})
	}
	if err := utils.CheckPasswordPolicy(req.Password); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	hash, err := utils.HashPassword(req.Password, h.Cfg.BcryptCost)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create account failed"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	id, err := h.Accounts.Create(ctx, req.Email, req.Username, hash, "USER")
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrEmailExists):
			return c.JSON(http.StatusConflict, echo.Map{"error": "email already registered"})
		case errors.Is(err, repository.ErrUsernameExists):
			return c.JSON(http.StatusConflict, echo.Map{"error": "username already taken"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create account failed"})
	}

	log.Printf("auth: new registration, account %d", id)
	return c.JSON(http.StatusCreated, echo.Map{"message": "account registered"})
}

// Login verifies credentials and starts the pre-auth stage: a pre_auth
// token goes out in the cookie and a one-time code goes out via the
// notifier.  Every credential failure looks identical to the caller.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "username/password required"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	acct, err := h.Accounts.FindByUsernameOrEmail(ctx, req.Username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if acct.IsBlocked || !utils.VerifyPassword(acct.PasswordHash, req.Password) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	jwt, err := h.Codec.IssuePreAuth(ctx, acct.Username, acct.Roles())
	if err != nil {
		// ErrSessionIDExhausted lands here: store pathology, page someone.
		log.Printf("auth: issue pre-auth token for %s failed: %v", acct.Username, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "login failed"})
	}
	h.Jar.WriteToken(c, jwt)

	if err := h.Codes.Send(ctx, acct); err != nil {
		log.Printf("auth: send code for %s failed: %v", acct.Username, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "login failed"})
	}

	log.Printf("auth: account %d passed password step", acct.ID)
	return c.JSON(http.StatusOK, echo.Map{"message": "validation code sent"})
}

// Logout locks the token's refresh session so silent rotation dies
// server-side, then clears the cookie.  It never fails: an absent or
// garbled token still results in a cleared cookie.  The lock only honors a
// genuine signature (expiry does not matter); a forged cookie naming
// someone else's session id must not lock it.
func (h *AuthHandler) Logout(c echo.Context) error {
	if raw, ok := h.Jar.ReadToken(c); ok {
		if claims, err := h.Codec.DecodeClaims(raw); err == nil && claims.SessionID != "" {
			ctx, cancel := reqCtx(c)
			defer cancel()
			if err := h.Sessions.Lock(ctx, claims.SessionID); err != nil {
				log.Printf("auth: lock session on logout failed: %v", err)
			}
		}
	}
	h.Jar.ClearToken(c)
	return c.NoContent(http.StatusNoContent)
}

// reqCtx bounds a handler's store calls to a short timeout.
func reqCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), 5*time.Second)
}
