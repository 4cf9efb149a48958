package handler

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/two-step-auth/internal/code"
	"github.com/iliyamo/two-step-auth/internal/cookie"
	"github.com/iliyamo/two-step-auth/internal/model"
	"github.com/iliyamo/two-step-auth/internal/repository"
	"github.com/iliyamo/two-step-auth/internal/session"
	"github.com/iliyamo/two-step-auth/internal/token"
)

// CodeHandler serves the second authentication step.  Both endpoints sit
// behind the pre_auth gate, so by the time they run the request carries a
// verified pre_auth token and the account is in the context.
type CodeHandler struct {
	Accounts *repository.AccountRepo
	Codec    *token.Codec
	Sessions *session.Manager
	Codes    *code.Manager
	Jar      *cookie.Jar
}

func NewCodeHandler(accounts *repository.AccountRepo, codec *token.Codec,
	sessions *session.Manager, codes *code.Manager, jar *cookie.Jar) *CodeHandler {
	return &CodeHandler{Accounts: accounts, Codec: codec, Sessions: sessions, Codes: codes, Jar: jar}
}

type validateReq struct {
	Code string `json:"code"`
}

// Validate consumes a submitted one-time code.  On success the cookie token
// is upgraded to auth scope and a refresh session is initialized for its
// session id.  Mismatched, reused, expired and never-issued codes all get
// the same answer.
func (h *CodeHandler) Validate(c echo.Context) error {
	var req validateReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Code) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "code required"})
	}

	acct, ok := c.Get("account").(model.Account)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	valid, err := h.Codes.Validate(ctx, acct, strings.TrimSpace(req.Code))
	if err != nil && !errors.Is(err, code.ErrCodeNotFound) {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "validation failed"})
	}
	if err != nil || !valid {
		// ErrCodeNotFound collapses into the generic rejection on purpose.
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "code invalid"})
	}

	if !acct.IsVerified {
		if err := h.Accounts.SetVerified(ctx, acct.ID, true); err != nil {
			log.Printf("code: set verified for account %d failed: %v", acct.ID, err)
		}
	}

	raw, _ := h.Jar.ReadToken(c) // present: the gate already admitted it
	upgraded, err := h.Codec.Upgrade(raw)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	h.Jar.WriteToken(c, upgraded)

	claims, err := h.Codec.DecodeClaims(upgraded)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "validation failed"})
	}
	if err := h.Sessions.InitSession(ctx, acct, claims.SessionID); err != nil {
		log.Printf("code: init session for account %d failed: %v", acct.ID, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "validation failed"})
	}

	log.Printf("code: account %d fully authenticated", acct.ID)
	return c.JSON(http.StatusOK, echo.Map{"message": "authenticated"})
}

// Claim sends a fresh code to the logged-in account, e.g. when the first
// email never arrived or the code expired.
func (h *CodeHandler) Claim(c echo.Context) error {
	acct, ok := c.Get("account").(model.Account)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Codes.Send(ctx, acct); err != nil {
		log.Printf("code: claim for account %d failed: %v", acct.ID, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "claim failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "validation code sent"})
}
