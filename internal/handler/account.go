package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/two-step-auth/internal/model"
)

// Me returns the authenticated identity established by the auth gate.
func Me(c echo.Context) error {
	acct, ok := c.Get("account").(model.Account)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"username": acct.Username,
		"email":    acct.Email,
		"roles":    acct.Roles(),
		"verified": acct.IsVerified,
	})
}
