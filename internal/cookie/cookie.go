// Package cookie is the credential transport: it moves the signed token
// between client and server inside a single configurable cookie.  Handlers
// and middleware never touch http.Cookie directly.
package cookie

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/two-step-auth/internal/config"
)

// Jar reads and writes the access-token cookie according to the deployment
// configuration.  It holds no state beyond that configuration.
type Jar struct {
	cfg config.CookieConfig
}

func NewJar(cfg config.CookieConfig) *Jar { return &Jar{cfg: cfg} }

// ReadToken returns the token from the request cookie, or ok=false when the
// cookie is absent or empty.
func (j *Jar) ReadToken(c echo.Context) (string, bool) {
	ck, err := c.Cookie(j.cfg.Name)
	if err != nil || ck.Value == "" {
		return "", false
	}
	return ck.Value, true
}

// WriteToken sets the token cookie on the response.  Called at login and
// again on every silent rotation.
func (j *Jar) WriteToken(c echo.Context, token string) {
	c.SetCookie(&http.Cookie{
		Name:     j.cfg.Name,
		Value:    token,
		Path:     j.cfg.Path,
		MaxAge:   j.cfg.MaxAge,
		Secure:   j.cfg.Secure,
		HttpOnly: j.cfg.HTTPOnly,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearToken expires the token cookie.  Flags must mirror WriteToken or
// browsers keep the old cookie around.
func (j *Jar) ClearToken(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     j.cfg.Name,
		Value:    "",
		Path:     j.cfg.Path,
		MaxAge:   -1,
		Secure:   j.cfg.Secure,
		HttpOnly: j.cfg.HTTPOnly,
		SameSite: http.SameSiteLaxMode,
	})
}
