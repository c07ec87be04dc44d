package arya

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

func (a *App) handleSession(c echo.Context) error {
	return c.JSON(http.StatusOK, SessionResponse{
		Authenticated: IsAdmin(c),
		CSRFToken:     CsrfToken(c),
	})
}

func (a *App) handleLogin(c echo.Context) error {
	var req LoginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if a.Config.AdminPassword == "" ||
		subtle.ConstantTimeCompare([]byte(req.Password), []byte(a.Config.AdminPassword)) != 1 {
		a.logger.Warn("login failed", zap.String("ip", c.RealIP()))
		return echo.NewHTTPError(http.StatusUnauthorized, "wrong password")
	}
	if err := setAdminSession(c); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, SessionResponse{Authenticated: true, CSRFToken: CsrfToken(c)})
}

func handleLogout(c echo.Context) error {
	if err := clearAdminSession(c); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
