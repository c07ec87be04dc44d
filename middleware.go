package arya

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/eringen/arya/errs"
)

const sessionName = "admin_session"

func (a *App) setupMiddleware() {
	e := a.Echo

	e.IPExtractor = echo.ExtractIPFromXFFHeader(
		echo.TrustLoopback(true),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(true),
	)

	e.HTTPErrorHandler = a.httpErrorHandler
	e.Validator = &requestValidator{validate: validator.New()}

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:   true,
		LogURI:      true,
		LogMethod:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("ip", v.RemoteIP),
			}
			if v.Error != nil {
				a.logger.Warn("request failed", append(fields, zap.Error(v.Error))...)
				return nil
			}
			a.logger.Info("request", fields...)
			return nil
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			a.logger.Error("panic recovered", zap.Error(err), zap.ByteString("stack", stack))
			return err
		},
	}))

	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
		ReferrerPolicy:     "strict-origin-when-cross-origin",
		HSTSMaxAge:         31536000,
	}))

	e.Use(session.Middleware(a.newSessionStore()))

	e.Use(middleware.CSRFWithConfig(middleware.CSRFConfig{
		ContextKey:     middleware.DefaultCSRFConfig.ContextKey,
		TokenLookup:    "header:X-CSRF-Token",
		CookieName:     "_csrf",
		CookiePath:     "/",
		CookieSameSite: http.SameSiteLaxMode,
		CookieSecure:   a.Config.CookieSecure,
		Skipper: func(c echo.Context) bool {
			// Bearer clients carry no cookies to forge.
			return bearerToken(c) != ""
		},
		ErrorHandler: func(err error, c echo.Context) error {
			return echo.NewHTTPError(http.StatusForbidden, "invalid csrf token")
		},
	}))

	e.Use(noStore)
}

func noStore(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Set("Cache-Control", "no-store")
		return next(c)
	}
}

func (a *App) newSessionStore() *sessions.CookieStore {
	store := sessions.NewCookieStore([]byte(a.Config.SessionSecret))
	store.Options = &sessions.Options{
		Path:     "/",
		HttpOnly: true,
		MaxAge:   60 * 60 * 12,
		SameSite: http.SameSiteLaxMode,
		Secure:   a.Config.CookieSecure,
	}
	return store
}

// IsAdmin checks if the current session is authenticated.
func IsAdmin(c echo.Context) bool {
	sess, err := session.Get(sessionName, c)
	if err != nil {
		return false
	}
	auth, ok := sess.Values["authenticated"].(bool)
	return ok && auth
}

func setAdminSession(c echo.Context) error {
	sess, err := session.Get(sessionName, c)
	if err != nil {
		return err
	}
	sess.Values["authenticated"] = true
	return sess.Save(c.Request(), c.Response())
}

func clearAdminSession(c echo.Context) error {
	sess, err := session.Get(sessionName, c)
	if err != nil {
		return err
	}
	sess.Options.MaxAge = -1
	return sess.Save(c.Request(), c.Response())
}

// CsrfToken extracts the CSRF token from the Echo context.
func CsrfToken(c echo.Context) string {
	token, _ := c.Get(middleware.DefaultCSRFConfig.ContextKey).(string)
	return token
}

func bearerToken(c echo.Context) string {
	h := c.Request().Header.Get(echo.HeaderAuthorization)
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// requireAuth admits an admin session or the configured API key.
func (a *App) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if IsAdmin(c) {
			return next(c)
		}
		if key := bearerToken(c); key != "" && a.Config.APIKey != "" &&
			subtle.ConstantTimeCompare([]byte(key), []byte(a.Config.APIKey)) == 1 {
			return next(c)
		}
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
}

// limit rejects callers over the limiter's budget.
func limit(l *RateLimiter, message string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !l.Allow(c.RealIP()) {
				return echo.NewHTTPError(http.StatusTooManyRequests, message)
			}
			return next(c)
		}
	}
}

// errorResponse is the JSON body of every failed API call.
type errorResponse struct {
	Error string    `json:"error"`
	Kind  errs.Kind `json:"kind,omitempty"`
	Hint  string    `json:"hint,omitempty"`
}

func (a *App) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	body := errorResponse{Error: "internal server error"}

	var (
		appErr  *errs.Error
		httpErr *echo.HTTPError
	)
	switch {
	case errors.As(err, &appErr):
		code = errs.HTTPStatus(appErr.Kind)
		body = errorResponse{Error: appErr.Error(), Kind: appErr.Kind, Hint: errs.HintFor(appErr)}
	case errors.As(err, &httpErr):
		code = httpErr.Code
		if msg, ok := httpErr.Message.(string); ok {
			body.Error = msg
		} else {
			body.Error = http.StatusText(code)
		}
	default:
		a.logger.Error("unhandled error", zap.String("uri", c.Request().RequestURI), zap.Error(err))
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, body)
	}
	if err != nil {
		a.logger.Error("write error response", zap.Error(err))
	}
}

// requestValidator adapts validator/v10 to echo.Validator.
type requestValidator struct {
	validate *validator.Validate
}

func (v *requestValidator) Validate(i any) error {
	if err := v.validate.Struct(i); err != nil {
		var fields []string
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				fields = append(fields, fe.Field()+" "+fe.Tag())
			}
		}
		return errs.Wrap(errs.ValidationFailed, "invalid request: "+strings.Join(fields, ", "), err).
			WithHint("check the request fields")
	}
	return nil
}

// bindAndValidate decodes the body into v and runs its validation tags.
func bindAndValidate(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return errs.Wrap(errs.ValidationFailed, "invalid request body", err).
			WithHint("send a JSON body matching the documented fields")
	}
	return c.Validate(v)
}
