package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/okaypadak/everup-backend/internal/infra/adapters/auth"
	"github.com/okaypadak/everup-backend/internal/infra/appctx"
)

// JWTAuthMiddleware verifies the bearer credential once per request and
// places the resulting identity in the request context. The credential comes
// from the Authorization header or, for browser websocket upgrades that
// cannot set headers, from the jwt cookie.
func JWTAuthMiddleware(verifier auth.Verifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := extractToken(c)
			if token == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing or malformed jwt"})
			}

			identity, err := verifier.Verify(token)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid or expired jwt"})
			}

			c.SetRequest(
				c.Request().WithContext(
					appctx.WithIdentity(c.Request().Context(), identity),
				),
			)

			return next(c)
		}
	}
}

func extractToken(c echo.Context) string {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if after, ok := strings.CutPrefix(header, "Bearer "); ok && after != "" {
		return after
	}

	cookie, err := c.Cookie("jwt")
	if err != nil || cookie.Value == "" {
		return ""
	}

	return cookie.Value
}
