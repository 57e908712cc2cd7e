package filesim

import (
	"net/http"
	"path"
	"strings"

	"github.com/labstack/echo/v4"
)

// AuthMiddleware creates an Echo middleware that validates the master key
// if it's configured. If masterKey is empty, no authentication is required.
// Requests to any of skipPaths pass through unauthenticated.
func AuthMiddleware(masterKey string, skipPaths []string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			// If no master key is configured, allow all requests
			if masterKey == "" {
				return next(c)
			}

			// Public paths skip authentication
			reqPath := path.Clean(c.Request().URL.Path)
			for _, skip := range skipPaths {
				if reqPath == skip {
					return next(c)
				}
			}

			// Get Authorization header
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return errorJSON(c, http.StatusUnauthorized, "invalid_request_error", "", "",
					"You didn't provide an API key. You need to provide your API key in an Authorization header using Bearer auth.")
			}

			// Extract Bearer token
			const prefix = "Bearer "
			if !strings.HasPrefix(authHeader, prefix) {
				return errorJSON(c, http.StatusUnauthorized, "invalid_request_error", "", "",
					"Invalid authorization header format, expected 'Bearer <key>'.")
			}

			token := strings.TrimPrefix(authHeader, prefix)
			if token != masterKey {
				return errorJSON(c, http.StatusUnauthorized, "invalid_request_error", "invalid_api_key", "",
					"Incorrect API key provided.")
			}

			// Authentication successful, proceed to next handler
			return next(c)
		}
	}
}
