package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths bypass authentication: health checks and the endpoints that
// hand out tokens.
var publicPaths = map[string]bool{
	"/health":            true,
	"/health/db":         true,
	"/api/auth/register": true,
	"/api/auth/login":    true,
	"/api/auth/refresh":  true,
}

// AuthSkipper returns true for requests whose route should skip authentication.
func AuthSkipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}

// IsPublicPath reports whether path is served without a token.
func IsPublicPath(path string) bool {
	return publicPaths[path]
}
