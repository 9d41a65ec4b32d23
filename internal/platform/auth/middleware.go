package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type contextKey string

const identityKey contextKey = "identity"

// Echo context keys set by JWTMiddleware for logging and rate limiting.
const (
	EchoUserIDKey = "user_id"
	EchoRoleKey   = "user_role"
)

// Identity is the authenticated caller.
type Identity struct {
	UserID    uuid.UUID
	Role      Role
	TokenID   string
	ExpiresAt time.Time
}

func (i Identity) Is(role Role) bool { return i.Role == role }

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the caller stored by JWTMiddleware.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// JWTMiddleware authenticates every request that is not a public path. The
// bearer token comes from the Authorization header, or from the "token" query
// parameter on websocket upgrades, where browsers cannot set headers.
func JWTMiddleware(tokens *TokenManager, revoked RevocationStore) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if AuthSkipper(c) {
				return next(c)
			}

			tokenStr, err := bearerToken(c)
			if err != nil {
				return err
			}

			claims, err := tokens.Parse(tokenStr, TokenTypeAccess)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			if revoked != nil {
				isRevoked, err := revoked.IsRevoked(c.Request().Context(), claims.ID)
				if err != nil {
					return echo.NewHTTPError(http.StatusServiceUnavailable, "token check unavailable").SetInternal(err)
				}
				if isRevoked {
					return echo.NewHTTPError(http.StatusUnauthorized, "token has been revoked")
				}
			}

			id := Identity{
				UserID:  uuid.MustParse(claims.Subject),
				Role:    claims.Role,
				TokenID: claims.ID,
			}
			if claims.ExpiresAt != nil {
				id.ExpiresAt = claims.ExpiresAt.Time
			}

			c.Set(EchoUserIDKey, claims.Subject)
			c.Set(EchoRoleKey, string(claims.Role))
			c.SetRequest(c.Request().WithContext(WithIdentity(c.Request().Context(), id)))

			return next(c)
		}
	}
}

func bearerToken(c echo.Context) (string, error) {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		if strings.EqualFold(c.Request().Header.Get("Upgrade"), "websocket") {
			if t := c.QueryParam("token"); t != "" {
				return t, nil
			}
		}
		return "", echo.NewHTTPError(http.StatusUnauthorized, "not authorized, no token")
	}

	scheme, token, ok := strings.Cut(authHeader, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
	}
	return strings.TrimSpace(token), nil
}

// MustIdentity is used by handlers behind JWTMiddleware.
func MustIdentity(c echo.Context) (Identity, error) {
	id, ok := IdentityFromContext(c.Request().Context())
	if !ok {
		return Identity{}, echo.NewHTTPError(http.StatusUnauthorized, "not authorized")
	}
	return id, nil
}
