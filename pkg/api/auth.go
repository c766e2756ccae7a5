package api

import (
	"fmt"

	echo "github.com/labstack/echo/v5"

	"github.com/labtrace/labtrace/pkg/models"
	"github.com/labtrace/labtrace/pkg/store"
)

// identityHeader is the header an upstream auth proxy (oauth2-proxy or
// equivalent) is expected to set after verifying the caller. OAuth
// sign-in itself is an external collaborator this repo never implements;
// authMiddleware only consumes its result.
const identityHeader = "X-Forwarded-Email"

const userContextKey = "labtrace_user"

// AuthContext is the narrow interface handlers use to learn who is
// calling, independent of how that identity was established upstream.
type AuthContext interface {
	CurrentUser() *models.User
}

type echoAuthContext struct {
	c *echo.Context
}

func (a echoAuthContext) CurrentUser() *models.User {
	u, _ := a.c.Get(userContextKey).(*models.User)
	return u
}

// authFromContext adapts an echo request context to AuthContext.
func authFromContext(c *echo.Context) AuthContext {
	return echoAuthContext{c: c}
}

// authMiddleware resolves the caller's identity from identityHeader,
// upserting a User row on first sight, and rejects requests missing it
// with 401.
func authMiddleware(users *store.UserStore) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			email := c.Request().Header.Get(identityHeader)
			if email == "" {
				return echo.NewHTTPError(401, "missing "+identityHeader+" header")
			}

			user, err := users.GetOrCreate(c.Request().Context(), email)
			if err != nil {
				return fmt.Errorf("resolve caller identity: %w", err)
			}

			c.Set(userContextKey, user)
			return next(c)
		}
	}
}

// requireAdmin rejects any caller whose resolved User is not flagged as
// an admin. Must run after authMiddleware.
func requireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		user, _ := c.Get(userContextKey).(*models.User)
		if user == nil || !user.IsAdmin {
			return echo.NewHTTPError(403, "admin access required")
		}
		return next(c)
	}
}
