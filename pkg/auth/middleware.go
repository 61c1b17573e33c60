package auth

import (
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/learnmap/learnmap/pkg/errcodes"
	"github.com/learnmap/learnmap/pkg/models"
)

// Middleware provides authentication middleware.
type Middleware struct {
	authService *Service
}

// NewMiddleware creates a new auth middleware.
func NewMiddleware(authService *Service) *Middleware {
	return &Middleware{
		authService: authService,
	}
}

// Authenticate extracts and validates the JWT from the cookie.
// If valid, it verifies the user is still active and adds user info to the context.
// If not authenticated, it returns 401.
func (m *Middleware) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		user, err := m.userFromCookie(c)
		if err != nil {
			return err
		}
		setUser(c, user)
		return next(c)
	}
}

// AuthenticateOptional extracts user info if available but doesn't require authentication.
// Anonymous requests reach the handler without a user in the context.
func (m *Middleware) AuthenticateOptional(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if user, err := m.userFromCookie(c); err == nil {
			setUser(c, user)
		}
		return next(c)
	}
}

func (m *Middleware) userFromCookie(c echo.Context) (*models.User, error) {
	cookie, err := c.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return nil, errcodes.Unauthorized("Authentication required")
	}

	claims, err := m.authService.ValidateToken(cookie.Value)
	if err != nil {
		return nil, errcodes.Unauthorized("Invalid or expired token")
	}

	// Verify user still exists and is active
	user, err := m.authService.GetUserByID(c.Request().Context(), claims.UserID)
	if err != nil {
		return nil, errcodes.Unauthorized("User not found or inactive")
	}
	return user, nil
}

func setUser(c echo.Context, user *models.User) {
	c.Set("user_id", user.ID)
	c.Set("username", user.Username)
	c.Set("user", user)
}

// RequirePermission returns middleware that checks if the user has the required permission.
// Must be used after Authenticate middleware.
func (m *Middleware) RequirePermission(resource, operation string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user, ok := c.Get("user").(*models.User)
			if !ok {
				return errcodes.Unauthorized("Authentication required")
			}

			if !user.HasPermission(resource, operation) {
				return errcodes.Forbidden("You don't have permission to " + operation + " " + resource)
			}

			return next(c)
		}
	}
}

// RequireOrganizationAccess returns middleware that checks if the user can
// access the organization named by the given query or route parameter.
// Must be used after Authenticate middleware.
func (m *Middleware) RequireOrganizationAccess(paramName string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			orgIDStr := c.Param(paramName)
			if orgIDStr == "" {
				orgIDStr = c.QueryParam(paramName)
			}
			if orgIDStr == "" {
				return next(c)
			}

			orgID, err := strconv.Atoi(orgIDStr)
			if err != nil {
				return errcodes.NotFound("Organization")
			}

			user, ok := c.Get("user").(*models.User)
			if !ok {
				return errcodes.Unauthorized("Authentication required")
			}

			if !user.HasOrganizationAccess(orgID) {
				return errcodes.Forbidden("You don't have access to this organization")
			}

			return next(c)
		}
	}
}

// UserFromContext returns the authenticated user, or nil for anonymous
// requests.
func UserFromContext(c echo.Context) *models.User {
	user, _ := c.Get("user").(*models.User)
	return user
}
