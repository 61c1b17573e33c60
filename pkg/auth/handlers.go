package auth

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/learnmap/learnmap/pkg/errcodes"
	"github.com/learnmap/learnmap/pkg/models"
	"github.com/pkg/errors"
)

const (
	// CookieName is the name of the session cookie.
	CookieName = "learnmap_session"
	// CookieMaxAge is how long the cookie is valid.
	CookieMaxAge = 7 * 24 * time.Hour // 7 days
)

type handler struct {
	authService *Service
}

func sessionCookie(c echo.Context, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.Request().TLS != nil || c.Request().Header.Get("X-Forwarded-Proto") == "https",
		SameSite: http.SameSiteLaxMode,
	}
}

// buildMeResponse builds a MeResponse from a user model.
func buildMeResponse(user *models.User) MeResponse {
	permissions := make([]string, 0)
	if user.Role != nil {
		for _, p := range user.Role.Permissions {
			permissions = append(permissions, p.Resource+":"+p.Operation)
		}
	}

	var orgAccess *[]int
	if accessibleIDs := user.GetAccessibleOrganizationIDs(); accessibleIDs != nil {
		orgAccess = &accessibleIDs
	}

	roleName := ""
	if user.Role != nil {
		roleName = user.Role.Name
	}

	return MeResponse{
		ID:                 user.ID,
		Username:           user.Username,
		Email:              user.Email,
		RoleID:             user.RoleID,
		RoleName:           roleName,
		Permissions:        permissions,
		OrganizationAccess: orgAccess,
	}
}

// login handles user login.
func (h *handler) login(c echo.Context) error {
	ctx := c.Request().Context()

	params := LoginPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	user, err := h.authService.Authenticate(ctx, params.Username, params.Password)
	if err != nil {
		return err
	}

	token, err := h.authService.GenerateToken(user)
	if err != nil {
		return errors.WithStack(err)
	}

	c.SetCookie(sessionCookie(c, token, int(CookieMaxAge.Seconds())))

	return c.JSON(http.StatusOK, buildMeResponse(user))
}

// logout handles user logout.
func (h *handler) logout(c echo.Context) error {
	// Clear cookie by setting MaxAge to -1
	c.SetCookie(sessionCookie(c, "", -1))

	return c.JSON(http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

// me returns the current authenticated user's info.
func (h *handler) me(c echo.Context) error {
	user := UserFromContext(c)
	if user == nil {
		return errcodes.Unauthorized("Not authenticated")
	}

	return c.JSON(http.StatusOK, buildMeResponse(user))
}

// status returns whether the app needs initial setup.
func (h *handler) status(c echo.Context) error {
	ctx := c.Request().Context()

	count, err := h.authService.CountUsers(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	return c.JSON(http.StatusOK, StatusResponse{
		NeedsSetup: count == 0,
	})
}

// setup creates the first admin user.
func (h *handler) setup(c echo.Context) error {
	ctx := c.Request().Context()

	params := SetupPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	user, err := h.authService.CreateFirstAdmin(ctx, params.Username, params.Email, params.Password)
	if err != nil {
		return err
	}

	token, err := h.authService.GenerateToken(user)
	if err != nil {
		return errors.WithStack(err)
	}

	c.SetCookie(sessionCookie(c, token, int(CookieMaxAge.Seconds())))

	return c.JSON(http.StatusOK, buildMeResponse(user))
}
