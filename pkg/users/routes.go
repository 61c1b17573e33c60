package users

import (
	"github.com/labstack/echo/v4"
	"github.com/learnmap/learnmap/pkg/auth"
	"github.com/learnmap/learnmap/pkg/models"
	"github.com/uptrace/bun"
)

// RegisterRoutesWithGroup registers user management routes on a group that
// already runs the Authenticate middleware.
func RegisterRoutesWithGroup(g *echo.Group, db *bun.DB, authMiddleware *auth.Middleware) {
	h := &handler{
		userService: NewService(db),
	}

	read := authMiddleware.RequirePermission(models.ResourceUsers, models.OperationRead)
	write := authMiddleware.RequirePermission(models.ResourceUsers, models.OperationWrite)

	g.GET("", h.list, read)
	g.GET("/:id", h.retrieve, read)
	g.POST("", h.create, write)
	g.PATCH("/:id", h.update, write)
	g.DELETE("/:id", h.deactivate, write)

	// Users may reset their own password. Resetting someone else's requires
	// users:write, which the handler checks.
	g.POST("/:id/reset-password", h.resetPassword)
}
