package roles

import (
	"github.com/labstack/echo/v4"
	"github.com/learnmap/learnmap/pkg/auth"
	"github.com/learnmap/learnmap/pkg/models"
	"github.com/uptrace/bun"
)

// RegisterRoutesWithGroup registers the role catalog on a group that already
// runs the Authenticate middleware. Roles are part of user management, so
// reading them needs users:read.
func RegisterRoutesWithGroup(g *echo.Group, db *bun.DB, authMiddleware *auth.Middleware) {
	h := &handler{
		roleService: NewService(db),
	}

	read := authMiddleware.RequirePermission(models.ResourceUsers, models.OperationRead)

	g.GET("", h.list, read)
	g.GET("/:id", h.retrieve, read)
}
