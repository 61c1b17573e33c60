package organizations

import (
	"github.com/labstack/echo/v4"
	"github.com/learnmap/learnmap/pkg/auth"
	"github.com/learnmap/learnmap/pkg/models"
	"github.com/uptrace/bun"
)

// RegisterRoutesWithGroup registers organization routes on a group that
// already requires authentication.
func RegisterRoutesWithGroup(g *echo.Group, db *bun.DB, authMiddleware *auth.Middleware) {
	organizationService := NewService(db)

	h := &handler{
		organizationService: organizationService,
	}

	write := authMiddleware.RequirePermission(models.ResourceOrganizations, models.OperationWrite)
	access := authMiddleware.RequireOrganizationAccess("id")

	// Any authenticated user may see the organizations they have access to.
	g.GET("", h.list)
	g.POST("", h.create, write)
	g.GET("/:id", h.retrieve, access)
	g.PATCH("/:id", h.update, write, access)
}
