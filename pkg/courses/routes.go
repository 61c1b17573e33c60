package courses

import (
	"github.com/labstack/echo/v4"
	"github.com/learnmap/learnmap/pkg/auth"
	"github.com/uptrace/bun"
)

// RegisterRoutesWithGroup registers course routes. Authentication is
// optional on every route; the authorizer decides per course.
func RegisterRoutesWithGroup(g *echo.Group, db *bun.DB, authorizer *auth.Authorizer) {
	courseService := NewService(db)

	h := &handler{
		courseService: courseService,
		authorizer:    authorizer,
	}

	g.GET("", h.list)
	g.POST("", h.create)
	g.GET("/:uuid", h.retrieve)
	g.PATCH("/:uuid", h.update)
	g.DELETE("/:uuid", h.delete)
}
