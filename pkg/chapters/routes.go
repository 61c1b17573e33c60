package chapters

import (
	"github.com/labstack/echo/v4"
	"github.com/learnmap/learnmap/pkg/auth"
	"github.com/learnmap/learnmap/pkg/chaptergraph"
	"github.com/learnmap/learnmap/pkg/courses"
	"github.com/uptrace/bun"
)

// RegisterRoutes registers the course-scoped chapter routes on coursesGroup
// and the chapter routes on chaptersGroup. Both groups authenticate
// optionally; the authorizer decides per course.
func RegisterRoutes(coursesGroup, chaptersGroup *echo.Group, db *bun.DB, engine *chaptergraph.Engine, authorizer *auth.Authorizer) {
	h := &handler{
		chapterService: NewService(db, engine),
		courseService:  courses.NewService(db),
		authorizer:     authorizer,
	}

	coursesGroup.GET("/:uuid/chapters", h.list)
	coursesGroup.POST("/:uuid/chapters", h.create)
	coursesGroup.GET("/:uuid/chapters/graph", h.graph)
	coursesGroup.PUT("/:uuid/chapters/edges", h.setEdge)

	chaptersGroup.GET("/:id", h.retrieve)
	chaptersGroup.PATCH("/:id", h.update)
	chaptersGroup.DELETE("/:id", h.delete)
}
