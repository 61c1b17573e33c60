package chapters

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/learnmap/learnmap/pkg/auth"
	"github.com/learnmap/learnmap/pkg/chaptergraph"
	"github.com/learnmap/learnmap/pkg/courses"
	"github.com/learnmap/learnmap/pkg/errcodes"
	"github.com/learnmap/learnmap/pkg/models"
	"github.com/pkg/errors"
)

type handler struct {
	chapterService *Service
	courseService  *courses.Service
	authorizer     *auth.Authorizer
}

func (h *handler) list(c echo.Context) error {
	ctx := c.Request().Context()

	course, err := courses.LoadAuthorized(c, h.courseService, h.authorizer, auth.ActionRead)
	if err != nil {
		return err
	}

	chapters, err := h.chapterService.ListChapters(ctx, ListChaptersOptions{CourseID: course.ID})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, echo.Map{
		"chapters": chapters,
	}))
}

func (h *handler) create(c echo.Context) error {
	ctx := c.Request().Context()

	// Bind params.
	params := CreateChapterPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	course, err := courses.LoadAuthorized(c, h.courseService, h.authorizer, auth.ActionUpdate)
	if err != nil {
		return err
	}

	chapter := &models.Chapter{
		OrgID:          course.OrgID,
		CourseID:       course.ID,
		Name:           params.Name,
		Description:    params.Description,
		ThumbnailImage: emptyToNil(params.ThumbnailImage),
	}

	err = h.chapterService.CreateChapter(ctx, chapter, CreateChapterOptions{
		PredecessorIDs: params.PredecessorIDs,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusCreated, chapter))
}

func (h *handler) graph(c echo.Context) error {
	ctx := c.Request().Context()

	course, err := courses.LoadAuthorized(c, h.courseService, h.authorizer, auth.ActionRead)
	if err != nil {
		return err
	}

	graph, err := h.chapterService.Graph(ctx, course.ID)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, graph))
}

func (h *handler) setEdge(c echo.Context) error {
	ctx := c.Request().Context()

	// Bind params.
	params := SetEdgePayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	course, err := courses.LoadAuthorized(c, h.courseService, h.authorizer, auth.ActionUpdate)
	if err != nil {
		return err
	}

	err = h.chapterService.SetEdge(ctx, chaptergraph.SetEdgeOptions{
		CourseID:      course.ID,
		FromChapterID: params.FromChapterID,
		ToChapterID:   params.ToChapterID,
		Delete:        params.Delete,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	// Return the dependent chapter so the caller sees its new predecessors.
	chapter, err := h.chapterService.RetrieveChapter(ctx, RetrieveChapterOptions{ID: &params.ToChapterID})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, chapter))
}

// loadChapter loads the chapter named by the :id route parameter and checks
// that the user may perform action on its course.
func (h *handler) loadChapter(c echo.Context, action auth.Action) (*models.Chapter, error) {
	ctx := c.Request().Context()

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return nil, errcodes.NotFound("Chapter")
	}

	chapter, err := h.chapterService.RetrieveChapter(ctx, RetrieveChapterOptions{ID: &id})
	if err != nil {
		return nil, errors.WithStack(err)
	}

	course, err := h.courseService.RetrieveCourse(ctx, courses.RetrieveCourseOptions{ID: &chapter.CourseID})
	if err != nil {
		return nil, errors.WithStack(err)
	}

	if err := h.authorizer.CheckAccess(ctx, auth.UserFromContext(c), course, action); err != nil {
		return nil, err
	}

	return chapter, nil
}

func (h *handler) retrieve(c echo.Context) error {
	chapter, err := h.loadChapter(c, auth.ActionRead)
	if err != nil {
		return err
	}

	return errors.WithStack(c.JSON(http.StatusOK, chapter))
}

func (h *handler) update(c echo.Context) error {
	ctx := c.Request().Context()

	// Bind params.
	params := UpdateChapterPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	chapter, err := h.loadChapter(c, auth.ActionUpdate)
	if err != nil {
		return err
	}

	// Keep track of what's been changed.
	opts := UpdateChapterOptions{Columns: []string{}}

	if params.Name != nil && *params.Name != chapter.Name {
		chapter.Name = *params.Name
		opts.Columns = append(opts.Columns, "name")
	}
	if params.Description != nil {
		chapter.Description = emptyToNil(params.Description)
		opts.Columns = append(opts.Columns, "description")
	}
	if params.ThumbnailImage != nil {
		chapter.ThumbnailImage = emptyToNil(params.ThumbnailImage)
		opts.Columns = append(opts.Columns, "thumbnail_image")
	}

	// Update the model.
	err = h.chapterService.UpdateChapter(ctx, chapter, opts)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, chapter))
}

func (h *handler) delete(c echo.Context) error {
	ctx := c.Request().Context()

	chapter, err := h.loadChapter(c, auth.ActionUpdate)
	if err != nil {
		return err
	}

	err = h.chapterService.DeleteChapter(ctx, chapter.ID)
	if err != nil {
		return errors.WithStack(err)
	}

	return c.NoContent(http.StatusNoContent)
}

func emptyToNil(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
