package courses

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/learnmap/learnmap/pkg/auth"
	"github.com/learnmap/learnmap/pkg/models"
	"github.com/pkg/errors"
)

// LoadAuthorized loads the course named by the :uuid route parameter and
// checks that the requesting user may perform action on it.
func LoadAuthorized(c echo.Context, svc *Service, authorizer *auth.Authorizer, action auth.Action) (*models.Course, error) {
	ctx := c.Request().Context()
	courseUUID := c.Param("uuid")

	course, err := svc.RetrieveCourse(ctx, RetrieveCourseOptions{UUID: &courseUUID})
	if err != nil {
		return nil, errors.WithStack(err)
	}

	if err := authorizer.CheckAccess(ctx, auth.UserFromContext(c), course, action); err != nil {
		return nil, err
	}

	return course, nil
}

type handler struct {
	courseService *Service
	authorizer    *auth.Authorizer
}

func (h *handler) list(c echo.Context) error {
	ctx := c.Request().Context()

	// Bind params.
	params := ListCoursesQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	opts := ListCoursesOptions{
		Limit:  &params.Limit,
		Offset: &params.Offset,
		OrgID:  params.OrgID,
	}

	// Anonymous users only see public courses. Everyone else sees the courses
	// of their organizations, plus public ones and the ones they wrote.
	user := auth.UserFromContext(c)
	switch {
	case user == nil:
		opts.PublicOnly = true
	case user.HasPermission(models.ResourceCourses, models.OperationRead):
		opts.OrganizationIDs = user.GetAccessibleOrganizationIDs()
		opts.IncludePublic = true
		opts.IncludeAuthorID = &user.ID
	default:
		opts.OrganizationIDs = []int{}
		opts.IncludePublic = true
		opts.IncludeAuthorID = &user.ID
	}

	courses, total, err := h.courseService.ListCoursesWithTotal(ctx, opts)
	if err != nil {
		return errors.WithStack(err)
	}

	resp := struct {
		Courses []*models.Course `json:"courses"`
		Total   int              `json:"total"`
	}{courses, total}

	return errors.WithStack(c.JSON(http.StatusOK, resp))
}

func (h *handler) create(c echo.Context) error {
	ctx := c.Request().Context()

	// Bind params.
	params := CreateCoursePayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	user := auth.UserFromContext(c)
	course := &models.Course{
		OrgID:       params.OrgID,
		Name:        params.Name,
		Description: params.Description,
		Public:      params.Public,
	}
	if err := h.authorizer.CheckAccess(ctx, user, course, auth.ActionCreate); err != nil {
		return err
	}
	course.AuthorID = &user.ID

	if err := h.courseService.CreateCourse(ctx, course); err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusCreated, course))
}

func (h *handler) retrieve(c echo.Context) error {
	course, err := LoadAuthorized(c, h.courseService, h.authorizer, auth.ActionRead)
	if err != nil {
		return err
	}

	return errors.WithStack(c.JSON(http.StatusOK, course))
}

func (h *handler) update(c echo.Context) error {
	ctx := c.Request().Context()

	// Bind params.
	params := UpdateCoursePayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	course, err := LoadAuthorized(c, h.courseService, h.authorizer, auth.ActionUpdate)
	if err != nil {
		return err
	}

	// Keep track of what's been changed.
	opts := UpdateCourseOptions{Columns: []string{}}

	if params.Name != nil && *params.Name != course.Name {
		course.Name = *params.Name
		opts.Columns = append(opts.Columns, "name")
	}
	if params.Description != nil {
		course.Description = params.Description
		if *params.Description == "" {
			course.Description = nil
		}
		opts.Columns = append(opts.Columns, "description")
	}
	if params.Public != nil && *params.Public != course.Public {
		course.Public = *params.Public
		opts.Columns = append(opts.Columns, "public")
	}

	// Update the model.
	err = h.courseService.UpdateCourse(ctx, course, opts)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, course))
}

func (h *handler) delete(c echo.Context) error {
	ctx := c.Request().Context()

	course, err := LoadAuthorized(c, h.courseService, h.authorizer, auth.ActionDelete)
	if err != nil {
		return err
	}

	err = h.courseService.DeleteCourse(ctx, course.ID)
	if err != nil {
		return errors.WithStack(err)
	}

	return c.NoContent(http.StatusNoContent)
}
