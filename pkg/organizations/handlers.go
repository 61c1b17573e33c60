package organizations

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/learnmap/learnmap/pkg/auth"
	"github.com/learnmap/learnmap/pkg/errcodes"
	"github.com/learnmap/learnmap/pkg/models"
	"github.com/pkg/errors"
)

type handler struct {
	organizationService *Service
}

func (h *handler) create(c echo.Context) error {
	ctx := c.Request().Context()

	// Bind params.
	params := CreateOrganizationPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	org := &models.Organization{
		Name: params.Name,
	}
	if params.Slug != nil {
		org.Slug = *params.Slug
	}

	err := h.organizationService.CreateOrganization(ctx, org)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusCreated, org))
}

func (h *handler) retrieve(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Organization")
	}

	org, err := h.organizationService.RetrieveOrganization(ctx, RetrieveOrganizationOptions{
		ID: &id,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, org))
}

func (h *handler) list(c echo.Context) error {
	ctx := c.Request().Context()

	// Bind params.
	params := ListOrganizationsQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	opts := ListOrganizationsOptions{
		Limit:  &params.Limit,
		Offset: &params.Offset,
	}

	// Filter by the user's organization access.
	if user := auth.UserFromContext(c); user != nil {
		opts.IDs = user.GetAccessibleOrganizationIDs()
	}

	orgs, total, err := h.organizationService.ListOrganizationsWithTotal(ctx, opts)
	if err != nil {
		return errors.WithStack(err)
	}

	resp := struct {
		Organizations []*models.Organization `json:"organizations"`
		Total         int                    `json:"total"`
	}{orgs, total}

	return errors.WithStack(c.JSON(http.StatusOK, resp))
}

func (h *handler) update(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Organization")
	}

	// Bind params.
	params := UpdateOrganizationPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	// Fetch the organization.
	org, err := h.organizationService.RetrieveOrganization(ctx, RetrieveOrganizationOptions{
		ID: &id,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	// Keep track of what's been changed.
	opts := UpdateOrganizationOptions{Columns: []string{}}

	if params.Name != nil && *params.Name != org.Name {
		org.Name = *params.Name
		opts.Columns = append(opts.Columns, "name")
	}
	if params.Slug != nil && *params.Slug != org.Slug {
		org.Slug = *params.Slug
		opts.Columns = append(opts.Columns, "slug")
	}

	// Update the model.
	err = h.organizationService.UpdateOrganization(ctx, org, opts)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, org))
}
