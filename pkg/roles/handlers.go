package roles

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/learnmap/learnmap/pkg/errcodes"
	"github.com/learnmap/learnmap/pkg/models"
	"github.com/pkg/errors"
)

type handler struct {
	roleService *Service
}

func (h *handler) retrieve(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Role")
	}

	role, err := h.roleService.RetrieveRole(ctx, id)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, role))
}

func (h *handler) list(c echo.Context) error {
	ctx := c.Request().Context()

	roles, err := h.roleService.ListRoles(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	resp := struct {
		Roles []*models.Role `json:"roles"`
	}{roles}

	return errors.WithStack(c.JSON(http.StatusOK, resp))
}
