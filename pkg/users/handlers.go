package users

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/learnmap/learnmap/pkg/auth"
	"github.com/learnmap/learnmap/pkg/errcodes"
	"github.com/learnmap/learnmap/pkg/models"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/pointerutil"
)

type handler struct {
	userService *Service
}

func (h *handler) create(c echo.Context) error {
	ctx := c.Request().Context()

	params := CreateUserPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	user, err := h.userService.CreateUser(ctx, CreateUserOptions{
		Username: params.Username,
		Email:    params.Email,
		Password: params.Password,
		Role:     params.Role,
		Access: OrganizationAccess{
			All:    params.AllOrganizations,
			OrgIDs: params.OrgIDs,
		},
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusCreated, user))
}

func (h *handler) retrieve(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := userIDParam(c)
	if err != nil {
		return err
	}

	user, err := h.userService.RetrieveUser(ctx, id)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, user))
}

func (h *handler) list(c echo.Context) error {
	ctx := c.Request().Context()

	params := ListUsersQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	users, total, err := h.userService.ListUsersWithTotal(ctx, ListUsersOptions{
		Limit:  pointerutil.Int(params.Limit),
		Offset: pointerutil.Int(params.Offset),
	})
	if err != nil {
		return errors.WithStack(err)
	}

	resp := struct {
		Users []*models.User `json:"users"`
		Total int            `json:"total"`
	}{users, total}

	return errors.WithStack(c.JSON(http.StatusOK, resp))
}

func (h *handler) update(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := userIDParam(c)
	if err != nil {
		return err
	}

	params := UpdateUserPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	user, err := h.userService.RetrieveUser(ctx, id)
	if err != nil {
		return errors.WithStack(err)
	}

	current := auth.UserFromContext(c)
	if current != nil && current.ID == id && params.IsActive != nil && !*params.IsActive {
		return errcodes.ValidationError("You can't deactivate your own account.")
	}

	opts := UpdateUserOptions{Columns: []string{}}

	if params.Username != nil && *params.Username != user.Username {
		user.Username = *params.Username
		opts.Columns = append(opts.Columns, "username")
	}
	if params.Email != nil {
		user.Email = emptyToNil(params.Email)
		opts.Columns = append(opts.Columns, "email")
	}
	if params.Role != nil && (user.Role == nil || *params.Role != user.Role.Name) {
		opts.Role = params.Role
	}
	if params.IsActive != nil && *params.IsActive != user.IsActive {
		user.IsActive = *params.IsActive
		opts.Columns = append(opts.Columns, "is_active")
	}
	if params.OrgIDs != nil || params.AllOrganizations != nil {
		access := OrganizationAccess{}
		if params.AllOrganizations != nil && *params.AllOrganizations {
			access.All = true
		} else if params.OrgIDs != nil {
			access.OrgIDs = *params.OrgIDs
		}
		opts.Access = &access
	}

	err = h.userService.UpdateUser(ctx, user, opts)
	if err != nil {
		return errors.WithStack(err)
	}

	user, err = h.userService.RetrieveUser(ctx, id)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, user))
}

func (h *handler) resetPassword(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := userIDParam(c)
	if err != nil {
		return err
	}

	params := ResetPasswordPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	current := auth.UserFromContext(c)
	if current == nil {
		return errcodes.Unauthorized("Authentication required")
	}

	if current.ID == id {
		if params.CurrentPassword == nil || *params.CurrentPassword == "" {
			return errcodes.ValidationError("Current password is required when resetting your own password.")
		}

		valid, err := h.userService.VerifyPassword(ctx, id, *params.CurrentPassword)
		if err != nil {
			return errors.WithStack(err)
		}
		if !valid {
			return errcodes.ValidationError("Current password is incorrect.")
		}
	} else if !current.HasPermission(models.ResourceUsers, models.OperationWrite) {
		return errcodes.Forbidden("You don't have permission to reset other users' passwords.")
	}

	err = h.userService.ResetPassword(ctx, id, params.NewPassword)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, map[string]string{"message": "Password reset successfully"}))
}

func (h *handler) deactivate(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := userIDParam(c)
	if err != nil {
		return err
	}

	if current := auth.UserFromContext(c); current != nil && current.ID == id {
		return errcodes.ValidationError("You can't deactivate your own account.")
	}

	err = h.userService.DeactivateUser(ctx, id)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.NoContent(http.StatusNoContent))
}

func userIDParam(c echo.Context) (int, error) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return 0, errcodes.NotFound("User")
	}
	return id, nil
}
