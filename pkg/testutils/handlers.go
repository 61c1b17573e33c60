package testutils

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/learnmap/learnmap/pkg/auth"
	"github.com/learnmap/learnmap/pkg/models"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

type handler struct {
	db *bun.DB
}

// createUserRequest is the request body for creating a test user.
type createUserRequest struct {
	Username string  `json:"username" validate:"required"`
	Password string  `json:"password" validate:"required"`
	Email    *string `json:"email"`
	Role     string  `json:"role" default:"admin" validate:"oneof=admin editor viewer"`
	// OrgIDs lists the organizations the user can access. Omitted means all.
	OrgIDs []int `json:"org_ids" validate:"omitempty,dive,min=1"`
}

// createUserResponse is the response body for creating a test user.
type createUserResponse struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
}

// createUser creates a test user with the requested role.
// POST /test/users.
func (h *handler) createUser(c echo.Context) error {
	ctx := c.Request().Context()

	var req createUserRequest
	if err := c.Bind(&req); err != nil {
		return errors.WithStack(err)
	}

	role := &models.Role{}
	err := h.db.NewSelect().
		Model(role).
		Where("name = ?", req.Role).
		Scan(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get role")
	}

	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		return errors.Wrap(err, "failed to hash password")
	}

	now := time.Now()
	user := &models.User{
		CreatedAt:    now,
		UpdatedAt:    now,
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hashedPassword,
		RoleID:       role.ID,
		IsActive:     true,
	}

	err = h.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(user).Exec(ctx); err != nil {
			return errors.Wrap(err, "failed to create user")
		}

		access := []*models.UserOrganizationAccess{{UserID: user.ID}}
		if req.OrgIDs != nil {
			access = make([]*models.UserOrganizationAccess, 0, len(req.OrgIDs))
			for _, orgID := range req.OrgIDs {
				access = append(access, &models.UserOrganizationAccess{UserID: user.ID, OrgID: &orgID})
			}
		}
		if len(access) == 0 {
			return nil
		}
		if _, err := tx.NewInsert().Model(&access).Exec(ctx); err != nil {
			return errors.Wrap(err, "failed to grant organization access")
		}
		return nil
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, createUserResponse{
		ID:       user.ID,
		Username: user.Username,
	})
}

// deleteCountResponse is the response body for the bulk delete endpoints.
type deleteCountResponse struct {
	Deleted int `json:"deleted"`
}

// deleteAllUsers deletes all users from the database.
// DELETE /test/users.
func (h *handler) deleteAllUsers(c echo.Context) error {
	ctx := c.Request().Context()

	// Delete organization access first (foreign key constraint)
	_, err := h.db.NewDelete().
		Model((*models.UserOrganizationAccess)(nil)).
		Where("1=1").
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to delete organization access")
	}

	result, err := h.db.NewDelete().
		Model((*models.User)(nil)).
		Where("1=1").
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to delete users")
	}

	deleted, _ := result.RowsAffected()

	return c.JSON(http.StatusOK, deleteCountResponse{
		Deleted: int(deleted),
	})
}

// deleteAllContent deletes every organization along with its courses,
// chapters and chapter edges.
// DELETE /test/content.
func (h *handler) deleteAllContent(c echo.Context) error {
	ctx := c.Request().Context()

	var deleted int64
	err := h.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		tables := []interface{}{
			(*models.ChapterEdge)(nil),
			(*models.Chapter)(nil),
			(*models.Course)(nil),
			(*models.Organization)(nil),
		}
		for _, model := range tables {
			result, err := tx.NewDelete().Model(model).Where("1=1").Exec(ctx)
			if err != nil {
				return errors.WithStack(err)
			}
			n, _ := result.RowsAffected()
			deleted += n
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "failed to delete content")
	}

	return c.JSON(http.StatusOK, deleteCountResponse{
		Deleted: int(deleted),
	})
}
