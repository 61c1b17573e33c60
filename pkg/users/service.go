package users

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/learnmap/learnmap/pkg/auth"
	"github.com/learnmap/learnmap/pkg/errcodes"
	"github.com/learnmap/learnmap/pkg/models"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

// Service handles user management.
type Service struct {
	db *bun.DB
}

// NewService creates a new users service.
func NewService(db *bun.DB) *Service {
	return &Service{db: db}
}

// OrganizationAccess describes which organizations a user can reach. All
// takes precedence over OrgIDs.
type OrganizationAccess struct {
	All    bool
	OrgIDs []int
}

// CreateUserOptions contains options for creating a user.
type CreateUserOptions struct {
	Username string
	Email    *string
	Password string
	Role     string
	Access   OrganizationAccess
}

type ListUsersOptions struct {
	Limit  *int
	Offset *int

	includeTotal bool
}

// UpdateUserOptions contains options for updating a user. Role and Access are
// only applied when non-nil.
type UpdateUserOptions struct {
	Columns []string
	Role    *string
	Access  *OrganizationAccess
}

// CreateUser creates an active user with the given role and organization
// access.
func (svc *Service) CreateUser(ctx context.Context, opts CreateUserOptions) (*models.User, error) {
	hashedPassword, err := auth.HashPassword(opts.Password)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	user := &models.User{
		CreatedAt:    now,
		UpdatedAt:    now,
		Username:     opts.Username,
		Email:        emptyToNil(opts.Email),
		PasswordHash: hashedPassword,
		IsActive:     true,
	}

	err = svc.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		roleID, err := roleIDByName(ctx, tx, opts.Role)
		if err != nil {
			return err
		}
		user.RoleID = roleID

		if _, err := tx.NewInsert().Model(user).Exec(ctx); err != nil {
			if strings.Contains(err.Error(), "UNIQUE constraint") {
				return errcodes.Conflict("A user with this username already exists.")
			}
			return errors.WithStack(err)
		}

		return replaceAccess(ctx, tx, user.ID, opts.Access)
	})
	if err != nil {
		return nil, err
	}

	return svc.RetrieveUser(ctx, user.ID)
}

// RetrieveUser returns a user with role, permissions and organization access
// loaded. Inactive users are returned too.
func (svc *Service) RetrieveUser(ctx context.Context, id int) (*models.User, error) {
	user := &models.User{}
	err := svc.db.NewSelect().
		Model(user).
		Relation("Role").
		Relation("Role.Permissions").
		Relation("OrganizationAccess").
		Where("u.id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("User")
		}
		return nil, errors.WithStack(err)
	}
	return user, nil
}

func (svc *Service) ListUsers(ctx context.Context, opts ListUsersOptions) ([]*models.User, error) {
	u, _, err := svc.listUsersWithTotal(ctx, opts)
	return u, errors.WithStack(err)
}

func (svc *Service) ListUsersWithTotal(ctx context.Context, opts ListUsersOptions) ([]*models.User, int, error) {
	opts.includeTotal = true
	return svc.listUsersWithTotal(ctx, opts)
}

func (svc *Service) listUsersWithTotal(ctx context.Context, opts ListUsersOptions) ([]*models.User, int, error) {
	var users []*models.User
	var total int
	var err error

	q := svc.db.
		NewSelect().
		Model(&users).
		Relation("Role").
		Relation("OrganizationAccess").
		Order("u.id ASC")

	if opts.Limit != nil {
		q = q.Limit(*opts.Limit)
	}
	if opts.Offset != nil {
		q = q.Offset(*opts.Offset)
	}

	if opts.includeTotal {
		total, err = q.ScanAndCount(ctx)
	} else {
		err = q.Scan(ctx)
	}
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}

	return users, total, nil
}

// UpdateUser writes the given columns and, when requested, replaces the
// user's role and organization access. Everything happens in one
// transaction.
func (svc *Service) UpdateUser(ctx context.Context, user *models.User, opts UpdateUserOptions) error {
	if len(opts.Columns) == 0 && opts.Role == nil && opts.Access == nil {
		return nil
	}

	return svc.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		columns := opts.Columns
		if opts.Role != nil {
			roleID, err := roleIDByName(ctx, tx, *opts.Role)
			if err != nil {
				return err
			}
			user.RoleID = roleID
			columns = append(columns, "role_id")
		}

		if len(columns) > 0 {
			user.UpdatedAt = time.Now()
			columns = append(columns, "updated_at")
			_, err := tx.NewUpdate().
				Model(user).
				Column(columns...).
				WherePK().
				Exec(ctx)
			if err != nil {
				if strings.Contains(err.Error(), "UNIQUE constraint") {
					return errcodes.Conflict("A user with this username already exists.")
				}
				return errors.WithStack(err)
			}
		}

		if opts.Access != nil {
			return replaceAccess(ctx, tx, user.ID, *opts.Access)
		}
		return nil
	})
}

// ResetPassword replaces a user's password.
func (svc *Service) ResetPassword(ctx context.Context, userID int, newPassword string) error {
	hashedPassword, err := auth.HashPassword(newPassword)
	if err != nil {
		return err
	}

	res, err := svc.db.NewUpdate().
		Model((*models.User)(nil)).
		Set("password_hash = ?", hashedPassword).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", userID).
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errcodes.NotFound("User")
	}

	return nil
}

// VerifyPassword checks if the password is correct for a user.
func (svc *Service) VerifyPassword(ctx context.Context, userID int, password string) (bool, error) {
	user := &models.User{}
	err := svc.db.NewSelect().
		Model(user).
		Column("password_hash").
		Where("id = ?", userID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, errcodes.NotFound("User")
		}
		return false, errors.WithStack(err)
	}

	return auth.CheckPassword(password, user.PasswordHash), nil
}

// DeactivateUser marks a user inactive. Their courses keep them as author.
func (svc *Service) DeactivateUser(ctx context.Context, userID int) error {
	res, err := svc.db.NewUpdate().
		Model((*models.User)(nil)).
		Set("is_active = ?", false).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", userID).
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errcodes.NotFound("User")
	}
	return nil
}

func roleIDByName(ctx context.Context, db bun.IDB, name string) (int, error) {
	role := &models.Role{}
	err := db.NewSelect().
		Model(role).
		Column("id").
		Where("name = ?", name).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, errcodes.ValidationError("Invalid role.")
		}
		return 0, errors.WithStack(err)
	}
	return role.ID, nil
}

// replaceAccess swaps the user's organization access rows. Every named
// organization must exist.
func replaceAccess(ctx context.Context, db bun.IDB, userID int, access OrganizationAccess) error {
	_, err := db.NewDelete().
		Model((*models.UserOrganizationAccess)(nil)).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	rows := []*models.UserOrganizationAccess{}
	if access.All {
		rows = append(rows, &models.UserOrganizationAccess{UserID: userID})
	} else {
		if len(access.OrgIDs) > 0 {
			count, err := db.NewSelect().
				Model((*models.Organization)(nil)).
				Where("id IN (?)", bun.In(access.OrgIDs)).
				Count(ctx)
			if err != nil {
				return errors.WithStack(err)
			}
			if count != len(access.OrgIDs) {
				return errcodes.NotFound("Organization")
			}
		}
		for _, orgID := range access.OrgIDs {
			rows = append(rows, &models.UserOrganizationAccess{UserID: userID, OrgID: &orgID})
		}
	}

	if len(rows) == 0 {
		return nil
	}
	_, err = db.NewInsert().Model(&rows).Exec(ctx)
	return errors.WithStack(err)
}

func emptyToNil(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
