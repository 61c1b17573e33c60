package models

import (
	"time"

	"github.com/uptrace/bun"
)

type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID           int       `bun:",pk,nullzero" json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Username     string    `bun:",nullzero" json:"username"`
	Email        *string   `json:"email,omitempty"`
	PasswordHash string    `json:"-"` // Never expose password hash
	RoleID       int       `json:"role_id"`
	IsActive     bool      `json:"is_active"`

	// Relations
	Role               *Role                     `bun:"rel:belongs-to,join:role_id=id" json:"role,omitempty"`
	OrganizationAccess []*UserOrganizationAccess `bun:"rel:has-many,join:id=user_id" json:"organization_access,omitempty"`
}

// HasPermission checks if the user has a specific permission.
func (u *User) HasPermission(resource, operation string) bool {
	if u.Role == nil {
		return false
	}
	return u.Role.HasPermission(resource, operation)
}

// HasOrganizationAccess checks if the user can access a specific organization.
// Returns true if user has access to all organizations (null org_id entry)
// or has explicit access to the specified organization.
func (u *User) HasOrganizationAccess(orgID int) bool {
	for _, access := range u.OrganizationAccess {
		// null org_id means access to all organizations
		if access.OrgID == nil {
			return true
		}
		if *access.OrgID == orgID {
			return true
		}
	}
	return false
}

// GetAccessibleOrganizationIDs returns the list of organization IDs the user
// can access. Returns nil if user has access to all organizations.
func (u *User) GetAccessibleOrganizationIDs() []int {
	ids := make([]int, 0, len(u.OrganizationAccess))
	for _, access := range u.OrganizationAccess {
		if access.OrgID == nil {
			return nil
		}
		ids = append(ids, *access.OrgID)
	}
	return ids
}

type UserOrganizationAccess struct {
	bun.BaseModel `bun:"table:user_organization_access,alias:uoa"`

	ID     int  `bun:",pk,nullzero" json:"id"`
	UserID int  `json:"user_id"`
	OrgID  *int `json:"org_id"` // null means access to all organizations
}
