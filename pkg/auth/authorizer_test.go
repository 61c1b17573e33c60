package auth

import (
	"context"
	"testing"

	"github.com/learnmap/learnmap/pkg/errcodes"
	"github.com/learnmap/learnmap/pkg/models"
	"github.com/stretchr/testify/assert"
)

func userWithRole(id int, orgIDs []int, perms ...string) *models.User {
	role := &models.Role{Name: "custom"}
	for i := 0; i+1 < len(perms); i += 2 {
		role.Permissions = append(role.Permissions, &models.Permission{Resource: perms[i], Operation: perms[i+1]})
	}
	u := &models.User{ID: id, Role: role, IsActive: true}
	if orgIDs == nil {
		u.OrganizationAccess = []*models.UserOrganizationAccess{{UserID: id}}
	}
	for _, orgID := range orgIDs {
		u.OrganizationAccess = append(u.OrganizationAccess, &models.UserOrganizationAccess{UserID: id, OrgID: &orgID})
	}
	return u
}

func TestAuthorizer_CheckAccess(t *testing.T) {
	t.Parallel()

	authorID := 1
	private := &models.Course{ID: 10, OrgID: 5, AuthorID: &authorID}
	public := &models.Course{ID: 11, OrgID: 5, Public: true}

	author := userWithRole(1, []int{})
	viewer := userWithRole(2, nil, models.ResourceCourses, models.OperationRead)
	editor := userWithRole(3, []int{5}, models.ResourceCourses, models.OperationRead, models.ResourceCourses, models.OperationWrite)
	outsider := userWithRole(4, []int{6}, models.ResourceCourses, models.OperationRead, models.ResourceCourses, models.OperationWrite)

	cases := []struct {
		name   string
		user   *models.User
		course *models.Course
		action Action
		code   string
	}{
		{"anonymous reads public course", nil, public, ActionRead, ""},
		{"anonymous reads private course", nil, private, ActionRead, "unauthorized"},
		{"anonymous updates public course", nil, public, ActionUpdate, "unauthorized"},
		{"author without permissions updates own course", author, private, ActionUpdate, ""},
		{"author deletes own course", author, private, ActionDelete, ""},
		{"viewer reads private course", viewer, private, ActionRead, ""},
		{"viewer updates course", viewer, private, ActionUpdate, "forbidden"},
		{"editor in organization updates course", editor, private, ActionUpdate, ""},
		{"editor outside organization updates course", outsider, private, ActionUpdate, "forbidden"},
		{"editor outside organization reads private course", outsider, private, ActionRead, "forbidden"},
		{"author check needs a persisted course", author, &models.Course{OrgID: 5, AuthorID: &authorID}, ActionCreate, "forbidden"},
	}

	a := NewAuthorizer()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := a.CheckAccess(context.Background(), tc.user, tc.course, tc.action)
			if tc.code == "" {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errcodes.HasCode(err, tc.code), "got %v", err)
		})
	}
}
