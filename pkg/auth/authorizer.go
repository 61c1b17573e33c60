package auth

import (
	"context"

	"github.com/learnmap/learnmap/pkg/errcodes"
	"github.com/learnmap/learnmap/pkg/models"
	"github.com/robinjoseph08/golib/logger"
)

// Action is something a user wants to do with a course or its chapters.
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

func (a Action) operation() string {
	if a == ActionRead {
		return models.OperationRead
	}
	return models.OperationWrite
}

// Authorizer decides whether a user may act on a course.
type Authorizer struct{}

func NewAuthorizer() *Authorizer {
	return &Authorizer{}
}

// CheckAccess returns nil when user may perform action on course, and an
// Unauthorized or Forbidden error otherwise. user is nil for anonymous
// requests.
//
// Public courses can be read by anyone. The author of a course may always act
// on it. Everyone else needs the matching courses permission and access to
// the course's organization.
func (a *Authorizer) CheckAccess(ctx context.Context, user *models.User, course *models.Course, action Action) error {
	if action == ActionRead && course.Public {
		return nil
	}
	if user == nil {
		return errcodes.Unauthorized("Authentication required")
	}
	if course.ID != 0 && course.IsAuthoredBy(user.ID) {
		return nil
	}

	log := logger.FromContext(ctx)
	if !user.HasPermission(models.ResourceCourses, action.operation()) {
		log.Debug("course access denied by role", logger.Data{"user_id": user.ID, "course_id": course.ID, "action": string(action)})
		return errcodes.Forbidden("You don't have permission to " + string(action) + " this course")
	}
	if !user.HasOrganizationAccess(course.OrgID) {
		log.Debug("course access denied by organization", logger.Data{"user_id": user.ID, "org_id": course.OrgID, "action": string(action)})
		return errcodes.Forbidden("You don't have access to this organization")
	}
	return nil
}
