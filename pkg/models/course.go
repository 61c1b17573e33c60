package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Course struct {
	bun.BaseModel `bun:"table:courses,alias:c"`

	ID          int       `bun:",pk,nullzero" json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	CourseUUID  string    `bun:",nullzero" json:"course_uuid"`
	OrgID       int       `json:"org_id"`
	AuthorID    *int      `json:"author_id"`
	Name        string    `bun:",nullzero" json:"name"`
	Description *string   `json:"description"`
	Public      bool      `json:"public"`

	// Relations
	Organization *Organization `bun:"rel:belongs-to,join:org_id=id" json:"-"`
}

// IsAuthoredBy reports whether the user with the given ID authored the course.
func (c *Course) IsAuthoredBy(userID int) bool {
	return c.AuthorID != nil && *c.AuthorID == userID
}
