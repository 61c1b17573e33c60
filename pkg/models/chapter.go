package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Chapter struct {
	bun.BaseModel `bun:"table:chapters,alias:ch"`

	ID             int       `bun:",pk,autoincrement" json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	ChapterUUID    string    `bun:",notnull" json:"chapter_uuid"`
	OrgID          int       `bun:",notnull" json:"org_id"`
	CourseID       int       `bun:",notnull" json:"course_id"`
	Name           string    `bun:",notnull" json:"name"`
	Description    *string   `json:"description"`
	ThumbnailImage *string   `json:"thumbnail_image"`

	// Predecessors holds the IDs of the chapters that directly precede this
	// one. It is projected from chapter_edges and never stored on the row.
	Predecessors []int `bun:"-" json:"predecessors"`

	// Relations
	Course *Course `bun:"rel:belongs-to,join:course_id=id" json:"-"`
}

// ChapterEdge is a directed dependency between two chapters of a course.
// ChapterID is the dependent chapter and PredecessorID must precede it.
type ChapterEdge struct {
	bun.BaseModel `bun:"table:chapter_edges,alias:ce"`

	CourseID      int       `bun:",pk" json:"course_id"`
	ChapterID     int       `bun:",pk" json:"chapter_id"`
	PredecessorID int       `bun:",pk" json:"predecessor_id"`
	CreatedAt     time.Time `bun:",nullzero,notnull,default:current_timestamp" json:"created_at"`
}
