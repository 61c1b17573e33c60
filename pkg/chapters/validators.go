package chapters

type CreateChapterPayload struct {
	Name           string  `json:"name" mod:"trim" validate:"required,max=200"`
	Description    *string `json:"description,omitempty" validate:"omitempty,max=5000"`
	ThumbnailImage *string `json:"thumbnail_image,omitempty" mod:"trim" validate:"omitempty,url"`
	// PredecessorIDs are the chapters that must come before the new one.
	PredecessorIDs []int `json:"predecessor_ids,omitempty" validate:"omitempty,max=100,unique,dive,min=1"`
}

type UpdateChapterPayload struct {
	Name           *string `json:"name,omitempty" mod:"trim" validate:"omitempty,min=1,max=200"`
	Description    *string `json:"description,omitempty" validate:"omitempty,max=5000"`
	ThumbnailImage *string `json:"thumbnail_image,omitempty" mod:"trim" validate:"omitempty,url"`
}

// SetEdgePayload adds or removes the edge that makes FromChapterID a
// predecessor of ToChapterID.
type SetEdgePayload struct {
	FromChapterID int  `json:"from_chapter_id" validate:"required,min=1"`
	ToChapterID   int  `json:"to_chapter_id" validate:"required,min=1"`
	Delete        bool `json:"delete"`
}
