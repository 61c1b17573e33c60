package courses

type ListCoursesQuery struct {
	Limit  int  `query:"limit" json:"limit,omitempty" default:"20" validate:"min=1,max=100"`
	Offset int  `query:"offset" json:"offset,omitempty" validate:"min=0"`
	OrgID  *int `query:"org_id" json:"org_id,omitempty" validate:"omitempty,min=1"`
}

type CreateCoursePayload struct {
	OrgID       int     `json:"org_id" validate:"required,min=1"`
	Name        string  `json:"name" mod:"trim" validate:"required,max=200"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=5000"`
	Public      bool    `json:"public"`
}

type UpdateCoursePayload struct {
	Name        *string `json:"name,omitempty" mod:"trim" validate:"omitempty,min=1,max=200"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=5000"`
	Public      *bool   `json:"public,omitempty"`
}
