package organizations

type CreateOrganizationPayload struct {
	Name string  `json:"name" mod:"trim" validate:"required,max=100"`
	Slug *string `json:"slug,omitempty" mod:"trim" validate:"omitempty,max=100"`
}

type ListOrganizationsQuery struct {
	Limit  int `query:"limit" json:"limit,omitempty" default:"10" validate:"min=1,max=100"`
	Offset int `query:"offset" json:"offset,omitempty" validate:"min=0"`
}

type UpdateOrganizationPayload struct {
	Name *string `json:"name,omitempty" mod:"trim" validate:"omitempty,min=1,max=100"`
	Slug *string `json:"slug,omitempty" mod:"trim" validate:"omitempty,min=1,max=100"`
}
