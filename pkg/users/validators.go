package users

// CreateUserPayload represents the request body for creating a user.
type CreateUserPayload struct {
	Username string  `json:"username" mod:"trim" validate:"required,min=3,max=50"`
	Email    *string `json:"email" mod:"trim" validate:"omitempty,email"`
	Password string  `json:"password" validate:"required,min=8"`
	Role     string  `json:"role" validate:"required,oneof=admin editor viewer"`
	// OrgIDs lists the organizations the user can access. Ignored when
	// AllOrganizations is set.
	OrgIDs           []int `json:"org_ids" validate:"omitempty,max=100,unique,dive,min=1"`
	AllOrganizations bool  `json:"all_organizations"`
}

// UpdateUserPayload represents the request body for updating a user.
type UpdateUserPayload struct {
	Username         *string `json:"username" mod:"trim" validate:"omitempty,min=3,max=50"`
	Email            *string `json:"email" mod:"trim" validate:"omitempty,email"`
	Role             *string `json:"role" validate:"omitempty,oneof=admin editor viewer"`
	IsActive         *bool   `json:"is_active"`
	OrgIDs           *[]int  `json:"org_ids" validate:"omitempty,max=100,unique,dive,min=1"`
	AllOrganizations *bool   `json:"all_organizations"`
}

// ResetPasswordPayload represents the request body for resetting a password.
type ResetPasswordPayload struct {
	// CurrentPassword is required when users reset their own password.
	CurrentPassword *string `json:"current_password"`
	NewPassword     string  `json:"new_password" validate:"required,min=8"`
}

// ListUsersQuery represents the query parameters for listing users.
type ListUsersQuery struct {
	Limit  int `query:"limit" json:"limit,omitempty" default:"50" validate:"min=1,max=100"`
	Offset int `query:"offset" json:"offset,omitempty" validate:"min=0"`
}
