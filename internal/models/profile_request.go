package models

// UpdateProfileRequest edits the caller's own profile. Role and email are
// managed by the auth flow and are not editable here.
type UpdateProfileRequest struct {
	FullName  *string `json:"full_name" validate:"omitempty,max=200"`
	AvatarURL *string `json:"avatar_url" validate:"omitempty,url,max=500"`

	PhoneNumber           *string `json:"phone_number" validate:"omitempty,max=30"`
	County                *string `json:"county" validate:"omitempty,max=100"`
	TeachingCouncilNumber *string `json:"teaching_council_number" validate:"omitempty,max=50"`

	SchoolName    *string `json:"school_name" validate:"omitempty,max=200"`
	SchoolAddress *string `json:"school_address" validate:"omitempty,max=500"`
}
