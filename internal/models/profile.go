package models

import "time"

// Profile mirrors a user account with marketplace-facing fields. The row is
// created lazily on first login and updated by the profile endpoints.
// Teacher-only and principal-only fields are nullable on the shared table.
type Profile struct {
	ID        string  `db:"id" json:"id"`
	Email     string  `db:"email" json:"email"`
	FullName  *string `db:"full_name" json:"full_name,omitempty"`
	AvatarURL *string `db:"avatar_url" json:"avatar_url,omitempty"`
	Role      string  `db:"role" json:"role"`

	// Teacher fields.
	PhoneNumber           *string `db:"phone_number" json:"phone_number,omitempty"`
	County                *string `db:"county" json:"county,omitempty"`
	TeachingCouncilNumber *string `db:"teaching_council_number" json:"teaching_council_number,omitempty"`
	QualificationsURL     *string `db:"qualifications_url" json:"qualifications_url,omitempty"`

	// Principal fields.
	SchoolName    *string `db:"school_name" json:"school_name,omitempty"`
	SchoolAddress *string `db:"school_address" json:"school_address,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// NormalizedRole returns the profile role trimmed and lowercased.
func (p *Profile) NormalizedRole() UserRole {
	return NormalizeRole(p.Role)
}

// ProfileFilter captures criteria for the teacher directory listing.
type ProfileFilter struct {
	Role     UserRole
	County   string
	Search   string
	Page     int
	PageSize int
}
