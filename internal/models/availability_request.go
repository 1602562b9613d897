package models

// AvailabilityDay is one weekday's flag in a weekly submission.
type AvailabilityDay struct {
	Weekday     int  `json:"weekday" validate:"required,min=1,max=5"`
	IsAvailable bool `json:"is_available"`
}

// SetAvailabilityRequest replaces a teacher's pattern for one week. All five
// school days must be present exactly once; EffectiveFrom is snapped to the
// Monday of its week.
type SetAvailabilityRequest struct {
	EffectiveFrom Date              `json:"effective_from" validate:"required"`
	Days          []AvailabilityDay `json:"days" validate:"required,len=5,dive"`
}

// WeekAvailability is the API shape for one teacher-week.
type WeekAvailability struct {
	UserID        string            `json:"user_id"`
	EffectiveFrom Date              `json:"effective_from"`
	Days          []AvailabilityDay `json:"days"`
}
