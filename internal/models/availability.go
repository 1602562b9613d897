package models

import "time"

// AvailabilityRow declares a teacher's availability for one weekday within
// the week anchored at EffectiveFrom (a Monday). The natural key is
// (user_id, weekday, effective_from); the editing UI upserts all five rows
// at once.
type AvailabilityRow struct {
	ID            string    `db:"id" json:"id"`
	UserID        string    `db:"user_id" json:"user_id"`
	Weekday       int       `db:"weekday" json:"weekday"` // 1=Mon … 5=Fri
	IsAvailable   bool      `db:"is_available" json:"is_available"`
	EffectiveFrom Date      `db:"effective_from" json:"effective_from"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// AvailabilityOverride is a per-date exception. Accepting a job writes one
// row per covered day with Available=false; releasing the job removes them.
type AvailabilityOverride struct {
	ID        string    `db:"id" json:"id"`
	TeacherID string    `db:"teacher_id" json:"teacher_id"`
	Date      Date      `db:"date" json:"date"`
	Available bool      `db:"available" json:"available"`
	JobID     *string   `db:"job_id" json:"job_id,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// WeekStart returns the Monday anchoring the week containing d.
func WeekStart(d Date) Date {
	wd := int(d.Weekday())
	if wd == 0 {
		wd = 7
	}
	return d.AddDays(1 - wd)
}
