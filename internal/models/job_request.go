package models

// CreateJobRequest is the payload for posting a new booking. Naming a
// teacher posts the booking directly in the requested state.
type CreateJobRequest struct {
	Title            string  `json:"title" validate:"required,max=200"`
	School           *string `json:"school" validate:"omitempty,max=200"`
	Notes            *string `json:"notes" validate:"omitempty,max=2000"`
	StartDate        Date    `json:"start_date" validate:"required"`
	EndDate          *Date   `json:"end_date"`
	RequestedTeacher *string `json:"requested_teacher"`
}

// UpdateJobRequest edits a booking's descriptive fields and dates.
type UpdateJobRequest struct {
	Title     string  `json:"title" validate:"required,max=200"`
	School    *string `json:"school" validate:"omitempty,max=200"`
	Notes     *string `json:"notes" validate:"omitempty,max=2000"`
	StartDate Date    `json:"start_date" validate:"required"`
	EndDate   *Date   `json:"end_date"`
}

// RequestTeacherRequest targets a booking at a specific teacher.
type RequestTeacherRequest struct {
	TeacherID string `json:"teacher_id" validate:"required"`
}

// NotifyJobRef identifies the job inside a notification request.
type NotifyJobRef struct {
	ID string `json:"id" validate:"required"`
}

// NotifyJobRequestPayload asks the API to email a teacher about a booking
// request that was just made.
type NotifyJobRequestPayload struct {
	TeacherID string       `json:"teacherId" validate:"required"`
	Job       NotifyJobRef `json:"job" validate:"required"`
}
