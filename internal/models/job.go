package models

import "time"

// JobStatus is the lifecycle state of a booking.
type JobStatus string

const (
	JobOpen      JobStatus = "open"
	JobRequested JobStatus = "requested"
	JobAccepted  JobStatus = "accepted"
	JobDeclined  JobStatus = "declined"
	JobCancelled JobStatus = "cancelled"
)

// Valid reports whether the status is a known lifecycle state.
func (s JobStatus) Valid() bool {
	switch s {
	case JobOpen, JobRequested, JobAccepted, JobDeclined, JobCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transitions leave this state.
// Declined jobs can be reopened by the creator, so only cancelled is terminal.
func (s JobStatus) Terminal() bool {
	return s == JobCancelled
}

// jobTransitions is the single authority on legal status moves. Actor guards
// (who may perform the move) are enforced by JobService and by the
// conditional updates in JobRepository; this table only constrains the shape
// of the graph.
var jobTransitions = map[JobStatus][]JobStatus{
	JobOpen:      {JobRequested, JobAccepted, JobCancelled},
	JobRequested: {JobAccepted, JobDeclined, JobCancelled},
	JobAccepted:  {JobOpen},
	JobDeclined:  {JobOpen},
}

// CanTransition reports whether from → to is a legal lifecycle move.
func CanTransition(from, to JobStatus) bool {
	for _, next := range jobTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Job represents a booking request/assignment owned by a principal.
type Job struct {
	ID               string    `db:"id" json:"id"`
	Title            string    `db:"title" json:"title"`
	School           *string   `db:"school" json:"school,omitempty"`
	Notes            *string   `db:"notes" json:"notes,omitempty"`
	StartDate        Date      `db:"start_date" json:"start_date"`
	EndDate          *Date     `db:"end_date" json:"end_date,omitempty"`
	Status           JobStatus `db:"status" json:"status"`
	CreatedBy        string    `db:"created_by" json:"created_by"`
	AcceptedBy       *string   `db:"accepted_by" json:"accepted_by,omitempty"`
	RequestedTeacher *string   `db:"requested_teacher" json:"requested_teacher,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// SingleDay reports whether the job covers exactly one date.
func (j *Job) SingleDay() bool {
	return j.EndDate == nil || j.EndDate.IsZero() || j.EndDate.Equal(j.StartDate)
}

// Span expands the job's date range into individual days.
func (j *Job) Span() []Date {
	return DateRange(j.StartDate, j.EndDate)
}

// JobFilter captures filtering criteria for job listings.
type JobFilter struct {
	Statuses         []JobStatus
	CreatedBy        string
	AcceptedBy       string
	RequestedTeacher string
	FromDate         *Date
	UntilDate        *Date
	Search           string
	Page             int
	PageSize         int
	SortBy           string
	SortOrder        string
}
