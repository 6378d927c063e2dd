package domain

import "time"

// Status is the lifecycle state of a job
type Status string

// Job status constants
const (
	JobStatusSubmitted  Status = "SUBMITTED"
	JobStatusInProgress Status = "IN_PROGRESS"
	JobStatusCompleted  Status = "COMPLETED"
	JobStatusFailed     Status = "FAILED"
)

// Job is the unit of work tracked from submission to a terminal outcome
type Job struct {
	ID          string    `json:"id" db:"id"`
	Description string    `json:"description" db:"description"`
	Status      Status    `json:"status" db:"status"`
	SubmittedAt time.Time `json:"submittedAt" db:"submitted_at"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`
}

// NewJob creates a job in SUBMITTED state with both timestamps set to now
func NewJob(id, description string, now time.Time) *Job {
	ts := Timestamp(now)
	return &Job{
		ID:          id,
		Description: description,
		Status:      JobStatusSubmitted,
		SubmittedAt: ts,
		UpdatedAt:   ts,
	}
}

// Timestamp normalises t to UTC with microsecond precision, matching what
// PostgreSQL timestamptz can round-trip.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
