package domain

import (
	"fmt"
	"time"
)

// transitions lists the allowed edges of the job lifecycle graph.
// IN_PROGRESS -> IN_PROGRESS is the re-apply a redelivered message performs
// after a worker crashed mid-job.
var transitions = map[Status][]Status{
	JobStatusSubmitted:  {JobStatusInProgress, JobStatusFailed},
	JobStatusInProgress: {JobStatusInProgress, JobStatusCompleted, JobStatusFailed},
	JobStatusCompleted:  nil,
	JobStatusFailed:     nil,
}

// IsValid reports whether s is one of the known job statuses
func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal reports whether no further transition can leave s
func (s Status) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

func (s Status) String() string {
	return string(s)
}

// CanTransition reports whether the lifecycle allows moving from one status to another
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition moves the job to the target status and stamps UpdatedAt.
// UpdatedAt strictly increases on every successful call, even if the clock
// reading is not ahead of the previous value.
func (j *Job) Transition(to Status, now time.Time) error {
	if !CanTransition(j.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, to)
	}

	ts := Timestamp(now)
	if !ts.After(j.UpdatedAt) {
		ts = j.UpdatedAt.Add(time.Microsecond)
	}

	j.Status = to
	j.UpdatedAt = ts
	return nil
}
