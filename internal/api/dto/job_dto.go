package dto

import "github.com/cuongbtq/job-pipeline/internal/domain"

// timeLayout is RFC3339 with fixed microsecond precision
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

type SubmitJobRequest struct {
	Description string `json:"description" binding:"required"`
}

type JobDTO struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Status      string `json:"status"`
	SubmittedAt string `json:"submittedAt"`
	UpdatedAt   string `json:"updatedAt"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// FromJob converts a domain job, rendering timestamps in UTC
func FromJob(job domain.Job) JobDTO {
	return JobDTO{
		ID:          job.ID,
		Description: job.Description,
		Status:      job.Status.String(),
		SubmittedAt: job.SubmittedAt.UTC().Format(timeLayout),
		UpdatedAt:   job.UpdatedAt.UTC().Format(timeLayout),
	}
}

// FromJobs never returns nil so the JSON body is [] rather than null
func FromJobs(jobs []domain.Job) []JobDTO {
	out := make([]JobDTO, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, FromJob(job))
	}
	return out
}
