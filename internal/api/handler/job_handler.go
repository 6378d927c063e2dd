package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/job-pipeline/internal/api/dto"
	"github.com/cuongbtq/job-pipeline/internal/domain"
	"github.com/gin-gonic/gin"
)

// SubmitJob handles POST /submit-job and POST /api/v1/jobs
// Persists a new job and enqueues it for the workers
func (h *JobHandler) SubmitJob(c *gin.Context) {
	var req dto.SubmitJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", slog.Any("error", err))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	job, err := h.jobs.Submit(c.Request.Context(), req.Description)
	if err != nil {
		h.logger.Error("Failed to submit job", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to submit job"})
		return
	}

	c.JSON(http.StatusCreated, dto.FromJob(*job))
}

// ListJobs handles GET /jobs and GET /api/v1/jobs
// Returns every job in store order, no pagination
func (h *JobHandler) ListJobs(c *gin.Context) {
	jobs, err := h.jobs.List(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list jobs", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to list jobs"})
		return
	}

	c.JSON(http.StatusOK, dto.FromJobs(jobs))
}

// GetJob handles GET /api/v1/jobs/:job_id
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID := c.Param("job_id")

	job, err := h.jobs.Get(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "Job not found"})
			return
		}
		h.logger.Error("Failed to get job",
			slog.String("job_id", jobID),
			slog.Any("error", err),
		)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to get job"})
		return
	}

	c.JSON(http.StatusOK, dto.FromJob(*job))
}
