package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/job-pipeline/internal/domain"
)

// JobService is what the job handlers need from the submission side
type JobService interface {
	Submit(ctx context.Context, description string) (*domain.Job, error)
	List(ctx context.Context) ([]domain.Job, error)
	Get(ctx context.Context, id string) (*domain.Job, error)
}

// Scaler forwards capacity bounds to the control plane
type Scaler interface {
	UpdateScaling(ctx context.Context, minCapacity, maxCapacity int32) error
}

// HealthCheckFunc reports a dependency's readiness
type HealthCheckFunc func(ctx context.Context) error

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger      *slog.Logger
	ServiceName string
	Jobs        JobService
	Scaler      Scaler // nil when scaling is not configured
	Checks      map[string]HealthCheckFunc

	// AllowOrigins feeds the CORS middleware; empty allows any origin
	AllowOrigins []string
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger *slog.Logger
	jobs   JobService
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger: deps.Logger,
		jobs:   deps.Jobs,
	}
}

// ScalingHandler handles worker capacity requests
type ScalingHandler struct {
	logger *slog.Logger
	scaler Scaler
}

// NewScalingHandler creates a new ScalingHandler instance
func NewScalingHandler(deps *Dependencies) *ScalingHandler {
	return &ScalingHandler{
		logger: deps.Logger,
		scaler: deps.Scaler,
	}
}

// HealthHandler serves liveness and readiness
type HealthHandler struct {
	service string
	checks  map[string]HealthCheckFunc
}

// NewHealthHandler creates a new HealthHandler instance
func NewHealthHandler(deps *Dependencies) *HealthHandler {
	return &HealthHandler{
		service: deps.ServiceName,
		checks:  deps.Checks,
	}
}
