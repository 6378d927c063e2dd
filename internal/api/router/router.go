package router

import (
	"github.com/cuongbtq/job-pipeline/internal/api/handler"
	"github.com/gin-gonic/gin"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware(deps.AllowOrigins))

	healthHandler := handler.NewHealthHandler(deps)
	jobHandler := handler.NewJobHandler(deps)
	scalingHandler := handler.NewScalingHandler(deps)

	r.GET("/", healthHandler.Health)
	r.GET("/health", healthHandler.Health)
	r.GET("/ready", healthHandler.Ready)

	// Short routes used by the dashboard
	r.POST("/submit-job", jobHandler.SubmitJob)
	r.GET("/jobs", jobHandler.ListJobs)
	r.PUT("/scaling", scalingHandler.UpdateScaling)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		jobs := v1.Group("/jobs")
		{
			// POST /api/v1/jobs - Submit a new job
			jobs.POST("", jobHandler.SubmitJob)

			// GET /api/v1/jobs - List all jobs
			jobs.GET("", jobHandler.ListJobs)

			// GET /api/v1/jobs/:job_id - Get job details
			jobs.GET("/:job_id", jobHandler.GetJob)
		}

		// PUT /api/v1/scaling - Set worker min/max capacity
		v1.PUT("/scaling", scalingHandler.UpdateScaling)
	}

	return r
}
