package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/job-pipeline/internal/api/dto"
	"github.com/cuongbtq/job-pipeline/internal/domain"
	"github.com/cuongbtq/job-pipeline/internal/scaling"
	"github.com/gin-gonic/gin"
)

// UpdateScaling handles PUT /scaling and PUT /api/v1/scaling
func (h *ScalingHandler) UpdateScaling(c *gin.Context) {
	if h.scaler == nil {
		c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{Error: "Scaling is not configured"})
		return
	}

	var req dto.ScalingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid scaling request", slog.Any("error", err))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	minCapacity, maxCapacity := *req.MinCapacity, *req.MaxCapacity

	err := h.scaler.UpdateScaling(c.Request.Context(), minCapacity, maxCapacity)
	if err != nil {
		var remote *domain.RemoteControlPlaneError
		switch {
		case errors.Is(err, scaling.ErrInvalidCapacity):
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		case errors.As(err, &remote):
			c.JSON(http.StatusBadGateway, dto.ErrorResponse{Error: remote.Message})
		default:
			h.logger.Error("Failed to update scaling", slog.Any("error", err))
			c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to update scaling"})
		}
		return
	}

	c.JSON(http.StatusOK, dto.ScalingResponse{
		Message:     "Scaling updated",
		MinCapacity: minCapacity,
		MaxCapacity: maxCapacity,
	})
}
