// Package scaling forwards worker capacity bounds to Application Auto Scaling.
package scaling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/applicationautoscaling"
	"github.com/aws/aws-sdk-go-v2/service/applicationautoscaling/types"
	"github.com/aws/smithy-go"
	"github.com/cuongbtq/job-pipeline/internal/domain"
)

// ErrInvalidCapacity is returned for negative or inverted bounds
var ErrInvalidCapacity = errors.New("invalid capacity")

// AutoScalingAPI is the subset of *applicationautoscaling.Client used here
type AutoScalingAPI interface {
	RegisterScalableTarget(ctx context.Context, params *applicationautoscaling.RegisterScalableTargetInput, optFns ...func(*applicationautoscaling.Options)) (*applicationautoscaling.RegisterScalableTargetOutput, error)
}

// Controller updates the worker service's scalable target
type Controller struct {
	client     AutoScalingAPI
	resourceID string
	logger     *slog.Logger
}

// ResourceID builds the ECS service resource path
func ResourceID(cluster, service string) string {
	return fmt.Sprintf("service/%s/%s", cluster, service)
}

// NewController creates a Controller for cluster/service
func NewController(client AutoScalingAPI, cluster, service string, logger *slog.Logger) *Controller {
	return &Controller{
		client:     client,
		resourceID: ResourceID(cluster, service),
		logger:     logger,
	}
}

// NewClient builds an Application Auto Scaling client that never retries,
// so remote failures surface to the caller on the first attempt
func NewClient(cfg aws.Config) *applicationautoscaling.Client {
	return applicationautoscaling.NewFromConfig(cfg, func(o *applicationautoscaling.Options) {
		o.RetryMaxAttempts = 1
	})
}

// UpdateScaling registers min/max capacity for the worker service
func (c *Controller) UpdateScaling(ctx context.Context, minCapacity, maxCapacity int32) error {
	if minCapacity < 0 || maxCapacity < minCapacity {
		return fmt.Errorf("%w: min=%d max=%d", ErrInvalidCapacity, minCapacity, maxCapacity)
	}

	_, err := c.client.RegisterScalableTarget(ctx, &applicationautoscaling.RegisterScalableTargetInput{
		ServiceNamespace:  types.ServiceNamespaceEcs,
		ResourceId:        aws.String(c.resourceID),
		ScalableDimension: types.ScalableDimensionECSServiceDesiredCount,
		MinCapacity:       aws.Int32(minCapacity),
		MaxCapacity:       aws.Int32(maxCapacity),
	})
	if err != nil {
		c.logger.Error("Failed to update scaling",
			slog.String("resource_id", c.resourceID),
			slog.Any("error", err),
		)
		return &domain.RemoteControlPlaneError{
			ResourceID: c.resourceID,
			Message:    remoteMessage(err),
			Err:        err,
		}
	}

	c.logger.Info("Scaling updated",
		slog.String("resource_id", c.resourceID),
		slog.Int("min_capacity", int(minCapacity)),
		slog.Int("max_capacity", int(maxCapacity)),
	)
	return nil
}

// remoteMessage extracts the service error text when available
func remoteMessage(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Sprintf("%s: %s", apiErr.ErrorCode(), apiErr.ErrorMessage())
	}
	return err.Error()
}
