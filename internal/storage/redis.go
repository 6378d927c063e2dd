package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/job-pipeline/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Redis key layout. All keys share the "jobs:" prefix.
const redisKeyPrefix = "jobs:"

// redisIndexKey is the sorted set of job IDs scored by submission time (µs)
const redisIndexKey = redisKeyPrefix + "index"

// redisJobKey returns the hash key for a job: jobs:job:{id}
func redisJobKey(id string) string { return redisKeyPrefix + "job:" + id }

var _ JobStore = (*RedisStore)(nil)

// RedisStore keeps each job as a Redis hash plus a sorted index for listing.
// Writes go through WATCH/MULTI so existence checks and writes are atomic.
//
// A write is only on disk when EXEC returns if the server runs with
// appendonly yes and appendfsync always. Other persistence settings can lose
// acknowledged writes on a crash, so production deployments must use that
// configuration.
type RedisStore struct {
	client redis.UniversalClient
	logger *slog.Logger
}

// NewRedisStore creates a new RedisStore. The caller owns the client lifecycle.
func NewRedisStore(client redis.UniversalClient, logger *slog.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		logger: logger,
	}
}

// Create stores a new job hash and indexes it
func (s *RedisStore) Create(ctx context.Context, job *domain.Job) error {
	key := redisJobKey(job.ID)

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if exists > 0 {
			return domain.ErrDuplicateID
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, jobToHash(job))
			pipe.ZAdd(ctx, redisIndexKey, redis.Z{
				Score:  float64(job.SubmittedAt.UnixMicro()),
				Member: job.ID,
			})
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrDuplicateID), errors.Is(err, redis.TxFailedErr):
		// a concurrent writer touched the key between WATCH and EXEC
		return domain.ErrDuplicateID
	default:
		return domain.NewRetryableError(fmt.Errorf("failed to create job: %w", err))
	}
}

// Get retrieves a job by its ID
func (s *RedisStore) Get(ctx context.Context, id string) (*domain.Job, error) {
	fields, err := s.client.HGetAll(ctx, redisJobKey(id)).Result()
	if err != nil {
		return nil, domain.NewRetryableError(fmt.Errorf("failed to get job: %w", err))
	}
	if len(fields) == 0 {
		return nil, domain.ErrJobNotFound
	}

	return jobFromHash(fields)
}

// Update overwrites status and updated_at of an existing job
func (s *RedisStore) Update(ctx context.Context, job *domain.Job) error {
	key := redisJobKey(job.ID)

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if exists == 0 {
			return domain.ErrJobNotFound
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key,
				"status", string(job.Status),
				"updated_at", job.UpdatedAt.Format(time.RFC3339Nano),
			)
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
		s.logger.Debug("Job status updated",
			slog.String("job_id", job.ID),
			slog.String("status", job.Status.String()),
		)
		return nil
	case errors.Is(err, domain.ErrJobNotFound):
		return err
	default:
		// TxFailedErr lands here too: the caller redelivers and re-reads
		return domain.NewRetryableError(fmt.Errorf("failed to update job status: %w", err))
	}
}

// List returns all jobs ordered by submission time
func (s *RedisStore) List(ctx context.Context) ([]domain.Job, error) {
	ids, err := s.client.ZRange(ctx, redisIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list job ids: %w", err)
	}

	jobs := make([]domain.Job, 0, len(ids))
	if len(ids) == 0 {
		return jobs, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, redisJobKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			s.logger.Warn("Indexed job has no record",
				slog.String("job_id", ids[i]),
			)
			continue
		}

		job, err := jobFromHash(fields)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}

	return jobs, nil
}

// Ping checks the Redis connection
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func jobToHash(job *domain.Job) map[string]interface{} {
	return map[string]interface{}{
		"id":           job.ID,
		"description":  job.Description,
		"status":       string(job.Status),
		"submitted_at": job.SubmittedAt.Format(time.RFC3339Nano),
		"updated_at":   job.UpdatedAt.Format(time.RFC3339Nano),
	}
}

func jobFromHash(fields map[string]string) (*domain.Job, error) {
	submittedAt, err := time.Parse(time.RFC3339Nano, fields["submitted_at"])
	if err != nil {
		return nil, fmt.Errorf("invalid submitted_at for job %s: %w", fields["id"], err)
	}

	updatedAt, err := time.Parse(time.RFC3339Nano, fields["updated_at"])
	if err != nil {
		return nil, fmt.Errorf("invalid updated_at for job %s: %w", fields["id"], err)
	}

	status := domain.Status(fields["status"])
	if !status.IsValid() {
		return nil, fmt.Errorf("unknown status %q for job %s", fields["status"], fields["id"])
	}

	return &domain.Job{
		ID:          fields["id"],
		Description: fields["description"],
		Status:      status,
		SubmittedAt: submittedAt.UTC(),
		UpdatedAt:   updatedAt.UTC(),
	}, nil
}
