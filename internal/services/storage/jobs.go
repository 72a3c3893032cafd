package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/phambaophuc/phantom-splice/internal/models"
	"github.com/redis/go-redis/v9"
)

const JobKeyPrefix = "cutout_job:"

func jobKey(id string) string {
	return JobKeyPrefix + id
}

// SaveJob writes the job record, refreshing its TTL.
func (s *StorageService) SaveJob(ctx context.Context, job *models.ProcessingJob) error {
	if s.redisClient == nil {
		return ErrNotConfigured
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	if err := s.redisClient.Set(ctx, jobKey(job.ID), data, s.jobTTL).Err(); err != nil {
		return fmt.Errorf("failed to save job %s: %w", job.ID, err)
	}
	return nil
}

func (s *StorageService) GetJob(ctx context.Context, id string) (*models.ProcessingJob, error) {
	if s.redisClient == nil {
		return nil, ErrNotConfigured
	}

	data, err := s.redisClient.Get(ctx, jobKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to load job %s: %w", id, err)
	}

	var job models.ProcessingJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job %s: %w", id, err)
	}
	return &job, nil
}

// ListJobs walks every stored job record with SCAN.
func (s *StorageService) ListJobs(ctx context.Context) ([]*models.ProcessingJob, error) {
	if s.redisClient == nil {
		return nil, ErrNotConfigured
	}

	var (
		jobs   []*models.ProcessingJob
		cursor uint64
	)
	for {
		keys, next, err := s.redisClient.Scan(ctx, cursor, JobKeyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan jobs: %w", err)
		}

		for _, key := range keys {
			job, err := s.GetJob(ctx, strings.TrimPrefix(key, JobKeyPrefix))
			if errors.Is(err, ErrJobNotFound) {
				continue // expired between SCAN and GET
			}
			if err != nil {
				return nil, err
			}
			jobs = append(jobs, job)
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}
	return jobs, nil
}
