package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/phambaophuc/phantom-splice/internal/metrics"
	"github.com/phambaophuc/phantom-splice/internal/models"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Sweeper fails jobs that stayed pending or processing for too long, e.g.
// because the worker holding them died.
type Sweeper struct {
	jobs       JobStore
	schedule   string
	staleAfter time.Duration
	metrics    *metrics.Metrics
	logger     *zap.Logger
	cron       *cron.Cron
	now        func() time.Time
}

func NewSweeper(jobs JobStore, schedule string, staleAfter time.Duration, m *metrics.Metrics, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		jobs:       jobs,
		schedule:   schedule,
		staleAfter: staleAfter,
		metrics:    m,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *Sweeper) Start() error {
	c := cron.New()
	_, err := c.AddFunc(s.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if n, err := s.Sweep(ctx); err != nil {
			s.logger.Warn("Stale job sweep failed", zap.Error(err))
		} else if n > 0 {
			s.logger.Info("Stale jobs failed", zap.Int("count", n))
		}
	})
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}

	s.cron = c
	c.Start()
	return nil
}

func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

// Sweep marks stale unfinished jobs as failed and returns how many it touched.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	jobs, err := s.jobs.ListJobs(ctx)
	if err != nil {
		return 0, err
	}

	now := s.now()
	swept := 0
	for _, job := range jobs {
		if job.Finished() {
			continue
		}

		last := job.UpdatedAt
		if last.IsZero() {
			last = job.CreatedAt
		}
		if now.Sub(last) < s.staleAfter {
			continue
		}

		previous := job.Status
		job.Status = models.StatusFailed
		job.Error = fmt.Sprintf("job timed out after %s in %s state", s.staleAfter, previous)
		job.UpdatedAt = now
		if err := s.jobs.SaveJob(ctx, job); err != nil {
			s.logger.Warn("Failed to fail stale job", zap.String("job_id", job.ID), zap.Error(err))
			continue
		}
		s.metrics.ObserveJob(models.StatusFailed)
		swept++
	}
	return swept, nil
}
