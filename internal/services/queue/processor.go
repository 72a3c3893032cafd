package queue

import (
	"context"
	"fmt"

	"github.com/phambaophuc/phantom-splice/internal/models"
	"github.com/phambaophuc/phantom-splice/pkg/utils"
)

func (q *QueueService) processJob(ctx context.Context, job *models.ProcessingJob) (*models.ProcessedImage, error) {
	imageData, err := q.blobs.Download(ctx, job.SourceKey)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}

	cutout, err := q.processor.RemoveBackground(ctx, imageData, job.Filename)
	if err != nil {
		return nil, err
	}

	processedURL, err := q.blobs.Upload(ctx, utils.GenerateResultKey(job.ID), cutout.PNG)
	if err != nil {
		return nil, fmt.Errorf("failed to save processed image: %w", err)
	}

	return &models.ProcessedImage{
		URL:         processedURL,
		Width:       cutout.Width,
		Height:      cutout.Height,
		FileSize:    int64(len(cutout.PNG)),
		ProcessedAt: q.now(),
	}, nil
}
