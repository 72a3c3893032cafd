package handlers

import (
	"bytes"
	"errors"
	"image"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/phambaophuc/phantom-splice/internal/models"
	"github.com/phambaophuc/phantom-splice/internal/services/storage"
	"github.com/phambaophuc/phantom-splice/pkg/utils"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"
)

// SubmitJob stores the upload and queues it for a worker. The cutout is
// fetched later through GetJob.
func (h *ImageHandler) SubmitJob(c *gin.Context) {
	if !h.JobsEnabled() {
		h.respondError(c, http.StatusServiceUnavailable, "Job processing is not enabled")
		return
	}

	data, filename, ok := h.readUpload(c)
	if !ok {
		return
	}

	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		h.respondError(c, http.StatusBadRequest, "Invalid image: "+err.Error())
		return
	}

	ctx := c.Request.Context()
	now := h.now()
	job := &models.ProcessingJob{
		ID:        ksuid.New().String(),
		Filename:  filename,
		SourceKey: utils.GenerateStorageKey(filename),
		Status:    models.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if _, err := h.blobs.Upload(ctx, job.SourceKey, data); err != nil {
		h.logger.Error("Failed to store upload", zap.String("job_id", job.ID), zap.Error(err))
		h.respondError(c, http.StatusInternalServerError, "Failed to store upload: "+err.Error())
		return
	}

	if err := h.jobs.SaveJob(ctx, job); err != nil {
		h.logger.Error("Failed to create job", zap.String("job_id", job.ID), zap.Error(err))
		if err := h.blobs.Delete(ctx, job.SourceKey); err != nil {
			h.logger.Warn("Failed to remove orphaned upload", zap.String("key", job.SourceKey), zap.Error(err))
		}
		h.respondError(c, http.StatusInternalServerError, "Failed to create job: "+err.Error())
		return
	}

	if err := h.queue.PublishJob(ctx, job); err != nil {
		h.logger.Error("Failed to queue job", zap.String("job_id", job.ID), zap.Error(err))

		job.Status = models.StatusFailed
		job.Error = err.Error()
		job.UpdatedAt = h.now()
		if err := h.jobs.SaveJob(ctx, job); err != nil {
			h.logger.Warn("Failed to mark job failed", zap.String("job_id", job.ID), zap.Error(err))
		}
		h.metrics.ObserveJob(models.StatusFailed)

		h.respondError(c, http.StatusServiceUnavailable, "Failed to queue job: "+err.Error())
		return
	}

	h.metrics.ObserveJob(models.StatusPending)
	c.JSON(http.StatusAccepted, job)
}

func (h *ImageHandler) GetJob(c *gin.Context) {
	if !h.JobsEnabled() {
		h.respondError(c, http.StatusServiceUnavailable, "Job processing is not enabled")
		return
	}

	job, err := h.jobs.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, storage.ErrJobNotFound) {
			h.respondError(c, http.StatusNotFound, "Job not found")
			return
		}
		h.logger.Error("Failed to load job", zap.String("job_id", c.Param("id")), zap.Error(err))
		h.respondError(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, job)
}
