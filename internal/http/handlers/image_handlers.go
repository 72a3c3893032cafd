package handlers

import (
	"context"
	_ "embed"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/phambaophuc/phantom-splice/internal/metrics"
	"github.com/phambaophuc/phantom-splice/internal/models"
	"github.com/phambaophuc/phantom-splice/internal/services/processor"
	"go.uber.org/zap"
)

const fileParamKey = "file"

//go:embed index.html
var indexPage []byte

type CutoutRemover interface {
	RemoveBackground(ctx context.Context, data []byte, filename string) (*models.Cutout, error)
	MaxFileSize() int64
}

// HealthReporter reports the status of each backing service by name.
type HealthReporter interface {
	HealthCheck(ctx context.Context) map[string]string
}

// Pinger is implemented by segmenters that live outside the process.
type Pinger interface {
	Ping(ctx context.Context) error
}

type JobQueue interface {
	PublishJob(ctx context.Context, job *models.ProcessingJob) error
	GetQueueStats() (*models.QueueStats, error)
	HealthCheck() string
}

type BlobStore interface {
	Upload(ctx context.Context, key string, data []byte) (string, error)
	Delete(ctx context.Context, key string) error
}

type CacheStatser interface {
	GetCacheStats(ctx context.Context) (map[string]interface{}, error)
}

type JobStore interface {
	SaveJob(ctx context.Context, job *models.ProcessingJob) error
	GetJob(ctx context.Context, id string) (*models.ProcessingJob, error)
}

// Options carries the optional collaborators of ImageHandler. Leaving the
// job fields nil disables the job endpoints.
type Options struct {
	Storage   HealthReporter
	Segmenter Pinger
	Cache     CacheStatser
	Queue     JobQueue
	Blobs     BlobStore
	Jobs      JobStore
	Metrics   *metrics.Metrics
}

type ImageHandler struct {
	processor CutoutRemover
	storage   HealthReporter
	segmenter Pinger
	cache     CacheStatser
	queue     JobQueue
	blobs     BlobStore
	jobs      JobStore
	metrics   *metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

func NewImageHandler(processor CutoutRemover, logger *zap.Logger, opts Options) *ImageHandler {
	return &ImageHandler{
		processor: processor,
		storage:   opts.Storage,
		segmenter: opts.Segmenter,
		cache:     opts.Cache,
		queue:     opts.Queue,
		blobs:     opts.Blobs,
		jobs:      opts.Jobs,
		metrics:   opts.Metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// JobsEnabled reports whether the asynchronous job endpoints can be served.
func (h *ImageHandler) JobsEnabled() bool {
	return h.queue != nil && h.blobs != nil && h.jobs != nil
}

// === MAIN API ENDPOINTS ===

// Sever removes the background of the uploaded image and answers with a PNG.
func (h *ImageHandler) Sever(c *gin.Context) {
	data, filename, ok := h.readUpload(c)
	if !ok {
		h.metrics.ObserveRequest(metrics.OutcomeInvalid)
		return
	}

	cutout, err := h.processor.RemoveBackground(c.Request.Context(), data, filename)
	if err != nil {
		if errors.Is(err, processor.ErrFileTooLarge) {
			h.metrics.ObserveRequest(metrics.OutcomeInvalid)
			h.respondError(c, http.StatusBadRequest, err.Error())
			return
		}

		h.logger.Error("Background removal failed",
			zap.String("filename", filename),
			zap.Error(err))
		h.metrics.ObserveRequest(metrics.OutcomeFailed)
		h.respondError(c, http.StatusInternalServerError, err.Error())
		return
	}

	h.metrics.ObserveRequest(metrics.OutcomeSuccess)
	c.Data(http.StatusOK, "image/png", cutout.PNG)
}

// Health is the liveness probe. It never touches dependencies.
func (h *ImageHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, models.Liveness{
		Status:  models.HealthAlive,
		Message: models.LivenessReply,
	})
}

// Ready reports every backing service and fails when one is unhealthy.
func (h *ImageHandler) Ready(c *gin.Context) {
	services := h.collectHealth(c.Request.Context())
	overall := h.calculateOverallHealth(services)

	statusCode := http.StatusOK
	if overall == statusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, models.HealthCheck{
		Status:    overall,
		Timestamp: h.now(),
		Services:  services,
	})
}

// Stats reports result cache and queue statistics for whichever of them
// is configured.
func (h *ImageHandler) Stats(c *gin.Context) {
	stats := map[string]interface{}{
		"timestamp": h.now(),
	}

	if h.cache != nil {
		cacheStats, err := h.cache.GetCacheStats(c.Request.Context())
		if err != nil {
			h.logger.Warn("Failed to get cache stats", zap.Error(err))
		} else {
			stats["cache"] = cacheStats
		}
	}

	if h.queue != nil {
		queueStats, err := h.queue.GetQueueStats()
		if err != nil {
			h.logger.Warn("Failed to get queue stats", zap.Error(err))
		} else {
			stats["queue"] = queueStats
		}
	}

	c.JSON(http.StatusOK, stats)
}

func (h *ImageHandler) Index(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", indexPage)
}
