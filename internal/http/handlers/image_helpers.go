package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/phambaophuc/phantom-splice/internal/models"
	"github.com/phambaophuc/phantom-splice/internal/services/processor"
	"go.uber.org/zap"
)

// MultipartOverhead is the room left above the file size limit for
// boundaries, part headers and other form fields.
const MultipartOverhead = 1 << 20

// BodyLimit is the largest request body accepted for a maxFileSize upload.
func BodyLimit(maxFileSize int64) int64 {
	return maxFileSize + MultipartOverhead
}

const (
	statusHealthy       = "healthy"
	statusUnhealthy     = "unhealthy"
	statusNotConfigured = "not configured"
)

// === REQUEST PARSING ===

// readUpload pulls the "file" part out of the multipart body. It writes the
// 400 response itself and returns ok=false when the upload is unusable.
// The body is capped before parsing so oversized uploads are never buffered.
func (h *ImageHandler) readUpload(c *gin.Context) (data []byte, filename string, ok bool) {
	maxSize := h.processor.MaxFileSize()
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, BodyLimit(maxSize))

	header, err := c.FormFile(fileParamKey)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			size := c.Request.ContentLength
			if size <= 0 {
				size = tooLarge.Limit + 1
			}
			h.respondTooLarge(c, size, maxSize)
			return nil, "", false
		}
		// A part sent with an empty filename is parsed as a plain value.
		if form := c.Request.MultipartForm; form != nil {
			if _, present := form.Value[fileParamKey]; present {
				h.respondError(c, http.StatusBadRequest, "No file selected")
				return nil, "", false
			}
		}
		h.respondError(c, http.StatusBadRequest, "No file provided")
		return nil, "", false
	}
	if header.Filename == "" {
		h.respondError(c, http.StatusBadRequest, "No file selected")
		return nil, "", false
	}

	if header.Size > maxSize {
		h.respondTooLarge(c, header.Size, maxSize)
		return nil, "", false
	}

	file, err := header.Open()
	if err != nil {
		h.logger.Error("Failed to open upload", zap.String("filename", header.Filename), zap.Error(err))
		h.respondError(c, http.StatusInternalServerError, "Failed to read upload: "+err.Error())
		return nil, "", false
	}
	defer file.Close()

	data, err = io.ReadAll(file)
	if err != nil {
		h.logger.Error("Failed to read upload", zap.String("filename", header.Filename), zap.Error(err))
		h.respondError(c, http.StatusInternalServerError, "Failed to read upload: "+err.Error())
		return nil, "", false
	}

	return data, header.Filename, true
}

// === RESPONSE HANDLING ===

func (h *ImageHandler) respondError(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, models.ErrorResponse{Error: message})
}

func (h *ImageHandler) respondTooLarge(c *gin.Context, size, maxSize int64) {
	err := &processor.FileSizeError{Size: size, Max: maxSize}
	h.respondError(c, http.StatusBadRequest, err.Error())
}

// === UTILITY METHODS ===

func (h *ImageHandler) collectHealth(ctx context.Context) map[string]string {
	services := make(map[string]string)

	if h.storage != nil {
		for name, status := range h.storage.HealthCheck(ctx) {
			services[name] = status
		}
	}

	if h.queue != nil {
		services["rabbitmq"] = h.queue.HealthCheck()
	} else {
		services["rabbitmq"] = statusNotConfigured
	}

	// In-process segmenters are always available.
	services["segmenter"] = statusHealthy
	if h.segmenter != nil {
		if err := h.segmenter.Ping(ctx); err != nil {
			services["segmenter"] = "unhealthy: " + err.Error()
		}
	}

	return services
}

func (h *ImageHandler) calculateOverallHealth(services map[string]string) string {
	for _, status := range services {
		if status != statusHealthy && status != statusNotConfigured {
			return statusUnhealthy
		}
	}
	return statusHealthy
}
