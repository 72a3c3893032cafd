package processor

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"image"
	"image/png"
	"time"

	"github.com/phambaophuc/phantom-splice/internal/metrics"
	"github.com/phambaophuc/phantom-splice/internal/models"
	"github.com/phambaophuc/phantom-splice/internal/segment"
	"go.uber.org/zap"
)

const (
	CacheKeyPrefix   = "cutout_cache:"
	DefaultMaxSize   = 20 << 20 // 20MB
	DefaultMaxPixels = 64_000_000
)

// ResultCache stores encoded cutouts. A nil slice with a nil error is a miss.
type ResultCache interface {
	GetFromCache(ctx context.Context, cacheKey string) ([]byte, error)
	SetCache(ctx context.Context, cacheKey string, data []byte) error
}

type Options struct {
	Cache ResultCache
	// Variant distinguishes cache entries produced by differently
	// configured segmenters.
	Variant     string
	MaxFileSize int64
	MaxPixels   int64
	Metrics     *metrics.Metrics
	Logger      *zap.Logger
}

type ImageProcessor struct {
	segmenter segment.Segmenter
	cache     ResultCache
	variant   string
	maxSize   int64
	maxPixels int64
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

func NewImageProcessor(segmenter segment.Segmenter, opts Options) *ImageProcessor {
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxSize
	}
	if opts.MaxPixels <= 0 {
		opts.MaxPixels = DefaultMaxPixels
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &ImageProcessor{
		segmenter: segmenter,
		cache:     opts.Cache,
		variant:   opts.Variant,
		maxSize:   opts.MaxFileSize,
		maxPixels: opts.MaxPixels,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
	}
}

// MaxFileSize is the largest upload RemoveBackground accepts.
func (p *ImageProcessor) MaxFileSize() int64 {
	return p.maxSize
}

// RemoveBackground decodes data, segments it and returns the result as PNG.
func (p *ImageProcessor) RemoveBackground(ctx context.Context, data []byte, filename string) (*models.Cutout, error) {
	if err := p.ValidateSize(int64(len(data))); err != nil {
		return nil, err
	}

	cacheKey := p.GenerateCacheKey(data)
	if cutout := p.tryGetFromCache(ctx, cacheKey); cutout != nil {
		p.logger.Info("Cache hit", zap.String("filename", filename), zap.String("cache_key", cacheKey))
		return cutout, nil
	}

	img, info, err := p.decodeImage(data)
	if err != nil {
		return nil, err
	}

	p.logger.Info("Processing image",
		zap.String("filename", filename),
		zap.Int("width", info.Width),
		zap.Int("height", info.Height),
		zap.String("format", info.Format),
		zap.String("mode", info.Mode),
	)

	start := time.Now()
	output, err := p.segment(ctx, img)
	p.metrics.ObserveSegment(time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("failed to remove background: %w", err)
	}

	buffer := &bytes.Buffer{}
	if err := p.encodeImage(buffer, output); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	p.logger.Info("Background removed",
		zap.String("filename", filename),
		zap.Duration("took", time.Since(start)),
		zap.Int("bytes", buffer.Len()),
	)

	p.setCacheData(ctx, cacheKey, buffer.Bytes())

	return &models.Cutout{
		PNG:          buffer.Bytes(),
		Width:        output.Bounds().Dx(),
		Height:       output.Bounds().Dy(),
		SourceFormat: info.Format,
	}, nil
}

// GenerateCacheKey hashes the upload together with the segmenter variant.
func (p *ImageProcessor) GenerateCacheKey(data []byte) string {
	hash := sha256.New()
	hash.Write([]byte(p.variant))
	hash.Write([]byte{0})
	hash.Write(data)
	return fmt.Sprintf("%s%x", CacheKeyPrefix, hash.Sum(nil))
}

// segment converts a panicking segmenter into an error so one bad image
// cannot take the process down.
func (p *ImageProcessor) segment(ctx context.Context, img image.Image) (out *image.NRGBA, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Segmenter panic recovered", zap.Any("panic", r))
			out, err = nil, fmt.Errorf("segmenter panic: %v", r)
		}
	}()

	out, err = p.segmenter.Segment(ctx, img)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, fmt.Errorf("segmenter returned no image")
	}

	want := img.Bounds()
	if out.Bounds().Dx() != want.Dx() || out.Bounds().Dy() != want.Dy() {
		return nil, fmt.Errorf("segmenter changed image size from %dx%d to %dx%d",
			want.Dx(), want.Dy(), out.Bounds().Dx(), out.Bounds().Dy())
	}
	return out, nil
}

func (p *ImageProcessor) tryGetFromCache(ctx context.Context, cacheKey string) *models.Cutout {
	if p.cache == nil {
		return nil
	}

	data, err := p.cache.GetFromCache(ctx, cacheKey)
	if err != nil {
		p.logger.Warn("Failed to read cache", zap.String("cache_key", cacheKey), zap.Error(err))
		p.metrics.ObserveCache(false)
		return nil
	}
	if data == nil {
		p.metrics.ObserveCache(false)
		return nil
	}

	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		p.logger.Warn("Ignoring corrupt cache entry", zap.String("cache_key", cacheKey), zap.Error(err))
		p.metrics.ObserveCache(false)
		return nil
	}

	p.metrics.ObserveCache(true)
	return &models.Cutout{
		PNG:          data,
		Width:        cfg.Width,
		Height:       cfg.Height,
		SourceFormat: "cache",
		Cached:       true,
	}
}

func (p *ImageProcessor) setCacheData(ctx context.Context, cacheKey string, data []byte) {
	if p.cache == nil {
		return
	}
	if err := p.cache.SetCache(ctx, cacheKey, data); err != nil {
		p.logger.Warn("Failed to cache data", zap.String("cache_key", cacheKey), zap.Error(err))
	}
}
