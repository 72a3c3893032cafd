package processor

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"sync"
	"testing"

	"github.com/phambaophuc/phantom-splice/internal/metrics"
	"github.com/phambaophuc/phantom-splice/internal/segment"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
	err  error
}

func newMapCache() *mapCache {
	return &mapCache{data: map[string][]byte{}}
}

func (c *mapCache) GetFromCache(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	return c.data[key], nil
}

func (c *mapCache) SetCache(_ context.Context, key string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.data[key] = data
	return nil
}

// countingSegmenter wraps a segmenter and counts calls.
type countingSegmenter struct {
	inner segment.Segmenter
	calls int
}

func (c *countingSegmenter) Segment(ctx context.Context, img image.Image) (*image.NRGBA, error) {
	c.calls++
	return c.inner.Segment(ctx, img)
}

// opaqueSegmenter keeps every pixel.
var opaqueSegmenter = segment.Func(func(_ context.Context, img image.Image) (*image.NRGBA, error) {
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out, nil
})

func encodePNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	buf := &bytes.Buffer{}
	require.NoError(t, png.Encode(buf, img))
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	buf := &bytes.Buffer{}
	require.NoError(t, jpeg.Encode(buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func decodeNRGBA(t *testing.T, data []byte) *image.NRGBA {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	nrgba, ok := img.(*image.NRGBA)
	require.True(t, ok, "expected an RGBA PNG, got %T", img)
	return nrgba
}

func TestImageProcessor_RemoveBackground_SolidRed(t *testing.T) {
	p := NewImageProcessor(segment.NewColorKey(segment.ColorKeyOptions{Tolerance: segment.DefaultTolerance}), Options{})

	cutout, err := p.RemoveBackground(context.Background(), encodePNG(t, 200, 200, color.RGBA{R: 255, A: 255}), "red.png")
	require.NoError(t, err)

	assert.Equal(t, 200, cutout.Width)
	assert.Equal(t, 200, cutout.Height)
	assert.Equal(t, "png", cutout.SourceFormat)
	assert.False(t, cutout.Cached)

	img := decodeNRGBA(t, cutout.PNG)
	assert.Equal(t, image.Rect(0, 0, 200, 200), img.Bounds())
}

func TestImageProcessor_RemoveBackground_JPEG(t *testing.T) {
	p := NewImageProcessor(segment.NewColorKey(segment.ColorKeyOptions{Tolerance: segment.DefaultTolerance}), Options{})

	cutout, err := p.RemoveBackground(context.Background(), encodeJPEG(t, 64, 48, color.RGBA{G: 200, A: 255}), "green.jpg")
	require.NoError(t, err)

	assert.Equal(t, "jpeg", cutout.SourceFormat)
	img := decodeNRGBA(t, cutout.PNG)
	assert.Equal(t, 64, img.Bounds().Dx())
	assert.Equal(t, 48, img.Bounds().Dy())
}

func TestImageProcessor_OpaqueResultKeepsAlphaChannel(t *testing.T) {
	p := NewImageProcessor(opaqueSegmenter, Options{})

	cutout, err := p.RemoveBackground(context.Background(), encodePNG(t, 10, 10, color.White), "white.png")
	require.NoError(t, err)

	img := decodeNRGBA(t, cutout.PNG)
	assert.Equal(t, uint8(255), img.NRGBAAt(5, 5).A)
}

func TestImageProcessor_Errors(t *testing.T) {
	boom := errors.New("model exploded")

	tests := []struct {
		name      string
		segmenter segment.Segmenter
		data      []byte
		wantErr   string
	}{
		{
			name:      "empty upload",
			segmenter: opaqueSegmenter,
			data:      []byte{},
			wantErr:   "failed to decode image: image: unknown format",
		},
		{
			name:      "not an image",
			segmenter: opaqueSegmenter,
			data:      []byte("definitely not pixels"),
			wantErr:   "failed to decode image: image: unknown format",
		},
		{
			name: "segmenter error",
			segmenter: segment.Func(func(context.Context, image.Image) (*image.NRGBA, error) {
				return nil, boom
			}),
			wantErr: "failed to remove background: model exploded",
		},
		{
			name: "segmenter panic",
			segmenter: segment.Func(func(context.Context, image.Image) (*image.NRGBA, error) {
				panic("index out of range")
			}),
			wantErr: "failed to remove background: segmenter panic: index out of range",
		},
		{
			name: "segmenter changes size",
			segmenter: segment.Func(func(context.Context, image.Image) (*image.NRGBA, error) {
				return image.NewNRGBA(image.Rect(0, 0, 1, 1)), nil
			}),
			wantErr: "segmenter changed image size from 8x8 to 1x1",
		},
		{
			name: "segmenter returns nothing",
			segmenter: segment.Func(func(context.Context, image.Image) (*image.NRGBA, error) {
				return nil, nil
			}),
			wantErr: "segmenter returned no image",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.data
			if data == nil {
				data = encodePNG(t, 8, 8, color.White)
			}

			p := NewImageProcessor(tt.segmenter, Options{})
			_, err := p.RemoveBackground(context.Background(), data, "in.png")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestImageProcessor_FileTooLarge(t *testing.T) {
	p := NewImageProcessor(opaqueSegmenter, Options{MaxFileSize: 10})

	_, err := p.RemoveBackground(context.Background(), make([]byte, 11), "big.png")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFileTooLarge)
	assert.Equal(t, "file size 11 exceeds maximum allowed size 10", err.Error())
	assert.Equal(t, int64(10), p.MaxFileSize())
}

func TestImageProcessor_Cache(t *testing.T) {
	cache := newMapCache()
	seg := &countingSegmenter{inner: opaqueSegmenter}
	m := metrics.NewMetrics(prometheus.NewRegistry())
	p := NewImageProcessor(seg, Options{Cache: cache, Variant: "v1", Metrics: m})
	data := encodePNG(t, 12, 9, color.Black)

	first, err := p.RemoveBackground(context.Background(), data, "a.png")
	require.NoError(t, err)
	second, err := p.RemoveBackground(context.Background(), data, "a.png")
	require.NoError(t, err)

	assert.Equal(t, 1, seg.calls)
	assert.False(t, first.Cached)
	assert.True(t, second.Cached)
	assert.Equal(t, first.PNG, second.PNG)
	assert.Equal(t, 12, second.Width)
	assert.Equal(t, 9, second.Height)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("miss")))

	other := NewImageProcessor(seg, Options{Cache: cache, Variant: "v2"})
	_, err = other.RemoveBackground(context.Background(), data, "a.png")
	require.NoError(t, err)
	assert.Equal(t, 2, seg.calls, "a different variant must not reuse the entry")
}

func TestImageProcessor_CacheFailuresAreIgnored(t *testing.T) {
	cache := newMapCache()
	cache.err = errors.New("connection refused")
	p := NewImageProcessor(opaqueSegmenter, Options{Cache: cache})

	cutout, err := p.RemoveBackground(context.Background(), encodePNG(t, 4, 4, color.White), "a.png")
	require.NoError(t, err)
	assert.NotEmpty(t, cutout.PNG)
}

func TestImageProcessor_CorruptCacheEntryIsRecomputed(t *testing.T) {
	cache := newMapCache()
	seg := &countingSegmenter{inner: opaqueSegmenter}
	p := NewImageProcessor(seg, Options{Cache: cache})
	data := encodePNG(t, 4, 4, color.White)
	cache.data[p.GenerateCacheKey(data)] = []byte("garbage")

	cutout, err := p.RemoveBackground(context.Background(), data, "a.png")
	require.NoError(t, err)
	assert.False(t, cutout.Cached)
	assert.Equal(t, 1, seg.calls)
}

func TestImageProcessor_GenerateCacheKey(t *testing.T) {
	p := NewImageProcessor(opaqueSegmenter, Options{Variant: "v1"})

	key := p.GenerateCacheKey([]byte("abc"))
	assert.Equal(t, key, p.GenerateCacheKey([]byte("abc")))
	assert.NotEqual(t, key, p.GenerateCacheKey([]byte("abd")))
	assert.Regexp(t, `^cutout_cache:[0-9a-f]{64}$`, key)
}

func TestColorModelName(t *testing.T) {
	assert.Equal(t, "L", colorModelName(color.GrayModel))
	assert.Equal(t, "RGBA", colorModelName(color.NRGBAModel))
	assert.Equal(t, "YCbCr", colorModelName(color.YCbCrModel))
	assert.Equal(t, "P", colorModelName(color.Palette{color.Black, color.White}))
}

// pngHeaderOnly returns a PNG signature and IHDR chunk claiming w x h RGBA
// pixels with no image data behind it.
func pngHeaderOnly(w, h uint32) []byte {
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], w)
	binary.BigEndian.PutUint32(ihdr[4:], h)
	ihdr[8] = 8 // bit depth
	ihdr[9] = 6 // RGBA

	buf := &bytes.Buffer{}
	buf.WriteString("\x89PNG\r\n\x1a\n")
	_ = binary.Write(buf, binary.BigEndian, uint32(len(ihdr)))
	chunk := append([]byte("IHDR"), ihdr...)
	buf.Write(chunk)
	_ = binary.Write(buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestImageProcessor_RejectsDecompressionBomb(t *testing.T) {
	seg := &countingSegmenter{inner: opaqueSegmenter}
	p := NewImageProcessor(seg, Options{})
	data := pngHeaderOnly(40000, 40000)
	require.Less(t, int64(len(data)), p.MaxFileSize())

	_, err := p.RemoveBackground(context.Background(), data, "bomb.png")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrImageTooLarge)
	assert.NotErrorIs(t, err, ErrFileTooLarge)
	assert.Equal(t, "failed to decode image: image dimensions 40000x40000 exceed maximum of 64000000 pixels", err.Error())
	assert.Zero(t, seg.calls)
}

func TestImageProcessor_PixelLimit(t *testing.T) {
	p := NewImageProcessor(opaqueSegmenter, Options{MaxPixels: 100})

	_, err := p.RemoveBackground(context.Background(), encodePNG(t, 10, 10, color.White), "edge.png")
	require.NoError(t, err, "exactly at the limit is allowed")

	_, err = p.RemoveBackground(context.Background(), encodePNG(t, 11, 10, color.White), "over.png")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrImageTooLarge)
	assert.Contains(t, err.Error(), "image dimensions 11x10 exceed maximum of 100 pixels")
}
