package segment

import (
	"context"
	"image"
	"image/draw"
)

// Segmenter separates foreground from background. The returned image has
// bounds starting at (0,0) with the same width and height as the input and
// carries the foreground decision in its alpha channel.
type Segmenter interface {
	Segment(ctx context.Context, img image.Image) (*image.NRGBA, error)
}

// Func adapts a plain function to the Segmenter interface.
type Func func(ctx context.Context, img image.Image) (*image.NRGBA, error)

func (f Func) Segment(ctx context.Context, img image.Image) (*image.NRGBA, error) {
	return f(ctx, img)
}

// toNRGBA copies img into a zero-origin NRGBA unless it already is one.
func toNRGBA(img image.Image) *image.NRGBA {
	if nrgba, ok := img.(*image.NRGBA); ok && nrgba.Rect.Min == (image.Point{}) {
		return nrgba
	}
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}
