package segment

import (
	"context"
	"errors"
	"image"
	"math"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
)

const (
	DefaultTolerance    = 0.12
	DefaultWorkSize     = 1024
	DefaultFeatherSigma = 2.0

	// Pixels this transparent already count as background.
	transparentCutoff = 16
)

var ErrEmptyImage = errors.New("cannot segment an empty image")

var maxColorDistance = math.Sqrt(3) * 255

type ColorKeyOptions struct {
	// Tolerance is the normalized RGB distance (0..1) from the estimated
	// background colour still treated as background.
	Tolerance float64
	// WorkSize caps the longest side of the copy the mask is computed on.
	WorkSize     int
	AlphaMatting bool
	FeatherSigma float64
}

// ColorKey removes the background by flood-filling, from the image border
// inward, every pixel close to the dominant border colour.
type ColorKey struct {
	tolerance    float64
	workSize     int
	alphaMatting bool
	featherSigma float64
}

func NewColorKey(opts ColorKeyOptions) *ColorKey {
	if opts.Tolerance < 0 {
		opts.Tolerance = DefaultTolerance
	}
	if opts.WorkSize <= 0 {
		opts.WorkSize = DefaultWorkSize
	}
	if opts.FeatherSigma <= 0 {
		opts.FeatherSigma = DefaultFeatherSigma
	}
	return &ColorKey{
		tolerance:    opts.Tolerance,
		workSize:     opts.WorkSize,
		alphaMatting: opts.AlphaMatting,
		featherSigma: opts.FeatherSigma,
	}
}

func (c *ColorKey) Segment(ctx context.Context, img image.Image) (*image.NRGBA, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, ErrEmptyImage
	}

	out := imaging.Clone(img)
	w, h := out.Bounds().Dx(), out.Bounds().Dy()

	work := resizeWithinMax(out, c.workSize)
	bg := borderMedian(work)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mask := c.floodBackground(work, bg)

	if mask.Bounds().Dx() != w || mask.Bounds().Dy() != h {
		mask = scaleMask(mask, w, h)
		if !c.alphaMatting {
			threshold(mask)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if c.alphaMatting {
		mask = grayFromNRGBA(imaging.Blur(mask, c.featherSigma))
	}

	applyMask(out, mask)
	return out, nil
}

// floodBackground returns a mask where 0 marks background reachable from the
// border and 255 marks everything else.
func (c *ColorKey) floodBackground(img *image.NRGBA, bg [3]uint8) *image.Gray {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	mask := image.NewGray(image.Rect(0, 0, w, h))
	for i := range mask.Pix {
		mask.Pix[i] = 255
	}

	limit := c.tolerance * maxColorDistance
	limit *= limit

	isBackground := func(x, y int) bool {
		i := y*img.Stride + x*4
		p := img.Pix[i : i+4 : i+4]
		if p[3] < transparentCutoff {
			return true
		}
		dr := float64(p[0]) - float64(bg[0])
		dg := float64(p[1]) - float64(bg[1])
		db := float64(p[2]) - float64(bg[2])
		return dr*dr+dg*dg+db*db <= limit
	}

	queue := make([]int, 0, 2*(w+h))
	visit := func(x, y int) {
		idx := y*mask.Stride + x
		if mask.Pix[idx] == 0 || !isBackground(x, y) {
			return
		}
		mask.Pix[idx] = 0
		queue = append(queue, idx)
	}

	for x := 0; x < w; x++ {
		visit(x, 0)
		visit(x, h-1)
	}
	for y := 0; y < h; y++ {
		visit(0, y)
		visit(w-1, y)
	}

	for head := 0; head < len(queue); head++ {
		x, y := queue[head]%mask.Stride, queue[head]/mask.Stride
		if x > 0 {
			visit(x-1, y)
		}
		if x < w-1 {
			visit(x+1, y)
		}
		if y > 0 {
			visit(x, y-1)
		}
		if y < h-1 {
			visit(x, y+1)
		}
	}

	return mask
}

// borderMedian estimates the background colour as the per-channel median of
// the opaque pixels on the outermost ring.
func borderMedian(img *image.NRGBA) [3]uint8 {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	var hist [3][256]int
	n := 0

	add := func(x, y int) {
		i := y*img.Stride + x*4
		if img.Pix[i+3] < transparentCutoff {
			return
		}
		hist[0][img.Pix[i]]++
		hist[1][img.Pix[i+1]]++
		hist[2][img.Pix[i+2]]++
		n++
	}

	for x := 0; x < w; x++ {
		add(x, 0)
		if h > 1 {
			add(x, h-1)
		}
	}
	for y := 1; y < h-1; y++ {
		add(0, y)
		if w > 1 {
			add(w-1, y)
		}
	}

	var bg [3]uint8
	if n == 0 {
		return bg
	}
	half := (n + 1) / 2
	for ch := 0; ch < 3; ch++ {
		sum := 0
		for v := 0; v < 256; v++ {
			sum += hist[ch][v]
			if sum >= half {
				bg[ch] = uint8(v)
				break
			}
		}
	}
	return bg
}

// resizeWithinMax downscales so the longest side is at most maxSize.
func resizeWithinMax(img *image.NRGBA, maxSize int) *image.NRGBA {
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()
	longest := max(w, h)

	if longest <= maxSize {
		return img
	}

	scale := float64(maxSize) / float64(longest)
	newW := max(1, int(float64(w)*scale))
	newH := max(1, int(float64(h)*scale))

	resized := resize.Resize(uint(newW), uint(newH), img, resize.Bilinear)
	return toNRGBA(resized)
}

func scaleMask(mask *image.Gray, w, h int) *image.Gray {
	return grayFromNRGBA(imaging.Resize(mask, w, h, imaging.Linear))
}

func threshold(mask *image.Gray) {
	for i, v := range mask.Pix {
		if v >= 128 {
			mask.Pix[i] = 255
		} else {
			mask.Pix[i] = 0
		}
	}
}

func grayFromNRGBA(img *image.NRGBA) *image.Gray {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	gray := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		src := img.Pix[y*img.Stride:]
		dst := gray.Pix[y*gray.Stride:]
		for x := 0; x < w; x++ {
			dst[x] = src[x*4]
		}
	}
	return gray
}

func applyMask(img *image.NRGBA, mask *image.Gray) {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]
		m := mask.Pix[y*mask.Stride:]
		for x := 0; x < w; x++ {
			a := &row[x*4+3]
			*a = uint8(uint32(*a) * uint32(m[x]) / 255)
		}
	}
}
