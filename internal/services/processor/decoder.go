package processor

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

type sourceInfo struct {
	Format string
	Mode   string
	Width  int
	Height int
}

// decodeImage decodes data without applying EXIF orientation so the cutout
// keeps the stored pixel dimensions. The header is checked against the pixel
// limit before any pixel buffer is allocated.
func (p *ImageProcessor) decodeImage(data []byte) (image.Image, sourceInfo, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, sourceInfo{}, fmt.Errorf("failed to decode image: %w", err)
	}
	if err := p.ValidateDimensions(cfg.Width, cfg.Height); err != nil {
		return nil, sourceInfo{}, fmt.Errorf("failed to decode image: %w", err)
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, sourceInfo{}, fmt.Errorf("failed to decode image: %w", err)
	}

	b := img.Bounds()
	return img, sourceInfo{
		Format: format,
		Mode:   colorModelName(cfg.ColorModel),
		Width:  b.Dx(),
		Height: b.Dy(),
	}, nil
}

func colorModelName(m color.Model) string {
	if _, ok := m.(color.Palette); ok {
		return "P"
	}
	switch m {
	case color.GrayModel, color.Gray16Model:
		return "L"
	case color.RGBAModel, color.RGBA64Model, color.NRGBAModel, color.NRGBA64Model:
		return "RGBA"
	case color.YCbCrModel:
		return "YCbCr"
	case color.NYCbCrAModel:
		return "YCbCrA"
	case color.CMYKModel:
		return "CMYK"
	case color.AlphaModel, color.Alpha16Model:
		return "A"
	default:
		return "unknown"
	}
}
