package processor

import (
	"image"
	"image/png"
	"io"
)

// alphaImage makes the PNG encoder keep the alpha channel even when every
// pixel of the cutout is opaque.
type alphaImage struct {
	*image.NRGBA
}

func (alphaImage) Opaque() bool {
	return false
}

func (p *ImageProcessor) encodeImage(w io.Writer, img *image.NRGBA) error {
	enc := png.Encoder{CompressionLevel: png.DefaultCompression}
	return enc.Encode(w, alphaImage{img})
}
