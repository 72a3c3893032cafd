package processor

import (
	"errors"
	"fmt"
)

var (
	ErrFileTooLarge  = errors.New("file too large")
	ErrImageTooLarge = errors.New("image too large")
)

type FileSizeError struct {
	Size int64
	Max  int64
}

func (e *FileSizeError) Error() string {
	return fmt.Sprintf("file size %d exceeds maximum allowed size %d", e.Size, e.Max)
}

func (e *FileSizeError) Is(target error) bool {
	return target == ErrFileTooLarge
}

func (p *ImageProcessor) ValidateSize(size int64) error {
	if size > p.maxSize {
		return &FileSizeError{Size: size, Max: p.maxSize}
	}
	return nil
}

// PixelLimitError is a processing failure: the upload is small but decodes
// to more pixels than the service will hold in memory.
type PixelLimitError struct {
	Width  int
	Height int
	Max    int64
}

func (e *PixelLimitError) Error() string {
	return fmt.Sprintf("image dimensions %dx%d exceed maximum of %d pixels", e.Width, e.Height, e.Max)
}

func (e *PixelLimitError) Is(target error) bool {
	return target == ErrImageTooLarge
}

func (p *ImageProcessor) ValidateDimensions(width, height int) error {
	if int64(width)*int64(height) > p.maxPixels {
		return &PixelLimitError{Width: width, Height: height, Max: p.maxPixels}
	}
	return nil
}
