package models

import "time"

// Cutout is a background-removed image encoded as PNG.
type Cutout struct {
	PNG          []byte
	Width        int
	Height       int
	SourceFormat string
	Cached       bool
}

type ProcessedImage struct {
	URL         string    `json:"url"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	FileSize    int64     `json:"file_size"`
	ProcessedAt time.Time `json:"processed_at"`
}
