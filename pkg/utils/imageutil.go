package utils

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	UploadPrefix    = "uploads"
	ProcessedPrefix = "processed"
)

// GenerateStorageKey builds a collision-free object key for an uploaded original.
func GenerateStorageKey(filename string) string {
	base := filepath.Base(filename)
	ext := strings.ToLower(filepath.Ext(base))
	name := sanitize(strings.TrimSuffix(base, filepath.Ext(base)))
	if name == "" {
		name = "image"
	}
	timestamp := time.Now().Unix()
	id := uuid.New().String()[:8]

	return fmt.Sprintf("%s/%s_%d_%s%s", UploadPrefix, name, timestamp, id, ext)
}

// GenerateResultKey is the object key of a job's cutout.
func GenerateResultKey(jobID string) string {
	return fmt.Sprintf("%s/%s.png", ProcessedPrefix, jobID)
}

func sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ' || r == '.':
			b.WriteRune('_')
		}
	}
	return b.String()
}
