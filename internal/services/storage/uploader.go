package storage

import (
	"bytes"
	"context"
	"fmt"
)

// Upload stores data under key in the bucket and returns its public URL.
func (s *StorageService) Upload(ctx context.Context, key string, data []byte) (string, error) {
	if s.sbClient == nil {
		return "", ErrNotConfigured
	}

	_, err := s.sbClient.UploadFile(s.bucket, key, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to upload to supabase: %w", err)
	}

	publicURL := s.sbClient.GetPublicUrl(s.bucket, key)
	return publicURL.SignedURL, nil
}

// Delete removes file from Supabase Storage
func (s *StorageService) Delete(ctx context.Context, key string) error {
	if s.sbClient == nil {
		return ErrNotConfigured
	}
	_, err := s.sbClient.RemoveFile(s.bucket, []string{key})
	return err
}
