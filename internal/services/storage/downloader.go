package storage

import (
	"context"
	"fmt"
)

func (s *StorageService) Download(ctx context.Context, key string) ([]byte, error) {
	if s.sbClient == nil {
		return nil, ErrNotConfigured
	}
	data, err := s.sbClient.DownloadFile(s.bucket, key)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", key, err)
	}
	return data, nil
}
