package storage

import (
	"errors"
	"time"

	"github.com/phambaophuc/phantom-splice/internal/config"
	"github.com/redis/go-redis/v9"
	storage_go "github.com/supabase-community/storage-go"
)

var (
	ErrNotConfigured = errors.New("storage backend not configured")
	ErrJobNotFound   = errors.New("job not found")
)

// StorageService wraps the Supabase bucket used for job images and the
// Redis instance used for cached cutouts and job records. Either side may
// be absent.
type StorageService struct {
	sbClient      *storage_go.Client
	redisClient   *redis.Client
	bucket        string
	cacheDuration time.Duration
	jobTTL        time.Duration
}

func NewStorageService(cfg *config.Config) (*StorageService, error) {
	s := &StorageService{
		bucket:        cfg.Supabase.BUCKET,
		cacheDuration: cfg.Cache.Duration,
		jobTTL:        cfg.Jobs.RecordTTL,
	}

	if cfg.Supabase.URL != "" {
		s.sbClient = storage_go.NewClient(cfg.Supabase.URL+"/storage/v1", cfg.Supabase.KEY, nil)
	}

	if cfg.Redis.Addr != "" {
		s.redisClient = redis.NewClient(&redis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     10,
			MinIdleConns: 2,
			MaxRetries:   3,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
		})
	}

	return s, nil
}

func (s *StorageService) HasObjectStore() bool {
	return s.sbClient != nil
}

func (s *StorageService) HasRedis() bool {
	return s.redisClient != nil
}

func (s *StorageService) Close() error {
	if s.redisClient != nil {
		return s.redisClient.Close()
	}
	return nil
}
