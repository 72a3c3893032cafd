package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/phambaophuc/phantom-splice/internal/config"
	"github.com/phambaophuc/phantom-splice/internal/http/handlers"
	"github.com/phambaophuc/phantom-splice/internal/http/routes"
	"github.com/phambaophuc/phantom-splice/internal/metrics"
	"github.com/phambaophuc/phantom-splice/internal/segment"
	"github.com/phambaophuc/phantom-splice/internal/services/processor"
	"github.com/phambaophuc/phantom-splice/internal/services/queue"
	"github.com/phambaophuc/phantom-splice/internal/services/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration: ", err)
	}

	// Initialize logger
	logger, err := newLogger(cfg.Log.Development)
	if err != nil {
		log.Fatal("Failed to initialize logger: ", err)
	}
	defer logger.Sync()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(registry)

	// Initialize services
	storageService, err := storage.NewStorageService(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize storage service", zap.Error(err))
	}
	defer storageService.Close()

	segmenter, pinger := newSegmenter(cfg)

	handlerOpts := handlers.Options{
		Storage:   storageService,
		Segmenter: pinger,
		Metrics:   m,
	}
	processorOpts := processor.Options{
		Variant:     cfg.SegmenterVariant(),
		MaxFileSize: cfg.Server.MaxFileSize,
		MaxPixels:   cfg.Server.MaxPixels,
		Metrics:     m,
		Logger:      logger,
	}

	switch cfg.Cache.Backend {
	case config.CacheMemory:
		memoryCache, err := storage.NewMemoryCache(cfg.Cache.Size)
		if err != nil {
			logger.Fatal("Failed to initialize memory cache", zap.Error(err))
		}
		processorOpts.Cache = memoryCache
		handlerOpts.Cache = memoryCache
	case config.CacheRedis:
		processorOpts.Cache = storageService
		handlerOpts.Cache = storageService
	}

	imageProcessor := processor.NewImageProcessor(segmenter, processorOpts)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Jobs.Enabled {
		queueService, sweeper := startJobs(ctx, cfg, imageProcessor, storageService, m, logger)
		if queueService != nil {
			defer queueService.Close()
			defer sweeper.Stop()

			handlerOpts.Queue = queueService
			handlerOpts.Blobs = storageService
			handlerOpts.Jobs = storageService
		}
	}

	// Initialize handlers
	imageHandler := handlers.NewImageHandler(imageProcessor, logger, handlerOpts)

	router := routes.NewRouter(imageHandler, logger, registry, routes.Options{
		IndexPage:          cfg.Server.IndexPage,
		MaxMultipartMemory: handlers.BodyLimit(cfg.Server.MaxFileSize),
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		Handler:      router.SetupRoutes(),
	}

	// Start server
	go func() {
		logger.Info("Starting server",
			zap.String("addr", server.Addr),
			zap.String("segmenter", cfg.Segmenter.Backend),
			zap.Bool("alpha_matting", cfg.Segmenter.AlphaMatting),
			zap.String("cache", cfg.Cache.Backend),
			zap.Bool("redis", storageService.HasRedis()),
			zap.Bool("object_store", storageService.HasObjectStore()),
			zap.Bool("jobs", imageHandler.JobsEnabled()),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

func newLogger(development bool) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// newSegmenter also returns a Pinger when the segmenter lives out of process.
func newSegmenter(cfg *config.Config) (segment.Segmenter, handlers.Pinger) {
	if cfg.Segmenter.Backend == config.SegmenterRemote {
		remote := segment.NewRemote(segment.RemoteOptions{
			Endpoint:     cfg.Segmenter.RemoteURL,
			Model:        cfg.Segmenter.RemoteModel,
			AlphaMatting: cfg.Segmenter.AlphaMatting,
			Timeout:      cfg.Segmenter.RemoteTimeout,
		})
		return remote, remote
	}

	return segment.NewColorKey(segment.ColorKeyOptions{
		Tolerance:    cfg.Segmenter.Tolerance,
		WorkSize:     cfg.Segmenter.WorkSize,
		AlphaMatting: cfg.Segmenter.AlphaMatting,
		FeatherSigma: cfg.Segmenter.FeatherSigma,
	}), nil
}

// startJobs connects the queue, starts the workers and the stale job sweeper.
// It returns nils when RabbitMQ is unreachable so the synchronous API keeps
// working.
func startJobs(
	ctx context.Context,
	cfg *config.Config,
	imageProcessor *processor.ImageProcessor,
	storageService *storage.StorageService,
	m *metrics.Metrics,
	logger *zap.Logger,
) (*queue.QueueService, *queue.Sweeper) {
	queueService, err := queue.NewQueueService(
		cfg.RabbitMQ.URL,
		cfg.RabbitMQ.Queue,
		cfg.Jobs.Workers,
		imageProcessor,
		storageService,
		storageService,
		m,
		logger,
	)
	if err != nil {
		logger.Warn("Failed to initialize queue service", zap.Error(err))
		// Continue without queue service for basic functionality
		return nil, nil
	}

	for i := 1; i <= cfg.Jobs.Workers; i++ {
		if err := queueService.StartWorker(ctx, i); err != nil {
			logger.Fatal("Failed to start worker", zap.Int("worker_id", i), zap.Error(err))
		}
	}

	sweeper := queue.NewSweeper(storageService, cfg.Jobs.SweepSchedule, cfg.Jobs.StaleAfter, m, logger)
	if err := sweeper.Start(); err != nil {
		logger.Fatal("Failed to start job sweeper", zap.Error(err))
	}

	return queueService, sweeper
}
