package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/phambaophuc/phantom-splice/internal/http/handlers"
	"github.com/phambaophuc/phantom-splice/internal/http/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Options struct {
	IndexPage bool
	// MaxMultipartMemory bounds the part of a multipart body kept in RAM.
	// It should be at least the handlers' body limit so uploads never spill
	// to temporary files.
	MaxMultipartMemory int64
}

type Router struct {
	imageHandler *handlers.ImageHandler
	logger       *zap.Logger
	gatherer     prometheus.Gatherer
	opts         Options
}

func NewRouter(
	imageHandler *handlers.ImageHandler,
	logger *zap.Logger,
	gatherer prometheus.Gatherer,
	opts Options,
) *Router {
	return &Router{
		imageHandler: imageHandler,
		logger:       logger,
		gatherer:     gatherer,
		opts:         opts,
	}
}

func (r *Router) SetupRoutes() *gin.Engine {
	router := gin.New()
	if r.opts.MaxMultipartMemory > 0 {
		router.MaxMultipartMemory = r.opts.MaxMultipartMemory
	}

	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(r.logger))
	router.Use(middleware.ErrorHandler(r.logger))
	router.Use(middleware.CORS())
	router.Use(middleware.SecurityHeaders())

	router.POST("/sever", r.imageHandler.Sever)
	router.GET("/health", r.imageHandler.Health)
	router.GET("/ready", r.imageHandler.Ready)
	router.GET("/stats", r.imageHandler.Stats)

	if r.gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})))
	}

	if r.opts.IndexPage {
		router.GET("/", r.imageHandler.Index)
	}

	if r.imageHandler.JobsEnabled() {
		jobs := router.Group("/jobs")
		{
			jobs.POST("", r.imageHandler.SubmitJob)
			jobs.GET("/:id", r.imageHandler.GetJob)
		}
	}

	return router
}
