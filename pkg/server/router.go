package server

import (
	"github.com/gin-gonic/gin"
)

type Config struct {
	Radius  int
	Workers int
	// MaxUploadBytes rejects larger uploads; 0 disables the check.
	MaxUploadBytes int64
	Jobs           Enqueuer
	Status         StatusStore
}

// SetupRouter wires the HTTP API.
func SetupRouter(cfg Config) *gin.Engine {
	h := &Handler{
		jobs:      cfg.Jobs,
		status:    cfg.Status,
		radius:    cfg.Radius,
		workers:   cfg.Workers,
		maxUpload: cfg.MaxUploadBytes,
	}

	router := gin.Default()
	if cfg.MaxUploadBytes > 0 {
		router.MaxMultipartMemory = cfg.MaxUploadBytes
	}

	router.GET("/healthz", h.HealthHandler)

	api := router.Group("/api")
	{
		api.POST("/softedge", h.ProcessHandler)

		jobs := api.Group("/jobs")
		{
			jobs.POST("", h.EnqueueHandler)
			jobs.GET("/:id", h.StatusHandler)
		}
	}

	return router
}
