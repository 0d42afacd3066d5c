package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/algobrain/threatgraph-backend/internal/handlers"
)

type RouterConfig struct {
	IngestHandler   *handlers.IngestHandler
	StatsHandler    *handlers.StatsHandler
	CrossRefHandler *handlers.CrossRefHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	// Cors
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:80",
			"http://localhost:3000",
		},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api")
	{
		api.POST("/ingest", cfg.IngestHandler.Ingest)
		api.GET("/stats", cfg.StatsHandler.GetStats)
		api.GET("/crossrefs/report", cfg.CrossRefHandler.GetReport)
	}

	return router
}
