package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func SetupRoutes(router *gin.Engine, handler *Handler, allowedOrigins []string) {
	router.Use(cors.New(cors.Config{
		AllowOrigins: allowedOrigins,
		AllowMethods: []string{"GET", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       12 * time.Hour,
	}))

	api := router.Group("/api")
	{
		api.GET("/properties", handler.GetAllProperties)
		api.GET("/properties/:id", handler.GetProperty)
		api.GET("/stats", handler.GetPropertyStats)
		api.GET("/recent-sales", handler.GetRecentSales)
		api.GET("/runs", handler.GetRunMetadata)
		api.GET("/map/properties", handler.GetPropertyFeatures)
		api.GET("/map/neighborhoods", handler.GetNeighborhoodHulls)
	}
}
