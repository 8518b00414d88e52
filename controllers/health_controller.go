package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/usta-go-api/config"
	"github.com/kendall-kelly/usta-go-api/logger"
	"go.uber.org/zap"
)

// Version is stamped at build time with -ldflags "-X .../controllers.Version=..."
var Version = "dev"

// HealthCheck handles the health check endpoint
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Usta Go API is running",
		"version": Version,
	})
}

// DatabaseStatus checks database connectivity and returns table information
func DatabaseStatus(c *gin.Context) {
	db := config.GetDB()
	if db == nil {
		c.JSON(http.StatusServiceUnavailable, errorBody("DATABASE_ERROR", "Database is not configured"))
		return
	}

	// Get the underlying SQL database to check connection
	sqlDB, err := db.DB()
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorBody("DATABASE_ERROR", "Failed to get database instance"))
		return
	}

	// Ping the database to verify connection
	if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		logger.Log.Warn("Database ping failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorBody("DATABASE_CONNECTION_ERROR", "Database connection failed"))
		return
	}

	tables, err := db.WithContext(c.Request.Context()).Migrator().GetTables()
	if err != nil {
		logger.Log.Warn("Failed to list tables", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorBody("DATABASE_QUERY_ERROR", "Failed to query tables"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Database connected",
		"tables":  tables,
	})
}
