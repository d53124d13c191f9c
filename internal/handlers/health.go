package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"supportcore/internal/database"
	"supportcore/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
)

// HealthHandler handles basic health check requests
// @Summary Liveness check
// @Tags health
// @Produce json
// @Success 200 {object} models.HealthResponse
// @Router /healthz [get]
func HealthHandler(version string) echo.HandlerFunc {
	return func(c echo.Context) error {
		response := models.HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC(),
			Version:   version,
		}

		return c.JSON(http.StatusOK, response)
	}
}

// Pinger is a store that can report its own connectivity
type Pinger interface {
	Ping(ctx context.Context) error
}

// DBHealthHandler handles database health check requests
// @Summary Database health check
// @Tags health
// @Produce json
// @Success 200 {object} models.DBHealthResponse
// @Failure 503 {object} models.DBHealthResponse
// @Router /healthz/db [get]
func DBHealthHandler(db *sqlx.DB) echo.HandlerFunc {
	if db == nil {
		return pingHealth(nil, "Database connection not initialized")
	}
	return pingHealth(func(ctx context.Context) error {
		return database.ExecuteReadOnlyPing(ctx, db)
	}, "")
}

// PlatformHealthHandler reports whether the read-only platform customer store answers
// @Summary Platform customer store health check
// @Tags health
// @Produce json
// @Success 200 {object} models.DBHealthResponse
// @Failure 503 {object} models.DBHealthResponse
// @Router /healthz/platform [get]
func PlatformHealthHandler(platform Pinger) echo.HandlerFunc {
	if platform == nil {
		return pingHealth(nil, "Platform database not configured")
	}
	return pingHealth(platform.Ping, "")
}

// pingHealth runs ping with a timeout and reports latency. A nil ping is
// reported unhealthy with notConfigured as the error.
func pingHealth(ping func(ctx context.Context) error, notConfigured string) echo.HandlerFunc {
	return func(c echo.Context) error {
		response := models.DBHealthResponse{
			Status:    "unknown",
			Timestamp: time.Now().UTC(),
		}

		if ping == nil {
			response.Status = "unhealthy"
			response.Error = notConfigured
			return c.JSON(http.StatusServiceUnavailable, response)
		}

		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		start := time.Now()
		err := ping(ctx)
		response.Latency = time.Since(start)

		if err != nil {
			response.Status = "unhealthy"
			response.Error = fmt.Sprintf("Database read-only query failed: %v", err)
			return c.JSON(http.StatusServiceUnavailable, response)
		}

		response.Status = "healthy"
		response.Connected = true

		return c.JSON(http.StatusOK, response)
	}
}

// RootHandler handles requests to the root endpoint
func RootHandler(version string) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"service": "supportcore",
			"version": version,
			"status":  "running",
		})
	}
}
