package db

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats represents database connection pool statistics.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
	Healthy         bool   `json:"healthy"`
}

// GetPoolStats returns connection pool statistics.
func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
		Healthy:         stat.TotalConns() > 0,
	}
}

// Checker is a database that can be pinged for health.
type Checker interface {
	Ping(ctx context.Context) error
	Stats() interface{}
}

type pgChecker struct{ pool *pgxpool.Pool }

// PGChecker adapts a pgx pool to Checker.
func PGChecker(pool *pgxpool.Pool) Checker { return pgChecker{pool: pool} }

func (c pgChecker) Ping(ctx context.Context) error { return c.pool.Ping(ctx) }
func (c pgChecker) Stats() interface{}             { return GetPoolStats(c.pool) }

type sqlChecker struct{ db *sql.DB }

// SQLChecker adapts a database/sql handle to Checker.
func SQLChecker(sqlDB *sql.DB) Checker { return sqlChecker{db: sqlDB} }

func (c sqlChecker) Ping(ctx context.Context) error { return c.db.PingContext(ctx) }
func (c sqlChecker) Stats() interface{}             { return c.db.Stats() }

// HealthHandler returns a handler for the database health check endpoint.
func HealthHandler(checker Checker) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		if err := checker.Ping(ctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
				"status": "unhealthy",
				"error":  "database unreachable",
				"pool":   checker.Stats(),
			})
		}
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status": "healthy",
			"pool":   checker.Stats(),
		})
	}
}
