package handler

import (
    "context"
    "database/sql"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"
)

// HealthHandler exposes a liveness/readiness probe over the two backing
// stores.  A down Redis degrades sessions but does not fail the probe; a
// down database does.
type HealthHandler struct {
    DB  *sql.DB
    RDB *redis.Client
}

func NewHealthHandler(db *sql.DB, rdb *redis.Client) *HealthHandler {
    return &HealthHandler{DB: db, RDB: rdb}
}

// Health reports component status as JSON.
func (h *HealthHandler) Health(c echo.Context) error {
    ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
    defer cancel()

    status := http.StatusOK
    db := "ok"
    if h.DB == nil {
        db = "unconfigured"
        status = http.StatusServiceUnavailable
    } else if err := h.DB.PingContext(ctx); err != nil {
        db = "down"
        status = http.StatusServiceUnavailable
    }

    cache := "ok"
    if h.RDB == nil {
        cache = "degraded"
    } else if err := h.RDB.Ping(ctx).Err(); err != nil {
        cache = "down"
    }

    return c.JSON(status, echo.Map{"database": db, "sessions": cache})
}
