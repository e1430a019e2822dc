// Package router wires handlers and middleware onto the Echo instance.  All
// API routes live under /v1; the health probe stays unversioned for load
// balancers.
package router

import (
    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"

    "github.com/iliyamo/contacts-api/internal/config"
    "github.com/iliyamo/contacts-api/internal/handler"
    "github.com/iliyamo/contacts-api/internal/middleware"
    "github.com/iliyamo/contacts-api/internal/model"
)

// RegisterRoutes mounts every endpoint.  Route-level middleware is layered
// here so the protection each endpoint gets is visible in one place:
// JWTAuth for anything personal, RequireRole for admin surfaces, the token
// bucket on identity lookups and the response cache on the session listing.
func RegisterRoutes(e *echo.Echo, cfg config.Config, auth *handler.AuthHandler, health *handler.HealthHandler, rdb *redis.Client) {
    e.GET("/health", health.Health)

    jwtAuth := middleware.JWTAuth(cfg.JWTSecret)
    adminOnly := middleware.RequireRole(model.RoleAdmin, model.RoleSuperadmin)
    rateLimit := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)
    cached := middleware.NewRedisCache(config.LoadCacheConfig(), rdb)

    v1 := e.Group("/v1")

    a := v1.Group("/auth")
    a.POST("/register", auth.Register)
    a.POST("/verify", auth.VerifyEmail)
    a.POST("/token", auth.Login)
    a.POST("/refresh", auth.Refresh)
    a.POST("/logout", auth.Logout)
    a.GET("/status", auth.Status)
    a.POST("/forgot", auth.ForgotPassword)
    a.POST("/reset/:token", auth.ResetPassword)
    // Switching inspects the access token itself (best effort), so it is
    // not behind JWTAuth: a caller with only a warm target may switch.
    a.POST("/switch/:id", auth.Switch)
    a.GET("/accounts/status", auth.AccountsStatus, rateLimit)

    v1.GET("/me", auth.Me, jwtAuth, rateLimit)

    users := v1.Group("/users", jwtAuth)
    users.PATCH("/password", auth.ChangePassword)
    users.POST("/:id/role", auth.ChangeRole, adminOnly)

    v1.GET("/sessions/active", auth.ActiveSessions, jwtAuth, adminOnly, cached)
}
