package main

import (
    "context"
    "log"

    "github.com/joho/godotenv"
    "github.com/labstack/echo/v4"
    echomw "github.com/labstack/echo/v4/middleware"

    "github.com/iliyamo/contacts-api/internal/bootstrap"
    "github.com/iliyamo/contacts-api/internal/config"
    "github.com/iliyamo/contacts-api/internal/database"
    "github.com/iliyamo/contacts-api/internal/handler"
    "github.com/iliyamo/contacts-api/internal/queue"
    "github.com/iliyamo/contacts-api/internal/repository"
    "github.com/iliyamo/contacts-api/internal/router"
    mailer "github.com/iliyamo/contacts-api/internal/service"
)

func main() {
    // .env is optional; in deployed environments the variables come from the
    // process environment.
    if err := godotenv.Load(); err != nil {
        log.Println("no .env file found, relying on environment variables")
    }
    cfg := config.Load()

    db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
    if err != nil {
        if cfg.Env == "prod" {
            log.Fatalf("database connection failed: %v", err)
        }
        log.Printf("database connection failed: %v; auth endpoints will error", err)
    }

    rdb := config.NewRedisClient()
    if rdb == nil {
        log.Println("redis unavailable; sessions degraded, rate limiting and caching disabled")
    }
    sessions := repository.NewSessionRegistry(rdb)
    users := repository.NewUserRepo(db)
    resets := repository.NewResetRepo(db)

    if err := bootstrap.Run(context.Background(), cfg, db, users, sessions); err != nil {
        log.Printf("bootstrap incomplete: %v", err)
    }

    // Drain the outbound-mail queue in the background.  The consumer runs
    // its own reconnect loop and never brings the server down.
    go func() {
        if err := queue.StartMailConsumer(); err != nil {
            log.Printf("mail consumer stopped: %v", err)
        }
    }()

    e := echo.New()
    e.HideBanner = true
    e.Use(echomw.Recover())
    e.Use(echomw.Logger())

    auth := handler.NewAuthHandler(cfg, users, resets, sessions, mailer.NewQueue())
    health := handler.NewHealthHandler(db, rdb)
    router.RegisterRoutes(e, cfg, auth, health, rdb)

    e.Logger.Fatal(e.Start(":" + cfg.Port))
}
