// Package bootstrap runs the startup sequence that must complete before the
// server accepts traffic: session-epoch rotation and superadmin
// provisioning.
package bootstrap

import (
    "context"
    "database/sql"
    "errors"
    "fmt"
    "log"
    "time"

    "github.com/iliyamo/contacts-api/internal/config"
    "github.com/iliyamo/contacts-api/internal/model"
    "github.com/iliyamo/contacts-api/internal/repository"
)

// Run executes the boot steps.  In prod an unreachable database is fatal;
// elsewhere the error is returned so the caller can decide.  A down session
// registry is never fatal: it only means pre-restart sessions were already
// unreachable anyway.
func Run(ctx context.Context, cfg config.Config, db *sql.DB, users *repository.UserRepo, sessions *repository.SessionRegistry) error {
    ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
    defer cancel()

    // Rotate the session epoch so no refresh token minted before this
    // restart is ever honored again.
    if err := sessions.Reset(ctx); err != nil {
        if errors.Is(err, repository.ErrUpstreamUnavailable) {
            log.Printf("bootstrap: session registry unavailable; continuing degraded")
        } else {
            log.Printf("bootstrap: session epoch rotation failed: %v; continuing", err)
        }
    } else {
        log.Printf("bootstrap: session epoch rotated; pre-restart sessions invalidated")
    }

    if db == nil {
        if cfg.Env == "prod" {
            log.Fatal("bootstrap: database is required in prod")
        }
        return fmt.Errorf("no database connection")
    }

    if err := ensureSuperadmin(ctx, cfg, users); err != nil {
        if cfg.Env == "prod" {
            log.Fatalf("bootstrap: superadmin provisioning failed: %v", err)
        }
        return err
    }
    return nil
}

// ensureSuperadmin converts the configuration-defined superadmin into a
// durable row when credentials are configured and no row exists yet.  An
// existing row is left untouched, including its password hash: the
// environment credentials always win at login time regardless.
func ensureSuperadmin(ctx context.Context, cfg config.Config, users *repository.UserRepo) error {
    sa := cfg.Superadmin
    if !sa.Configured() {
        log.Printf("bootstrap: no superadmin configured; skipping provisioning")
        return nil
    }

    if _, err := users.GetByUsername(ctx, sa.Username); err == nil {
        return nil
    } else if !errors.Is(err, sql.ErrNoRows) {
        return fmt.Errorf("lookup superadmin: %w", err)
    }

    id, err := users.Create(ctx, sa.Username, sa.Email, sa.Password, model.RoleSuperadmin, cfg.BcryptCost, true, "")
    if err != nil {
        // A concurrent boot may have inserted the row between lookup and
        // insert; both uniqueness conflicts mean the work is already done.
        if errors.Is(err, repository.ErrUsernameExists) || errors.Is(err, repository.ErrEmailExists) {
            return nil
        }
        return fmt.Errorf("create superadmin: %w", err)
    }
    log.Printf("bootstrap: superadmin %q provisioned (id=%d)", sa.Username, id)
    return nil
}
