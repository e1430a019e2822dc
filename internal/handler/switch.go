package handler

import (
    "context"
    "database/sql"
    "errors"
    "log"
    "net/http"
    "strconv"
    "strings"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/contacts-api/internal/middleware"
    "github.com/iliyamo/contacts-api/internal/model"
    "github.com/iliyamo/contacts-api/internal/repository"
    "github.com/iliyamo/contacts-api/internal/utils"
)

type accountStatus struct {
    ID       int64               `json:"id"`
    Username string              `json:"username,omitempty"`
    Email    string              `json:"email,omitempty"`
    Role     string              `json:"role,omitempty"`
    Presence repository.Presence `json:"presence"`
    Found    bool                `json:"found"`
}

// Switch re-issues the browser's cookies for another account without a
// password prompt.  The target must either be the configured superadmin
// identity or a durable account with warm presence; a cold durable target
// gets a login_required answer instead of tokens, so possession of one
// session never silently unlocks a dormant account.  Switching revokes the
// previous account's server-side session.
func (h *AuthHandler) Switch(c echo.Context) error {
    targetID, err := strconv.ParseInt(c.Param("id"), 10, 64)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    // Best-effort view of who is switching away.  A stale or absent access
    // token does not fail the switch; it only skips the revocation step.
    var current model.Identity
    haveCurrent := false
    if raw := middleware.ExtractBearer(c); raw != "" {
        if claims, err := utils.VerifyAccessToken(h.Cfg.JWTSecret, raw); err == nil {
            current = claims.Identity()
            haveCurrent = true
        }
    }

    var target model.Identity
    sentinel := targetID == model.SuperadminSentinelID && h.Cfg.Superadmin.Configured()
    if sentinel {
        sa := h.Cfg.Superadmin
        target = model.SuperadminIdentity(model.SuperadminSentinelID, sa.Username, sa.Email)
    } else {
        u, err := h.Users.GetByID(ctx, targetID)
        if err != nil {
            if errors.Is(err, sql.ErrNoRows) {
                return c.JSON(http.StatusNotFound, echo.Map{"error": "target user not found"})
            }
            return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
        }
        target = model.IdentityOf(u)
    }

    if haveCurrent && current.ID != target.ID {
        if _, err := h.Sessions.DeleteRefresh(ctx, current.ID); err != nil {
            log.Printf("switch: revoke session for user %d failed: %v", current.ID, err)
        }
    }

    // Durable targets must be warm.  The configuration-defined superadmin
    // is exempt: it has no password-login history to check against.
    if !sentinel && target.Role != model.RoleSuperadmin {
        if h.Sessions.PresenceOf(ctx, target.ID) == repository.PresenceGray {
            return c.JSON(http.StatusUnauthorized, echo.Map{
                "status": "login_required",
                "email":  target.Email,
            })
        }
    }

    resp, err := h.issueSession(ctx, c, target)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue tokens failed"})
    }
    return c.JSON(http.StatusOK, resp)
}

// AccountsStatus reports the presence dot for each id in the comma-separated
// ids query parameter.  Presence is informational only; the endpoint never
// reveals more than whether a known account has recent session activity.
func (h *AuthHandler) AccountsStatus(c echo.Context) error {
    raw := strings.TrimSpace(c.QueryParam("ids"))
    if raw == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "ids query parameter required"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    out := map[string]accountStatus{}
    for _, part := range strings.Split(raw, ",") {
        part = strings.TrimSpace(part)
        if part == "" {
            continue
        }
        id, err := strconv.ParseInt(part, 10, 64)
        if err != nil {
            continue
        }
        key := strconv.FormatInt(id, 10)

        if id == model.SuperadminSentinelID {
            st := accountStatus{ID: id, Presence: repository.PresenceGray}
            if h.Cfg.Superadmin.Configured() {
                st.Found = true
                st.Username = h.Cfg.Superadmin.Username
                st.Email = h.Cfg.Superadmin.Email
                st.Role = model.RoleSuperadmin
                st.Presence = h.Sessions.PresenceOf(ctx, id)
            }
            out[key] = st
            continue
        }

        u, err := h.Users.GetByID(ctx, id)
        if err != nil {
            out[key] = accountStatus{ID: id, Presence: repository.PresenceGray}
            continue
        }
        out[key] = accountStatus{
            ID:       u.ID,
            Username: u.Username,
            Email:    u.Email,
            Role:     u.Role,
            Presence: h.Sessions.PresenceOf(ctx, u.ID),
            Found:    true,
        }
    }
    return c.JSON(http.StatusOK, out)
}

// ActiveSessions lists every live session known to the registry, using the
// denormalized snapshots stored alongside each refresh record.  Admin only;
// the response is served through the short-TTL response cache.
func (h *AuthHandler) ActiveSessions(c echo.Context) error {
    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    sessions, err := h.Sessions.ActiveSessions(ctx)
    if err != nil {
        return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "session registry unavailable"})
    }
    if sessions == nil {
        sessions = []model.Identity{}
    }
    return c.JSON(http.StatusOK, echo.Map{"count": len(sessions), "sessions": sessions})
}
