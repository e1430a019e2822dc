package handler

import (
    "context"
    "database/sql"
    "errors"
    "log"
    "net/http"
    "strings"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/contacts-api/internal/config"
    "github.com/iliyamo/contacts-api/internal/middleware"
    "github.com/iliyamo/contacts-api/internal/model"
    "github.com/iliyamo/contacts-api/internal/repository"
    mailer "github.com/iliyamo/contacts-api/internal/service"
    "github.com/iliyamo/contacts-api/internal/utils"
)

// UserStore is the credential-store surface the handlers consume.  The
// concrete implementation is repository.UserRepo; tests substitute an
// in-memory fake.
type UserStore interface {
    Create(ctx context.Context, username, email, password, role string, cost int, verified bool, verificationCode string) (int64, error)
    GetByEmail(ctx context.Context, email string) (model.User, error)
    GetByUsername(ctx context.Context, username string) (model.User, error)
    GetByID(ctx context.Context, id int64) (model.User, error)
    UpdateRole(ctx context.Context, id int64, role string) error
    UpdatePassword(ctx context.Context, id int64, passwordHash string) error
    Verify(ctx context.Context, email, code string) error
}

// ResetStore persists password-reset tickets.
type ResetStore interface {
    Upsert(ctx context.Context, userID int64, token string, expiresAt time.Time) error
    GetValid(ctx context.Context, token string) (model.PasswordReset, error)
    MarkUsed(ctx context.Context, token string) error
}

// AuthHandler bundles dependencies for all authentication, account and
// session endpoints.
type AuthHandler struct {
    Cfg      config.Config
    Users    UserStore
    Resets   ResetStore
    Sessions *repository.SessionRegistry
    Mail     mailer.Mailer
}

func NewAuthHandler(cfg config.Config, u UserStore, r ResetStore, s *repository.SessionRegistry, m mailer.Mailer) *AuthHandler {
    return &AuthHandler{Cfg: cfg, Users: u, Resets: r, Sessions: s, Mail: m}
}

// ----- DTOs -----

type loginReq struct {
    Identifier string `json:"identifier"` // username, or email when it contains '@'
    Password   string `json:"password"`
}
type refreshReq struct {
    RefreshToken string `json:"refresh_token"`
}

type tokenPart struct {
    Token   string    `json:"token"`
    Expires time.Time `json:"expires"`
}
type authResp struct {
    User    model.Identity `json:"user"`
    Access  tokenPart      `json:"access"`
    Refresh *tokenPart     `json:"refresh,omitempty"` // omitted when refresh issuance degraded
}

// ----- cookie helpers -----

func setAuthCookie(c echo.Context, name, value string, maxAge int) {
    c.SetCookie(&http.Cookie{
        Name:     name,
        Value:    value,
        Path:     "/",
        MaxAge:   maxAge,
        HttpOnly: true,
        SameSite: http.SameSiteLaxMode,
    })
}

func clearAuthCookie(c echo.Context, name string) {
    c.SetCookie(&http.Cookie{
        Name:     name,
        Value:    "",
        Path:     "/",
        MaxAge:   -1,
        HttpOnly: true,
        SameSite: http.SameSiteLaxMode,
    })
}

// issueSession mints an access+refresh pair for the identity, persists the
// refresh token in the session registry with a denormalized snapshot, and
// sets both cookies.  When the registry is unreachable the login still
// succeeds with an access token alone; refresh rotation is degraded, not the
// whole request.
func (h *AuthHandler) issueSession(ctx context.Context, c echo.Context, ident model.Identity) (authResp, error) {
    access, err := utils.NewAccessToken(h.Cfg.JWTSecret, ident, h.Cfg.AccessTTLMin)
    if err != nil {
        return authResp{}, err
    }
    resp := authResp{User: ident, Access: tokenPart{Token: access.Token, Expires: access.Exp}}

    refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
    if err != nil {
        return authResp{}, err
    }
    if err := h.Sessions.StoreRefresh(ctx, ident.ID, refresh.Raw, refresh.Exp, ident); err != nil {
        // Degraded mode: the client gets no refresh cookie and will have to
        // log in again when the access token expires.
        log.Printf("auth: store refresh for user %d failed: %v", ident.ID, err)
    } else {
        resp.Refresh = &tokenPart{Token: refresh.Raw, Expires: refresh.Exp}
        setAuthCookie(c, middleware.RefreshCookie, refresh.Raw, h.Cfg.RefreshTTLDays*24*3600)
    }

    setAuthCookie(c, middleware.AccessCookie, access.Token, h.Cfg.AccessTTLMin*60)
    return resp, nil
}

// resolveByIdentifier looks a user up by email when the identifier contains
// an '@', by username otherwise.
func (h *AuthHandler) resolveByIdentifier(ctx context.Context, identifier string) (model.User, error) {
    if strings.Contains(identifier, "@") {
        return h.Users.GetByEmail(ctx, identifier)
    }
    return h.Users.GetByUsername(ctx, identifier)
}

// Login verifies credentials and returns a fresh token pair.  The configured
// superadmin identity is checked first and short-circuits the store lookup;
// its durable row is used for the id when one exists, the reserved sentinel
// otherwise.  "No such user" and "wrong password" are indistinguishable in
// the response.
func (h *AuthHandler) Login(c echo.Context) error {
    var req loginReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    req.Identifier = strings.TrimSpace(req.Identifier)
    if req.Identifier == "" || req.Password == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "identifier/password required"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    sa := h.Cfg.Superadmin
    if sa.Configured() && req.Identifier == sa.Username && req.Password == sa.Password {
        id := model.SuperadminSentinelID
        if row, err := h.Users.GetByUsername(ctx, sa.Username); err == nil {
            id = row.ID
        }
        resp, err := h.issueSession(ctx, c, model.SuperadminIdentity(id, sa.Username, sa.Email))
        if err != nil {
            return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue tokens failed"})
        }
        return c.JSON(http.StatusOK, resp)
    }

    u, err := h.resolveByIdentifier(ctx, req.Identifier)
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
    }
    if !utils.VerifyPassword(u.PasswordHash, req.Password) {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
    }
    if !u.IsVerified {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "email not verified"})
    }

    resp, err := h.issueSession(ctx, c, model.IdentityOf(u))
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue tokens failed"})
    }
    return c.JSON(http.StatusOK, resp)
}

// refreshTokenFrom returns the refresh token from the cookie or, failing
// that, from the JSON body.
func refreshTokenFrom(c echo.Context) string {
    if ck, err := c.Cookie(middleware.RefreshCookie); err == nil && ck.Value != "" {
        return ck.Value
    }
    var req refreshReq
    _ = c.Bind(&req)
    return strings.TrimSpace(req.RefreshToken)
}

// Refresh exchanges a valid refresh token for a new access token.  The
// refresh token itself is not rotated here; rotation happens on login and on
// account switch.  A token that no longer resolves (revoked, expired,
// superseded by a newer login, or minted before an epoch bump) is a normal
// "please log in again" outcome.
func (h *AuthHandler) Refresh(c echo.Context) error {
    token := refreshTokenFrom(c)
    if token == "" {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "refresh token required"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    uid, err := h.Sessions.LookupUserByRefresh(ctx, token)
    if err != nil {
        if errors.Is(err, repository.ErrInvalidRefreshToken) {
            return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh token"})
        }
        return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "session registry unavailable"})
    }

    ident, err := h.identityByID(ctx, uid)
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load user failed"})
    }

    access, err := utils.NewAccessToken(h.Cfg.JWTSecret, ident, h.Cfg.AccessTTLMin)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue access failed"})
    }
    if err := h.Sessions.MarkActive(ctx, uid); err != nil {
        log.Printf("auth: mark active for user %d failed: %v", uid, err)
    }
    setAuthCookie(c, middleware.AccessCookie, access.Token, h.Cfg.AccessTTLMin*60)

    return c.JSON(http.StatusOK, authResp{
        User:   ident,
        Access: tokenPart{Token: access.Token, Expires: access.Exp},
    })
}

// identityByID resolves a user id to an identity, honoring the superadmin
// sentinel: when the configured superadmin has no durable row, a consistent
// synthetic projection is returned instead of a not-found error.
func (h *AuthHandler) identityByID(ctx context.Context, uid int64) (model.Identity, error) {
    if uid == model.SuperadminSentinelID && h.Cfg.Superadmin.Configured() {
        return model.SuperadminIdentity(model.SuperadminSentinelID, h.Cfg.Superadmin.Username, h.Cfg.Superadmin.Email), nil
    }
    u, err := h.Users.GetByID(ctx, uid)
    if err != nil {
        return model.Identity{}, err
    }
    return model.IdentityOf(u), nil
}

// Logout revokes the caller's server-side session and clears both cookies.
// The user id is resolved from whichever credential decodes: the access
// token first, the refresh token's reverse lookup as a fallback.  Logout is
// idempotent; it reports success even when there was nothing to revoke.
func (h *AuthHandler) Logout(c echo.Context) error {
    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    var uid int64
    resolved := false
    if raw := middleware.ExtractBearer(c); raw != "" {
        if claims, err := utils.VerifyAccessToken(h.Cfg.JWTSecret, raw); err == nil {
            uid = claims.ID
            resolved = true
        }
    }
    if !resolved {
        if token := refreshTokenFrom(c); token != "" {
            if id, err := h.Sessions.LookupUserByRefresh(ctx, token); err == nil {
                uid = id
                resolved = true
            }
        }
    }

    if resolved {
        if _, err := h.Sessions.DeleteRefresh(ctx, uid); err != nil {
            log.Printf("auth: delete refresh for user %d failed: %v", uid, err)
        }
    }

    clearAuthCookie(c, middleware.AccessCookie)
    clearAuthCookie(c, middleware.RefreshCookie)
    return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}

// Status reports the session-registry view of the caller's tokens without
// touching the credential store: active (refresh record + activity marker),
// inactive (record but no marker), expired (no record) or unknown (no way to
// tell who is asking).
func (h *AuthHandler) Status(c echo.Context) error {
    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    var uid int64
    resolved := false
    if token := refreshTokenFrom(c); token != "" {
        if id, err := h.Sessions.LookupUserByRefresh(ctx, token); err == nil {
            uid = id
            resolved = true
        }
    }
    if !resolved {
        return c.JSON(http.StatusOK, echo.Map{"status": "unknown"})
    }

    if _, _, err := h.Sessions.GetRefresh(ctx, uid); err != nil {
        return c.JSON(http.StatusOK, echo.Map{"status": "expired", "user_id": uid})
    }
    if h.Sessions.IsActive(ctx, uid) {
        return c.JSON(http.StatusOK, echo.Map{"status": "active", "user_id": uid})
    }
    return c.JSON(http.StatusOK, echo.Map{"status": "inactive", "user_id": uid})
}

// Me returns the authenticated identity.  Claims are normally trusted
// as-is, but this endpoint cross-references the credential store by email
// for defense in depth; a configured superadmin without a durable row gets
// a consistent synthetic projection.
func (h *AuthHandler) Me(c echo.Context) error {
    ident, ok := middleware.CurrentIdentity(c)
    if !ok {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    u, err := h.Users.GetByEmail(ctx, ident.Email)
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) && ident.IsSuperadmin() {
            sa := h.Cfg.Superadmin
            return c.JSON(http.StatusOK, model.SuperadminIdentity(ident.ID, sa.Username, sa.Email))
        }
        if errors.Is(err, sql.ErrNoRows) {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
    }
    return c.JSON(http.StatusOK, model.IdentityOf(u))
}
