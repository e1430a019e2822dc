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

const resetTokenTTL = 24 * time.Hour

type registerReq struct {
    Username string `json:"username"`
    Email    string `json:"email"`
    Password string `json:"password"`
}
type verifyReq struct {
    Email string `json:"email"`
    Code  string `json:"code"`
}
type forgotReq struct {
    Email string `json:"email"`
}
type resetReq struct {
    Password        string `json:"password"`
    ConfirmPassword string `json:"confirm_password"`
}
type changePasswordReq struct {
    CurrentPassword string `json:"current_password"`
    NewPassword     string `json:"new_password"`
}
type changeRoleReq struct {
    Role string `json:"role"`
}

// Register creates an unverified account and queues the verification mail.
// New accounts always start with the plain user role; elevation is a
// separate, admin-driven operation.
func (h *AuthHandler) Register(c echo.Context) error {
    var req registerReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    req.Username = strings.TrimSpace(req.Username)
    req.Email = strings.TrimSpace(strings.ToLower(req.Email))
    switch {
    case req.Username == "" || req.Email == "" || req.Password == "":
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "username/email/password required"})
    case !strings.Contains(req.Email, "@"):
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid email"})
    case len(req.Password) < utils.MinPasswordLen:
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "password too short"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    code, err := utils.NewVerificationCode()
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "generate code failed"})
    }

    id, err := h.Users.Create(ctx, req.Username, req.Email, req.Password, model.RoleUser, h.Cfg.BcryptCost, false, code)
    if err != nil {
        switch {
        case errors.Is(err, repository.ErrEmailExists):
            return c.JSON(http.StatusConflict, echo.Map{"error": "email already registered"})
        case errors.Is(err, repository.ErrUsernameExists):
            return c.JSON(http.StatusConflict, echo.Map{"error": "username already taken"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create user failed"})
    }

    // Mail is fire-and-forget: the code is already persisted, so a lost
    // message only means the user requests another one.
    go func(email, code string) {
        bg, cancel := context.WithTimeout(context.Background(), 10*time.Second)
        defer cancel()
        if err := h.Mail.SendVerificationCode(bg, email, code); err != nil {
            log.Printf("account: queue verification mail for %s failed: %v", email, err)
        }
    }(req.Email, code)

    return c.JSON(http.StatusCreated, echo.Map{
        "message": "registered; check your email for the verification code",
        "id":      id,
        "email":   req.Email,
    })
}

// VerifyEmail consumes a pending verification code and flips the account to
// verified.  The match-and-consume is a single store operation, so a code
// can never be used twice.
func (h *AuthHandler) VerifyEmail(c echo.Context) error {
    var req verifyReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    req.Email = strings.TrimSpace(strings.ToLower(req.Email))
    req.Code = strings.TrimSpace(req.Code)
    if req.Email == "" || req.Code == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/code required"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    if err := h.Users.Verify(ctx, req.Email, req.Code); err != nil {
        if errors.Is(err, repository.ErrNotFound) {
            return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid email or code"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "verify failed"})
    }
    return c.JSON(http.StatusOK, echo.Map{"message": "email verified"})
}

// ForgotPassword mints a single-use reset ticket and queues the reset mail.
// The response is identical whether or not the address is known, so the
// endpoint cannot be used to probe for registered emails.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
    var req forgotReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    req.Email = strings.TrimSpace(strings.ToLower(req.Email))
    if req.Email == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "email required"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    generic := echo.Map{"message": "if the address is registered, a reset link has been sent"}

    u, err := h.Users.GetByEmail(ctx, req.Email)
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return c.JSON(http.StatusOK, generic)
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
    }

    token := utils.NewResetToken()
    if err := h.Resets.Upsert(ctx, u.ID, token, time.Now().UTC().Add(resetTokenTTL)); err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create reset failed"})
    }

    resetURL := strings.TrimRight(h.Cfg.BaseURL, "/") + "/v1/auth/reset/" + token
    go func(email, url, username string) {
        bg, cancel := context.WithTimeout(context.Background(), 10*time.Second)
        defer cancel()
        if err := h.Mail.SendPasswordResetLink(bg, email, url, username); err != nil {
            log.Printf("account: queue reset mail for %s failed: %v", email, err)
        }
    }(u.Email, resetURL, u.Username)

    return c.JSON(http.StatusOK, generic)
}

// ResetPassword redeems a reset ticket.  The ticket must exist, be unused
// and unexpired; redeeming marks it used so the link works exactly once.
func (h *AuthHandler) ResetPassword(c echo.Context) error {
    token := c.Param("token")
    var req resetReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    switch {
    case req.Password == "" || req.ConfirmPassword == "":
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "password/confirm_password required"})
    case req.Password != req.ConfirmPassword:
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "passwords do not match"})
    case len(req.Password) < utils.MinPasswordLen:
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "password too short"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    ticket, err := h.Resets.GetValid(ctx, token)
    if err != nil {
        if errors.Is(err, repository.ErrNotFound) {
            return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid or expired reset link"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
    }

    hash, err := utils.HashPassword(req.Password, h.Cfg.BcryptCost)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "hash failed"})
    }
    if err := h.Users.UpdatePassword(ctx, ticket.UserID, hash); err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update password failed"})
    }
    if err := h.Resets.MarkUsed(ctx, token); err != nil {
        log.Printf("account: mark reset used failed: %v", err)
    }
    // A password change invalidates the server-side session; the holder of
    // the old refresh token must log in again.
    if _, err := h.Sessions.DeleteRefresh(ctx, ticket.UserID); err != nil {
        log.Printf("account: revoke session for user %d failed: %v", ticket.UserID, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"message": "password updated"})
}

// ChangePassword lets an authenticated user rotate their own password after
// re-proving the current one.
func (h *AuthHandler) ChangePassword(c echo.Context) error {
    ident, ok := middleware.CurrentIdentity(c)
    if !ok {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated"})
    }
    var req changePasswordReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    if req.CurrentPassword == "" || req.NewPassword == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "current_password/new_password required"})
    }
    if len(req.NewPassword) < utils.MinPasswordLen {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "password too short"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    u, err := h.Users.GetByID(ctx, ident.ID)
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            // The sentinel superadmin has no durable row and therefore no
            // stored password to change.
            return c.JSON(http.StatusNotFound, echo.Map{"error": "no durable account for this identity"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
    }
    if !utils.VerifyPassword(u.PasswordHash, req.CurrentPassword) {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "current password is incorrect"})
    }

    hash, err := utils.HashPassword(req.NewPassword, h.Cfg.BcryptCost)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "hash failed"})
    }
    if err := h.Users.UpdatePassword(ctx, u.ID, hash); err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update password failed"})
    }
    return c.JSON(http.StatusOK, echo.Map{"message": "password updated"})
}

// ChangeRole elevates or demotes another account.  Route middleware already
// restricts access to admin and superadmin callers; this handler enforces
// the remaining rules: only user/admin are assignable, nobody edits their
// own role, and superadmin accounts are immutable.
func (h *AuthHandler) ChangeRole(c echo.Context) error {
    actor, ok := middleware.CurrentIdentity(c)
    if !ok {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated"})
    }
    targetID, err := strconv.ParseInt(c.Param("id"), 10, 64)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
    }
    var req changeRoleReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }

    // Ordering matters: an invalid role value is reported before any
    // target-specific outcome leaks information about the target.
    if req.Role != model.RoleUser && req.Role != model.RoleAdmin {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "role must be user or admin"})
    }
    if actor.ID == targetID {
        return c.JSON(http.StatusForbidden, echo.Map{"error": "cannot change your own role"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    target, err := h.Users.GetByID(ctx, targetID)
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
    }
    if target.Role == model.RoleSuperadmin {
        return c.JSON(http.StatusForbidden, echo.Map{"error": "superadmin role is immutable"})
    }
    if err := h.Users.UpdateRole(ctx, targetID, req.Role); err != nil {
        if errors.Is(err, repository.ErrNotFound) {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update role failed"})
    }
    return c.JSON(http.StatusOK, echo.Map{"id": targetID, "role": req.Role})
}
