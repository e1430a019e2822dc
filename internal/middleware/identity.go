package middleware

// identity.go holds the helpers shared across middleware and handlers for
// locating the caller's credentials.  Every entry point extracts the access
// token through ExtractBearer so the header-vs-cookie precedence can never
// drift between routes.

import (
    "strconv"
    "strings"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/contacts-api/internal/model"
)

// AccessCookie and RefreshCookie are the cookie names carrying the two
// credentials.  Both are HTTP-only, SameSite=Lax and scoped to Path=/.
const (
    AccessCookie  = "access_token"
    RefreshCookie = "refresh_token"
)

// IdentityKey is the context key under which JWTAuth stores the resolved
// model.Identity for downstream handlers.
const IdentityKey = "identity"

// ExtractBearer returns the raw access token from the request, or "" when
// none is present.  The Authorization header takes precedence over the
// access_token cookie; a legacy "Bearer " prefix inside the cookie value is
// tolerated and stripped.
func ExtractBearer(c echo.Context) string {
    if auth := c.Request().Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
        return strings.TrimPrefix(auth, "Bearer ")
    }
    if ck, err := c.Cookie(AccessCookie); err == nil && ck.Value != "" {
        return strings.TrimPrefix(ck.Value, "Bearer ")
    }
    return ""
}

// CurrentIdentity returns the identity stored by JWTAuth, or false when the
// request is unauthenticated.
func CurrentIdentity(c echo.Context) (model.Identity, bool) {
    ident, ok := c.Get(IdentityKey).(model.Identity)
    return ident, ok
}

// currentUserID renders the authenticated user id for rate-limit keys.
// Unauthenticated callers share the "anon" bucket per IP.
func currentUserID(c echo.Context) string {
    if ident, ok := CurrentIdentity(c); ok {
        return strconv.FormatInt(ident.ID, 10)
    }
    return "anon"
}
