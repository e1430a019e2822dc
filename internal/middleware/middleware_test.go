package middleware

import (
    "net/http"
    "net/http/httptest"
    "testing"
    "time"

    "github.com/alicebob/miniredis/v2"
    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/contacts-api/internal/config"
    "github.com/iliyamo/contacts-api/internal/model"
    "github.com/iliyamo/contacts-api/internal/utils"
)

const testSecret = "mw-secret"

func run(mw echo.MiddlewareFunc, req *http.Request) (*httptest.ResponseRecorder, echo.Context) {
    e := echo.New()
    rec := httptest.NewRecorder()
    c := e.NewContext(req, rec)
    handler := mw(func(c echo.Context) error {
        return c.String(http.StatusOK, "ok")
    })
    _ = handler(c)
    return rec, c
}

func TestExtractBearerPrecedence(t *testing.T) {
    e := echo.New()

    req := httptest.NewRequest(http.MethodGet, "/", nil)
    req.Header.Set("Authorization", "Bearer header-token")
    req.AddCookie(&http.Cookie{Name: AccessCookie, Value: "cookie-token"})
    c := e.NewContext(req, httptest.NewRecorder())
    assert.Equal(t, "header-token", ExtractBearer(c))

    req2 := httptest.NewRequest(http.MethodGet, "/", nil)
    req2.AddCookie(&http.Cookie{Name: AccessCookie, Value: "Bearer cookie-token"})
    c2 := e.NewContext(req2, httptest.NewRecorder())
    assert.Equal(t, "cookie-token", ExtractBearer(c2)) // legacy prefix stripped

    req3 := httptest.NewRequest(http.MethodGet, "/", nil)
    c3 := e.NewContext(req3, httptest.NewRecorder())
    assert.Empty(t, ExtractBearer(c3))
}

func TestJWTAuth(t *testing.T) {
    ident := model.Identity{ID: 3, Email: "c@example.com", Role: model.RoleUser}
    tok, err := utils.NewAccessToken(testSecret, ident, 15)
    require.NoError(t, err)

    t.Run("valid header token", func(t *testing.T) {
        req := httptest.NewRequest(http.MethodGet, "/", nil)
        req.Header.Set("Authorization", "Bearer "+tok.Token)
        rec, c := run(JWTAuth(testSecret), req)
        assert.Equal(t, http.StatusOK, rec.Code)

        got, ok := CurrentIdentity(c)
        require.True(t, ok)
        assert.Equal(t, int64(3), got.ID)
    })

    t.Run("valid cookie token", func(t *testing.T) {
        req := httptest.NewRequest(http.MethodGet, "/", nil)
        req.AddCookie(&http.Cookie{Name: AccessCookie, Value: tok.Token})
        rec, _ := run(JWTAuth(testSecret), req)
        assert.Equal(t, http.StatusOK, rec.Code)
    })

    t.Run("missing token", func(t *testing.T) {
        req := httptest.NewRequest(http.MethodGet, "/", nil)
        rec, _ := run(JWTAuth(testSecret), req)
        assert.Equal(t, http.StatusUnauthorized, rec.Code)
    })

    t.Run("garbage token", func(t *testing.T) {
        req := httptest.NewRequest(http.MethodGet, "/", nil)
        req.Header.Set("Authorization", "Bearer garbage")
        rec, _ := run(JWTAuth(testSecret), req)
        assert.Equal(t, http.StatusUnauthorized, rec.Code)
    })
}

func TestRequireRole(t *testing.T) {
    mw := RequireRole(model.RoleAdmin, model.RoleSuperadmin)

    call := func(ident *model.Identity) *httptest.ResponseRecorder {
        e := echo.New()
        rec := httptest.NewRecorder()
        c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
        if ident != nil {
            c.Set(IdentityKey, *ident)
        }
        _ = mw(func(c echo.Context) error { return c.String(http.StatusOK, "ok") })(c)
        return rec
    }

    assert.Equal(t, http.StatusForbidden, call(nil).Code)
    assert.Equal(t, http.StatusForbidden, call(&model.Identity{ID: 1, Role: model.RoleUser}).Code)
    assert.Equal(t, http.StatusOK, call(&model.Identity{ID: 1, Role: model.RoleAdmin}).Code)
    assert.Equal(t, http.StatusOK, call(&model.Identity{ID: -1, Role: model.RoleSuperadmin}).Code)
}

func TestTokenBucketLimits(t *testing.T) {
    mr := miniredis.RunT(t)
    rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
    t.Cleanup(func() { _ = rdb.Close() })

    cfg := config.RateLimitConfig{
        Enabled:        true,
        Prefix:         "rl",
        KeyStrategy:    "ip",
        Capacity:       3,
        RefillTokens:   1,
        RefillInterval: time.Minute,
        TTL:            time.Hour,
    }
    mw := NewTokenBucket(cfg, rdb)

    var last *httptest.ResponseRecorder
    for i := 0; i < 3; i++ {
        req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
        last, _ = run(mw, req)
        require.Equal(t, http.StatusOK, last.Code, "request %d should pass", i+1)
    }

    req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
    rec, _ := run(mw, req)
    assert.Equal(t, http.StatusTooManyRequests, rec.Code)
    assert.NotEmpty(t, rec.Header().Get("Retry-After"))
    assert.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))
}

func TestTokenBucketFailsOpenWithoutRedis(t *testing.T) {
    cfg := config.RateLimitConfig{Enabled: true, Capacity: 1}
    mw := NewTokenBucket(cfg, nil)

    for i := 0; i < 5; i++ {
        rec, _ := run(mw, httptest.NewRequest(http.MethodGet, "/v1/me", nil))
        assert.Equal(t, http.StatusOK, rec.Code)
    }
}
