package handler

import (
    "context"
    "database/sql"
    "encoding/json"
    "io"
    "net/http"
    "net/http/httptest"
    "strings"
    "sync"
    "testing"
    "time"

    "github.com/alicebob/miniredis/v2"
    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/contacts-api/internal/config"
    "github.com/iliyamo/contacts-api/internal/model"
    "github.com/iliyamo/contacts-api/internal/repository"
    "github.com/iliyamo/contacts-api/internal/utils"
)

// ----- in-memory fakes for the store interfaces -----

type fakeUsers struct {
    mu   sync.Mutex
    seq  int64
    byID map[int64]model.User
}

func newFakeUsers() *fakeUsers { return &fakeUsers{byID: map[int64]model.User{}} }

func (f *fakeUsers) Create(_ context.Context, username, email, password, role string, cost int, verified bool, code string) (int64, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    email = strings.ToLower(strings.TrimSpace(email))
    for _, u := range f.byID {
        if u.Username == username {
            return 0, repository.ErrUsernameExists
        }
        if u.Email == email {
            return 0, repository.ErrEmailExists
        }
    }
    hash, err := utils.HashPassword(password, cost)
    if err != nil {
        return 0, err
    }
    f.seq++
    f.byID[f.seq] = model.User{
        ID: f.seq, Username: username, Email: email, PasswordHash: hash,
        Role: role, IsVerified: verified, VerificationCode: code,
        CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
    }
    return f.seq, nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (model.User, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    email = strings.ToLower(strings.TrimSpace(email))
    for _, u := range f.byID {
        if u.Email == email {
            return u, nil
        }
    }
    return model.User{}, sql.ErrNoRows
}

func (f *fakeUsers) GetByUsername(_ context.Context, username string) (model.User, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    for _, u := range f.byID {
        if u.Username == username {
            return u, nil
        }
    }
    return model.User{}, sql.ErrNoRows
}

func (f *fakeUsers) GetByID(_ context.Context, id int64) (model.User, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    if u, ok := f.byID[id]; ok {
        return u, nil
    }
    return model.User{}, sql.ErrNoRows
}

func (f *fakeUsers) UpdateRole(_ context.Context, id int64, role string) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    u, ok := f.byID[id]
    if !ok {
        return repository.ErrNotFound
    }
    u.Role = role
    f.byID[id] = u
    return nil
}

func (f *fakeUsers) UpdatePassword(_ context.Context, id int64, hash string) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    u, ok := f.byID[id]
    if !ok {
        return repository.ErrNotFound
    }
    u.PasswordHash = hash
    f.byID[id] = u
    return nil
}

func (f *fakeUsers) Verify(_ context.Context, email, code string) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    email = strings.ToLower(strings.TrimSpace(email))
    for id, u := range f.byID {
        if u.Email == email && u.VerificationCode != "" && u.VerificationCode == code {
            u.IsVerified = true
            u.VerificationCode = ""
            f.byID[id] = u
            return nil
        }
    }
    return repository.ErrNotFound
}

type fakeResets struct {
    mu      sync.Mutex
    byToken map[string]model.PasswordReset
}

func newFakeResets() *fakeResets { return &fakeResets{byToken: map[string]model.PasswordReset{}} }

func (f *fakeResets) Upsert(_ context.Context, userID int64, token string, exp time.Time) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    for old, t := range f.byToken {
        if t.UserID == userID {
            delete(f.byToken, old)
        }
    }
    f.byToken[token] = model.PasswordReset{UserID: userID, Token: token, ExpiresAt: exp}
    return nil
}

func (f *fakeResets) GetValid(_ context.Context, token string) (model.PasswordReset, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    t, ok := f.byToken[token]
    if !ok || t.IsUsed || time.Now().UTC().After(t.ExpiresAt) {
        return model.PasswordReset{}, repository.ErrNotFound
    }
    return t, nil
}

func (f *fakeResets) MarkUsed(_ context.Context, token string) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    t, ok := f.byToken[token]
    if !ok {
        return repository.ErrNotFound
    }
    t.IsUsed = true
    f.byToken[token] = t
    return nil
}

type sentMail struct {
    Kind, Email, Code, ResetURL, Username string
}

type fakeMailer struct {
    mu   sync.Mutex
    sent []sentMail
}

func (f *fakeMailer) SendVerificationCode(_ context.Context, email, code string) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    f.sent = append(f.sent, sentMail{Kind: "verification", Email: email, Code: code})
    return nil
}

func (f *fakeMailer) SendPasswordResetLink(_ context.Context, email, resetURL, username string) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    f.sent = append(f.sent, sentMail{Kind: "reset", Email: email, ResetURL: resetURL, Username: username})
    return nil
}

// waitForMail polls until n messages were recorded; the handlers publish
// from a goroutine.
func (f *fakeMailer) waitForMail(t *testing.T, n int) []sentMail {
    t.Helper()
    deadline := time.Now().Add(2 * time.Second)
    for time.Now().Before(deadline) {
        f.mu.Lock()
        if len(f.sent) >= n {
            out := append([]sentMail(nil), f.sent...)
            f.mu.Unlock()
            return out
        }
        f.mu.Unlock()
        time.Sleep(5 * time.Millisecond)
    }
    t.Fatalf("expected %d mails, got %d", n, len(f.sent))
    return nil
}

// ----- environment -----

type testEnv struct {
    h      *AuthHandler
    users  *fakeUsers
    resets *fakeResets
    mail   *fakeMailer
    mr     *miniredis.Miniredis
    e      *echo.Echo
}

func newTestEnv(t *testing.T) *testEnv {
    t.Helper()
    mr := miniredis.RunT(t)
    rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
    t.Cleanup(func() { _ = rdb.Close() })

    cfg := config.Config{
        Env:            "test",
        BaseURL:        "http://localhost:8080",
        JWTSecret:      "test-secret",
        AccessTTLMin:   15,
        RefreshTTLDays: 30,
        BcryptCost:     4,
        Superadmin: config.Superadmin{
            Username: "root",
            Password: "root-password",
            Email:    "root@example.com",
        },
    }

    env := &testEnv{
        users:  newFakeUsers(),
        resets: newFakeResets(),
        mail:   &fakeMailer{},
        mr:     mr,
        e:      echo.New(),
    }
    env.h = NewAuthHandler(cfg, env.users, env.resets, repository.NewSessionRegistry(rdb), env.mail)
    return env
}

// addUser seeds a durable account and returns its row.
func (env *testEnv) addUser(t *testing.T, username, email, password, role string, verified bool) model.User {
    t.Helper()
    id, err := env.users.Create(context.Background(), username, email, password, role, 4, verified, "")
    require.NoError(t, err)
    u, err := env.users.GetByID(context.Background(), id)
    require.NoError(t, err)
    return u
}

// jsonRequest builds an echo context carrying a JSON body.
func (env *testEnv) jsonRequest(method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
    var rd io.Reader
    if body != "" {
        rd = strings.NewReader(body)
    }
    req := httptest.NewRequest(method, target, rd)
    if body != "" {
        req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
    }
    rec := httptest.NewRecorder()
    return env.e.NewContext(req, rec), rec
}

// decode unmarshals the recorded JSON body into a generic map.
func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
    t.Helper()
    var out map[string]any
    require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
    return out
}

// cookieValue fetches a Set-Cookie value by name, or "" when absent.
func cookieValue(rec *httptest.ResponseRecorder, name string) string {
    for _, ck := range rec.Result().Cookies() {
        if ck.Name == name {
            return ck.Value
        }
    }
    return ""
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
    for _, ck := range rec.Result().Cookies() {
        if ck.Name == name {
            return ck
        }
    }
    return nil
}

// authedIdentity stores an identity on the context the way JWTAuth would.
func authedIdentity(c echo.Context, ident model.Identity) {
    c.Set("identity", ident)
}
