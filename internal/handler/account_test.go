package handler

import (
    "context"
    "net/http"
    "strconv"
    "strings"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/contacts-api/internal/model"
)

func TestRegisterVerifyLoginFlow(t *testing.T) {
    env := newTestEnv(t)

    c, rec := env.jsonRequest(http.MethodPost, "/v1/auth/register",
        `{"username":"dave","email":"Dave@Example.com","password":"pw123456"}`)
    require.NoError(t, env.h.Register(c))
    require.Equal(t, http.StatusCreated, rec.Code)
    assert.Equal(t, "dave@example.com", decode(t, rec)["email"])

    mails := env.mail.waitForMail(t, 1)
    require.Equal(t, "verification", mails[0].Kind)
    assert.Equal(t, "dave@example.com", mails[0].Email)
    require.Len(t, mails[0].Code, 6)

    // Unverified accounts cannot log in yet.
    c2, rec2 := env.jsonRequest(http.MethodPost, "/v1/auth/token",
        `{"identifier":"dave","password":"pw123456"}`)
    require.NoError(t, env.h.Login(c2))
    assert.Equal(t, http.StatusUnauthorized, rec2.Code)

    c3, rec3 := env.jsonRequest(http.MethodPost, "/v1/auth/verify",
        `{"email":"dave@example.com","code":"`+mails[0].Code+`"}`)
    require.NoError(t, env.h.VerifyEmail(c3))
    require.Equal(t, http.StatusOK, rec3.Code)

    // The code is consumed and cannot be replayed.
    c4, rec4 := env.jsonRequest(http.MethodPost, "/v1/auth/verify",
        `{"email":"dave@example.com","code":"`+mails[0].Code+`"}`)
    require.NoError(t, env.h.VerifyEmail(c4))
    assert.Equal(t, http.StatusBadRequest, rec4.Code)

    loginFor(t, env, "dave", "pw123456")
}

func TestRegisterValidation(t *testing.T) {
    env := newTestEnv(t)

    cases := []struct {
        name, body string
    }{
        {"missing fields", `{"username":"x"}`},
        {"bad email", `{"username":"x","email":"nope","password":"pw123456"}`},
        {"short password", `{"username":"x","email":"x@example.com","password":"pw"}`},
    }
    for _, tc := range cases {
        t.Run(tc.name, func(t *testing.T) {
            c, rec := env.jsonRequest(http.MethodPost, "/v1/auth/register", tc.body)
            require.NoError(t, env.h.Register(c))
            assert.Equal(t, http.StatusBadRequest, rec.Code)
        })
    }
}

func TestRegisterConflicts(t *testing.T) {
    env := newTestEnv(t)
    env.addUser(t, "alice", "alice@example.com", "pw123456", model.RoleUser, true)

    c, rec := env.jsonRequest(http.MethodPost, "/v1/auth/register",
        `{"username":"other","email":"alice@example.com","password":"pw123456"}`)
    require.NoError(t, env.h.Register(c))
    assert.Equal(t, http.StatusConflict, rec.Code)

    c2, rec2 := env.jsonRequest(http.MethodPost, "/v1/auth/register",
        `{"username":"alice","email":"new@example.com","password":"pw123456"}`)
    require.NoError(t, env.h.Register(c2))
    assert.Equal(t, http.StatusConflict, rec2.Code)
}

func TestForgotPasswordDoesNotRevealAccounts(t *testing.T) {
    env := newTestEnv(t)
    env.addUser(t, "alice", "alice@example.com", "pw123456", model.RoleUser, true)

    c1, rec1 := env.jsonRequest(http.MethodPost, "/v1/auth/forgot",
        `{"email":"alice@example.com"}`)
    require.NoError(t, env.h.ForgotPassword(c1))
    c2, rec2 := env.jsonRequest(http.MethodPost, "/v1/auth/forgot",
        `{"email":"ghost@example.com"}`)
    require.NoError(t, env.h.ForgotPassword(c2))

    assert.Equal(t, http.StatusOK, rec1.Code)
    assert.Equal(t, http.StatusOK, rec2.Code)
    assert.Equal(t, rec1.Body.String(), rec2.Body.String())

    // Only the known address actually gets a mail.
    mails := env.mail.waitForMail(t, 1)
    assert.Equal(t, "reset", mails[0].Kind)
    assert.Equal(t, "alice@example.com", mails[0].Email)
    assert.Contains(t, mails[0].ResetURL, "/v1/auth/reset/")
}

func TestResetPasswordFlow(t *testing.T) {
    env := newTestEnv(t)
    env.addUser(t, "alice", "alice@example.com", "old-password", model.RoleUser, true)
    _, refresh := loginFor(t, env, "alice", "old-password")

    c, _ := env.jsonRequest(http.MethodPost, "/v1/auth/forgot", `{"email":"alice@example.com"}`)
    require.NoError(t, env.h.ForgotPassword(c))
    mails := env.mail.waitForMail(t, 1)
    token := mails[0].ResetURL[strings.LastIndex(mails[0].ResetURL, "/")+1:]

    rc, rrec := env.jsonRequest(http.MethodPost, "/v1/auth/reset/"+token,
        `{"password":"new-password","confirm_password":"new-password"}`)
    rc.SetParamNames("token")
    rc.SetParamValues(token)
    require.NoError(t, env.h.ResetPassword(rc))
    require.Equal(t, http.StatusOK, rrec.Code)

    // Old password is dead, new one works.
    lc, lrec := env.jsonRequest(http.MethodPost, "/v1/auth/token",
        `{"identifier":"alice","password":"old-password"}`)
    require.NoError(t, env.h.Login(lc))
    assert.Equal(t, http.StatusUnauthorized, lrec.Code)
    loginFor(t, env, "alice", "new-password")

    // The pre-reset session was revoked.
    _, err := env.h.Sessions.LookupUserByRefresh(context.Background(), refresh)
    assert.Error(t, err)

    // The ticket is single use.
    rc2, rrec2 := env.jsonRequest(http.MethodPost, "/v1/auth/reset/"+token,
        `{"password":"again-password","confirm_password":"again-password"}`)
    rc2.SetParamNames("token")
    rc2.SetParamValues(token)
    require.NoError(t, env.h.ResetPassword(rc2))
    assert.Equal(t, http.StatusBadRequest, rrec2.Code)
}

func TestResetPasswordValidation(t *testing.T) {
    env := newTestEnv(t)

    t.Run("mismatched confirmation", func(t *testing.T) {
        c, rec := env.jsonRequest(http.MethodPost, "/v1/auth/reset/tok",
            `{"password":"new-password","confirm_password":"different"}`)
        c.SetParamNames("token")
        c.SetParamValues("tok")
        require.NoError(t, env.h.ResetPassword(c))
        assert.Equal(t, http.StatusBadRequest, rec.Code)
    })

    t.Run("unknown token", func(t *testing.T) {
        c, rec := env.jsonRequest(http.MethodPost, "/v1/auth/reset/nope",
            `{"password":"new-password","confirm_password":"new-password"}`)
        c.SetParamNames("token")
        c.SetParamValues("nope")
        require.NoError(t, env.h.ResetPassword(c))
        assert.Equal(t, http.StatusBadRequest, rec.Code)
    })
}

func TestChangePassword(t *testing.T) {
    env := newTestEnv(t)
    u := env.addUser(t, "alice", "alice@example.com", "old-password", model.RoleUser, true)

    t.Run("wrong current password", func(t *testing.T) {
        c, rec := env.jsonRequest(http.MethodPatch, "/v1/users/password",
            `{"current_password":"nope","new_password":"new-password"}`)
        authedIdentity(c, model.IdentityOf(u))
        require.NoError(t, env.h.ChangePassword(c))
        assert.Equal(t, http.StatusUnauthorized, rec.Code)
    })

    t.Run("success", func(t *testing.T) {
        c, rec := env.jsonRequest(http.MethodPatch, "/v1/users/password",
            `{"current_password":"old-password","new_password":"new-password"}`)
        authedIdentity(c, model.IdentityOf(u))
        require.NoError(t, env.h.ChangePassword(c))
        require.Equal(t, http.StatusOK, rec.Code)
        loginFor(t, env, "alice", "new-password")
    })

    t.Run("sentinel superadmin has no durable row", func(t *testing.T) {
        c, rec := env.jsonRequest(http.MethodPatch, "/v1/users/password",
            `{"current_password":"root-password","new_password":"new-password"}`)
        authedIdentity(c, model.SuperadminIdentity(model.SuperadminSentinelID, "root", "root@example.com"))
        require.NoError(t, env.h.ChangePassword(c))
        assert.Equal(t, http.StatusNotFound, rec.Code)
    })
}

func changeRole(t *testing.T, env *testEnv, actor model.Identity, targetID int64, role string) (int, map[string]any) {
    t.Helper()
    c, rec := env.jsonRequest(http.MethodPost, "/v1/users/"+strconv.FormatInt(targetID, 10)+"/role",
        `{"role":"`+role+`"}`)
    c.SetParamNames("id")
    c.SetParamValues(strconv.FormatInt(targetID, 10))
    authedIdentity(c, actor)
    require.NoError(t, env.h.ChangeRole(c))
    return rec.Code, decode(t, rec)
}

func TestChangeRoleGuards(t *testing.T) {
    env := newTestEnv(t)
    admin := env.addUser(t, "admin", "admin@example.com", "pw123456", model.RoleAdmin, true)
    user := env.addUser(t, "plain", "plain@example.com", "pw123456", model.RoleUser, true)
    boss := env.addUser(t, "boss", "boss@example.com", "pw123456", model.RoleSuperadmin, true)
    actor := model.IdentityOf(admin)

    t.Run("invalid role value", func(t *testing.T) {
        code, _ := changeRole(t, env, actor, user.ID, "superadmin")
        assert.Equal(t, http.StatusBadRequest, code)
    })

    t.Run("invalid role reported before missing target", func(t *testing.T) {
        code, _ := changeRole(t, env, actor, 9999, "king")
        assert.Equal(t, http.StatusBadRequest, code)
    })

    t.Run("self change forbidden", func(t *testing.T) {
        code, _ := changeRole(t, env, actor, admin.ID, model.RoleUser)
        assert.Equal(t, http.StatusForbidden, code)
    })

    t.Run("superadmin target immutable", func(t *testing.T) {
        code, _ := changeRole(t, env, actor, boss.ID, model.RoleUser)
        assert.Equal(t, http.StatusForbidden, code)
    })

    t.Run("missing target", func(t *testing.T) {
        code, _ := changeRole(t, env, actor, 9999, model.RoleAdmin)
        assert.Equal(t, http.StatusNotFound, code)
    })

    t.Run("promotion succeeds", func(t *testing.T) {
        code, body := changeRole(t, env, actor, user.ID, model.RoleAdmin)
        require.Equal(t, http.StatusOK, code)
        assert.Equal(t, model.RoleAdmin, body["role"])

        got, err := env.users.GetByID(context.Background(), user.ID)
        require.NoError(t, err)
        assert.Equal(t, model.RoleAdmin, got.Role)
    })
}

func TestVerifyEmailRequiresMatchingCode(t *testing.T) {
    env := newTestEnv(t)
    _, err := env.users.Create(context.Background(), "eve", "eve@example.com", "pw123456", model.RoleUser, 4, false, "123456")
    require.NoError(t, err)

    c, rec := env.jsonRequest(http.MethodPost, "/v1/auth/verify",
        `{"email":"eve@example.com","code":"654321"}`)
    require.NoError(t, env.h.VerifyEmail(c))
    assert.Equal(t, http.StatusBadRequest, rec.Code)
}
