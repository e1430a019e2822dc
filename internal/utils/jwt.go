package utils // package utils provides helper functions for token creation and hashing

import (
    "errors" // sentinel error for token verification failures
    "time"   // time utilities for generating expirations

    "github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens

    "github.com/iliyamo/contacts-api/internal/model"
)

// ErrInvalidToken is returned by VerifyAccessToken for every failure mode:
// bad signature, expired token, wrong algorithm or malformed payload.  The
// caller only ever needs to know that the bearer is not authenticated, so
// the causes are deliberately not distinguished.
var ErrInvalidToken = errors.New("invalid or expired token")

// AccessToken represents a signed JWT access token along with its expiry.
// The Token field contains the JWT string.  Exp stores the expiration
// timestamp as a time.Time.  Access tokens are short‑lived and transported
// either in the Authorization header or in the access_token cookie.
type AccessToken struct {
    Token string    // the serialized JWT string
    Exp   time.Time // the UTC expiration time
}

// RefreshToken represents a long‑lived opaque token used to obtain new
// access tokens.  The Raw field contains the random string returned to the
// client; the session registry stores it together with a reverse index so
// it can be revoked server-side.
type RefreshToken struct {
    Raw string    // raw token string returned to the client
    Exp time.Time // UTC expiration time
}

// Claims is the decoded payload of a valid access token.  These values are
// trusted directly for authorization decisions without a database round
// trip; a role change therefore only takes effect once the current token
// expires (bounded by the short access TTL).
type Claims struct {
    ID    int64     // user id, or -1 for the configured superadmin
    Email string    // user email
    Role  string    // user, admin or superadmin
    Exp   time.Time // absolute expiry
}

// Identity converts decoded claims back into the Identity shape used by
// handlers.  The username is not part of the claims bundle and is left
// empty; callers needing it consult the credential store or the session
// registry snapshot.
func (c Claims) Identity() model.Identity {
    return model.Identity{ID: c.ID, Email: c.Email, Role: c.Role}
}

// NewAccessToken builds and signs an HS256 JWT for an identity.  It takes
// the signing secret, the resolved identity, and a TTL in minutes.  It
// returns an AccessToken structure containing the signed token and its
// expiration time.  The JWT carries the claims bundle {id, email, role}
// plus expiration (exp) and issued at (iat).
func NewAccessToken(secret string, ident model.Identity, ttlMin int) (AccessToken, error) {
    // Calculate the expiration time by adding the TTL to the current UTC time.
    exp := time.Now().UTC().Add(time.Duration(ttlMin) * time.Minute)
    claims := jwt.MapClaims{
        "id":    ident.ID,
        "email": ident.Email,
        "role":  ident.Role,
        "exp":   exp.Unix(),
        "iat":   time.Now().UTC().Unix(),
    }
    t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
    signed, err := t.SignedString([]byte(secret))
    if err != nil {
        return AccessToken{}, err
    }
    return AccessToken{Token: signed, Exp: exp}, nil
}

// VerifyAccessToken parses and validates a serialized access token.  It
// checks the HMAC signature and the exp claim, then extracts the claims
// bundle.  Attacker-controlled input never causes a panic; any failure is
// reported as ErrInvalidToken.
func VerifyAccessToken(secret, raw string) (Claims, error) {
    tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
        // Reject tokens signed with anything but HMAC; accepting other
        // algorithms would let a client pick its own verification key.
        if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
            return nil, ErrInvalidToken
        }
        return []byte(secret), nil
    })
    if err != nil || !tok.Valid {
        return Claims{}, ErrInvalidToken
    }
    mc, ok := tok.Claims.(jwt.MapClaims)
    if !ok {
        return Claims{}, ErrInvalidToken
    }

    var c Claims
    // Numeric JSON values decode as float64; the superadmin sentinel is
    // negative, so the conversion must go through a signed type.
    id, ok := mc["id"].(float64)
    if !ok {
        return Claims{}, ErrInvalidToken
    }
    c.ID = int64(id)
    if c.Email, ok = mc["email"].(string); !ok || c.Email == "" {
        return Claims{}, ErrInvalidToken
    }
    if c.Role, ok = mc["role"].(string); !ok || c.Role == "" {
        return Claims{}, ErrInvalidToken
    }
    if expVal, ok := mc["exp"].(float64); ok {
        c.Exp = time.Unix(int64(expVal), 0).UTC()
    }
    return c, nil
}

// NewRefreshToken returns a cryptographically secure random token (raw) and
// its expiration time.  Refresh tokens live longer than access tokens and
// are exchanged for new access tokens.  The ttlDays parameter controls how
// many days the refresh token is valid.
func NewRefreshToken(ttlDays int) (RefreshToken, error) {
    // 48 random bytes -> 96 hex chars, far beyond guessable.
    raw, err := randomHex(48)
    if err != nil {
        return RefreshToken{}, err
    }
    return RefreshToken{
        Raw: raw,
        Exp: time.Now().UTC().Add(time.Duration(ttlDays) * 24 * time.Hour),
    }, nil
}
