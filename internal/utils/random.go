package utils

import (
    "crypto/rand"   // secure random number generation
    "encoding/hex"  // hex encoding for opaque tokens
    "fmt"
    "math/big"

    "github.com/google/uuid"
)

// NewResetToken returns the random token embedded in a password-reset link.
// A v4 UUID gives 122 bits of entropy, enough to make tickets infeasible to
// enumerate within their 24-hour lifetime.
func NewResetToken() string {
    return uuid.NewString()
}

// NewVerificationCode returns a 6-digit decimal email confirmation code.
// The low entropy is acceptable because the code is single-use, bound to one
// user record, and looked up through a rate-limited endpoint.
func NewVerificationCode() (string, error) {
    n, err := rand.Int(rand.Reader, big.NewInt(1000000))
    if err != nil {
        return "", err
    }
    return fmt.Sprintf("%06d", n.Int64()), nil
}

// randomHex returns a hex‑encoded string generated from n bytes of
// cryptographically secure random data.  It is used to produce refresh
// tokens.  If the random number generator fails, an error is returned.
func randomHex(n int) (string, error) {
    buf := make([]byte, n)
    if _, err := rand.Read(buf); err != nil {
        return "", err
    }
    return hex.EncodeToString(buf), nil
}
