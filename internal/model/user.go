package model

import "time"

// Role values stored in users.role.  Transitions are guarded: the role-change
// endpoint only ever assigns RoleUser or RoleAdmin, and a superadmin row can
// never be altered through it.
const (
    RoleUser       = "user"
    RoleAdmin      = "admin"
    RoleSuperadmin = "superadmin"
)

// SuperadminSentinelID is the reserved id carried in tokens issued for the
// configuration-defined superadmin when no durable users row exists for it.
const SuperadminSentinelID int64 = -1

// User represents an application user record as stored in the `users` table.
// Each field corresponds to a column in the database.  The json tags are
// omitted here because these structs are primarily used internally by the
// repository layer; handlers define separate response types with appropriate
// JSON tags.
//
// Fields:
//  ID               – primary key identifier of the user.
//  Username         – unique login name.
//  Email            – unique email address, stored lowercased.
//  PasswordHash     – bcrypt hashed password.
//  Role             – one of user, admin, superadmin.
//  IsVerified       – whether the email address has been confirmed.
//  VerificationCode – pending 6-digit confirmation code, empty once consumed.
//  CreatedAt        – timestamp of creation.
//  UpdatedAt        – timestamp of last update.
type User struct {
    ID               int64     // users.id
    Username         string    // users.username
    Email            string    // users.email
    PasswordHash     string    // users.password_hash
    Role             string    // users.role
    IsVerified       bool      // users.is_verified
    VerificationCode string    // users.verification_code (empty when consumed)
    CreatedAt        time.Time // users.created_at
    UpdatedAt        time.Time // users.updated_at
}

// PasswordReset models a row in the `password_resets` table.  A ticket is
// valid iff it is unused and unexpired.  A new forgot-password request
// supersedes the previous ticket for that user rather than stacking up.
//
// Fields:
//  ID        – primary key identifier.
//  UserID    – owner of the ticket.
//  Token     – unique random token embedded in the emailed reset link.
//  ExpiresAt – expiration timestamp (24 hours after issuance).
//  IsUsed    – set once the ticket has been consumed by a successful reset.
//  CreatedAt – timestamp of creation.
type PasswordReset struct {
    ID        int64     // password_resets.id
    UserID    int64     // password_resets.user_id
    Token     string    // password_resets.token
    ExpiresAt time.Time // password_resets.expires_at
    IsUsed    bool      // password_resets.is_used
    CreatedAt time.Time // password_resets.created_at
}

// Identity is the resolved authenticated principal that all downstream code
// operates on.  It is either the projection of a durable users row or the
// synthetic superadmin defined purely in configuration (sentinel id -1).  The
// same shape doubles as the denormalized snapshot stored next to a refresh
// token in the session registry.
type Identity struct {
    ID       int64  `json:"id"`
    Username string `json:"username"`
    Email    string `json:"email"`
    Role     string `json:"role"`
}

// IdentityOf projects a durable user row into an Identity.  An empty role
// column defaults to RoleUser, mirroring how tokens are minted.
func IdentityOf(u User) Identity {
    role := u.Role
    if role == "" {
        role = RoleUser
    }
    return Identity{ID: u.ID, Username: u.Username, Email: u.Email, Role: role}
}

// SuperadminIdentity builds the synthetic identity for the configured
// superadmin.  The id is the durable row id when one exists, otherwise the
// reserved sentinel.
func SuperadminIdentity(id int64, username, email string) Identity {
    return Identity{ID: id, Username: username, Email: email, Role: RoleSuperadmin}
}

// IsSuperadmin reports whether the identity carries the superadmin role.
func (i Identity) IsSuperadmin() bool { return i.Role == RoleSuperadmin }
