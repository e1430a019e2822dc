package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/contacts-api/internal/model"
	"github.com/iliyamo/contacts-api/internal/utils"
)

// UserRepo is the credential store: the single writer of durable identity
// records.  All ephemeral session state lives in the SessionRegistry.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userColumns = "id,username,email,password_hash,role,is_verified,COALESCE(verification_code,''),created_at,updated_at"

func scanUser(row *sql.Row) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role,
		&u.IsVerified, &u.VerificationCode, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// Create inserts a user and returns its ID.  The email is normalized to
// lower case before insertion; the users table enforces uniqueness of both
// username and email, and MySQL error 1062 is mapped onto the matching
// sentinel so handlers can answer with a precise conflict.
func (r *UserRepo) Create(ctx context.Context, username, email, password, role string, cost int, verified bool, verificationCode string) (int64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	username = strings.TrimSpace(username)
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (username, email, password_hash, role, is_verified, verification_code) VALUES (?,?,?,?,?,NULLIF(?,''))",
		username, email, hash, role, verified, verificationCode)
	if err != nil {
		msg := strings.ToLower(err.Error())
		if strings.Contains(msg, "1062") {
			if strings.Contains(msg, "username") {
				return 0, ErrUsernameExists
			}
			return 0, ErrEmailExists
		}
		return 0, err
	}
	return res.LastInsertId()
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email))
}

// GetByUsername fetches a user by login name.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE username=? LIMIT 1", strings.TrimSpace(username)))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id int64) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
}

// UpdateRole persists a new role for the user.  Guard rules (assignable set,
// no self-change, superadmin immutability) are enforced by the caller, which
// has the acting identity in hand; the store only reports whether the row
// exists.
func (r *UserRepo) UpdateRole(ctx context.Context, id int64, role string) error {
	res, err := r.DB.ExecContext(ctx, "UPDATE users SET role=? WHERE id=?", role, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// RowsAffected is also 0 when the role already matches; re-check
		// existence so an idempotent update is not reported as missing.
		var one int
		if err := r.DB.QueryRowContext(ctx, "SELECT 1 FROM users WHERE id=?", id).Scan(&one); err != nil {
			return ErrNotFound
		}
	}
	return nil
}

// UpdatePassword replaces the stored bcrypt hash.
func (r *UserRepo) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	res, err := r.DB.ExecContext(ctx, "UPDATE users SET password_hash=? WHERE id=?", passwordHash, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Verify consumes a pending verification code: the account is flagged
// verified and the one-time code cleared in a single statement, so a code
// can never be replayed.  ErrNotFound is returned when the email/code pair
// does not match a pending registration.
func (r *UserRepo) Verify(ctx context.Context, email, code string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET is_verified=1, verification_code=NULL WHERE email=? AND verification_code=?",
		email, code)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
