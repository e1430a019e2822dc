package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/contacts-api/internal/model"
)

// ResetRepo persists password-reset tickets.  A ticket is valid iff it is
// unused and unexpired; a new forgot-password request supersedes the user's
// previous ticket instead of stacking additional rows.
type ResetRepo struct{ DB *sql.DB }

func NewResetRepo(db *sql.DB) *ResetRepo { return &ResetRepo{DB: db} }

// Upsert stores a fresh ticket for the user.  An existing row is rewritten
// in place (new token, new expiry, unused again); otherwise one is inserted.
func (r *ResetRepo) Upsert(ctx context.Context, userID int64, token string, expiresAt time.Time) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE password_resets SET token=?, expires_at=?, is_used=0 WHERE user_id=?",
		token, expiresAt, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	_, err = r.DB.ExecContext(ctx,
		"INSERT INTO password_resets (user_id, token, expires_at) VALUES (?,?,?)",
		userID, token, expiresAt)
	return err
}

// GetValid returns the ticket for a token iff it is unused and unexpired.
// Every other case, including an unknown token, yields ErrNotFound.
func (r *ResetRepo) GetValid(ctx context.Context, token string) (model.PasswordReset, error) {
	var t model.PasswordReset
	err := r.DB.QueryRowContext(ctx,
		"SELECT id, user_id, token, expires_at, is_used, created_at FROM password_resets WHERE token=? LIMIT 1",
		token).Scan(&t.ID, &t.UserID, &t.Token, &t.ExpiresAt, &t.IsUsed, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return model.PasswordReset{}, ErrNotFound
	}
	if err != nil {
		return model.PasswordReset{}, err
	}
	if t.IsUsed || time.Now().UTC().After(t.ExpiresAt) {
		return model.PasswordReset{}, ErrNotFound
	}
	return t, nil
}

// MarkUsed consumes a ticket after a successful password reset.
func (r *ResetRepo) MarkUsed(ctx context.Context, token string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE password_resets SET is_used=1 WHERE token=?", token)
	return err
}
