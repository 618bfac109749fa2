package store

import (
	"context"
	"time"

	"chathub-backend/internal/models"
)

func (s *Store) CreateRefreshToken(ctx context.Context, t *models.RefreshToken) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO refresh_tokens (token_hash, user_id, expires_at, created_at) VALUES (?, ?, ?, ?)",
		t.TokenHash, t.UserID, toMillis(t.ExpiresAt), toMillis(t.CreatedAt))
	return translate(err)
}

func (s *Store) FindRefreshToken(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	var t models.RefreshToken
	var expiresAt, createdAt int64

	err := s.db.QueryRowContext(ctx,
		"SELECT token_hash, user_id, expires_at, created_at FROM refresh_tokens WHERE token_hash = ?", tokenHash).
		Scan(&t.TokenHash, &t.UserID, &expiresAt, &createdAt)
	if err != nil {
		return nil, translate(err)
	}

	t.ExpiresAt = fromMillis(expiresAt)
	t.CreatedAt = fromMillis(createdAt)
	return &t, nil
}

// DeleteRefreshToken is a no-op for unknown hashes.
func (s *Store) DeleteRefreshToken(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE token_hash = ?", tokenHash)
	return err
}

func (s *Store) DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE expires_at <= ?", toMillis(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
