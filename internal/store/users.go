package store

import (
	"context"
	"database/sql"

	"chathub-backend/internal/models"
)

const userColumns = "id, email, username, password, avatar, status, created_at"

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	var u models.User
	var avatar sql.NullString
	var createdAt int64

	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &avatar, &u.Status, &createdAt)
	if err != nil {
		return nil, translate(err)
	}

	u.Avatar = fromNullString(avatar)
	u.CreatedAt = fromMillis(createdAt)
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO users (id, email, username, password, avatar, status, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		u.ID, u.Email, u.Username, u.PasswordHash, nullString(u.Avatar), u.Status, toMillis(u.CreatedAt))
	return translate(err)
}

// FindUserByEmailOrUsername returns the first user matching either field.
func (s *Store) FindUserByEmailOrUsername(ctx context.Context, email string, username string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email = ? OR username = ? ORDER BY id LIMIT 1",
		email, username)
	return scanUser(row)
}

func (s *Store) FindUserByID(ctx context.Context, id int64) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
	return scanUser(row)
}

func (s *Store) UserExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE id = ?)", id).Scan(&exists)
	return exists, err
}

func (s *Store) UpdateUserStatus(ctx context.Context, id int64, status models.UserStatus) error {
	res, err := s.db.ExecContext(ctx, "UPDATE users SET status = ? WHERE id = ?", status, id)
	if err != nil {
		return err
	}
	// mysql reports 0 affected rows when the value is unchanged
	n, err := res.RowsAffected()
	if err != nil || n > 0 {
		return err
	}
	exists, err := s.UserExists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return nil
}
