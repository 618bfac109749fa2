package store

import (
	"context"
	"database/sql"

	"chathub-backend/internal/models"
)

func (s *Store) CreateMember(ctx context.Context, m *models.ServerMember) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO server_members (server_id, user_id, role, joined_at) VALUES (?, ?, ?, ?)",
		m.ServerID, m.UserID, m.Role, toMillis(m.JoinedAt))
	return translate(err)
}

func (s *Store) FindMember(ctx context.Context, serverID int64, userID int64) (*models.ServerMember, error) {
	var m models.ServerMember
	var joinedAt int64

	err := s.db.QueryRowContext(ctx,
		"SELECT server_id, user_id, role, joined_at FROM server_members WHERE server_id = ? AND user_id = ?",
		serverID, userID).Scan(&m.ServerID, &m.UserID, &m.Role, &joinedAt)
	if err != nil {
		return nil, translate(err)
	}

	m.JoinedAt = fromMillis(joinedAt)
	return &m, nil
}

// ListMembers returns the server's members with their user summaries, in join order.
func (s *Store) ListMembers(ctx context.Context, serverID int64) ([]models.ServerMember, error) {
	query := `
		SELECT
			sm.server_id, sm.user_id, sm.role, sm.joined_at,
			u.username, u.avatar, u.status
		FROM
			server_members sm
		JOIN
			users u ON u.id = sm.user_id
		WHERE
			sm.server_id = ?
		ORDER BY
			sm.joined_at, sm.user_id
	`

	rows, err := s.db.QueryContext(ctx, query, serverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := []models.ServerMember{}

	for rows.Next() {
		var m models.ServerMember
		var user models.UserSummary
		var avatar sql.NullString
		var joinedAt int64

		err := rows.Scan(&m.ServerID, &m.UserID, &m.Role, &joinedAt, &user.Username, &avatar, &user.Status)
		if err != nil {
			return nil, err
		}

		user.ID = m.UserID
		user.Avatar = fromNullString(avatar)
		m.JoinedAt = fromMillis(joinedAt)
		m.User = &user
		members = append(members, m)
	}

	return members, rows.Err()
}
