package store

import (
	"context"

	"chathub-backend/internal/models"
)

func (s *Store) CreateChannel(ctx context.Context, ch *models.Channel) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO channels (id, server_id, name, type, created_at) VALUES (?, ?, ?, ?, ?)",
		ch.ID, ch.ServerID, ch.Name, ch.Type, toMillis(ch.CreatedAt))
	return translate(err)
}

func (s *Store) FindChannelByID(ctx context.Context, id int64) (*models.Channel, error) {
	var ch models.Channel
	var createdAt int64

	err := s.db.QueryRowContext(ctx,
		"SELECT id, server_id, name, type, created_at FROM channels WHERE id = ?", id).
		Scan(&ch.ID, &ch.ServerID, &ch.Name, &ch.Type, &createdAt)
	if err != nil {
		return nil, translate(err)
	}

	ch.CreatedAt = fromMillis(createdAt)
	return &ch, nil
}

// ListChannels returns the server's channels in creation order.
func (s *Store) ListChannels(ctx context.Context, serverID int64) ([]models.Channel, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, server_id, name, type, created_at FROM channels WHERE server_id = ? ORDER BY created_at, id",
		serverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	channels := []models.Channel{}

	for rows.Next() {
		var ch models.Channel
		var createdAt int64

		if err := rows.Scan(&ch.ID, &ch.ServerID, &ch.Name, &ch.Type, &createdAt); err != nil {
			return nil, err
		}

		ch.CreatedAt = fromMillis(createdAt)
		channels = append(channels, ch)
	}

	return channels, rows.Err()
}

func (s *Store) UpdateChannel(ctx context.Context, ch *models.Channel) error {
	res, err := s.db.ExecContext(ctx, "UPDATE channels SET name = ?, type = ? WHERE id = ?", ch.Name, ch.Type, ch.ID)
	if err != nil {
		return err
	}
	return s.expectRow(ctx, res, "channels", ch.ID)
}

func (s *Store) DeleteChannel(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM channels WHERE id = ?", id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}
