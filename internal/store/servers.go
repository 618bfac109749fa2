package store

import (
	"context"
	"database/sql"

	"chathub-backend/internal/models"
)

const serverColumns = "s.id, s.name, s.icon, s.icon_color, s.owner_id, s.created_at"

func scanServer(dest *models.Server, icon *sql.NullString, createdAt *int64) []any {
	return []any{&dest.ID, &dest.Name, icon, &dest.IconColor, &dest.OwnerID, createdAt}
}

// CreateServer inserts the server, its owner membership and the given
// default channels atomically.
func (s *Store) CreateServer(ctx context.Context, srv *models.Server, channels []models.Channel) error {
	return s.WithTx(ctx, func(tx *Store) error {
		_, err := tx.db.ExecContext(ctx,
			"INSERT INTO servers (id, name, icon, icon_color, owner_id, created_at) VALUES (?, ?, ?, ?, ?, ?)",
			srv.ID, srv.Name, nullString(srv.Icon), srv.IconColor, srv.OwnerID, toMillis(srv.CreatedAt))
		if err != nil {
			return translate(err)
		}

		err = tx.CreateMember(ctx, &models.ServerMember{
			UserID:   srv.OwnerID,
			ServerID: srv.ID,
			Role:     models.RoleOwner,
			JoinedAt: srv.CreatedAt,
		})
		if err != nil {
			return err
		}

		for i := range channels {
			channels[i].ServerID = srv.ID
			if err := tx.CreateChannel(ctx, &channels[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) FindServerByID(ctx context.Context, id int64) (*models.Server, error) {
	var srv models.Server
	var icon sql.NullString
	var createdAt int64

	err := s.db.QueryRowContext(ctx, "SELECT "+serverColumns+" FROM servers s WHERE s.id = ?", id).
		Scan(scanServer(&srv, &icon, &createdAt)...)
	if err != nil {
		return nil, translate(err)
	}

	srv.Icon = fromNullString(icon)
	srv.CreatedAt = fromMillis(createdAt)
	return &srv, nil
}

// FindServerDetail loads the server with its owner, members and channels.
func (s *Store) FindServerDetail(ctx context.Context, id int64) (*models.ServerDetail, error) {
	srv, err := s.FindServerByID(ctx, id)
	if err != nil {
		return nil, err
	}

	owner, err := s.FindUserByID(ctx, srv.OwnerID)
	if err != nil {
		return nil, err
	}

	members, err := s.ListMembers(ctx, id)
	if err != nil {
		return nil, err
	}

	channels, err := s.ListChannels(ctx, id)
	if err != nil {
		return nil, err
	}

	return &models.ServerDetail{
		Server:   *srv,
		Owner:    owner.Summary(),
		Members:  members,
		Channels: channels,
	}, nil
}

// ListServersForUser returns the servers userID is a member of, in join order.
func (s *Store) ListServersForUser(ctx context.Context, userID int64) ([]models.ServerListItem, error) {
	query := `
		SELECT
			` + serverColumns + `,
			o.id, o.username, o.avatar, o.status,
			(SELECT COUNT(*) FROM server_members c WHERE c.server_id = s.id),
			(SELECT COUNT(*) FROM channels ch WHERE ch.server_id = s.id)
		FROM
			server_members sm
		JOIN
			servers s ON s.id = sm.server_id
		JOIN
			users o ON o.id = s.owner_id
		WHERE
			sm.user_id = ?
		ORDER BY
			sm.joined_at, s.id
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	servers := []models.ServerListItem{}

	for rows.Next() {
		var item models.ServerListItem
		var icon, ownerAvatar sql.NullString
		var createdAt int64

		dest := scanServer(&item.Server, &icon, &createdAt)
		dest = append(dest, &item.Owner.ID, &item.Owner.Username, &ownerAvatar, &item.Owner.Status,
			&item.Counts.Members, &item.Counts.Channels)

		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}

		item.Icon = fromNullString(icon)
		item.CreatedAt = fromMillis(createdAt)
		item.Owner.Avatar = fromNullString(ownerAvatar)
		servers = append(servers, item)
	}

	return servers, rows.Err()
}

// UpdateServer writes name, icon and iconColor. Owner and creation time never change.
func (s *Store) UpdateServer(ctx context.Context, srv *models.Server) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE servers SET name = ?, icon = ?, icon_color = ? WHERE id = ?",
		srv.Name, nullString(srv.Icon), srv.IconColor, srv.ID)
	if err != nil {
		return err
	}
	return s.expectRow(ctx, res, "servers", srv.ID)
}

func (s *Store) DeleteServer(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM servers WHERE id = ?", id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

// expectRow is expectAffected for updates, where mysql reports 0 affected
// rows when nothing changed.
func (s *Store) expectRow(ctx context.Context, res sql.Result, table string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil || n > 0 {
		return err
	}

	var exists bool
	err = s.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM "+table+" WHERE id = ?)", id).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return nil
}
