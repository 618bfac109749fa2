package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"chathub-backend/internal/models"
)

// MessageQuery selects one page of a channel's history. Zero BeforeID and
// nil BeforeTime mean "from the newest message".
type MessageQuery struct {
	ChannelID  int64
	BeforeID   int64
	BeforeTime *time.Time
	Limit      int
}

const messageSelect = `
	SELECT
		m.id, m.channel_id, m.author_id, m.content, m.created_at, m.updated_at,
		u.username, u.avatar, u.status
	FROM
		messages m
	JOIN
		users u ON u.id = m.author_id
`

func scanMessage(row interface{ Scan(...any) error }) (*models.Message, error) {
	var msg models.Message
	var avatar sql.NullString
	var createdAt int64
	var updatedAt sql.NullInt64

	err := row.Scan(&msg.ID, &msg.ChannelID, &msg.AuthorID, &msg.Content, &createdAt, &updatedAt,
		&msg.Author.Username, &avatar, &msg.Author.Status)
	if err != nil {
		return nil, translate(err)
	}

	msg.Author.ID = msg.AuthorID
	msg.Author.Avatar = fromNullString(avatar)
	msg.CreatedAt = fromNanos(createdAt)
	msg.UpdatedAt = fromNullNanos(updatedAt)
	msg.Attachments = []models.Attachment{}
	return &msg, nil
}

// CreateMessage inserts the message and its attachments atomically, then
// fills msg.Author from the users table.
func (s *Store) CreateMessage(ctx context.Context, msg *models.Message) error {
	err := s.WithTx(ctx, func(tx *Store) error {
		_, err := tx.db.ExecContext(ctx,
			"INSERT INTO messages (id, channel_id, author_id, content, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
			msg.ID, msg.ChannelID, msg.AuthorID, msg.Content, toNanos(msg.CreatedAt), nullNanos(msg.UpdatedAt))
		if err != nil {
			return translate(err)
		}

		for i := range msg.Attachments {
			a := &msg.Attachments[i]
			a.MessageID = msg.ID
			_, err := tx.db.ExecContext(ctx,
				"INSERT INTO attachments (id, message_id, filename, url, type, size) VALUES (?, ?, ?, ?, ?, ?)",
				a.ID, a.MessageID, a.Filename, a.URL, a.Type, a.Size)
			if err != nil {
				return translate(err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	author, err := s.FindUserByID(ctx, msg.AuthorID)
	if err != nil {
		return err
	}
	msg.Author = author.Summary()
	if msg.Attachments == nil {
		msg.Attachments = []models.Attachment{}
	}
	return nil
}

func (s *Store) FindMessageByID(ctx context.Context, id int64) (*models.Message, error) {
	msg, err := scanMessage(s.db.QueryRowContext(ctx, messageSelect+" WHERE m.id = ?", id))
	if err != nil {
		return nil, err
	}

	if err := s.loadAttachments(ctx, []*models.Message{msg}); err != nil {
		return nil, err
	}
	return msg, nil
}

// ListMessages returns up to q.Limit messages strictly older than the
// cursor, newest first.
func (s *Store) ListMessages(ctx context.Context, q MessageQuery) ([]models.Message, error) {
	var sb strings.Builder
	sb.WriteString(messageSelect)
	sb.WriteString(" WHERE m.channel_id = ?")
	args := []any{q.ChannelID}

	if q.BeforeID > 0 {
		sb.WriteString(" AND m.id < ?")
		args = append(args, q.BeforeID)
	}
	if q.BeforeTime != nil {
		sb.WriteString(" AND m.created_at < ?")
		args = append(args, toNanos(*q.BeforeTime))
	}

	sb.WriteString(" ORDER BY m.created_at DESC, m.id DESC LIMIT ?")
	args = append(args, q.Limit)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []models.Message{}

	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ptrs := make([]*models.Message, len(messages))
	for i := range messages {
		ptrs[i] = &messages[i]
	}
	if err := s.loadAttachments(ctx, ptrs); err != nil {
		return nil, err
	}

	return messages, nil
}

func (s *Store) loadAttachments(ctx context.Context, messages []*models.Message) error {
	if len(messages) == 0 {
		return nil
	}

	byID := make(map[int64]*models.Message, len(messages))
	args := make([]any, len(messages))
	for i, msg := range messages {
		byID[msg.ID] = msg
		args[i] = msg.ID
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, message_id, filename, url, type, size FROM attachments WHERE message_id IN ("+placeholders(len(args))+") ORDER BY id",
		args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var a models.Attachment
		if err := rows.Scan(&a.ID, &a.MessageID, &a.Filename, &a.URL, &a.Type, &a.Size); err != nil {
			return err
		}
		if msg, ok := byID[a.MessageID]; ok {
			msg.Attachments = append(msg.Attachments, a)
		}
	}

	return rows.Err()
}

func (s *Store) UpdateMessageContent(ctx context.Context, id int64, content string, updatedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE messages SET content = ?, updated_at = ? WHERE id = ?",
		content, toNanos(updatedAt), id)
	if err != nil {
		return err
	}
	return s.expectRow(ctx, res, "messages", id)
}

// AttachmentURLInUse reports whether any stored attachment points at url.
func (s *Store) AttachmentURLInUse(ctx context.Context, url string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM attachments WHERE url = ?", url).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) DeleteMessage(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM messages WHERE id = ?", id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}
