package services

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"chathub-backend/internal/access"
	"chathub-backend/internal/apperr"
	"chathub-backend/internal/fileHandlers"
	"chathub-backend/internal/models"
	"chathub-backend/internal/snowflake"
	"chathub-backend/internal/store"
	"chathub-backend/internal/validator"

	"go.uber.org/zap"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// Page is a parsed history request. At most one of BeforeID and BeforeTime
// is set.
type Page struct {
	Limit      int
	BeforeID   int64
	BeforeTime *time.Time
}

// ParsePage reads the limit and before query values. before is a message id
// when it is all digits and an RFC 3339 timestamp otherwise.
func ParsePage(limit string, before string) (Page, error) {
	page := Page{Limit: DefaultPageSize}

	if limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil {
			return Page{}, apperr.Invalid("limit must be a number")
		}
		switch {
		case n > MaxPageSize:
			page.Limit = MaxPageSize
		case n > 0:
			page.Limit = n
		}
	}

	before = strings.TrimSpace(before)
	if before == "" {
		return page, nil
	}

	if id, err := strconv.ParseInt(before, 10, 64); err == nil {
		if id <= 0 {
			return Page{}, apperr.Invalid("before must be a message id or a timestamp")
		}
		page.BeforeID = id
		return page, nil
	}

	t, err := time.Parse(time.RFC3339Nano, before)
	if err != nil {
		return Page{}, apperr.Invalid("before must be a message id or a timestamp")
	}
	page.BeforeTime = &t
	return page, nil
}

type MessageService struct {
	store       *store.Store
	ids         IDGenerator
	blobs       fileHandlers.BlobStore
	broadcaster Broadcaster
	sugar       *zap.SugaredLogger
	now         func() time.Time

	// blobUsers counts in-flight posts per blob key; blobs are content
	// addressed and may be shared by concurrent posts.
	blobMutex sync.Mutex
	blobUsers map[string]int
}

type storedBlob struct {
	key string
	url string
}

func NewMessageService(st *store.Store, ids IDGenerator, blobs fileHandlers.BlobStore, broadcaster Broadcaster, sugar *zap.SugaredLogger) *MessageService {
	return &MessageService{
		store:       st,
		ids:         ids,
		blobs:       blobs,
		broadcaster: broadcaster,
		sugar:       sugar,
		now:         time.Now,
		blobUsers:   make(map[string]int),
	}
}

// History returns one page of the channel's messages, oldest first. A page
// shorter than page.Limit means there is nothing older.
func (s *MessageService) History(ctx context.Context, userID int64, channelID int64, page Page) ([]models.Message, error) {
	if _, _, err := readableChannel(ctx, s.store, s.sugar, userID, channelID); err != nil {
		return nil, err
	}

	if page.Limit <= 0 || page.Limit > MaxPageSize {
		page.Limit = DefaultPageSize
	}

	messages, err := s.store.ListMessages(ctx, store.MessageQuery{
		ChannelID:  channelID,
		BeforeID:   page.BeforeID,
		BeforeTime: page.BeforeTime,
		Limit:      page.Limit,
	})
	if err != nil {
		return nil, internal(s.sugar, err, "list messages")
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// Create stores the message with its attachments and broadcasts it once
// committed. Blobs first written for a message that fails to commit are
// removed again.
func (s *MessageService) Create(ctx context.Context, userID int64, channelID int64, content string, uploads []fileHandlers.Upload) (*models.Message, error) {
	ch, member, err := readableChannel(ctx, s.store, s.sugar, userID, channelID)
	if err != nil {
		return nil, err
	}
	if !access.CanWriteChannel(userID, ch, member) {
		return nil, apperr.Missing("Channel not found")
	}

	content, err = validator.CleanContent(content)
	if err != nil {
		return nil, invalid(err)
	}
	if content == "" && len(uploads) == 0 {
		return nil, apperr.Invalid("Message content is required")
	}

	messageID, err := s.ids.Generate()
	if err != nil {
		return nil, internal(s.sugar, err, "generate message id")
	}

	msg := &models.Message{
		ID:          messageID,
		Content:     content,
		ChannelID:   channelID,
		AuthorID:    userID,
		CreatedAt:   snowflake.Time(messageID),
		Attachments: []models.Attachment{},
	}

	var held []string
	var created []storedBlob
	for _, upload := range uploads {
		key := fileHandlers.ContentKey(upload.Data, upload.Filename)
		s.holdBlob(key)
		held = append(held, key)

		attachment, isNew, err := s.storeUpload(ctx, key, upload)
		if err != nil {
			s.releaseBlobs(held, created)
			return nil, internal(s.sugar, err, "store attachment")
		}
		if isNew {
			created = append(created, storedBlob{key: key, url: attachment.URL})
		}
		msg.Attachments = append(msg.Attachments, *attachment)
	}

	if err := s.store.CreateMessage(ctx, msg); err != nil {
		s.releaseBlobs(held, created)
		return nil, internal(s.sugar, err, "create message")
	}
	s.releaseBlobs(held, nil)

	s.broadcaster.MessageCreated(channelID, msg)
	return msg, nil
}

func (s *MessageService) storeUpload(ctx context.Context, key string, upload fileHandlers.Upload) (*models.Attachment, bool, error) {
	id, err := s.ids.Generate()
	if err != nil {
		return nil, false, err
	}

	url, isNew, err := s.blobs.Put(ctx, key, upload.Data, upload.ContentType)
	if err != nil {
		return nil, false, err
	}

	return &models.Attachment{
		ID:       id,
		Filename: upload.Filename,
		URL:      url,
		Type:     fileHandlers.Categorize(upload.ContentType),
		Size:     int64(len(upload.Data)),
	}, isNew, nil
}

func (s *MessageService) holdBlob(key string) {
	s.blobMutex.Lock()
	defer s.blobMutex.Unlock()

	s.blobUsers[key]++
}

// releaseBlobs drops the caller's holds. Each orphaned blob is removed
// unless another post still holds it or a stored attachment points at it.
func (s *MessageService) releaseBlobs(held []string, orphaned []storedBlob) {
	s.blobMutex.Lock()
	defer s.blobMutex.Unlock()

	for _, key := range held {
		s.blobUsers[key]--
		if s.blobUsers[key] <= 0 {
			delete(s.blobUsers, key)
		}
	}

	for _, blob := range orphaned {
		if s.blobUsers[blob.key] > 0 {
			continue
		}
		s.removeBlob(blob)
	}
}

func (s *MessageService) removeBlob(blob storedBlob) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	inUse, err := s.store.AttachmentURLInUse(ctx, blob.url)
	if err != nil {
		s.sugar.Errorw("Couldn't check attachment references, keeping blob", "key", blob.key, "error", err)
		return
	}
	if inUse {
		return
	}

	if err := s.blobs.Delete(ctx, blob.key); err != nil {
		s.sugar.Errorw("Couldn't remove orphaned attachment", "key", blob.key, "error", err)
	}
}

func (s *MessageService) find(ctx context.Context, messageID int64) (*models.Message, error) {
	msg, err := s.store.FindMessageByID(ctx, messageID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.Missing("Message not found")
	} else if err != nil {
		return nil, internal(s.sugar, err, "load message")
	}
	return msg, nil
}

// Update replaces the content of the caller's own message.
func (s *MessageService) Update(ctx context.Context, userID int64, messageID int64, content string) (*models.Message, error) {
	msg, err := s.find(ctx, messageID)
	if err != nil {
		return nil, err
	}

	if !access.CanEditMessage(userID, msg) {
		return nil, apperr.Forbidden("You can only edit your own messages")
	}

	content, err = validator.CleanContent(content)
	if err != nil {
		return nil, invalid(err)
	}
	if content == "" && len(msg.Attachments) == 0 {
		return nil, apperr.Invalid("Message content is required")
	}

	updatedAt := s.now().UTC()
	if !updatedAt.After(msg.CreatedAt) {
		updatedAt = msg.CreatedAt.Add(time.Millisecond)
	}

	if err := s.store.UpdateMessageContent(ctx, messageID, content, updatedAt); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.Missing("Message not found")
		}
		return nil, internal(s.sugar, err, "update message")
	}

	msg.Content = content
	msg.UpdatedAt = &updatedAt

	s.broadcaster.MessageUpdated(msg.ChannelID, msg)
	return msg, nil
}

// Delete removes a message. Authors may delete their own, server owners
// and admins any message in their server.
func (s *MessageService) Delete(ctx context.Context, userID int64, messageID int64) error {
	msg, err := s.find(ctx, messageID)
	if err != nil {
		return err
	}

	ch, err := s.store.FindChannelByID(ctx, msg.ChannelID)
	if errors.Is(err, store.ErrNotFound) {
		// the channel went away, and its messages with it
		return apperr.Missing("Message not found")
	} else if err != nil {
		return internal(s.sugar, err, "load channel")
	}

	member, err := findMember(ctx, s.store, ch.ServerID, userID)
	if err != nil {
		return internal(s.sugar, err, "load membership")
	}

	if !access.CanDeleteMessage(userID, msg, member) {
		return apperr.Forbidden("You can only delete your own messages or be a server admin")
	}

	if err := s.store.DeleteMessage(ctx, messageID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.Missing("Message not found")
		}
		return internal(s.sugar, err, "delete message")
	}

	s.broadcaster.MessageDeleted(msg.ChannelID, messageID)
	return nil
}
