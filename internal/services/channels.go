package services

import (
	"context"
	"errors"
	"time"

	"chathub-backend/internal/access"
	"chathub-backend/internal/apperr"
	"chathub-backend/internal/models"
	"chathub-backend/internal/store"
	"chathub-backend/internal/validator"

	"go.uber.org/zap"
)

type CreateChannelInput struct {
	Name string             `json:"name" validate:"required"`
	Type models.ChannelType `json:"type"`
}

type UpdateChannelInput struct {
	Name *string             `json:"name"`
	Type *models.ChannelType `json:"type"`
}

const badChannelType = `Channel type must be "text" or "voice"`

type ChannelService struct {
	store       *store.Store
	ids         IDGenerator
	broadcaster Broadcaster
	sugar       *zap.SugaredLogger
	now         func() time.Time
}

func NewChannelService(st *store.Store, ids IDGenerator, broadcaster Broadcaster, sugar *zap.SugaredLogger) *ChannelService {
	return &ChannelService{store: st, ids: ids, broadcaster: broadcaster, sugar: sugar, now: time.Now}
}

// List returns the server's channels in creation order. Non-members get
// the same answer as for a server that does not exist.
func (s *ChannelService) List(ctx context.Context, userID int64, serverID int64) ([]models.Channel, error) {
	member, err := findMember(ctx, s.store, serverID, userID)
	if err != nil {
		return nil, internal(s.sugar, err, "load membership")
	}
	if member == nil {
		return nil, apperr.Missing("Server not found")
	}

	channels, err := s.store.ListChannels(ctx, serverID)
	if err != nil {
		return nil, internal(s.sugar, err, "list channels")
	}
	return channels, nil
}

func (s *ChannelService) Create(ctx context.Context, userID int64, serverID int64, in CreateChannelInput) (*models.Channel, error) {
	member, err := findMember(ctx, s.store, serverID, userID)
	if err != nil {
		return nil, internal(s.sugar, err, "load membership")
	}
	if !access.CanManageChannel(userID, serverID, member) {
		return nil, apperr.Forbidden("Only server owners and admins can create channels")
	}

	name, err := validator.Name(in.Name)
	if err != nil {
		return nil, apperr.Invalid("Channel name is required")
	}
	if in.Type == "" {
		in.Type = models.ChannelText
	}
	if !in.Type.Valid() {
		return nil, apperr.Invalid(badChannelType)
	}

	id, err := s.ids.Generate()
	if err != nil {
		return nil, internal(s.sugar, err, "generate channel id")
	}

	ch := &models.Channel{
		ID:        id,
		Name:      name,
		Type:      in.Type,
		ServerID:  serverID,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.CreateChannel(ctx, ch); err != nil {
		return nil, internal(s.sugar, err, "create channel")
	}

	return ch, nil
}

// manageable loads a channel the caller may manage. Non-members cannot
// tell the channel exists.
func (s *ChannelService) manageable(ctx context.Context, userID int64, channelID int64, verb string) (*models.Channel, error) {
	ch, err := s.store.FindChannelByID(ctx, channelID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.Missing("Channel not found")
	} else if err != nil {
		return nil, internal(s.sugar, err, "load channel")
	}

	member, err := findMember(ctx, s.store, ch.ServerID, userID)
	if err != nil {
		return nil, internal(s.sugar, err, "load membership")
	}
	if member == nil {
		return nil, apperr.Missing("Channel not found")
	}
	if !access.CanManageChannel(userID, ch.ServerID, member) {
		return nil, apperr.Forbidden("Only server owners and admins can " + verb + " channels")
	}
	return ch, nil
}

func (s *ChannelService) Update(ctx context.Context, userID int64, channelID int64, in UpdateChannelInput) (*models.Channel, error) {
	ch, err := s.manageable(ctx, userID, channelID, "update")
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		name, err := validator.Name(*in.Name)
		if err != nil {
			return nil, apperr.Invalid("Channel name is required")
		}
		ch.Name = name
	}
	if in.Type != nil {
		if !in.Type.Valid() {
			return nil, apperr.Invalid(badChannelType)
		}
		ch.Type = *in.Type
	}

	if err := s.store.UpdateChannel(ctx, ch); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.Missing("Channel not found")
		}
		return nil, internal(s.sugar, err, "update channel")
	}

	s.broadcaster.ChannelUpdated(ch)
	return ch, nil
}

func (s *ChannelService) Delete(ctx context.Context, userID int64, channelID int64) error {
	ch, err := s.manageable(ctx, userID, channelID, "delete")
	if err != nil {
		return err
	}

	if err := s.store.DeleteChannel(ctx, channelID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.Missing("Channel not found")
		}
		return internal(s.sugar, err, "delete channel")
	}
	s.sugar.Infof("User %d deleted channel %d of server %d", userID, channelID, ch.ServerID)

	s.broadcaster.ChannelDeleted(channelID, ch.ServerID)
	return nil
}
