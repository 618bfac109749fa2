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

const DefaultIconColor = "#5865f2"

type CreateServerInput struct {
	Name      string  `json:"name" validate:"required"`
	IconColor *string `json:"iconColor" validate:"omitempty,hexcolor"`
}

type UpdateServerInput struct {
	Name      *string `json:"name"`
	Icon      *string `json:"icon" validate:"omitempty,url"`
	IconColor *string `json:"iconColor" validate:"omitempty,hexcolor"`
}

type ServerService struct {
	store       *store.Store
	ids         IDGenerator
	broadcaster Broadcaster
	sugar       *zap.SugaredLogger
	now         func() time.Time
}

func NewServerService(st *store.Store, ids IDGenerator, broadcaster Broadcaster, sugar *zap.SugaredLogger) *ServerService {
	return &ServerService{store: st, ids: ids, broadcaster: broadcaster, sugar: sugar, now: time.Now}
}

func (s *ServerService) List(ctx context.Context, userID int64) ([]models.ServerListItem, error) {
	servers, err := s.store.ListServersForUser(ctx, userID)
	if err != nil {
		return nil, internal(s.sugar, err, "list servers")
	}
	return servers, nil
}

// Create makes the server with the caller as owner and a default text and
// voice channel.
func (s *ServerService) Create(ctx context.Context, userID int64, in CreateServerInput) (*models.ServerDetail, error) {
	name, err := validator.Name(in.Name)
	if err != nil {
		return nil, apperr.Invalid("Server name is required")
	}

	if err := validator.Struct(in); err != nil {
		return nil, apperr.Invalid(err.Error())
	}

	iconColor := DefaultIconColor
	if in.IconColor != nil {
		iconColor = *in.IconColor
	}

	ids, err := s.generate(3)
	if err != nil {
		return nil, internal(s.sugar, err, "generate server ids")
	}

	createdAt := s.now().UTC()
	srv := &models.Server{
		ID:        ids[0],
		Name:      name,
		IconColor: iconColor,
		OwnerID:   userID,
		CreatedAt: createdAt,
	}
	channels := []models.Channel{
		{ID: ids[1], Name: "general", Type: models.ChannelText, CreatedAt: createdAt},
		{ID: ids[2], Name: "voice", Type: models.ChannelVoice, CreatedAt: createdAt},
	}

	if err := s.store.CreateServer(ctx, srv, channels); err != nil {
		return nil, internal(s.sugar, err, "create server")
	}
	s.sugar.Infof("User %d created server %d", userID, srv.ID)

	detail, err := s.store.FindServerDetail(ctx, srv.ID)
	if err != nil {
		return nil, internal(s.sugar, err, "load created server")
	}
	return detail, nil
}

func (s *ServerService) generate(n int) ([]int64, error) {
	ids := make([]int64, n)
	for i := range ids {
		id, err := s.ids.Generate()
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}

func (s *ServerService) find(ctx context.Context, serverID int64) (*models.Server, error) {
	srv, err := s.store.FindServerByID(ctx, serverID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.Missing("Server not found")
	} else if err != nil {
		return nil, internal(s.sugar, err, "load server")
	}
	return srv, nil
}

// Get returns the server with members and channels. Only members may see it.
func (s *ServerService) Get(ctx context.Context, userID int64, serverID int64) (*models.ServerDetail, error) {
	if _, err := s.find(ctx, serverID); err != nil {
		return nil, err
	}

	member, err := findMember(ctx, s.store, serverID, userID)
	if err != nil {
		return nil, internal(s.sugar, err, "load membership")
	}
	if member == nil {
		return nil, apperr.Forbidden("Not a member of this server")
	}

	detail, err := s.store.FindServerDetail(ctx, serverID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.Missing("Server not found")
	} else if err != nil {
		return nil, internal(s.sugar, err, "load server detail")
	}
	return detail, nil
}

func (s *ServerService) Update(ctx context.Context, userID int64, serverID int64, in UpdateServerInput) (*models.Server, error) {
	srv, err := s.find(ctx, serverID)
	if err != nil {
		return nil, err
	}

	if !access.CanManageServer(userID, srv) {
		return nil, apperr.Forbidden("Only the server owner can update the server")
	}

	if err := validator.Struct(in); err != nil {
		return nil, apperr.Invalid(err.Error())
	}

	if in.Name != nil {
		name, err := validator.Name(*in.Name)
		if err != nil {
			return nil, apperr.Invalid("Server name is required")
		}
		srv.Name = name
	}
	if in.Icon != nil {
		srv.Icon = in.Icon
		if *in.Icon == "" {
			srv.Icon = nil
		}
	}
	if in.IconColor != nil {
		srv.IconColor = *in.IconColor
	}

	if err := s.store.UpdateServer(ctx, srv); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.Missing("Server not found")
		}
		return nil, internal(s.sugar, err, "update server")
	}

	channels, err := s.store.ListChannels(ctx, serverID)
	if err != nil {
		s.sugar.Errorw("Couldn't list channels for server update broadcast", "serverID", serverID, "error", err)
	}
	s.broadcaster.ServerUpdated(srv, channelIDs(channels))

	return srv, nil
}

func (s *ServerService) Delete(ctx context.Context, userID int64, serverID int64) error {
	srv, err := s.find(ctx, serverID)
	if err != nil {
		return err
	}

	if !access.CanManageServer(userID, srv) {
		return apperr.Forbidden("Only the server owner can delete the server")
	}

	// the rooms to notify disappear with the server
	channels, err := s.store.ListChannels(ctx, serverID)
	if err != nil {
		return internal(s.sugar, err, "list channels")
	}

	if err := s.store.DeleteServer(ctx, serverID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.Missing("Server not found")
		}
		return internal(s.sugar, err, "delete server")
	}
	s.sugar.Infof("User %d deleted server %d", userID, serverID)

	s.broadcaster.ServerDeleted(serverID, channelIDs(channels))
	return nil
}

// Join adds the caller as a plain member.
func (s *ServerService) Join(ctx context.Context, userID int64, serverID int64) (*models.ServerMember, error) {
	if _, err := s.find(ctx, serverID); err != nil {
		return nil, err
	}

	member := &models.ServerMember{
		UserID:   userID,
		ServerID: serverID,
		Role:     models.RoleMember,
		JoinedAt: s.now().UTC(),
	}

	if err := s.store.CreateMember(ctx, member); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, apperr.Duplicate("Already a member of this server")
		}
		return nil, internal(s.sugar, err, "create membership")
	}

	user, err := s.store.FindUserByID(ctx, userID)
	if err != nil {
		return nil, internal(s.sugar, err, "load user")
	}
	summary := user.Summary()
	member.User = &summary

	return member, nil
}
