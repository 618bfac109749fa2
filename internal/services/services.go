// Package services holds the use cases behind the REST surface: they load
// what they need from the store, decide access, write, and only after a
// successful commit hand the change to the live event dispatcher.
package services

import (
	"context"
	"errors"

	"chathub-backend/internal/access"
	"chathub-backend/internal/apperr"
	"chathub-backend/internal/models"
	"chathub-backend/internal/store"

	"go.uber.org/zap"
)

// Broadcaster receives committed changes. *hub.Dispatcher implements it.
type Broadcaster interface {
	MessageCreated(channelID int64, msg *models.Message)
	MessageUpdated(channelID int64, msg *models.Message)
	MessageDeleted(channelID int64, messageID int64)
	ChannelUpdated(ch *models.Channel)
	ChannelDeleted(channelID int64, serverID int64)
	ServerUpdated(srv *models.Server, channelIDs []int64)
	ServerDeleted(serverID int64, channelIDs []int64)
}

type IDGenerator interface {
	Generate() (int64, error)
}

var fieldMessages = map[string]string{
	"long_email":     "Email is too long",
	"bad_format":     "Invalid email address",
	"short_username": "Username must be at least 2 characters",
	"long_username":  "Username must be at most 32 characters",
	"bad_username":   "Username may only contain letters, numbers, dots, dashes and underscores",
	"short_password": "Password must be at least 6 characters",
	"long_password":  "Password must be at most 72 characters",
	"long_content":   "Message content is too long",
}

// invalid turns a validator error code into a client-facing Validation error.
func invalid(err error) *apperr.Error {
	if message, ok := fieldMessages[err.Error()]; ok {
		return apperr.Invalid(message)
	}
	return apperr.Invalid(err.Error())
}

// internal logs an unexpected failure and hides it behind a generic error.
func internal(sugar *zap.SugaredLogger, err error, action string) error {
	sugar.Errorw("Couldn't "+action, "error", err)
	return apperr.Wrap(err)
}

// readableChannel loads a channel the user may read. Missing channels and
// channels of servers the user is not a member of look the same.
func readableChannel(ctx context.Context, st *store.Store, sugar *zap.SugaredLogger, userID int64, channelID int64) (*models.Channel, *models.ServerMember, error) {
	ch, err := st.FindChannelByID(ctx, channelID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, apperr.Missing("Channel not found")
	} else if err != nil {
		return nil, nil, internal(sugar, err, "load channel")
	}

	member, err := findMember(ctx, st, ch.ServerID, userID)
	if err != nil {
		return nil, nil, internal(sugar, err, "load membership")
	}

	if !access.CanReadChannel(userID, ch, member) {
		sugar.Debugf("User %d denied access to channel %d", userID, channelID)
		return nil, nil, apperr.Missing("Channel not found")
	}
	return ch, member, nil
}

// findMember returns nil without error when userID is not a member.
func findMember(ctx context.Context, st *store.Store, serverID int64, userID int64) (*models.ServerMember, error) {
	member, err := st.FindMember(ctx, serverID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return member, err
}

func channelIDs(channels []models.Channel) []int64 {
	ids := make([]int64, len(channels))
	for i, ch := range channels {
		ids[i] = ch.ID
	}
	return ids
}
