package services

import (
	"context"
	"fmt"
	"testing"

	"chathub-backend/internal/apperr"
	"chathub-backend/internal/models"

	"github.com/stretchr/testify/require"
)

func TestChannelLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.user(t, "alice")
	srv, _ := env.server(t, alice)

	ch, err := env.channels.Create(ctx, alice, srv.ID, CreateChannelInput{Name: "random"})
	require.NoError(t, err)
	require.Equal(t, models.ChannelText, ch.Type)

	channels, err := env.channels.List(ctx, alice, srv.ID)
	require.NoError(t, err)
	require.Len(t, channels, 3)
	require.Equal(t, ch.ID, channels[2].ID)

	voice := models.ChannelVoice
	renamed := "lounge"
	updated, err := env.channels.Update(ctx, alice, ch.ID, UpdateChannelInput{Name: &renamed, Type: &voice})
	require.NoError(t, err)
	require.Equal(t, "lounge", updated.Name)
	require.Equal(t, models.ChannelVoice, updated.Type)

	require.NoError(t, env.channels.Delete(ctx, alice, ch.ID))
	require.Equal(t, []string{
		fmt.Sprintf("channel:update %d", ch.ID),
		fmt.Sprintf("channel:delete %d %d", ch.ID, srv.ID),
	}, env.bus.Events())

	_, err = env.channels.Update(ctx, alice, ch.ID, UpdateChannelInput{Name: &renamed})
	require.Equal(t, "Channel not found", apperr.MessageOf(err))
}

func TestChannelValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.user(t, "alice")
	srv, general := env.server(t, alice)

	_, err := env.channels.Create(ctx, alice, srv.ID, CreateChannelInput{Name: "stage", Type: "stage"})
	require.Equal(t, `Channel type must be "text" or "voice"`, apperr.MessageOf(err))

	_, err = env.channels.Create(ctx, alice, srv.ID, CreateChannelInput{Name: ""})
	require.Equal(t, apperr.Validation, apperr.KindOf(err))

	bad := models.ChannelType("video")
	_, err = env.channels.Update(ctx, alice, general, UpdateChannelInput{Type: &bad})
	require.Equal(t, apperr.Validation, apperr.KindOf(err))
}

func TestChannelManagementRoles(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.user(t, "alice")
	bob := env.user(t, "bob")
	carol := env.user(t, "carol")
	srv, general := env.server(t, alice)
	env.join(t, bob, srv.ID)

	_, err := env.channels.Create(ctx, bob, srv.ID, CreateChannelInput{Name: "bobs"})
	require.Equal(t, apperr.Authorization, apperr.KindOf(err))
	require.Equal(t, "Only server owners and admins can create channels", apperr.MessageOf(err))

	name := "x"
	_, err = env.channels.Update(ctx, bob, general, UpdateChannelInput{Name: &name})
	require.Equal(t, "Only server owners and admins can update channels", apperr.MessageOf(err))
	err = env.channels.Delete(ctx, bob, general)
	require.Equal(t, "Only server owners and admins can delete channels", apperr.MessageOf(err))

	// non-members cannot tell the channel exists
	_, err = env.channels.Update(ctx, carol, general, UpdateChannelInput{Name: &name})
	require.Equal(t, apperr.NotFound, apperr.KindOf(err))
	_, err = env.channels.List(ctx, carol, srv.ID)
	require.Equal(t, apperr.NotFound, apperr.KindOf(err))

	require.Empty(t, env.bus.Events())
}
