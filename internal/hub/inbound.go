package hub

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"chathub-backend/internal/access"
	"chathub-backend/internal/models"
	"chathub-backend/internal/store"
)

// Store is what the hub reads to authorize inbound events.
type Store interface {
	StatusStore
	FindChannelByID(ctx context.Context, id int64) (*models.Channel, error)
	FindMember(ctx context.Context, serverID int64, userID int64) (*models.ServerMember, error)
	FindMessageByID(ctx context.Context, id int64) (*models.Message, error)
}

const inboundTimeout = 5 * time.Second

var errNoAccess = errors.New("channel not readable")

func (h *Hub) handleInbound(c *Client, env Envelope) {
	if env.Event == EventAuthenticate {
		h.authenticate(c, env.Data)
		return
	}

	identity, ok := h.sessions.Lookup(c.id)
	if !ok {
		c.sendError("Not authenticated")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), inboundTimeout)
	defer cancel()

	switch env.Event {
	case EventChannelJoin:
		h.joinChannel(ctx, c, identity, env.Data)
	case EventChannelLeave:
		channelID, err := parseChannelRef(env.Data)
		if err != nil {
			c.sendError("Invalid channel id")
			return
		}
		h.rooms.Leave(c.id, channelID)
		h.sugar.Debugf("Connection %s left channel %d", c.id, channelID)
	case EventTypingStart, EventTypingStop:
		h.relayTyping(c, identity, env)
	case EventMessageNew, EventMessageUpdate:
		h.relayMessage(ctx, c, identity, env)
	case EventMessageDelete:
		h.relayDelete(ctx, c, identity, env.Data)
	default:
		c.sendError("Unknown event: " + env.Event)
	}
}

func (h *Hub) authenticate(c *Client, data json.RawMessage) {
	identity, _, err := h.sessions.Authenticate(c.id, parseToken(data))
	if err != nil {
		if errors.Is(err, ErrAlreadyAuthenticated) {
			c.sendError("Already authenticated")
			return
		}
		h.sugar.Debugf("Authentication failed for connection %s (%s)", c.id, c.addr)
		c.kick("Authentication failed")
		return
	}

	h.sugar.Debugf("Connection %s authenticated as user %d", c.id, identity.UserID)
	c.sendEvent(EventAuthenticated, AuthenticatedPayload{UserID: identity.UserID})
}

// readableChannel loads the channel and checks the user's membership.
func (h *Hub) readableChannel(ctx context.Context, userID int64, channelID int64) (*models.Channel, error) {
	ch, err := h.store.FindChannelByID(ctx, channelID)
	if err != nil {
		return nil, err
	}

	member, err := h.store.FindMember(ctx, ch.ServerID, userID)
	if err != nil {
		return nil, err
	}

	if !access.CanReadChannel(userID, ch, member) {
		return nil, errNoAccess
	}
	return ch, nil
}

func (h *Hub) joinChannel(ctx context.Context, c *Client, identity Identity, data json.RawMessage) {
	channelID, err := parseChannelRef(data)
	if err != nil {
		c.sendError("Invalid channel id")
		return
	}

	if _, err := h.readableChannel(ctx, identity.UserID, channelID); err != nil {
		h.sugar.Debugf("User %d denied joining channel %d: %v", identity.UserID, channelID, err)
		c.sendError("Channel not found")
		return
	}

	h.rooms.Join(c.id, channelID)
	h.sugar.Debugf("Connection %s joined channel %d", c.id, channelID)
}

func (h *Hub) relayTyping(c *Client, identity Identity, env Envelope) {
	channelID, err := parseChannelRef(env.Data)
	if err != nil {
		c.sendError("Invalid channel id")
		return
	}

	if !h.rooms.IsSubscribed(c.id, channelID) {
		return
	}

	if env.Event == EventTypingStart {
		h.dispatcher.TypingStarted(channelID, c.id, identity.UserID, identity.Username)
	} else {
		h.dispatcher.TypingStopped(channelID, c.id, identity.UserID)
	}
}

// relayMessage rebroadcasts the stored copy of a message a client announces,
// never the client's payload.
func (h *Hub) relayMessage(ctx context.Context, c *Client, identity Identity, env Envelope) {
	var relay messageRelay
	if err := json.Unmarshal(env.Data, &relay); err != nil {
		c.sendError("Malformed event")
		return
	}
	channelID := int64(relay.ChannelID)

	if _, err := h.readableChannel(ctx, identity.UserID, channelID); err != nil {
		c.sendError("Channel not found")
		return
	}

	msg, err := h.store.FindMessageByID(ctx, int64(relay.Message.ID))
	if err != nil || msg.ChannelID != channelID {
		c.sendError("Message not found")
		return
	}

	if env.Event == EventMessageNew {
		h.dispatcher.MessageCreated(channelID, msg)
	} else {
		h.dispatcher.MessageUpdated(channelID, msg)
	}
}

// relayDelete rebroadcasts a deletion only once the message is really gone.
func (h *Hub) relayDelete(ctx context.Context, c *Client, identity Identity, data json.RawMessage) {
	var relay deleteRelay
	if err := json.Unmarshal(data, &relay); err != nil {
		c.sendError("Malformed event")
		return
	}
	channelID := int64(relay.ChannelID)

	if _, err := h.readableChannel(ctx, identity.UserID, channelID); err != nil {
		c.sendError("Channel not found")
		return
	}

	_, err := h.store.FindMessageByID(ctx, int64(relay.MessageID))
	if !errors.Is(err, store.ErrNotFound) {
		if err != nil {
			h.sugar.Errorw("Couldn't look up deleted message", "messageID", int64(relay.MessageID), "error", err)
		}
		c.sendError("Message still exists")
		return
	}

	h.dispatcher.MessageDeleted(channelID, int64(relay.MessageID))
}
