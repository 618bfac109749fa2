package hub

import (
	"sync"

	"chathub-backend/internal/models"

	"go.uber.org/zap"
)

// deliverer hands frames to live connections without blocking.
type deliverer interface {
	deliver(connID string, frame []byte)
	deliverAll(except string, frame []byte)
}

// Dispatcher broadcasts domain events to rooms. Callers invoke it only after
// the matching write has been committed. Fan-out is serialized so every
// subscriber of a room sees events in the order they were issued.
type Dispatcher struct {
	mutex  sync.Mutex
	router *Router
	conns  deliverer
	sugar  *zap.SugaredLogger
}

func newDispatcher(router *Router, conns deliverer, sugar *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{router: router, conns: conns, sugar: sugar}
}

func (d *Dispatcher) MessageCreated(channelID int64, msg *models.Message) {
	d.toRoom(channelID, "", EventMessageNew, msg)
}

func (d *Dispatcher) MessageUpdated(channelID int64, msg *models.Message) {
	d.toRoom(channelID, "", EventMessageUpdate, msg)
}

func (d *Dispatcher) MessageDeleted(channelID int64, messageID int64) {
	d.toRoom(channelID, "", EventMessageDelete, MessageDeletedPayload{ChannelID: channelID, MessageID: messageID})
}

// TypingStarted relays to every subscriber except the originating connection.
func (d *Dispatcher) TypingStarted(channelID int64, originConnID string, userID int64, username string) {
	d.toRoom(channelID, originConnID, EventTypingStart, TypingPayload{ChannelID: channelID, UserID: userID, Username: username})
}

func (d *Dispatcher) TypingStopped(channelID int64, originConnID string, userID int64) {
	d.toRoom(channelID, originConnID, EventTypingStop, TypingPayload{ChannelID: channelID, UserID: userID})
}

// PresenceChanged goes to every connection in the process, not a room.
func (d *Dispatcher) PresenceChanged(originConnID string, userID int64, username string, online bool) {
	event := EventUserOffline
	if online {
		event = EventUserOnline
	}

	frame, ok := d.encode(event, PresencePayload{UserID: userID, Username: username})
	if !ok {
		return
	}

	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.conns.deliverAll(originConnID, frame)
}

func (d *Dispatcher) ChannelUpdated(ch *models.Channel) {
	d.toRoom(ch.ID, "", EventChannelUpdate, ch)
}

// ChannelDeleted notifies the room and then drops it.
func (d *Dispatcher) ChannelDeleted(channelID int64, serverID int64) {
	d.toRoom(channelID, "", EventChannelDelete, ChannelDeletedPayload{ChannelID: channelID, ServerID: serverID})
	d.router.DropRoom(channelID)
}

// ServerUpdated reaches every connection subscribed to any of the server's channels, once.
func (d *Dispatcher) ServerUpdated(srv *models.Server, channelIDs []int64) {
	d.toRooms(channelIDs, EventServerUpdate, srv)
}

func (d *Dispatcher) ServerDeleted(serverID int64, channelIDs []int64) {
	d.toRooms(channelIDs, EventServerDelete, ServerDeletedPayload{ServerID: serverID})
	for _, channelID := range channelIDs {
		d.router.DropRoom(channelID)
	}
}

func (d *Dispatcher) encode(event string, data any) ([]byte, bool) {
	frame, err := encode(event, data)
	if err != nil {
		d.sugar.Errorw("Couldn't encode event", "event", event, "error", err)
		return nil, false
	}
	return frame, true
}

func (d *Dispatcher) toRoom(channelID int64, except string, event string, data any) {
	frame, ok := d.encode(event, data)
	if !ok {
		return
	}

	d.mutex.Lock()
	defer d.mutex.Unlock()

	subscribers := d.router.SubscribersOf(channelID)
	d.sugar.Debugf("Sending %s to %d subscribers of channel %d", event, len(subscribers), channelID)

	for _, connID := range subscribers {
		if connID != except {
			d.conns.deliver(connID, frame)
		}
	}
}

func (d *Dispatcher) toRooms(channelIDs []int64, event string, data any) {
	frame, ok := d.encode(event, data)
	if !ok {
		return
	}

	d.mutex.Lock()
	defer d.mutex.Unlock()

	seen := make(map[string]struct{})
	for _, channelID := range channelIDs {
		for _, connID := range d.router.SubscribersOf(channelID) {
			if _, dup := seen[connID]; dup {
				continue
			}
			seen[connID] = struct{}{}
			d.conns.deliver(connID, frame)
		}
	}
}
