package hub

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type Options struct {
	AllowedOrigins []string
	AuthTimeout    time.Duration
	MaxMessageSize int64
	MessagesPerSec float64
	MessageBurst   int
	SendBufferSize int
}

func (o *Options) sanitize() {
	if o.AuthTimeout <= 0 {
		o.AuthTimeout = 10 * time.Second
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 64 * 1024
	}
	if o.MessagesPerSec <= 0 {
		o.MessagesPerSec = 10
	}
	if o.MessageBurst <= 0 {
		o.MessageBurst = 20
	}
	if o.SendBufferSize <= 0 {
		o.SendBufferSize = 256
	}
}

// Hub owns every live connection of the process together with the session
// registry, room router and dispatcher that operate on them.
type Hub struct {
	sugar    *zap.SugaredLogger
	store    Store
	opts     Options
	upgrader websocket.Upgrader

	sessions   *Registry
	rooms      *Router
	dispatcher *Dispatcher
	presence   *presenceWriter

	mutex   sync.RWMutex
	clients map[string]*Client
	closing bool
	wg      sync.WaitGroup
}

func New(sugar *zap.SugaredLogger, store Store, verifier TokenVerifier, opts Options) *Hub {
	opts.sanitize()

	h := &Hub{
		sugar:   sugar,
		store:   store,
		opts:    opts,
		clients: make(map[string]*Client),
	}

	origins := newOriginPolicy(opts.AllowedOrigins, sugar)
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     origins.check,
	}

	h.presence = newPresenceWriter(store, sugar)
	h.sessions = NewRegistry(verifier, h.presence)
	h.rooms = NewRouter()
	h.dispatcher = newDispatcher(h.rooms, h, sugar)
	h.sessions.OnPresence(func(connID string, identity Identity, online bool) {
		h.dispatcher.PresenceChanged(connID, identity.UserID, identity.Username, online)
	})

	return h
}

func (h *Hub) Dispatcher() *Dispatcher {
	return h.dispatcher
}

func (h *Hub) Sessions() *Registry {
	return h.sessions
}

func (h *Hub) Rooms() *Router {
	return h.rooms
}

// HandleWebSocket upgrades the request and serves the connection until it
// closes. The socket must authenticate within the configured timeout.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.sugar.Debugf("WebSocket upgrade from %s failed: %v", r.RemoteAddr, err)
		return
	}

	client := newClient(uuid.NewString(), conn, h, r.RemoteAddr)
	if !h.register(client) {
		client.close()
		return
	}

	h.sugar.Debugf("Connection %s opened from %s", client.id, client.addr)

	go client.writePump()
	go h.expireUnauthenticated(client)
	client.readPump()
}

func (h *Hub) register(c *Client) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.closing {
		return false
	}
	h.clients[c.id] = c
	h.wg.Add(1)
	return true
}

// unregister runs once per connection, from its read pump.
func (h *Hub) unregister(c *Client) {
	h.mutex.Lock()
	_, ok := h.clients[c.id]
	delete(h.clients, c.id)
	h.mutex.Unlock()

	if !ok {
		return
	}
	defer h.wg.Done()

	left := h.rooms.LeaveAll(c.id)
	identity, last, authenticated := h.sessions.Forget(c.id)

	if authenticated {
		h.sugar.Debugf("User %d disconnected connection %s, left %d channels (last: %t)", identity.UserID, c.id, len(left), last)
	} else {
		h.sugar.Debugf("Unauthenticated connection %s closed", c.id)
	}
}

func (h *Hub) expireUnauthenticated(c *Client) {
	timer := time.NewTimer(h.opts.AuthTimeout)
	defer timer.Stop()

	select {
	case <-c.done:
	case <-timer.C:
		if _, ok := h.sessions.Lookup(c.id); !ok {
			h.sugar.Debugf("Connection %s did not authenticate within %s", c.id, h.opts.AuthTimeout)
			c.kick("Authentication timeout")
		}
	}
}

func (h *Hub) deliver(connID string, frame []byte) {
	h.mutex.RLock()
	client, ok := h.clients[connID]
	h.mutex.RUnlock()

	if ok {
		client.enqueue(frame)
	}
}

func (h *Hub) deliverAll(except string, frame []byte) {
	h.mutex.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for id, client := range h.clients {
		if id != except {
			targets = append(targets, client)
		}
	}
	h.mutex.RUnlock()

	for _, client := range targets {
		client.enqueue(frame)
	}
}

// Run persists presence changes until ctx is done, then closes every
// connection and writes the statuses they leave behind.
func (h *Hub) Run(ctx context.Context) error {
	h.presence.Run(ctx)

	h.mutex.Lock()
	h.closing = true
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.Unlock()

	h.sugar.Infof("Closing %d websocket connections", len(clients))
	for _, client := range clients {
		client.close()
	}

	h.wg.Wait()
	h.presence.flush()
	return nil
}

func (h *Hub) ConnectionCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	return len(h.clients)
}
